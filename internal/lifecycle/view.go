package lifecycle

import (
	"sort"
	"strings"
	"time"

	"github.com/agrosense/agrosense/internal/domain/models"
)

// Describe projects a batch for display at instant now. A malformed start
// date does not fail the projection: the view keeps the reported status and
// carries the error in DateError so callers can decide how to show it.
func (c *ExpiryCalculator) Describe(b models.Batch, now time.Time) models.BatchView {
	view := models.BatchView{
		Batch:          b,
		ReportedStatus: b.Status,
		DerivedStatus:  b.Status,
		RecentLogs:     RecentFirst(b.MaintenanceLogs),
	}
	view.Stage = b.CurrentStage()

	if strings.TrimSpace(b.StartDate) == "" {
		return view
	}

	start, err := ParseDate(b.StartDate)
	if err != nil {
		view.DateError = err.Error()
		return view
	}

	today := c.DateOf(now)
	elapsed := DaysElapsed(start, today)
	view.DaysSinceSpawn = &elapsed
	view.ProjectedExpiryDate = ProjectedExpiryDate(start).String()

	if harvest, err := EstimatedHarvestDate(start, b.EffectiveGrowthDays()); err == nil {
		view.EstimatedHarvestDate = harvest.String()
	}

	// The start date already parsed, so neither call can fail.
	view.DerivedStatus, _ = c.Classify(b, today)
	view.DerivedExpired, _ = c.IsDerivedExpired(b, today)
	view.ExpiringSoon, _ = c.IsExpiringSoon(b, now)

	return view
}

// RecentFirst returns a copy of logs ordered most recent first. Entries with
// equal timestamps keep their insertion order reversed.
func RecentFirst(logs []models.MaintenanceLog) []models.MaintenanceLog {
	if len(logs) == 0 {
		return nil
	}
	out := make([]models.MaintenanceLog, len(logs))
	for i, entry := range logs {
		out[len(logs)-1-i] = entry
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/lifecycle"
	"github.com/agrosense/agrosense/internal/service/batches"
)

const (
	dateLayout  = "2006-01-02"
	rosterRange = "Batches!A:H"
)

// ViewSource lists batch views.
type ViewSource interface {
	List(ctx context.Context, filter batches.ListFilter) ([]models.BatchView, error)
	Now() time.Time
	Location() *time.Location
}

// ReportStore persists generated reports.
type ReportStore interface {
	SaveLifecycleReport(ctx context.Context, report models.LifecycleReport) error
}

// RosterWriter appends rows to a spreadsheet range.
type RosterWriter interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// Notifier delivers a message to the operator.
type Notifier interface {
	NotifyOperator(ctx context.Context, body string) error
}

// Service builds and publishes the daily lifecycle report. Store, roster and
// notifier are optional.
type Service struct {
	source       ViewSource
	store        ReportStore
	roster       RosterWriter
	notifier     Notifier
	upcomingDays int
	logger       *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(source ViewSource, store ReportStore, roster RosterWriter, notifier Notifier, upcomingDays int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if upcomingDays <= 0 {
		upcomingDays = 7
	}
	return &Service{
		source:       source,
		store:        store,
		roster:       roster,
		notifier:     notifier,
		upcomingDays: upcomingDays,
		logger:       logger,
	}
}

// GenerateDailyReport builds today's report and hands it to every configured
// sink. Sink failures are logged and returned together; the report is
// returned regardless.
func (s *Service) GenerateDailyReport(ctx context.Context) (models.LifecycleReport, error) {
	views, err := s.source.List(ctx, batches.ListFilter{})
	if err != nil {
		return models.LifecycleReport{}, fmt.Errorf("list batches: %w", err)
	}

	now := s.source.Now()
	report := BuildReport(views, now, s.source.Location(), s.upcomingDays)

	var errs []error
	if s.store != nil {
		if err := s.store.SaveLifecycleReport(ctx, report); err != nil {
			s.logger.Error("failed to store lifecycle report", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if s.roster != nil && len(views) > 0 {
		if err := s.roster.AppendRows(ctx, rosterRange, RosterRows(views, report.Date)); err != nil {
			s.logger.Error("failed to export batch roster", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyOperator(ctx, FormatReport(report)); err != nil {
			s.logger.Error("failed to send lifecycle report", zap.Error(err))
			errs = append(errs, err)
		}
	}

	s.logger.Info("lifecycle report generated",
		zap.Int("batches", report.TotalBatches),
		zap.Int("expired", report.Expired),
		zap.Int("expiring_soon", report.ExpiringSoon))

	return report, errors.Join(errs...)
}

// BuildReport aggregates views into a report for the calendar day of now.
func BuildReport(views []models.BatchView, now time.Time, loc *time.Location, upcomingDays int) models.LifecycleReport {
	if loc == nil {
		loc = time.UTC
	}
	today := civil.DateOf(now.In(loc))
	horizon := today.AddDays(upcomingDays)

	report := models.LifecycleReport{
		Date:             today.In(loc),
		TotalBatches:     len(views),
		StageCounts:      make(map[models.Stage]int, len(models.Stages)),
		UpcomingHarvests: []models.UpcomingHarvest{},
		CreatedAt:        now.UTC(),
	}

	var qualitySum, qualityCount int
	for _, v := range views {
		report.StageCounts[v.Stage]++

		if v.DateError != "" {
			report.InvalidDates++
		}
		if v.DerivedStatus == models.StatusExpired {
			report.Expired++
		} else if v.ExpiringSoon {
			report.ExpiringSoon++
		}
		if v.ActualYield != nil {
			report.HarvestedYieldKg += *v.ActualYield
		}
		if v.QualityScore != nil {
			qualitySum += *v.QualityScore
			qualityCount++
		}

		if v.Harvested() || v.Stage == models.StageCompleted || v.EstimatedHarvestDate == "" {
			continue
		}
		harvest, err := lifecycle.ParseDate(v.EstimatedHarvestDate)
		if err != nil || harvest.Before(today) || harvest.After(horizon) {
			continue
		}
		report.UpcomingHarvests = append(report.UpcomingHarvests, models.UpcomingHarvest{
			BatchID:              v.BatchID,
			EstimatedHarvestDate: harvest.String(),
		})
	}

	if qualityCount > 0 {
		report.AverageQuality = math.Round(float64(qualitySum)/float64(qualityCount)*100) / 100
	}
	report.HarvestedYieldKg = math.Round(report.HarvestedYieldKg*100) / 100

	sort.Slice(report.UpcomingHarvests, func(i, j int) bool {
		a, b := report.UpcomingHarvests[i], report.UpcomingHarvests[j]
		if a.EstimatedHarvestDate != b.EstimatedHarvestDate {
			return a.EstimatedHarvestDate < b.EstimatedHarvestDate
		}
		return a.BatchID < b.BatchID
	})

	return report
}

// FormatReport renders a report as an operator message.
func FormatReport(r models.LifecycleReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AgroSense daily report %s\n", r.Date.Format(dateLayout))
	fmt.Fprintf(&b, "Batches: %d\n", r.TotalBatches)

	var stages []string
	for _, stage := range models.Stages {
		if n := r.StageCounts[stage]; n > 0 {
			stages = append(stages, fmt.Sprintf("%s %d", stage, n))
		}
	}
	if len(stages) > 0 {
		fmt.Fprintf(&b, "Stages: %s\n", strings.Join(stages, ", "))
	}

	fmt.Fprintf(&b, "Expired: %d, expiring soon: %d\n", r.Expired, r.ExpiringSoon)
	if r.InvalidDates > 0 {
		fmt.Fprintf(&b, "Batches with invalid start dates: %d\n", r.InvalidDates)
	}
	if r.HarvestedYieldKg > 0 {
		fmt.Fprintf(&b, "Harvested: %.2f kg, average quality %.1f/10\n", r.HarvestedYieldKg, r.AverageQuality)
	}

	if len(r.UpcomingHarvests) == 0 {
		b.WriteString("No harvests due in the coming days.")
		return b.String()
	}
	b.WriteString("Upcoming harvests:")
	for _, h := range r.UpcomingHarvests {
		fmt.Fprintf(&b, "\n- %s on %s", h.BatchID, h.EstimatedHarvestDate)
	}
	return b.String()
}

// RosterRows converts views into spreadsheet rows: report date, batch, start
// date, stage, reported status, derived status, estimated harvest and yield.
func RosterRows(views []models.BatchView, date time.Time) [][]interface{} {
	rows := make([][]interface{}, 0, len(views))
	day := date.Format(dateLayout)
	for _, v := range views {
		var yield interface{} = ""
		if v.ActualYield != nil {
			yield = *v.ActualYield
		}
		rows = append(rows, []interface{}{
			day,
			v.BatchID,
			v.StartDate,
			string(v.Stage),
			string(v.ReportedStatus),
			string(v.DerivedStatus),
			v.EstimatedHarvestDate,
			yield,
		})
	}
	return rows
}

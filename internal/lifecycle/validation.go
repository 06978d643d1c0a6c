package lifecycle

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/agrosense/agrosense/internal/domain/models"
)

const (
	MinBatchIDLength = 3
	MinGrowthDays    = 1
	MaxGrowthDays    = 180
)

// ValidateNewBatch checks a creation request against today's date and
// returns it normalised (trimmed ID, canonical start date, default growth
// period).
func ValidateNewBatch(req models.CreateBatchRequest, today civil.Date) (models.CreateBatchRequest, error) {
	out := req
	out.BatchID = strings.TrimSpace(req.BatchID)
	if len(out.BatchID) < MinBatchIDLength {
		return req, &ValidationError{Field: "batchId", Reason: fmt.Sprintf("must be at least %d characters", MinBatchIDLength)}
	}

	if strings.TrimSpace(req.StartDate) == "" {
		return req, &ValidationError{Field: "startDate", Reason: "is required"}
	}
	start, err := ParseDate(req.StartDate)
	if err != nil {
		return req, err
	}
	if start.After(today) {
		return req, &InvalidDateError{Value: req.StartDate, Reason: "start date cannot be in the future"}
	}
	out.StartDate = start.String()

	if out.GrowthDays == 0 {
		out.GrowthDays = models.DefaultGrowthDays
	}
	if out.GrowthDays < MinGrowthDays || out.GrowthDays > MaxGrowthDays {
		return req, &ValidationError{Field: "growthDays", Reason: fmt.Sprintf("must be between %d and %d", MinGrowthDays, MaxGrowthDays)}
	}

	return out, nil
}

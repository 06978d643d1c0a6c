package lifecycle

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/agrosense/agrosense/internal/domain/models"
)

const (
	// ShelfLifeDays is the fixed number of days after start at which a batch expires.
	ShelfLifeDays = 2
	// ExpiringSoonWindow is how close to derived expiry a batch is flagged.
	ExpiringSoonWindow = 36 * time.Hour

	dateLayoutLen = len("2006-01-02")
)

// ExpiryCalculator derives expiry state from batch dates. All comparisons
// happen on calendar dates in the configured location so time-of-day and
// daylight-saving shifts never change the outcome.
type ExpiryCalculator struct {
	loc *time.Location
	now func() time.Time
}

// NewExpiryCalculator builds a calculator for the given location (UTC when nil).
func NewExpiryCalculator(loc *time.Location) *ExpiryCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return &ExpiryCalculator{loc: loc, now: time.Now}
}

// WithClock replaces the clock used by Now and Today.
func (c *ExpiryCalculator) WithClock(now func() time.Time) *ExpiryCalculator {
	if now != nil {
		c.now = now
	}
	return c
}

// Location returns the calendar location used for date conversions.
func (c *ExpiryCalculator) Location() *time.Location {
	return c.loc
}

// Now returns the current instant from the calculator clock.
func (c *ExpiryCalculator) Now() time.Time {
	return c.now()
}

// Today returns the current calendar date.
func (c *ExpiryCalculator) Today() civil.Date {
	return c.DateOf(c.now())
}

// DateOf drops the time-of-day of t in the calculator location.
func (c *ExpiryCalculator) DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.In(c.loc))
}

// ParseDate parses a YYYY-MM-DD value. Full ISO timestamps, with or without
// a zone offset, are accepted and reduced to the calendar date they name.
// Anything else is an InvalidDateError.
func ParseDate(value string) (civil.Date, error) {
	str := strings.TrimSpace(value)
	if str == "" {
		return civil.Date{}, &InvalidDateError{Value: value, Reason: "empty date"}
	}

	d, err := civil.ParseDate(str)
	if err == nil {
		return d, nil
	}
	if len(str) <= dateLayoutLen {
		return civil.Date{}, &InvalidDateError{Value: value, Err: err}
	}

	if ts, tsErr := time.Parse(time.RFC3339Nano, str); tsErr == nil {
		return civil.DateOf(ts), nil
	}
	if dt, dtErr := civil.ParseDateTime(str); dtErr == nil {
		return dt.Date, nil
	}
	return civil.Date{}, &InvalidDateError{Value: value, Reason: "expected YYYY-MM-DD or an ISO timestamp"}
}

// ProjectedExpiryDate returns start plus the fixed shelf life.
func ProjectedExpiryDate(start civil.Date) civil.Date {
	return start.AddDays(ShelfLifeDays)
}

// DaysElapsed returns the whole days between start and today; negative when
// start lies in the future.
func DaysElapsed(start, today civil.Date) int {
	return today.DaysSince(start)
}

// IsDerivedExpired reports whether an ACTIVE batch is older than the shelf
// life. Batches without a start date or not reported ACTIVE are never
// derived-expired.
func (c *ExpiryCalculator) IsDerivedExpired(b models.Batch, today civil.Date) (bool, error) {
	if strings.TrimSpace(b.StartDate) == "" || b.Status != models.StatusActive {
		return false, nil
	}

	start, err := ParseDate(b.StartDate)
	if err != nil {
		return false, err
	}

	return DaysElapsed(start, today) > ShelfLifeDays, nil
}

// Classify returns EXPIRED for derived-expired batches and the reported
// status otherwise.
func (c *ExpiryCalculator) Classify(b models.Batch, today civil.Date) (models.Status, error) {
	expired, err := c.IsDerivedExpired(b, today)
	if err != nil {
		return b.Status, err
	}
	if expired {
		return models.StatusExpired, nil
	}
	return b.Status, nil
}

// IsExpiringSoon reports whether an ACTIVE batch will become derived-expired
// within ExpiringSoonWindow of now.
func (c *ExpiryCalculator) IsExpiringSoon(b models.Batch, now time.Time) (bool, error) {
	today := c.DateOf(now)
	expired, err := c.IsDerivedExpired(b, today)
	if err != nil || expired {
		return false, err
	}
	if strings.TrimSpace(b.StartDate) == "" || b.Status != models.StatusActive {
		return false, nil
	}

	start, err := ParseDate(b.StartDate)
	if err != nil {
		return false, err
	}

	// Derived expiry starts on the first day where more than ShelfLifeDays have elapsed.
	deadline := start.AddDays(ShelfLifeDays + 1).In(c.loc)
	remaining := deadline.Sub(now)
	return remaining > 0 && remaining <= ExpiringSoonWindow, nil
}

package lifecycle

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/agrosense/internal/domain/models"
)

func date(t *testing.T, value string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(value)
	require.NoError(t, err)
	return d
}

func activeBatch(start string) models.Batch {
	return models.Batch{BatchID: "B-001", StartDate: start, Status: models.StatusActive}
}

func TestIsDerivedExpiredBoundary(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)

	cases := []struct {
		today string
		want  bool
	}{
		{"2024-06-01", false},
		{"2024-06-02", false},
		{"2024-06-03", false},
		{"2024-06-04", true},
		{"2024-07-01", true},
	}

	for _, tc := range cases {
		got, err := calc.IsDerivedExpired(activeBatch("2024-06-01"), date(t, tc.today))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "today=%s", tc.today)
	}
}

func TestIsDerivedExpiredOnlyForActive(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)
	today := date(t, "2024-08-01")

	for _, status := range []models.Status{models.StatusExpired, "SAFE", ""} {
		b := models.Batch{StartDate: "2024-06-01", Status: status}
		got, err := calc.IsDerivedExpired(b, today)
		require.NoError(t, err)
		assert.False(t, got, "status=%q", status)
	}
}

func TestIsDerivedExpiredMissingStartDate(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)

	got, err := calc.IsDerivedExpired(activeBatch("  "), date(t, "2024-06-10"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsDerivedExpiredFutureStart(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)

	got, err := calc.IsDerivedExpired(activeBatch("2024-06-20"), date(t, "2024-06-01"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsDerivedExpiredMalformedDate(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)

	for _, value := range []string{
		"01/06/2024",
		"2024-06-01garbage",
		"2024-06-01 not a date",
		"2024-06-01T99:99",
		"2024-06-01T25:00:00Z",
		"2024-06-1",
	} {
		_, err := calc.IsDerivedExpired(activeBatch(value), date(t, "2024-06-10"))
		var dateErr *InvalidDateError
		require.True(t, errors.As(err, &dateErr), "value=%q", value)
		assert.Equal(t, value, dateErr.Value)
	}
}

func TestIsDerivedExpiredAcceptsTimestamps(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)

	got, err := calc.IsDerivedExpired(activeBatch("2024-06-01T23:59:00Z"), date(t, "2024-06-03"))
	require.NoError(t, err)
	assert.False(t, got)

	got, err = calc.IsDerivedExpired(activeBatch("2024-06-01T00:00:00"), date(t, "2024-06-04"))
	require.NoError(t, err)
	assert.True(t, got)

	// The date written in the timestamp counts, whatever its offset.
	start, err := ParseDate("2024-06-01T23:30:00.000+05:30")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", start.String())
}

func TestProjectedExpiryDateRollsOver(t *testing.T) {
	assert.Equal(t, "2024-02-01", ProjectedExpiryDate(date(t, "2024-01-30")).String())
	assert.Equal(t, "2024-03-01", ProjectedExpiryDate(date(t, "2024-02-28")).String())
	assert.Equal(t, "2025-01-01", ProjectedExpiryDate(date(t, "2024-12-30")).String())

	start := date(t, "2024-06-01")
	assert.Equal(t, ProjectedExpiryDate(start), ProjectedExpiryDate(start))
}

func TestClassify(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)
	today := date(t, "2024-06-04")

	status, err := calc.Classify(activeBatch("2024-06-01"), today)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, status)

	status, err = calc.Classify(activeBatch("2024-06-02"), today)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)

	status, err = calc.Classify(models.Batch{StartDate: "2024-06-03", Status: models.StatusExpired}, today)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, status)

	status, err = calc.Classify(models.Batch{StartDate: "2024-06-01", Status: "PENDING_SYNC"}, today)
	require.NoError(t, err)
	assert.Equal(t, models.Status("PENDING_SYNC"), status)
}

func TestIsExpiringSoonWindow(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)
	b := activeBatch("2024-06-01")

	cases := []struct {
		now  time.Time
		want bool
	}{
		{time.Date(2024, 6, 2, 11, 59, 0, 0, time.UTC), false},
		{time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		got, err := calc.IsExpiringSoon(b, tc.now)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "now=%s", tc.now)
	}

	got, err := calc.IsExpiringSoon(models.Batch{StartDate: "2024-06-01", Status: models.StatusExpired}, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestDateArithmeticIgnoresDaylightSaving(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	calc := NewExpiryCalculator(loc)

	// Clocks jump forward on 2024-03-10; a 23 hour day must still count as one day.
	now := time.Date(2024, 3, 12, 0, 30, 0, 0, loc)
	today := calc.DateOf(now)
	assert.Equal(t, "2024-03-12", today.String())

	expired, err := calc.IsDerivedExpired(activeBatch("2024-03-09"), today)
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = calc.IsDerivedExpired(activeBatch("2024-03-10"), today)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestDescribeKeepsReportedAndDerivedStatus(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)
	now := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)

	b := activeBatch("2024-06-01")
	b.GrowthDays = 90
	b.MaintenanceLogs = []models.MaintenanceLog{
		{Action: models.ActionWatering, Timestamp: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)},
		{Action: models.ActionHumidityCheck, Timestamp: time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)},
	}

	view := calc.Describe(b, now)
	assert.Equal(t, models.StatusActive, view.ReportedStatus)
	assert.Equal(t, models.StatusExpired, view.DerivedStatus)
	assert.True(t, view.DerivedExpired)
	assert.False(t, view.ExpiringSoon)
	assert.Equal(t, models.StageSpawn, view.Stage)
	assert.Equal(t, "2024-06-03", view.ProjectedExpiryDate)
	assert.Equal(t, "2024-08-30", view.EstimatedHarvestDate)
	require.NotNil(t, view.DaysSinceSpawn)
	assert.Equal(t, 3, *view.DaysSinceSpawn)
	require.Len(t, view.RecentLogs, 2)
	assert.Equal(t, models.ActionHumidityCheck, view.RecentLogs[0].Action)
	assert.Equal(t, models.ActionWatering, b.MaintenanceLogs[0].Action)
}

func TestDescribeMalformedDate(t *testing.T) {
	calc := NewExpiryCalculator(time.UTC)

	view := calc.Describe(models.Batch{BatchID: "B-9", StartDate: "soon", Status: models.StatusActive}, time.Now())
	assert.NotEmpty(t, view.DateError)
	assert.Equal(t, models.StatusActive, view.DerivedStatus)
	assert.False(t, view.DerivedExpired)
	assert.Nil(t, view.DaysSinceSpawn)
}

package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absentify/allowance-engine/generic"
)

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

// =============================================================================
// FISCAL YEAR TESTS
// =============================================================================

func TestFiscalYearOf_CalendarYear(t *testing.T) {
	year, p := generic.FiscalYearOf(time.January, date(2025, time.June, 15))

	assert.Equal(t, 2025, year)
	assert.Equal(t, date(2025, time.January, 1), p.Start)
	assert.Equal(t, date(2026, time.January, 1), p.End)
}

func TestFiscalYearOf_AprilStart(t *testing.T) {
	// GIVEN: Fiscal year starting in April
	// WHEN: Looking up a date in February
	// THEN: It belongs to the fiscal year that started the previous April
	year, p := generic.FiscalYearOf(time.April, date(2026, time.February, 10))

	assert.Equal(t, 2025, year)
	assert.Equal(t, date(2025, time.April, 1), p.Start)
	assert.Equal(t, date(2026, time.April, 1), p.End)

	year, p = generic.FiscalYearOf(time.April, date(2026, time.April, 1))
	assert.Equal(t, 2026, year)
	assert.Equal(t, date(2026, time.April, 1), p.Start)
}

func TestPeriod_HalfOpen(t *testing.T) {
	p := generic.FiscalYear(time.January, 2025)

	assert.True(t, p.Contains(date(2025, time.January, 1)))
	assert.True(t, p.Contains(date(2025, time.December, 31)))
	assert.False(t, p.Contains(date(2026, time.January, 1)), "end is exclusive")
	assert.Len(t, p.Days(), 365)
}

func TestPeriod_NextPrevious(t *testing.T) {
	p := generic.FiscalYear(time.September, 2024)

	assert.Equal(t, generic.FiscalYear(time.September, 2025), p.Next())
	assert.Equal(t, generic.FiscalYear(time.September, 2023), p.Previous())
}

func TestPeriod_Overlaps(t *testing.T) {
	p := generic.FiscalYear(time.January, 2025)

	assert.True(t, p.Overlaps(date(2024, time.December, 30), date(2025, time.January, 2)))
	assert.False(t, p.Overlaps(date(2026, time.January, 1), date(2026, time.January, 3)))
	assert.False(t, p.Overlaps(date(2024, time.December, 1), date(2024, time.December, 31)))
}

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

func TestErrors_Classes(t *testing.T) {
	assert.True(t, generic.IsNotFound(generic.NotFound("member", "m-1")))
	assert.True(t, generic.IsUnauthorized(generic.Unauthorized("admin required")))
	assert.True(t, generic.IsIllegalState(generic.IllegalState("workspace %s has no schedule", "w-1")))

	err := generic.Validation("monday_am_end", "must be after monday_am_start")
	require.True(t, generic.IsValidation(err))
	assert.Equal(t, map[string]string{"monday_am_end": "must be after monday_am_start"}, generic.ValidationDetailsOf(err))
	assert.True(t, generic.IsClientError(err))
	assert.False(t, generic.IsClientError(generic.IllegalState("x")))
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := generic.ParseDate("2025-13-01")
	assert.True(t, generic.IsValidation(err))
}

package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Fiscal-year bucket
// =============================================================================

// Period is the half-open date range [Start, End) of one allowance bucket.
//
// Examples:
//   - Calendar fiscal year 2025: [2025-01-01, 2026-01-01)
//   - April fiscal year 2025:    [2025-04-01, 2026-04-01)
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the day is within [Start, End).
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.Before(p.End)
}

// Overlaps reports whether the inclusive day range [from, to] shares a day with p.
func (p Period) Overlaps(from, to TimePoint) bool {
	return from.Before(p.End) && to.AfterOrEqual(p.Start)
}

// Days returns all days in the period.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.Before(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Next returns the period of the same length that starts at p.End.
func (p Period) Next() Period {
	months := monthsBetween(p.Start, p.End)
	return Period{Start: p.End, End: p.End.AddMonths(months)}
}

// Previous returns the period of the same length that ends at p.Start.
func (p Period) Previous() Period {
	months := monthsBetween(p.Start, p.End)
	return Period{Start: p.Start.AddMonths(-months), End: p.Start}
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}

func monthsBetween(a, b TimePoint) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// =============================================================================
// FISCAL YEAR CALCULATOR
// =============================================================================

// ValidateFiscalStartMonth checks the workspace setting.
func ValidateFiscalStartMonth(m time.Month) error {
	if m < time.January || m > time.December {
		return Validation("fiscal_year_start_month", fmt.Sprintf("must be 1-12, got %d", m))
	}
	return nil
}

// FiscalYear returns the bucket labelled year: it starts on the 1st of
// startMonth of that calendar year and lasts twelve months.
func FiscalYear(startMonth time.Month, year int) Period {
	start := NewTimePoint(year, startMonth, 1)
	return Period{Start: start, End: start.AddYears(1)}
}

// FiscalYearOf returns the label and bucket of the fiscal year containing date.
func FiscalYearOf(startMonth time.Month, date TimePoint) (int, Period) {
	year := date.Year()
	// Before this year's start means we're still in the previous fiscal year
	if date.Month() < startMonth {
		year--
	}
	return year, FiscalYear(startMonth, year)
}

package allowance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// RECALCULATE - Pure rebuild of one member's rows of one type
// =============================================================================

// Usage is one day of an approved, non-canceled request drawing from the
// type. Both units are carried; the type's unit picks one.
type Usage struct {
	Date        generic.TimePoint
	RequestID   generic.RequestID
	LeaveTypeID generic.LeaveTypeID
	Days        decimal.Decimal
	Minutes     int
}

// Amount returns the usage in unit.
func (u Usage) Amount(unit generic.Unit) decimal.Decimal {
	if unit == generic.UnitHours {
		return decimal.NewFromInt(int64(u.Minutes)).Div(decimal.NewFromInt(60))
	}
	return u.Days
}

// LedgerInput is everything Recalculate reads.
type LedgerInput struct {
	Type  AllowanceType
	Rows  []MemberAllowance // one member, one type, any order
	Usage []Usage
	// AsOf decides whether carried allowance has expired.
	AsOf generic.TimePoint
}

// Recalculate returns the rows in year order with expiration, brought
// forward, taken, stats and remaining derived. Input rows are not modified.
//
// Brought forward is only derived for Computed rows that directly follow
// another row; the first row and ManuallySet rows keep their stored value.
// Once AsOf reaches Expiration the carried part that was not used in
// [Start, Expiration) lapses.
func Recalculate(in LedgerInput) []MemberAllowance {
	rows := make([]MemberAllowance, len(in.Rows))
	copy(rows, in.Rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })

	for i := range rows {
		row := &rows[i]
		row.Expiration = expiration(in.Type, *row)

		if i > 0 && row.BroughtForwardState == Computed && rows[i-1].Year == row.Year-1 {
			bf := carry(rows[i-1].Remaining, in.Type.MaxCarryForward)
			if row.Expiration != nil && !in.AsOf.Before(*row.Expiration) {
				used := sumUsage(in.Usage, in.Type.Unit, generic.Period{Start: row.Start, End: *row.Expiration}).total
				bf = decimal.Min(bf, used)
			}
			row.BroughtForward = bf
		}

		agg := sumUsage(in.Usage, in.Type.Unit, row.Period())
		row.Taken = agg.total
		row.LeaveTypesStats = agg.stats
		row.Settle()
	}
	return rows
}

// carry is what a remaining balance contributes to the next year.
func carry(remaining decimal.Decimal, ceiling *decimal.Decimal) decimal.Decimal {
	if remaining.IsNegative() {
		return decimal.Zero
	}
	if ceiling != nil && remaining.GreaterThan(*ceiling) {
		return *ceiling
	}
	return remaining
}

func expiration(t AllowanceType, row MemberAllowance) *generic.TimePoint {
	if t.CarryForwardMonthsAfterFiscalYear <= 0 {
		return nil
	}
	e := row.Start.AddMonths(t.CarryForwardMonthsAfterFiscalYear)
	return &e
}

type aggregate struct {
	total decimal.Decimal
	stats map[generic.LeaveTypeID]LeaveTypeStat
}

func sumUsage(usage []Usage, unit generic.Unit, period generic.Period) aggregate {
	agg := aggregate{total: decimal.Zero, stats: map[generic.LeaveTypeID]LeaveTypeStat{}}
	seen := map[generic.LeaveTypeID]map[generic.RequestID]bool{}

	for _, u := range usage {
		if !period.Contains(u.Date) {
			continue
		}
		amount := u.Amount(unit)
		agg.total = agg.total.Add(amount)

		stat := agg.stats[u.LeaveTypeID]
		stat.Amount = stat.Amount.Add(amount)
		if seen[u.LeaveTypeID] == nil {
			seen[u.LeaveTypeID] = map[generic.RequestID]bool{}
		}
		if !seen[u.LeaveTypeID][u.RequestID] {
			seen[u.LeaveTypeID][u.RequestID] = true
			stat.Requests++
		}
		agg.stats[u.LeaveTypeID] = stat
	}
	return agg
}

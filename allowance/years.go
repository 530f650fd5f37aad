package allowance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
)

// YearsToProvision returns the fiscal years a member needs rows for on
// today: the current and the next one, plus the previous one when the
// member's employment started before the current fiscal year.
func YearsToProvision(startMonth time.Month, today generic.TimePoint, employmentStart *generic.TimePoint) []int {
	current, period := generic.FiscalYearOf(startMonth, today)
	years := []int{current, current + 1}
	if employmentStart != nil && employmentStart.Before(period.Start) {
		years = append([]int{current - 1}, years...)
	}
	return years
}

// NewYearRow is a fresh bucket granting the type's default allowance.
func NewYearRow(t AllowanceType, workspaceID generic.WorkspaceID, memberID generic.MemberID, startMonth time.Month, year int) MemberAllowance {
	period := generic.FiscalYear(startMonth, year)
	row := MemberAllowance{
		ID:                  generic.NewID(),
		WorkspaceID:         workspaceID,
		MemberID:            memberID,
		AllowanceTypeID:     t.ID,
		Year:                year,
		Allowance:           t.DefaultAllowance,
		BroughtForward:      decimal.Zero,
		BroughtForwardState: Computed,
		CompensatoryTimeOff: decimal.Zero,
		Taken:               decimal.Zero,
		Start:               period.Start,
		End:                 period.End,
		LeaveTypesStats:     map[generic.LeaveTypeID]LeaveTypeStat{},
	}
	row.Settle()
	return row
}

/*
Package allowance keeps the per-member, per-type, per-fiscal-year allowance
ledger and the default-type configuration of each member.

PURPOSE:
  A MemberAllowance row is one bucket: what was granted, what was carried
  over from the previous year, compensatory time, what approved requests
  took, and what remains. Rows are derived state: Recalculate rebuilds them
  from the rows themselves plus the member's request usage, and Service
  persists the result whenever something that influences it changes.

KEY CONCEPTS:
  - Ledger identity:   remaining = allowance + brought_forward
                       + compensatory_time_off - taken
  - Carry forward:     brought_forward of year N+1 is derived from year N's
                       remaining, capped by the type's max_carry_forward
  - Manual override:   once an admin sets brought_forward by hand the row is
                       ManuallySet and recalculation leaves it alone
  - Default type:      exactly one configuration per member is the default
                       (configuration.go)

SEE ALSO:
  - ledger.go:        Recalculate, the pure core
  - service.go:       Recompute and the operations that trigger it
  - timeoff.Breakdown: where usage comes from
*/
package allowance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// ALLOWANCE TYPE
// =============================================================================

// AllowanceType is a named bucket such as "Vacation".
type AllowanceType struct {
	ID          generic.AllowanceTypeID
	WorkspaceID generic.WorkspaceID
	Name        string
	Unit        generic.Unit
	// IgnoreAllowanceLimit lets requests drive remaining below zero.
	IgnoreAllowanceLimit bool
	// MaxCarryForward caps brought_forward. nil means unlimited.
	MaxCarryForward *decimal.Decimal
	// CarryForwardMonthsAfterFiscalYear is how long carried allowance stays
	// usable into the new year. 0 means it never expires.
	CarryForwardMonthsAfterFiscalYear int
	DefaultAllowance                  decimal.Decimal
	Active                            bool
	CreatedAt                         time.Time
}

func (t AllowanceType) Validate() error {
	details := map[string]string{}
	if t.Name == "" {
		details["name"] = "required"
	}
	if !t.Unit.Valid() {
		details["unit"] = fmt.Sprintf("unknown unit %q", t.Unit)
	}
	if t.MaxCarryForward != nil && t.MaxCarryForward.IsNegative() {
		details["max_carry_forward"] = "must not be negative"
	}
	if t.CarryForwardMonthsAfterFiscalYear < 0 || t.CarryForwardMonthsAfterFiscalYear > 12 {
		details["carry_forward_months_after_fiscal_year"] = "must be between 0 and 12"
	}
	if t.DefaultAllowance.IsNegative() {
		details["default_allowance"] = "must not be negative"
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// =============================================================================
// MEMBER ALLOWANCE
// =============================================================================

// BroughtForwardState tags who owns brought_forward. The transition
// Computed -> ManuallySet is one-way.
type BroughtForwardState int

const (
	Computed BroughtForwardState = iota
	ManuallySet
)

func (s BroughtForwardState) String() string {
	if s == ManuallySet {
		return "manually_set"
	}
	return "computed"
}

// Overwrite is the persisted overwrite_brought_forward flag.
func (s BroughtForwardState) Overwrite() bool { return s == ManuallySet }

// StateFromOverwrite maps the persisted flag back to the state.
func StateFromOverwrite(overwrite bool) BroughtForwardState {
	if overwrite {
		return ManuallySet
	}
	return Computed
}

// LeaveTypeStat is the usage of one leave type inside a bucket.
type LeaveTypeStat struct {
	Amount   decimal.Decimal `json:"amount"`
	Requests int             `json:"requests"`
}

// MemberAllowance is one member x type x fiscal-year bucket.
type MemberAllowance struct {
	ID                  string
	WorkspaceID         generic.WorkspaceID
	MemberID            generic.MemberID
	AllowanceTypeID     generic.AllowanceTypeID
	Year                int
	Allowance           decimal.Decimal
	BroughtForward      decimal.Decimal
	BroughtForwardState BroughtForwardState
	CompensatoryTimeOff decimal.Decimal
	Taken               decimal.Decimal
	Remaining           decimal.Decimal
	Start               generic.TimePoint
	End                 generic.TimePoint // exclusive
	Expiration          *generic.TimePoint
	LeaveTypesStats     map[generic.LeaveTypeID]LeaveTypeStat
	UpdatedAt           time.Time
}

// Period is the row's [Start, End) fiscal year.
func (a MemberAllowance) Period() generic.Period {
	return generic.Period{Start: a.Start, End: a.End}
}

// Settle recomputes Remaining from the other quantities.
func (a *MemberAllowance) Settle() {
	a.Remaining = a.Allowance.Add(a.BroughtForward).Add(a.CompensatoryTimeOff).Sub(a.Taken)
}

// Balanced reports whether the ledger identity holds.
func (a MemberAllowance) Balanced() bool {
	return a.Remaining.Equal(a.Allowance.Add(a.BroughtForward).Add(a.CompensatoryTimeOff).Sub(a.Taken))
}

// SameLedger compares everything Recalculate derives, ignoring ids and
// timestamps. Service uses it to skip writes that would change nothing.
func SameLedger(a, b MemberAllowance) bool {
	if !a.Allowance.Equal(b.Allowance) ||
		!a.BroughtForward.Equal(b.BroughtForward) ||
		a.BroughtForwardState != b.BroughtForwardState ||
		!a.CompensatoryTimeOff.Equal(b.CompensatoryTimeOff) ||
		!a.Taken.Equal(b.Taken) ||
		!a.Remaining.Equal(b.Remaining) ||
		!a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
		return false
	}
	if (a.Expiration == nil) != (b.Expiration == nil) {
		return false
	}
	if a.Expiration != nil && !a.Expiration.Equal(*b.Expiration) {
		return false
	}
	if len(a.LeaveTypesStats) != len(b.LeaveTypesStats) {
		return false
	}
	for id, s := range a.LeaveTypesStats {
		o, ok := b.LeaveTypesStats[id]
		if !ok || o.Requests != s.Requests || !o.Amount.Equal(s.Amount) {
			return false
		}
	}
	return true
}

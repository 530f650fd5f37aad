/*
Package generic provides the shared value types of the allowance engine.

PURPOSE:
  This package contains the domain-agnostic building blocks used by every
  other package: quantities with units, typed identifiers, calendar dates,
  fiscal-year periods, the error taxonomy and the audit log contract.
  Nothing in here knows about schedules, requests or allowance rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days, 7.5 hours)
  - IDs: Type-safe identifiers for workspaces, members, schedules, types

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift in
     half-day and hour arithmetic (0.5 + 0.5 + ... must be exact)
  2. Type Safety: Strong typing for IDs prevents mixing member/type IDs

USAGE:
  need := generic.Amount{Value: decimal.RequireFromString("0.5"), Unit: generic.UnitDays}
  fmt.Println(need) // 0.5 days

SEE ALSO:
  - period.go: Fiscal-year buckets
  - errors.go: Unauthorized / NotFound / IllegalState / Validation
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (allowances are kept in days or hours)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

// Valid reports whether u is a unit an allowance type may be kept in.
func (u Unit) Valid() bool { return u == UnitDays || u == UnitHours }

func (a Amount) String() string { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkspaceID string
type MemberID string
type ScheduleID string
type AllowanceTypeID string
type LeaveTypeID string
type RequestID string
type PublicHolidayID string
type HolidayDayID string

// NewID returns a fresh random identifier.
func NewID() string { return uuid.NewString() }

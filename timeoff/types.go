// Package timeoff turns leave requests into per-day absence durations.
// It knows nothing about storage: schedules and holidays are passed in as
// lookups and the result is a Breakdown the allowance ledger aggregates.
package timeoff

import (
	"fmt"
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// LeaveUnit is the granularity a leave type is requested in.
type LeaveUnit string

const (
	UnitDays      LeaveUnit = "days"
	UnitHalfDays  LeaveUnit = "half_days"
	UnitHours     LeaveUnit = "hours"
	UnitMinutes30 LeaveUnit = "minutes_30"
	UnitMinutes15 LeaveUnit = "minutes_15"
	UnitMinutes10 LeaveUnit = "minutes_10"
	UnitMinutes5  LeaveUnit = "minutes_5"
	UnitMinutes1  LeaveUnit = "minutes_1"
)

var leaveUnits = map[LeaveUnit]bool{
	UnitDays: true, UnitHalfDays: true, UnitHours: true, UnitMinutes30: true,
	UnitMinutes15: true, UnitMinutes10: true, UnitMinutes5: true, UnitMinutes1: true,
}

func (u LeaveUnit) Valid() bool { return leaveUnits[u] }

// Accounting is the allowance unit durations of this leave unit are stored in.
func (u LeaveUnit) Accounting() generic.Unit {
	if u == UnitDays || u == UnitHalfDays || u == "" {
		return generic.UnitDays
	}
	return generic.UnitHours
}

// LeaveType is a kind of absence (vacation, sick leave, ...).
type LeaveType struct {
	ID          generic.LeaveTypeID
	WorkspaceID generic.WorkspaceID
	Name        string
	// TakeFromAllowance makes approved requests count against AllowanceTypeID.
	TakeFromAllowance    bool
	AllowanceTypeID      *generic.AllowanceTypeID
	LeaveUnit            LeaveUnit
	IgnoreSchedule       bool
	IgnorePublicHolidays bool
	CreatedAt            time.Time
}

func (lt LeaveType) Validate() error {
	details := map[string]string{}
	if lt.Name == "" {
		details["name"] = "required"
	}
	if !lt.LeaveUnit.Valid() {
		details["leave_unit"] = fmt.Sprintf("unknown leave unit %q", lt.LeaveUnit)
	}
	if lt.TakeFromAllowance && lt.AllowanceTypeID == nil {
		details["allowance_type_id"] = "required when take_from_allowance is set"
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// Draws reports whether the leave type counts against allowance type id.
func (lt LeaveType) Draws(id generic.AllowanceTypeID) bool {
	return lt.TakeFromAllowance && lt.AllowanceTypeID != nil && *lt.AllowanceTypeID == id
}

// =============================================================================
// SPAN - The dates and half-day edges of a request
// =============================================================================

type StartAt string

const (
	StartMorning   StartAt = "morning"
	StartAfternoon StartAt = "afternoon"
)

type EndAt string

const (
	EndLunchtime EndAt = "lunchtime"
	EndOfDay     EndAt = "end_of_day"
)

// Span is an inclusive date range with half-day edges.
type Span struct {
	Start   generic.TimePoint
	End     generic.TimePoint
	StartAt StartAt
	EndAt   EndAt
}

// FullDays spans whole days from start to end.
func FullDays(start, end generic.TimePoint) Span {
	return Span{Start: start, End: end, StartAt: StartMorning, EndAt: EndOfDay}
}

func (s Span) Validate() error {
	details := map[string]string{}
	if s.Start.IsZero() {
		details["start"] = "required"
	}
	if s.End.IsZero() {
		details["end"] = "required"
	}
	if !s.Start.IsZero() && !s.End.IsZero() && s.End.Before(s.Start) {
		details["end"] = "must not be before start"
	}
	if s.StartAt != StartMorning && s.StartAt != StartAfternoon {
		details["start_at"] = fmt.Sprintf("unknown start_at %q", s.StartAt)
	}
	if s.EndAt != EndLunchtime && s.EndAt != EndOfDay {
		details["end_at"] = fmt.Sprintf("unknown end_at %q", s.EndAt)
	}
	if s.Start.Equal(s.End) && s.StartAt == StartAfternoon && s.EndAt == EndLunchtime {
		details["end_at"] = "a single day cannot run from afternoon to lunchtime"
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// ValidateFor adds the leave type's restrictions: whole-day units cannot
// start in the afternoon or end at lunchtime.
func (s Span) ValidateFor(lt LeaveType) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if lt.LeaveUnit == UnitDays && (s.StartAt != StartMorning || s.EndAt != EndOfDay) {
		return generic.Validation("start_at", "leave type "+lt.Name+" is taken in whole days")
	}
	return nil
}

// Period is the half-open date range the span touches.
func (s Span) Period() generic.Period {
	return generic.Period{Start: s.Start, End: s.End.AddDays(1)}
}

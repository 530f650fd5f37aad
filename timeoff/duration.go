package timeoff

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/schedule"
)

// =============================================================================
// DURATION CALCULATOR
// =============================================================================
//
// For every calendar day of a span:
//
//   requested = halves the span covers on that day
//   enabled   = halves the schedule in force has switched on
//   absent    = requested ∩ enabled − holiday halves
//
// Days are billed 0.5 per absent half, except on single-half days where a
// deduct_fullday schedule bills the one half as a whole day. A requested
// day that ends up with no absent half is not an error: it is reported as a
// zero portion with a reason so the caller can decide what to do with it.

// ScheduleLookup returns the weekly schedule in force on a date.
// *schedule.Timeline implements it.
type ScheduleLookup interface {
	ScheduleOn(date generic.TimePoint) schedule.WeeklySchedule
}

// HolidayLookup returns the public holiday on a date.
// *holiday.Overlay implements it.
type HolidayLookup interface {
	HolidayOn(date generic.TimePoint) (holiday.Day, bool)
}

// ZeroReason explains a requested day that consumes nothing.
type ZeroReason string

const (
	ReasonNonWorkingDay ZeroReason = "non_working_day"
	ReasonHalfDisabled  ZeroReason = "half_disabled"
	ReasonPublicHoliday ZeroReason = "public_holiday"
)

var halfDay = decimal.NewFromFloat(0.5)

// DayPortion is the result for one calendar day.
type DayPortion struct {
	Date      generic.TimePoint
	Requested schedule.Halves
	Absent    schedule.Halves
	Days      decimal.Decimal
	Minutes   int
	Reason    ZeroReason

	requestedMinutes int
}

func (p DayPortion) Zero() bool { return p.Absent.Empty() }

// Totals is an absence in both units.
type Totals struct {
	Days    decimal.Decimal
	Minutes int
}

func (t Totals) add(days decimal.Decimal, minutes int) Totals {
	return Totals{Days: t.Days.Add(days), Minutes: t.Minutes + minutes}
}

// Amount converts to days or to hours (minutes / 60).
func (t Totals) Amount(unit generic.Unit) generic.Amount {
	if unit == generic.UnitHours {
		return generic.Amount{Value: decimal.NewFromInt(int64(t.Minutes)).Div(decimal.NewFromInt(60)), Unit: unit}
	}
	return generic.Amount{Value: t.Days, Unit: generic.UnitDays}
}

// Breakdown is the per-day result of a span.
type Breakdown struct {
	Portions []DayPortion
	// Duration counts every requested half, ignoring schedule and holidays.
	Duration Totals
	// WorkdayAbsence counts the absent halves only.
	WorkdayAbsence Totals
}

// Within totals the absent halves of days inside period.
func (b Breakdown) Within(period generic.Period) Totals {
	t := Totals{Days: decimal.Zero}
	for _, p := range b.Portions {
		if period.Contains(p.Date) {
			t = t.add(p.Days, p.Minutes)
		}
	}
	return t
}

// Amount is Within converted to unit.
func (b Breakdown) Amount(unit generic.Unit, period generic.Period) generic.Amount {
	return b.Within(period).Amount(unit)
}

// ZeroDays returns the requested days that consume nothing.
func (b Breakdown) ZeroDays() []DayPortion {
	var out []DayPortion
	for _, p := range b.Portions {
		if p.Zero() {
			out = append(out, p)
		}
	}
	return out
}

// Calculator computes breakdowns for one member.
type Calculator struct {
	Schedules ScheduleLookup
	Holidays  HolidayLookup // optional
	Location  *time.Location
}

// Breakdown computes the per-day portions of span under lt's rules.
func (c Calculator) Breakdown(span Span, lt LeaveType) (Breakdown, error) {
	if err := span.Validate(); err != nil {
		return Breakdown{}, err
	}
	if c.Schedules == nil {
		return Breakdown{}, generic.IllegalState("calculator has no schedule lookup")
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}

	b := Breakdown{
		Duration:       Totals{Days: decimal.Zero},
		WorkdayAbsence: Totals{Days: decimal.Zero},
	}
	for d := span.Start; !d.After(span.End); d = d.AddDays(1) {
		p := c.portion(d, requestedOn(span, d), lt, loc)
		b.Portions = append(b.Portions, p)
		b.Duration = b.Duration.add(halfDay.Mul(decimal.NewFromInt(int64(p.Requested.Count()))), p.requestedMinutes)
		b.WorkdayAbsence = b.WorkdayAbsence.add(p.Days, p.Minutes)
	}
	return b, nil
}

func requestedOn(span Span, d generic.TimePoint) schedule.Halves {
	h := schedule.BothHalves
	if d.Equal(span.Start) && span.StartAt == StartAfternoon {
		h.AM = false
	}
	if d.Equal(span.End) && span.EndAt == EndLunchtime {
		h.PM = false
	}
	return h
}

func (c Calculator) portion(d generic.TimePoint, requested schedule.Halves, lt LeaveType, loc *time.Location) DayPortion {
	w := c.Schedules.ScheduleOn(d)
	class := schedule.Classify(w, d)

	enabled := class.Halves()
	deductFullday := class.DeductFullday
	if lt.IgnoreSchedule {
		enabled, deductFullday = schedule.BothHalves, false
	}

	working := requested.Intersect(enabled)
	absent := working
	if !lt.IgnorePublicHolidays && c.Holidays != nil {
		if day, ok := c.Holidays.HolidayOn(d); ok {
			absent = absent.Without(day.Duration.Halves())
		}
	}

	p := DayPortion{Date: d, Requested: requested, Absent: absent, Days: decimal.Zero}
	requested.Each(func(h schedule.Half) {
		p.requestedMinutes += minutes(schedule.RawIntervalFor(w, d, h, loc))
	})

	switch {
	case absent.Empty() && !class.Working && !lt.IgnoreSchedule:
		p.Reason = ReasonNonWorkingDay
		return p
	case working.Empty():
		p.Reason = ReasonHalfDisabled
		return p
	case absent.Empty():
		p.Reason = ReasonPublicHoliday
		return p
	}

	absent.Each(func(h schedule.Half) {
		p.Minutes += minutes(schedule.RawIntervalFor(w, d, h, loc))
	})
	if enabled.Count() == 1 && deductFullday {
		p.Days = decimal.NewFromInt(1)
	} else {
		p.Days = halfDay.Mul(decimal.NewFromInt(int64(absent.Count())))
	}
	return p
}

func minutes(i schedule.Interval) int { return int(i.Duration() / time.Minute) }

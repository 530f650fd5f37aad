package schedule

import (
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// =============================================================================
// CLASSIFIER - What kind of day is a date under a schedule
// =============================================================================

// DayClass describes one date under a weekly schedule.
type DayClass struct {
	Working       bool
	AMEnabled     bool
	PMEnabled     bool
	DeductFullday bool
}

// Halves returns the enabled halves.
func (c DayClass) Halves() Halves { return Halves{AM: c.AMEnabled, PM: c.PMEnabled} }

// Classify maps the date's weekday onto the schedule. DeductFullday is only
// reported when exactly one half is enabled, whatever is stored.
func Classify(w WeeklySchedule, date generic.TimePoint) DayClass {
	d := w.Day(date.Weekday())
	return DayClass{
		Working:       d.AMEnabled || d.PMEnabled,
		AMEnabled:     d.AMEnabled,
		PMEnabled:     d.PMEnabled,
		DeductFullday: d.DeductFullday && d.SingleHalf(),
	}
}

// Interval is a materialized half-day. The zero Interval means "no work".
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) IsZero() bool { return i.Start.IsZero() && i.End.IsZero() }

func (i Interval) Duration() time.Duration {
	if i.IsZero() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// IntervalFor materializes half h of date's weekday in loc. A disabled half
// yields the zero Interval rather than an error.
func IntervalFor(w WeeklySchedule, date generic.TimePoint, h Half, loc *time.Location) Interval {
	d := w.Day(date.Weekday())
	if !d.Enabled(h) {
		return Interval{}
	}
	return boundsOn(d, date, h, loc)
}

// RawIntervalFor materializes half h whether or not it is enabled.
func RawIntervalFor(w WeeklySchedule, date generic.TimePoint, h Half, loc *time.Location) Interval {
	return boundsOn(w.Day(date.Weekday()), date, h, loc)
}

func boundsOn(d DaySchedule, date generic.TimePoint, h Half, loc *time.Location) Interval {
	start, end := d.Bounds(h)
	return Interval{Start: start.On(date, loc), End: end.On(date, loc)}
}

// =============================================================================
// HALVES - Set of half-days
// =============================================================================

type Halves struct {
	AM bool
	PM bool
}

var (
	NoHalves   = Halves{}
	BothHalves = Halves{AM: true, PM: true}
)

func (h Halves) Intersect(o Halves) Halves { return Halves{AM: h.AM && o.AM, PM: h.PM && o.PM} }
func (h Halves) Without(o Halves) Halves   { return Halves{AM: h.AM && !o.AM, PM: h.PM && !o.PM} }
func (h Halves) Has(x Half) bool           { return (x == AM && h.AM) || (x == PM && h.PM) }
func (h Halves) Empty() bool               { return !h.AM && !h.PM }

func (h Halves) Count() int {
	n := 0
	if h.AM {
		n++
	}
	if h.PM {
		n++
	}
	return n
}

// Each calls fn for every member half, morning first.
func (h Halves) Each(fn func(Half)) {
	if h.AM {
		fn(AM)
	}
	if h.PM {
		fn(PM)
	}
}

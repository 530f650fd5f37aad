package schedule

import (
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// MinimumGap is the shortest working half. Moving a boundary pushes the
// following boundaries forward (or the preceding ones backward) until every
// half is at least this long and the morning ends no later than the
// afternoon starts.
const MinimumGap = 30 * time.Minute

// Boundary names one of the four time fields of a DaySchedule, in day order.
type Boundary int

const (
	BoundaryAMStart Boundary = iota
	BoundaryAMEnd
	BoundaryPMStart
	BoundaryPMEnd
)

func (b Boundary) String() string {
	switch b {
	case BoundaryAMStart:
		return "am_start"
	case BoundaryAMEnd:
		return "am_end"
	case BoundaryPMStart:
		return "pm_start"
	default:
		return "pm_end"
	}
}

// gapAfter is the minimum distance between boundary i and i+1: a full gap
// inside each half, none over lunch (am_end may equal pm_start).
var gapAfter = [3]int{int(MinimumGap / time.Minute), 0, int(MinimumGap / time.Minute)}

func (d DaySchedule) boundaries() [4]TimeOfDay {
	return [4]TimeOfDay{d.AMStart, d.AMEnd, d.PMStart, d.PMEnd}
}

func (d DaySchedule) withBoundaries(b [4]TimeOfDay) DaySchedule {
	d.AMStart, d.AMEnd, d.PMStart, d.PMEnd = b[0], b[1], b[2], b[3]
	return d
}

// Cascade keeps the edited boundary where it is and moves its neighbours.
func (d DaySchedule) Cascade(edited Boundary) DaySchedule {
	b := d.boundaries()
	for i := int(edited) + 1; i < len(b); i++ {
		if floor := b[i-1].Minutes() + gapAfter[i-1]; b[i].Minutes() < floor {
			b[i] = b[i-1].AddMinutes(gapAfter[i-1])
		}
	}
	for i := int(edited) - 1; i >= 0; i-- {
		if ceil := b[i+1].Minutes() - gapAfter[i]; b[i].Minutes() > ceil {
			b[i] = b[i+1].AddMinutes(-gapAfter[i])
		}
	}
	return d.withBoundaries(b)
}

// WithBoundary sets one boundary of a weekday and cascades the rest.
func (w WeeklySchedule) WithBoundary(wd time.Weekday, b Boundary, t TimeOfDay) WeeklySchedule {
	d := w.Days[wd]
	bs := d.boundaries()
	bs[b] = t
	w.Days[wd] = normalizeDay(d.withBoundaries(bs).Cascade(b))
	return w
}

// Normalize clears DeductFullday where it has no meaning. Times are left as
// submitted; only WithBoundary moves them.
func Normalize(w WeeklySchedule) WeeklySchedule {
	for i := range w.Days {
		w.Days[i] = normalizeDay(w.Days[i])
	}
	return w
}

func normalizeDay(d DaySchedule) DaySchedule {
	if !d.SingleHalf() {
		d.DeductFullday = false
	}
	return d
}

// Validate checks every day and reports all offending fields at once.
func Validate(w WeeklySchedule) error {
	details := map[string]string{}
	for _, wd := range Weekdays {
		d := w.Days[wd]
		name := WeekdayName(wd)

		checkHalf(details, name+"_am", d.AMEnabled, d.AMStart, d.AMEnd)
		checkHalf(details, name+"_pm", d.PMEnabled, d.PMStart, d.PMEnd)
		if d.AMEnabled && d.PMEnabled && d.AMEnd.After(d.PMStart) {
			details[name+"_pm_start"] = "must not be before " + name + "_am_end"
		}
		if d.DeductFullday && !d.SingleHalf() {
			details[name+"_deduct_fullday"] = "only allowed when exactly one half is enabled"
		}
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

func checkHalf(details map[string]string, prefix string, enabled bool, start, end TimeOfDay) {
	switch {
	case !enabled:
	case start.Minutes() == 0 && end.Minutes() == 0:
		details[prefix+"_start"] = "required when the half is enabled"
		details[prefix+"_end"] = "required when the half is enabled"
	case !start.Before(end):
		details[prefix+"_end"] = "must be after " + prefix + "_start"
	}
}

// Prepare clears DeductFullday where needed and validates the submitted
// times without repairing them. Every schedule write goes through it.
func Prepare(w WeeklySchedule) (WeeklySchedule, error) {
	w = Normalize(w)
	if err := Validate(w); err != nil {
		return WeeklySchedule{}, err
	}
	return w, nil
}

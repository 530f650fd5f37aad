/*
Package schedule models weekly half-day work schedules and answers which
schedule version applies on a date.

PURPOSE:
  A WeeklySchedule is seven DaySchedules, each made of a morning (am) and an
  afternoon (pm) interval that can be switched off independently. A workspace
  has exactly one WeeklySchedule as its default; a member may have any number
  of dated versions that override it from their `from` date onwards.

KEY CONCEPTS:
  - TimeOfDay:       wall-clock time without date or zone (timeofday.go)
  - WeeklySchedule:  7 x {am_start, am_end, pm_start, pm_end, am_enabled,
                     pm_enabled, deduct_fullday} (this file)
  - Cascade:         boundary edits push neighbours by a 30 minute gap
                     (normalize.go)
  - Timeline:        "latest from <= date wins" lookup (resolver.go)
  - Classify:        working / half-day / non-working per date (classifier.go)

PURITY:
  Everything except Resolver is a pure function over values. Resolver only
  reads from its Store.
*/
package schedule

import (
	"strings"
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// Half is one of the two intervals of a working day.
type Half string

const (
	AM Half = "am"
	PM Half = "pm"
)

// DaySchedule is the template of one weekday.
type DaySchedule struct {
	AMStart   TimeOfDay
	AMEnd     TimeOfDay
	PMStart   TimeOfDay
	PMEnd     TimeOfDay
	AMEnabled bool
	PMEnabled bool
	// DeductFullday bills a half-day absence as a full day. Only meaningful
	// when exactly one half is enabled.
	DeductFullday bool
}

// Enabled reports whether half h is a working half.
func (d DaySchedule) Enabled(h Half) bool {
	if h == AM {
		return d.AMEnabled
	}
	return d.PMEnabled
}

// Bounds returns start and end of half h.
func (d DaySchedule) Bounds(h Half) (TimeOfDay, TimeOfDay) {
	if h == AM {
		return d.AMStart, d.AMEnd
	}
	return d.PMStart, d.PMEnd
}

// SingleHalf reports whether exactly one half is enabled.
func (d DaySchedule) SingleHalf() bool { return d.AMEnabled != d.PMEnabled }

// WeeklySchedule is indexed by time.Weekday (Sunday = 0).
type WeeklySchedule struct {
	Days [7]DaySchedule
}

func (w WeeklySchedule) Day(wd time.Weekday) DaySchedule { return w.Days[wd] }

// WithDay returns a copy with one weekday replaced.
func (w WeeklySchedule) WithDay(wd time.Weekday, d DaySchedule) WeeklySchedule {
	w.Days[wd] = d
	return w
}

// Weekdays lists weekdays Monday first, the order schedules are shown and stored in.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayName is the lower-case column prefix of a weekday ("monday").
func WeekdayName(wd time.Weekday) string { return strings.ToLower(wd.String()) }

// ParseWeekday is the inverse of WeekdayName.
func ParseWeekday(s string) (time.Weekday, bool) {
	for _, wd := range Weekdays {
		if WeekdayName(wd) == strings.ToLower(s) {
			return wd, true
		}
	}
	return 0, false
}

// DefaultTemplate is the schedule every workspace starts with:
// 08:00-12:00 and 13:00-17:00 Monday to Friday, weekend off.
func DefaultTemplate() WeeklySchedule {
	var w WeeklySchedule
	for _, wd := range Weekdays {
		working := wd != time.Saturday && wd != time.Sunday
		w.Days[wd] = DaySchedule{
			AMStart:   NewTimeOfDay(8, 0),
			AMEnd:     NewTimeOfDay(12, 0),
			PMStart:   NewTimeOfDay(13, 0),
			PMEnd:     NewTimeOfDay(17, 0),
			AMEnabled: working,
			PMEnabled: working,
		}
	}
	return w
}

// =============================================================================
// PERSISTED ROWS
// =============================================================================

// WorkspaceSchedule is the workspace-wide default. One per workspace, never deleted.
type WorkspaceSchedule struct {
	ID          generic.ScheduleID
	WorkspaceID generic.WorkspaceID
	Schedule    WeeklySchedule
	UpdatedAt   time.Time
}

// MemberSchedule overrides the workspace default from From onwards, until
// the next version's From.
type MemberSchedule struct {
	ID          generic.ScheduleID
	WorkspaceID generic.WorkspaceID
	MemberID    generic.MemberID
	From        generic.TimePoint
	Schedule    WeeklySchedule
	CreatedAt   time.Time
}

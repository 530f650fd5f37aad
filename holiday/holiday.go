/*
Package holiday holds public holiday calendars and the overlay that removes
holiday halves from a member's working days.

PURPOSE:
  A workspace keeps any number of calendars (one per country/subdivision it
  cares about). Each member points at zero or one calendar. A holiday day
  covers the whole day, only the morning or only the afternoon.

SEE ALSO:
  - schedule.Halves: the set the overlay subtracts from
  - timeoff.Calculator: the only consumer of Overlay
*/
package holiday

import (
	"fmt"
	"time"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/schedule"
)

// Duration is the part of a day a public holiday covers.
type Duration string

const (
	FullDay   Duration = "full_day"
	Morning   Duration = "morning"
	Afternoon Duration = "afternoon"
)

func (d Duration) Valid() bool {
	return d == FullDay || d == Morning || d == Afternoon
}

// Halves returns the halves the duration covers.
func (d Duration) Halves() schedule.Halves {
	switch d {
	case Morning:
		return schedule.Halves{AM: true}
	case Afternoon:
		return schedule.Halves{PM: true}
	default:
		return schedule.BothHalves
	}
}

// Calendar is a named set of holiday days.
type Calendar struct {
	ID              generic.PublicHolidayID
	WorkspaceID     generic.WorkspaceID
	Name            string
	CountryCode     string
	SubdivisionCode string
	CreatedAt       time.Time
}

func (c Calendar) Validate() error {
	details := map[string]string{}
	if c.Name == "" {
		details["name"] = "required"
	}
	if c.CountryCode != "" && len(c.CountryCode) != 2 {
		details["country_code"] = "must be an ISO 3166-1 alpha-2 code"
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// Day is one holiday in a calendar.
type Day struct {
	ID         generic.HolidayDayID
	CalendarID generic.PublicHolidayID
	Date       generic.TimePoint
	Name       string
	Year       int
	Duration   Duration
}

func (d Day) Validate() error {
	details := map[string]string{}
	if d.Date.IsZero() {
		details["date"] = "required"
	}
	if d.Name == "" {
		details["name"] = "required"
	}
	if !d.Duration.Valid() {
		details["duration"] = fmt.Sprintf("unknown duration %q", d.Duration)
	}
	if !d.Date.IsZero() && d.Year != 0 && d.Year != d.Date.Year() {
		details["year"] = "must match the year of date"
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// =============================================================================
// OVERLAY
// =============================================================================

// Overlay answers "is this half a holiday" for one calendar. The zero value
// and a nil *Overlay cover nothing.
type Overlay struct {
	days map[generic.TimePoint]Day
}

// NewOverlay indexes days by date. When a calendar lists the same date twice
// the covered halves are merged.
func NewOverlay(days []Day) *Overlay {
	o := &Overlay{days: make(map[generic.TimePoint]Day, len(days))}
	for _, d := range days {
		key := generic.DateOf(d.Date.Time)
		if prev, ok := o.days[key]; ok && prev.Duration != d.Duration {
			d.Duration = FullDay
		}
		o.days[key] = d
	}
	return o
}

// HolidayOn returns the holiday on date, if any.
func (o *Overlay) HolidayOn(date generic.TimePoint) (Day, bool) {
	if o == nil {
		return Day{}, false
	}
	d, ok := o.days[generic.DateOf(date.Time)]
	return d, ok
}

// Covered returns the halves of date the holiday covers.
func (o *Overlay) Covered(date generic.TimePoint) schedule.Halves {
	d, ok := o.HolidayOn(date)
	if !ok {
		return schedule.NoHalves
	}
	return d.Duration.Halves()
}

// Apply removes the covered halves from halves.
func (o *Overlay) Apply(date generic.TimePoint, halves schedule.Halves) schedule.Halves {
	return halves.Without(o.Covered(date))
}

// Blocks reports whether half h of date is a holiday.
func (o *Overlay) Blocks(date generic.TimePoint, h schedule.Half) bool {
	return o.Covered(date).Has(h)
}

// Len is the number of distinct holiday dates.
func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	return len(o.days)
}

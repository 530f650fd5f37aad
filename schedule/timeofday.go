package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/absentify/allowance-engine/generic"
)

// lastMinute is 23:59, the latest boundary a cascade may push to.
const lastMinute = 24*60 - 1

// TimeOfDay is a zone-agnostic wall-clock time. The date component is
// normalized to the epoch day so two values compare by clock time only.
type TimeOfDay struct{ time.Time }

// NewTimeOfDay builds a TimeOfDay from hours and minutes.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Time: time.Date(1970, 1, 1, hour, minute, 0, 0, time.UTC)}
}

// FromTime keeps the clock part of t and drops date and zone.
func FromTime(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	return t, t.parse(s)
}

// MustTime is ParseTimeOfDay for literals.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *TimeOfDay) parse(s string) error {
	s = strings.TrimSpace(s)
	if len(s) == 5 { // "HH:MM"
		s += ":00"
	}
	tt, err := time.Parse("15:04:05", s)
	if err != nil {
		return generic.Validation("time", fmt.Sprintf("invalid time of day %q (use HH:MM)", s))
	}
	*t = FromTime(tt)
	return nil
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour()*60 + t.Minute() }

// AddMinutes shifts the time, clamped to [00:00, 23:59].
func (t TimeOfDay) AddMinutes(n int) TimeOfDay {
	m := t.Minutes() + n
	if m < 0 {
		m = 0
	}
	if m > lastMinute {
		m = lastMinute
	}
	return NewTimeOfDay(m/60, m%60)
}

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Minutes() < o.Minutes() }
func (t TimeOfDay) After(o TimeOfDay) bool  { return t.Minutes() > o.Minutes() }
func (t TimeOfDay) Equal(o TimeOfDay) bool  { return t.Minutes() == o.Minutes() }

// On materializes the wall-clock time on a calendar date in loc.
func (t TimeOfDay) On(date generic.TimePoint, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) String() string { return t.Format("15:04") }

// Scan accepts time.Time or "HH:MM[:SS]" text.
func (t *TimeOfDay) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		*t = FromTime(x)
		return nil
	case []byte:
		return t.parse(string(x))
	case string:
		return t.parse(x)
	case nil:
		*t = NewTimeOfDay(0, 0)
		return nil
	default:
		return fmt.Errorf("time of day: unsupported Scan type %T", v)
	}
}

// Value stores "HH:MM:SS".
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.Format("15:04:05"), nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.parse(s)
}

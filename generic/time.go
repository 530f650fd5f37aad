package generic

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day (time-of-day ignored for resolution purposes)
// =============================================================================

// DateLayout is the wire and storage format of calendar days.
const DateLayout = "2006-01-02"

// TimePoint is a calendar date normalized to midnight UTC. Wall-clock
// instants are materialized from it by the schedule package, which takes
// the member's location as an explicit argument.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar date in loc.
func Today(loc *time.Location) TimePoint {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, Validation("date", "invalid date "+s+" (use YYYY-MM-DD)")
	}
	return TimePoint{Time: t}, nil
}

// MustParseDate is ParseDate for literals in tests and seed data.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool       { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool        { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool        { return tp.Time.After(other.Time) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, n, 0)} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.Time.AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// Scan reads a DATE, TIMESTAMP or "2006-01-02" text column.
func (tp *TimePoint) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		*tp = DateOf(x)
		return nil
	case string:
		return tp.parse(x)
	case []byte:
		return tp.parse(string(x))
	default:
		return fmt.Errorf("time point: unsupported Scan type %T", v)
	}
}

func (tp *TimePoint) parse(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	p, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = p
	return nil
}

// Value stores the date as "2006-01-02" text.
func (tp TimePoint) Value() (driver.Value, error) {
	return tp.String(), nil
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	p, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = p
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func MinDate(a, b TimePoint) TimePoint {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b TimePoint) TimePoint {
	if a.After(b) {
		return a
	}
	return b
}

package sqlstore

import (
	"context"
	"time"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
)

type calendarRecord struct {
	ID              string    `db:"id"`
	WorkspaceID     string    `db:"workspace_id"`
	Name            string    `db:"name"`
	CountryCode     string    `db:"country_code"`
	SubdivisionCode string    `db:"subdivision_code"`
	CreatedAt       time.Time `db:"created_at"`
}

type holidayDayRecord struct {
	ID         string            `db:"id"`
	CalendarID string            `db:"public_holiday_id"`
	Date       generic.TimePoint `db:"date"`
	Name       string            `db:"name"`
	Year       int               `db:"year"`
	Duration   string            `db:"duration"`
}

func (r holidayDayRecord) toDomain() holiday.Day {
	return holiday.Day{
		ID:         generic.HolidayDayID(r.ID),
		CalendarID: generic.PublicHolidayID(r.CalendarID),
		Date:       r.Date,
		Name:       r.Name,
		Year:       r.Year,
		Duration:   holiday.Duration(r.Duration),
	}
}

func (s *Store) CreateHolidayCalendar(ctx context.Context, c holiday.Calendar) error {
	_, err := s.exec(ctx, `INSERT INTO public_holidays (id, workspace_id, name, country_code, subdivision_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.WorkspaceID, c.Name, c.CountryCode, c.SubdivisionCode, c.CreatedAt.UTC())
	return err
}

func (s *Store) GetHolidayCalendar(ctx context.Context, id generic.PublicHolidayID) (*holiday.Calendar, error) {
	var rec calendarRecord
	ok, err := s.get(ctx, &rec, `SELECT id, workspace_id, name, country_code, subdivision_code, created_at
		FROM public_holidays WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	return &holiday.Calendar{
		ID:              generic.PublicHolidayID(rec.ID),
		WorkspaceID:     generic.WorkspaceID(rec.WorkspaceID),
		Name:            rec.Name,
		CountryCode:     rec.CountryCode,
		SubdivisionCode: rec.SubdivisionCode,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

// SaveHolidayDay inserts or updates a day by id.
func (s *Store) SaveHolidayDay(ctx context.Context, d holiday.Day) error {
	_, err := s.exec(ctx, `
		INSERT INTO public_holiday_days (id, public_holiday_id, date, name, year, duration)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			year = excluded.year,
			duration = excluded.duration`,
		d.ID, d.CalendarID, d.Date, d.Name, d.Year, string(d.Duration))
	return err
}

func (s *Store) GetHolidayDay(ctx context.Context, id generic.HolidayDayID) (*holiday.Day, error) {
	var rec holidayDayRecord
	ok, err := s.get(ctx, &rec, `SELECT id, public_holiday_id, date, name, year, duration
		FROM public_holiday_days WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	d := rec.toDomain()
	return &d, nil
}

func (s *Store) ListHolidayDays(ctx context.Context, calendarID generic.PublicHolidayID) ([]holiday.Day, error) {
	var recs []holidayDayRecord
	if err := s.selectAll(ctx, &recs, `SELECT id, public_holiday_id, date, name, year, duration
		FROM public_holiday_days WHERE public_holiday_id = ? ORDER BY date, id`, calendarID); err != nil {
		return nil, err
	}
	out := make([]holiday.Day, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) DeleteHolidayDay(ctx context.Context, id generic.HolidayDayID) error {
	return s.execOne(ctx, "public holiday day", string(id), `DELETE FROM public_holiday_days WHERE id = ?`, id)
}

package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/tenant"
)

func (s *Service) CreateHolidayCalendar(ctx context.Context, caller tenant.Caller, c holiday.Calendar) (*holiday.Calendar, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}
	c.ID = generic.PublicHolidayID(generic.NewID())
	c.WorkspaceID = caller.WorkspaceID
	c.CountryCode = strings.ToUpper(c.CountryCode)
	c.CreatedAt = s.now().UTC()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateHolidayCalendar(ctx, c); err != nil {
		return nil, fmt.Errorf("create public holiday calendar: %w", err)
	}
	return &c, nil
}

// AddHolidayDay adds a day to a calendar and recomputes its members.
func (s *Service) AddHolidayDay(ctx context.Context, caller tenant.Caller, calendarID generic.PublicHolidayID, d holiday.Day) (*holiday.Day, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}
	d.ID = generic.HolidayDayID(generic.NewID())
	d.CalendarID = calendarID
	if d.Year == 0 {
		d.Year = d.Date.Year()
	}
	if d.Duration == "" {
		d.Duration = holiday.FullDay
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := s.requireCalendar(ctx, tx, caller.WorkspaceID, calendarID); err != nil {
			return err
		}
		if err := tx.SaveHolidayDay(ctx, d); err != nil {
			return fmt.Errorf("save public holiday day: %w", err)
		}
		return s.audit(ctx, tx, caller.WorkspaceID, caller, generic.AuditHolidayChanged, string(calendarID), map[string]any{
			"day_id": string(d.ID), "date": d.Date.String(), "duration": string(d.Duration), "change": "created",
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events.RecomputeCalendar(caller.WorkspaceID, calendarID, "public holiday added"))
	return &d, nil
}

// HolidayDayUpdate changes a day. Zero fields keep their value.
type HolidayDayUpdate struct {
	Date     generic.TimePoint
	Name     string
	Duration holiday.Duration
}

func (s *Service) UpdateHolidayDay(ctx context.Context, caller tenant.Caller, id generic.HolidayDayID, upd HolidayDayUpdate) (*holiday.Day, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}

	var out *holiday.Day
	err := s.store.WithTx(ctx, func(tx Store) error {
		d, err := s.holidayDay(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if !upd.Date.IsZero() {
			d.Date = upd.Date
			d.Year = upd.Date.Year()
		}
		if upd.Name != "" {
			d.Name = upd.Name
		}
		if upd.Duration != "" {
			d.Duration = upd.Duration
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if err := tx.SaveHolidayDay(ctx, *d); err != nil {
			return fmt.Errorf("save public holiday day: %w", err)
		}
		out = d
		return s.audit(ctx, tx, caller.WorkspaceID, caller, generic.AuditHolidayChanged, string(d.CalendarID), map[string]any{
			"day_id": string(d.ID), "date": d.Date.String(), "duration": string(d.Duration), "change": "updated",
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events.RecomputeCalendar(caller.WorkspaceID, out.CalendarID, "public holiday updated"))
	return out, nil
}

func (s *Service) DeleteHolidayDay(ctx context.Context, caller tenant.Caller, id generic.HolidayDayID) error {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return err
	}

	var calendarID generic.PublicHolidayID
	err := s.store.WithTx(ctx, func(tx Store) error {
		d, err := s.holidayDay(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteHolidayDay(ctx, id); err != nil {
			return err
		}
		calendarID = d.CalendarID
		return s.audit(ctx, tx, caller.WorkspaceID, caller, generic.AuditHolidayChanged, string(d.CalendarID), map[string]any{
			"day_id": string(d.ID), "date": d.Date.String(), "change": "deleted",
		})
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events.RecomputeCalendar(caller.WorkspaceID, calendarID, "public holiday deleted"))
	return nil
}

func (s *Service) holidayDay(ctx context.Context, tx Store, caller tenant.Caller, id generic.HolidayDayID) (*holiday.Day, error) {
	d, err := tx.GetHolidayDay(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load public holiday day: %w", err)
	}
	if d == nil {
		return nil, generic.NotFound("public holiday day", string(id))
	}
	if err := s.requireCalendar(ctx, tx, caller.WorkspaceID, d.CalendarID); err != nil {
		return nil, err
	}
	return d, nil
}

// AssignHolidayCalendar sets or clears (nil) a member's calendar.
func (s *Service) AssignHolidayCalendar(ctx context.Context, caller tenant.Caller, memberID generic.MemberID, calendarID *generic.PublicHolidayID) (*tenant.Member, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}

	var out *tenant.Member
	err := s.store.WithTx(ctx, func(tx Store) error {
		m, err := s.member(ctx, tx, caller, memberID)
		if err != nil {
			return err
		}
		if calendarID != nil {
			if err := s.requireCalendar(ctx, tx, m.WorkspaceID, *calendarID); err != nil {
				return err
			}
		}
		m.PublicHolidayID = calendarID
		if err := tx.SaveMember(ctx, *m); err != nil {
			return fmt.Errorf("save member: %w", err)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events.RecomputeMember(out.WorkspaceID, out.ID, "public holiday calendar assigned"))
	return out, nil
}

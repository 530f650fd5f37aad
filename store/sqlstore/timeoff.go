package sqlstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/timeoff"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type leaveTypeRecord struct {
	ID                   string    `db:"id"`
	WorkspaceID          string    `db:"workspace_id"`
	Name                 string    `db:"name"`
	TakeFromAllowance    bool      `db:"take_from_allowance"`
	AllowanceTypeID      *string   `db:"allowance_type_id"`
	LeaveUnit            string    `db:"leave_unit"`
	IgnoreSchedule       bool      `db:"ignore_schedule"`
	IgnorePublicHolidays bool      `db:"ignore_public_holidays"`
	CreatedAt            time.Time `db:"created_at"`
}

func (r leaveTypeRecord) toDomain() timeoff.LeaveType {
	lt := timeoff.LeaveType{
		ID:                   generic.LeaveTypeID(r.ID),
		WorkspaceID:          generic.WorkspaceID(r.WorkspaceID),
		Name:                 r.Name,
		TakeFromAllowance:    r.TakeFromAllowance,
		LeaveUnit:            timeoff.LeaveUnit(r.LeaveUnit),
		IgnoreSchedule:       r.IgnoreSchedule,
		IgnorePublicHolidays: r.IgnorePublicHolidays,
		CreatedAt:            r.CreatedAt,
	}
	if r.AllowanceTypeID != nil {
		id := generic.AllowanceTypeID(*r.AllowanceTypeID)
		lt.AllowanceTypeID = &id
	}
	return lt
}

const leaveTypeColumns = `id, workspace_id, name, take_from_allowance, allowance_type_id, leave_unit,
	ignore_schedule, ignore_public_holidays, created_at`

func (s *Store) CreateLeaveType(ctx context.Context, lt timeoff.LeaveType) error {
	var typeID *string
	if lt.AllowanceTypeID != nil {
		id := string(*lt.AllowanceTypeID)
		typeID = &id
	}
	_, err := s.exec(ctx, `INSERT INTO leave_types (`+leaveTypeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lt.ID, lt.WorkspaceID, lt.Name, lt.TakeFromAllowance, typeID, string(lt.LeaveUnit),
		lt.IgnoreSchedule, lt.IgnorePublicHolidays, lt.CreatedAt.UTC())
	return err
}

func (s *Store) GetLeaveType(ctx context.Context, id generic.LeaveTypeID) (*timeoff.LeaveType, error) {
	var rec leaveTypeRecord
	ok, err := s.get(ctx, &rec, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	lt := rec.toDomain()
	return &lt, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context, workspaceID generic.WorkspaceID) ([]timeoff.LeaveType, error) {
	var recs []leaveTypeRecord
	if err := s.selectAll(ctx, &recs, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE workspace_id = ? ORDER BY created_at, id`, workspaceID); err != nil {
		return nil, err
	}
	out := make([]timeoff.LeaveType, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

type requestRecord struct {
	ID                     string            `db:"id"`
	WorkspaceID            string            `db:"workspace_id"`
	MemberID               string            `db:"member_id"`
	LeaveTypeID            string            `db:"leave_type_id"`
	Start                  generic.TimePoint `db:"start"`
	End                    generic.TimePoint `db:"end"`
	StartAt                string            `db:"start_at"`
	EndAt                  string            `db:"end_at"`
	Status                 string            `db:"status"`
	Reason                 string            `db:"reason"`
	ApprovedBy             *string           `db:"approved_by"`
	CanceledAt             *time.Time        `db:"canceled_at"`
	CanceledBy             *string           `db:"canceled_by"`
	Duration               decimal.Decimal   `db:"duration"`
	WorkdayAbsenceDuration decimal.Decimal   `db:"workday_absence_duration"`
	CreatedAt              time.Time         `db:"created_at"`
	UpdatedAt              time.Time         `db:"updated_at"`
}

func memberPtr(s *string) *generic.MemberID {
	if s == nil {
		return nil
	}
	id := generic.MemberID(*s)
	return &id
}

func stringPtr(id *generic.MemberID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func (r requestRecord) toDomain() timeoff.Request {
	return timeoff.Request{
		ID:                     generic.RequestID(r.ID),
		WorkspaceID:            generic.WorkspaceID(r.WorkspaceID),
		MemberID:               generic.MemberID(r.MemberID),
		LeaveTypeID:            generic.LeaveTypeID(r.LeaveTypeID),
		Start:                  r.Start,
		End:                    r.End,
		StartAt:                timeoff.StartAt(r.StartAt),
		EndAt:                  timeoff.EndAt(r.EndAt),
		Status:                 timeoff.Status(r.Status),
		Reason:                 r.Reason,
		ApprovedBy:             memberPtr(r.ApprovedBy),
		CanceledAt:             r.CanceledAt,
		CanceledBy:             memberPtr(r.CanceledBy),
		Duration:               r.Duration,
		WorkdayAbsenceDuration: r.WorkdayAbsenceDuration,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

const requestColumns = `id, workspace_id, member_id, leave_type_id, start, "end", start_at, end_at, status, reason,
	approved_by, canceled_at, canceled_by, duration, workday_absence_duration, created_at, updated_at`

// SaveRequest inserts or updates the request by id.
func (s *Store) SaveRequest(ctx context.Context, r timeoff.Request) error {
	var canceledAt *time.Time
	if r.CanceledAt != nil {
		t := r.CanceledAt.UTC()
		canceledAt = &t
	}
	_, err := s.exec(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			start = excluded.start,
			"end" = excluded."end",
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			status = excluded.status,
			reason = excluded.reason,
			approved_by = excluded.approved_by,
			canceled_at = excluded.canceled_at,
			canceled_by = excluded.canceled_by,
			duration = excluded.duration,
			workday_absence_duration = excluded.workday_absence_duration,
			updated_at = excluded.updated_at`,
		r.ID, r.WorkspaceID, r.MemberID, r.LeaveTypeID, r.Start, r.End, string(r.StartAt), string(r.EndAt),
		string(r.Status), r.Reason, stringPtr(r.ApprovedBy), canceledAt, stringPtr(r.CanceledBy),
		r.Duration, r.WorkdayAbsenceDuration, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	return err
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (*timeoff.Request, error) {
	var rec requestRecord
	ok, err := s.get(ctx, &rec, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	r := rec.toDomain()
	return &r, nil
}

// ListRequestsOverlapping returns requests whose inclusive [start, end]
// touches [from, to).
func (s *Store) ListRequestsOverlapping(ctx context.Context, memberID generic.MemberID, from, to generic.TimePoint) ([]timeoff.Request, error) {
	var recs []requestRecord
	if err := s.selectAll(ctx, &recs, `SELECT `+requestColumns+` FROM requests
		WHERE member_id = ? AND start < ? AND "end" >= ?
		ORDER BY start, id`, memberID, to, from); err != nil {
		return nil, err
	}
	out := make([]timeoff.Request, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) UpdateRequestDurations(ctx context.Context, id generic.RequestID, duration, workdayAbsence decimal.Decimal) error {
	return s.execOne(ctx, "request", string(id),
		`UPDATE requests SET duration = ?, workday_absence_duration = ? WHERE id = ?`,
		duration, workdayAbsence, id)
}

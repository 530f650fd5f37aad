package sqlstore

import (
	"context"
	"time"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/tenant"
)

// =============================================================================
// WORKSPACES
// =============================================================================

type workspaceRecord struct {
	ID                        string    `db:"id"`
	Name                      string    `db:"name"`
	FiscalYearStartMonth      int       `db:"fiscal_year_start_month"`
	Timezone                  string    `db:"timezone"`
	MemberScheduleSelfService bool      `db:"member_schedule_self_service"`
	CreatedAt                 time.Time `db:"created_at"`
}

func (r workspaceRecord) toDomain() tenant.Workspace {
	return tenant.Workspace{
		ID:                        generic.WorkspaceID(r.ID),
		Name:                      r.Name,
		FiscalYearStartMonth:      time.Month(r.FiscalYearStartMonth),
		Timezone:                  r.Timezone,
		MemberScheduleSelfService: r.MemberScheduleSelfService,
		CreatedAt:                 r.CreatedAt,
	}
}

const workspaceColumns = `id, name, fiscal_year_start_month, timezone, member_schedule_self_service, created_at`

func (s *Store) CreateWorkspace(ctx context.Context, ws tenant.Workspace) error {
	_, err := s.exec(ctx, `INSERT INTO workspaces (`+workspaceColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.Name, int(ws.FiscalYearStartMonth), ws.Timezone, ws.MemberScheduleSelfService, ws.CreatedAt.UTC())
	return err
}

func (s *Store) GetWorkspace(ctx context.Context, id generic.WorkspaceID) (*tenant.Workspace, error) {
	var rec workspaceRecord
	ok, err := s.get(ctx, &rec, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	ws := rec.toDomain()
	return &ws, nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]tenant.Workspace, error) {
	var recs []workspaceRecord
	if err := s.selectAll(ctx, &recs, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	out := make([]tenant.Workspace, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

type memberRecord struct {
	ID                  string             `db:"id"`
	WorkspaceID         string             `db:"workspace_id"`
	Name                string             `db:"name"`
	Email               string             `db:"email"`
	IsAdmin             bool               `db:"is_admin"`
	Timezone            string             `db:"timezone"`
	PublicHolidayID     *string            `db:"public_holiday_id"`
	EmploymentStartDate *generic.TimePoint `db:"employment_start_date"`
	Status              string             `db:"status"`
	CreatedAt           time.Time          `db:"created_at"`
}

func (r memberRecord) toDomain() tenant.Member {
	m := tenant.Member{
		ID:                  generic.MemberID(r.ID),
		WorkspaceID:         generic.WorkspaceID(r.WorkspaceID),
		Name:                r.Name,
		Email:               r.Email,
		IsAdmin:             r.IsAdmin,
		Timezone:            r.Timezone,
		EmploymentStartDate: r.EmploymentStartDate,
		Status:              tenant.MemberStatus(r.Status),
		CreatedAt:           r.CreatedAt,
	}
	if r.PublicHolidayID != nil {
		id := generic.PublicHolidayID(*r.PublicHolidayID)
		m.PublicHolidayID = &id
	}
	return m
}

const memberColumns = `id, workspace_id, name, email, is_admin, timezone, public_holiday_id, employment_start_date, status, created_at`

// SaveMember inserts or updates the member.
func (s *Store) SaveMember(ctx context.Context, m tenant.Member) error {
	var calendar *string
	if m.PublicHolidayID != nil {
		c := string(*m.PublicHolidayID)
		calendar = &c
	}
	status := m.Status
	if status == "" {
		status = tenant.MemberActive
	}
	_, err := s.exec(ctx, `
		INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			is_admin = excluded.is_admin,
			timezone = excluded.timezone,
			public_holiday_id = excluded.public_holiday_id,
			employment_start_date = excluded.employment_start_date,
			status = excluded.status`,
		m.ID, m.WorkspaceID, m.Name, m.Email, m.IsAdmin, m.Timezone, calendar,
		m.EmploymentStartDate, string(status), m.CreatedAt.UTC())
	return err
}

func (s *Store) GetMember(ctx context.Context, id generic.MemberID) (*tenant.Member, error) {
	var rec memberRecord
	ok, err := s.get(ctx, &rec, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	if err != nil || !ok {
		return nil, err
	}
	m := rec.toDomain()
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, workspaceID generic.WorkspaceID) ([]tenant.Member, error) {
	return s.listMembers(ctx, `SELECT `+memberColumns+` FROM members WHERE workspace_id = ? ORDER BY created_at, id`, workspaceID)
}

func (s *Store) ListMembersByCalendar(ctx context.Context, calendarID generic.PublicHolidayID) ([]tenant.Member, error) {
	return s.listMembers(ctx, `SELECT `+memberColumns+` FROM members WHERE public_holiday_id = ? ORDER BY workspace_id, created_at, id`, calendarID)
}

func (s *Store) listMembers(ctx context.Context, query string, args ...any) ([]tenant.Member, error) {
	var recs []memberRecord
	if err := s.selectAll(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]tenant.Member, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

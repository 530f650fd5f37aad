package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/schedule"
)

// weekValues flattens w into scheduleColumns order.
func weekValues(w schedule.WeeklySchedule) []any {
	out := make([]any, 0, len(scheduleColumns))
	for _, wd := range schedule.Weekdays {
		d := w.Days[wd]
		out = append(out, d.AMStart, d.AMEnd, d.PMStart, d.PMEnd, d.AMEnabled, d.PMEnabled, d.DeductFullday)
	}
	return out
}

// weekDest returns scan targets into w in scheduleColumns order.
func weekDest(w *schedule.WeeklySchedule) []any {
	out := make([]any, 0, len(scheduleColumns))
	for _, wd := range schedule.Weekdays {
		d := &w.Days[wd]
		out = append(out, &d.AMStart, &d.AMEnd, &d.PMStart, &d.PMEnd, &d.AMEnabled, &d.PMEnabled, &d.DeductFullday)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func updateList(cols []string) string {
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = c + " = excluded." + c
	}
	return strings.Join(set, ", ")
}

var weekColumnList = strings.Join(scheduleColumns, ", ")

// =============================================================================
// WORKSPACE SCHEDULE
// =============================================================================

func (s *Store) GetWorkspaceSchedule(ctx context.Context, workspaceID generic.WorkspaceID) (*schedule.WorkspaceSchedule, error) {
	var ws schedule.WorkspaceSchedule
	dest := append([]any{&ws.ID, &ws.WorkspaceID}, weekDest(&ws.Schedule)...)
	dest = append(dest, &ws.UpdatedAt)

	row := s.q.QueryRowxContext(ctx, s.q.Rebind(
		`SELECT id, workspace_id, `+weekColumnList+`, updated_at FROM workspace_schedules WHERE workspace_id = ?`), workspaceID)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ws, nil
}

// SaveWorkspaceSchedule inserts or replaces the workspace's schedule.
func (s *Store) SaveWorkspaceSchedule(ctx context.Context, ws schedule.WorkspaceSchedule) error {
	args := append([]any{ws.ID, ws.WorkspaceID}, weekValues(ws.Schedule)...)
	args = append(args, ws.UpdatedAt.UTC())

	_, err := s.exec(ctx, `
		INSERT INTO workspace_schedules (id, workspace_id, `+weekColumnList+`, updated_at)
		VALUES (`+placeholders(len(args))+`)
		ON CONFLICT (workspace_id) DO UPDATE SET `+updateList(scheduleColumns)+`, updated_at = excluded.updated_at`,
		args...)
	return err
}

// =============================================================================
// MEMBER SCHEDULES
// =============================================================================

const memberScheduleSelect = `SELECT id, workspace_id, member_id, "from", `

func scanMemberSchedule(scan func(...any) error) (schedule.MemberSchedule, error) {
	var ms schedule.MemberSchedule
	dest := append([]any{&ms.ID, &ms.WorkspaceID, &ms.MemberID, &ms.From}, weekDest(&ms.Schedule)...)
	dest = append(dest, &ms.CreatedAt)
	if err := scan(dest...); err != nil {
		return schedule.MemberSchedule{}, err
	}
	return ms, nil
}

func (s *Store) GetMemberSchedule(ctx context.Context, id generic.ScheduleID) (*schedule.MemberSchedule, error) {
	row := s.q.QueryRowxContext(ctx, s.q.Rebind(
		memberScheduleSelect+weekColumnList+`, created_at FROM member_schedules WHERE id = ?`), id)
	ms, err := scanMemberSchedule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ms, nil
}

// ListMemberSchedules returns the member's versions ordered by from, then id.
func (s *Store) ListMemberSchedules(ctx context.Context, memberID generic.MemberID) ([]schedule.MemberSchedule, error) {
	rows, err := s.q.QueryxContext(ctx, s.q.Rebind(
		memberScheduleSelect+weekColumnList+`, created_at FROM member_schedules WHERE member_id = ? ORDER BY "from", id`), memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.MemberSchedule
	for rows.Next() {
		ms, err := scanMemberSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

// SaveMemberSchedule inserts or updates a version by id.
func (s *Store) SaveMemberSchedule(ctx context.Context, ms schedule.MemberSchedule) error {
	if ms.CreatedAt.IsZero() {
		ms.CreatedAt = time.Now()
	}
	args := append([]any{ms.ID, ms.WorkspaceID, ms.MemberID, ms.From}, weekValues(ms.Schedule)...)
	args = append(args, ms.CreatedAt.UTC())

	_, err := s.exec(ctx, `
		INSERT INTO member_schedules (id, workspace_id, member_id, "from", `+weekColumnList+`, created_at)
		VALUES (`+placeholders(len(args))+`)
		ON CONFLICT (id) DO UPDATE SET "from" = excluded."from", `+updateList(scheduleColumns),
		args...)
	return err
}

func (s *Store) DeleteMemberSchedule(ctx context.Context, id generic.ScheduleID) error {
	return s.execOne(ctx, "member schedule", string(id), `DELETE FROM member_schedules WHERE id = ?`, id)
}

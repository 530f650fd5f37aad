package workspace

import (
	"context"
	"fmt"

	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
)

// =============================================================================
// WORKSPACE SCHEDULE
// =============================================================================

func (s *Service) GetWorkspaceSchedule(ctx context.Context, caller tenant.Caller) (*schedule.WorkspaceSchedule, error) {
	if err := caller.RequireWorkspace(caller.WorkspaceID); err != nil {
		return nil, err
	}
	ws, err := s.store.GetWorkspaceSchedule(ctx, caller.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace schedule: %w", err)
	}
	if ws == nil {
		return nil, generic.IllegalState("workspace %s has no schedule", caller.WorkspaceID)
	}
	return ws, nil
}

// UpdateWorkspaceSchedule replaces the default schedule and recomputes every
// member of the workspace.
func (s *Service) UpdateWorkspaceSchedule(ctx context.Context, caller tenant.Caller, w schedule.WeeklySchedule) (*schedule.WorkspaceSchedule, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}
	w, err := schedule.Prepare(w)
	if err != nil {
		return nil, err
	}

	var out *schedule.WorkspaceSchedule
	err = s.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetWorkspaceSchedule(ctx, caller.WorkspaceID)
		if err != nil {
			return fmt.Errorf("load workspace schedule: %w", err)
		}
		if current == nil {
			return generic.IllegalState("workspace %s has no schedule", caller.WorkspaceID)
		}
		current.Schedule = w
		current.UpdatedAt = s.now().UTC()
		if err := tx.SaveWorkspaceSchedule(ctx, *current); err != nil {
			return fmt.Errorf("save workspace schedule: %w", err)
		}
		out = current
		return s.audit(ctx, tx, caller.WorkspaceID, caller, generic.AuditScheduleChanged, string(current.ID), map[string]any{"scope": "workspace"})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events.RecomputeWorkspace(caller.WorkspaceID, "workspace schedule changed"))
	return out, nil
}

// =============================================================================
// MEMBER SCHEDULES
// =============================================================================

// canEditSchedule: admins always, members for themselves when the workspace
// allows self-service.
func (s *Service) canEditSchedule(ctx context.Context, st Store, caller tenant.Caller, member tenant.Member) error {
	if err := caller.RequireAdmin(member.WorkspaceID); err == nil {
		return nil
	}
	if caller.MemberID != member.ID {
		return generic.Unauthorized("only an admin may edit another member's schedule")
	}
	ws, err := st.GetWorkspace(ctx, member.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if ws == nil || !ws.MemberScheduleSelfService {
		return generic.Unauthorized("members may not edit their own schedule in this workspace")
	}
	return nil
}

func (s *Service) ListMemberSchedules(ctx context.Context, caller tenant.Caller, memberID generic.MemberID) ([]schedule.MemberSchedule, error) {
	m, err := s.member(ctx, s.store, caller, memberID)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireSelfOrAdmin(m.WorkspaceID, m.ID); err != nil {
		return nil, err
	}
	return s.store.ListMemberSchedules(ctx, memberID)
}

// CreateMemberSchedule adds a dated version. Two versions of a member may
// not share a from date.
func (s *Service) CreateMemberSchedule(ctx context.Context, caller tenant.Caller, memberID generic.MemberID, from generic.TimePoint, w schedule.WeeklySchedule) (*schedule.MemberSchedule, error) {
	if from.IsZero() {
		return nil, generic.Validation("from", "required")
	}
	w, err := schedule.Prepare(w)
	if err != nil {
		return nil, err
	}

	var out *schedule.MemberSchedule
	err = s.store.WithTx(ctx, func(tx Store) error {
		m, err := s.member(ctx, tx, caller, memberID)
		if err != nil {
			return err
		}
		if err := s.canEditSchedule(ctx, tx, caller, *m); err != nil {
			return err
		}
		if err := uniqueFrom(ctx, tx, memberID, from, ""); err != nil {
			return err
		}

		ms := schedule.MemberSchedule{
			ID:          generic.ScheduleID(generic.NewID()),
			WorkspaceID: m.WorkspaceID,
			MemberID:    m.ID,
			From:        from,
			Schedule:    w,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.SaveMemberSchedule(ctx, ms); err != nil {
			return fmt.Errorf("save member schedule: %w", err)
		}
		out = &ms
		return s.audit(ctx, tx, m.WorkspaceID, caller, generic.AuditScheduleChanged, string(m.ID), map[string]any{
			"schedule_id": string(ms.ID), "from": from.String(), "change": "created",
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events.RecomputeMember(out.WorkspaceID, out.MemberID, "member schedule created"))
	return out, nil
}

// MemberScheduleUpdate changes a version. A nil From keeps the date.
type MemberScheduleUpdate struct {
	From     *generic.TimePoint
	Schedule schedule.WeeklySchedule
}

func (s *Service) UpdateMemberSchedule(ctx context.Context, caller tenant.Caller, id generic.ScheduleID, upd MemberScheduleUpdate) (*schedule.MemberSchedule, error) {
	w, err := schedule.Prepare(upd.Schedule)
	if err != nil {
		return nil, err
	}

	var out *schedule.MemberSchedule
	err = s.store.WithTx(ctx, func(tx Store) error {
		ms, m, err := s.memberSchedule(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if upd.From != nil && !upd.From.Equal(ms.From) {
			if err := uniqueFrom(ctx, tx, m.ID, *upd.From, ms.ID); err != nil {
				return err
			}
			ms.From = *upd.From
		}
		ms.Schedule = w
		if err := tx.SaveMemberSchedule(ctx, *ms); err != nil {
			return fmt.Errorf("save member schedule: %w", err)
		}
		out = ms
		return s.audit(ctx, tx, m.WorkspaceID, caller, generic.AuditScheduleChanged, string(m.ID), map[string]any{
			"schedule_id": string(ms.ID), "from": ms.From.String(), "change": "updated",
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events.RecomputeMember(out.WorkspaceID, out.MemberID, "member schedule updated"))
	return out, nil
}

func (s *Service) DeleteMemberSchedule(ctx context.Context, caller tenant.Caller, id generic.ScheduleID) error {
	var deleted *schedule.MemberSchedule
	err := s.store.WithTx(ctx, func(tx Store) error {
		ms, m, err := s.memberSchedule(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteMemberSchedule(ctx, id); err != nil {
			return err
		}
		deleted = ms
		return s.audit(ctx, tx, m.WorkspaceID, caller, generic.AuditScheduleChanged, string(m.ID), map[string]any{
			"schedule_id": string(ms.ID), "from": ms.From.String(), "change": "deleted",
		})
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events.RecomputeMember(deleted.WorkspaceID, deleted.MemberID, "member schedule deleted"))
	return nil
}

func (s *Service) memberSchedule(ctx context.Context, tx Store, caller tenant.Caller, id generic.ScheduleID) (*schedule.MemberSchedule, *tenant.Member, error) {
	ms, err := tx.GetMemberSchedule(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load member schedule: %w", err)
	}
	if ms == nil {
		return nil, nil, generic.NotFound("member schedule", string(id))
	}
	m, err := s.member(ctx, tx, caller, ms.MemberID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.canEditSchedule(ctx, tx, caller, *m); err != nil {
		return nil, nil, err
	}
	return ms, m, nil
}

func uniqueFrom(ctx context.Context, tx Store, memberID generic.MemberID, from generic.TimePoint, except generic.ScheduleID) error {
	versions, err := tx.ListMemberSchedules(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load member schedules: %w", err)
	}
	for _, v := range versions {
		if v.ID != except && v.From.Equal(from) {
			return generic.Validation("from", "a schedule starting on "+from.String()+" already exists")
		}
	}
	return nil
}

// ResolveSchedule returns the schedule in force for a member on date.
func (s *Service) ResolveSchedule(ctx context.Context, caller tenant.Caller, memberID generic.MemberID, date generic.TimePoint) (schedule.Resolution, error) {
	m, err := s.member(ctx, s.store, caller, memberID)
	if err != nil {
		return schedule.Resolution{}, err
	}
	if err := caller.RequireSelfOrAdmin(m.WorkspaceID, m.ID); err != nil {
		return schedule.Resolution{}, err
	}
	return schedule.NewResolver(s.store, s.log).Resolve(ctx, memberID, date)
}

package workspace

import (
	"context"
	"fmt"

	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
)

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// RequestInput describes a request to preview or submit.
type RequestInput struct {
	MemberID    generic.MemberID
	LeaveTypeID generic.LeaveTypeID
	Span        timeoff.Span
	Reason      string
}

// Preview is the computed breakdown of a request before it is stored.
type Preview struct {
	LeaveType timeoff.LeaveType
	Breakdown timeoff.Breakdown
	// Duration and WorkdayAbsence are in the leave unit's accounting unit.
	Duration       generic.Amount
	WorkdayAbsence generic.Amount
}

// PreviewRequest computes what a request would consume without storing it.
func (s *Service) PreviewRequest(ctx context.Context, caller tenant.Caller, in RequestInput) (*Preview, error) {
	var out *Preview
	err := s.store.WithTx(ctx, func(tx Store) error {
		p, _, err := s.preview(ctx, tx, caller, in)
		out = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) preview(ctx context.Context, tx Store, caller tenant.Caller, in RequestInput) (*Preview, *tenant.Member, error) {
	m, err := s.member(ctx, tx, caller, in.MemberID)
	if err != nil {
		return nil, nil, err
	}
	if err := caller.RequireSelfOrAdmin(m.WorkspaceID, m.ID); err != nil {
		return nil, nil, err
	}
	lt, err := tx.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load leave type: %w", err)
	}
	if lt == nil || lt.WorkspaceID != m.WorkspaceID {
		return nil, nil, generic.NotFound("leave type", string(in.LeaveTypeID))
	}
	if err := in.Span.ValidateFor(*lt); err != nil {
		return nil, nil, err
	}

	calc, _, err := s.calculator(ctx, tx, m.ID)
	if err != nil {
		return nil, nil, err
	}
	b, err := calc.Breakdown(in.Span, *lt)
	if err != nil {
		return nil, nil, err
	}
	unit := lt.LeaveUnit.Accounting()
	return &Preview{
		LeaveType:      *lt,
		Breakdown:      b,
		Duration:       b.Duration.Amount(unit),
		WorkdayAbsence: b.WorkdayAbsence.Amount(unit),
	}, m, nil
}

// SubmitRequest stores a pending request. A leave type drawing from an
// allowance type that enforces its limit is rejected when a fiscal year it
// touches has too little remaining.
func (s *Service) SubmitRequest(ctx context.Context, caller tenant.Caller, in RequestInput) (*timeoff.Request, error) {
	var out *timeoff.Request
	err := s.store.WithTx(ctx, func(tx Store) error {
		p, m, err := s.preview(ctx, tx, caller, in)
		if err != nil {
			return err
		}
		if err := s.checkRemaining(ctx, tx, m.ID, p); err != nil {
			return err
		}

		now := s.now().UTC()
		r := timeoff.Request{
			ID:          generic.RequestID(generic.NewID()),
			WorkspaceID: m.WorkspaceID,
			MemberID:    m.ID,
			LeaveTypeID: p.LeaveType.ID,
			Start:       in.Span.Start,
			End:         in.Span.End,
			StartAt:     in.Span.StartAt,
			EndAt:       in.Span.EndAt,
			Status:      timeoff.StatusPending,
			Reason:      in.Reason,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		r.SetDurations(p.Breakdown, p.LeaveType)
		if err := tx.SaveRequest(ctx, r); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) checkRemaining(ctx context.Context, tx Store, memberID generic.MemberID, p *Preview) error {
	lt := p.LeaveType
	if !lt.TakeFromAllowance || lt.AllowanceTypeID == nil {
		return nil
	}
	t, err := tx.GetAllowanceType(ctx, *lt.AllowanceTypeID)
	if err != nil {
		return fmt.Errorf("load allowance type: %w", err)
	}
	if t == nil || t.IgnoreAllowanceLimit {
		return nil
	}
	rows, err := tx.ListMemberAllowances(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load allowances: %w", err)
	}
	for _, row := range rows {
		if row.AllowanceTypeID != t.ID {
			continue
		}
		need := p.Breakdown.Amount(t.Unit, row.Period())
		if need.Value.GreaterThan(row.Remaining) {
			return generic.Validation("allowance", fmt.Sprintf(
				"request needs %s %s in %d but only %s remain", need.Value, t.Unit, row.Year, row.Remaining))
		}
	}
	return nil
}

// ApproveRequest approves a pending request and recomputes its member.
func (s *Service) ApproveRequest(ctx context.Context, caller tenant.Caller, id generic.RequestID) (*timeoff.Request, error) {
	r, err := s.transition(ctx, caller, id, true, generic.AuditRequestApproved, func(r *timeoff.Request) error {
		return r.Approve(caller.MemberID, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events.RecomputeMember(r.WorkspaceID, r.MemberID, "request approved"))
	return r, nil
}

// DeclineRequest declines a pending request. Nothing was counted, so no
// recompute is needed.
func (s *Service) DeclineRequest(ctx context.Context, caller tenant.Caller, id generic.RequestID) (*timeoff.Request, error) {
	return s.transition(ctx, caller, id, true, "", func(r *timeoff.Request) error {
		return r.Decline(s.now().UTC())
	})
}

// CancelRequest withdraws a request. Its owner or an admin may cancel.
func (s *Service) CancelRequest(ctx context.Context, caller tenant.Caller, id generic.RequestID) (*timeoff.Request, error) {
	var wasCounted bool
	r, err := s.transition(ctx, caller, id, false, generic.AuditRequestCanceled, func(r *timeoff.Request) error {
		wasCounted = r.Counted()
		return r.Cancel(caller.MemberID, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	if wasCounted {
		s.dispatch(ctx, events.RecomputeMember(r.WorkspaceID, r.MemberID, "request canceled"))
	}
	return r, nil
}

func (s *Service) transition(ctx context.Context, caller tenant.Caller, id generic.RequestID, adminOnly bool, action generic.AuditAction, apply func(*timeoff.Request) error) (*timeoff.Request, error) {
	var out *timeoff.Request
	err := s.store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if r == nil {
			return generic.NotFound("request", string(id))
		}
		if adminOnly {
			err = caller.RequireAdmin(r.WorkspaceID)
		} else {
			err = caller.RequireSelfOrAdmin(r.WorkspaceID, r.MemberID)
		}
		if err != nil {
			return err
		}

		if err := apply(r); err != nil {
			return err
		}
		if err := tx.SaveRequest(ctx, *r); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		out = r
		if action == "" {
			return nil
		}
		return s.audit(ctx, tx, r.WorkspaceID, caller, action, string(r.MemberID), map[string]any{"request_id": string(r.ID)})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

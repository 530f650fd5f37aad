/*
Package workspace orchestrates the writes that surround the allowance
ledger: registration, members, schedules, holiday calendars, leave types
and leave requests.

PURPOSE:
  Every operation here authorizes the caller, validates input, writes in one
  store transaction and, after the commit, dispatches the recompute job its
  change calls for. The ledger itself lives in the allowance package.

TRIGGERS:
  Workspace schedule updated      -> recompute.workspace
  Member schedule created/changed -> recompute.member
  Holiday day added/changed       -> recompute.calendar
  Calendar assigned to a member   -> recompute.member
  Request approved or canceled    -> recompute.member

  Jobs are dispatched after commit. With the inline dispatcher the
  recompute runs before the call returns; with RabbitMQ it runs on the
  consumer.

SEE ALSO:
  - allowance/service.go: Recompute, Provision, Rollover
  - events/:              job kinds and dispatchers
*/
package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
)

type Service struct {
	store      TxStore
	ledger     *allowance.Service
	dispatcher events.Dispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewService(store TxStore, ledger *allowance.Service, dispatcher events.Dispatcher, log *logger.Logger) *Service {
	if dispatcher == nil {
		dispatcher = events.Nop{}
	}
	return &Service{
		store:      store,
		ledger:     ledger,
		dispatcher: dispatcher,
		log:        log.WithComponent("workspace"),
		now:        time.Now,
	}
}

// WithClock replaces the clock used for timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// dispatch hands a job to the dispatcher. The triggering change is already
// committed, so failures are logged, not returned.
func (s *Service) dispatch(ctx context.Context, job events.Job) {
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Str("workspace_id", string(job.WorkspaceID)).
			Str("member_id", string(job.MemberID)).
			Msg("failed to dispatch recompute job")
	}
}

func (s *Service) audit(ctx context.Context, tx Store, ws generic.WorkspaceID, caller tenant.Caller, action generic.AuditAction, subject string, payload map[string]any) error {
	if err := tx.AppendAudit(ctx, generic.NewAuditEntry(ws, caller.MemberID, action, subject, payload)); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// =============================================================================
// REGISTRATION AND MEMBERS
// =============================================================================

// Registration creates a workspace with its first admin.
type Registration struct {
	Name                      string
	FiscalYearStartMonth      time.Month
	Timezone                  string
	MemberScheduleSelfService bool
	OwnerName                 string
	OwnerEmail                string
	OwnerTimezone             string
	OwnerEmploymentStart      *generic.TimePoint
}

// RegisterWorkspace stores the workspace, its default schedule and the
// owner in one transaction, then provisions the owner's allowances.
func (s *Service) RegisterWorkspace(ctx context.Context, reg Registration) (*tenant.Workspace, *tenant.Member, error) {
	now := s.now().UTC()
	ws := tenant.Workspace{
		ID:                        generic.WorkspaceID(generic.NewID()),
		Name:                      strings.TrimSpace(reg.Name),
		FiscalYearStartMonth:      reg.FiscalYearStartMonth,
		Timezone:                  reg.Timezone,
		MemberScheduleSelfService: reg.MemberScheduleSelfService,
		CreatedAt:                 now,
	}
	if ws.FiscalYearStartMonth == 0 {
		ws.FiscalYearStartMonth = time.January
	}
	if err := ws.Validate(); err != nil {
		return nil, nil, err
	}
	owner := tenant.Member{
		ID:                  generic.MemberID(generic.NewID()),
		WorkspaceID:         ws.ID,
		Name:                strings.TrimSpace(reg.OwnerName),
		Email:               reg.OwnerEmail,
		IsAdmin:             true,
		Timezone:            reg.OwnerTimezone,
		EmploymentStartDate: reg.OwnerEmploymentStart,
		Status:              tenant.MemberActive,
		CreatedAt:           now,
	}
	if err := validateMember(ws, owner); err != nil {
		return nil, nil, err
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateWorkspace(ctx, ws); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		if err := tx.SaveWorkspaceSchedule(ctx, schedule.WorkspaceSchedule{
			ID:          generic.ScheduleID(generic.NewID()),
			WorkspaceID: ws.ID,
			Schedule:    schedule.DefaultTemplate(),
			UpdatedAt:   now,
		}); err != nil {
			return fmt.Errorf("create workspace schedule: %w", err)
		}
		if err := tx.SaveMember(ctx, owner); err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().Str("workspace_id", string(ws.ID)).Str("member_id", string(owner.ID)).Msg("workspace registered")

	if _, err := s.ledger.Provision(ctx, ws.ID, owner.ID); err != nil {
		return nil, nil, fmt.Errorf("provision owner: %w", err)
	}
	return &ws, &owner, nil
}

// NewMember is what an admin supplies to add a member.
type NewMember struct {
	Name                string
	Email               string
	IsAdmin             bool
	Timezone            string
	PublicHolidayID     *generic.PublicHolidayID
	EmploymentStartDate *generic.TimePoint
}

// AddMember stores a member and provisions their allowances.
func (s *Service) AddMember(ctx context.Context, caller tenant.Caller, in NewMember) (*tenant.Member, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}
	m := tenant.Member{
		ID:                  generic.MemberID(generic.NewID()),
		WorkspaceID:         caller.WorkspaceID,
		Name:                strings.TrimSpace(in.Name),
		Email:               in.Email,
		IsAdmin:             in.IsAdmin,
		Timezone:            in.Timezone,
		PublicHolidayID:     in.PublicHolidayID,
		EmploymentStartDate: in.EmploymentStartDate,
		Status:              tenant.MemberActive,
		CreatedAt:           s.now().UTC(),
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		ws, err := tx.GetWorkspace(ctx, caller.WorkspaceID)
		if err != nil {
			return fmt.Errorf("load workspace: %w", err)
		}
		if ws == nil {
			return generic.NotFound("workspace", string(caller.WorkspaceID))
		}
		if err := validateMember(*ws, m); err != nil {
			return err
		}
		if m.PublicHolidayID != nil {
			if err := s.requireCalendar(ctx, tx, ws.ID, *m.PublicHolidayID); err != nil {
				return err
			}
		}
		return tx.SaveMember(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Provision(ctx, m.WorkspaceID, m.ID); err != nil {
		return nil, fmt.Errorf("provision member: %w", err)
	}
	return &m, nil
}

func validateMember(ws tenant.Workspace, m tenant.Member) error {
	details := map[string]string{}
	if m.Name == "" {
		details["name"] = "required"
	}
	if m.Timezone != "" {
		if _, err := tenant.Location(ws, m); err != nil {
			details["timezone"] = "unknown time zone " + m.Timezone
		}
	}
	if len(details) > 0 {
		return generic.ValidationDetails(details)
	}
	return nil
}

// ListMembers returns the caller's workspace members.
func (s *Service) ListMembers(ctx context.Context, caller tenant.Caller) ([]tenant.Member, error) {
	if err := caller.RequireWorkspace(caller.WorkspaceID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, caller.WorkspaceID)
}

// ListWorkspaces is used by the rollover scheduler.
func (s *Service) ListWorkspaces(ctx context.Context) ([]tenant.Workspace, error) {
	return s.store.ListWorkspaces(ctx)
}

// Caller builds the identity of a stored member. An unknown member, or one
// of another workspace, is Unauthorized.
func (s *Service) Caller(ctx context.Context, workspaceID generic.WorkspaceID, memberID generic.MemberID) (tenant.Caller, error) {
	m, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return tenant.Caller{}, fmt.Errorf("load caller: %w", err)
	}
	if m == nil || m.WorkspaceID != workspaceID || !m.Active() {
		return tenant.Caller{}, generic.Unauthorized("unknown member")
	}
	return tenant.Caller{MemberID: m.ID, WorkspaceID: m.WorkspaceID, IsAdmin: m.IsAdmin}, nil
}

// member loads a member of the caller's workspace.
func (s *Service) member(ctx context.Context, st Store, caller tenant.Caller, id generic.MemberID) (*tenant.Member, error) {
	m, err := st.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if m == nil {
		return nil, generic.NotFound("member", string(id))
	}
	if err := caller.RequireWorkspace(m.WorkspaceID); err != nil {
		return nil, err
	}
	return m, nil
}

// =============================================================================
// TYPES
// =============================================================================

// CreateAllowanceType stores a type and provisions it for every member.
func (s *Service) CreateAllowanceType(ctx context.Context, caller tenant.Caller, t allowance.AllowanceType) (*allowance.AllowanceType, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}
	t.ID = generic.AllowanceTypeID(generic.NewID())
	t.WorkspaceID = caller.WorkspaceID
	t.CreatedAt = s.now().UTC()
	if t.Unit == "" {
		t.Unit = generic.UnitDays
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateAllowanceType(ctx, t); err != nil {
		return nil, fmt.Errorf("create allowance type: %w", err)
	}

	if t.Active {
		res, err := s.ledger.Rollover(ctx, t.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if len(res.Failed) > 0 {
			s.log.Warn().
				Str("allowance_type_id", string(t.ID)).
				Int("failed", len(res.Failed)).
				Msg("allowance type not provisioned for every member")
		}
	}
	return &t, nil
}

func (s *Service) ListAllowanceTypes(ctx context.Context, caller tenant.Caller) ([]allowance.AllowanceType, error) {
	if err := caller.RequireWorkspace(caller.WorkspaceID); err != nil {
		return nil, err
	}
	return s.store.ListAllowanceTypes(ctx, caller.WorkspaceID)
}

// CreateLeaveType stores a leave type. One that takes from allowance must
// name an allowance type of the same workspace.
func (s *Service) CreateLeaveType(ctx context.Context, caller tenant.Caller, lt timeoff.LeaveType) (*timeoff.LeaveType, error) {
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		return nil, err
	}
	lt.ID = generic.LeaveTypeID(generic.NewID())
	lt.WorkspaceID = caller.WorkspaceID
	lt.CreatedAt = s.now().UTC()
	if lt.LeaveUnit == "" {
		lt.LeaveUnit = timeoff.UnitHalfDays
	}
	if err := lt.Validate(); err != nil {
		return nil, err
	}
	if lt.AllowanceTypeID != nil {
		t, err := s.store.GetAllowanceType(ctx, *lt.AllowanceTypeID)
		if err != nil {
			return nil, fmt.Errorf("load allowance type: %w", err)
		}
		if t == nil || t.WorkspaceID != lt.WorkspaceID {
			return nil, generic.Validation("allowance_type_id", "unknown allowance type "+string(*lt.AllowanceTypeID))
		}
	}
	if err := s.store.CreateLeaveType(ctx, lt); err != nil {
		return nil, fmt.Errorf("create leave type: %w", err)
	}
	return &lt, nil
}

func (s *Service) ListLeaveTypes(ctx context.Context, caller tenant.Caller) ([]timeoff.LeaveType, error) {
	if err := caller.RequireWorkspace(caller.WorkspaceID); err != nil {
		return nil, err
	}
	return s.store.ListLeaveTypes(ctx, caller.WorkspaceID)
}

// =============================================================================
// SHARED LOOKUPS
// =============================================================================

func (s *Service) requireCalendar(ctx context.Context, st Store, ws generic.WorkspaceID, id generic.PublicHolidayID) error {
	c, err := st.GetHolidayCalendar(ctx, id)
	if err != nil {
		return fmt.Errorf("load public holiday calendar: %w", err)
	}
	if c == nil || c.WorkspaceID != ws {
		return generic.NotFound("public holiday calendar", string(id))
	}
	return nil
}

// calculator builds the duration calculator for a member: their schedule
// timeline, their holiday calendar and their location.
func (s *Service) calculator(ctx context.Context, st Store, memberID generic.MemberID) (timeoff.Calculator, *tenant.Member, error) {
	tl, member, err := schedule.NewResolver(st, s.log).Timeline(ctx, memberID)
	if err != nil {
		return timeoff.Calculator{}, nil, err
	}
	ws, err := st.GetWorkspace(ctx, member.WorkspaceID)
	if err != nil {
		return timeoff.Calculator{}, nil, fmt.Errorf("load workspace: %w", err)
	}
	if ws == nil {
		return timeoff.Calculator{}, nil, generic.NotFound("workspace", string(member.WorkspaceID))
	}
	loc, err := tenant.Location(*ws, *member)
	if err != nil {
		return timeoff.Calculator{}, nil, err
	}

	calc := timeoff.Calculator{Schedules: tl, Location: loc}
	if member.PublicHolidayID != nil {
		days, err := st.ListHolidayDays(ctx, *member.PublicHolidayID)
		if err != nil {
			return timeoff.Calculator{}, nil, fmt.Errorf("load holidays: %w", err)
		}
		calc.Holidays = holiday.NewOverlay(days)
	}
	return calc, member, nil
}

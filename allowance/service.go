package allowance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
)

// =============================================================================
// SERVICE - Ledger operations with persistence
// =============================================================================
//
// Every operation that reads and rewrites a member's rows holds that
// member's lock and runs inside one store transaction, so two passes for the
// same member never interleave and a failed pass leaves nothing behind.

type Service struct {
	store TxStore
	locks *memberLocks
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store TxStore, log *logger.Logger) *Service {
	return &Service{
		store: store,
		locks: newMemberLocks(),
		log:   log.WithComponent("allowance"),
		now:   time.Now,
	}
}

// WithClock replaces the clock that decides "today" (rollover, expiry).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecomputeResult is what one member pass did.
type RecomputeResult struct {
	MemberID          generic.MemberID
	Rows              []MemberAllowance
	UpdatedRows       int
	RefreshedRequests int
	// ZeroDays lists counted request days that consumed nothing, by request.
	ZeroDays map[generic.RequestID][]timeoff.DayPortion
}

// BatchResult isolates per-member failures of a multi-member operation.
type BatchResult struct {
	Succeeded []generic.MemberID
	Failed    map[generic.MemberID]error
}

// Err joins the member failures, or nil.
func (b BatchResult) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(b.Failed))
	for id := range b.Failed {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, fmt.Errorf("member %s: %w", id, b.Failed[generic.MemberID(id)]))
	}
	return errors.Join(errs...)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// Recompute rebuilds every row of a member and persists what changed.
// Running it twice in a row writes nothing the second time.
func (s *Service) Recompute(ctx context.Context, workspaceID generic.WorkspaceID, memberID generic.MemberID) (*RecomputeResult, error) {
	unlock := s.locks.lock(memberID)
	defer unlock()

	var result *RecomputeResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		result, err = s.recompute(ctx, tx, workspaceID, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) recompute(ctx context.Context, tx Store, workspaceID generic.WorkspaceID, memberID generic.MemberID) (*RecomputeResult, error) {
	tl, member, err := schedule.NewResolver(tx, s.log).Timeline(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.WorkspaceID != workspaceID {
		return nil, generic.NotFound("member", string(memberID))
	}
	ws, err := tx.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	if ws == nil {
		return nil, generic.NotFound("workspace", string(workspaceID))
	}
	loc, err := tenant.Location(*ws, *member)
	if err != nil {
		return nil, err
	}

	calc := timeoff.Calculator{Schedules: tl, Location: loc}
	if member.PublicHolidayID != nil {
		days, err := tx.ListHolidayDays(ctx, *member.PublicHolidayID)
		if err != nil {
			return nil, fmt.Errorf("load holidays: %w", err)
		}
		calc.Holidays = holiday.NewOverlay(days)
	}

	types, err := tx.ListAllowanceTypes(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load allowance types: %w", err)
	}
	leaveTypes, err := tx.ListLeaveTypes(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load leave types: %w", err)
	}
	rows, err := tx.ListMemberAllowances(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load allowances: %w", err)
	}

	result := &RecomputeResult{MemberID: memberID, ZeroDays: map[generic.RequestID][]timeoff.DayPortion{}}
	if len(rows) == 0 {
		return result, nil
	}

	usage, err := s.collectUsage(ctx, tx, calc, memberID, leaveTypes, span(rows), result)
	if err != nil {
		return nil, err
	}

	byType := map[generic.AllowanceTypeID][]MemberAllowance{}
	for _, r := range rows {
		byType[r.AllowanceTypeID] = append(byType[r.AllowanceTypeID], r)
	}

	asOf := generic.DateOf(s.now().In(loc))
	log := s.log.WithMember(string(workspaceID), string(memberID))

	for _, t := range types {
		stored := byType[t.ID]
		if len(stored) == 0 {
			continue
		}
		before := map[int]MemberAllowance{}
		for _, r := range stored {
			before[r.Year] = r
		}

		for _, row := range Recalculate(LedgerInput{Type: t, Rows: stored, Usage: usage[t.ID], AsOf: asOf}) {
			if !SameLedger(before[row.Year], row) {
				row.UpdatedAt = s.now().UTC()
				if err := tx.UpsertMemberAllowance(ctx, row); err != nil {
					return nil, fmt.Errorf("save allowance %s/%d: %w", t.ID, row.Year, err)
				}
				result.UpdatedRows++
				log.Debug().
					Str("allowance_type_id", string(t.ID)).
					Int("year", row.Year).
					Str("taken", row.Taken.String()).
					Str("remaining", row.Remaining.String()).
					Msg("allowance row updated")
			}
			result.Rows = append(result.Rows, row)
		}
	}

	if result.UpdatedRows > 0 {
		entry := generic.NewAuditEntry(workspaceID, "", generic.AuditAllowanceRecomputed, string(memberID), map[string]any{
			"updated_rows":       result.UpdatedRows,
			"refreshed_requests": result.RefreshedRequests,
		})
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
	}
	return result, nil
}

// collectUsage breaks down every live request in the rows' span, refreshes
// stored durations that drifted, and returns per-type usage of the counted
// ones.
func (s *Service) collectUsage(
	ctx context.Context,
	tx Store,
	calc timeoff.Calculator,
	memberID generic.MemberID,
	leaveTypes []timeoff.LeaveType,
	period generic.Period,
	result *RecomputeResult,
) (map[generic.AllowanceTypeID][]Usage, error) {
	lts := make(map[generic.LeaveTypeID]timeoff.LeaveType, len(leaveTypes))
	for _, lt := range leaveTypes {
		lts[lt.ID] = lt
	}

	requests, err := tx.ListRequestsOverlapping(ctx, memberID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	usage := map[generic.AllowanceTypeID][]Usage{}
	for i := range requests {
		req := &requests[i]
		if req.Canceled() || req.Status == timeoff.StatusDeclined {
			continue
		}
		lt, ok := lts[req.LeaveTypeID]
		if !ok {
			return nil, generic.IllegalState("request %s references unknown leave type %s", req.ID, req.LeaveTypeID)
		}

		b, err := calc.Breakdown(req.Span(), lt)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", req.ID, err)
		}
		if req.SetDurations(b, lt) {
			if err := tx.UpdateRequestDurations(ctx, req.ID, req.Duration, req.WorkdayAbsenceDuration); err != nil {
				return nil, fmt.Errorf("refresh request %s: %w", req.ID, err)
			}
			result.RefreshedRequests++
		}

		if !req.Counted() || !lt.TakeFromAllowance || lt.AllowanceTypeID == nil {
			continue
		}
		for _, p := range b.Portions {
			if p.Zero() {
				result.ZeroDays[req.ID] = append(result.ZeroDays[req.ID], p)
				continue
			}
			usage[*lt.AllowanceTypeID] = append(usage[*lt.AllowanceTypeID], Usage{
				Date:        p.Date,
				RequestID:   req.ID,
				LeaveTypeID: lt.ID,
				Days:        p.Days,
				Minutes:     p.Minutes,
			})
		}
	}
	return usage, nil
}

// span is the smallest period covering every row.
func span(rows []MemberAllowance) generic.Period {
	p := rows[0].Period()
	for _, r := range rows[1:] {
		p.Start = generic.MinDate(p.Start, r.Start)
		p.End = generic.MaxDate(p.End, r.End)
	}
	return p
}

// RecomputeWorkspace recomputes every member of a workspace.
func (s *Service) RecomputeWorkspace(ctx context.Context, workspaceID generic.WorkspaceID) (BatchResult, error) {
	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list members: %w", err)
	}
	ids := make([]generic.MemberID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return s.RecomputeMembers(ctx, workspaceID, ids), nil
}

// RecomputeMembers recomputes each member independently. One failure is
// logged and does not stop the others.
func (s *Service) RecomputeMembers(ctx context.Context, workspaceID generic.WorkspaceID, ids []generic.MemberID) BatchResult {
	return s.batch(ctx, workspaceID, ids, "recompute", func(id generic.MemberID) error {
		_, err := s.Recompute(ctx, workspaceID, id)
		return err
	})
}

// RecomputeCalendar recomputes every member assigned to a holiday calendar.
func (s *Service) RecomputeCalendar(ctx context.Context, calendarID generic.PublicHolidayID) (BatchResult, error) {
	members, err := s.store.ListMembersByCalendar(ctx, calendarID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list calendar members: %w", err)
	}
	res := BatchResult{Failed: map[generic.MemberID]error{}}
	for _, m := range members {
		part := s.RecomputeMembers(ctx, m.WorkspaceID, []generic.MemberID{m.ID})
		res.Succeeded = append(res.Succeeded, part.Succeeded...)
		for id, err := range part.Failed {
			res.Failed[id] = err
		}
	}
	return res, nil
}

func (s *Service) batch(ctx context.Context, workspaceID generic.WorkspaceID, ids []generic.MemberID, op string, fn func(generic.MemberID) error) BatchResult {
	res := BatchResult{Failed: map[generic.MemberID]error{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed[id] = err
			continue
		}
		if err := fn(id); err != nil {
			res.Failed[id] = err
			s.log.Error().
				Err(err).
				Str("operation", op).
				Str("workspace_id", string(workspaceID)).
				Str("member_id", string(id)).
				Msg("member failed, continuing batch")
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	if len(res.Failed) > 0 {
		s.log.Warn().
			Str("operation", op).
			Str("workspace_id", string(workspaceID)).
			Int("succeeded", len(res.Succeeded)).
			Int("failed", len(res.Failed)).
			Msg("batch finished with failures")
	}
	return res
}

// =============================================================================
// MANUAL EDITS
// =============================================================================

// AllowanceEdit changes one row. nil fields are left as they are.
type AllowanceEdit struct {
	MemberID            generic.MemberID
	AllowanceTypeID     generic.AllowanceTypeID
	Year                int
	Allowance           *decimal.Decimal
	BroughtForward      *decimal.Decimal
	CompensatoryTimeOff *decimal.Decimal
}

// EditAllowance applies an admin edit. A brought_forward that differs from
// the stored one latches the row to ManuallySet for good. The member is
// recomputed afterwards so later years pick up the change.
func (s *Service) EditAllowance(ctx context.Context, caller tenant.Caller, edit AllowanceEdit) (*MemberAllowance, error) {
	unlock := s.locks.lock(edit.MemberID)
	defer unlock()

	var out *MemberAllowance
	err := s.store.WithTx(ctx, func(tx Store) error {
		member, err := tx.GetMember(ctx, edit.MemberID)
		if err != nil {
			return fmt.Errorf("load member: %w", err)
		}
		if member == nil {
			return generic.NotFound("member", string(edit.MemberID))
		}
		if err := caller.RequireAdmin(member.WorkspaceID); err != nil {
			return err
		}

		row, err := tx.GetMemberAllowance(ctx, edit.MemberID, edit.AllowanceTypeID, edit.Year)
		if err != nil {
			return fmt.Errorf("load allowance: %w", err)
		}
		if row == nil {
			return generic.NotFound("member allowance", fmt.Sprintf("%s/%s/%d", edit.MemberID, edit.AllowanceTypeID, edit.Year))
		}

		before := *row
		if edit.Allowance != nil {
			row.Allowance = *edit.Allowance
		}
		if edit.CompensatoryTimeOff != nil {
			row.CompensatoryTimeOff = *edit.CompensatoryTimeOff
		}
		if edit.BroughtForward != nil && !edit.BroughtForward.Equal(row.BroughtForward) {
			row.BroughtForward = *edit.BroughtForward
			row.BroughtForwardState = ManuallySet
		}
		row.Settle()
		row.UpdatedAt = s.now().UTC()

		if err := tx.UpsertMemberAllowance(ctx, *row); err != nil {
			return fmt.Errorf("save allowance: %w", err)
		}
		if err := tx.AppendAudit(ctx, generic.NewAuditEntry(member.WorkspaceID, caller.MemberID, generic.AuditAllowanceEdited, string(member.ID), map[string]any{
			"allowance_type_id":     string(row.AllowanceTypeID),
			"year":                  row.Year,
			"allowance":             [2]string{before.Allowance.String(), row.Allowance.String()},
			"brought_forward":       [2]string{before.BroughtForward.String(), row.BroughtForward.String()},
			"compensatory_time_off": [2]string{before.CompensatoryTimeOff.String(), row.CompensatoryTimeOff.String()},
			"brought_forward_state": row.BroughtForwardState.String(),
		})); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		res, err := s.recompute(ctx, tx, member.WorkspaceID, member.ID)
		if err != nil {
			return err
		}
		for i := range res.Rows {
			if res.Rows[i].AllowanceTypeID == row.AllowanceTypeID && res.Rows[i].Year == row.Year {
				out = &res.Rows[i]
			}
		}
		if out == nil {
			out = row
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EditConfiguration toggles default/disabled for one of the member's types.
func (s *Service) EditConfiguration(ctx context.Context, caller tenant.Caller, memberID generic.MemberID, change ConfigurationChange) ([]TypeConfiguration, error) {
	unlock := s.locks.lock(memberID)
	defer unlock()

	var out []TypeConfiguration
	err := s.store.WithTx(ctx, func(tx Store) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return fmt.Errorf("load member: %w", err)
		}
		if member == nil {
			return generic.NotFound("member", string(memberID))
		}
		if err := caller.RequireSelfOrAdmin(member.WorkspaceID, memberID); err != nil {
			return err
		}

		configs, err := tx.ListConfigurations(ctx, memberID)
		if err != nil {
			return fmt.Errorf("load configurations: %w", err)
		}
		next, err := ApplyConfigurationChange(configs, change)
		if err != nil {
			return err
		}
		if err := CheckDefaultInvariant(next); err != nil {
			return err
		}
		if err := tx.SaveConfigurations(ctx, next); err != nil {
			return fmt.Errorf("save configurations: %w", err)
		}

		payload := map[string]any{"allowance_type_id": string(change.AllowanceTypeID)}
		if change.Default != nil {
			payload["default"] = *change.Default
		}
		if change.Disabled != nil {
			payload["disabled"] = *change.Disabled
		}
		if err := tx.AppendAudit(ctx, generic.NewAuditEntry(member.WorkspaceID, caller.MemberID, generic.AuditConfigurationChanged, string(memberID), payload)); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// PROVISIONING AND ROLLOVER
// =============================================================================

// Provision creates the rows and configurations a member is missing for
// every active type, then recomputes. Archived members are skipped.
func (s *Service) Provision(ctx context.Context, workspaceID generic.WorkspaceID, memberID generic.MemberID) (*RecomputeResult, error) {
	unlock := s.locks.lock(memberID)
	defer unlock()

	var result *RecomputeResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return fmt.Errorf("load member: %w", err)
		}
		if member == nil || member.WorkspaceID != workspaceID {
			return generic.NotFound("member", string(memberID))
		}
		if !member.Active() {
			result = &RecomputeResult{MemberID: memberID}
			return nil
		}
		ws, err := tx.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return fmt.Errorf("load workspace: %w", err)
		}
		if ws == nil {
			return generic.NotFound("workspace", string(workspaceID))
		}
		loc, err := tenant.Location(*ws, *member)
		if err != nil {
			return err
		}

		if err := s.provisionRows(ctx, tx, *ws, *member, generic.DateOf(s.now().In(loc))); err != nil {
			return err
		}
		result, err = s.recompute(ctx, tx, workspaceID, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) provisionRows(ctx context.Context, tx Store, ws tenant.Workspace, member tenant.Member, today generic.TimePoint) error {
	types, err := tx.ListAllowanceTypes(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("load allowance types: %w", err)
	}
	rows, err := tx.ListMemberAllowances(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("load allowances: %w", err)
	}
	configs, err := tx.ListConfigurations(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("load configurations: %w", err)
	}

	have := map[string]bool{}
	for _, r := range rows {
		have[fmt.Sprintf("%s/%d", r.AllowanceTypeID, r.Year)] = true
	}
	configured := map[generic.AllowanceTypeID]bool{}
	for _, c := range configs {
		configured[c.AllowanceTypeID] = true
	}

	years := YearsToProvision(ws.FiscalYearStartMonth, today, member.EmploymentStartDate)
	created, configsChanged := 0, false
	for _, t := range types {
		if !t.Active {
			continue
		}
		for _, y := range years {
			if have[fmt.Sprintf("%s/%d", t.ID, y)] {
				continue
			}
			row := NewYearRow(t, ws.ID, member.ID, ws.FiscalYearStartMonth, y)
			row.UpdatedAt = s.now().UTC()
			if err := tx.UpsertMemberAllowance(ctx, row); err != nil {
				return fmt.Errorf("create allowance %s/%d: %w", t.ID, y, err)
			}
			created++
		}
		if !configured[t.ID] {
			configs = AddConfiguration(configs, TypeConfiguration{
				ID:              generic.NewID(),
				WorkspaceID:     ws.ID,
				MemberID:        member.ID,
				AllowanceTypeID: t.ID,
				CreatedAt:       t.CreatedAt,
			})
			configsChanged = true
		}
	}

	if configsChanged {
		if err := CheckDefaultInvariant(configs); err != nil {
			return err
		}
		if err := tx.SaveConfigurations(ctx, configs); err != nil {
			return fmt.Errorf("save configurations: %w", err)
		}
	}
	if created > 0 {
		s.log.Info().
			Str("workspace_id", string(ws.ID)).
			Str("member_id", string(member.ID)).
			Ints("years", years).
			Int("rows", created).
			Msg("allowance rows provisioned")
		if err := tx.AppendAudit(ctx, generic.NewAuditEntry(ws.ID, "", generic.AuditRollover, string(member.ID), map[string]any{
			"years": years,
			"rows":  created,
		})); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	return nil
}

// Rollover provisions every member of the workspace, best effort.
func (s *Service) Rollover(ctx context.Context, workspaceID generic.WorkspaceID) (BatchResult, error) {
	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list members: %w", err)
	}
	ids := make([]generic.MemberID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return s.batch(ctx, workspaceID, ids, "rollover", func(id generic.MemberID) error {
		_, err := s.Provision(ctx, workspaceID, id)
		return err
	}), nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListAllowances returns the member's rows ordered by type and year. Rows of
// disabled types are hidden unless includeDisabled is set.
func (s *Service) ListAllowances(ctx context.Context, caller tenant.Caller, memberID generic.MemberID, includeDisabled bool) ([]MemberAllowance, error) {
	member, err := s.memberFor(ctx, caller, memberID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListMemberAllowances(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("load allowances: %w", err)
	}
	if !includeDisabled {
		configs, err := s.store.ListConfigurations(ctx, member.ID)
		if err != nil {
			return nil, fmt.Errorf("load configurations: %w", err)
		}
		disabled := map[generic.AllowanceTypeID]bool{}
		for _, c := range configs {
			disabled[c.AllowanceTypeID] = c.Disabled
		}
		visible := rows[:0]
		for _, r := range rows {
			if !disabled[r.AllowanceTypeID] {
				visible = append(visible, r)
			}
		}
		rows = visible
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AllowanceTypeID != rows[j].AllowanceTypeID {
			return rows[i].AllowanceTypeID < rows[j].AllowanceTypeID
		}
		return rows[i].Year < rows[j].Year
	})
	return rows, nil
}

// ListConfigurations returns the member's type configurations.
func (s *Service) ListConfigurations(ctx context.Context, caller tenant.Caller, memberID generic.MemberID) ([]TypeConfiguration, error) {
	member, err := s.memberFor(ctx, caller, memberID)
	if err != nil {
		return nil, err
	}
	return s.store.ListConfigurations(ctx, member.ID)
}

func (s *Service) memberFor(ctx context.Context, caller tenant.Caller, memberID generic.MemberID) (*tenant.Member, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, generic.NotFound("member", string(memberID))
	}
	if err := caller.RequireSelfOrAdmin(member.WorkspaceID, memberID); err != nil {
		return nil, err
	}
	return member, nil
}

// =============================================================================
// JOBS
// =============================================================================

// HandleJob runs a queued job. Batch jobs fail when any member failed so the
// queue retries them; recompute is idempotent so members that already
// succeeded are unaffected by the retry.
func (s *Service) HandleJob(ctx context.Context, job events.Job) error {
	switch job.Kind {
	case events.KindRecomputeMember:
		_, err := s.Recompute(ctx, job.WorkspaceID, job.MemberID)
		return err
	case events.KindRecomputeWorkspace:
		res, err := s.RecomputeWorkspace(ctx, job.WorkspaceID)
		if err != nil {
			return err
		}
		return res.Err()
	case events.KindRecomputeCalendar:
		res, err := s.RecomputeCalendar(ctx, job.PublicHolidayID)
		if err != nil {
			return err
		}
		return res.Err()
	case events.KindRolloverWorkspace:
		res, err := s.Rollover(ctx, job.WorkspaceID)
		if err != nil {
			return err
		}
		return res.Err()
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

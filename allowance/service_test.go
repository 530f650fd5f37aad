package allowance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/store/sqlstore"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *sqlstore.Store
	svc    *allowance.Service
	ws     tenant.Workspace
	admin  tenant.Caller
	member tenant.Member
	typ    allowance.AllowanceType
	lt     timeoff.LeaveType
}

// newFixture seeds a January workspace with an admin, one member, a
// "Vacation" type and a leave type drawing from it. Today is 2025-03-10.
func newFixture(t *testing.T, typ allowance.AllowanceType) *fixture {
	t.Helper()
	st, err := sqlstore.NewSQLite(":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: st,
		svc:   allowance.NewService(st.Allowances(), logger.Nop()).WithClock(func() time.Time { return now }),
	}

	f.ws = tenant.Workspace{ID: "ws-1", Name: "Acme", FiscalYearStartMonth: time.January, Timezone: "UTC", CreatedAt: now}
	require.NoError(t, st.CreateWorkspace(f.ctx, f.ws))
	require.NoError(t, st.SaveWorkspaceSchedule(f.ctx, schedule.WorkspaceSchedule{
		ID: "sched-ws", WorkspaceID: f.ws.ID, Schedule: schedule.DefaultTemplate(), UpdatedAt: now,
	}))

	admin := tenant.Member{ID: "admin", WorkspaceID: f.ws.ID, Name: "Ada", IsAdmin: true, Status: tenant.MemberActive, CreatedAt: now}
	f.member = tenant.Member{ID: "m-1", WorkspaceID: f.ws.ID, Name: "Bob", Status: tenant.MemberActive, CreatedAt: now}
	require.NoError(t, st.SaveMember(f.ctx, admin))
	require.NoError(t, st.SaveMember(f.ctx, f.member))
	f.admin = tenant.Caller{MemberID: admin.ID, WorkspaceID: f.ws.ID, IsAdmin: true}

	typ.WorkspaceID = f.ws.ID
	typ.CreatedAt = now
	require.NoError(t, st.CreateAllowanceType(f.ctx, typ))
	f.typ = typ

	f.lt = timeoff.LeaveType{
		ID: "lt-vacation", WorkspaceID: f.ws.ID, Name: "Vacation",
		TakeFromAllowance: true, AllowanceTypeID: &f.typ.ID, LeaveUnit: timeoff.UnitHalfDays, CreatedAt: now,
	}
	require.NoError(t, st.CreateLeaveType(f.ctx, f.lt))

	_, err = f.svc.Provision(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)
	return f
}

func vacation() allowance.AllowanceType {
	return allowance.AllowanceType{
		ID:               "vacation",
		Name:             "Vacation",
		Unit:             generic.UnitDays,
		DefaultAllowance: dec("20"),
		Active:           true,
	}
}

func (f *fixture) approved(id generic.RequestID, from, to string) {
	f.t.Helper()
	approver := f.admin.MemberID
	require.NoError(f.t, f.store.SaveRequest(f.ctx, timeoff.Request{
		ID:          id,
		WorkspaceID: f.ws.ID,
		MemberID:    f.member.ID,
		LeaveTypeID: f.lt.ID,
		Start:       generic.MustParseDate(from),
		End:         generic.MustParseDate(to),
		StartAt:     timeoff.StartMorning,
		EndAt:       timeoff.EndOfDay,
		Status:      timeoff.StatusApproved,
		ApprovedBy:  &approver,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))
}

func (f *fixture) row(year int) allowance.MemberAllowance {
	f.t.Helper()
	row, err := f.store.GetMemberAllowance(f.ctx, f.member.ID, f.typ.ID, year)
	require.NoError(f.t, err)
	require.NotNil(f.t, row, "no %d row", year)
	return *row
}

// =============================================================================
// PROVISION
// =============================================================================

func TestProvision_CurrentAndNextYear(t *testing.T) {
	// GIVEN/WHEN: A provisioned member
	f := newFixture(t, vacation())

	// THEN: 2025 and 2026 exist with the type's default allowance
	rows, err := f.store.ListMemberAllowances(f.ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, f.row(2025).Allowance.Equal(dec("20")))
	assert.True(t, f.row(2026).BroughtForward.Equal(dec("20")))

	// AND: The type is the member's default
	configs, err := f.store.ListConfigurations(f.ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.True(t, configs[0].Default)

	// WHEN: Provisioning again
	res, err := f.svc.Provision(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)

	// THEN: Nothing is created or rewritten
	assert.Equal(t, 0, res.UpdatedRows)
	rows, err = f.store.ListMemberAllowances(f.ctx, f.member.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestProvision_OtherWorkspaceNotFound(t *testing.T) {
	f := newFixture(t, vacation())

	_, err := f.svc.Provision(f.ctx, "ws-other", f.member.ID)

	assert.True(t, generic.IsNotFound(err))
}

func TestProvision_InactiveTypeSkipped(t *testing.T) {
	typ := vacation()
	typ.Active = false

	f := newFixture(t, typ)

	rows, err := f.store.ListMemberAllowances(f.ctx, f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_CountsApprovedRequests(t *testing.T) {
	// GIVEN: An approved Monday to Sunday request
	f := newFixture(t, vacation())
	f.approved("r-1", "2025-03-17", "2025-03-23")

	// WHEN: Recomputing
	res, err := f.svc.Recompute(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)

	// THEN: Weekdays are taken and the weekend is reported as zero days
	assert.True(t, f.row(2025).Taken.Equal(dec("5")))
	assert.True(t, f.row(2025).Remaining.Equal(dec("15")))
	assert.True(t, f.row(2026).BroughtForward.Equal(dec("15")))
	assert.Len(t, res.ZeroDays["r-1"], 2)

	// AND: The stored durations were refreshed
	assert.Equal(t, 1, res.RefreshedRequests)
	r, err := f.store.GetRequest(f.ctx, "r-1")
	require.NoError(t, err)
	assert.True(t, r.Duration.Equal(dec("7")))
	assert.True(t, r.WorkdayAbsenceDuration.Equal(dec("5")))

	// AND: Stats name the leave type
	stat := f.row(2025).LeaveTypesStats[f.lt.ID]
	assert.Equal(t, 1, stat.Requests)
}

func TestRecompute_Idempotent(t *testing.T) {
	// GIVEN: A recomputed member
	f := newFixture(t, vacation())
	f.approved("r-1", "2025-03-17", "2025-03-18")
	first, err := f.svc.Recompute(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)
	assert.Positive(t, first.UpdatedRows)

	// WHEN: Recomputing again with nothing changed
	second, err := f.svc.Recompute(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)

	// THEN: No row or request is written
	assert.Equal(t, 0, second.UpdatedRows)
	assert.Equal(t, 0, second.RefreshedRequests)
}

func TestRecompute_CarryForwardCapped(t *testing.T) {
	// GIVEN: A type carrying at most five days
	typ := vacation()
	ceiling := dec("5")
	typ.MaxCarryForward = &ceiling

	// WHEN: The member is provisioned with nothing taken
	f := newFixture(t, typ)

	// THEN: Next year starts with five carried days
	assert.True(t, f.row(2026).BroughtForward.Equal(dec("5")))
	assert.True(t, f.row(2026).Remaining.Equal(dec("25")))
}

func TestRecompute_HoursType(t *testing.T) {
	// GIVEN: An hour-based type and a one-day request
	typ := vacation()
	typ.Unit = generic.UnitHours
	typ.DefaultAllowance = dec("160")
	f := newFixture(t, typ)
	f.approved("r-1", "2025-03-17", "2025-03-17")

	// WHEN: Recomputing
	_, err := f.svc.Recompute(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)

	// THEN: Eight scheduled hours are taken
	assert.True(t, f.row(2025).Taken.Equal(dec("8")))
}

func TestRecomputeMembers_IsolatesFailures(t *testing.T) {
	// GIVEN: One real member and one unknown id
	f := newFixture(t, vacation())

	// WHEN: Recomputing both
	res := f.svc.RecomputeMembers(f.ctx, f.ws.ID, []generic.MemberID{"ghost", f.member.ID})

	// THEN: The real member succeeded and the failure is reported
	assert.Equal(t, []generic.MemberID{f.member.ID}, res.Succeeded)
	require.Contains(t, res.Failed, generic.MemberID("ghost"))
	assert.True(t, generic.IsNotFound(res.Failed["ghost"]))
	assert.ErrorContains(t, res.Err(), "member ghost")
}

// =============================================================================
// MANUAL EDITS
// =============================================================================

func TestEditAllowance_BroughtForwardLatches(t *testing.T) {
	// GIVEN: A provisioned member
	f := newFixture(t, vacation())
	bf := dec("3")

	// WHEN: An admin sets next year's brought forward
	row, err := f.svc.EditAllowance(f.ctx, f.admin, allowance.AllowanceEdit{
		MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2026, BroughtForward: &bf,
	})
	require.NoError(t, err)

	// THEN: It is ManuallySet
	assert.Equal(t, allowance.ManuallySet, row.BroughtForwardState)
	assert.True(t, row.Remaining.Equal(dec("23")))

	// WHEN: Usage changes in 2025 and the member is recomputed
	f.approved("r-1", "2025-03-17", "2025-03-21")
	_, err = f.svc.Recompute(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)

	// THEN: The manual value survives
	assert.True(t, f.row(2025).Remaining.Equal(dec("15")))
	assert.True(t, f.row(2026).BroughtForward.Equal(dec("3")))
	assert.Equal(t, allowance.ManuallySet, f.row(2026).BroughtForwardState)

	// AND: The edit was audited
	entries, err := f.store.ListAudit(f.ctx, generic.AuditFilter{
		WorkspaceID: f.ws.ID, Actions: []generic.AuditAction{generic.AuditAllowanceEdited},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEditAllowance_ConcurrentWithRecompute(t *testing.T) {
	// GIVEN: A latched 2026 brought forward and 5 days taken in 2025
	f := newFixture(t, vacation())
	bf := dec("3")
	_, err := f.svc.EditAllowance(f.ctx, f.admin, allowance.AllowanceEdit{
		MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2026, BroughtForward: &bf,
	})
	require.NoError(t, err)
	f.approved("r-1", "2025-03-17", "2025-03-21")

	// WHEN: Recomputes race an edit of the 2025 allowance
	extra := dec("22")
	var wg sync.WaitGroup
	errs := make(chan error, 9)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Recompute(f.ctx, f.ws.ID, f.member.ID)
			errs <- err
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.EditAllowance(f.ctx, f.admin, allowance.AllowanceEdit{
			MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2025, Allowance: &extra,
		})
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// THEN: Every row balances and the manual value is still latched
	rows, err := f.store.ListMemberAllowances(f.ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.Balanced(), "year %d does not balance", row.Year)
	}
	assert.True(t, f.row(2025).Remaining.Equal(dec("17")), f.row(2025).Remaining.String())
	assert.True(t, f.row(2026).BroughtForward.Equal(dec("3")))
	assert.Equal(t, allowance.ManuallySet, f.row(2026).BroughtForwardState)
	assert.True(t, f.row(2026).Remaining.Equal(dec("23")))
}

func TestEditAllowance_AllowanceFlowsIntoNextYear(t *testing.T) {
	f := newFixture(t, vacation())
	extra := dec("25")

	_, err := f.svc.EditAllowance(f.ctx, f.admin, allowance.AllowanceEdit{
		MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2025, Allowance: &extra,
	})
	require.NoError(t, err)

	assert.True(t, f.row(2025).Remaining.Equal(dec("25")))
	assert.True(t, f.row(2026).BroughtForward.Equal(dec("25")))
	assert.Equal(t, allowance.Computed, f.row(2026).BroughtForwardState)
}

func TestEditAllowance_Errors(t *testing.T) {
	f := newFixture(t, vacation())
	v := dec("1")

	t.Run("non-admin", func(t *testing.T) {
		self := tenant.Caller{MemberID: f.member.ID, WorkspaceID: f.ws.ID}
		_, err := f.svc.EditAllowance(f.ctx, self, allowance.AllowanceEdit{
			MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2025, Allowance: &v,
		})
		assert.True(t, generic.IsUnauthorized(err))
	})

	t.Run("missing year", func(t *testing.T) {
		_, err := f.svc.EditAllowance(f.ctx, f.admin, allowance.AllowanceEdit{
			MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2019, Allowance: &v,
		})
		assert.True(t, generic.IsNotFound(err))
	})

	t.Run("other workspace", func(t *testing.T) {
		outsider := tenant.Caller{MemberID: "x", WorkspaceID: "ws-other", IsAdmin: true}
		_, err := f.svc.EditAllowance(f.ctx, outsider, allowance.AllowanceEdit{
			MemberID: f.member.ID, AllowanceTypeID: f.typ.ID, Year: 2025, Allowance: &v,
		})
		assert.True(t, generic.IsUnauthorized(err))
	})
}

// =============================================================================
// CONFIGURATION AND QUERIES
// =============================================================================

func TestEditConfiguration_DisabledHidesRows(t *testing.T) {
	// GIVEN: A second active type, so the first can be disabled
	f := newFixture(t, vacation())
	sick := vacation()
	sick.ID, sick.Name, sick.WorkspaceID = "sick", "Sick", f.ws.ID
	require.NoError(t, f.store.CreateAllowanceType(f.ctx, sick))
	_, err := f.svc.Provision(f.ctx, f.ws.ID, f.member.ID)
	require.NoError(t, err)

	// WHEN: The member disables Vacation
	self := tenant.Caller{MemberID: f.member.ID, WorkspaceID: f.ws.ID}
	yes := true
	configs, err := f.svc.EditConfiguration(f.ctx, self, f.member.ID, allowance.ConfigurationChange{
		AllowanceTypeID: f.typ.ID, Disabled: &yes,
	})
	require.NoError(t, err)

	// THEN: The default moved to Sick
	def, ok := allowance.DefaultType(configs)
	require.True(t, ok)
	assert.Equal(t, sick.ID, def)

	// AND: Vacation rows are hidden unless asked for
	visible, err := f.svc.ListAllowances(f.ctx, self, f.member.ID, false)
	require.NoError(t, err)
	for _, r := range visible {
		assert.Equal(t, sick.ID, r.AllowanceTypeID)
	}
	all, err := f.svc.ListAllowances(f.ctx, self, f.member.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestListAllowances_OtherMemberUnauthorized(t *testing.T) {
	f := newFixture(t, vacation())
	other := tenant.Caller{MemberID: "someone", WorkspaceID: f.ws.ID}

	_, err := f.svc.ListAllowances(f.ctx, other, f.member.ID, false)

	assert.True(t, generic.IsUnauthorized(err))
}

// =============================================================================
// JOBS
// =============================================================================

func TestHandleJob(t *testing.T) {
	f := newFixture(t, vacation())
	f.approved("r-1", "2025-03-17", "2025-03-17")

	t.Run("member", func(t *testing.T) {
		require.NoError(t, f.svc.HandleJob(f.ctx, events.RecomputeMember(f.ws.ID, f.member.ID, "test")))
		assert.True(t, f.row(2025).Taken.Equal(dec("1")))
	})

	t.Run("workspace", func(t *testing.T) {
		require.NoError(t, f.svc.HandleJob(f.ctx, events.RecomputeWorkspace(f.ws.ID, "test")))
	})

	t.Run("rollover", func(t *testing.T) {
		require.NoError(t, f.svc.HandleJob(f.ctx, events.RolloverWorkspace(f.ws.ID)))
	})

	t.Run("unknown kind", func(t *testing.T) {
		err := f.svc.HandleJob(f.ctx, events.Job{Kind: "recompute.galaxy"})
		assert.ErrorContains(t, err, "unknown job kind")
	})
}

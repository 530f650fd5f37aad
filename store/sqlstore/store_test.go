package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
	"github.com/absentify/allowance-engine/workspace"
)

var (
	_ allowance.TxStore = allowanceStore{}
	_ workspace.TxStore = workspaceStore{}
	_ schedule.Store    = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func seedMember(t *testing.T, s *Store) (tenant.Workspace, tenant.Member) {
	t.Helper()
	ctx := context.Background()
	ws := tenant.Workspace{
		ID:                   "ws-1",
		Name:                 "Acme",
		FiscalYearStartMonth: time.January,
		Timezone:             "Europe/Berlin",
		CreatedAt:            time.Now(),
	}
	require.NoError(t, s.CreateWorkspace(ctx, ws))
	m := tenant.Member{
		ID:          "m-1",
		WorkspaceID: ws.ID,
		Name:        "Ada",
		Status:      tenant.MemberActive,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.SaveMember(ctx, m))
	return ws, m
}

func TestStore_WorkspaceAndMemberRoundTrip(t *testing.T) {
	// GIVEN: A workspace and a member with a holiday calendar and start date
	s := newTestStore(t)
	ctx := context.Background()
	ws, m := seedMember(t, s)

	cal := generic.PublicHolidayID("cal-1")
	start := d("2023-03-01")
	m.PublicHolidayID = &cal
	m.EmploymentStartDate = &start
	m.IsAdmin = true

	// WHEN: The member is saved again and both are read back
	require.NoError(t, s.SaveMember(ctx, m))
	gotWS, err := s.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	gotM, err := s.GetMember(ctx, m.ID)
	require.NoError(t, err)
	byCal, err := s.ListMembersByCalendar(ctx, cal)
	require.NoError(t, err)

	// THEN: Every field survives
	require.NotNil(t, gotWS)
	assert.Equal(t, "Europe/Berlin", gotWS.Timezone)
	assert.Equal(t, time.January, gotWS.FiscalYearStartMonth)
	require.NotNil(t, gotM)
	assert.True(t, gotM.IsAdmin)
	require.NotNil(t, gotM.PublicHolidayID)
	assert.Equal(t, cal, *gotM.PublicHolidayID)
	require.NotNil(t, gotM.EmploymentStartDate)
	assert.True(t, gotM.EmploymentStartDate.Equal(start))
	assert.Len(t, byCal, 1)
}

func TestStore_MissingRowsAreNil(t *testing.T) {
	// GIVEN: An empty database
	s := newTestStore(t)
	ctx := context.Background()

	// WHEN/THEN: Lookups return nil without error
	m, err := s.GetMember(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, m)

	ws, err := s.GetWorkspaceSchedule(ctx, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, ws)

	row, err := s.GetMemberAllowance(ctx, "nobody", "vacation", 2025)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestStore_WorkspaceScheduleKeepsAllColumns(t *testing.T) {
	// GIVEN: A schedule that differs from the template on several weekdays
	s := newTestStore(t)
	ctx := context.Background()
	ws, _ := seedMember(t, s)

	w := schedule.DefaultTemplate()
	fri := w.Day(time.Friday)
	fri.PMEnabled = false
	fri.DeductFullday = true
	w = w.WithDay(time.Friday, fri)
	sat := w.Day(time.Saturday)
	sat.AMEnabled = true
	sat.AMStart = schedule.MustTime("09:30")
	sat.AMEnd = schedule.MustTime("11:45")
	w = w.WithDay(time.Saturday, sat)

	// WHEN: It is saved twice (insert then upsert) and read back
	row := schedule.WorkspaceSchedule{ID: "sched-ws", WorkspaceID: ws.ID, Schedule: schedule.DefaultTemplate(), UpdatedAt: time.Now()}
	require.NoError(t, s.SaveWorkspaceSchedule(ctx, row))
	row.Schedule = w
	require.NoError(t, s.SaveWorkspaceSchedule(ctx, row))

	got, err := s.GetWorkspaceSchedule(ctx, ws.ID)
	require.NoError(t, err)

	// THEN: All 49 values round-trip
	require.NotNil(t, got)
	assert.Equal(t, generic.ScheduleID("sched-ws"), got.ID)
	for _, wd := range schedule.Weekdays {
		want, have := w.Day(wd), got.Schedule.Day(wd)
		assert.True(t, want.AMStart.Equal(have.AMStart), wd.String())
		assert.True(t, want.AMEnd.Equal(have.AMEnd), wd.String())
		assert.True(t, want.PMStart.Equal(have.PMStart), wd.String())
		assert.True(t, want.PMEnd.Equal(have.PMEnd), wd.String())
		assert.Equal(t, want.AMEnabled, have.AMEnabled, wd.String())
		assert.Equal(t, want.PMEnabled, have.PMEnabled, wd.String())
		assert.Equal(t, want.DeductFullday, have.DeductFullday, wd.String())
	}
}

func TestStore_MemberSchedulesOrderedAndUniqueByFrom(t *testing.T) {
	// GIVEN: Two versions saved out of order
	s := newTestStore(t)
	ctx := context.Background()
	ws, m := seedMember(t, s)

	later := schedule.MemberSchedule{ID: "v2", WorkspaceID: ws.ID, MemberID: m.ID, From: d("2025-06-01"), Schedule: schedule.DefaultTemplate(), CreatedAt: time.Now()}
	earlier := schedule.MemberSchedule{ID: "v1", WorkspaceID: ws.ID, MemberID: m.ID, From: d("2025-01-01"), Schedule: schedule.DefaultTemplate(), CreatedAt: time.Now()}
	require.NoError(t, s.SaveMemberSchedule(ctx, later))
	require.NoError(t, s.SaveMemberSchedule(ctx, earlier))

	// WHEN: Listing
	versions, err := s.ListMemberSchedules(ctx, m.ID)
	require.NoError(t, err)

	// THEN: Ordered by from
	require.Len(t, versions, 2)
	assert.Equal(t, generic.ScheduleID("v1"), versions[0].ID)
	assert.Equal(t, generic.ScheduleID("v2"), versions[1].ID)

	// WHEN: A third version reuses a from date
	dup := earlier
	dup.ID = "v3"
	err = s.SaveMemberSchedule(ctx, dup)

	// THEN: The unique index rejects it as a validation error
	require.Error(t, err)
	assert.True(t, generic.IsValidation(err), err.Error())

	// WHEN: A version is deleted, deleting it again is NotFound
	require.NoError(t, s.DeleteMemberSchedule(ctx, "v1"))
	assert.True(t, generic.IsNotFound(s.DeleteMemberSchedule(ctx, "v1")))
}

func TestStore_UpsertMemberAllowanceKeepsID(t *testing.T) {
	// GIVEN: A stored row
	s := newTestStore(t)
	ctx := context.Background()
	ws, m := seedMember(t, s)

	vacation := allowance.AllowanceType{ID: "vacation", WorkspaceID: ws.ID, Name: "Vacation", Unit: generic.UnitDays, DefaultAllowance: decimal.NewFromInt(20), Active: true, CreatedAt: time.Now()}
	require.NoError(t, s.CreateAllowanceType(ctx, vacation))

	row := allowance.NewYearRow(vacation, ws.ID, m.ID, time.January, 2025)
	require.NoError(t, s.UpsertMemberAllowance(ctx, row))
	originalID := row.ID

	// WHEN: The same key is upserted with a new id and new quantities
	exp := d("2025-04-01")
	row.ID = "something-else"
	row.Taken = decimal.RequireFromString("2.5")
	row.BroughtForward = decimal.NewFromInt(3)
	row.BroughtForwardState = allowance.ManuallySet
	row.Expiration = &exp
	row.LeaveTypesStats = map[generic.LeaveTypeID]allowance.LeaveTypeStat{"lt-1": {Amount: decimal.RequireFromString("2.5"), Requests: 1}}
	row.Settle()
	require.NoError(t, s.UpsertMemberAllowance(ctx, row))

	got, err := s.GetMemberAllowance(ctx, m.ID, vacation.ID, 2025)
	require.NoError(t, err)

	// THEN: The id is kept, everything else is replaced
	require.NotNil(t, got)
	assert.Equal(t, originalID, got.ID)
	assert.True(t, got.Taken.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, got.Remaining.Equal(decimal.RequireFromString("20.5")))
	assert.Equal(t, allowance.ManuallySet, got.BroughtForwardState)
	require.NotNil(t, got.Expiration)
	assert.True(t, got.Expiration.Equal(exp))
	assert.Equal(t, 1, got.LeaveTypesStats["lt-1"].Requests)
	assert.True(t, got.Start.Equal(d("2025-01-01")))
	assert.True(t, got.End.Equal(d("2026-01-01")))

	rows, err := s.ListMemberAllowances(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_RequestsOverlapping(t *testing.T) {
	// GIVEN: Requests before, across and after 2025
	s := newTestStore(t)
	ctx := context.Background()
	ws, m := seedMember(t, s)

	save := func(id, start, end string) {
		r := timeoff.Request{
			ID: generic.RequestID(id), WorkspaceID: ws.ID, MemberID: m.ID, LeaveTypeID: "lt",
			Start: d(start), End: d(end), StartAt: timeoff.StartMorning, EndAt: timeoff.EndOfDay,
			Status: timeoff.StatusPending, Duration: decimal.Zero, WorkdayAbsenceDuration: decimal.Zero,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		require.NoError(t, s.SaveRequest(ctx, r))
	}
	save("before", "2024-12-20", "2024-12-31")
	save("across", "2024-12-30", "2025-01-02")
	save("inside", "2025-07-01", "2025-07-04")
	save("after", "2026-01-01", "2026-01-02")

	// WHEN: Listing requests touching [2025-01-01, 2026-01-01)
	got, err := s.ListRequestsOverlapping(ctx, m.ID, d("2025-01-01"), d("2026-01-01"))
	require.NoError(t, err)

	// THEN: Only the touching ones come back, ordered by start
	ids := make([]generic.RequestID, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []generic.RequestID{"across", "inside"}, ids)

	// WHEN: Durations are refreshed on one
	require.NoError(t, s.UpdateRequestDurations(ctx, "inside", decimal.NewFromInt(4), decimal.NewFromInt(3)))
	r, err := s.GetRequest(ctx, "inside")
	require.NoError(t, err)

	// THEN: Both totals are stored
	assert.True(t, r.Duration.Equal(decimal.NewFromInt(4)))
	assert.True(t, r.WorkdayAbsenceDuration.Equal(decimal.NewFromInt(3)))
	assert.True(t, generic.IsNotFound(s.UpdateRequestDurations(ctx, "missing", decimal.Zero, decimal.Zero)))
}

func TestStore_HolidayDays(t *testing.T) {
	// GIVEN: A calendar with two days
	s := newTestStore(t)
	ctx := context.Background()
	ws, _ := seedMember(t, s)

	require.NoError(t, s.CreateHolidayCalendar(ctx, holiday.Calendar{ID: "de", WorkspaceID: ws.ID, Name: "Germany", CountryCode: "DE", CreatedAt: time.Now()}))
	require.NoError(t, s.SaveHolidayDay(ctx, holiday.Day{ID: "d1", CalendarID: "de", Date: d("2025-12-24"), Name: "Christmas Eve", Year: 2025, Duration: holiday.Afternoon}))
	require.NoError(t, s.SaveHolidayDay(ctx, holiday.Day{ID: "d2", CalendarID: "de", Date: d("2025-12-25"), Name: "Christmas", Year: 2025, Duration: holiday.FullDay}))

	// WHEN: Listing and deleting
	days, err := s.ListHolidayDays(ctx, "de")
	require.NoError(t, err)
	require.NoError(t, s.DeleteHolidayDay(ctx, "d1"))
	after, err := s.ListHolidayDays(ctx, "de")
	require.NoError(t, err)

	// THEN: Days come back in date order with their duration
	require.Len(t, days, 2)
	assert.Equal(t, holiday.Afternoon, days[0].Duration)
	assert.True(t, days[0].Date.Equal(d("2025-12-24")))
	assert.Len(t, after, 1)
}

func TestStore_AuditNewestFirst(t *testing.T) {
	// GIVEN: Three entries for two subjects
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, subject := range []string{"m-1", "m-2", "m-1"} {
		e := generic.NewAuditEntry("ws-1", "admin", generic.AuditAllowanceEdited, subject, map[string]any{"n": i})
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	// WHEN: Filtering by subject
	got, err := s.ListAudit(ctx, generic.AuditFilter{WorkspaceID: "ws-1", Subject: "m-1", Actions: []generic.AuditAction{generic.AuditAllowanceEdited}})
	require.NoError(t, err)

	// THEN: Newest first, payload decoded
	require.Len(t, got, 2)
	assert.Equal(t, float64(2), got[0].Payload["n"])
	assert.Equal(t, float64(0), got[1].Payload["n"])
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A store
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	// WHEN: A transaction writes then fails
	err := s.WithTx(ctx, func(tx *Store) error {
		require.NoError(t, tx.CreateWorkspace(ctx, tenant.Workspace{ID: "ws-tx", Name: "tx", FiscalYearStartMonth: time.January, CreatedAt: time.Now()}))
		return boom
	})

	// THEN: The error is returned and nothing was written
	assert.ErrorIs(t, err, boom)
	ws, err := s.GetWorkspace(ctx, "ws-tx")
	require.NoError(t, err)
	assert.Nil(t, ws)
}

func TestStore_WithTxRollbackWithMock(t *testing.T) {
	// GIVEN: A mocked connection expecting begin, one insert and a rollback
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := Wrap(sqlx.NewDb(db, DriverSQLite), logger.Nop())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	// WHEN: The insert fails inside the transaction
	err = s.WithTx(context.Background(), func(tx *Store) error {
		return tx.AppendAudit(context.Background(), generic.NewAuditEntry("ws", "", generic.AuditRollover, "m", nil))
	})

	// THEN: The driver error surfaces and the transaction is rolled back
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NestedWithTxReusesTransaction(t *testing.T) {
	// GIVEN: A mocked connection expecting exactly one begin and commit
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := Wrap(sqlx.NewDb(db, DriverSQLite), logger.Nop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	// WHEN: WithTx is called on the tx-bound store
	err = s.WithTx(context.Background(), func(tx *Store) error {
		return tx.WithTx(context.Background(), func(inner *Store) error {
			assert.Same(t, tx, inner)
			return nil
		})
	})

	// THEN: No second transaction was opened
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_busy_timeout=5000", sqliteDSN(":memory:"))
	assert.Equal(t, "file:data/absentify.db?_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("data/absentify.db"))
}

/*
handlers_test.go - HTTP tests for the API

Tests for:
- Registration and caller resolution
- Error mapping (400/403/404/409)
- Schedule, allowance and request round trips through the router
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/store/sqlstore"
	"github.com/absentify/allowance-engine/workspace"
)

// Monday 10 March 2025.
func testClock() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

type apiHarness struct {
	t       *testing.T
	router  *chi.Mux
	ws      WorkspaceDTO
	ownerID string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	st, err := sqlstore.NewSQLite(":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ledger := allowance.NewService(st.Allowances(), logger.Nop()).WithClock(testClock)
	svc := workspace.NewService(st.Workspaces(), ledger, events.NewInline(ledger, logger.Nop()), logger.Nop()).WithClock(testClock)
	h := &apiHarness{t: t, router: NewRouter(NewHandler(svc, ledger, st, logger.Nop()), logger.Nop())}

	rec := h.do(http.MethodPost, "/api/workspaces", "", map[string]any{
		"name":     "Acme",
		"timezone": "UTC",
		"owner":    map[string]any{"name": "Olivia", "email": "olivia@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp RegisterWorkspaceResponse
	h.decode(rec, &resp)
	h.ws = resp.Workspace
	h.ownerID = resp.Owner.ID
	return h
}

func (h *apiHarness) do(method, path, member string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if member != "" {
		req.Header.Set(HeaderWorkspaceID, h.ws.ID)
		req.Header.Set(HeaderMemberID, member)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) decode(rec *httptest.ResponseRecorder, v any) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// setupVacation creates a 20-day allowance type with a leave type drawing on it.
func (h *apiHarness) setupVacation() (typeID, leaveTypeID string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/allowance-types", h.ownerID, map[string]any{
		"name":              "Vacation",
		"unit":              "days",
		"default_allowance": "20",
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var at AllowanceTypeDTO
	h.decode(rec, &at)

	rec = h.do(http.MethodPost, "/api/leave-types", h.ownerID, map[string]any{
		"name":                "Vacation",
		"take_from_allowance": true,
		"allowance_type_id":   at.ID,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var lt LeaveTypeDTO
	h.decode(rec, &lt)
	return at.ID, lt.ID
}

func (h *apiHarness) submit(leaveTypeID, start, end string) RequestDTO {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/requests", h.ownerID, map[string]any{
		"member_id":     h.ownerID,
		"leave_type_id": leaveTypeID,
		"start":         start,
		"end":           end,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var r RequestDTO
	h.decode(rec, &r)
	return r
}

func (h *apiHarness) allowances() []MemberAllowanceDTO {
	h.t.Helper()
	rec := h.do(http.MethodGet, "/api/members/"+h.ownerID+"/allowances", h.ownerID, nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var rows []MemberAllowanceDTO
	h.decode(rec, &rows)
	return rows
}

func rowFor(t *testing.T, rows []MemberAllowanceDTO, year int) MemberAllowanceDTO {
	t.Helper()
	for _, r := range rows {
		if r.Year == year {
			return r
		}
	}
	t.Fatalf("no row for %d", year)
	return MemberAllowanceDTO{}
}

// =============================================================================
// PLUMBING
// =============================================================================

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCallerMiddleware_MissingHeaders(t *testing.T) {
	// GIVEN: A request without the gateway headers
	h := newAPIHarness(t)

	// WHEN: Listing members
	rec := h.do(http.MethodGet, "/api/members", "", nil)

	// THEN: Forbidden
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body ErrorResponse
	h.decode(rec, &body)
	assert.Contains(t, body.Error, "unauthorized")
}

func TestCallerMiddleware_UnknownMember(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/api/members", "nobody", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterWorkspace_Validation(t *testing.T) {
	// GIVEN: A registration without a name and an out-of-range month
	h := newAPIHarness(t)

	// WHEN: Registering
	rec := h.do(http.MethodPost, "/api/workspaces", "", map[string]any{
		"timezone":                "UTC",
		"fiscal_year_start_month": 13,
		"owner":                   map[string]any{"name": "Olivia"},
	})

	// THEN: 400 with per-field details
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	h.decode(rec, &body)
	assert.Contains(t, body.Details, "Name")
	assert.Contains(t, body.Details, "FiscalYearStartMonth")
}

func TestInvalidJSON(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/members", bytes.NewBufferString("{"))
	req.Header.Set(HeaderWorkspaceID, h.ws.ID)
	req.Header.Set(HeaderMemberID, h.ownerID)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestWorkspaceSchedule_DefaultTemplate(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/api/workspace/schedule", h.ownerID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var ws WorkspaceScheduleDTO
	h.decode(rec, &ws)
	assert.Len(t, ws.Schedule, 7)
	assert.True(t, ws.Schedule["monday"].AMEnabled)
	assert.Equal(t, "08:00", ws.Schedule["monday"].AMStart)
	assert.False(t, ws.Schedule["saturday"].PMEnabled)
}

func TestUpdateWorkspaceSchedule_RejectsUnknownWeekday(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPut, "/api/workspace/schedule", h.ownerID, map[string]any{
		"schedule": map[string]any{"funday": map[string]any{"am_enabled": true}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWorkspaceSchedule_RejectsBadTime(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPut, "/api/workspace/schedule", h.ownerID, map[string]any{
		"schedule": map[string]any{"monday": map[string]any{"am_start": "25:00", "am_enabled": true}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewValidator_TimeOfDayTag(t *testing.T) {
	// GIVEN: A freshly built validator
	var v *validator.Validate
	require.NotPanics(t, func() { v = newValidator() })

	// WHEN: Validating an hour past 23
	err := v.Struct(DayScheduleDTO{AMStart: "25:00", AMEnd: "12:00"})

	// THEN: The custom tag reports the field
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "timeofday", verrs[0].Tag())
	assert.Equal(t, "AMStart", verrs[0].Field())

	assert.NoError(t, v.Struct(DayScheduleDTO{AMStart: "08:30", AMEnd: "12:00"}))
}

func TestUpdateWorkspaceSchedule_RejectsReversedHalves(t *testing.T) {
	// GIVEN: A Monday whose halves both end before they start
	h := newAPIHarness(t)

	// WHEN: Replacing the workspace schedule with it
	rec := h.do(http.MethodPut, "/api/workspace/schedule", h.ownerID, map[string]any{
		"schedule": map[string]any{"monday": map[string]any{
			"am_start": "12:00", "am_end": "08:00",
			"pm_start": "13:00", "pm_end": "09:00",
			"am_enabled": true, "pm_enabled": true,
		}},
	})

	// THEN: 400 naming the broken fields
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var body ErrorResponse
	h.decode(rec, &body)
	assert.Contains(t, body.Details, "monday_am_end")
	assert.Contains(t, body.Details, "monday_pm_end")

	// AND: The stored schedule is untouched
	rec = h.do(http.MethodGet, "/api/workspace/schedule", h.ownerID, nil)
	var ws WorkspaceScheduleDTO
	h.decode(rec, &ws)
	assert.Equal(t, "08:00", ws.Schedule["monday"].AMStart)
	assert.Equal(t, "12:00", ws.Schedule["monday"].AMEnd)
}

func TestUpdateWorkspaceSchedule_EnabledHalfWithoutTimes(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPut, "/api/workspace/schedule", h.ownerID, map[string]any{
		"schedule": map[string]any{"monday": map[string]any{"am_enabled": true}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var body ErrorResponse
	h.decode(rec, &body)
	assert.Contains(t, body.Details, "monday_am_start")
}

func TestMemberSchedule_ResolveAndDelete(t *testing.T) {
	// GIVEN: A member schedule from 17 March that only works mornings
	h := newAPIHarness(t)
	morning := map[string]any{"am_start": "08:00", "am_end": "12:00", "pm_start": "13:00", "pm_end": "17:00", "am_enabled": true}
	rec := h.do(http.MethodPost, "/api/members/"+h.ownerID+"/schedules", h.ownerID, map[string]any{
		"from": "2025-03-17",
		"schedule": map[string]any{
			"monday": morning, "tuesday": morning, "wednesday": morning, "thursday": morning, "friday": morning,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ms MemberScheduleDTO
	h.decode(rec, &ms)

	// WHEN: Resolving before and after the from date
	var before, after ResolvedScheduleDTO
	rec = h.do(http.MethodGet, "/api/members/"+h.ownerID+"/schedule?date=2025-03-14", h.ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &before)
	rec = h.do(http.MethodGet, "/api/members/"+h.ownerID+"/schedule?date=2025-03-17", h.ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &after)

	// THEN: The workspace default applies before, the member version after
	assert.True(t, before.FromWorkspace)
	assert.False(t, after.FromWorkspace)
	assert.Equal(t, ms.ID, after.MemberScheduleID)
	assert.False(t, after.Schedule["monday"].PMEnabled)

	// AND: Deleting the version falls back to the workspace
	rec = h.do(http.MethodDelete, "/api/member-schedules/"+ms.ID, h.ownerID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, "/api/members/"+h.ownerID+"/schedule?date=2025-03-17", h.ownerID, nil)
	h.decode(rec, &after)
	assert.True(t, after.FromWorkspace)
}

func TestResolveSchedule_DateRequired(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/api/members/"+h.ownerID+"/schedule", h.ownerID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/members/"+h.ownerID+"/schedule?date=17.03.2025", h.ownerID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REQUESTS AND ALLOWANCES
// =============================================================================

func TestRequestLifecycle(t *testing.T) {
	// GIVEN: A 20-day vacation allowance
	h := newAPIHarness(t)
	_, leaveTypeID := h.setupVacation()

	// WHEN: Previewing and submitting Monday to Sunday
	rec := h.do(http.MethodPost, "/api/requests/preview", h.ownerID, map[string]any{
		"member_id":     h.ownerID,
		"leave_type_id": leaveTypeID,
		"start":         "2025-03-17",
		"end":           "2025-03-23",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview PreviewDTO
	h.decode(rec, &preview)
	assert.Len(t, preview.Days, 7)
	assert.True(t, preview.WorkdayAbsence.Equal(decimal.NewFromInt(5)), preview.WorkdayAbsence.String())
	assert.Equal(t, "non_working_day", preview.Days[5].Reason)

	req := h.submit(leaveTypeID, "2025-03-17", "2025-03-23")
	assert.Equal(t, "pending", req.Status)

	rec = h.do(http.MethodPost, "/api/requests/"+req.ID+"/approve", h.ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Five working days are taken
	row := rowFor(t, h.allowances(), 2025)
	assert.True(t, row.Taken.Equal(decimal.NewFromInt(5)), row.Taken.String())
	assert.True(t, row.Remaining.Equal(decimal.NewFromInt(15)), row.Remaining.String())

	// AND: Canceling restores it, a second cancel conflicts
	rec = h.do(http.MethodPost, "/api/requests/"+req.ID+"/cancel", h.ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row = rowFor(t, h.allowances(), 2025)
	assert.True(t, row.Taken.IsZero(), row.Taken.String())

	rec = h.do(http.MethodPost, "/api/requests/"+req.ID+"/cancel", h.ownerID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApproveRequest_NotFound(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPost, "/api/requests/missing/approve", h.ownerID, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditAllowance(t *testing.T) {
	// GIVEN: A provisioned vacation row
	h := newAPIHarness(t)
	typeID, _ := h.setupVacation()

	// WHEN: The admin raises the 2025 allowance
	rec := h.do(http.MethodPatch, "/api/members/"+h.ownerID+"/allowances/"+typeID+"/2025", h.ownerID, map[string]any{
		"allowance": "25",
	})

	// THEN: The row reflects it
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var row MemberAllowanceDTO
	h.decode(rec, &row)
	assert.True(t, row.Allowance.Equal(decimal.NewFromInt(25)))
	assert.True(t, row.Remaining.Equal(decimal.NewFromInt(25)))

	rec = h.do(http.MethodPatch, "/api/members/"+h.ownerID+"/allowances/"+typeID+"/abc", h.ownerID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberCannotEditAllowance(t *testing.T) {
	// GIVEN: A regular member
	h := newAPIHarness(t)
	typeID, _ := h.setupVacation()
	rec := h.do(http.MethodPost, "/api/members", h.ownerID, map[string]any{"name": "Max"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m MemberDTO
	h.decode(rec, &m)

	// WHEN: They edit their own allowance, recompute or roll over
	edit := h.do(http.MethodPatch, "/api/members/"+m.ID+"/allowances/"+typeID+"/2025", m.ID, map[string]any{"allowance": "99"})
	recompute := h.do(http.MethodPost, "/api/members/"+m.ID+"/recompute", m.ID, nil)
	rollover := h.do(http.MethodPost, "/api/admin/rollover", m.ID, nil)

	// THEN: All are forbidden
	assert.Equal(t, http.StatusForbidden, edit.Code)
	assert.Equal(t, http.StatusForbidden, recompute.Code)
	assert.Equal(t, http.StatusForbidden, rollover.Code)

	// AND: Reading their own rows is allowed
	rec = h.do(http.MethodGet, "/api/members/"+m.ID+"/allowances", m.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecomputeAndRollover(t *testing.T) {
	h := newAPIHarness(t)
	h.setupVacation()

	rec := h.do(http.MethodPost, "/api/members/"+h.ownerID+"/recompute", h.ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res RecomputeResultDTO
	h.decode(rec, &res)
	assert.Equal(t, h.ownerID, res.MemberID)
	assert.Len(t, res.Allowances, 2)

	rec = h.do(http.MethodPost, "/api/admin/rollover", h.ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch BatchResultDTO
	h.decode(rec, &batch)
	assert.Equal(t, []string{h.ownerID}, batch.Succeeded)
	assert.Empty(t, batch.Failed)
}

func TestConfigurations_DisableHidesRows(t *testing.T) {
	// GIVEN: Two allowance types, Vacation being the default
	h := newAPIHarness(t)
	h.setupVacation()
	rec := h.do(http.MethodPost, "/api/allowance-types", h.ownerID, map[string]any{"name": "Overtime", "unit": "hours"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var overtime AllowanceTypeDTO
	h.decode(rec, &overtime)

	// WHEN: Overtime is disabled for the owner
	disabled := true
	rec = h.do(http.MethodPatch, "/api/members/"+h.ownerID+"/allowance-configurations/"+overtime.ID, h.ownerID, map[string]any{"disabled": disabled})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Its rows are hidden unless asked for
	for _, row := range h.allowances() {
		assert.NotEqual(t, overtime.ID, row.AllowanceTypeID)
	}
	rec = h.do(http.MethodGet, "/api/members/"+h.ownerID+"/allowances?include_disabled=true", h.ownerID, nil)
	var all []MemberAllowanceDTO
	h.decode(rec, &all)
	var found bool
	for _, row := range all {
		found = found || row.AllowanceTypeID == overtime.ID
	}
	assert.True(t, found)
}

// =============================================================================
// PUBLIC HOLIDAYS
// =============================================================================

func TestHolidayDay_ReducesTaken(t *testing.T) {
	// GIVEN: An approved Monday to Friday request
	h := newAPIHarness(t)
	_, leaveTypeID := h.setupVacation()
	req := h.submit(leaveTypeID, "2025-03-17", "2025-03-21")
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/requests/"+req.ID+"/approve", h.ownerID, nil).Code)

	// WHEN: Wednesday becomes a public holiday on the owner's calendar
	rec := h.do(http.MethodPost, "/api/public-holidays", h.ownerID, map[string]any{"name": "Berlin", "country_code": "DE"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cal HolidayCalendarDTO
	h.decode(rec, &cal)
	rec = h.do(http.MethodPut, "/api/members/"+h.ownerID+"/public-holiday", h.ownerID, map[string]any{"public_holiday_id": cal.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(http.MethodPost, "/api/public-holidays/"+cal.ID+"/days", h.ownerID, map[string]any{"date": "2025-03-19", "name": "Local holiday"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var day HolidayDayDTO
	h.decode(rec, &day)

	// THEN: Four days are taken
	row := rowFor(t, h.allowances(), 2025)
	assert.True(t, row.Taken.Equal(decimal.NewFromInt(4)), row.Taken.String())

	// AND: Removing the day restores five
	rec = h.do(http.MethodDelete, "/api/public-holiday-days/"+day.ID, h.ownerID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	row = rowFor(t, h.allowances(), 2025)
	assert.True(t, row.Taken.Equal(decimal.NewFromInt(5)), row.Taken.String())
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRecoverer(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

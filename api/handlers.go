/*
handlers.go - HTTP API handlers for the schedule and allowance engine

PURPOSE:
  Exposes workspace.Service and allowance.Service over REST. Handlers decode
  and validate the body, call one service operation with the caller resolved
  by CallerMiddleware, and serialize the result.

ENDPOINTS:
  Registration:
    POST   /api/workspaces                                  Register workspace + owner

  Schedules:
    GET    /api/workspace/schedule                          Workspace default
    PUT    /api/workspace/schedule                          Replace default (admin)
    GET    /api/members/{id}/schedules                      Member versions
    POST   /api/members/{id}/schedules                      Add version
    PUT    /api/member-schedules/{id}                       Change version
    DELETE /api/member-schedules/{id}                       Delete version
    GET    /api/members/{id}/schedule?date=YYYY-MM-DD       Schedule in force

  Allowances:
    GET    /api/members/{id}/allowances                     Ledger rows
    PATCH  /api/members/{id}/allowances/{typeID}/{year}     Manual edit (admin)
    GET    /api/members/{id}/allowance-configurations       Default/disabled flags
    PATCH  /api/members/{id}/allowance-configurations/{typeID}
    POST   /api/members/{id}/recompute                      Recompute now (admin)
    POST   /api/admin/rollover                              Provision years (admin)

  Requests:
    POST   /api/requests/preview                            Breakdown only
    POST   /api/requests                                    Submit
    POST   /api/requests/{id}/approve|decline|cancel

ERROR HANDLING:
  Errors are returned as {"error": ..., "details": {...}}:
  - 400: ValidationError (details per field)
  - 403: Unauthorized
  - 404: NotFound
  - 409: IllegalState
  - 500: everything else, logged with the request id

SEE ALSO:
  - dto.go:        Request/response data structures
  - middleware.go: Caller resolution, request logging
  - server.go:     Router setup
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
	"github.com/absentify/allowance-engine/workspace"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	workspaces *workspace.Service
	ledger     *allowance.Service
	store      Pinger
	log        *logger.Logger
}

func NewHandler(workspaces *workspace.Service, ledger *allowance.Service, store Pinger, log *logger.Logger) *Handler {
	return &Handler{
		workspaces: workspaces,
		ledger:     ledger,
		store:      store,
		log:        log.WithComponent("api"),
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func statusFor(err error) int {
	switch {
	case generic.IsValidation(err):
		return http.StatusBadRequest
	case generic.IsUnauthorized(err):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsIllegalState(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status of its class. Internal errors are logged
// and their message is not exposed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithRequestID(middleware.GetReqID(r.Context())).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeJSON(w, status, ErrorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Details: generic.ValidationDetailsOf(err)})
}

// decode reads the JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return generic.Validation("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return generic.Validation("body", err.Error())
		}
		details := make(map[string]string, len(verrs))
		for _, e := range verrs {
			details[e.Field()] = formatValidationError(e)
		}
		return generic.ValidationDetails(details)
	}
	return nil
}

func memberParam(r *http.Request) generic.MemberID {
	return generic.MemberID(chi.URLParam(r, "id"))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// REGISTRATION AND MEMBERS
// =============================================================================

// RegisterWorkspace creates a workspace with its owner.
// POST /api/workspaces
func (h *Handler) RegisterWorkspace(w http.ResponseWriter, r *http.Request) {
	var req RegisterWorkspaceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ws, owner, err := h.workspaces.RegisterWorkspace(r.Context(), workspace.Registration{
		Name:                      req.Name,
		FiscalYearStartMonth:      time.Month(req.FiscalYearStartMonth),
		Timezone:                  req.Timezone,
		MemberScheduleSelfService: req.MemberScheduleSelfService,
		OwnerName:                 req.Owner.Name,
		OwnerEmail:                req.Owner.Email,
		OwnerTimezone:             req.Owner.Timezone,
		OwnerEmploymentStart:      req.Owner.EmploymentStartDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterWorkspaceResponse{Workspace: toWorkspaceDTO(*ws), Owner: toMemberDTO(*owner)})
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.workspaces.ListMembers(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]MemberDTO, len(members))
	for i, m := range members {
		out[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateMember adds a member and provisions their allowances.
// POST /api/members
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := workspace.NewMember{
		Name:                req.Name,
		Email:               req.Email,
		IsAdmin:             req.IsAdmin,
		Timezone:            req.Timezone,
		EmploymentStartDate: req.EmploymentStartDate,
	}
	if req.PublicHolidayID != nil {
		id := generic.PublicHolidayID(*req.PublicHolidayID)
		in.PublicHolidayID = &id
	}
	m, err := h.workspaces.AddMember(r.Context(), callerFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(*m))
}

// AssignHolidayCalendar sets or clears a member's public holiday calendar.
// PUT /api/members/{id}/public-holiday
func (h *Handler) AssignHolidayCalendar(w http.ResponseWriter, r *http.Request) {
	var req AssignHolidayCalendarRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var id *generic.PublicHolidayID
	if req.PublicHolidayID != nil {
		v := generic.PublicHolidayID(*req.PublicHolidayID)
		id = &v
	}
	m, err := h.workspaces.AssignHolidayCalendar(r.Context(), callerFrom(r.Context()), memberParam(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (h *Handler) GetWorkspaceSchedule(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.GetWorkspaceSchedule(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceScheduleDTO(*ws))
}

func (h *Handler) UpdateWorkspaceSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkspaceScheduleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ws, err := h.workspaces.UpdateWorkspaceSchedule(r.Context(), callerFrom(r.Context()), req.Schedule.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceScheduleDTO(*ws))
}

func (h *Handler) ListMemberSchedules(w http.ResponseWriter, r *http.Request) {
	versions, err := h.workspaces.ListMemberSchedules(r.Context(), callerFrom(r.Context()), memberParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]MemberScheduleDTO, len(versions))
	for i, v := range versions {
		out[i] = toMemberScheduleDTO(v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateMemberSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberScheduleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ms, err := h.workspaces.CreateMemberSchedule(r.Context(), callerFrom(r.Context()), memberParam(r), *req.From, req.Schedule.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberScheduleDTO(*ms))
}

func (h *Handler) UpdateMemberSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemberScheduleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id := generic.ScheduleID(chi.URLParam(r, "id"))
	ms, err := h.workspaces.UpdateMemberSchedule(r.Context(), callerFrom(r.Context()), id, workspace.MemberScheduleUpdate{
		From:     req.From,
		Schedule: req.Schedule.toDomain(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberScheduleDTO(*ms))
}

func (h *Handler) DeleteMemberSchedule(w http.ResponseWriter, r *http.Request) {
	id := generic.ScheduleID(chi.URLParam(r, "id"))
	if err := h.workspaces.DeleteMemberSchedule(r.Context(), callerFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveSchedule returns the schedule in force for a member on a date.
// GET /api/members/{id}/schedule?date=2025-03-17
func (h *Handler) ResolveSchedule(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		h.fail(w, r, generic.Validation("date", "required"))
		return
	}
	date, err := generic.ParseDate(raw)
	if err != nil {
		h.fail(w, r, generic.Validation("date", "use YYYY-MM-DD"))
		return
	}
	res, err := h.workspaces.ResolveSchedule(r.Context(), callerFrom(r.Context()), memberParam(r), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolvedScheduleDTO{
		Date:             date,
		FromWorkspace:    res.FromWorkspace(),
		MemberScheduleID: string(res.MemberScheduleID),
		Schedule:         toWeeklyDTO(res.Schedule),
	})
}

// =============================================================================
// ALLOWANCES
// =============================================================================

// ListAllowances returns a member's ledger rows.
// GET /api/members/{id}/allowances?include_disabled=true
func (h *Handler) ListAllowances(w http.ResponseWriter, r *http.Request) {
	includeDisabled, _ := strconv.ParseBool(r.URL.Query().Get("include_disabled"))
	rows, err := h.ledger.ListAllowances(r.Context(), callerFrom(r.Context()), memberParam(r), includeDisabled)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberAllowanceDTOs(rows))
}

func toMemberAllowanceDTOs(rows []allowance.MemberAllowance) []MemberAllowanceDTO {
	out := make([]MemberAllowanceDTO, len(rows))
	for i, row := range rows {
		out[i] = toMemberAllowanceDTO(row)
	}
	return out
}

// EditAllowance applies a manual edit to one fiscal year.
// PATCH /api/members/{id}/allowances/{typeID}/{year}
func (h *Handler) EditAllowance(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.fail(w, r, generic.Validation("year", "must be a number"))
		return
	}
	var req EditAllowanceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.ledger.EditAllowance(r.Context(), callerFrom(r.Context()), allowance.AllowanceEdit{
		MemberID:            memberParam(r),
		AllowanceTypeID:     generic.AllowanceTypeID(chi.URLParam(r, "typeID")),
		Year:                year,
		Allowance:           req.Allowance,
		BroughtForward:      req.BroughtForward,
		CompensatoryTimeOff: req.CompensatoryTimeOff,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberAllowanceDTO(*row))
}

func (h *Handler) ListConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.ledger.ListConfigurations(r.Context(), callerFrom(r.Context()), memberParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationDTOs(configs))
}

// EditConfiguration toggles default/disabled for one type.
// PATCH /api/members/{id}/allowance-configurations/{typeID}
func (h *Handler) EditConfiguration(w http.ResponseWriter, r *http.Request) {
	var req EditConfigurationRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	configs, err := h.ledger.EditConfiguration(r.Context(), callerFrom(r.Context()), memberParam(r), allowance.ConfigurationChange{
		AllowanceTypeID: generic.AllowanceTypeID(chi.URLParam(r, "typeID")),
		Default:         req.Default,
		Disabled:        req.Disabled,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationDTOs(configs))
}

// Recompute rebuilds one member's ledger synchronously.
// POST /api/members/{id}/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.ledger.Recompute(r.Context(), caller.WorkspaceID, memberParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecomputeResultDTO{
		MemberID:          string(res.MemberID),
		UpdatedRows:       res.UpdatedRows,
		RefreshedRequests: res.RefreshedRequests,
		Allowances:        toMemberAllowanceDTOs(res.Rows),
	})
}

// Rollover provisions the current and next fiscal year for every member of
// the caller's workspace.
// POST /api/admin/rollover
func (h *Handler) Rollover(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if err := caller.RequireAdmin(caller.WorkspaceID); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.ledger.Rollover(r.Context(), caller.WorkspaceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

// =============================================================================
// TYPES
// =============================================================================

func (h *Handler) ListAllowanceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.workspaces.ListAllowanceTypes(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]AllowanceTypeDTO, len(types))
	for i, t := range types {
		out[i] = toAllowanceTypeDTO(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateAllowanceType(w http.ResponseWriter, r *http.Request) {
	var req CreateAllowanceTypeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.workspaces.CreateAllowanceType(r.Context(), callerFrom(r.Context()), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllowanceTypeDTO(*t))
}

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.workspaces.ListLeaveTypes(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		out[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveTypeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	lt, err := h.workspaces.CreateLeaveType(r.Context(), callerFrom(r.Context()), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(*lt))
}

// =============================================================================
// PUBLIC HOLIDAYS
// =============================================================================

func (h *Handler) CreateHolidayCalendar(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayCalendarRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.workspaces.CreateHolidayCalendar(r.Context(), callerFrom(r.Context()), holiday.Calendar{
		Name:            req.Name,
		CountryCode:     req.CountryCode,
		SubdivisionCode: req.SubdivisionCode,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayCalendarDTO(*c))
}

// AddHolidayDay adds a day and recomputes the calendar's members.
// POST /api/public-holidays/{id}/days
func (h *Handler) AddHolidayDay(w http.ResponseWriter, r *http.Request) {
	var req HolidayDayRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.workspaces.AddHolidayDay(r.Context(), callerFrom(r.Context()), generic.PublicHolidayID(chi.URLParam(r, "id")), holiday.Day{
		Date:     *req.Date,
		Name:     req.Name,
		Duration: holiday.Duration(req.Duration),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDayDTO(*d))
}

func (h *Handler) UpdateHolidayDay(w http.ResponseWriter, r *http.Request) {
	var req UpdateHolidayDayRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	upd := workspace.HolidayDayUpdate{Name: req.Name, Duration: holiday.Duration(req.Duration)}
	if req.Date != nil {
		upd.Date = *req.Date
	}
	d, err := h.workspaces.UpdateHolidayDay(r.Context(), callerFrom(r.Context()), generic.HolidayDayID(chi.URLParam(r, "id")), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHolidayDayDTO(*d))
}

func (h *Handler) DeleteHolidayDay(w http.ResponseWriter, r *http.Request) {
	if err := h.workspaces.DeleteHolidayDay(r.Context(), callerFrom(r.Context()), generic.HolidayDayID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REQUESTS
// =============================================================================

// PreviewRequest returns the per-day breakdown without storing anything.
// POST /api/requests/preview
func (h *Handler) PreviewRequest(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequestRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.workspaces.PreviewRequest(r.Context(), callerFrom(r.Context()), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(p))
}

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequestRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	lr, err := h.workspaces.SubmitRequest(r.Context(), callerFrom(r.Context()), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*lr))
}

type transition func(ctx context.Context, caller tenant.Caller, id generic.RequestID) (*timeoff.Request, error)

// requestAction serves approve, decline and cancel.
func (h *Handler) requestAction(apply transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lr, err := apply(r.Context(), callerFrom(r.Context()), generic.RequestID(chi.URLParam(r, "id")))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestDTO(*lr))
	}
}

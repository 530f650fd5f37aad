/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO:     Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. decode() runs them and
  turns failures into a ValidationError, which the API returns as 400 with
  per-field details. Domain rules (cascade normalization, the default-type
  invariant, duplicate from dates) are checked by the services.

WEEKLY SCHEDULES:
  A schedule is an object keyed by lower-case weekday ("monday"). Missing
  weekdays are non-working days. Times are "HH:MM".

SEE ALSO:
  - handlers.go: Uses these types
  - workspace/:  The operations behind them
*/
package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
	"github.com/absentify/allowance-engine/workspace"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("register timeofday validation: %v", err))
	}
	return v
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "timeofday":
		return "must be a time of day (HH:MM)"
	default:
		return "invalid value"
	}
}

// =============================================================================
// SCHEDULES
// =============================================================================

// DayScheduleDTO is one weekday of a schedule.
type DayScheduleDTO struct {
	AMStart       string `json:"am_start" validate:"omitempty,timeofday"`
	AMEnd         string `json:"am_end" validate:"omitempty,timeofday"`
	PMStart       string `json:"pm_start" validate:"omitempty,timeofday"`
	PMEnd         string `json:"pm_end" validate:"omitempty,timeofday"`
	AMEnabled     bool   `json:"am_enabled"`
	PMEnabled     bool   `json:"pm_enabled"`
	DeductFullday bool   `json:"deduct_fullday"`
}

// WeeklyScheduleDTO maps weekday names to their day.
type WeeklyScheduleDTO map[string]DayScheduleDTO

func parseTime(s string) schedule.TimeOfDay {
	if s == "" {
		return schedule.TimeOfDay{}
	}
	t, _ := schedule.ParseTimeOfDay(s)
	return t
}

func (w WeeklyScheduleDTO) toDomain() schedule.WeeklySchedule {
	var out schedule.WeeklySchedule
	for name, d := range w {
		wd, ok := schedule.ParseWeekday(name)
		if !ok {
			continue
		}
		out.Days[wd] = schedule.DaySchedule{
			AMStart:       parseTime(d.AMStart),
			AMEnd:         parseTime(d.AMEnd),
			PMStart:       parseTime(d.PMStart),
			PMEnd:         parseTime(d.PMEnd),
			AMEnabled:     d.AMEnabled,
			PMEnabled:     d.PMEnabled,
			DeductFullday: d.DeductFullday,
		}
	}
	return out
}

func toWeeklyDTO(w schedule.WeeklySchedule) WeeklyScheduleDTO {
	out := make(WeeklyScheduleDTO, len(schedule.Weekdays))
	for _, wd := range schedule.Weekdays {
		d := w.Day(wd)
		out[schedule.WeekdayName(wd)] = DayScheduleDTO{
			AMStart:       d.AMStart.String(),
			AMEnd:         d.AMEnd.String(),
			PMStart:       d.PMStart.String(),
			PMEnd:         d.PMEnd.String(),
			AMEnabled:     d.AMEnabled,
			PMEnabled:     d.PMEnabled,
			DeductFullday: d.DeductFullday,
		}
	}
	return out
}

type UpdateWorkspaceScheduleRequest struct {
	Schedule WeeklyScheduleDTO `json:"schedule" validate:"required,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys"`
}

type CreateMemberScheduleRequest struct {
	From     *generic.TimePoint `json:"from" validate:"required"`
	Schedule WeeklyScheduleDTO  `json:"schedule" validate:"required,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys"`
}

type UpdateMemberScheduleRequest struct {
	From     *generic.TimePoint `json:"from"`
	Schedule WeeklyScheduleDTO  `json:"schedule" validate:"required,dive,keys,oneof=monday tuesday wednesday thursday friday saturday sunday,endkeys"`
}

type WorkspaceScheduleDTO struct {
	ID        string            `json:"id"`
	Schedule  WeeklyScheduleDTO `json:"schedule"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toWorkspaceScheduleDTO(ws schedule.WorkspaceSchedule) WorkspaceScheduleDTO {
	return WorkspaceScheduleDTO{ID: string(ws.ID), Schedule: toWeeklyDTO(ws.Schedule), UpdatedAt: ws.UpdatedAt}
}

type MemberScheduleDTO struct {
	ID        string            `json:"id"`
	MemberID  string            `json:"member_id"`
	From      generic.TimePoint `json:"from"`
	Schedule  WeeklyScheduleDTO `json:"schedule"`
	CreatedAt time.Time         `json:"created_at"`
}

func toMemberScheduleDTO(ms schedule.MemberSchedule) MemberScheduleDTO {
	return MemberScheduleDTO{
		ID:        string(ms.ID),
		MemberID:  string(ms.MemberID),
		From:      ms.From,
		Schedule:  toWeeklyDTO(ms.Schedule),
		CreatedAt: ms.CreatedAt,
	}
}

// ResolvedScheduleDTO is the schedule in force on a date.
type ResolvedScheduleDTO struct {
	Date             generic.TimePoint `json:"date"`
	FromWorkspace    bool              `json:"from_workspace"`
	MemberScheduleID string            `json:"member_schedule_id,omitempty"`
	Schedule         WeeklyScheduleDTO `json:"schedule"`
}

// =============================================================================
// WORKSPACES AND MEMBERS
// =============================================================================

type RegisterWorkspaceRequest struct {
	Name                      string `json:"name" validate:"required,max=200"`
	FiscalYearStartMonth      int    `json:"fiscal_year_start_month" validate:"omitempty,min=1,max=12"`
	Timezone                  string `json:"timezone" validate:"required"`
	MemberScheduleSelfService bool   `json:"member_schedule_self_service"`
	Owner                     struct {
		Name                string             `json:"name" validate:"required,max=200"`
		Email               string             `json:"email" validate:"omitempty,email"`
		Timezone            string             `json:"timezone"`
		EmploymentStartDate *generic.TimePoint `json:"employment_start_date"`
	} `json:"owner"`
}

type WorkspaceDTO struct {
	ID                        string    `json:"id"`
	Name                      string    `json:"name"`
	FiscalYearStartMonth      int       `json:"fiscal_year_start_month"`
	Timezone                  string    `json:"timezone"`
	MemberScheduleSelfService bool      `json:"member_schedule_self_service"`
	CreatedAt                 time.Time `json:"created_at"`
}

func toWorkspaceDTO(ws tenant.Workspace) WorkspaceDTO {
	return WorkspaceDTO{
		ID:                        string(ws.ID),
		Name:                      ws.Name,
		FiscalYearStartMonth:      int(ws.FiscalYearStartMonth),
		Timezone:                  ws.Timezone,
		MemberScheduleSelfService: ws.MemberScheduleSelfService,
		CreatedAt:                 ws.CreatedAt,
	}
}

type RegisterWorkspaceResponse struct {
	Workspace WorkspaceDTO `json:"workspace"`
	Owner     MemberDTO    `json:"owner"`
}

type CreateMemberRequest struct {
	Name                string             `json:"name" validate:"required,max=200"`
	Email               string             `json:"email" validate:"omitempty,email"`
	IsAdmin             bool               `json:"is_admin"`
	Timezone            string             `json:"timezone"`
	PublicHolidayID     *string            `json:"public_holiday_id"`
	EmploymentStartDate *generic.TimePoint `json:"employment_start_date"`
}

type AssignHolidayCalendarRequest struct {
	PublicHolidayID *string `json:"public_holiday_id"`
}

type MemberDTO struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Email               string             `json:"email,omitempty"`
	IsAdmin             bool               `json:"is_admin"`
	Timezone            string             `json:"timezone,omitempty"`
	PublicHolidayID     *string            `json:"public_holiday_id,omitempty"`
	EmploymentStartDate *generic.TimePoint `json:"employment_start_date,omitempty"`
	Status              string             `json:"status"`
}

func toMemberDTO(m tenant.Member) MemberDTO {
	dto := MemberDTO{
		ID:                  string(m.ID),
		Name:                m.Name,
		Email:               m.Email,
		IsAdmin:             m.IsAdmin,
		Timezone:            m.Timezone,
		EmploymentStartDate: m.EmploymentStartDate,
		Status:              string(m.Status),
	}
	if m.PublicHolidayID != nil {
		id := string(*m.PublicHolidayID)
		dto.PublicHolidayID = &id
	}
	return dto
}

// =============================================================================
// ALLOWANCES
// =============================================================================

type CreateAllowanceTypeRequest struct {
	Name                              string           `json:"name" validate:"required,max=200"`
	Unit                              string           `json:"unit" validate:"omitempty,oneof=days hours"`
	IgnoreAllowanceLimit              bool             `json:"ignore_allowance_limit"`
	MaxCarryForward                   *decimal.Decimal `json:"max_carry_forward"`
	CarryForwardMonthsAfterFiscalYear int              `json:"carry_forward_months_after_fiscal_year" validate:"min=0,max=12"`
	DefaultAllowance                  decimal.Decimal  `json:"default_allowance"`
	Active                            *bool            `json:"active"`
}

func (r CreateAllowanceTypeRequest) toDomain() allowance.AllowanceType {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return allowance.AllowanceType{
		Name:                              r.Name,
		Unit:                              generic.Unit(r.Unit),
		IgnoreAllowanceLimit:              r.IgnoreAllowanceLimit,
		MaxCarryForward:                   r.MaxCarryForward,
		CarryForwardMonthsAfterFiscalYear: r.CarryForwardMonthsAfterFiscalYear,
		DefaultAllowance:                  r.DefaultAllowance,
		Active:                            active,
	}
}

type AllowanceTypeDTO struct {
	ID                                string           `json:"id"`
	Name                              string           `json:"name"`
	Unit                              string           `json:"unit"`
	IgnoreAllowanceLimit              bool             `json:"ignore_allowance_limit"`
	MaxCarryForward                   *decimal.Decimal `json:"max_carry_forward"`
	CarryForwardMonthsAfterFiscalYear int              `json:"carry_forward_months_after_fiscal_year"`
	DefaultAllowance                  decimal.Decimal  `json:"default_allowance"`
	Active                            bool             `json:"active"`
}

func toAllowanceTypeDTO(t allowance.AllowanceType) AllowanceTypeDTO {
	return AllowanceTypeDTO{
		ID:                                string(t.ID),
		Name:                              t.Name,
		Unit:                              string(t.Unit),
		IgnoreAllowanceLimit:              t.IgnoreAllowanceLimit,
		MaxCarryForward:                   t.MaxCarryForward,
		CarryForwardMonthsAfterFiscalYear: t.CarryForwardMonthsAfterFiscalYear,
		DefaultAllowance:                  t.DefaultAllowance,
		Active:                            t.Active,
	}
}

// MemberAllowanceDTO is one fiscal-year bucket.
type MemberAllowanceDTO struct {
	AllowanceTypeID     string                                          `json:"allowance_type_id"`
	Year                int                                             `json:"year"`
	Start               generic.TimePoint                               `json:"start"`
	End                 generic.TimePoint                               `json:"end"`
	Allowance           decimal.Decimal                                 `json:"allowance"`
	BroughtForward      decimal.Decimal                                 `json:"brought_forward"`
	BroughtForwardState string                                          `json:"brought_forward_state"`
	CompensatoryTimeOff decimal.Decimal                                 `json:"compensatory_time_off"`
	Taken               decimal.Decimal                                 `json:"taken"`
	Remaining           decimal.Decimal                                 `json:"remaining"`
	Expiration          *generic.TimePoint                              `json:"expiration,omitempty"`
	LeaveTypesStats     map[generic.LeaveTypeID]allowance.LeaveTypeStat `json:"leave_types_stats"`
}

func toMemberAllowanceDTO(a allowance.MemberAllowance) MemberAllowanceDTO {
	return MemberAllowanceDTO{
		AllowanceTypeID:     string(a.AllowanceTypeID),
		Year:                a.Year,
		Start:               a.Start,
		End:                 a.End,
		Allowance:           a.Allowance,
		BroughtForward:      a.BroughtForward,
		BroughtForwardState: a.BroughtForwardState.String(),
		CompensatoryTimeOff: a.CompensatoryTimeOff,
		Taken:               a.Taken,
		Remaining:           a.Remaining,
		Expiration:          a.Expiration,
		LeaveTypesStats:     a.LeaveTypesStats,
	}
}

// EditAllowanceRequest changes one row. Omitted fields keep their value.
type EditAllowanceRequest struct {
	Allowance           *decimal.Decimal `json:"allowance"`
	BroughtForward      *decimal.Decimal `json:"brought_forward"`
	CompensatoryTimeOff *decimal.Decimal `json:"compensatory_time_off"`
}

type EditConfigurationRequest struct {
	Default  *bool `json:"default"`
	Disabled *bool `json:"disabled"`
}

type ConfigurationDTO struct {
	AllowanceTypeID string `json:"allowance_type_id"`
	Default         bool   `json:"default"`
	Disabled        bool   `json:"disabled"`
}

func toConfigurationDTOs(configs []allowance.TypeConfiguration) []ConfigurationDTO {
	out := make([]ConfigurationDTO, len(configs))
	for i, c := range configs {
		out[i] = ConfigurationDTO{AllowanceTypeID: string(c.AllowanceTypeID), Default: c.Default, Disabled: c.Disabled}
	}
	return out
}

type RecomputeResultDTO struct {
	MemberID          string               `json:"member_id"`
	UpdatedRows       int                  `json:"updated_rows"`
	RefreshedRequests int                  `json:"refreshed_requests"`
	Allowances        []MemberAllowanceDTO `json:"allowances"`
}

// BatchResultDTO reports a multi-member operation.
type BatchResultDTO struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

func toBatchResultDTO(res allowance.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{Succeeded: []string{}, Failed: map[string]string{}}
	for _, id := range res.Succeeded {
		dto.Succeeded = append(dto.Succeeded, string(id))
	}
	for id, err := range res.Failed {
		dto.Failed[string(id)] = err.Error()
	}
	return dto
}

// =============================================================================
// LEAVE TYPES AND REQUESTS
// =============================================================================

type CreateLeaveTypeRequest struct {
	Name                 string  `json:"name" validate:"required,max=200"`
	TakeFromAllowance    bool    `json:"take_from_allowance"`
	AllowanceTypeID      *string `json:"allowance_type_id" validate:"required_if=TakeFromAllowance true"`
	LeaveUnit            string  `json:"leave_unit" validate:"omitempty,oneof=days half_days hours minutes_30 minutes_15 minutes_10 minutes_5 minutes_1"`
	IgnoreSchedule       bool    `json:"ignore_schedule"`
	IgnorePublicHolidays bool    `json:"ignore_public_holidays"`
}

func (r CreateLeaveTypeRequest) toDomain() timeoff.LeaveType {
	lt := timeoff.LeaveType{
		Name:                 r.Name,
		TakeFromAllowance:    r.TakeFromAllowance,
		LeaveUnit:            timeoff.LeaveUnit(r.LeaveUnit),
		IgnoreSchedule:       r.IgnoreSchedule,
		IgnorePublicHolidays: r.IgnorePublicHolidays,
	}
	if r.AllowanceTypeID != nil {
		id := generic.AllowanceTypeID(*r.AllowanceTypeID)
		lt.AllowanceTypeID = &id
	}
	return lt
}

type LeaveTypeDTO struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	TakeFromAllowance    bool    `json:"take_from_allowance"`
	AllowanceTypeID      *string `json:"allowance_type_id,omitempty"`
	LeaveUnit            string  `json:"leave_unit"`
	IgnoreSchedule       bool    `json:"ignore_schedule"`
	IgnorePublicHolidays bool    `json:"ignore_public_holidays"`
}

func toLeaveTypeDTO(lt timeoff.LeaveType) LeaveTypeDTO {
	dto := LeaveTypeDTO{
		ID:                   string(lt.ID),
		Name:                 lt.Name,
		TakeFromAllowance:    lt.TakeFromAllowance,
		LeaveUnit:            string(lt.LeaveUnit),
		IgnoreSchedule:       lt.IgnoreSchedule,
		IgnorePublicHolidays: lt.IgnorePublicHolidays,
	}
	if lt.AllowanceTypeID != nil {
		id := string(*lt.AllowanceTypeID)
		dto.AllowanceTypeID = &id
	}
	return dto
}

// LeaveRequestRequest is the body of preview and submit.
type LeaveRequestRequest struct {
	MemberID    string             `json:"member_id" validate:"required"`
	LeaveTypeID string             `json:"leave_type_id" validate:"required"`
	Start       *generic.TimePoint `json:"start" validate:"required"`
	End         *generic.TimePoint `json:"end" validate:"required"`
	StartAt     string             `json:"start_at" validate:"omitempty,oneof=morning afternoon"`
	EndAt       string             `json:"end_at" validate:"omitempty,oneof=lunchtime end_of_day"`
	Reason      string             `json:"reason" validate:"max=2000"`
}

func (r LeaveRequestRequest) toInput() workspace.RequestInput {
	span := timeoff.FullDays(*r.Start, *r.End)
	if r.StartAt != "" {
		span.StartAt = timeoff.StartAt(r.StartAt)
	}
	if r.EndAt != "" {
		span.EndAt = timeoff.EndAt(r.EndAt)
	}
	return workspace.RequestInput{
		MemberID:    generic.MemberID(r.MemberID),
		LeaveTypeID: generic.LeaveTypeID(r.LeaveTypeID),
		Span:        span,
		Reason:      r.Reason,
	}
}

type RequestDTO struct {
	ID                     string            `json:"id"`
	MemberID               string            `json:"member_id"`
	LeaveTypeID            string            `json:"leave_type_id"`
	Start                  generic.TimePoint `json:"start"`
	End                    generic.TimePoint `json:"end"`
	StartAt                string            `json:"start_at"`
	EndAt                  string            `json:"end_at"`
	Status                 string            `json:"status"`
	Canceled               bool              `json:"canceled"`
	Reason                 string            `json:"reason,omitempty"`
	Duration               decimal.Decimal   `json:"duration"`
	WorkdayAbsenceDuration decimal.Decimal   `json:"workday_absence_duration"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func toRequestDTO(r timeoff.Request) RequestDTO {
	return RequestDTO{
		ID:                     string(r.ID),
		MemberID:               string(r.MemberID),
		LeaveTypeID:            string(r.LeaveTypeID),
		Start:                  r.Start,
		End:                    r.End,
		StartAt:                string(r.StartAt),
		EndAt:                  string(r.EndAt),
		Status:                 string(r.Status),
		Canceled:               r.Canceled(),
		Reason:                 r.Reason,
		Duration:               r.Duration,
		WorkdayAbsenceDuration: r.WorkdayAbsenceDuration,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

type DayPortionDTO struct {
	Date    generic.TimePoint `json:"date"`
	AM      bool              `json:"am"`
	PM      bool              `json:"pm"`
	Days    decimal.Decimal   `json:"days"`
	Minutes int               `json:"minutes"`
	Reason  string            `json:"zero_reason,omitempty"`
}

// PreviewDTO is what a request would consume.
type PreviewDTO struct {
	Unit           string          `json:"unit"`
	Duration       decimal.Decimal `json:"duration"`
	WorkdayAbsence decimal.Decimal `json:"workday_absence_duration"`
	Days           []DayPortionDTO `json:"days"`
}

func toPreviewDTO(p *workspace.Preview) PreviewDTO {
	dto := PreviewDTO{
		Unit:           string(p.WorkdayAbsence.Unit),
		Duration:       p.Duration.Value,
		WorkdayAbsence: p.WorkdayAbsence.Value,
		Days:           make([]DayPortionDTO, 0, len(p.Breakdown.Portions)),
	}
	for _, d := range p.Breakdown.Portions {
		dto.Days = append(dto.Days, DayPortionDTO{
			Date:    d.Date,
			AM:      d.Absent.AM,
			PM:      d.Absent.PM,
			Days:    d.Days,
			Minutes: d.Minutes,
			Reason:  string(d.Reason),
		})
	}
	return dto
}

// =============================================================================
// PUBLIC HOLIDAYS
// =============================================================================

type CreateHolidayCalendarRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	CountryCode     string `json:"country_code" validate:"omitempty,len=2"`
	SubdivisionCode string `json:"subdivision_code"`
}

type HolidayCalendarDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CountryCode     string `json:"country_code,omitempty"`
	SubdivisionCode string `json:"subdivision_code,omitempty"`
}

func toHolidayCalendarDTO(c holiday.Calendar) HolidayCalendarDTO {
	return HolidayCalendarDTO{ID: string(c.ID), Name: c.Name, CountryCode: c.CountryCode, SubdivisionCode: c.SubdivisionCode}
}

type HolidayDayRequest struct {
	Date     *generic.TimePoint `json:"date" validate:"required"`
	Name     string             `json:"name" validate:"required,max=200"`
	Duration string             `json:"duration" validate:"omitempty,oneof=full_day morning afternoon"`
}

type UpdateHolidayDayRequest struct {
	Date     *generic.TimePoint `json:"date"`
	Name     string             `json:"name" validate:"max=200"`
	Duration string             `json:"duration" validate:"omitempty,oneof=full_day morning afternoon"`
}

type HolidayDayDTO struct {
	ID         string            `json:"id"`
	CalendarID string            `json:"public_holiday_id"`
	Date       generic.TimePoint `json:"date"`
	Name       string            `json:"name"`
	Year       int               `json:"year"`
	Duration   string            `json:"duration"`
}

func toHolidayDayDTO(d holiday.Day) HolidayDayDTO {
	return HolidayDayDTO{
		ID:         string(d.ID),
		CalendarID: string(d.CalendarID),
		Date:       d.Date,
		Name:       d.Name,
		Year:       d.Year,
		Duration:   string(d.Duration),
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

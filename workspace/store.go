package workspace

import (
	"context"

	"github.com/absentify/allowance-engine/allowance"
	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
)

// Store is everything the orchestration layer writes on top of what the
// ledger reads. Get* methods return (nil, nil) when the row does not exist.
type Store interface {
	allowance.Store

	CreateWorkspace(ctx context.Context, ws tenant.Workspace) error
	ListWorkspaces(ctx context.Context) ([]tenant.Workspace, error)
	SaveMember(ctx context.Context, m tenant.Member) error

	SaveWorkspaceSchedule(ctx context.Context, ws schedule.WorkspaceSchedule) error
	GetMemberSchedule(ctx context.Context, id generic.ScheduleID) (*schedule.MemberSchedule, error)
	SaveMemberSchedule(ctx context.Context, ms schedule.MemberSchedule) error
	DeleteMemberSchedule(ctx context.Context, id generic.ScheduleID) error

	CreateAllowanceType(ctx context.Context, t allowance.AllowanceType) error
	CreateLeaveType(ctx context.Context, lt timeoff.LeaveType) error
	GetLeaveType(ctx context.Context, id generic.LeaveTypeID) (*timeoff.LeaveType, error)

	CreateHolidayCalendar(ctx context.Context, c holiday.Calendar) error
	GetHolidayCalendar(ctx context.Context, id generic.PublicHolidayID) (*holiday.Calendar, error)
	SaveHolidayDay(ctx context.Context, d holiday.Day) error
	GetHolidayDay(ctx context.Context, id generic.HolidayDayID) (*holiday.Day, error)
	DeleteHolidayDay(ctx context.Context, id generic.HolidayDayID) error

	SaveRequest(ctx context.Context, r timeoff.Request) error
	GetRequest(ctx context.Context, id generic.RequestID) (*timeoff.Request, error)
}

// TxStore runs fn against a transaction-bound Store. fn's error rolls back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

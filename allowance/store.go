package allowance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/absentify/allowance-engine/generic"
	"github.com/absentify/allowance-engine/holiday"
	"github.com/absentify/allowance-engine/schedule"
	"github.com/absentify/allowance-engine/tenant"
	"github.com/absentify/allowance-engine/timeoff"
)

// =============================================================================
// STORE - What a ledger pass reads and writes
// =============================================================================
//
// Get* methods return (nil, nil) when the row does not exist.
// store/sqlstore implements every method for SQLite and PostgreSQL.

type Store interface {
	schedule.Store
	generic.AuditLog

	GetWorkspace(ctx context.Context, id generic.WorkspaceID) (*tenant.Workspace, error)
	ListMembers(ctx context.Context, workspaceID generic.WorkspaceID) ([]tenant.Member, error)
	ListMembersByCalendar(ctx context.Context, calendarID generic.PublicHolidayID) ([]tenant.Member, error)

	ListHolidayDays(ctx context.Context, calendarID generic.PublicHolidayID) ([]holiday.Day, error)

	ListLeaveTypes(ctx context.Context, workspaceID generic.WorkspaceID) ([]timeoff.LeaveType, error)
	// ListRequestsOverlapping returns the member's requests touching [from, to).
	ListRequestsOverlapping(ctx context.Context, memberID generic.MemberID, from, to generic.TimePoint) ([]timeoff.Request, error)
	UpdateRequestDurations(ctx context.Context, id generic.RequestID, duration, workdayAbsence decimal.Decimal) error

	GetAllowanceType(ctx context.Context, id generic.AllowanceTypeID) (*AllowanceType, error)
	ListAllowanceTypes(ctx context.Context, workspaceID generic.WorkspaceID) ([]AllowanceType, error)

	GetMemberAllowance(ctx context.Context, memberID generic.MemberID, typeID generic.AllowanceTypeID, year int) (*MemberAllowance, error)
	ListMemberAllowances(ctx context.Context, memberID generic.MemberID) ([]MemberAllowance, error)
	// UpsertMemberAllowance inserts or updates the row keyed by
	// (member_id, allowance_type_id, year).
	UpsertMemberAllowance(ctx context.Context, row MemberAllowance) error

	ListConfigurations(ctx context.Context, memberID generic.MemberID) ([]TypeConfiguration, error)
	// SaveConfigurations upserts every row keyed by (member_id, allowance_type_id).
	SaveConfigurations(ctx context.Context, configs []TypeConfiguration) error
}

// TxStore runs fn against a transaction-bound Store. fn's error rolls back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/absentify/allowance-engine/schedule"
)

// scheduleColumns are the 49 weekday columns, Monday first, seven per day.
var scheduleColumns = func() []string {
	var cols []string
	for _, wd := range schedule.Weekdays {
		d := schedule.WeekdayName(wd)
		cols = append(cols,
			d+"_am_start", d+"_am_end", d+"_pm_start", d+"_pm_end",
			d+"_am_enabled", d+"_pm_enabled", d+"_deduct_fullday",
		)
	}
	return cols
}()

func scheduleColumnDDL() string {
	var b strings.Builder
	for _, c := range scheduleColumns {
		typ := "TEXT NOT NULL"
		if strings.HasSuffix(c, "_enabled") || strings.HasSuffix(c, "_fullday") {
			typ = "BOOLEAN NOT NULL DEFAULT FALSE"
		}
		fmt.Fprintf(&b, "\t\t%s %s,\n", c, typ)
	}
	return b.String()
}

// Migrate creates the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema() {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\n%s", err, stmt)
		}
	}
	return nil
}

func schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		fiscal_year_start_month INTEGER NOT NULL,
		timezone TEXT NOT NULL DEFAULT '',
		member_schedule_self_service BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,

		`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		timezone TEXT NOT NULL DEFAULT '',
		public_holiday_id TEXT,
		employment_start_date TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_members_workspace ON members(workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_members_public_holiday ON members(public_holiday_id)`,

		`CREATE TABLE IF NOT EXISTS workspace_schedules (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL UNIQUE,
` + scheduleColumnDDL() + `		updated_at TIMESTAMP NOT NULL
	)`,

		`CREATE TABLE IF NOT EXISTS member_schedules (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		"from" TEXT NOT NULL,
` + scheduleColumnDDL() + `		created_at TIMESTAMP NOT NULL
	)`,
		// Duplicate "from" rows predating this index are tolerated by the
		// resolver; new ones are rejected here.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_member_schedules_from ON member_schedules(member_id, "from")`,

		`CREATE TABLE IF NOT EXISTS allowance_types (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		ignore_allowance_limit BOOLEAN NOT NULL DEFAULT FALSE,
		max_carry_forward TEXT,
		carry_forward_months_after_fiscal_year INTEGER NOT NULL DEFAULT 0,
		default_allowance TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_allowance_types_workspace ON allowance_types(workspace_id)`,

		`CREATE TABLE IF NOT EXISTS member_allowance_type_configurations (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		allowance_type_id TEXT NOT NULL,
		"default" BOOLEAN NOT NULL DEFAULT FALSE,
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(member_id, allowance_type_id)
	)`,

		`CREATE TABLE IF NOT EXISTS member_allowances (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		allowance_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		allowance TEXT NOT NULL,
		brought_forward TEXT NOT NULL,
		overwrite_brought_forward BOOLEAN NOT NULL DEFAULT FALSE,
		compensatory_time_off TEXT NOT NULL,
		taken TEXT NOT NULL,
		remaining TEXT NOT NULL,
		start TEXT NOT NULL,
		"end" TEXT NOT NULL,
		expiration TEXT,
		leave_types_stats TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(member_id, allowance_type_id, year)
	)`,

		`CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		take_from_allowance BOOLEAN NOT NULL DEFAULT FALSE,
		allowance_type_id TEXT,
		leave_unit TEXT NOT NULL,
		ignore_schedule BOOLEAN NOT NULL DEFAULT FALSE,
		ignore_public_holidays BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,

		`CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start TEXT NOT NULL,
		"end" TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		approved_by TEXT,
		canceled_at TIMESTAMP,
		canceled_by TEXT,
		duration TEXT NOT NULL,
		workday_absence_duration TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_member_dates ON requests(member_id, start, "end")`,

		`CREATE TABLE IF NOT EXISTS public_holidays (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		country_code TEXT NOT NULL,
		subdivision_code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

		`CREATE TABLE IF NOT EXISTS public_holiday_days (
		id TEXT PRIMARY KEY,
		public_holiday_id TEXT NOT NULL,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		year INTEGER NOT NULL,
		duration TEXT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_public_holiday_days_calendar ON public_holiday_days(public_holiday_id, date)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		workspace_id TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		subject TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}'
	)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(workspace_id, subject, created_at)`,
	}
}

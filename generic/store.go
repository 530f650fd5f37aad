/*
store.go - Audit log contract

PURPOSE:
  Ledger mutations (manual edits, configuration toggles, recomputes that
  changed a row, rollovers) are recorded with who did what when. The
  allowance rows themselves are upserted in place; the audit log is the
  append-only trail next to them.

IMPLEMENTATIONS:
  - store/sqlstore: audit_log table (SQLite / PostgreSQL)
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Separate from the allowance rows, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID          string
	Timestamp   time.Time
	WorkspaceID WorkspaceID
	ActorID     MemberID // empty for system jobs
	Action      AuditAction
	Subject     string         // member, schedule or calendar id the action applied to
	Payload     map[string]any // action-specific data
}

type AuditAction string

const (
	AuditScheduleChanged      AuditAction = "schedule_changed"
	AuditHolidayChanged       AuditAction = "holiday_changed"
	AuditAllowanceEdited      AuditAction = "allowance_edited"
	AuditConfigurationChanged AuditAction = "configuration_changed"
	AuditAllowanceRecomputed  AuditAction = "allowance_recomputed"
	AuditRequestApproved      AuditAction = "request_approved"
	AuditRequestCanceled      AuditAction = "request_canceled"
	AuditRollover             AuditAction = "rollover"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	WorkspaceID WorkspaceID
	Subject     string
	Actions     []AuditAction
	Limit       int
}

// NewAuditEntry stamps an entry with a fresh id and the current time.
func NewAuditEntry(workspaceID WorkspaceID, actor MemberID, action AuditAction, subject string, payload map[string]any) AuditEntry {
	return AuditEntry{
		ID:          NewID(),
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
		ActorID:     actor,
		Action:      action,
		Subject:     subject,
		Payload:     payload,
	}
}

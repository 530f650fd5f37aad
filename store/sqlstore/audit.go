package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/absentify/allowance-engine/generic"
)

type auditRecord struct {
	ID          string    `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	WorkspaceID string    `db:"workspace_id"`
	ActorID     string    `db:"actor_id"`
	Action      string    `db:"action"`
	Subject     string    `db:"subject"`
	Payload     string    `db:"payload"`
}

func (s *Store) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	if e.ID == "" {
		e.ID = generic.NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO audit_log (id, created_at, workspace_id, actor_id, action, subject, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), e.WorkspaceID, e.ActorID, string(e.Action), e.Subject, string(payload))
	return err
}

// ListAudit returns matching entries, newest first.
func (s *Store) ListAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	query := `SELECT id, created_at, workspace_id, actor_id, action, subject, payload FROM audit_log WHERE workspace_id = ?`
	args := []any{f.WorkspaceID}

	if f.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, f.Subject)
	}
	if len(f.Actions) > 0 {
		query += ` AND action IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(f.Actions)), ", ") + `)`
		for _, a := range f.Actions {
			args = append(args, string(a))
		}
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	var recs []auditRecord
	if err := s.selectAll(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]generic.AuditEntry, 0, len(recs))
	for _, r := range recs {
		var payload map[string]any
		if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
			return nil, fmt.Errorf("audit %s: decode payload: %w", r.ID, err)
		}
		out = append(out, generic.AuditEntry{
			ID:          r.ID,
			Timestamp:   r.CreatedAt,
			WorkspaceID: generic.WorkspaceID(r.WorkspaceID),
			ActorID:     generic.MemberID(r.ActorID),
			Action:      generic.AuditAction(r.Action),
			Subject:     r.Subject,
			Payload:     payload,
		})
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/roach88/formwalk/internal/ir"
)

// AppendAudit appends a navigation audit event. Writing the same
// (instance, seq) twice is a no-op.
func (s *Store) AppendAudit(ctx context.Context, ev ir.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (instance_id, seq, kind, form_index, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(instance_id, seq) DO NOTHING
	`,
		ev.InstanceID,
		ev.Seq,
		string(ev.Kind),
		ev.Index.String(),
		ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditLog returns the events of an instance in seq order. A non-empty
// kind keeps only events of that kind.
func (s *Store) AuditLog(ctx context.Context, instanceID string, kind ir.AuditKind) ([]ir.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, seq, kind, form_index, detail
		FROM audit_events
		WHERE instance_id = ? AND (? = '' OR kind = ?)
		ORDER BY seq ASC, id ASC
	`, instanceID, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	out := []ir.AuditEvent{}
	for rows.Next() {
		var ev ir.AuditEvent
		var k, idx string
		if err := rows.Scan(&ev.InstanceID, &ev.Seq, &k, &idx, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		ev.Kind = ir.AuditKind(k)
		if ev.Index, err = ir.ParseIndex(idx); err != nil {
			return nil, fmt.Errorf("audit seq %d: %w", ev.Seq, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest seq recorded for an instance in either the
// audit log or the registry, or 0. A resumed session continues from it.
func (s *Store) LastSeq(ctx context.Context, instanceID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(seq) FROM audit_events WHERE instance_id = ?), 0),
			COALESCE((SELECT seq FROM instances WHERE id = ?), 0)
		)
	`, instanceID, instanceID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

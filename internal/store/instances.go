package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/formwalk/internal/ir"
)

// UpsertInstance records a saved instance. A later save of the same
// instance replaces its row.
func (s *Store) UpsertInstance(ctx context.Context, rec ir.InstanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances
		(id, form_id, form_version, form_hash, display_name, path, status, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			form_version = excluded.form_version,
			form_hash    = excluded.form_hash,
			display_name = excluded.display_name,
			path         = excluded.path,
			status       = excluded.status,
			seq          = excluded.seq
	`,
		rec.ID,
		rec.FormID,
		rec.FormVersion,
		rec.FormHash,
		rec.DisplayName,
		rec.Path,
		string(rec.Status),
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return nil
}

// Instance returns the record for id. ok is false when none exists.
func (s *Store) Instance(ctx context.Context, id string) (rec ir.InstanceRecord, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, form_id, form_version, form_hash, display_name, path, status, seq
		FROM instances
		WHERE id = ?
	`, id)
	rec, err = scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.InstanceRecord{}, false, nil
	}
	if err != nil {
		return ir.InstanceRecord{}, false, err
	}
	return rec, true, nil
}

// ListInstances returns the instances of formID, or of every form when
// formID is empty, oldest save first.
func (s *Store) ListInstances(ctx context.Context, formID string) ([]ir.InstanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, form_version, form_hash, display_name, path, status, seq
		FROM instances
		WHERE ? = '' OR form_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, formID, formID)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	out := []ir.InstanceRecord{}
	for rows.Next() {
		rec, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return out, nil
}

// DeleteInstance removes the record for id. Its audit log is kept.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (ir.InstanceRecord, error) {
	var rec ir.InstanceRecord
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.FormID,
		&rec.FormVersion,
		&rec.FormHash,
		&rec.DisplayName,
		&rec.Path,
		&status,
		&rec.Seq,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan instance: %w", err)
	}
	rec.Status = ir.InstanceStatus(status)
	return rec, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/formwalk/internal/ir"
)

// SetChoices replaces the external choice list named list.
func (s *Store) SetChoices(ctx context.Context, list string, choices []ir.Choice) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set choices: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM external_choices WHERE list = ?`, list); err != nil {
		return fmt.Errorf("set choices: clear %q: %w", list, err)
	}
	for i, c := range choices {
		attrs, err := marshalAttrs(c.Attrs)
		if err != nil {
			return fmt.Errorf("set choices: %q[%d]: %w", list, i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO external_choices (list, position, value, label, attrs)
			VALUES (?, ?, ?, ?, ?)
		`, list, i, c.Value, c.Label, attrs)
		if err != nil {
			return fmt.Errorf("set choices: %q[%d]: %w", list, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set choices: commit: %w", err)
	}
	return nil
}

// Choices returns the external choice list named list in its stored order.
// An unknown list is empty. It implements model.ChoiceSource.
func (s *Store) Choices(list string) ([]ir.Choice, error) {
	rows, err := s.db.Query(`
		SELECT value, label, attrs
		FROM external_choices
		WHERE list = ?
		ORDER BY position ASC
	`, list)
	if err != nil {
		return nil, fmt.Errorf("query choices: %w", err)
	}
	defer rows.Close()

	var out []ir.Choice
	for rows.Next() {
		var c ir.Choice
		var attrs string
		if err := rows.Scan(&c.Value, &c.Label, &attrs); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		if c.Attrs, err = unmarshalAttrs(attrs); err != nil {
			return nil, fmt.Errorf("choice %q of %q: %w", c.Value, list, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate choices: %w", err)
	}
	return out, nil
}

// ChoiceLists returns the names of every stored list.
func (s *Store) ChoiceLists(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT list FROM external_choices ORDER BY list COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query choice lists: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan choice list: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// marshalAttrs stores attributes as canonical JSON so identical lists
// produce identical rows.
func marshalAttrs(attrs map[string]string) (string, error) {
	m := make(map[string]any, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	b, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalAttrs(s string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

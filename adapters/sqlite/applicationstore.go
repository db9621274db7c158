package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/artpar/traits/ports"
)

// ApplicationStore implements ports.ApplicationStore using SQLite.
type ApplicationStore struct {
	db *DB
}

// NewApplicationStore creates a new SQLite application store.
func NewApplicationStore(db *DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

// Record stores a new record and indexes its applied closure.
func (s *ApplicationStore) Record(ctx context.Context, rec ports.ApplicationRecord) error {
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	applied, err := json.Marshal(rec.Applied)
	if err != nil {
		return fmt.Errorf("encode applied: %w", err)
	}
	modified, err := json.Marshal(rec.Modified)
	if err != nil {
		return fmt.Errorf("encode modified: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO role_applications (id, base, result, roles, applied, modified, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Base, rec.Result, string(roles), string(applied), string(modified), rec.At.UTC())
	if err != nil {
		return err
	}

	for _, role := range rec.Applied {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO role_application_roles (application_id, role)
			VALUES (?, ?)
		`, rec.ID, role)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List returns the most recent records, newest first.
func (s *ApplicationStore) List(ctx context.Context, limit int) ([]ports.ApplicationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base, result, roles, applied, modified, applied_at
		FROM role_applications
		ORDER BY applied_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByRole returns records whose applied closure contains role, oldest first.
func (s *ApplicationStore) ByRole(ctx context.Context, role string) ([]ports.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.base, a.result, a.roles, a.applied, a.modified, a.applied_at
		FROM role_applications a
		JOIN role_application_roles r ON r.application_id = a.id
		WHERE r.role = ?
		ORDER BY a.applied_at ASC, a.rowid ASC
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]ports.ApplicationRecord, error) {
	var out []ports.ApplicationRecord
	for rows.Next() {
		var rec ports.ApplicationRecord
		var roles, applied, modified string
		if err := rows.Scan(&rec.ID, &rec.Base, &rec.Result, &roles, &applied, &modified, &rec.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(roles), &rec.Roles); err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
		if err := json.Unmarshal([]byte(applied), &rec.Applied); err != nil {
			return nil, fmt.Errorf("decode applied: %w", err)
		}
		if err := json.Unmarshal([]byte(modified), &rec.Modified); err != nil {
			return nil, fmt.Errorf("decode modified: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ ports.ApplicationStore = (*ApplicationStore)(nil)

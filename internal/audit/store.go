package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// NOTE: Store assumes the following table exists.
//
//	CREATE TABLE audit_events (
//	    id         TEXT PRIMARY KEY,
//	    action     TEXT NOT NULL,
//	    actor      TEXT NOT NULL,
//	    ip_address TEXT NOT NULL DEFAULT '',
//	    detail     TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//
// Rows are insert-only; retention is handled outside this service.

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO audit_events (id, action, actor, ip_address, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, q, e.ID, e.Action, e.Actor, e.IPAddress, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

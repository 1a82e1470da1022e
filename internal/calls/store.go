package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// NOTE: This store assumes the following table exists:
//
//	CREATE TABLE calls (
//	    call_id               TEXT PRIMARY KEY,
//	    org_id                TEXT NOT NULL,
//	    phone_number          TEXT NOT NULL DEFAULT '',
//	    status                TEXT NOT NULL,
//	    duration_seconds      INT NOT NULL DEFAULT 0,
//	    started_at            TIMESTAMPTZ NOT NULL,
//	    ended_at              TIMESTAMPTZ NOT NULL,
//	    transcript            TEXT NOT NULL DEFAULT '',
//	    transcript_fetched_at TIMESTAMPTZ,
//	    error_message         TEXT NOT NULL DEFAULT '',
//	    created_at            TIMESTAMPTZ NOT NULL
//	);
//
// The primary key on call_id is what makes Create an insert-or-no-op.

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var callColumns = []string{
	"call_id", "org_id", "phone_number", "status", "duration_seconds",
	"started_at", "ended_at", "transcript", "transcript_fetched_at",
	"error_message", "created_at",
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// FindByCallID returns the recorded call for the provider identifier, or
// ErrNotFound.
func (s *Store) FindByCallID(ctx context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	const q = `
SELECT call_id, org_id, phone_number, status, duration_seconds,
       started_at, ended_at, transcript, transcript_fetched_at, error_message, created_at
FROM calls
WHERE call_id = $1
`
	var c Call
	if err := s.db.QueryRowContext(ctx, q, callID).Scan(
		&c.CallID,
		&c.OrgID,
		&c.PhoneNumber,
		&c.Status,
		&c.DurationSeconds,
		&c.StartedAt,
		&c.EndedAt,
		&c.Transcript,
		&c.TranscriptFetchedAt,
		&c.ErrorMessage,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

// Create inserts the call record once per call_id. If a record for the same
// identifier already exists the insert is a no-op and the existing record is
// returned with created=false. Concurrent pollers racing on the same call
// therefore persist exactly one row.
func (s *Store) Create(ctx context.Context, c Call) (Call, bool, error) {
	if c.CallID == "" {
		return Call{}, false, ErrInvalidArgument
	}
	const q = `
INSERT INTO calls (
  call_id, org_id, phone_number, status, duration_seconds,
  started_at, ended_at, transcript, transcript_fetched_at, error_message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (call_id) DO NOTHING
`
	res, err := s.db.ExecContext(ctx, q,
		c.CallID,
		c.OrgID,
		c.PhoneNumber,
		c.Status,
		c.DurationSeconds,
		c.StartedAt,
		c.EndedAt,
		c.Transcript,
		c.TranscriptFetchedAt,
		c.ErrorMessage,
		c.CreatedAt,
	)
	if err != nil {
		return Call{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Call{}, false, err
	}
	if n > 0 {
		return c, true, nil
	}
	existing, err := s.FindByCallID(ctx, c.CallID)
	if err != nil {
		return Call{}, false, err
	}
	return existing, false, nil
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	OrgID    string
	From     time.Time // inclusive lower bound on started_at
	To       time.Time // exclusive upper bound on started_at
	Statuses []CallStatus
	Limit    uint64
}

// List returns calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Call, error) {
	q, args, err := buildListQuery(f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(
			&c.CallID,
			&c.OrgID,
			&c.PhoneNumber,
			&c.Status,
			&c.DurationSeconds,
			&c.StartedAt,
			&c.EndedAt,
			&c.Transcript,
			&c.TranscriptFetchedAt,
			&c.ErrorMessage,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func buildListQuery(f ListFilter) (string, []any, error) {
	b := psql.Select(callColumns...).
		From("calls").
		OrderBy("started_at DESC")
	if f.OrgID != "" {
		b = b.Where(sq.Eq{"org_id": f.OrgID})
	}
	if !f.From.IsZero() {
		b = b.Where(sq.GtOrEq{"started_at": f.From})
	}
	if !f.To.IsZero() {
		b = b.Where(sq.Lt{"started_at": f.To})
	}
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": f.Statuses})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	return b.ToSql()
}

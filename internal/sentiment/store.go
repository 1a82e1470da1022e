package sentiment

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

// NOTE: This store assumes the following table exists:
//
//	CREATE TABLE sentiment_analyses (
//	    id         UUID PRIMARY KEY,
//	    call_id    TEXT NOT NULL REFERENCES calls (call_id),
//	    org_id     TEXT NOT NULL,
//	    label      TEXT NOT NULL,
//	    score      DOUBLE PRECISION NOT NULL,
//	    summary    TEXT NOT NULL DEFAULT '',
//	    model      TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var analysisColumns = []string{
	"id", "call_id", "org_id", "label", "score", "summary", "model", "created_at",
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Create(ctx context.Context, a Analysis) error {
	if a.ID == "" || a.CallID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO sentiment_analyses (
  id, call_id, org_id, label, score, summary, model, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := s.db.ExecContext(ctx, q,
		a.ID,
		a.CallID,
		a.OrgID,
		a.Label,
		a.Score,
		a.Summary,
		a.Model,
		a.CreatedAt,
	)
	return err
}

// ListByCallIDs returns the analyses for the given calls, newest first. An
// empty id list yields an empty result without touching the database.
func (s *Store) ListByCallIDs(ctx context.Context, callIDs []string) ([]Analysis, error) {
	if len(callIDs) == 0 {
		return nil, nil
	}
	q, args, err := psql.Select(analysisColumns...).
		From("sentiment_analyses").
		Where(sq.Eq{"call_id": callIDs}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(
			&a.ID,
			&a.CallID,
			&a.OrgID,
			&a.Label,
			&a.Score,
			&a.Summary,
			&a.Model,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

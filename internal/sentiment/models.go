package sentiment

import (
	"errors"
	"time"
)

var ErrInvalidArgument = errors.New("sentiment: invalid argument")

// Label vocabulary for voter sentiment. The analyzer normalizes whatever the
// model returns onto these three values.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Result is one analyzer verdict for a transcript.
type Result struct {
	Label   string
	Score   float64 // polarity in [-1, 1]
	Summary string
}

// Analysis is a persisted sentiment verdict linked to a recorded call.
type Analysis struct {
	ID        string    `json:"id" db:"id"`
	CallID    string    `json:"call_id" db:"call_id"`
	OrgID     string    `json:"org_id" db:"org_id"`
	Label     string    `json:"label" db:"label"`
	Score     float64   `json:"score" db:"score"`
	Summary   string    `json:"summary" db:"summary"`
	Model     string    `json:"model" db:"model"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

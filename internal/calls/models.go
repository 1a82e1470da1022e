package calls

import (
	"errors"
	"time"
)

// Call is one processed outreach call, keyed by the provider's call
// identifier.
//
// Lifecycle invariant: a row is created once per call_id on first successful
// processing and never updated by the poller afterward. TranscriptFetchedAt
// doubles as the restart-safe idempotence marker: once set, later polling
// cycles skip the call even with a cold in-memory dedup cache.
type Call struct {
	CallID string `json:"call_id" db:"call_id"`
	OrgID  string `json:"org_id" db:"org_id"`

	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`

	Status CallStatus `json:"status" db:"status"`

	// DurationSeconds is the call duration in seconds.
	// Keep as an int for JSON friendliness; store as INT in Postgres.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`

	Transcript          string     `json:"transcript,omitempty" db:"transcript"`
	TranscriptFetchedAt *time.Time `json:"transcript_fetched_at,omitempty" db:"transcript_fetched_at"`

	// ErrorMessage is set only for failure-class statuses.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CallStatus is the fixed internal status vocabulary. Provider statuses are
// always mapped onto exactly one of these five values; the raw provider
// string is never stored as a status.
type CallStatus string

const (
	CallStatusCompleted CallStatus = "completed"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusBusy      CallStatus = "busy"
	CallStatusFailed    CallStatus = "failed"
	CallStatusCancelled CallStatus = "cancelled"
)

// AllStatuses lists every internal status, in reporting order.
func AllStatuses() []CallStatus {
	return []CallStatus{
		CallStatusCompleted,
		CallStatusNoAnswer,
		CallStatusBusy,
		CallStatusFailed,
		CallStatusCancelled,
	}
}

// IsFailure reports whether s is a failure-class status.
func (s CallStatus) IsFailure() bool {
	switch s {
	case CallStatusNoAnswer, CallStatusBusy, CallStatusFailed, CallStatusCancelled:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

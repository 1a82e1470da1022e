package audit

import "time"

// Event is an immutable, append-only record of an operator action on the
// polling controls.
//
// Invariants:
// - Events are never updated or deleted.
// - IP capture is best-effort; never block a control flow on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.

type Event struct {
	ID string `json:"id" db:"id"`

	// Action indicates which control was used.
	Action Action `json:"action" db:"action"`

	// Actor is the verified token subject behind the request.
	Actor string `json:"actor" db:"actor"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Detail is a short human-readable description for internal ops.
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionPollTriggered   Action = "poll_triggered"
	ActionIntervalChanged Action = "interval_changed"
	ActionCacheCleared    Action = "cache_cleared"
)

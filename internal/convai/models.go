// Package convai is the HTTP client for the conversational-AI calling
// provider. The provider's payloads are loosely shaped and have changed
// spelling across versions, so commonly used fields are decoded into typed
// struct fields while the complete object is retained for ordered-fallback
// extraction (see extract.go).
package convai

import (
	"encoding/json"
	"strings"
)

// SuccessValue is the provider's tri-state call_successful flag. The wire
// value may be the string "success" or "failed", a plain boolean, or absent
// entirely; anything else decodes as SuccessUnknown rather than failing the
// whole conversation record.
type SuccessValue int

const (
	SuccessUnknown SuccessValue = iota
	SuccessTrue
	SuccessFalse
)

func (v *SuccessValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "success":
			*v = SuccessTrue
		case "failed":
			*v = SuccessFalse
		default:
			*v = SuccessUnknown
		}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*v = SuccessTrue
		} else {
			*v = SuccessFalse
		}
		return nil
	}
	*v = SuccessUnknown
	return nil
}

// Conversation is one entry of the provider's conversation listing.
type Conversation struct {
	ConversationID  string       `json:"conversation_id"`
	Status          string       `json:"status"`
	CallSuccessful  SuccessValue `json:"call_successful"`
	ErrorMessage    string       `json:"error_message"`
	StartTimeUnix   int64        `json:"start_time_unix_secs"`
	CallDurationSec int          `json:"call_duration_secs"`

	// Raw is the full decoded object, kept for fallback field extraction.
	Raw map[string]any `json:"-"`
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	type alias Conversation
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Conversation(a)
	c.Raw = raw
	return nil
}

// TranscriptTurn is one exchange in the conversation detail payload.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Transcript is the flattened result of a conversation-detail fetch. Text is
// empty when the provider has no transcript for the call.
type Transcript struct {
	Text            string
	DurationSeconds int
}

package convai

import (
	"time"
)

// Ordered-fallback accessors over the raw conversation object. Each accessor
// tries the typed field first, then the known alternate spellings, oldest
// payload versions last.

// ID returns the stable call identifier, or "" when the record carries none.
func (c Conversation) ID() string {
	if c.ConversationID != "" {
		return c.ConversationID
	}
	return firstString(c.Raw, "conversation_id", "id", "call_id")
}

// PhoneNumber returns the dialed number, or "" when absent.
func (c Conversation) PhoneNumber() string {
	if s := firstString(c.Raw, "phone_number", "to_number", "customer_phone_number"); s != "" {
		return s
	}
	if s := nestedString(c.Raw, "metadata", "phone_call", "external_number"); s != "" {
		return s
	}
	return nestedString(c.Raw, "metadata", "phone_number")
}

// StartedAt returns the call start time, defaulting to now when the record
// carries no usable timestamp.
func (c Conversation) StartedAt(now time.Time) time.Time {
	if c.StartTimeUnix > 0 {
		return time.Unix(c.StartTimeUnix, 0).UTC()
	}
	if secs, ok := nestedNumber(c.Raw, "metadata", "start_time_unix_secs"); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	if s := firstString(c.Raw, "start_time", "created_at"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return now
}

// EndedAt returns the call end time. When the provider gives no explicit end
// it is derived from start plus duration, and failing that defaults to now.
func (c Conversation) EndedAt(now time.Time) time.Time {
	if secs, ok := nestedNumber(c.Raw, "end_time_unix_secs"); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	if secs, ok := nestedNumber(c.Raw, "metadata", "end_time_unix_secs"); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	if d := c.DurationSeconds(); d > 0 {
		start := c.StartedAt(now)
		return start.Add(time.Duration(d) * time.Second)
	}
	return now
}

// DurationSeconds returns the call duration, 0 when unknown.
func (c Conversation) DurationSeconds() int {
	if c.CallDurationSec > 0 {
		return c.CallDurationSec
	}
	if secs, ok := nestedNumber(c.Raw, "metadata", "call_duration_secs"); ok && secs > 0 {
		return int(secs)
	}
	return 0
}

// SecondaryStatus returns the nested carrier status string, used to classify
// failures (busy, no-answer) when the primary status is generic.
func (c Conversation) SecondaryStatus() string {
	if s := firstString(c.Raw, "twilio_status", "provider_status", "call_status"); s != "" {
		return s
	}
	return nestedString(c.Raw, "metadata", "phone_call", "status")
}

// ErrorMsg returns the provider's error description, or "" when absent.
func (c Conversation) ErrorMsg() string {
	if c.ErrorMessage != "" {
		return c.ErrorMessage
	}
	return firstString(c.Raw, "error_message", "error")
}

// OrgID returns the organization identifier carried in the conversation's
// client data, falling back to def when the call was placed without one.
func (c Conversation) OrgID(def string) string {
	for _, path := range [][]string{
		{"conversation_initiation_client_data", "dynamic_variables"},
		{"dynamic_variables"},
	} {
		vars, ok := nestedMap(c.Raw, path...)
		if !ok {
			continue
		}
		if s := firstString(vars, "organization_id", "org_id", "association_id"); s != "" {
			return s
		}
	}
	return def
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func nestedString(raw map[string]any, path ...string) string {
	last := len(path) - 1
	m, ok := nestedMap(raw, path[:last]...)
	if !ok {
		return ""
	}
	s, _ := m[path[last]].(string)
	return s
}

func nestedNumber(raw map[string]any, path ...string) (float64, bool) {
	last := len(path) - 1
	m, ok := nestedMap(raw, path[:last]...)
	if !ok {
		return 0, false
	}
	n, ok := m[path[last]].(float64)
	return n, ok
}

func nestedMap(raw map[string]any, path ...string) (map[string]any, bool) {
	m := raw
	for _, k := range path {
		next, ok := m[k].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	return m, m != nil
}

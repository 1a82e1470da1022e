package calls

import "strings"

// SuccessFlag is the provider's call_successful field as a tri-state.
// Providers report it as "success"/"failed" or true/false, and omit it for
// in-flight calls, so absence has to be first-class rather than a zero value.
type SuccessFlag int

const (
	SuccessUnknown SuccessFlag = iota
	SuccessYes
	SuccessNo
)

// ProviderStatus is the narrow slice of a provider conversation the status
// mapper looks at. All fields are optional; empty strings mean "absent".
type ProviderStatus struct {
	// Status is the provider's free-text status string.
	Status string
	// Successful is the provider's explicit success verdict, when present.
	Successful SuccessFlag
	// ErrorMessage is the provider's own failure description, when present.
	ErrorMessage string
	// SecondaryStatus is a status string carried in provider metadata
	// (e.g. an underlying carrier status), consulted for failure sub-reasons.
	SecondaryStatus string
}

var completionKeywords = []string{"done", "completed", "ended", "finished", "successful"}

// MapProviderStatus reduces a provider's ad hoc status reporting onto the
// internal CallStatus vocabulary. The second return value is the error
// message, populated only for failure-class outcomes.
//
// Precedence, in order:
//
//  1. Completion keyword in the status string, an explicit success flag, or a
//     fetched transcript all mean completed. A transcript outranks any status
//     field: if we got content, the call happened.
//  2. An explicit failure flag, or "fail" in the status string, classifies a
//     sub-reason (no_answer, busy, cancelled, failed) from the status and
//     secondary status strings.
//  3. Anything else is ambiguous: completed when a transcript exists,
//     otherwise failed.
//
// Pure function; safe to call concurrently.
func MapProviderStatus(in ProviderStatus, hasTranscript bool) (CallStatus, string) {
	status := strings.ToLower(strings.TrimSpace(in.Status))

	if containsAny(status, completionKeywords...) || in.Successful == SuccessYes || hasTranscript {
		return CallStatusCompleted, ""
	}

	if in.Successful == SuccessNo || strings.Contains(status, "fail") {
		reason := classifyFailure(status, strings.ToLower(in.SecondaryStatus))
		return reason, failureMessage(in.ErrorMessage, reason)
	}

	if hasTranscript {
		return CallStatusCompleted, ""
	}
	return CallStatusFailed, failureMessage(in.ErrorMessage, CallStatusFailed)
}

// classifyFailure picks the failure sub-reason from the provider status
// strings. Reasons are tried in fixed priority across both the primary and
// the secondary status: no_answer, then busy, then cancelled.
func classifyFailure(status, secondary string) CallStatus {
	both := []string{status, secondary}
	switch {
	case anyContains(both, "no-answer", "no_answer"):
		return CallStatusNoAnswer
	case anyContains(both, "busy"):
		return CallStatusBusy
	case anyContains(both, "cancel"):
		return CallStatusCancelled
	default:
		return CallStatusFailed
	}
}

func anyContains(strs []string, subs ...string) bool {
	for _, s := range strs {
		if containsAny(s, subs...) {
			return true
		}
	}
	return false
}

func failureMessage(providerMessage string, reason CallStatus) string {
	if providerMessage != "" {
		return providerMessage
	}
	switch reason {
	case CallStatusNoAnswer:
		return "Call not answered"
	case CallStatusBusy:
		return "Call busy"
	case CallStatusCancelled:
		return "Call cancelled"
	default:
		return "Call failed"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a provider status string describes a call
// that has finished, successfully or not. In-flight calls stay invisible to
// the pipeline until a later cycle. Matching is the same case-insensitive
// substring matching MapProviderStatus uses, so the two stay consistent.
func IsTerminalStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return false
	}
	return containsAny(s,
		"completed", "successful", "ended", "finished", "done",
		"failed", "no-answer", "no_answer", "busy", "cancelled",
	)
}

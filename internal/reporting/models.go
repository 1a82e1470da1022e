package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated call metrics for a window. OrgID is an
// optional filter; empty means every organization the poller records under.

type SummaryRequest struct {
	OrgID string    `json:"org_id,omitempty"`
	Range TimeRange `json:"range"`
}

// Summary aggregates the recorded calls of one window: outcome counts,
// durations, and the sentiment breakdown of analyzed transcripts.

type Summary struct {
	OrgID string `json:"org_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`
	NoAnswerCalls  int `json:"no_answer_calls"`
	BusyCalls      int `json:"busy_calls"`
	CancelledCalls int `json:"cancelled_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TranscribedCalls int `json:"transcribed_calls"`

	AnalyzedCalls         int     `json:"analyzed_calls"`
	PositiveCalls         int     `json:"positive_calls"`
	NeutralCalls          int     `json:"neutral_calls"`
	NegativeCalls         int     `json:"negative_calls"`
	AverageSentimentScore float64 `json:"average_sentiment_score"`
}

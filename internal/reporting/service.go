package reporting

import (
	"context"
	"errors"

	"campaign-callsync/internal/calls"
	"campaign-callsync/internal/sentiment"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource lists recorded calls. Satisfied by calls.Store and
// calls.MemoryStore.
type CallSource interface {
	List(ctx context.Context, f calls.ListFilter) ([]calls.Call, error)
}

// AnalysisSource lists sentiment analyses for a set of calls. Satisfied by
// sentiment.Store and sentiment.MemoryStore.
type AnalysisSource interface {
	ListByCallIDs(ctx context.Context, callIDs []string) ([]sentiment.Analysis, error)
}

// Service aggregates recorded calls into dashboard summaries. Reads only;
// the poller is the sole writer of the underlying rows.
type Service struct {
	calls    CallSource
	analyses AnalysisSource
}

// NewService builds a reporting service. analyses may be nil, in which case
// summaries carry no sentiment section.
func NewService(calls CallSource, analyses AnalysisSource) *Service {
	return &Service{calls: calls, analyses: analyses}
}

func validateRequest(req SummaryRequest) error {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ErrInvalidRequest
	}
	return nil
}

// Summary aggregates calls started within the window [From, To).
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	rows, latest, err := s.Dataset(ctx, req)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{OrgID: req.OrgID}
	var scoreSum float64
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.Transcript != "" {
			out.TranscribedCalls++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusBusy:
			out.BusyCalls++
		case calls.CallStatusCancelled:
			out.CancelledCalls++
		}

		a, ok := latest[c.CallID]
		if !ok {
			continue
		}
		out.AnalyzedCalls++
		scoreSum += a.Score
		switch a.Label {
		case sentiment.LabelPositive:
			out.PositiveCalls++
		case sentiment.LabelNegative:
			out.NegativeCalls++
		default:
			out.NeutralCalls++
		}
	}

	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if out.AnalyzedCalls > 0 {
		out.AverageSentimentScore = scoreSum / float64(out.AnalyzedCalls)
	}
	return out, nil
}

// Dataset returns the raw rows behind a summary: the calls of the window,
// newest first, plus the latest analysis per call. Used by the workbook
// export as well as Summary itself.
func (s *Service) Dataset(ctx context.Context, req SummaryRequest) ([]calls.Call, map[string]sentiment.Analysis, error) {
	if err := validateRequest(req); err != nil {
		return nil, nil, err
	}
	if s.calls == nil {
		return nil, nil, errors.New("reporting: call source not configured")
	}

	rows, err := s.calls.List(ctx, calls.ListFilter{
		OrgID: req.OrgID,
		From:  req.Range.From,
		To:    req.Range.To,
	})
	if err != nil {
		return nil, nil, err
	}

	latest := map[string]sentiment.Analysis{}
	if s.analyses != nil && len(rows) > 0 {
		ids := make([]string, 0, len(rows))
		for _, c := range rows {
			ids = append(ids, c.CallID)
		}
		analyses, err := s.analyses.ListByCallIDs(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range analyses {
			cur, ok := latest[a.CallID]
			if !ok || a.CreatedAt.After(cur.CreatedAt) {
				latest[a.CallID] = a
			}
		}
	}
	return rows, latest, nil
}

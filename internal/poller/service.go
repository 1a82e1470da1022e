// Package poller implements one polling cycle against the calling provider:
// list recent conversations, pick out newly terminal calls, fetch their
// transcripts, map provider statuses onto the internal vocabulary, and
// persist call plus sentiment records. Failures are isolated per call; a
// failed call is simply retried on a later cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaign-callsync/internal/calls"
	"campaign-callsync/internal/convai"
	"campaign-callsync/internal/sentiment"
	"campaign-callsync/pkg/retry"
)

var (
	// ErrCycleInProgress is returned when a cycle is requested while another
	// one is still running in this process.
	ErrCycleInProgress = errors.New("poller: cycle already in progress")

	// ErrLeaseHeld is returned when another process holds the poll lease.
	ErrLeaseHeld = errors.New("poller: poll lease held elsewhere")
)

type Lister interface {
	ListRecent(ctx context.Context, limit int) ([]convai.Conversation, error)
}

type TranscriptFetcher interface {
	GetTranscript(ctx context.Context, conversationID string) (convai.Transcript, error)
}

type CallStore interface {
	FindByCallID(ctx context.Context, callID string) (calls.Call, error)
	Create(ctx context.Context, c calls.Call) (calls.Call, bool, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (sentiment.Result, error)
	Model() string
}

type AnalysisStore interface {
	Create(ctx context.Context, a sentiment.Analysis) error
}

// Lease serializes polling across replicas. TryAcquire returns ok=false when
// another holder owns the lease; release must be called when ok.
type Lease interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

type Options struct {
	PageSize        int           // conversations requested per cycle
	BatchSize       int           // calls processed concurrently
	BatchPause      time.Duration // pause between batches
	CacheMax        int           // processed-set bound
	CacheKeep       int           // processed-set size after eviction
	DefaultOrgID    string        // org for calls without client data
	FetchRetries    uint64        // transcript fetch retries
	FetchRetryDelay time.Duration // initial backoff delay
}

func (o Options) withDefaults() Options {
	out := o
	if out.PageSize <= 0 {
		out.PageSize = 100
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 3
	}
	if out.BatchPause <= 0 {
		out.BatchPause = 500 * time.Millisecond
	}
	if out.CacheMax <= 0 {
		out.CacheMax = DefaultCacheMax
	}
	if out.CacheKeep <= 0 || out.CacheKeep >= out.CacheMax {
		out.CacheKeep = out.CacheMax / 2
	}
	if out.FetchRetries == 0 {
		out.FetchRetries = 3
	}
	if out.FetchRetryDelay <= 0 {
		out.FetchRetryDelay = time.Second
	}
	return out
}

// Service runs polling cycles. Cycles are serialized per process: RunCycle
// returns ErrCycleInProgress instead of overlapping a running cycle.
type Service struct {
	lister   Lister
	fetcher  TranscriptFetcher
	store    CallStore
	analyzer Analyzer
	analyses AnalysisStore
	lease    Lease
	log      *slog.Logger
	opts     Options

	processed *ProcessedSet
	clock     func() time.Time

	runMu sync.Mutex

	statMu   sync.Mutex
	lastPoll time.Time
}

func NewService(lister Lister, fetcher TranscriptFetcher, store CallStore, analyzer Analyzer, analyses AnalysisStore, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Service{
		lister:    lister,
		fetcher:   fetcher,
		store:     store,
		analyzer:  analyzer,
		analyses:  analyses,
		log:       log,
		opts:      opts,
		processed: NewProcessedSet(opts.CacheMax, opts.CacheKeep),
		clock:     time.Now,
	}
}

// SetLease enables cross-replica serialization. Without a lease the service
// only guards against overlap within its own process.
func (s *Service) SetLease(l Lease) { s.lease = l }

// RunCycle executes one full polling cycle. A listing failure aborts the
// cycle; per-call failures are logged and retried on a later cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrCycleInProgress
	}
	defer s.runMu.Unlock()

	if s.lease != nil {
		release, ok, err := s.lease.TryAcquire(ctx)
		switch {
		case err != nil:
			// A broken lease backend should not stop polling entirely;
			// the call store still dedups across replicas.
			s.log.Warn("poll lease check failed, proceeding without lease", "error", err)
		case !ok:
			return ErrLeaseHeld
		default:
			defer release()
		}
	}

	s.setLastPoll(s.clock())

	convs, err := s.lister.ListRecent(ctx, s.opts.PageSize)
	if err != nil {
		return fmt.Errorf("poller: list conversations: %w", err)
	}
	if len(convs) == 0 {
		s.log.Debug("no recent conversations")
		return nil
	}

	eligible := s.filterEligible(convs)
	s.log.Debug("conversations fetched", "total", len(convs), "eligible", len(eligible))
	if len(eligible) == 0 {
		return nil
	}

	for start := 0; start < len(eligible); start += s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.opts.BatchSize, len(eligible))

		var wg sync.WaitGroup
		for _, conv := range eligible[start:end] {
			wg.Add(1)
			go func(conv convai.Conversation) {
				defer wg.Done()
				id := conv.ID()
				if err := s.processCall(ctx, conv); err != nil {
					s.log.Error("processing call failed", "call_id", id, "error", err)
					return
				}
				s.processed.Add(id)
			}(conv)
		}
		wg.Wait()

		if end < len(eligible) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.BatchPause):
			}
		}
	}
	return nil
}

// filterEligible keeps conversations that carry an identifier, were not yet
// handled this lifetime, and have reached a terminal state. In-progress calls
// are left for a future cycle.
func (s *Service) filterEligible(convs []convai.Conversation) []convai.Conversation {
	var out []convai.Conversation
	for _, c := range convs {
		id := c.ID()
		if id == "" {
			s.log.Warn("conversation without identifier skipped")
			continue
		}
		if s.processed.Contains(id) {
			continue
		}
		if c.CallSuccessful == convai.SuccessUnknown && !calls.IsTerminalStatus(c.Status) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Service) processCall(ctx context.Context, conv convai.Conversation) error {
	id := conv.ID()

	existing, err := s.store.FindByCallID(ctx, id)
	switch {
	case err == nil:
		if existing.TranscriptFetchedAt != nil {
			s.log.Debug("call already recorded", "call_id", id)
			return nil
		}
	case errors.Is(err, calls.ErrNotFound):
	default:
		return fmt.Errorf("check existing call: %w", err)
	}

	tr := s.fetchTranscript(ctx, id)
	hasTranscript := tr.Text != ""

	status, errMsg := calls.MapProviderStatus(calls.ProviderStatus{
		Status:          conv.Status,
		Successful:      successFlag(conv.CallSuccessful),
		ErrorMessage:    conv.ErrorMsg(),
		SecondaryStatus: conv.SecondaryStatus(),
	}, hasTranscript)

	now := s.clock()
	fetchedAt := now
	duration := tr.DurationSeconds
	if duration == 0 {
		duration = conv.DurationSeconds()
	}

	rec := calls.Call{
		CallID:              id,
		OrgID:               conv.OrgID(s.opts.DefaultOrgID),
		PhoneNumber:         conv.PhoneNumber(),
		Status:              status,
		DurationSeconds:     duration,
		StartedAt:           conv.StartedAt(now),
		EndedAt:             conv.EndedAt(now),
		Transcript:          tr.Text,
		TranscriptFetchedAt: &fetchedAt,
		ErrorMessage:        errMsg,
		CreatedAt:           now,
	}

	saved, created, err := s.store.Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist call: %w", err)
	}
	if !created {
		s.log.Debug("call already recorded by another worker", "call_id", id)
		return nil
	}
	s.log.Info("call recorded",
		"call_id", id,
		"status", saved.Status,
		"org_id", saved.OrgID,
		"has_transcript", hasTranscript,
	)

	if hasTranscript && s.analyzer != nil && s.analyses != nil {
		if err := s.analyzeCall(ctx, saved); err != nil {
			return fmt.Errorf("sentiment analysis: %w", err)
		}
	}
	return nil
}

// fetchTranscript fetches with backoff. Exhausted retries degrade to an
// empty transcript so the call is still recorded without content.
func (s *Service) fetchTranscript(ctx context.Context, id string) convai.Transcript {
	tr, err := retry.DoNotify(ctx, s.opts.FetchRetries, s.opts.FetchRetryDelay,
		func(ctx context.Context) (convai.Transcript, error) {
			return s.fetcher.GetTranscript(ctx, id)
		},
		func(err error, wait time.Duration) {
			s.log.Warn("transcript fetch failed, retrying", "call_id", id, "wait", wait, "error", err)
		},
	)
	if err != nil {
		s.log.Warn("transcript unavailable after retries", "call_id", id, "error", err)
		return convai.Transcript{}
	}
	return tr
}

func (s *Service) analyzeCall(ctx context.Context, rec calls.Call) error {
	res, err := s.analyzer.Analyze(ctx, rec.Transcript)
	if err != nil {
		return err
	}
	a := sentiment.Analysis{
		ID:        uuid.NewString(),
		CallID:    rec.CallID,
		OrgID:     rec.OrgID,
		Label:     res.Label,
		Score:     res.Score,
		Summary:   res.Summary,
		Model:     s.analyzer.Model(),
		CreatedAt: s.clock(),
	}
	if err := s.analyses.Create(ctx, a); err != nil {
		return err
	}
	s.log.Info("sentiment recorded", "call_id", rec.CallID, "label", a.Label)
	return nil
}

func successFlag(v convai.SuccessValue) calls.SuccessFlag {
	switch v {
	case convai.SuccessTrue:
		return calls.SuccessYes
	case convai.SuccessFalse:
		return calls.SuccessNo
	default:
		return calls.SuccessUnknown
	}
}

// LastPoll returns the start time of the most recent cycle, zero before the
// first one.
func (s *Service) LastPoll() time.Time {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return s.lastPoll
}

func (s *Service) setLastPoll(t time.Time) {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	s.lastPoll = t
}

// ProcessedCount reports the current processed-set size.
func (s *Service) ProcessedCount() int { return s.processed.Len() }

// ClearProcessed empties the processed set.
func (s *Service) ClearProcessed() { s.processed.Clear() }

package poller

// Cycle tests run against in-memory fakes for every collaborator: the
// provider (lister + fetcher), the stores, and the analyzer. The clock is
// pinned so persisted timestamps are exact. Retry delays and batch pauses
// are shrunk to keep the tests fast.

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campaign-callsync/internal/calls"
	"campaign-callsync/internal/convai"
	"campaign-callsync/internal/sentiment"
)

var testNow = time.Unix(1700000000, 0).UTC()

type fakeLister struct {
	mu      sync.Mutex
	convs   []convai.Conversation
	err     error
	calls   int
	entered chan struct{}
	block   chan struct{}
	once    sync.Once
}

func (f *fakeLister) ListRecent(ctx context.Context, limit int) ([]convai.Conversation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.convs, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFetcher struct {
	mu      sync.Mutex
	texts   map[string]string
	errAll  error
	fetches map[string]int
}

func (f *fakeFetcher) GetTranscript(ctx context.Context, id string) (convai.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	f.fetches[id]++
	if f.errAll != nil {
		return convai.Transcript{}, f.errAll
	}
	return convai.Transcript{Text: f.texts[id], DurationSeconds: 30}, nil
}

func (f *fakeFetcher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, transcript string) (sentiment.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return sentiment.Result{Label: sentiment.LabelPositive, Score: 0.5, Summary: "supportive"}, nil
}

func (f *fakeAnalyzer) Model() string { return "fake-model" }

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyCallStore refuses writes for selected call ids.
type flakyCallStore struct {
	*calls.MemoryStore
	mu      sync.Mutex
	failIDs map[string]bool
}

func (s *flakyCallStore) Create(ctx context.Context, c calls.Call) (calls.Call, bool, error) {
	s.mu.Lock()
	refuse := s.failIDs[c.CallID]
	s.mu.Unlock()
	if refuse {
		return calls.Call{}, false, errors.New("storage write refused")
	}
	return s.MemoryStore.Create(ctx, c)
}

func (s *flakyCallStore) heal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failIDs, id)
}

type fakeLease struct {
	ok       bool
	err      error
	acquired int
	released int
}

func (l *fakeLease) TryAcquire(ctx context.Context) (func(), bool, error) {
	l.acquired++
	if l.err != nil {
		return nil, false, l.err
	}
	if !l.ok {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

func testConv(id, status string) convai.Conversation {
	return convai.Conversation{
		ConversationID:  id,
		Status:          status,
		StartTimeUnix:   testNow.Add(-5 * time.Minute).Unix(),
		CallDurationSec: 25,
	}
}

func convFromJSON(t *testing.T, payload string) convai.Conversation {
	t.Helper()
	var c convai.Conversation
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	return c
}

func newTestService(lister Lister, fetcher TranscriptFetcher, store CallStore, analyzer Analyzer, analyses AnalysisStore) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(lister, fetcher, store, analyzer, analyses, log, Options{
		PageSize:        100,
		BatchSize:       3,
		BatchPause:      time.Millisecond,
		DefaultOrgID:    "org-default",
		FetchRetries:    3,
		FetchRetryDelay: time.Millisecond,
	})
	svc.clock = func() time.Time { return testNow }
	return svc
}

func TestRunCycle_RecordsNewTerminalCalls(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{convs: []convai.Conversation{
		testConv("conv-1", "done"),
		testConv("conv-2", "Call Ended"),
		testConv("conv-3", "in-progress"),
	}}
	fetcher := &fakeFetcher{texts: map[string]string{
		"conv-1": "agent: Hello\nuser: I'm voting for her.",
		"conv-2": "agent: Hello\nuser: Please stop calling.",
	}}
	store := calls.NewMemoryStore()
	analyzer := &fakeAnalyzer{}
	analyses := sentiment.NewMemoryStore()
	svc := newTestService(lister, fetcher, store, analyzer, analyses)

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.FindByCallID(ctx, "conv-1")
	if err != nil {
		t.Fatalf("expected conv-1 recorded: %v", err)
	}
	if rec.Status != calls.CallStatusCompleted {
		t.Fatalf("expected completed, got %q", rec.Status)
	}
	if rec.Transcript == "" || rec.TranscriptFetchedAt == nil {
		t.Fatalf("expected transcript and fetch marker to be set")
	}
	if !rec.TranscriptFetchedAt.Equal(testNow) {
		t.Fatalf("expected fetch marker %v, got %v", testNow, rec.TranscriptFetchedAt)
	}
	if rec.OrgID != "org-default" {
		t.Fatalf("expected default org, got %q", rec.OrgID)
	}
	if rec.DurationSeconds != 30 {
		t.Fatalf("expected detail duration 30, got %d", rec.DurationSeconds)
	}

	// The in-progress call is left for a future cycle.
	if _, err := store.FindByCallID(ctx, "conv-3"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected conv-3 not recorded, got %v", err)
	}

	if got := len(analyses.All()); got != 2 {
		t.Fatalf("expected 2 analyses, got %d", got)
	}
	if got := svc.ProcessedCount(); got != 2 {
		t.Fatalf("expected 2 processed ids, got %d", got)
	}
	if !svc.LastPoll().Equal(testNow) {
		t.Fatalf("expected last poll %v, got %v", testNow, svc.LastPoll())
	}

	// A second cycle sees the same listing but refetches nothing.
	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fetcher.count("conv-1"); got != 1 {
		t.Fatalf("expected a single transcript fetch for conv-1, got %d", got)
	}
	if got := lister.callCount(); got != 2 {
		t.Fatalf("expected 2 listings, got %d", got)
	}
}

func TestRunCycle_ListFailureAbortsCycle(t *testing.T) {
	lister := &fakeLister{err: errors.New("provider unavailable")}
	store := calls.NewMemoryStore()
	svc := newTestService(lister, &fakeFetcher{}, store, &fakeAnalyzer{}, sentiment.NewMemoryStore())

	if err := svc.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected error when listing fails")
	}
	if got := svc.ProcessedCount(); got != 0 {
		t.Fatalf("expected no processed ids, got %d", got)
	}
	if recs, _ := store.List(context.Background(), calls.ListFilter{}); len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestRunCycle_SkipsConversationsWithoutID(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{convs: []convai.Conversation{
		convFromJSON(t, `{"status": "done"}`),
		testConv("conv-1", "done"),
	}}
	store := calls.NewMemoryStore()
	svc := newTestService(lister, &fakeFetcher{texts: map[string]string{"conv-1": "hi"}}, store, &fakeAnalyzer{}, sentiment.NewMemoryStore())

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recs, err := store.List(ctx, calls.ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].CallID != "conv-1" {
		t.Fatalf("expected only conv-1 recorded, got %v", recs)
	}
}

func TestRunCycle_RestartGuardSkipsFetchedCalls(t *testing.T) {
	ctx := context.Background()
	store := calls.NewMemoryStore()
	fetched := testNow.Add(-time.Hour)
	if _, _, err := store.Create(ctx, calls.Call{
		CallID:              "conv-1",
		OrgID:               "org-1",
		Status:              calls.CallStatusCompleted,
		TranscriptFetchedAt: &fetched,
		CreatedAt:           fetched,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	lister := &fakeLister{convs: []convai.Conversation{testConv("conv-1", "done")}}
	fetcher := &fakeFetcher{}
	analyzer := &fakeAnalyzer{}
	svc := newTestService(lister, fetcher, store, analyzer, sentiment.NewMemoryStore())

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The record predates this process; it must be skipped without any
	// provider or analyzer traffic, then remembered in the set.
	if got := fetcher.count("conv-1"); got != 0 {
		t.Fatalf("expected no transcript fetches, got %d", got)
	}
	if got := analyzer.callCount(); got != 0 {
		t.Fatalf("expected no analyses, got %d", got)
	}
	if got := svc.ProcessedCount(); got != 1 {
		t.Fatalf("expected conv-1 remembered, got %d", got)
	}
}

func TestRunCycle_RetryExhaustionRecordsWithoutTranscript(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{convs: []convai.Conversation{testConv("conv-1", "ended")}}
	fetcher := &fakeFetcher{errAll: errors.New("transcript endpoint down")}
	store := calls.NewMemoryStore()
	analyzer := &fakeAnalyzer{}
	svc := newTestService(lister, fetcher, store, analyzer, sentiment.NewMemoryStore())

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 retries means 4 total attempts.
	if got := fetcher.count("conv-1"); got != 4 {
		t.Fatalf("expected 4 fetch attempts, got %d", got)
	}

	rec, err := store.FindByCallID(ctx, "conv-1")
	if err != nil {
		t.Fatalf("expected conv-1 recorded despite missing transcript: %v", err)
	}
	if rec.Transcript != "" {
		t.Fatalf("expected empty transcript, got %q", rec.Transcript)
	}
	if rec.TranscriptFetchedAt == nil {
		t.Fatalf("expected fetch marker set after exhausted retries")
	}
	if rec.Status != calls.CallStatusCompleted {
		t.Fatalf("expected completed from status keyword, got %q", rec.Status)
	}
	if got := analyzer.callCount(); got != 0 {
		t.Fatalf("expected no analysis without transcript, got %d", got)
	}
	if got := svc.ProcessedCount(); got != 1 {
		t.Fatalf("expected conv-1 marked processed, got %d", got)
	}
}

func TestRunCycle_PerCallFailureIsolation(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{convs: []convai.Conversation{
		testConv("conv-1", "done"),
		testConv("conv-2", "done"),
		testConv("conv-3", "done"),
	}}
	store := &flakyCallStore{
		MemoryStore: calls.NewMemoryStore(),
		failIDs:     map[string]bool{"conv-2": true},
	}
	svc := newTestService(lister, &fakeFetcher{}, store, &fakeAnalyzer{}, sentiment.NewMemoryStore())

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("cycle must not fail on a single bad call: %v", err)
	}
	if got := svc.ProcessedCount(); got != 2 {
		t.Fatalf("expected 2 processed, got %d", got)
	}
	if _, err := store.FindByCallID(ctx, "conv-2"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected conv-2 unrecorded, got %v", err)
	}

	// After the storage recovers, the next cycle picks up only the failed call.
	store.heal("conv-2")
	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.FindByCallID(ctx, "conv-2"); err != nil {
		t.Fatalf("expected conv-2 recorded on retry: %v", err)
	}
	if got := svc.ProcessedCount(); got != 3 {
		t.Fatalf("expected 3 processed, got %d", got)
	}
}

func TestRunCycle_EligibilityBySuccessFlag(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{convs: []convai.Conversation{
		// Non-terminal status but an explicit failure verdict: eligible.
		convFromJSON(t, `{"conversation_id": "conv-1", "status": "processing", "call_successful": "failed"}`),
		// Non-terminal status, no verdict: not eligible.
		convFromJSON(t, `{"conversation_id": "conv-2", "status": "processing"}`),
	}}
	store := calls.NewMemoryStore()
	svc := newTestService(lister, &fakeFetcher{}, store, &fakeAnalyzer{}, sentiment.NewMemoryStore())

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.FindByCallID(ctx, "conv-1")
	if err != nil {
		t.Fatalf("expected conv-1 recorded: %v", err)
	}
	if rec.Status != calls.CallStatusFailed {
		t.Fatalf("expected failed, got %q", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Fatalf("expected an error message on a failed call")
	}
	if _, err := store.FindByCallID(ctx, "conv-2"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected conv-2 left for a later cycle, got %v", err)
	}
}

func TestRunCycle_OrgFromClientData(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{convs: []convai.Conversation{
		convFromJSON(t, `{
			"conversation_id": "conv-1",
			"status": "done",
			"conversation_initiation_client_data": {
				"dynamic_variables": {"organization_id": "org-42"}
			}
		}`),
	}}
	store := calls.NewMemoryStore()
	svc := newTestService(lister, &fakeFetcher{}, store, &fakeAnalyzer{}, sentiment.NewMemoryStore())

	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := store.FindByCallID(ctx, "conv-1")
	if err != nil {
		t.Fatalf("expected conv-1 recorded: %v", err)
	}
	if rec.OrgID != "org-42" {
		t.Fatalf("expected org-42, got %q", rec.OrgID)
	}
}

func TestRunCycle_SecondCycleSkippedWhileBusy(t *testing.T) {
	lister := &fakeLister{
		convs:   nil,
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}
	svc := newTestService(lister, &fakeFetcher{}, calls.NewMemoryStore(), &fakeAnalyzer{}, sentiment.NewMemoryStore())

	done := make(chan error, 1)
	go func() { done <- svc.RunCycle(context.Background()) }()
	<-lister.entered

	if err := svc.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}

	close(lister.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error from first cycle: %v", err)
	}
}

func TestRunCycle_LeaseHeldElsewhereSkips(t *testing.T) {
	lister := &fakeLister{convs: []convai.Conversation{testConv("conv-1", "done")}}
	svc := newTestService(lister, &fakeFetcher{}, calls.NewMemoryStore(), &fakeAnalyzer{}, sentiment.NewMemoryStore())
	lease := &fakeLease{ok: false}
	svc.SetLease(lease)

	if err := svc.RunCycle(context.Background()); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
	if got := lister.callCount(); got != 0 {
		t.Fatalf("expected no listing while lease held, got %d", got)
	}
}

func TestRunCycle_LeaseErrorDoesNotBlockPolling(t *testing.T) {
	lister := &fakeLister{convs: nil}
	svc := newTestService(lister, &fakeFetcher{}, calls.NewMemoryStore(), &fakeAnalyzer{}, sentiment.NewMemoryStore())
	lease := &fakeLease{err: errors.New("redis down")}
	svc.SetLease(lease)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := lister.callCount(); got != 1 {
		t.Fatalf("expected listing despite lease error, got %d", got)
	}
}

func TestRunCycle_ReleasesLease(t *testing.T) {
	lister := &fakeLister{convs: nil}
	svc := newTestService(lister, &fakeFetcher{}, calls.NewMemoryStore(), &fakeAnalyzer{}, sentiment.NewMemoryStore())
	lease := &fakeLease{ok: true}
	svc.SetLease(lease)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease.acquired != 1 || lease.released != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", lease.acquired, lease.released)
	}
}

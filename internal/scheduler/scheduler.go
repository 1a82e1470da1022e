// Package scheduler owns the polling lifecycle: a single timer that drives
// recurring pipeline cycles, plus the operational controls exposed over the
// API (trigger, interval change, status, cache reset).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"campaign-callsync/internal/poller"
)

const (
	// DefaultInterval between polling cycles.
	DefaultInterval = 2 * time.Minute

	// MinInterval is the enforced floor; shorter intervals hammer the
	// provider's listing endpoint and are rejected.
	MinInterval = 30 * time.Second
)

// ErrIntervalTooShort is returned when a requested interval is below
// MinInterval. The current interval stays in effect.
var ErrIntervalTooShort = errors.New("scheduler: polling interval below minimum")

// Pipeline is the cycle executor driven by this scheduler.
type Pipeline interface {
	RunCycle(ctx context.Context) error
	LastPoll() time.Time
	ProcessedCount() int
	ClearProcessed()
}

// Status is a read-only snapshot for the operations API.
type Status struct {
	Running                bool
	LastPollTime           time.Time
	PollingIntervalSeconds int
	ProcessedCallsCount    int
}

// Scheduler runs the pipeline once immediately on Start and then on a fixed
// interval until Stop. It is either running or stopped; both transitions are
// idempotent.
type Scheduler struct {
	pipeline Pipeline
	log      *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	running  bool
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(pipeline Pipeline, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		log.Warn("configured polling interval below floor, using floor",
			"requested", interval, "floor", MinInterval)
		interval = MinInterval
	}
	return &Scheduler{
		pipeline: pipeline,
		log:      log,
		interval: interval,
	}
}

// Start begins recurring polling. The first cycle runs immediately. ctx is
// the lifetime of the whole scheduler; canceling it stops the loop the same
// way Stop does.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Debug("scheduler already running")
		return
	}
	s.parent = ctx
	s.startLocked()
}

// Stop cancels the recurring timer and waits for an in-flight cycle to
// observe cancellation. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) startLocked() {
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.log.Info("call polling started", "interval", s.interval)
	go s.loop(ctx, s.done, s.interval)
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.log.Info("call polling stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	err := s.pipeline.RunCycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrCycleInProgress), errors.Is(err, poller.ErrLeaseHeld):
		s.log.Debug("polling cycle skipped", "reason", err)
	case errors.Is(err, context.Canceled):
	default:
		s.log.Error("polling cycle failed", "error", err)
	}
}

// SetInterval applies a new polling interval. Requests below MinInterval are
// rejected with a warning and the current interval stays in effect. When the
// scheduler is running it restarts so the new interval applies immediately.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d < MinInterval {
		s.log.Warn("rejected polling interval below floor",
			"requested", d, "floor", MinInterval)
		return ErrIntervalTooShort
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	s.log.Info("polling interval updated", "interval", d)
	if s.running {
		s.stopLocked()
		s.startLocked()
	}
	return nil
}

// TriggerPoll runs one cycle on demand, in any scheduler state. The
// pipeline's own guard still applies: a cycle already in flight surfaces as
// poller.ErrCycleInProgress.
func (s *Scheduler) TriggerPoll(ctx context.Context) error {
	return s.pipeline.RunCycle(ctx)
}

// Status returns a snapshot of the polling state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	interval := s.interval
	s.mu.Unlock()

	return Status{
		Running:                running,
		LastPollTime:           s.pipeline.LastPoll(),
		PollingIntervalSeconds: int(interval / time.Second),
		ProcessedCallsCount:    s.pipeline.ProcessedCount(),
	}
}

// ClearProcessedCache empties the pipeline's processed-call set. Operational
// reset; the next cycle will rely on the persisted fetch markers alone.
func (s *Scheduler) ClearProcessedCache() {
	s.pipeline.ClearProcessed()
	s.log.Info("processed-call cache cleared")
}

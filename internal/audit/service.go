package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operator actions on the polling controls.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to dashboard users.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Action == "" {
		return ErrInvalidEvent
	}
	if e.Actor == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogPollTriggered records a manual poll request.
func (s *Service) LogPollTriggered(ctx context.Context, actor, ip string) error {
	return s.Append(ctx, Event{
		Action:    ActionPollTriggered,
		Actor:     actor,
		IPAddress: ip,
		Detail:    "manual poll requested",
	})
}

// LogIntervalChanged records a polling interval update.
func (s *Service) LogIntervalChanged(ctx context.Context, actor, ip string, interval time.Duration) error {
	return s.Append(ctx, Event{
		Action:    ActionIntervalChanged,
		Actor:     actor,
		IPAddress: ip,
		Detail:    fmt.Sprintf("interval set to %s", interval),
	})
}

// LogCacheCleared records a processed-call cache reset.
func (s *Service) LogCacheCleared(ctx context.Context, actor, ip string, removed int) error {
	return s.Append(ctx, Event{
		Action:    ActionCacheCleared,
		Actor:     actor,
		IPAddress: ip,
		Detail:    fmt.Sprintf("%d cached call ids dropped", removed),
	})
}

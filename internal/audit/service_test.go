package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresActionAndActor(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Actor: "operator-1"}); err == nil {
		t.Fatalf("expected error for missing action")
	}
	if err := svc.Append(context.Background(), Event{Action: ActionPollTriggered}); err == nil {
		t.Fatalf("expected error for missing actor")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	if err := svc.LogPollTriggered(context.Background(), "operator-1", "1.2.3.4"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].Action != ActionPollTriggered {
		t.Fatalf("expected poll_triggered, got %s", evs[0].Action)
	}
	if evs[0].Actor != "operator-1" || evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected actor and ip captured: %+v", evs[0])
	}
	if evs[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if !evs[0].CreatedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("expected clock timestamp, got %v", evs[0].CreatedAt)
	}
}

func TestService_ConvenienceLoggers(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogIntervalChanged(context.Background(), "operator-1", "", 90*time.Second); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogCacheCleared(context.Background(), "operator-1", "", 42); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Detail != "interval set to 1m30s" {
		t.Fatalf("unexpected interval detail: %q", evs[0].Detail)
	}
	if evs[1].Detail != "42 cached call ids dropped" {
		t.Fatalf("unexpected cache detail: %q", evs[1].Detail)
	}
}

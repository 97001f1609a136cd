package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/repo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type follower struct{}

func (follower) TryAcquire(context.Context) (bool, error) { return false, nil }
func (follower) Release(context.Context)                  {}

type failingStore struct{}

func (failingStore) ArchiveFinished(context.Context, time.Time, int) (int, error) {
	return 0, errors.New("db down")
}

type countingStore struct {
	calls atomic.Int32
}

func (s *countingStore) ArchiveFinished(context.Context, time.Time, int) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

// seed создаёт в store runs: finished — завершённые в момент at, и один активный.
func seed(t *testing.T, store *repo.MemoryRunRepo, finished int, at time.Time) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < finished; i++ {
		run := domain.NewRun(domain.Trigger{Event: domain.EventPush, Ref: "main", Workflow: "w"}, at)
		run.GroupKey = "g-" + run.ID.String()
		if _, err := store.ReplaceActive(ctx, run); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Update(ctx, run.ID, func(r *domain.Run) error {
			return r.MarkCancelled(uuid.New(), at)
		}); err != nil {
			t.Fatal(err)
		}
	}

	active := domain.NewRun(domain.Trigger{Event: domain.EventPush, Ref: "main", Workflow: "w"}, at)
	if _, err := store.ReplaceActive(ctx, active); err != nil {
		t.Fatal(err)
	}
}

func TestJanitor_TickArchivesOldFinishedRuns(t *testing.T) {
	now := time.Now()
	store := repo.NewMemoryRunRepo()
	seed(t, store, 5, now.Add(-48*time.Hour))

	j := New(Config{
		Store:     store,
		MaxAge:    24 * time.Hour,
		BatchSize: 2,
		Now:       func() time.Time { return now },
		Logger:    quietLogger(),
	})

	n, err := j.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 5 || store.Archived() != 5 {
		t.Errorf("expected 5 archived, got %d (store %d)", n, store.Archived())
	}

	runs, _ := store.List(context.Background(), repo.RunFilter{})
	if len(runs) != 1 || runs[0].Status != domain.RunStatusPending {
		t.Errorf("active run must stay, got %+v", runs)
	}
}

func TestJanitor_TickKeepsRecentRuns(t *testing.T) {
	now := time.Now()
	store := repo.NewMemoryRunRepo()
	seed(t, store, 3, now.Add(-time.Hour))

	j := New(Config{Store: store, MaxAge: 24 * time.Hour, Now: func() time.Time { return now }, Logger: quietLogger()})

	if n, err := j.Tick(context.Background()); err != nil || n != 0 {
		t.Errorf("expected nothing archived, got %d, %v", n, err)
	}
}

func TestJanitor_FollowerSkipsTick(t *testing.T) {
	store := &countingStore{}
	j := New(Config{Store: store, Leader: follower{}, Logger: quietLogger()})

	if n, err := j.Tick(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected skipped tick, got %d, %v", n, err)
	}
	if store.calls.Load() != 0 {
		t.Error("follower must not touch the store")
	}
}

func TestJanitor_TickError(t *testing.T) {
	j := New(Config{Store: failingStore{}, Logger: quietLogger()})

	if _, err := j.Tick(context.Background()); err == nil {
		t.Error("expected store error")
	}
}

func TestJanitor_RunOnSchedule(t *testing.T) {
	store := &countingStore{}
	j := New(Config{Store: store, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx, "@every 1s") }()

	deadline := time.After(5 * time.Second)
	for store.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("janitor did not tick")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestJanitor_RunInvalidSchedule(t *testing.T) {
	j := New(Config{Store: &countingStore{}, Logger: quietLogger()})

	if err := j.Run(context.Background(), "every now and then"); err == nil {
		t.Error("expected schedule error")
	}
}

func TestValidateSchedule(t *testing.T) {
	for _, expr := range []string{"@every 1h", "@daily", "0 3 * * *"} {
		if err := ValidateSchedule(expr); err != nil {
			t.Errorf("%q should be valid: %v", expr, err)
		}
	}
	if err := ValidateSchedule("61 * * * *"); err == nil {
		t.Error("invalid minute should fail")
	}
}

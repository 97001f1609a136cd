package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

func newRun(ref string, at time.Time) *domain.Run {
	return domain.NewRun(domain.Trigger{Event: domain.EventPush, Ref: ref, Workflow: "REUSE"}, at)
}

func TestMemoryRunRepo_ReplaceActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	now := time.Now()

	first := newRun("main", now)
	cancelled, err := repo.ReplaceActive(ctx, first)
	if err != nil {
		t.Fatalf("ReplaceActive: %v", err)
	}
	if cancelled != nil {
		t.Fatal("empty group must not cancel anything")
	}

	second := newRun("main", now.Add(time.Second))
	cancelled, err = repo.ReplaceActive(ctx, second)
	if err != nil {
		t.Fatalf("ReplaceActive: %v", err)
	}
	if cancelled == nil || cancelled.ID != first.ID {
		t.Fatalf("expected first run to be cancelled, got %+v", cancelled)
	}
	if cancelled.Status != domain.RunStatusCancelled || *cancelled.SupersededBy != second.ID {
		t.Errorf("unexpected cancelled run %+v", cancelled)
	}

	active, _ := repo.List(ctx, RunFilter{GroupKey: first.GroupKey, ActiveOnly: true})
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("expected only second run active, got %d", len(active))
	}
}

func TestMemoryRunRepo_ReplaceActive_DuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	run := newRun("main", time.Now())

	if _, err := repo.ReplaceActive(ctx, run); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ReplaceActive(ctx, run); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemoryRunRepo_UpdateReleasesGroup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	now := time.Now()

	run := newRun("main", now)
	if _, err := repo.ReplaceActive(ctx, run); err != nil {
		t.Fatal(err)
	}

	_, err := repo.Update(ctx, run.ID, func(r *domain.Run) error {
		if err := r.MarkRunning(now); err != nil {
			return err
		}
		return r.MarkCompleted(domain.Succeeded(nil), now)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Группа свободна: новый run ничего не отменяет
	cancelled, err := repo.ReplaceActive(ctx, newRun("main", now))
	if err != nil {
		t.Fatal(err)
	}
	if cancelled != nil {
		t.Errorf("completed run must not be cancelled, got %s", cancelled.ID)
	}
}

func TestMemoryRunRepo_UpdateErrorKeepsRun(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	run := newRun("main", time.Now())
	if _, err := repo.ReplaceActive(ctx, run); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err := repo.Update(ctx, run.ID, func(r *domain.Run) error {
		r.Status = domain.RunStatusRunning
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := repo.Get(ctx, run.ID)
	if got.Status != domain.RunStatusPending {
		t.Errorf("failed update must not be applied, got %s", got.Status)
	}

	if _, err := repo.Update(ctx, uuid.New(), func(*domain.Run) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRunRepo_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	run := newRun("main", time.Now())
	if _, err := repo.ReplaceActive(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.Get(ctx, run.ID)
	got.Status = domain.RunStatusCompleted

	again, _ := repo.Get(ctx, run.ID)
	if again.Status != domain.RunStatusPending {
		t.Error("mutating a returned run must not affect the store")
	}
}

func TestMemoryRunRepo_ConcurrentAdmission(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("branch-%d", i%5)
			if _, err := repo.ReplaceActive(ctx, newRun(ref, now.Add(time.Duration(i)))); err != nil {
				t.Errorf("ReplaceActive: %v", err)
			}
		}(i)
	}
	wg.Wait()

	perGroup := make(map[string]int)
	all, _ := repo.List(ctx, RunFilter{Limit: 1000})
	for _, r := range all {
		if r.Status.IsActive() {
			perGroup[r.GroupKey]++
		}
	}
	if len(perGroup) != 5 {
		t.Fatalf("expected 5 active groups, got %d", len(perGroup))
	}
	for key, n := range perGroup {
		if n != 1 {
			t.Errorf("group %s has %d active runs", key, n)
		}
	}
}

func TestMemoryRunRepo_ListPendingAndArchive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	base := time.Now().Add(-48 * time.Hour)

	old := newRun("a", base)
	fresh := newRun("b", base.Add(time.Hour))
	for _, r := range []*domain.Run{old, fresh} {
		if _, err := repo.ReplaceActive(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	pending, _ := repo.ListPending(ctx, 10)
	if len(pending) != 2 || pending[0].ID != old.ID {
		t.Fatalf("expected oldest pending first, got %d", len(pending))
	}

	// Финализируем старый run задолго до cutoff
	_, err := repo.Update(ctx, old.ID, func(r *domain.Run) error {
		return r.MarkCancelled(uuid.Nil, base)
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := repo.ArchiveFinished(ctx, time.Now().Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || repo.Archived() != 1 {
		t.Fatalf("expected 1 archived run, got %d", n)
	}
	if _, err := repo.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("archived run should be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, fresh.ID); err != nil {
		t.Errorf("active run must stay: %v", err)
	}
}

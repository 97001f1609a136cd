package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

func TestSignals_CancelRunningJob(t *testing.T) {
	s := NewSignals(time.Minute)
	id := uuid.New()

	ctx, release := s.Register(context.Background(), id)
	defer release()

	if s.Running() != 1 {
		t.Fatalf("expected 1 running job, got %d", s.Running())
	}
	if !s.CancelID(id) {
		t.Error("CancelID should report a local job")
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
	if s.Running() != 0 {
		t.Errorf("cancelled job should be removed, got %d", s.Running())
	}
}

func TestSignals_CancelBeforeRegister(t *testing.T) {
	s := NewSignals(time.Minute)
	id := uuid.New()

	if err := s.Cancel(context.Background(), &domain.Run{ID: id}); err != nil {
		t.Fatal(err)
	}

	ctx, release := s.Register(context.Background(), id)
	defer release()

	if ctx.Err() == nil {
		t.Fatal("early cancellation must cancel the job on register")
	}
}

func TestSignals_TombstoneExpires(t *testing.T) {
	s := NewSignals(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	id := uuid.New()
	s.CancelID(id)

	now = now.Add(2 * time.Minute)
	ctx, release := s.Register(context.Background(), id)
	defer release()

	if ctx.Err() != nil {
		t.Error("expired tombstone must not cancel a new job")
	}
}

func TestSignals_ReleaseUnregisters(t *testing.T) {
	s := NewSignals(0)
	id := uuid.New()

	_, release := s.Register(context.Background(), id)
	release()

	if s.Running() != 0 {
		t.Errorf("release should unregister, got %d", s.Running())
	}
	if s.CancelID(id) {
		t.Error("released job is not running locally")
	}
}

func TestMultiCanceller(t *testing.T) {
	var calls int
	ok := CancellerFunc(func(context.Context, *domain.Run) error { calls++; return nil })
	fail := CancellerFunc(func(context.Context, *domain.Run) error { calls++; return errors.New("down") })

	err := MultiCanceller{ok, nil, fail, ok}.Cancel(context.Background(), &domain.Run{ID: uuid.New()})
	if err == nil {
		t.Error("expected joined error")
	}
	if calls != 3 {
		t.Errorf("all cancellers should be called, got %d", calls)
	}
}

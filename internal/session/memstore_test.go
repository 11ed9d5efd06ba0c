package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/callscript/internal/session"
)

var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func TestMemStore_GetPutDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemStore()

	if _, err := s.Get(ctx, "call-1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}

	cs := session.New("call-1", "start", t0)
	cs.SetSlot("name", "Dana")
	if err := s.Put(ctx, cs); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	cs.SetSlot("name", "changed")
	got, err := s.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Slots["name"] != "Dana" {
		t.Fatalf("stored slot = %q, want %q", got.Slots["name"], "Dana")
	}

	// And mutating a returned copy must not leak either.
	got.CurrentNodeID = "elsewhere"
	again, _ := s.Get(ctx, "call-1")
	if again.CurrentNodeID != "start" {
		t.Fatalf("CurrentNodeID = %q after mutating a copy", again.CurrentNodeID)
	}

	if err := s.Delete(ctx, "call-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "call-1"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestMemStore_PutRequiresID(t *testing.T) {
	t.Parallel()
	if err := session.NewMemStore().Put(context.Background(), &session.CallSession{}); err == nil {
		t.Fatal("Put without id: expected error")
	}
}

func TestCallSession_CloneDeep(t *testing.T) {
	t.Parallel()

	cs := session.New("c", "start", t0)
	done := t0.Add(time.Minute)
	cs.ValueWindow.CompletedAt = &done
	cs.SetSlot("a", "1")

	c := cs.Clone()
	*c.ValueWindow.CompletedAt = t0
	c.Slots["a"] = "2"

	if !cs.ValueWindow.CompletedAt.Equal(done) {
		t.Error("clone shares CompletedAt with the original")
	}
	if cs.Slots["a"] != "1" {
		t.Error("clone shares Slots with the original")
	}
}

func TestMemStore_WithLockSerializes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemStore()
	if err := s.Put(ctx, session.New("call", "start", t0)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const workers = 64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithLock(ctx, "call", func(ctx context.Context) error {
				cs, err := s.Get(ctx, "call")
				if err != nil {
					return err
				}
				cs.Visit++
				return s.Put(ctx, cs)
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	cs, _ := s.Get(ctx, "call")
	if cs.Visit != workers+1 {
		t.Fatalf("Visit = %d, want %d (lost updates)", cs.Visit, workers+1)
	}
}

func TestMemStore_WithLockReleasesOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemStore()
	boom := errors.New("boom")

	if err := s.WithLock(ctx, "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("WithLock = %v, want boom", err)
	}

	func() {
		defer func() { _ = recover() }()
		_ = s.WithLock(ctx, "k", func(context.Context) error { panic("bad") })
	}()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.WithLock(ctx, "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("lock not released after error or panic: %v", err)
	}
}

func TestMemStore_WithLockHonoursContext(t *testing.T) {
	t.Parallel()

	s := session.NewMemStore()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := s.WithLock(ctx, "k", func(context.Context) error { ran = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithLock = %v, want context.Canceled", err)
	}
	if ran {
		t.Fatal("fn ran without the lock")
	}

	// A different call is not blocked.
	if err := s.WithLock(context.Background(), "other", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("WithLock(other): %v", err)
	}
}

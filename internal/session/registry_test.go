package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistryCachesPerUser(t *testing.T) {
	var calls atomic.Int32
	r := New[string](4, time.Minute, func(_ context.Context, userID string) (string, error) {
		calls.Add(1)
		return "agent-" + userID, nil
	}, nil)

	for i := 0; i < 3; i++ {
		v, err := r.Get(context.Background(), "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "agent-alice" {
			t.Fatalf("unexpected value: %q", v)
		}
	}

	if calls.Load() != 1 {
		t.Fatalf("expected one factory call, got %d", calls.Load())
	}
}

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	r := New[string](2, time.Minute, func(_ context.Context, userID string) (string, error) {
		return userID, nil
	}, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := r.Get(ctx, id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if r.Len() != 2 {
		t.Fatalf("expected size bound of 2, got %d", r.Len())
	}
	if r.Evict("a") {
		t.Fatalf("expected a to be evicted already")
	}
	if !r.Evict("c") {
		t.Fatalf("expected c to be present")
	}
}

func TestRegistryExpires(t *testing.T) {
	var calls atomic.Int32
	r := New[int](4, 20*time.Millisecond, func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, nil)
	ctx := context.Background()

	first, _ := r.Get(ctx, "alice")
	time.Sleep(60 * time.Millisecond)
	second, _ := r.Get(ctx, "alice")

	if first == second {
		t.Fatalf("expected a new session after ttl, got %d twice", first)
	}
}

func TestRegistryDoesNotCacheErrors(t *testing.T) {
	fail := true
	r := New[string](4, time.Minute, func(context.Context, string) (string, error) {
		if fail {
			return "", errors.New("store down")
		}
		return "ok", nil
	}, nil)

	if _, err := r.Get(context.Background(), "alice"); err == nil {
		t.Fatal("expected error")
	}

	fail = false
	v, err := r.Get(context.Background(), "alice")
	if err != nil || v != "ok" {
		t.Fatalf("expected recovery, got %q (err %v)", v, err)
	}
}

func TestRegistrySharesConcurrentCreation(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	r := New[string](4, time.Minute, func(context.Context, string) (string, error) {
		calls.Add(1)
		<-release
		return "agent", nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get(context.Background(), "alice"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one factory call, got %d", calls.Load())
	}
}

func TestRegistryCreationSurvivesFirstCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := New[string](4, time.Minute, func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "agent", nil
	}, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Get(first, "alice")
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		v, err := r.Get(context.Background(), "alice")
		if err == nil && v != "agent" {
			err = errors.New("unexpected value " + v)
		}
		second <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to stop waiting, got %v", err)
	}

	close(release)
	if err := <-second; err != nil {
		t.Fatalf("second caller must not inherit the first caller's cancellation: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected the session to be cached, got %d entries", r.Len())
	}
}

func TestRegistryRejectsEmptyUser(t *testing.T) {
	r := New[string](1, time.Minute, func(context.Context, string) (string, error) { return "", nil }, nil)
	if _, err := r.Get(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLog struct {
	timestamps map[string][]time.Time
	err        error
	lastSince  time.Time
	calls      int
}

func (f *fakeLog) add(sessionID, shopID string, at time.Time) {
	if f.timestamps == nil {
		f.timestamps = make(map[string][]time.Time)
	}
	key := sessionID + "|" + shopID
	f.timestamps[key] = append(f.timestamps[key], at)
}

func (f *fakeLog) CountAttemptsSince(_ context.Context, sessionID, shopID string, since time.Time) (int64, error) {
	f.calls++
	f.lastSince = since
	if f.err != nil {
		return 0, f.err
	}
	var count int64
	for _, at := range f.timestamps[sessionID+"|"+shopID] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func TestLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	log := &fakeLog{}
	limiter := New(log, Config{}).WithClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		if err := limiter.Check(context.Background(), "sess", "shop"); err != nil {
			t.Fatalf("submission %d should pass: %v", i+1, err)
		}
		log.add("sess", "shop", now.Add(-time.Duration(i)*time.Second))
	}

	if err := limiter.Check(context.Background(), "sess", "shop"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("11th submission should be limited, got %v", err)
	}
	if want := now.Add(-DefaultWindow); !log.lastSince.Equal(want) {
		t.Fatalf("expected window start %v got %v", want, log.lastSince)
	}

	if err := limiter.Check(context.Background(), "sess", "other-shop"); err != nil {
		t.Fatalf("other shop should not share the window: %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := limiter.Check(context.Background(), "sess", "shop"); err != nil {
		t.Fatalf("window should have aged out: %v", err)
	}
}

func TestLimiterMissingSession(t *testing.T) {
	log := &fakeLog{}
	limiter := New(log, Config{MaxAttempts: 1})
	if err := limiter.Check(context.Background(), "  ", "shop"); err != nil {
		t.Fatalf("missing session should pass: %v", err)
	}
	if log.calls != 0 {
		t.Fatalf("missing session should not query the log")
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	limiter := New(&fakeLog{err: errors.New("db locked")}, Config{})
	if err := limiter.Check(context.Background(), "sess", "shop"); err != nil {
		t.Fatalf("count failure should not block the turn: %v", err)
	}
}

func TestLimiterCustomConfig(t *testing.T) {
	now := time.Now()
	log := &fakeLog{}
	log.add("s", "shop", now.Add(-2*time.Second))
	log.add("s", "shop", now.Add(-20*time.Second))
	limiter := New(log, Config{Window: 10 * time.Second, MaxAttempts: 2}).WithClock(func() time.Time { return now })
	if err := limiter.Check(context.Background(), "s", "shop"); err != nil {
		t.Fatalf("only one attempt inside window, got %v", err)
	}
	log.add("s", "shop", now.Add(-time.Second))
	if err := limiter.Check(context.Background(), "s", "shop"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit after second attempt, got %v", err)
	}
}

func TestLimiterDefaults(t *testing.T) {
	limiter := New(&fakeLog{}, Config{Window: -time.Second})
	if limiter.Window() != DefaultWindow || limiter.MaxAttempts() != DefaultMaxAttempts {
		t.Fatalf("expected defaults, got %s / %d", limiter.Window(), limiter.MaxAttempts())
	}
}

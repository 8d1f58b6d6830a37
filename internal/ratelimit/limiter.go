package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRateLimited is returned when a session submitted too many offers.
var ErrRateLimited = errors.New("rate limited")

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxAttempts = 10
)

// AttemptCounter counts offer attempts recorded for a session since a point in time.
type AttemptCounter interface {
	CountAttemptsSince(ctx context.Context, sessionID, shopID string, since time.Time) (int64, error)
}

// Config bounds submissions per session.
type Config struct {
	Window      time.Duration
	MaxAttempts int
}

// Limiter is a sliding-window guard computed from the attempt log on every call.
type Limiter struct {
	counter     AttemptCounter
	window      time.Duration
	maxAttempts int
	now         func() time.Time
}

// New builds a limiter, applying defaults for unset config values.
func New(counter AttemptCounter, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Limiter{
		counter:     counter,
		window:      cfg.Window,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

// Window is the sliding window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// MaxAttempts is the number of submissions allowed inside one window.
func (l *Limiter) MaxAttempts() int {
	return l.maxAttempts
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check returns ErrRateLimited when the session already reached the limit inside the
// window. Sessions without an id cannot be tracked and are let through, as are checks
// the attempt log fails to answer.
func (l *Limiter) Check(ctx context.Context, sessionID, shopID string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	since := l.now().Add(-l.window)
	count, err := l.counter.CountAttemptsSince(ctx, sessionID, shopID, since)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"shop":    shopID,
			"session": sessionID,
		}).Warn("count offer attempts")
		return nil
	}
	if count >= int64(l.maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Package resilience keeps simulation turns flowing through provider
// outages. A [Breaker] stops hammering a chat backend that is failing hard,
// and [ChatFallback] opens new conversation threads on the next healthy
// backend in the chain instead.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBackendDown is returned by [Breaker.Do] while the breaker rejects calls
// during its cooldown.
var ErrBackendDown = errors.New("resilience: backend marked down")

// BreakerConfig tunes a [Breaker]. The defaults suit a chat backend where a
// turn costs the trainee a few seconds of silence: trip fast, retry rarely.
type BreakerConfig struct {
	// Name labels the guarded backend in log output.
	Name string

	// Trip is the number of consecutive failures that marks the backend
	// down. Default: 5.
	Trip int

	// Cooldown is how long calls are rejected after the backend is marked
	// down, before a single trial call is risked. Default: 30s.
	Cooldown time.Duration

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Breaker guards one backend. After Trip consecutive failures it marks the
// backend down and rejects calls for Cooldown. Once the cooldown elapses,
// exactly one caller gets through as a trial: if the trial succeeds the
// backend is healthy again, if it fails the cooldown restarts. Concurrent
// callers during the trial are rejected, so a recovering backend sees one
// request, not a thundering herd of queued turns.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	down     bool
	trialing bool
	failures int
	downedAt time.Time
}

// NewBreaker builds a [Breaker]; zero config fields take the documented
// defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		logger:   cfg.Logger,
	}
}

// Do runs fn unless the backend is marked down, in which case it returns
// [ErrBackendDown] without calling fn. fn's error is returned unwrapped so
// callers can still match backend-specific errors.
func (b *Breaker) Do(fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(trial, err)
	return err
}

// Down reports whether the breaker currently rejects calls.
func (b *Breaker) Down() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.down && (b.trialing || time.Since(b.downedAt) < b.cooldown)
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.down {
		return false, nil
	}
	if b.trialing || time.Since(b.downedAt) < b.cooldown {
		return false, ErrBackendDown
	}
	b.trialing = true
	b.logger.Info("trying backend after cooldown", "backend", b.name)
	return true, nil
}

func (b *Breaker) settle(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.trialing = false
	}

	if err != nil {
		if trial {
			// Still broken. Restart the cooldown from now.
			b.downedAt = time.Now()
			b.logger.Warn("backend still failing after cooldown", "backend", b.name, "error", err)
			return
		}
		b.failures++
		if !b.down && b.failures >= b.trip {
			b.down = true
			b.downedAt = time.Now()
			b.logger.Warn("backend marked down", "backend", b.name, "consecutive_failures", b.failures)
		}
		return
	}

	if b.down {
		b.logger.Info("backend recovered", "backend", b.name)
	}
	b.down = false
	b.failures = 0
}

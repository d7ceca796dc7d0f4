// Package executor wraps a single outbound capability-provider call with
// minimum-interval pacing, a hard per-attempt timeout, and bounded
// exponential-backoff retry.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Reference defaults from the dispatch policy.
const (
	defaultMinInterval = 1000 * time.Millisecond
	defaultTimeout     = 30000 * time.Millisecond
	defaultMaxRetries  = 3
	defaultBackoffBase = 2000 * time.Millisecond
)

// Config holds executor tuning. Zero fields take the reference defaults.
type Config struct {
	MinInterval time.Duration
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// FromModel converts the YAML-level executor configuration.
func FromModel(cfg models.ExecutorConfig) Config {
	out := Config{}
	if cfg.MinIntervalMs > 0 {
		out.MinInterval = time.Duration(cfg.MinIntervalMs) * time.Millisecond
	}
	if cfg.DefaultTimeoutMs > 0 {
		out.Timeout = time.Duration(cfg.DefaultTimeoutMs) * time.Millisecond
	}
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	if cfg.BackoffBaseMs > 0 {
		out.BackoffBase = time.Duration(cfg.BackoffBaseMs) * time.Millisecond
	}
	return out
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = defaultMinInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return c
}

// AttemptFunc performs one outbound call to a capability provider.
type AttemptFunc[T any] func(ctx context.Context) (T, error)

// Executor paces and retries attempts for one target. The only state carried
// between calls is the last attempt start time; concurrent callers sharing
// an instance serialize around it.
type Executor[T any] struct {
	name string
	cfg  Config

	mu        sync.Mutex
	lastStart time.Time
}

// New creates an executor for the named target (used only in logs).
func New[T any](name string, cfg Config) *Executor[T] {
	return &Executor[T]{name: name, cfg: cfg.withDefaults()}
}

// Execute runs attempt with pacing, per-attempt timeout, and bounded retry.
// A non-positive timeout falls back to the configured default. Timeouts are
// terminal; rate-limit errors wait the server-suggested delay when one was
// given; other errors back off exponentially. After the retry budget is
// spent the last error is returned.
func (e *Executor[T]) Execute(ctx context.Context, attempt AttemptFunc[T], timeout time.Duration) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	var lastErr error
	for try := 0; try <= e.cfg.MaxRetries; try++ {
		if err := e.pace(ctx); err != nil {
			return zero, err
		}

		result, err := e.runAttempt(ctx, attempt, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if models.IsTimeout(err) {
			fiberlog.Warnf("Executor %s: attempt %d timed out after %v, not retrying", e.name, try+1, timeout)
			return zero, err
		}
		if try == e.cfg.MaxRetries {
			break
		}

		delay := e.backoffDelay(try, err)
		fiberlog.Warnf("Executor %s: attempt %d failed (%v), retrying in %v", e.name, try+1, err, delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return zero, err
		}
	}

	fiberlog.Errorf("Executor %s: retry budget exhausted: %v", e.name, lastErr)
	return zero, lastErr
}

// pace delays until the minimum interval since the previous attempt start
// has elapsed, then records the new start time.
func (e *Executor[T]) pace(ctx context.Context) error {
	e.mu.Lock()
	now := time.Now()
	wait := e.cfg.MinInterval - now.Sub(e.lastStart)
	if wait < 0 {
		wait = 0
	}
	start := now.Add(wait)
	e.lastStart = start
	e.mu.Unlock()

	if wait > 0 {
		fiberlog.Debugf("Executor %s: pacing, delaying attempt by %v", e.name, wait)
		return sleepCtx(ctx, wait)
	}
	return nil
}

func (e *Executor[T]) runAttempt(ctx context.Context, attempt AttemptFunc[T], timeout time.Duration) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := attempt(attemptCtx)
	if err == nil {
		return result, nil
	}

	// Deadline expiry cancels the in-flight attempt and is terminal.
	if errors.Is(err, context.DeadlineExceeded) || (attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil) {
		var zero T
		return zero, models.NewTimeoutError(e.name, err)
	}

	var zero T
	return zero, err
}

// backoffDelay returns the wait before the next retry: the server-suggested
// delay for a rate-limit signal that carried one, exponential backoff
// otherwise (base doubling per attempt).
func (e *Executor[T]) backoffDelay(try int, err error) time.Duration {
	if appErr, ok := models.AsAppError(err); ok && appErr.Type == models.ErrorTypeRateLimit && appErr.RetryAfter > 0 {
		return appErr.RetryAfter
	}
	return e.cfg.BackoffBase << try
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

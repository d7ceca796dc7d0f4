// Package circuitbreaker tracks per-provider failure state in Redis so that
// repeatedly failing backends are skipped instead of retried on every
// request. State is shared across proxy instances pointing at the same
// Redis.
package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// State is the breaker state machine position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

const (
	hashKeyPrefix = "dispatch:breaker:"
	fieldState    = "state"
	fieldFailures = "failures"
	fieldSuccess  = "successes"
	fieldOpenedAt = "opened_at"

	opTimeout = 1 * time.Second
)

// All state for one provider lives in a single Redis hash so transitions can
// be made atomic with one script evaluation.
var (
	// successScript: reset failures; in HalfOpen count successes and close
	// the breaker once the threshold is met.
	// KEYS[1]: breaker hash. ARGV[1]: success threshold.
	// Returns 1 when the breaker transitioned to Closed.
	successScript = redis.NewScript(`
		local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
		redis.call('HSET', KEYS[1], 'failures', 0)
		if state == 2 then
			local n = redis.call('HINCRBY', KEYS[1], 'successes', 1)
			if n >= tonumber(ARGV[1]) then
				redis.call('HSET', KEYS[1], 'state', 0, 'successes', 0)
				return 1
			end
		end
		return 0
	`)

	// failureScript: count failures; open the breaker when the threshold is
	// met in Closed, or immediately on any failure in HalfOpen.
	// KEYS[1]: breaker hash. ARGV[1]: failure threshold, ARGV[2]: now (unix).
	// Returns 1 when the breaker transitioned to Open.
	failureScript = redis.NewScript(`
		local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
		local n = redis.call('HINCRBY', KEYS[1], 'failures', 1)
		if (state == 0 and n >= tonumber(ARGV[1])) or state == 2 then
			redis.call('HSET', KEYS[1], 'state', 1, 'opened_at', ARGV[2], 'successes', 0)
			return 1
		end
		return 0
	`)

	// probeScript: move an Open breaker whose timeout has elapsed to
	// HalfOpen so one probe request may pass.
	// KEYS[1]: breaker hash. ARGV[1]: now (unix), ARGV[2]: open timeout (s).
	// Returns 1 when execution may proceed.
	probeScript = redis.NewScript(`
		local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
		if state ~= 1 then
			return 1
		end
		local opened = tonumber(redis.call('HGET', KEYS[1], 'opened_at') or '0')
		if tonumber(ARGV[1]) - opened >= tonumber(ARGV[2]) then
			redis.call('HSET', KEYS[1], 'state', 2, 'successes', 0)
			return 1
		end
		return 0
	`)
)

// Breaker is the circuit breaker for one provider.
type Breaker struct {
	rdb      *redis.Client
	provider string
	key      string
	cfg      Config
}

// New creates a breaker for the named provider.
func New(rdb *redis.Client, provider string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}
	return &Breaker{
		rdb:      rdb,
		provider: provider,
		key:      hashKeyPrefix + provider,
		cfg:      cfg,
	}
}

// CanExecute reports whether a request may be sent to the provider. An Open
// breaker whose timeout elapsed transitions to HalfOpen and admits a probe.
// Redis failures never block execution.
func (b *Breaker) CanExecute() bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	allowed, err := probeScript.Run(ctx, b.rdb, []string{b.key},
		time.Now().Unix(), int(b.cfg.OpenTimeout.Seconds())).Int()
	if err != nil {
		fiberlog.Errorf("Breaker %s: state check failed, allowing execution: %v", b.provider, err)
		return true
	}
	return allowed == 1
}

// RecordSuccess registers a successful provider call.
func (b *Breaker) RecordSuccess() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	closed, err := successScript.Run(ctx, b.rdb, []string{b.key}, b.cfg.SuccessThreshold).Int()
	if err != nil {
		fiberlog.Errorf("Breaker %s: failed to record success: %v", b.provider, err)
		return
	}
	if closed == 1 {
		fiberlog.Infof("Breaker %s: closed after successful probes", b.provider)
	}
}

// RecordFailure registers a failed provider call.
func (b *Breaker) RecordFailure() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	opened, err := failureScript.Run(ctx, b.rdb, []string{b.key},
		b.cfg.FailureThreshold, time.Now().Unix()).Int()
	if err != nil {
		fiberlog.Errorf("Breaker %s: failed to record failure: %v", b.provider, err)
		return
	}
	if opened == 1 {
		fiberlog.Warnf("Breaker %s: opened after repeated failures", b.provider)
	}
}

// GetState returns the current state, Closed on any Redis failure.
func (b *Breaker) GetState() State {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := b.rdb.HGet(ctx, b.key, fieldState).Int()
	if err != nil {
		if err != redis.Nil {
			fiberlog.Errorf("Breaker %s: failed to get state: %v", b.provider, err)
		}
		return Closed
	}
	return State(raw)
}

// Reset forces the breaker back to Closed.
func (b *Breaker) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := b.rdb.Del(ctx, b.key).Err(); err != nil {
		fiberlog.Errorf("Breaker %s: failed to reset: %v", b.provider, err)
	}
}

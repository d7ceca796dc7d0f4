package executor

import (
	"context"
	"testing"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"
)

func fastConfig() Config {
	return Config{
		MinInterval: 10 * time.Millisecond,
		Timeout:     time.Second,
		MaxRetries:  2,
		BackoffBase: 5 * time.Millisecond,
	}
}

func TestExecuteSuccess(t *testing.T) {
	e := New[string]("test", fastConfig())

	got, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	}, 0)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	e := New[string]("test", fastConfig())

	attempts := 0
	got, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", models.NewProviderError("fake", "boom", nil)
		}
		return "recovered", nil
	}, 0)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q, want %q", got, "recovered")
	}
	if attempts != 3 {
		t.Errorf("made %d attempts, want 3", attempts)
	}
}

func TestExecuteExhaustionSurfacesLastError(t *testing.T) {
	e := New[string]("test", fastConfig())

	attempts := 0
	_, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		return "", models.NewProviderError("fake", "always failing", nil)
	}, 0)
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	// MaxRetries=2 means one initial attempt plus two retries.
	if attempts != 3 {
		t.Errorf("made %d attempts, want 3", attempts)
	}
	if appErr, ok := models.AsAppError(err); !ok || appErr.Type != models.ErrorTypeProvider {
		t.Errorf("surfaced error %v, want last provider error", err)
	}
}

func TestExecuteTimeoutIsTerminal(t *testing.T) {
	cfg := fastConfig()
	e := New[string]("test", cfg)

	attempts := 0
	_, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		<-ctx.Done()
		return "", ctx.Err()
	}, 20*time.Millisecond)
	if !models.IsTimeout(err) {
		t.Fatalf("got %v, want timeout error", err)
	}
	if attempts != 1 {
		t.Errorf("made %d attempts, want 1 (timeouts are not retried)", attempts)
	}
}

func TestExecuteHonorsRateLimitRetryAfter(t *testing.T) {
	cfg := fastConfig()
	cfg.BackoffBase = 500 * time.Millisecond // would dominate if used
	e := New[string]("test", cfg)

	var starts []time.Time
	retryAfter := 25 * time.Millisecond
	_, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		starts = append(starts, time.Now())
		if len(starts) == 1 {
			return "", models.NewRateLimitError("fake", retryAfter, nil)
		}
		return "ok", nil
	}, 0)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(starts) != 2 {
		t.Fatalf("made %d attempts, want 2", len(starts))
	}

	gap := starts[1].Sub(starts[0])
	if gap < retryAfter {
		t.Errorf("retry started after %v, want at least the suggested %v", gap, retryAfter)
	}
	if gap >= cfg.BackoffBase {
		t.Errorf("retry waited %v, computed backoff appears to have been used instead of retry-after", gap)
	}
}

func TestExecutePacingEnforcesMinInterval(t *testing.T) {
	cfg := fastConfig()
	cfg.MinInterval = 40 * time.Millisecond
	e := New[string]("test", cfg)

	var starts []time.Time
	attempt := func(ctx context.Context) (string, error) {
		starts = append(starts, time.Now())
		return "ok", nil
	}

	for range 2 {
		if _, err := e.Execute(context.Background(), attempt, 0); err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
	}

	if len(starts) != 2 {
		t.Fatalf("made %d attempts, want 2", len(starts))
	}
	if gap := starts[1].Sub(starts[0]); gap < cfg.MinInterval-time.Millisecond {
		t.Errorf("attempts started %v apart, want at least %v", gap, cfg.MinInterval)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	cfg := fastConfig()
	cfg.MinInterval = time.Hour // force pacing wait on the second call
	e := New[string]("test", cfg)

	if _, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	}, 0); err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, func(ctx context.Context) (string, error) {
		t.Error("attempt must not run after cancellation during pacing")
		return "", nil
	}, 0)
	if err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

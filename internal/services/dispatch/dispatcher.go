// Package dispatch orchestrates a request end to end: cache lookup,
// complexity classification, candidate ordering, sequential
// attempt-with-fallback through the resilient executor, and cache
// population.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"
	"github.com/driftlock/dispatch-proxy/internal/services/cache"
	"github.com/driftlock/dispatch-proxy/internal/services/circuitbreaker"
	"github.com/driftlock/dispatch-proxy/internal/services/classifier"
	"github.com/driftlock/dispatch-proxy/internal/services/executor"
	"github.com/driftlock/dispatch-proxy/internal/services/provider"
	"github.com/driftlock/dispatch-proxy/internal/services/usage"
	"github.com/driftlock/dispatch-proxy/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultEmbeddingProvider = "openai"
	embeddingTimeout         = 10 * time.Second
)

// ProviderSource resolves provider names to capability providers. Satisfied
// by *provider.Registry; tests substitute fakes.
type ProviderSource interface {
	Get(name string) (provider.Provider, bool)
}

// Dispatcher owns the registered candidate list, the result cache, and the
// per-candidate executors for its lifetime. Candidates register only at
// construction; the profile list is read-only under concurrent traffic.
type Dispatcher struct {
	profiles  []models.CapabilityProfile
	providers ProviderSource

	cache           *cache.ResultCache
	cacheEnabled    bool
	semanticEnabled bool

	execCfg   executor.Config
	executors *clientcache.Cache[*executor.Executor[*models.CompletionResponse]]

	breakers map[string]*circuitbreaker.Breaker
	recorder *usage.Recorder

	embeddingProvider string
	embedGroup        singleflight.Group
}

// New creates a dispatcher from configuration. rdb and recorder are
// optional; without them circuit breaking and audit logging are disabled.
func New(cfg models.DispatchConfig, providers ProviderSource, rdb *redis.Client, recorder *usage.Recorder) *Dispatcher {
	d := &Dispatcher{
		profiles:          cfg.Profiles,
		providers:         providers,
		cacheEnabled:      cfg.Cache.Enabled,
		semanticEnabled:   cfg.Cache.Enabled && cfg.Cache.SemanticEnabled,
		execCfg:           executor.FromModel(cfg.Executor),
		executors:         clientcache.NewCache[*executor.Executor[*models.CompletionResponse]](),
		recorder:          recorder,
		embeddingProvider: cfg.EmbeddingProvider,
	}
	if d.embeddingProvider == "" {
		d.embeddingProvider = defaultEmbeddingProvider
	}

	if cfg.Cache.Enabled {
		d.cache = cache.NewResultCache(cfg.Cache)
		d.cache.Start()
	}

	if rdb != nil && cfg.CircuitBreaker.Enabled {
		breakerCfg := circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			OpenTimeout:      time.Duration(cfg.CircuitBreaker.OpenTimeoutMs) * time.Millisecond,
		}
		d.breakers = make(map[string]*circuitbreaker.Breaker)
		for _, p := range cfg.Profiles {
			if _, exists := d.breakers[p.Provider]; !exists {
				d.breakers[p.Provider] = circuitbreaker.New(rdb, p.Provider, breakerCfg)
			}
		}
	}

	return d
}

// Close releases the dispatcher's background resources.
func (d *Dispatcher) Close() {
	if d.cache != nil {
		d.cache.Stop()
	}
}

// ProcessRequest dispatches text to the best available candidate. It fails
// only with a validation error, a configuration error, or exhaustion of
// every ordered candidate.
func (d *Dispatcher) ProcessRequest(ctx context.Context, text string, opts models.RequestOptions) (*models.CompletionResponse, error) {
	requestID := utils.UUIDv4()[:8]
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return nil, models.NewValidationError("request text cannot be empty", nil)
	}

	fingerprint := cache.Fingerprint(text)
	caching := d.cacheEnabled && opts.CachingEnabled()

	fiberlog.Infof("[%s] Dispatch started - fingerprint: %.12s, cache: %t", requestID, fingerprint, caching)

	if caching {
		if resp, tier, ok := d.lookupCache(ctx, text, fingerprint, opts, requestID); ok {
			fiberlog.Infof("[%s] Cache hit (%s) - served by %s/%s", requestID, tier, resp.Provider, resp.Model)
			d.record(requestID, fingerprint, resp, "", tier, 0, start, nil)
			return resp, nil
		}
	}

	// The tier only steers ordering for the default and
	// capability-descending strategies, but it is cheap and useful in logs.
	tier := classifier.Classify(text)
	fiberlog.Debugf("[%s] Classified as %s", requestID, tier)

	eligible := filterEligible(d.profiles, opts)
	ordered, err := orderCandidates(eligible, opts, tier)
	if err != nil {
		return nil, err
	}
	fiberlog.Infof("[%s] %d/%d candidates eligible after filtering", requestID, len(ordered), len(d.profiles))

	attempted := 0
	for i, candidate := range ordered {
		prov, ok := d.providers.Get(candidate.Provider)
		if !ok {
			fiberlog.Warnf("[%s] Skipping %s: provider not configured", requestID, candidate.Key())
			continue
		}
		if breaker := d.breakers[candidate.Provider]; breaker != nil && !breaker.CanExecute() {
			fiberlog.Warnf("[%s] Skipping %s: circuit breaker open", requestID, candidate.Key())
			continue
		}

		fiberlog.Infof("[%s] Trying candidate [%d/%d]: %s", requestID, i+1, len(ordered), candidate.Key())
		attempted++

		resp, err := d.attempt(ctx, prov, candidate, text, opts)
		if err != nil {
			// Per-candidate failures stay in the logs; the loop moves on.
			fiberlog.Warnf("[%s] Candidate %s failed: %v", requestID, candidate.Key(), err)
			if breaker := d.breakers[candidate.Provider]; breaker != nil {
				breaker.RecordFailure()
			}
			continue
		}

		if breaker := d.breakers[candidate.Provider]; breaker != nil {
			breaker.RecordSuccess()
		}
		fiberlog.Infof("[%s] Success with %s in %v", requestID, candidate.Key(), time.Since(start))

		if caching {
			d.populateCache(ctx, prov, text, fingerprint, resp, requestID)
		}
		d.record(requestID, fingerprint, resp, tier, "", attempted, start, nil)
		return resp, nil
	}

	err = models.NewAllCandidatesFailedError(fingerprint, attempted)
	fiberlog.Errorf("[%s] %v", requestID, err)
	d.record(requestID, fingerprint, nil, tier, "", attempted, start, err)
	return nil, err
}

// attempt invokes one candidate's completion through its resilient executor.
func (d *Dispatcher) attempt(ctx context.Context, prov provider.Provider, candidate models.CapabilityProfile, text string, opts models.RequestOptions) (*models.CompletionResponse, error) {
	exec, _ := d.executors.GetOrCreate(candidate.Key(), func() (*executor.Executor[*models.CompletionResponse], error) {
		return executor.New[*models.CompletionResponse](candidate.Key(), d.execCfg), nil
	})

	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	req := &models.CompletionRequest{Prompt: text, Model: candidate.Model}

	return exec.Execute(ctx, func(attemptCtx context.Context) (*models.CompletionResponse, error) {
		return prov.GenerateCompletion(attemptCtx, req)
	}, timeout)
}

// lookupCache tries the exact index, then the semantic index. Any failure
// obtaining an embedding degrades to a miss.
func (d *Dispatcher) lookupCache(ctx context.Context, text, fingerprint string, opts models.RequestOptions, requestID string) (*models.CompletionResponse, string, bool) {
	if resp, ok := d.cache.Get(fingerprint); ok {
		resp.CacheTier = models.CacheTierExact
		return resp, models.CacheTierExact, true
	}

	if !d.semanticEnabled {
		return nil, "", false
	}

	embedding, err := d.embeddingFor(ctx, text, fingerprint, opts)
	if err != nil {
		fiberlog.Debugf("[%s] Semantic lookup skipped, embedding unavailable: %v", requestID, err)
		return nil, "", false
	}

	if resp, ok := d.cache.FindSimilar(embedding, d.cache.SemanticThreshold()); ok {
		resp.CacheTier = models.CacheTierSemantic
		return resp, models.CacheTierSemantic, true
	}
	return nil, "", false
}

// populateCache writes the served response into both cache tiers. The
// embedding comes from the provider that served the response, best effort.
func (d *Dispatcher) populateCache(ctx context.Context, prov provider.Provider, text, fingerprint string, resp *models.CompletionResponse, requestID string) {
	var embedding []float32
	if d.semanticEnabled {
		embedCtx, cancel := context.WithTimeout(ctx, embeddingTimeout)
		defer cancel()
		vector, err := prov.GenerateEmbedding(embedCtx, text)
		if err != nil {
			fiberlog.Debugf("[%s] Cache write continues without embedding: %v", requestID, err)
		} else {
			embedding = vector
		}
	}
	d.cache.Put(fingerprint, *resp, embedding, 0)
}

// embeddingFor obtains a lookup embedding from the preferred provider when
// one is set, the configured default otherwise. Identical concurrent
// requests share one embedding call.
func (d *Dispatcher) embeddingFor(ctx context.Context, text, fingerprint string, opts models.RequestOptions) ([]float32, error) {
	name := d.embeddingProvider
	if opts.PreferredProvider != "" {
		if _, ok := d.providers.Get(opts.PreferredProvider); ok {
			name = opts.PreferredProvider
		}
	}

	prov, ok := d.providers.Get(name)
	if !ok {
		return nil, models.NewProviderError(name, "embedding provider not configured", nil)
	}

	result, err, _ := d.embedGroup.Do(fingerprint, func() (any, error) {
		embedCtx, cancel := context.WithTimeout(ctx, embeddingTimeout)
		defer cancel()
		return prov.GenerateEmbedding(embedCtx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// record emits the audit row when a recorder is configured.
func (d *Dispatcher) record(requestID, fingerprint string, resp *models.CompletionResponse, tier models.ComplexityTier, cacheTier string, attempted int, start time.Time, dispatchErr error) {
	if d.recorder == nil {
		return
	}

	entry := usage.RequestLog{
		RequestID:   requestID,
		Fingerprint: fingerprint,
		Tier:        string(tier),
		CacheTier:   cacheTier,
		Attempts:    attempted,
		DurationMs:  time.Since(start).Milliseconds(),
		Success:     dispatchErr == nil,
	}
	if resp != nil {
		entry.Provider = resp.Provider
		entry.Model = resp.Model
		entry.InputUnits = resp.Usage.InputUnits
		entry.OutputUnits = resp.Usage.OutputUnits
	}
	if dispatchErr != nil {
		entry.Error = dispatchErr.Error()
	}
	d.recorder.Record(entry)
}

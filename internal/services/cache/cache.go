// Package cache implements the two-tier result cache: an exact index keyed
// by prompt fingerprint and a semantic index searched by embedding
// similarity. Entries expire by TTL and are removed by a periodic sweep or
// lazily on access.
package cache

import (
	"sync"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	defaultTTL               = 24 * time.Hour
	defaultSweepInterval     = time.Hour
	defaultSemanticThreshold = 0.9
)

// entry is one cached result. Entries are appended on write, never mutated,
// and removed only by expiry.
type entry struct {
	fingerprint string
	embedding   []float32
	response    models.CompletionResponse
	createdAt   time.Time
	expiresAt   time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// ResultCache stores completed responses for reuse. Every entry lives in the
// exact index; the semantic index holds only entries written with an
// embedding. Safe for concurrent use.
type ResultCache struct {
	mu       sync.RWMutex
	exact    map[string]*entry
	semantic []*entry

	ttl           time.Duration
	sweepInterval time.Duration
	threshold     float32

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewResultCache creates a result cache from configuration, applying the
// reference defaults (24h TTL, hourly sweep, 0.9 semantic threshold) for
// unset fields.
func NewResultCache(cfg models.CacheConfig) *ResultCache {
	ttl := defaultTTL
	if cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}
	sweep := defaultSweepInterval
	if cfg.SweepSeconds > 0 {
		sweep = time.Duration(cfg.SweepSeconds) * time.Second
	}
	threshold := float32(defaultSemanticThreshold)
	if cfg.SemanticThreshold > 0 {
		threshold = float32(cfg.SemanticThreshold)
	}

	return &ResultCache{
		exact:         make(map[string]*entry),
		ttl:           ttl,
		sweepInterval: sweep,
		threshold:     threshold,
		stopCh:        make(chan struct{}),
	}
}

// SemanticThreshold returns the configured similarity threshold.
func (rc *ResultCache) SemanticThreshold() float32 {
	return rc.threshold
}

// Start launches the background expiry sweep. The sweep runs until Stop is
// called by the cache owner.
func (rc *ResultCache) Start() {
	go func() {
		ticker := time.NewTicker(rc.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := rc.Sweep()
				if removed > 0 {
					fiberlog.Debugf("ResultCache: sweep removed %d expired entries", removed)
				}
			case <-rc.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background sweep. Idempotent.
func (rc *ResultCache) Stop() {
	rc.stopOnce.Do(func() { close(rc.stopCh) })
}

// Get returns the cached response for an exact fingerprint match. An expired
// entry is evicted on lookup and reported as a miss.
func (rc *ResultCache) Get(fingerprint string) (*models.CompletionResponse, bool) {
	now := time.Now()

	rc.mu.RLock()
	e, ok := rc.exact[fingerprint]
	rc.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if e.expired(now) {
		rc.mu.Lock()
		// Re-check under the write lock; a Put may have replaced the entry.
		if cur, still := rc.exact[fingerprint]; still && cur.expired(now) {
			delete(rc.exact, fingerprint)
			rc.dropSemanticLocked(cur)
		}
		rc.mu.Unlock()
		return nil, false
	}

	resp := e.response
	return &resp, true
}

// Put inserts a response unconditionally, overwriting any existing exact
// entry for the fingerprint. The entry joins the semantic index only when an
// embedding is supplied. A non-positive ttl uses the configured default.
func (rc *ResultCache) Put(fingerprint string, response models.CompletionResponse, embedding []float32, ttl time.Duration) {
	if ttl <= 0 {
		ttl = rc.ttl
	}
	now := time.Now()
	e := &entry{
		fingerprint: fingerprint,
		embedding:   embedding,
		response:    response,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
	}

	rc.mu.Lock()
	rc.exact[fingerprint] = e
	if len(embedding) > 0 {
		rc.semantic = append(rc.semantic, e)
	}
	rc.mu.Unlock()
}

// FindSimilar scans the semantic index and returns the response of the
// highest-similarity unexpired entry whose similarity strictly exceeds the
// threshold. On equal highest scores the earliest-inserted entry wins.
// Expired entries are swept before the scan.
func (rc *ResultCache) FindSimilar(embedding []float32, threshold float32) (*models.CompletionResponse, bool) {
	if len(embedding) == 0 {
		return nil, false
	}

	rc.Sweep()

	rc.mu.RLock()
	defer rc.mu.RUnlock()

	var best *entry
	var bestScore float32
	for _, e := range rc.semantic {
		score, err := CosineSimilarity(embedding, e.embedding)
		if err != nil {
			// Dimension mismatches indicate a contract violation by the
			// embedding provider; log loudly but never fail the caller.
			fiberlog.Errorf("ResultCache: skipping malformed semantic entry %s: %v", e.fingerprint, err)
			continue
		}
		if score > threshold && (best == nil || score > bestScore) {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		return nil, false
	}
	resp := best.response
	return &resp, true
}

// Sweep removes all expired entries from both indices and returns the number
// of exact entries removed.
func (rc *ResultCache) Sweep() int {
	now := time.Now()

	rc.mu.Lock()
	defer rc.mu.Unlock()

	removed := 0
	for fingerprint, e := range rc.exact {
		if e.expired(now) {
			delete(rc.exact, fingerprint)
			removed++
		}
	}

	if len(rc.semantic) > 0 {
		retained := rc.semantic[:0]
		for _, e := range rc.semantic {
			if !e.expired(now) {
				retained = append(retained, e)
			}
		}
		clear(rc.semantic[len(retained):])
		rc.semantic = retained
	}

	return removed
}

// Len returns the number of live entries in the exact index.
func (rc *ResultCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.exact)
}

// dropSemanticLocked removes one entry from the semantic index. Caller holds
// the write lock.
func (rc *ResultCache) dropSemanticLocked(target *entry) {
	for i, e := range rc.semantic {
		if e == target {
			rc.semantic = append(rc.semantic[:i], rc.semantic[i+1:]...)
			return
		}
	}
}

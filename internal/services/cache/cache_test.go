package cache

import (
	"testing"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/models"
)

func newTestCache() *ResultCache {
	return NewResultCache(models.CacheConfig{Enabled: true})
}

func resp(content string) models.CompletionResponse {
	return models.CompletionResponse{Provider: "openai", Model: "gpt-4o", Content: content}
}

func TestPutThenGet(t *testing.T) {
	rc := newTestCache()
	fp := Fingerprint("what is the capital of France?")

	rc.Put(fp, resp("Paris"), nil, 0)

	got, ok := rc.Get(fp)
	if !ok {
		t.Fatal("expected exact hit after Put")
	}
	if got.Content != "Paris" {
		t.Errorf("got content %q, want %q", got.Content, "Paris")
	}
}

func TestGetMiss(t *testing.T) {
	rc := newTestCache()
	if _, ok := rc.Get(Fingerprint("never stored")); ok {
		t.Error("expected miss for unknown fingerprint")
	}
}

func TestPutOverwrites(t *testing.T) {
	rc := newTestCache()
	fp := Fingerprint("same prompt")

	rc.Put(fp, resp("first"), nil, 0)
	rc.Put(fp, resp("second"), nil, 0)

	got, ok := rc.Get(fp)
	if !ok || got.Content != "second" {
		t.Errorf("got (%v, %v), want overwritten response", got, ok)
	}
	if rc.Len() != 1 {
		t.Errorf("exact index has %d entries, want 1", rc.Len())
	}
}

func TestExpiredEntryEvictedOnGet(t *testing.T) {
	rc := newTestCache()
	fp := Fingerprint("ephemeral")

	rc.Put(fp, resp("gone soon"), nil, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := rc.Get(fp); ok {
		t.Fatal("expected miss after expiry")
	}
	if rc.Len() != 0 {
		t.Errorf("expired entry not evicted, Len = %d", rc.Len())
	}
}

func TestFindSimilarHit(t *testing.T) {
	rc := newTestCache()
	rc.Put(Fingerprint("a"), resp("answer A"), []float32{1, 0, 0}, 0)
	rc.Put(Fingerprint("b"), resp("answer B"), []float32{0, 1, 0}, 0)

	// Close to the first embedding, cosine ≈ 0.995.
	got, ok := rc.FindSimilar([]float32{1, 0.1, 0}, 0.95)
	if !ok {
		t.Fatal("expected semantic hit")
	}
	if got.Content != "answer A" {
		t.Errorf("got %q, want %q", got.Content, "answer A")
	}
}

func TestFindSimilarThresholdIsStrict(t *testing.T) {
	rc := newTestCache()
	rc.Put(Fingerprint("a"), resp("answer"), []float32{1, 0}, 0)

	// cosine(v, v) == 1, strictly above any threshold < 1.
	if _, ok := rc.FindSimilar([]float32{1, 0}, 1.0); ok {
		t.Error("similarity equal to threshold must not hit")
	}
	if _, ok := rc.FindSimilar([]float32{1, 0}, 0.99); !ok {
		t.Error("similarity strictly above threshold must hit")
	}
}

func TestFindSimilarTieKeepsEarliestInsertion(t *testing.T) {
	rc := newTestCache()
	// Identical embeddings: equal scores, first insertion must win.
	rc.Put(Fingerprint("first"), resp("first"), []float32{0.5, 0.5}, 0)
	rc.Put(Fingerprint("second"), resp("second"), []float32{0.5, 0.5}, 0)

	got, ok := rc.FindSimilar([]float32{0.5, 0.5}, 0.9)
	if !ok {
		t.Fatal("expected semantic hit")
	}
	if got.Content != "first" {
		t.Errorf("tie broke to %q, want first-inserted entry", got.Content)
	}
}

func TestFindSimilarSkipsEntriesWithoutEmbedding(t *testing.T) {
	rc := newTestCache()
	rc.Put(Fingerprint("no embedding"), resp("exact only"), nil, 0)

	if _, ok := rc.FindSimilar([]float32{1, 0}, 0.1); ok {
		t.Error("entry without embedding must not join the semantic index")
	}
}

func TestFindSimilarSkipsMalformedVectors(t *testing.T) {
	rc := newTestCache()
	rc.Put(Fingerprint("short"), resp("bad"), []float32{1}, 0)
	rc.Put(Fingerprint("good"), resp("good"), []float32{1, 0}, 0)

	got, ok := rc.FindSimilar([]float32{1, 0}, 0.5)
	if !ok || got.Content != "good" {
		t.Errorf("got (%v, %v), want dimension mismatch skipped and good entry returned", got, ok)
	}
}

func TestSweepRemovesFromBothIndices(t *testing.T) {
	rc := newTestCache()
	rc.Put(Fingerprint("stale"), resp("stale"), []float32{1, 0}, 5*time.Millisecond)
	rc.Put(Fingerprint("fresh"), resp("fresh"), []float32{0, 1}, time.Hour)

	time.Sleep(20 * time.Millisecond)
	rc.Sweep()

	if rc.Len() != 1 {
		t.Errorf("exact index has %d entries after sweep, want 1", rc.Len())
	}
	if _, ok := rc.FindSimilar([]float32{1, 0.01}, 0.9); ok {
		t.Error("expired entry still reachable through semantic index")
	}
	if _, ok := rc.FindSimilar([]float32{0.01, 1}, 0.9); !ok {
		t.Error("fresh entry lost by sweep")
	}
}

func TestStartStopSweep(t *testing.T) {
	rc := NewResultCache(models.CacheConfig{Enabled: true, SweepSeconds: 1})
	rc.Start()
	rc.Stop()
	// Stop is idempotent.
	rc.Stop()
}

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("  What is   Go?\n")
	b := Fingerprint("what is go?")
	if a != b {
		t.Error("fingerprints of equivalent prompts differ")
	}
	if a == Fingerprint("what is rust?") {
		t.Error("distinct prompts share a fingerprint")
	}
}

package classifier

import (
	"strings"
	"testing"

	"github.com/driftlock/dispatch-proxy/internal/models"
)

func TestClassifyPatternRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.ComplexityTier
	}{
		{"greeting", "Hello there!", models.TierSimple},
		{"definition", "What is the meaning of ephemeral?", models.TierSimple},
		{"yes or no", "Yes or no: is water wet?", models.TierSimple},
		{"summarize", "Summarize this article for me.", models.TierModerate},
		{"compare", "Compare MySQL and Postgres for OLTP workloads.", models.TierModerate},
		{"translate", "Translate this paragraph into French.", models.TierModerate},
		{"proof", "Prove that the sum of two even numbers is even.", models.TierComplex},
		{"system design", "Design a distributed system for event ingestion.", models.TierComplex},
		{"step by step", "Walk me through this step-by-step.", models.TierComplex},
		{"code block", "Fix this:\n```\nfunc main() {}\n```", models.TierComplex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

// A text matching several tiers' patterns takes the first tier in rule
// declaration order, SIMPLE before MODERATE before COMPLEX.
func TestClassifyDeclarationOrderWins(t *testing.T) {
	text := "Hello, please summarize the proof of this theorem."
	if got := Classify(text); got != models.TierSimple {
		t.Errorf("Classify(%q) = %s, want %s", text, got, models.TierSimple)
	}
}

func TestClassifyWordCountFallback(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  models.ComplexityTier
	}{
		{"short", 10, models.TierSimple},
		{"simple boundary", 50, models.TierSimple},
		{"medium", 51, models.TierModerate},
		{"moderate boundary", 150, models.TierModerate},
		{"long", 151, models.TierComplex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// "lorem" matches no tier pattern, so only word count applies.
			text := strings.TrimSpace(strings.Repeat("lorem ", tt.words))
			if got := Classify(text); got != tt.want {
				t.Errorf("Classify(%d words) = %s, want %s", tt.words, got, tt.want)
			}
		})
	}
}

func TestClassifyEmptyString(t *testing.T) {
	if got := Classify(""); got != models.TierSimple {
		t.Errorf("Classify(\"\") = %s, want %s", got, models.TierSimple)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	text := "Explain how garbage collection works in Go."
	first := Classify(text)
	for range 10 {
		if got := Classify(text); got != first {
			t.Fatalf("Classify is not deterministic: got %s then %s", first, got)
		}
	}
}

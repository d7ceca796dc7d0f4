// Package classifier assigns a complexity tier to request text using an
// ordered pattern table with a word-count fallback.
package classifier

import (
	"regexp"
	"strings"

	"github.com/driftlock/dispatch-proxy/internal/models"
)

// Word-count fallback thresholds applied when no pattern matches.
const (
	simpleWordLimit   = 50
	moderateWordLimit = 150
)

// tierRule binds one tier to the patterns that select it. Rules are held in
// a slice, not a map: texts can match several tiers at once and the first
// matching rule in declaration order wins.
type tierRule struct {
	tier     models.ComplexityTier
	patterns []*regexp.Regexp
}

var rules = []tierRule{
	{
		tier: models.TierSimple,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you)\b`),
			regexp.MustCompile(`(?i)^\s*what (is|are|was|were) the\b`),
			regexp.MustCompile(`(?i)\b(define|definition of|meaning of)\b`),
			regexp.MustCompile(`(?i)\b(yes or no|true or false)\b`),
		},
	},
	{
		tier: models.TierModerate,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(summariz\w*|paraphrase|rewrite|translate)\b`),
			regexp.MustCompile(`(?i)\b(explain|describe|compare|contrast)\b`),
			regexp.MustCompile(`(?i)\b(list|outline|enumerate)\b`),
			regexp.MustCompile(`(?i)\bpros and cons\b`),
		},
	},
	{
		tier: models.TierComplex,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(prove|theorem|derive|derivation)\b`),
			regexp.MustCompile(`(?i)\b(design|architect|refactor|optimi[sz]e)\b.*\b(system|service|pipeline|codebase|architecture)\b`),
			regexp.MustCompile(`(?i)\bstep[ -]by[ -]step\b`),
			regexp.MustCompile(`(?i)\b(implement|debug|write)\b.*\b(algorithm|function|program|code)\b`),
			regexp.MustCompile("```"),
		},
	},
}

// Classify maps request text to a complexity tier. It is pure and total:
// the same text always yields the same tier and any input, including the
// empty string, classifies without error.
func Classify(text string) models.ComplexityTier {
	for _, rule := range rules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(text) {
				return rule.tier
			}
		}
	}

	words := len(strings.Fields(text))
	switch {
	case words <= simpleWordLimit:
		return models.TierSimple
	case words <= moderateWordLimit:
		return models.TierModerate
	default:
		return models.TierComplex
	}
}

package dispatch

import (
	"sort"
	"strings"

	"github.com/driftlock/dispatch-proxy/internal/models"
)

// costPenaltyWeight converts the fixed-volume cost estimate into the same
// 0-10 scale as capability ratings for the composite score.
const costPenaltyWeight = 100

// filterEligible narrows the registered profiles to those satisfying the
// request's constraints. Declaration order is preserved. An empty result is
// not an error here; the dispatch loop reports exhaustion instead.
func filterEligible(profiles []models.CapabilityProfile, opts models.RequestOptions) []models.CapabilityProfile {
	eligible := make([]models.CapabilityProfile, 0, len(profiles))

	for _, p := range profiles {
		if opts.PreferredProvider != "" && !strings.EqualFold(p.Provider, opts.PreferredProvider) {
			continue
		}
		if opts.PreferredModel != "" && p.Model != opts.PreferredModel {
			continue
		}
		if belowMinCapability(p, opts.MinCapability) {
			continue
		}
		if opts.MaxCost > 0 && p.EstimatedCost() > opts.MaxCost {
			continue
		}
		eligible = append(eligible, p)
	}

	return eligible
}

func belowMinCapability(p models.CapabilityProfile, thresholds map[string]float64) bool {
	for name, minimum := range thresholds {
		if p.Capability(name) < minimum {
			return true
		}
	}
	return false
}

// orderCandidates sorts the eligible set per the fallback strategy. Sorting
// is stable throughout, so equal scores keep registration order.
func orderCandidates(eligible []models.CapabilityProfile, opts models.RequestOptions, tier models.ComplexityTier) ([]models.CapabilityProfile, error) {
	switch opts.FallbackStrategy {
	case models.StrategyCostAscending:
		ordered := append([]models.CapabilityProfile(nil), eligible...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CostPerInputUnit+ordered[i].CostPerOutputUnit <
				ordered[j].CostPerInputUnit+ordered[j].CostPerOutputUnit
		})
		return ordered, nil

	case models.StrategyCapabilityDescending:
		capability := capabilityForTier(tier)
		ordered := append([]models.CapabilityProfile(nil), eligible...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Capability(capability) > ordered[j].Capability(capability)
		})
		return ordered, nil

	case models.StrategySpecificModels:
		if len(opts.FallbackModels) == 0 {
			return nil, models.NewConfigurationError("specific-models strategy requires a fallback_models list", nil)
		}
		byKey := make(map[string]models.CapabilityProfile, len(eligible))
		for _, p := range eligible {
			byKey[p.Key()] = p
		}
		// The caller's list order is authoritative; unregistered keys drop out.
		ordered := make([]models.CapabilityProfile, 0, len(opts.FallbackModels))
		for _, key := range opts.FallbackModels {
			if p, ok := byKey[key]; ok {
				ordered = append(ordered, p)
			}
		}
		return ordered, nil

	case "":
		ordered := append([]models.CapabilityProfile(nil), eligible...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return compositeScore(ordered[i], tier) > compositeScore(ordered[j], tier)
		})
		return ordered, nil

	default:
		return nil, models.NewConfigurationError("unknown fallback strategy: "+string(opts.FallbackStrategy), nil)
	}
}

// capabilityForTier picks the single rating that capability-descending
// ordering ranks by.
func capabilityForTier(tier models.ComplexityTier) string {
	switch tier {
	case models.TierSimple:
		return models.CapabilitySpeed
	case models.TierModerate:
		return models.CapabilityKnowledge
	default:
		return models.CapabilityReasoning
	}
}

// compositeScore is the complexity-adaptive default ordering: simple
// requests favor fast, cheap models; moderate requests balance knowledge
// and reasoning; complex requests rank raw reasoning.
func compositeScore(p models.CapabilityProfile, tier models.ComplexityTier) float64 {
	switch tier {
	case models.TierSimple:
		return p.Capability(models.CapabilitySpeed) - p.EstimatedCost()*costPenaltyWeight
	case models.TierModerate:
		return (p.Capability(models.CapabilityKnowledge) + p.Capability(models.CapabilityReasoning)) / 2
	default:
		return p.Capability(models.CapabilityReasoning)
	}
}

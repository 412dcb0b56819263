package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/ideascope/ideascope/internal/models"
)

// Refinement multipliers are kept inside [MinMultiplier, MaxMultiplier]
// so no single toggle can move the composite by more than a few points.
const (
	MinMultiplier = 0.85
	MaxMultiplier = 1.15
)

// channelAffinity fixes how well each acquisition channel converts
// reach into distribution readiness. Equal channel weights multiply
// distribution by exactly 1.0.
var channelAffinity = map[string]float64{
	"marketplace": 0.90,
	"search":      0.70,
	"video":       0.50,
	"social":      0.35,
	"community":   0.05,
}

// Compute blends the five factor scores into one composite scorecard.
// Absent factors fall back to the neutral default and are reported in
// the scorecard so callers can surface low confidence. Deterministic:
// the same sub-scores and refinement always produce the same card.
func Compute(sub models.SubScores, r models.Refinement) models.Scorecard {
	weights := DefaultWeights()
	breakdown := make(map[models.Factor]float64, len(models.AllFactors()))
	var neutral []models.Factor
	var composite float64

	for _, factor := range models.AllFactors() {
		base, ok := sub[factor]
		if !ok {
			base = NeutralScore
			neutral = append(neutral, factor)
		}
		adjusted := models.ClampScore(base * multiplier(factor, r))
		breakdown[factor] = adjusted
		composite += weights.Of(factor) * adjusted
	}
	sort.Slice(neutral, func(i, j int) bool { return neutral[i] < neutral[j] })

	return models.Scorecard{
		Composite:  int(math.Round(models.ClampScore(composite))),
		Breakdown:  breakdown,
		Neutral:    neutral,
		ComputedAt: time.Now(),
	}
}

// multiplier folds every refinement input that touches the factor into
// one bounded coefficient.
func multiplier(factor models.Factor, r models.Refinement) float64 {
	m := 1.0
	switch factor {
	case models.FactorDemand:
		if r.Niche {
			m *= 0.90
		}
		if r.AgeMax > 0 && r.AgeMax-r.AgeMin < 15 {
			m *= 0.95
		}
		if r.Region != "" && r.Region != "global" {
			m *= 0.97
		}
	case models.FactorPainIntensity:
		if r.PricePoint >= 100 {
			m *= 1.05
		}
	case models.FactorDifferentiation:
		if r.Premium {
			m *= 1.15
		}
	case models.FactorDistribution:
		if r.B2B {
			m *= 0.85
		}
		m *= channelMultiplier(r.ChannelWeights)
	}
	return math.Max(MinMultiplier, math.Min(MaxMultiplier, m))
}

// channelMultiplier maps weighted channel affinity onto
// [MinMultiplier, MaxMultiplier]. Nil weights mean equal weighting,
// which is the identity.
func channelMultiplier(weights map[string]float64) float64 {
	if len(weights) == 0 {
		return 1.0
	}
	var affinity float64
	for name, w := range weights {
		affinity += w * channelAffinity[name]
	}
	return 0.85 + 0.30*affinity
}

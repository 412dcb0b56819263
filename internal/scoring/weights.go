// Package scoring turns raw source payloads into normalized sub-metrics
// and blends the five factor scores into one composite score.
package scoring

import (
	"fmt"
	"math"

	"github.com/ideascope/ideascope/internal/models"
)

// NeutralScore substitutes for a factor no source could speak to.
// The midpoint avoids penalizing an idea for missing evidence.
const NeutralScore = 50.0

// Weights defines the relative importance of each factor in the
// composite score. All weights must sum to 1.0.
type Weights struct {
	Demand          float64
	PainIntensity   float64
	CompetitionGap  float64
	Differentiation float64
	Distribution    float64
}

// DefaultWeights returns the canonical factor weighting.
func DefaultWeights() Weights {
	return Weights{
		Demand:          0.25,
		PainIntensity:   0.20,
		CompetitionGap:  0.20,
		Differentiation: 0.20,
		Distribution:    0.15,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Demand + w.PainIntensity + w.CompetitionGap +
		w.Differentiation + w.Distribution
}

// Validate checks that weights sum to 1.0 and none are negative.
func (w Weights) Validate() error {
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return fmt.Errorf("weights sum to %.6f, must sum to 1.0", w.Sum())
	}
	for _, v := range w.byFactor() {
		if v < 0 {
			return fmt.Errorf("negative weight: %f", v)
		}
	}
	return nil
}

// Of returns the weight assigned to one factor.
func (w Weights) Of(f models.Factor) float64 {
	return w.byFactor()[f]
}

func (w Weights) byFactor() map[models.Factor]float64 {
	return map[models.Factor]float64{
		models.FactorDemand:          w.Demand,
		models.FactorPainIntensity:   w.PainIntensity,
		models.FactorCompetitionGap:  w.CompetitionGap,
		models.FactorDifferentiation: w.Differentiation,
		models.FactorDistribution:    w.Distribution,
	}
}

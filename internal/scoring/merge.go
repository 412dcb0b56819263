package scoring

import (
	"github.com/ideascope/ideascope/internal/models"
)

// factorContribution names one metric one source is authoritative for
// and how it feeds a factor. Inverted metrics measure the opposite of
// the factor (competitor strength vs. competition gap).
type factorContribution struct {
	source   models.Source
	metric   func(models.SubMetrics) *float64
	inverted bool
}

// factorContributions fixes which sources feed which factor. Sources
// outside a factor's list never influence it.
var factorContributions = map[models.Factor][]factorContribution{
	models.FactorDemand: {
		{source: models.SourceSearch, metric: func(m models.SubMetrics) *float64 { return m.Interest }},
		{source: models.SourceTrends, metric: func(m models.SubMetrics) *float64 { return m.Interest }},
		{source: models.SourceTikTok, metric: func(m models.SubMetrics) *float64 { return m.Interest }},
	},
	models.FactorPainIntensity: {
		{source: models.SourceReddit, metric: func(m models.SubMetrics) *float64 { return m.PainDensity }},
		{source: models.SourceTwitter, metric: func(m models.SubMetrics) *float64 { return m.PainDensity }},
	},
	models.FactorCompetitionGap: {
		{source: models.SourceSearch, metric: func(m models.SubMetrics) *float64 { return m.CompetitorStrength }, inverted: true},
		{source: models.SourceCommerce, metric: func(m models.SubMetrics) *float64 { return m.CompetitorStrength }, inverted: true},
	},
	models.FactorDifferentiation: {
		{source: models.SourceYouTube, metric: func(m models.SubMetrics) *float64 { return m.Differentiation }},
		{source: models.SourceTwitter, metric: func(m models.SubMetrics) *float64 { return m.Differentiation }},
	},
	models.FactorDistribution: {
		{source: models.SourceYouTube, metric: func(m models.SubMetrics) *float64 { return m.DistributionReadiness }},
		{source: models.SourceTikTok, metric: func(m models.SubMetrics) *float64 { return m.DistributionReadiness }},
		{source: models.SourceCommerce, metric: func(m models.SubMetrics) *float64 { return m.DistributionReadiness }},
	},
}

// FactorSources returns the sources that can contribute to a factor.
func FactorSources(f models.Factor) []models.Source {
	contribs := factorContributions[f]
	sources := make([]models.Source, 0, len(contribs))
	for _, c := range contribs {
		sources = append(sources, c.source)
	}
	return sources
}

// MergeSubScores averages each factor's authoritative contributions.
// Unavailable sources and absent metrics contribute nothing; a factor
// nobody spoke to is left out of the map entirely rather than zeroed.
func MergeSubScores(results map[models.Source]models.SourceResult) models.SubScores {
	sub := make(models.SubScores)
	for factor, contribs := range factorContributions {
		var sum float64
		var n int
		for _, c := range contribs {
			res, ok := results[c.source]
			if !ok || !res.Status.Terminal() || res.Status == models.StatusUnavailable {
				continue
			}
			v := c.metric(res.Metrics)
			if v == nil {
				continue
			}
			if c.inverted {
				sum += 100 - *v
			} else {
				sum += *v
			}
			n++
		}
		if n > 0 {
			sub[factor] = models.ClampScore(sum / float64(n))
		}
	}
	return sub
}

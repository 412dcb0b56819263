// Package advisor derives improvement recommendations from a scorecard
// and the evidence behind it. Recommendations are computed on demand
// and never stored.
package advisor

import (
	"fmt"
	"math"
	"sort"

	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/scoring"
)

// DefaultTargetScore is the factor score above which no improvement is
// suggested.
const DefaultTargetScore = 70.0

// playbook holds the fixed per-factor recommendation template.
type playbook struct {
	title      string
	rationale  string
	steps      []string
	experiment models.Experiment
}

var playbooks = map[models.Factor]playbook{
	models.FactorDemand: {
		title:     "Sharpen the problem statement for a searchable audience",
		rationale: "Search and trend signals suggest too few people are actively looking for this. Reframing around the words buyers already use lifts measurable demand.",
		steps: []string{
			"Rewrite the idea description using the top search phrases from the evidence",
			"Run a landing page against three headline variants",
			"Measure click-through from two paid search ad groups",
		},
		experiment: models.Experiment{
			Hypothesis:       "A problem-first landing page converts cold search traffic above 3%",
			Metric:           "landing_page_signup_rate",
			TimeToImpactDays: 14,
			CostBand:         "low",
		},
	},
	models.FactorPainIntensity: {
		title:     "Validate that the pain is felt, not just mentioned",
		rationale: "Community signals show weak pain density. Direct conversations separate a genuine burning problem from idle complaining.",
		steps: []string{
			"Interview ten people from the communities cited in the evidence",
			"Ask what they currently pay or do to work around the problem",
			"Log verbatim pain phrases and rank by frequency",
		},
		experiment: models.Experiment{
			Hypothesis:       "At least half of interviewees already pay for a workaround",
			Metric:           "interviews_with_paid_workaround_share",
			TimeToImpactDays: 21,
			CostBand:         "low",
		},
	},
	models.FactorCompetitionGap: {
		title:     "Carve a wedge the incumbents cannot follow",
		rationale: "Competitor strength is high across the evidence. A narrower entry segment with a sharper promise turns a crowded market into a beachhead.",
		steps: []string{
			"Map the top competitors' positioning from the cited listings",
			"Pick one underserved segment and rewrite the offer for it",
			"Price against the gap rather than against the leaders",
		},
		experiment: models.Experiment{
			Hypothesis:       "A segment-specific offer outperforms the generic one in reply rate",
			Metric:           "cold_outreach_reply_rate",
			TimeToImpactDays: 28,
			CostBand:         "mid",
		},
	},
	models.FactorDifferentiation: {
		title:     "Make the differentiator demonstrable in one sentence",
		rationale: "Coverage of this space is homogeneous. A claim that can be demoed, benchmarked, or guaranteed stands out where feature lists do not.",
		steps: []string{
			"List every competing claim from the cited coverage",
			"Pick one dimension none of them can credibly claim",
			"Build a public side-by-side demo of that dimension",
		},
		experiment: models.Experiment{
			Hypothesis:       "A demoable differentiator doubles demo-request conversion",
			Metric:           "demo_request_rate",
			TimeToImpactDays: 30,
			CostBand:         "mid",
		},
	},
	models.FactorDistribution: {
		title:     "Prove one repeatable acquisition channel",
		rationale: "Channel signals show weak distribution readiness. One channel with predictable unit economics beats presence on five.",
		steps: []string{
			"Rank candidate channels by the affinity shown in the evidence",
			"Spend two weeks and a fixed budget on the top channel only",
			"Track cost per qualified lead against the price point",
		},
		experiment: models.Experiment{
			Hypothesis:       "The top channel yields qualified leads under a third of the price point",
			Metric:           "cost_per_qualified_lead",
			TimeToImpactDays: 14,
			CostBand:         "mid",
		},
	},
}

// Recommend produces an ordered list of improvements for every factor
// scoring below target. Output is deterministic: sorted by estimated
// delta descending, confidence on ties, then factor name.
func Recommend(card models.Scorecard, results map[models.Source]models.SourceResult, target float64) []models.Improvement {
	if target <= 0 {
		target = DefaultTargetScore
	}

	var improvements []models.Improvement
	for _, factor := range models.AllFactors() {
		score, ok := card.Breakdown[factor]
		if !ok {
			score = scoring.NeutralScore
		}
		if score >= target {
			continue
		}

		citations := factorCitations(factor, results)
		confidence := factorConfidence(factor, results)
		delta := estimateDelta(target, score, len(citations))

		pb := playbooks[factor]
		improvements = append(improvements, models.Improvement{
			Factor:         factor,
			Title:          pb.title,
			Rationale:      pb.rationale,
			EstimatedDelta: delta,
			Confidence:     confidence,
			Steps:          pb.steps,
			Experiment:     pb.experiment,
			Citations:      citations,
		})
	}

	sort.SliceStable(improvements, func(i, j int) bool {
		if improvements[i].EstimatedDelta != improvements[j].EstimatedDelta {
			return improvements[i].EstimatedDelta > improvements[j].EstimatedDelta
		}
		if improvements[i].Confidence != improvements[j].Confidence {
			return improvements[i].Confidence.Rank() > improvements[j].Confidence.Rank()
		}
		return improvements[i].Factor < improvements[j].Factor
	})
	return improvements
}

// estimateDelta scales the gap to target by evidence strength: a
// well-evidenced recommendation promises more of the gap than a
// speculative one. Always at least one point.
func estimateDelta(target, score float64, citationCount int) int {
	evidence := math.Min(1, float64(citationCount)/4)
	delta := int(math.Round((target - score) * (0.25 + 0.15*evidence)))
	if delta < 1 {
		delta = 1
	}
	return delta
}

// factorConfidence grades a factor by the best state of the sources
// authoritative for it.
func factorConfidence(factor models.Factor, results map[models.Source]models.SourceResult) models.Confidence {
	confidence := models.ConfidenceLow
	for _, source := range scoring.FactorSources(factor) {
		res, ok := results[source]
		if !ok {
			continue
		}
		switch res.Status {
		case models.StatusOK:
			if len(res.Citations) > 0 {
				return models.ConfidenceHigh
			}
			confidence = models.ConfidenceMed
		case models.StatusDegraded:
			if confidence.Rank() < models.ConfidenceMed.Rank() {
				confidence = models.ConfidenceMed
			}
		}
	}
	return confidence
}

// factorCitations collects supporting citations from the factor's
// authoritative sources, deduplicated by URL in stable order.
func factorCitations(factor models.Factor, results map[models.Source]models.SourceResult) []models.Citation {
	var citations []models.Citation
	seen := make(map[string]bool)
	for _, source := range scoring.FactorSources(factor) {
		res, ok := results[source]
		if !ok || res.Status == models.StatusUnavailable {
			continue
		}
		for _, c := range res.Citations {
			key := fmt.Sprintf("%s|%s", c.Source, c.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			citations = append(citations, c)
		}
	}
	return citations
}

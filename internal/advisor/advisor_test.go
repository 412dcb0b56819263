package advisor

import (
	"testing"
	"time"

	"github.com/ideascope/ideascope/internal/models"
)

func cardWith(scores map[models.Factor]float64) models.Scorecard {
	breakdown := make(map[models.Factor]float64)
	for _, f := range models.AllFactors() {
		breakdown[f] = 80 // above target unless overridden
	}
	for f, v := range scores {
		breakdown[f] = v
	}
	return models.Scorecard{Composite: 70, Breakdown: breakdown, ComputedAt: time.Now()}
}

func citation(source models.Source, url string) models.Citation {
	return models.Citation{Source: source, URL: url, FetchedAtISO: "2026-08-01T12:00:00Z"}
}

func TestRecommendTargetsWeakFactorsOnly(t *testing.T) {
	card := cardWith(map[models.Factor]float64{
		models.FactorDemand:       40,
		models.FactorDistribution: 65,
	})
	improvements := Recommend(card, nil, DefaultTargetScore)

	if len(improvements) != 2 {
		t.Fatalf("got %d improvements, want 2", len(improvements))
	}
	targeted := map[models.Factor]bool{}
	for _, imp := range improvements {
		targeted[imp.Factor] = true
		if imp.Title == "" || imp.Rationale == "" || len(imp.Steps) == 0 {
			t.Errorf("improvement for %s missing playbook content", imp.Factor)
		}
		if imp.Experiment.Hypothesis == "" || imp.Experiment.Metric == "" {
			t.Errorf("improvement for %s missing experiment design", imp.Factor)
		}
		if imp.EstimatedDelta < 1 {
			t.Errorf("improvement for %s delta = %d, want >= 1", imp.Factor, imp.EstimatedDelta)
		}
	}
	if !targeted[models.FactorDemand] || !targeted[models.FactorDistribution] {
		t.Errorf("wrong factors targeted: %v", targeted)
	}
}

func TestRecommendOrdering(t *testing.T) {
	card := cardWith(map[models.Factor]float64{
		models.FactorDemand:        30, // biggest gap, biggest delta
		models.FactorPainIntensity: 50,
		models.FactorDistribution:  69, // smallest gap
	})
	improvements := Recommend(card, nil, DefaultTargetScore)

	if len(improvements) != 3 {
		t.Fatalf("got %d improvements, want 3", len(improvements))
	}
	for i := 1; i < len(improvements); i++ {
		prev, cur := improvements[i-1], improvements[i]
		if cur.EstimatedDelta > prev.EstimatedDelta {
			t.Errorf("improvements out of order: delta %d before %d", prev.EstimatedDelta, cur.EstimatedDelta)
		}
		if cur.EstimatedDelta == prev.EstimatedDelta && cur.Confidence.Rank() > prev.Confidence.Rank() {
			t.Errorf("equal-delta improvements out of confidence order")
		}
	}
	if improvements[0].Factor != models.FactorDemand {
		t.Errorf("first improvement = %s, want demand (largest gap)", improvements[0].Factor)
	}
}

func TestRecommendConfidence(t *testing.T) {
	tests := []struct {
		name    string
		results map[models.Source]models.SourceResult
		want    models.Confidence
	}{
		{
			name: "ok source with citations",
			results: map[models.Source]models.SourceResult{
				models.SourceReddit: {
					Source: models.SourceReddit, Status: models.StatusOK,
					Citations: []models.Citation{citation(models.SourceReddit, "https://example.com/1")},
				},
			},
			want: models.ConfidenceHigh,
		},
		{
			name: "ok source without citations",
			results: map[models.Source]models.SourceResult{
				models.SourceReddit: {Source: models.SourceReddit, Status: models.StatusOK},
			},
			want: models.ConfidenceMed,
		},
		{
			name: "degraded source",
			results: map[models.Source]models.SourceResult{
				models.SourceTwitter: {Source: models.SourceTwitter, Status: models.StatusDegraded},
			},
			want: models.ConfidenceMed,
		},
		{
			name: "all relevant sources unavailable",
			results: map[models.Source]models.SourceResult{
				models.SourceReddit:  {Source: models.SourceReddit, Status: models.StatusUnavailable},
				models.SourceTwitter: {Source: models.SourceTwitter, Status: models.StatusUnavailable},
			},
			want: models.ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := cardWith(map[models.Factor]float64{models.FactorPainIntensity: 40})
			improvements := Recommend(card, tt.results, DefaultTargetScore)
			if len(improvements) != 1 {
				t.Fatalf("got %d improvements, want 1", len(improvements))
			}
			if improvements[0].Confidence != tt.want {
				t.Errorf("confidence = %q, want %q", improvements[0].Confidence, tt.want)
			}
		})
	}
}

func TestRecommendEvidenceScalesDelta(t *testing.T) {
	card := cardWith(map[models.Factor]float64{models.FactorPainIntensity: 40})

	bare := Recommend(card, nil, DefaultTargetScore)
	evidenced := Recommend(card, map[models.Source]models.SourceResult{
		models.SourceReddit: {
			Source: models.SourceReddit, Status: models.StatusOK,
			Citations: []models.Citation{
				citation(models.SourceReddit, "https://example.com/1"),
				citation(models.SourceReddit, "https://example.com/2"),
				citation(models.SourceReddit, "https://example.com/3"),
				citation(models.SourceReddit, "https://example.com/4"),
			},
		},
	}, DefaultTargetScore)

	if len(bare) != 1 || len(evidenced) != 1 {
		t.Fatalf("got %d and %d improvements, want 1 each", len(bare), len(evidenced))
	}
	if evidenced[0].EstimatedDelta <= bare[0].EstimatedDelta {
		t.Errorf("evidenced delta %d not greater than bare delta %d",
			evidenced[0].EstimatedDelta, bare[0].EstimatedDelta)
	}
	if len(evidenced[0].Citations) != 4 {
		t.Errorf("got %d citations attached, want 4", len(evidenced[0].Citations))
	}
}

func TestRecommendAllStrongFactors(t *testing.T) {
	card := cardWith(nil) // everything at 80
	if improvements := Recommend(card, nil, DefaultTargetScore); len(improvements) != 0 {
		t.Errorf("got %d improvements for a strong scorecard, want 0", len(improvements))
	}
}

func TestRecommendDeterministic(t *testing.T) {
	card := cardWith(map[models.Factor]float64{
		models.FactorDemand:          40,
		models.FactorPainIntensity:   40,
		models.FactorCompetitionGap:  40,
		models.FactorDifferentiation: 40,
		models.FactorDistribution:    40,
	})
	first := Recommend(card, nil, DefaultTargetScore)
	second := Recommend(card, nil, DefaultTargetScore)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Factor != second[i].Factor {
			t.Errorf("position %d differs: %s vs %s", i, first[i].Factor, second[i].Factor)
		}
	}
}

package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/server"
)

func renderValidation(v server.ValidationResponse) {
	fmt.Printf("Validation %s\n", v.Session.ID)
	fmt.Printf("Idea: %s\n\n", v.Session.Idea)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tCITATIONS\tNOTE")
	for _, source := range models.AllSources() {
		res, ok := v.Results[source]
		if !ok {
			continue
		}
		note := res.Error
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", source, res.Status, len(res.Citations), note)
	}
	_ = w.Flush()

	fmt.Println()
	renderScorecard(v.Scorecard)
}

func renderScorecard(card models.Scorecard) {
	fmt.Printf("Composite score: %d/100\n", card.Composite)

	factors := make([]models.Factor, 0, len(card.Breakdown))
	for f := range card.Breakdown {
		factors = append(factors, f)
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i] < factors[j] })

	neutral := make(map[models.Factor]bool, len(card.Neutral))
	for _, f := range card.Neutral {
		neutral[f] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FACTOR\tSCORE\t")
	for _, f := range factors {
		marker := ""
		if neutral[f] {
			marker = "(no evidence)"
		}
		fmt.Fprintf(w, "%s\t%.1f\t%s\n", f, card.Breakdown[f], marker)
	}
	_ = w.Flush()
}

func renderImprovements(improvements []models.Improvement) {
	if len(improvements) == 0 {
		fmt.Println("No improvements suggested: every factor meets the target.")
		return
	}

	for i, imp := range improvements {
		fmt.Printf("%d. [%s] %s (+%d, %s confidence)\n", i+1, imp.Factor, imp.Title, imp.EstimatedDelta, imp.Confidence)
		fmt.Printf("   %s\n", imp.Rationale)
		for _, step := range imp.Steps {
			fmt.Printf("   - %s\n", step)
		}
		fmt.Printf("   Experiment: %s (measure %s, ~%d days, %s cost)\n",
			imp.Experiment.Hypothesis, imp.Experiment.Metric,
			imp.Experiment.TimeToImpactDays, imp.Experiment.CostBand)
		if i < len(improvements)-1 {
			fmt.Println()
		}
	}
}

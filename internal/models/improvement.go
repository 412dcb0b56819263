package models

// Experiment is the cheapest test that would move one factor.
type Experiment struct {
	Hypothesis       string `json:"hypothesis"`
	Metric           string `json:"metric"`
	TimeToImpactDays int    `json:"timeToImpactDays"`
	CostBand         string `json:"costBand"`
}

// Improvement is one recommended action against a weak factor.
// Improvements are derived from a scorecard on demand and never stored.
type Improvement struct {
	Factor         Factor     `json:"factor"`
	Title          string     `json:"title"`
	Rationale      string     `json:"rationale"`
	EstimatedDelta int        `json:"estimatedDelta"`
	Confidence     Confidence `json:"confidence"`
	Steps          []string   `json:"steps"`
	Experiment     Experiment `json:"experiment"`
	Citations      []Citation `json:"citations,omitempty"`
}

package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Citation points at one piece of upstream evidence. FetchedAtISO is an
// ISO-8601 string because that is the wire format the dashboard consumes.
type Citation struct {
	Source       Source `json:"source"`
	URL          string `json:"url"`
	FetchedAtISO string `json:"fetchedAtISO"`
}

// SubMetrics holds the normalized 0-100 signals one source contributes.
// Fields are pointers so that an absent metric is distinguishable from a
// measured zero; a source only sets the fields it is authoritative for.
type SubMetrics struct {
	Interest              *float64 `json:"interest,omitempty"`
	Velocity              *float64 `json:"velocity,omitempty"`
	PainDensity           *float64 `json:"painDensity,omitempty"`
	CompetitorStrength    *float64 `json:"competitorStrength,omitempty"`
	Differentiation       *float64 `json:"differentiation,omitempty"`
	DistributionReadiness *float64 `json:"distributionReadiness,omitempty"`

	TopPainPhrases []string `json:"topPainPhrases,omitempty"`
}

// SourceResult is the outcome of one fetch against one source. Results
// are replaced wholesale on refresh, never mutated in place.
type SourceResult struct {
	Source    Source          `json:"source"`
	Status    SourceStatus    `json:"status"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Metrics   SubMetrics      `json:"metrics"`
	Citations []Citation      `json:"citations,omitempty"`
	Error     string          `json:"error,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Validate checks result field constraints.
func (r *SourceResult) Validate() error {
	if _, err := ParseSource(string(r.Source)); err != nil {
		return err
	}
	switch r.Status {
	case StatusFetching, StatusOK, StatusDegraded, StatusUnavailable:
	default:
		return errors.New("unknown source status")
	}
	if r.Status.Terminal() && r.FetchedAt.IsZero() {
		return errors.New("terminal result must carry a fetch time")
	}
	if r.Status == StatusUnavailable && r.Error == "" {
		return errors.New("unavailable result must carry an error")
	}
	return r.Metrics.validate()
}

func (m *SubMetrics) validate() error {
	for _, v := range []*float64{
		m.Interest,
		m.Velocity,
		m.PainDensity,
		m.CompetitorStrength,
		m.Differentiation,
		m.DistributionReadiness,
	} {
		if v == nil {
			continue
		}
		if *v < 0 || *v > 100 {
			return errors.New("metric must be between 0 and 100")
		}
	}
	return nil
}

// Ptr returns a pointer to v, for populating optional metric fields.
func Ptr(v float64) *float64 {
	return &v
}

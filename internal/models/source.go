package models

import (
	"errors"
	"fmt"
	"strings"
)

// Source identifies one external signal source consulted during validation.
type Source string

const (
	SourceSearch   Source = "search"
	SourceTrends   Source = "trends"
	SourceReddit   Source = "reddit"
	SourceYouTube  Source = "youtube"
	SourceTwitter  Source = "twitter"
	SourceTikTok   Source = "tiktok"
	SourceCommerce Source = "commerce"
)

// ErrUnknownSource is returned when a source name cannot be resolved.
// An unresolvable source is a caller bug, never silently skipped.
var ErrUnknownSource = errors.New("unknown source")

// sourceAliases maps legacy and colloquial names onto canonical sources.
var sourceAliases = map[string]Source{
	"forums":    SourceReddit,
	"x":         SourceTwitter,
	"video":     SourceYouTube,
	"shortform": SourceTikTok,
	"shopping":  SourceCommerce,
}

// AllSources returns the canonical sources in stable order.
func AllSources() []Source {
	return []Source{
		SourceSearch,
		SourceTrends,
		SourceReddit,
		SourceYouTube,
		SourceTwitter,
		SourceTikTok,
		SourceCommerce,
	}
}

// Valid reports whether s is one of the canonical sources. Aliases
// are not valid here; resolve them with ParseSource first.
func (s Source) Valid() bool {
	for _, src := range AllSources() {
		if s == src {
			return true
		}
	}
	return false
}

// ParseSource resolves a source name or alias to its canonical form.
func ParseSource(s string) (Source, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, src := range AllSources() {
		if name == string(src) {
			return src, nil
		}
	}
	if src, ok := sourceAliases[name]; ok {
		return src, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// SourceStatus tracks the lifecycle of a single source fetch.
// A result starts as fetching and transitions exactly once to a
// terminal status; a refresh creates a new result rather than
// reviving the old one.
type SourceStatus string

const (
	StatusFetching    SourceStatus = "fetching"
	StatusOK          SourceStatus = "ok"
	StatusDegraded    SourceStatus = "degraded"
	StatusUnavailable SourceStatus = "unavailable"
)

// Terminal reports whether the status is final for this fetch.
func (s SourceStatus) Terminal() bool {
	return s == StatusOK || s == StatusDegraded || s == StatusUnavailable
}

// Factor names one of the five scored dimensions of an idea.
type Factor string

const (
	FactorDemand          Factor = "demand"
	FactorPainIntensity   Factor = "pain_intensity"
	FactorCompetitionGap  Factor = "competition_gap"
	FactorDifferentiation Factor = "differentiation"
	FactorDistribution    Factor = "distribution"
)

// AllFactors returns the five factors in canonical order.
func AllFactors() []Factor {
	return []Factor{
		FactorDemand,
		FactorPainIntensity,
		FactorCompetitionGap,
		FactorDifferentiation,
		FactorDistribution,
	}
}

// Confidence grades how much evidence backs a recommendation.
type Confidence string

const (
	ConfidenceLow  Confidence = "low"
	ConfidenceMed  Confidence = "med"
	ConfidenceHigh Confidence = "high"
)

// Rank orders confidences for sorting, highest first.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMed:
		return 1
	default:
		return 0
	}
}

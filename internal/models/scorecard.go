package models

import (
	"errors"
	"math"
	"time"
)

// SubScores maps each factor to its merged 0-100 score. A factor absent
// from the map received no contribution from any source, which is not
// the same as scoring zero.
type SubScores map[Factor]float64

// Scorecard is the scored outcome of a validation. Breakdown holds the
// refined per-factor scores that produced the composite; Neutral lists
// factors that fell back to the neutral default for lack of evidence.
type Scorecard struct {
	Composite  int                `json:"composite"`
	Breakdown  map[Factor]float64 `json:"breakdown"`
	Neutral    []Factor           `json:"neutralFactors,omitempty"`
	ComputedAt time.Time          `json:"computedAt"`
}

// ClampScore bounds v to the 0-100 score scale.
func ClampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Channel names the acquisition channels a refinement can weight.
var Channels = []string{"search", "social", "community", "video", "marketplace"}

// Refinement narrows who the idea is for and how it reaches them.
// Editing a refinement re-scores the existing evidence without touching
// any source result.
type Refinement struct {
	AgeMin         int                `json:"ageMin,omitempty"`
	AgeMax         int                `json:"ageMax,omitempty"`
	PricePoint     float64            `json:"pricePoint,omitempty"`
	Region         string             `json:"region,omitempty"`
	ChannelWeights map[string]float64 `json:"channelWeights,omitempty"`
	B2B            bool               `json:"b2b"`
	Premium        bool               `json:"premium"`
	Niche          bool               `json:"niche"`
}

// Validate checks refinement field constraints.
func (r *Refinement) Validate() error {
	if r.AgeMin < 0 {
		return errors.New("age min must not be negative")
	}
	if r.AgeMax != 0 && r.AgeMax < r.AgeMin {
		return errors.New("age max must be >= age min")
	}
	if r.PricePoint < 0 {
		return errors.New("price point must not be negative")
	}
	for name, w := range r.ChannelWeights {
		if !knownChannel(name) {
			return errors.New("unknown channel: " + name)
		}
		if w < 0 {
			return errors.New("channel weight must not be negative")
		}
	}
	return nil
}

// NormalizeChannels rescales channel weights to sum to 1.0. A nil or
// all-zero map is left nil, meaning equal weighting downstream.
func (r *Refinement) NormalizeChannels() {
	if len(r.ChannelWeights) == 0 {
		r.ChannelWeights = nil
		return
	}
	var sum float64
	for _, w := range r.ChannelWeights {
		sum += w
	}
	if sum <= 0 {
		r.ChannelWeights = nil
		return
	}
	for name, w := range r.ChannelWeights {
		r.ChannelWeights[name] = w / sum
	}
}

func knownChannel(name string) bool {
	for _, c := range Channels {
		if c == name {
			return true
		}
	}
	return false
}

package models

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Source
		wantErr bool
	}{
		{name: "canonical", in: "reddit", want: SourceReddit},
		{name: "upper case", in: "Trends", want: SourceTrends},
		{name: "surrounding space", in: " commerce ", want: SourceCommerce},
		{name: "forums alias", in: "forums", want: SourceReddit},
		{name: "x alias", in: "x", want: SourceTwitter},
		{name: "shortform alias", in: "shortform", want: SourceTikTok},
		{name: "unknown", in: "myspace", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSource(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSource(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrUnknownSource) {
					t.Errorf("ParseSource(%q) error = %v, want ErrUnknownSource", tt.in, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseSource(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSessionValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		session Session
		wantErr bool
	}{
		{
			name: "valid session",
			session: Session{
				ID:        "b2f6a9e4-1111-2222-3333-444455556666",
				Idea:      "AI-assisted meal planning for shift workers",
				CreatedAt: now.Add(-time.Minute),
				UpdatedAt: now,
			},
			wantErr: false,
		},
		{
			name: "empty ID",
			session: Session{
				Idea:      "AI-assisted meal planning for shift workers",
				CreatedAt: now,
				UpdatedAt: now,
			},
			wantErr: true,
		},
		{
			name: "blank idea",
			session: Session{
				ID:        "b2f6a9e4-1111-2222-3333-444455556666",
				Idea:      "   ",
				CreatedAt: now,
				UpdatedAt: now,
			},
			wantErr: true,
		},
		{
			name: "updated before created",
			session: Session{
				ID:        "b2f6a9e4-1111-2222-3333-444455556666",
				Idea:      "AI-assisted meal planning for shift workers",
				CreatedAt: now,
				UpdatedAt: now.Add(-time.Hour),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Session.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSourceQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   SourceQuery
		wantErr bool
	}{
		{
			name:    "valid query",
			query:   SourceQuery{Source: SourceSearch, Idea: "niche CRM for dog groomers"},
			wantErr: false,
		},
		{
			name:    "blank idea",
			query:   SourceQuery{Source: SourceSearch, Idea: "\t"},
			wantErr: true,
		},
		{
			name:    "unknown source",
			query:   SourceQuery{Source: Source("usenet"), Idea: "niche CRM for dog groomers"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("SourceQuery.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSourceResultValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		result  SourceResult
		wantErr bool
	}{
		{
			name: "valid ok result",
			result: SourceResult{
				Source:    SourceTrends,
				Status:    StatusOK,
				Metrics:   SubMetrics{Interest: Ptr(62.5), Velocity: Ptr(58)},
				FetchedAt: now,
			},
			wantErr: false,
		},
		{
			name:    "fetching needs no fetch time",
			result:  SourceResult{Source: SourceTrends, Status: StatusFetching},
			wantErr: false,
		},
		{
			name: "unavailable without error",
			result: SourceResult{
				Source:    SourceTrends,
				Status:    StatusUnavailable,
				FetchedAt: now,
			},
			wantErr: true,
		},
		{
			name: "terminal without fetch time",
			result: SourceResult{
				Source: SourceTrends,
				Status: StatusOK,
			},
			wantErr: true,
		},
		{
			name: "metric out of range",
			result: SourceResult{
				Source:    SourceTrends,
				Status:    StatusOK,
				Metrics:   SubMetrics{Interest: Ptr(140)},
				FetchedAt: now,
			},
			wantErr: true,
		},
		{
			name: "unknown status",
			result: SourceResult{
				Source:    SourceTrends,
				Status:    SourceStatus("pending"),
				FetchedAt: now,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("SourceResult.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusFetching.Terminal() {
		t.Error("fetching must not be terminal")
	}
	for _, s := range []SourceStatus{StatusOK, StatusDegraded, StatusUnavailable} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestRefinementValidate(t *testing.T) {
	tests := []struct {
		name       string
		refinement Refinement
		wantErr    bool
	}{
		{
			name: "valid refinement",
			refinement: Refinement{
				AgeMin:         25,
				AgeMax:         40,
				PricePoint:     49,
				Region:         "EU",
				ChannelWeights: map[string]float64{"search": 2, "video": 1},
				Premium:        true,
			},
			wantErr: false,
		},
		{
			name:       "age max below min",
			refinement: Refinement{AgeMin: 40, AgeMax: 25},
			wantErr:    true,
		},
		{
			name:       "negative price",
			refinement: Refinement{PricePoint: -5},
			wantErr:    true,
		},
		{
			name:       "unknown channel",
			refinement: Refinement{ChannelWeights: map[string]float64{"billboards": 1}},
			wantErr:    true,
		},
		{
			name:       "negative channel weight",
			refinement: Refinement{ChannelWeights: map[string]float64{"search": -1}},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.refinement.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Refinement.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeChannels(t *testing.T) {
	r := Refinement{ChannelWeights: map[string]float64{
		"search": 0.2,
		"social": 0.2,
		"video":  0.2,
	}}
	// Simulate a single-channel edit that breaks the sum.
	r.ChannelWeights["search"] = 0.9
	r.NormalizeChannels()

	var sum float64
	for _, w := range r.ChannelWeights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("channel weights sum = %v, want 1.0 within 1e-6", sum)
	}
	if r.ChannelWeights["search"] <= r.ChannelWeights["social"] {
		t.Error("edited channel must keep its relative dominance after renormalization")
	}

	empty := Refinement{ChannelWeights: map[string]float64{"search": 0, "video": 0}}
	empty.NormalizeChannels()
	if empty.ChannelWeights != nil {
		t.Error("all-zero weights must reset to nil (equal weighting)")
	}

	var untouched Refinement
	untouched.NormalizeChannels()
	if untouched.ChannelWeights != nil {
		t.Error("nil weights must stay nil")
	}
}

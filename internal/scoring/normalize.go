package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ideascope/ideascope/internal/models"
)

// Per-source payload shapes returned by the analysis backend. Each
// normalizer decodes only its own shape; there is no speculative field
// probing across sources.

// SearchPayload is the search-signals function's result.
type SearchPayload struct {
	TotalResults       float64  `json:"totalResults"`
	DomainAuthorityAvg float64  `json:"domainAuthorityAvg"`
	PaidCompetition    float64  `json:"paidCompetition"`
	TopDomains         []string `json:"topDomains"`
}

// TrendsPayload is the trend-velocity function's result.
type TrendsPayload struct {
	InterestOverTime []float64 `json:"interestOverTime"`
	Velocity         float64   `json:"velocity"`
	BreakoutTerms    []string  `json:"breakoutTerms"`
}

// CommunityPayload is the community-pain function's result.
type CommunityPayload struct {
	PainMentions float64 `json:"painMentions"`
	SampleSize   float64 `json:"sampleSize"`
	Threads      []struct {
		Title   string   `json:"title"`
		Phrases []string `json:"phrases"`
		Score   float64  `json:"score"`
	} `json:"threads"`
}

// CreatorPayload is the creator-coverage function's result.
type CreatorPayload struct {
	TotalViews           float64 `json:"totalViews"`
	ChannelConcentration float64 `json:"channelConcentration"`
	Videos               []struct {
		Title string  `json:"title"`
		Views float64 `json:"views"`
	} `json:"videos"`
}

// SocialPayload is the social-buzz function's result.
type SocialPayload struct {
	Mentions       float64 `json:"mentions"`
	NegativeShare  float64 `json:"negativeShare"`
	DistinctAngles float64 `json:"distinctAngles"`
}

// ShortformPayload is the shortform-buzz function's result.
type ShortformPayload struct {
	HashtagViews  float64 `json:"hashtagViews"`
	CreatorCount  float64 `json:"creatorCount"`
	AvgCompletion float64 `json:"avgCompletion"`
}

// CommercePayload is the commerce-competitors function's result.
type CommercePayload struct {
	Listings       float64 `json:"listings"`
	AvgReviewCount float64 `json:"avgReviewCount"`
	AvgRating      float64 `json:"avgRating"`
	PriceSpread    float64 `json:"priceSpread"`
}

// Reference volumes for log-scale normalization. A source reading at the
// reference maps to 100; everything scales logarithmically below it.
const (
	refSearchResults = 5_000_000
	refCreatorViews  = 10_000_000
	refHashtagViews  = 100_000_000
	refCreatorCount  = 500
	refAngleCount    = 20
	refListings      = 2_000
	refReviewCount   = 5_000
)

// Normalize maps one source's raw payload into the shared sub-metric
// vocabulary. It is a pure function: the same bytes always produce the
// same metrics. A decode failure means the source answered with
// something unusable, which callers treat as degraded, not fatal.
func Normalize(source models.Source, raw json.RawMessage) (models.SubMetrics, error) {
	switch source {
	case models.SourceSearch:
		return normalizeSearch(raw)
	case models.SourceTrends:
		return normalizeTrends(raw)
	case models.SourceReddit:
		return normalizeCommunity(raw)
	case models.SourceYouTube:
		return normalizeCreator(raw)
	case models.SourceTwitter:
		return normalizeSocial(raw)
	case models.SourceTikTok:
		return normalizeShortform(raw)
	case models.SourceCommerce:
		return normalizeCommerce(raw)
	default:
		return models.SubMetrics{}, fmt.Errorf("%w: %q", models.ErrUnknownSource, source)
	}
}

func normalizeSearch(raw json.RawMessage) (models.SubMetrics, error) {
	var p SearchPayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	interest := logScale(p.TotalResults, refSearchResults)
	// Authority of ranking domains and paid bid density both signal how
	// entrenched incumbents are.
	strength := models.ClampScore(0.6*models.ClampScore(p.DomainAuthorityAvg) + 0.4*models.ClampScore(p.PaidCompetition))
	return models.SubMetrics{
		Interest:           models.Ptr(interest),
		CompetitorStrength: models.Ptr(strength),
	}, nil
}

func normalizeTrends(raw json.RawMessage) (models.SubMetrics, error) {
	var p TrendsPayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	interest := models.ClampScore(recentMean(p.InterestOverTime, 4))
	velocity := models.ClampScore(50 + p.Velocity)
	return models.SubMetrics{
		Interest: models.Ptr(interest),
		Velocity: models.Ptr(velocity),
	}, nil
}

func normalizeCommunity(raw json.RawMessage) (models.SubMetrics, error) {
	var p CommunityPayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	var density float64
	if p.SampleSize > 0 {
		// Mention share saturates at 1 in 5 threads voicing the pain.
		density = models.ClampScore(p.PainMentions / p.SampleSize * 500)
	}
	return models.SubMetrics{
		PainDensity:    models.Ptr(density),
		TopPainPhrases: topPhrases(p, 5),
	}, nil
}

func normalizeCreator(raw json.RawMessage) (models.SubMetrics, error) {
	var p CreatorPayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	reach := logScale(p.TotalViews, refCreatorViews)
	// A topic dominated by one channel leaves more room to stand out
	// than one covered evenly by many.
	diff := models.ClampScore((1 - clamp01(p.ChannelConcentration)) * 100)
	return models.SubMetrics{
		DistributionReadiness: models.Ptr(reach),
		Differentiation:       models.Ptr(diff),
	}, nil
}

func normalizeSocial(raw json.RawMessage) (models.SubMetrics, error) {
	var p SocialPayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	pain := models.ClampScore(clamp01(p.NegativeShare) * 100)
	diff := ratioScale(p.DistinctAngles, refAngleCount)
	return models.SubMetrics{
		PainDensity:     models.Ptr(pain),
		Differentiation: models.Ptr(diff),
	}, nil
}

func normalizeShortform(raw json.RawMessage) (models.SubMetrics, error) {
	var p ShortformPayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	reach := logScale(p.HashtagViews, refHashtagViews)
	interest := ratioScale(p.CreatorCount, refCreatorCount)
	return models.SubMetrics{
		DistributionReadiness: models.Ptr(reach),
		Interest:              models.Ptr(interest),
	}, nil
}

func normalizeCommerce(raw json.RawMessage) (models.SubMetrics, error) {
	var p CommercePayload
	if err := decode(raw, &p); err != nil {
		return models.SubMetrics{}, err
	}
	saturation := models.ClampScore(
		0.5*ratioScale(p.Listings, refListings) + 0.5*ratioScale(p.AvgReviewCount, refReviewCount))
	// A marketplace with many reviewed, well-rated listings is mature:
	// crowded, but proven as a distribution channel.
	maturity := models.ClampScore(0.7*saturation + 0.3*models.ClampScore(p.AvgRating/5*100))
	return models.SubMetrics{
		CompetitorStrength:    models.Ptr(saturation),
		DistributionReadiness: models.Ptr(maturity),
	}, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// logScale maps v onto [0,100] logarithmically against a reference
// volume, so the difference between 1k and 10k matters more than the
// difference between 1M and 2M.
func logScale(v, ref float64) float64 {
	if v <= 0 || ref <= 0 {
		return 0
	}
	return models.ClampScore(100 * math.Log10(1+v) / math.Log10(1+ref))
}

// ratioScale maps v linearly onto [0,100] against a saturation
// threshold; anything at or above the threshold scores 100.
func ratioScale(v, threshold float64) float64 {
	if v <= 0 || threshold <= 0 {
		return 0
	}
	return models.ClampScore(v / threshold * 100)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func recentMean(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if window > len(series) {
		window = len(series)
	}
	var sum float64
	for _, v := range series[len(series)-window:] {
		sum += v
	}
	return sum / float64(window)
}

func topPhrases(p CommunityPayload, limit int) []string {
	type scored struct {
		phrase string
		score  float64
	}
	var all []scored
	seen := make(map[string]bool)
	for _, t := range p.Threads {
		for _, phrase := range t.Phrases {
			if phrase == "" || seen[phrase] {
				continue
			}
			seen[phrase] = true
			all = append(all, scored{phrase: phrase, score: t.Score})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].phrase < all[j].phrase
	})
	if len(all) > limit {
		all = all[:limit]
	}
	phrases := make([]string, 0, len(all))
	for _, s := range all {
		phrases = append(phrases, s.phrase)
	}
	return phrases
}

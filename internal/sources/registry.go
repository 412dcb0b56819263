// Package sources owns live validation runs: it fans out one backend
// call per source, tracks per-source status, and keeps the derived
// scorecard current as results land.
package sources

import (
	"fmt"

	"github.com/ideascope/ideascope/internal/models"
)

// functions maps each canonical source to its backend analysis
// function. A source missing from this table is a programming error
// surfaced through FunctionFor, never a silent skip.
var functions = map[models.Source]string{
	models.SourceSearch:   "search-signals",
	models.SourceTrends:   "trend-velocity",
	models.SourceReddit:   "community-pain",
	models.SourceYouTube:  "creator-coverage",
	models.SourceTwitter:  "social-buzz",
	models.SourceTikTok:   "shortform-buzz",
	models.SourceCommerce: "commerce-competitors",
}

// FunctionFor resolves the backend function that serves one source.
func FunctionFor(source models.Source) (string, error) {
	fn, ok := functions[source]
	if !ok {
		return "", fmt.Errorf("%w: %q has no backend function", models.ErrUnknownSource, source)
	}
	return fn, nil
}

// invokePayload is the request body every source function accepts.
type invokePayload struct {
	Idea        string            `json:"idea"`
	Assumptions map[string]string `json:"assumptions,omitempty"`
}

// resultEnvelope carries the fields shared by every source function's
// response alongside its source-specific payload.
type resultEnvelope struct {
	Partial   bool              `json:"partial"`
	Coverage  *float64          `json:"coverage"` // nil means the function reported no coverage gap
	Citations []models.Citation `json:"citations"`
}

// degradedCoverage is the coverage floor below which a responding
// source is treated as degraded rather than ok.
const degradedCoverage = 0.5

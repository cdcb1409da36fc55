// Package narrative retrieves free-text species summaries from an
// encyclopedic source. It is an independent failure domain from the
// taxonomy resolver: the two sources disagree on canonicalization and are
// never joined on identifiers, only on scientific-name text.
package narrative

import (
	"context"

	"github.com/sisigoks/plantverse-go/internal/species"
)

// Record is one fetched narrative. A nil *Record from Fetch means the
// source had no matching article, which is a normal outcome.
type Record struct {
	Title       string `json:"title"`
	SummaryText string `json:"summary_text"`
	SourceURL   string `json:"source_url"`

	// UsesSentences holds up to five cleaned sentences from the article's
	// medicinal/traditional-use section, when one exists.
	UsesSentences []string `json:"uses_sentences,omitempty"`
}

// Fetcher retrieves a narrative record for a canonical query.
// Implementations must be safe for concurrent use. Ambiguous responses are
// resolved by exact title match or treated as not-found, never guessed.
type Fetcher interface {
	Fetch(ctx context.Context, query species.CanonicalQuery) (*Record, error)
}

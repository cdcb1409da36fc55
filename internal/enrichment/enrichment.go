// Package enrichment assembles a complete identification record by
// fanning out to independent data providers and reconciling their
// partial answers. Provider failures degrade individual fields; they
// never abort the request.
package enrichment

import (
	"github.com/sisigoks/plantverse-go/internal/narrative"
	"github.com/sisigoks/plantverse-go/internal/observations"
	"github.com/sisigoks/plantverse-go/internal/species"
	"github.com/sisigoks/plantverse-go/internal/taxonomy"
)

// Status records the outcome of one provider consultation.
type Status string

const (
	StatusOK       Status = "ok"
	StatusTimeout  Status = "timeout"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Provider keys used in EnrichedResult.ProviderStatus. A provider that
// was never consulted (no location, or no text to translate) has no key.
const (
	ProviderTaxonomy     = "taxonomy"
	ProviderNarrative    = "narrative"
	ProviderTranslation  = "translation"
	ProviderObservations = "observations"
)

// EnrichedResult is the terminal record for one request. Every field
// round-trips through JSON unchanged. Taxonomy and Narrative are nil
// when their provider had no match or failed; ProviderStatus tells the
// two cases apart.
type EnrichedResult struct {
	RequestID string        `json:"request_id"`
	Guess     species.Guess `json:"guess"`

	Taxonomy  *taxonomy.Record  `json:"taxonomy,omitempty"`
	Narrative *narrative.Record `json:"narrative,omitempty"`

	// LocalizedNarrative maps a language code to the narrative summary
	// in that language. Source-language text stays untouched in
	// Narrative.
	LocalizedNarrative map[string]string `json:"localized_narrative,omitempty"`

	// LocalizedFields carries the full per-field localization output
	// for the request's target language (summary, uses, common_name).
	LocalizedFields map[string]string `json:"localized_fields,omitempty"`

	// NearbyObservations is sorted ascending by distance and holds no
	// duplicate observation IDs. Empty, never nil.
	NearbyObservations []observations.Record `json:"nearby_observations"`

	ProviderStatus map[string]Status `json:"provider_status"`
}

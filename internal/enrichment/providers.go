package enrichment

import (
	"github.com/sisigoks/plantverse-go/internal/classifier"
	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/narrative"
	"github.com/sisigoks/plantverse-go/internal/observations"
	"github.com/sisigoks/plantverse-go/internal/taxonomy"
	"github.com/sisigoks/plantverse-go/internal/translate"
)

// NewProviders constructs the default provider clients from settings.
// The clients are stateless and meant to be built once at process start
// and shared by every in-flight request.
func NewProviders(settings *conf.Settings) Providers {
	return Providers{
		Classifier: classifier.NewHuggingFace(&settings.Classifier),
		Resolver:   taxonomy.NewWikidata(&settings.Taxonomy),
		Fetcher:    narrative.NewWikipedia(&settings.Narrative),
		Localizer:  translate.NewGoogle(&settings.Translate),
		Locator:    observations.NewINaturalist(&settings.Observations),
	}
}

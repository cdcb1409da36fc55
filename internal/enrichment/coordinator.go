package enrichment

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sisigoks/plantverse-go/internal/classifier"
	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/logging"
	"github.com/sisigoks/plantverse-go/internal/narrative"
	"github.com/sisigoks/plantverse-go/internal/observability/metrics"
	"github.com/sisigoks/plantverse-go/internal/observations"
	"github.com/sisigoks/plantverse-go/internal/species"
	"github.com/sisigoks/plantverse-go/internal/taxonomy"
	"github.com/sisigoks/plantverse-go/internal/translate"
)

var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)
	serviceLogger, _, err = logging.NewFileLogger("logs/enrichment.log", "enrichment", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "enrichment")
	}
}

// Providers bundles the stateless provider clients the coordinator fans
// out to. All of them must be safe for concurrent use; they are
// constructed once at process start and shared across requests.
type Providers struct {
	Classifier classifier.Classifier
	Resolver   taxonomy.Resolver
	Fetcher    narrative.Fetcher
	Localizer  translate.Localizer
	Locator    observations.Locator
}

// Coordinator runs the enrichment pipeline. Each request constructs its
// own result; the coordinator itself holds no per-request state.
type Coordinator struct {
	providers       Providers
	providerTimeout time.Duration
	requestTimeout  time.Duration
	radiusKm        float64
	maxResults      int
	metrics         *metrics.EnrichmentMetrics
}

// SetMetrics attaches metric collectors. Optional; a nil receiver field
// disables recording.
func (c *Coordinator) SetMetrics(m *metrics.EnrichmentMetrics) {
	c.metrics = m
}

func NewCoordinator(settings *conf.Settings, providers Providers) *Coordinator {
	return &Coordinator{
		providers:       providers,
		providerTimeout: settings.Enrichment.ProviderTimeout,
		requestTimeout:  settings.Enrichment.RequestTimeout,
		radiusKm:        settings.Observations.RadiusKm,
		maxResults:      settings.Observations.MaxResults,
	}
}

// IdentifyAndEnrich classifies the image and enriches the resulting
// guess. Unlike provider failures downstream, a classifier failure
// aborts the whole request: without an identification there is nothing
// to enrich.
func (c *Coordinator) IdentifyAndEnrich(ctx context.Context, imageData []byte, loc *location.Coordinate, targetLanguage string) (*EnrichedResult, error) {
	guess, err := c.providers.Classifier.Classify(ctx, imageData)
	if err != nil {
		return nil, err
	}
	return c.Enrich(ctx, guess, loc, targetLanguage)
}

type taxonomyOutcome struct {
	record *taxonomy.Record
	err    error
}

type narrativeOutcome struct {
	record *narrative.Record
	err    error
}

type localizeOutcome struct {
	fields map[string]string
	err    error
}

type observationsOutcome struct {
	records []observations.Record
	err     error
}

// Enrich runs the full pipeline for one guess. It always returns a
// non-nil EnrichedResult unless the input itself is invalid; provider
// failures are absorbed into ProviderStatus.
//
// Taxonomy and narrative are consulted concurrently. The observation
// lookup starts after taxonomy resolves, so it can query by the
// canonical scientific name, and runs concurrently with localization.
func (c *Coordinator) Enrich(ctx context.Context, guess species.Guess, loc *location.Coordinate, targetLanguage string) (*EnrichedResult, error) {
	if strings.TrimSpace(guess.RawLabel) == "" {
		c.recordInputError("label")
		return nil, errors.ValidationError("identification guess has no label")
	}
	if loc != nil {
		if err := conf.ValidateCoordinate(loc.Latitude, loc.Longitude); err != nil {
			c.recordInputError("coordinate")
			return nil, errors.ValidationError("malformed coordinate (%f, %f): %v", loc.Latitude, loc.Longitude, err)
		}
	}
	lang, err := conf.NormalizeLanguage(targetLanguage)
	if err != nil {
		c.recordInputError("language")
		return nil, errors.ValidationError("unsupported language code %q", targetLanguage)
	}

	start := time.Now()

	requestID := uuid.New().String()
	reqLogger := serviceLogger.With("request_id", requestID)

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	query := species.Normalize(guess)
	reqLogger.Info("enrichment started",
		"raw_label", guess.RawLabel,
		"scientific_name", query.ScientificName,
		"target_language", lang,
		"has_location", loc != nil)

	result := &EnrichedResult{
		RequestID:          requestID,
		Guess:              guess,
		NearbyObservations: []observations.Record{},
		ProviderStatus:     make(map[string]Status),
	}

	taxonomyCh := make(chan taxonomyOutcome, 1)
	narrativeCh := make(chan narrativeOutcome, 1)

	go func() {
		pctx, pcancel := context.WithTimeout(reqCtx, c.providerTimeout)
		defer pcancel()
		defer c.timeProvider(ProviderTaxonomy)()
		record, err := c.providers.Resolver.Resolve(pctx, query)
		taxonomyCh <- taxonomyOutcome{record: record, err: err}
	}()
	go func() {
		pctx, pcancel := context.WithTimeout(reqCtx, c.providerTimeout)
		defer pcancel()
		defer c.timeProvider(ProviderNarrative)()
		record, err := c.providers.Fetcher.Fetch(pctx, query)
		narrativeCh <- narrativeOutcome{record: record, err: err}
	}()

	taxOut := <-taxonomyCh
	narOut := <-narrativeCh

	switch {
	case taxOut.err != nil:
		result.ProviderStatus[ProviderTaxonomy] = classifyFailure(taxOut.err)
		reqLogger.Warn("taxonomy provider failed", "status", result.ProviderStatus[ProviderTaxonomy], "error", taxOut.err)
	case taxOut.record == nil || !taxOut.record.Resolved():
		result.ProviderStatus[ProviderTaxonomy] = StatusNotFound
	default:
		result.ProviderStatus[ProviderTaxonomy] = StatusOK
		result.Taxonomy = taxOut.record
	}

	switch {
	case narOut.err != nil:
		result.ProviderStatus[ProviderNarrative] = classifyFailure(narOut.err)
		reqLogger.Warn("narrative provider failed", "status", result.ProviderStatus[ProviderNarrative], "error", narOut.err)
	case narOut.record == nil:
		result.ProviderStatus[ProviderNarrative] = StatusNotFound
	default:
		result.ProviderStatus[ProviderNarrative] = StatusOK
		result.Narrative = narOut.record
	}

	// Prefer the resolver's canonical name for the observation query
	speciesQuery := query.ScientificName
	if result.Taxonomy != nil && result.Taxonomy.ScientificName() != "" {
		speciesQuery = result.Taxonomy.ScientificName()
	}

	var localizeCh chan localizeOutcome
	fields := mergeTextFields(result.Taxonomy, result.Narrative)
	if lang != conf.SourceLanguage && len(fields) > 0 {
		localizeCh = make(chan localizeOutcome, 1)
		go func() {
			pctx, pcancel := context.WithTimeout(reqCtx, c.providerTimeout)
			defer pcancel()
			defer c.timeProvider(ProviderTranslation)()
			localized, err := c.providers.Localizer.Localize(pctx, fields, lang)
			localizeCh <- localizeOutcome{fields: localized, err: err}
		}()
	}

	var observationsCh chan observationsOutcome
	if loc != nil {
		observationsCh = make(chan observationsOutcome, 1)
		origin := *loc
		go func() {
			pctx, pcancel := context.WithTimeout(reqCtx, c.providerTimeout)
			defer pcancel()
			defer c.timeProvider(ProviderObservations)()
			records, err := c.providers.Locator.Locate(pctx, origin, speciesQuery, c.radiusKm, c.maxResults)
			observationsCh <- observationsOutcome{records: records, err: err}
		}()
	}

	if localizeCh != nil {
		locOut := <-localizeCh
		if locOut.err != nil {
			result.ProviderStatus[ProviderTranslation] = classifyFailure(locOut.err)
			reqLogger.Warn("translation provider degraded", "status", result.ProviderStatus[ProviderTranslation], "error", locOut.err)
		} else {
			result.ProviderStatus[ProviderTranslation] = StatusOK
		}
		// Even a degraded localization carries usable fields: failed
		// ones hold the source text
		if locOut.fields != nil {
			result.LocalizedFields = locOut.fields
			if summary, ok := locOut.fields["summary"]; ok {
				result.LocalizedNarrative = map[string]string{lang: summary}
			}
		}
	}

	if observationsCh != nil {
		obsOut := <-observationsCh
		if obsOut.err != nil {
			result.ProviderStatus[ProviderObservations] = classifyFailure(obsOut.err)
			reqLogger.Warn("observation provider failed", "status", result.ProviderStatus[ProviderObservations], "error", obsOut.err)
		} else {
			result.ProviderStatus[ProviderObservations] = StatusOK
			if obsOut.records != nil {
				result.NearbyObservations = obsOut.records
			}
		}
	}

	if c.metrics != nil {
		c.metrics.RecordEnrichment("success")
		c.metrics.RecordEnrichmentDuration(time.Since(start).Seconds())
		for provider, status := range result.ProviderStatus {
			c.metrics.RecordProviderStatus(provider, string(status))
		}
	}

	reqLogger.Info("enrichment finished", "provider_status", result.ProviderStatus)
	return result, nil
}

// timeProvider returns a stop function recording the elapsed provider
// wait, or a no-op when metrics are not attached.
func (c *Coordinator) timeProvider(provider string) func() {
	if c.metrics == nil {
		return func() {}
	}
	started := time.Now()
	return func() {
		c.metrics.RecordProviderDuration(provider, time.Since(started).Seconds())
	}
}

func (c *Coordinator) recordInputError(reason string) {
	if c.metrics != nil {
		c.metrics.RecordInputError(reason)
		c.metrics.RecordEnrichment("input_error")
	}
}

// mergeTextFields collects the localizable source-language text from
// both records into one field set for the localizer.
func mergeTextFields(tax *taxonomy.Record, nar *narrative.Record) map[string]string {
	fields := make(map[string]string)
	if tax != nil && len(tax.CommonNames) > 0 {
		fields["common_name"] = tax.CommonNames[0]
	}
	if nar != nil {
		if nar.SummaryText != "" {
			fields["summary"] = nar.SummaryText
		}
		if len(nar.UsesSentences) > 0 {
			fields["uses"] = strings.Join(nar.UsesSentences, " ")
		}
	}
	return fields
}

// classifyFailure maps a provider error to its status. Timeout is
// checked before not-found so a deadline that fired mid-lookup is never
// mistaken for a clean miss.
func classifyFailure(err error) Status {
	switch {
	case errors.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.IsNotFound(err):
		return StatusNotFound
	default:
		return StatusError
	}
}

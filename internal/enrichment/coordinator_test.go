package enrichment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/narrative"
	"github.com/sisigoks/plantverse-go/internal/observations"
	"github.com/sisigoks/plantverse-go/internal/species"
	"github.com/sisigoks/plantverse-go/internal/taxonomy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"))
}

type fakeResolver struct {
	record   *taxonomy.Record
	err      error
	delay    time.Duration
	gotQuery species.CanonicalQuery
}

func (f *fakeResolver) Resolve(ctx context.Context, query species.CanonicalQuery) (*taxonomy.Record, error) {
	f.gotQuery = query
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.record, f.err
}

type fakeFetcher struct {
	record *narrative.Record
	err    error
	delay  time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, query species.CanonicalQuery) (*narrative.Record, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.record, f.err
}

type fakeLocalizer struct {
	err error
}

func (f *fakeLocalizer) Localize(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for key, text := range fields {
		out[key] = "[" + targetLanguage + "] " + text
	}
	return out, f.err
}

type fakeLocator struct {
	records  []observations.Record
	err      error
	gotQuery string
}

func (f *fakeLocator) Locate(ctx context.Context, origin location.Coordinate, speciesQuery string, radiusKm float64, maxResults int) ([]observations.Record, error) {
	f.gotQuery = speciesQuery
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func resolvedTulsi() *taxonomy.Record {
	return &taxonomy.Record{
		EntityID: "Q200633",
		RankChain: []taxonomy.Rank{
			{RankName: "species", TaxonName: "Ocimum tenuiflorum"},
			{RankName: "genus", TaxonName: "Ocimum"},
		},
		CommonNames: []string{"holy basil", "tulsi"},
		Properties:  map[string]string{"conservation_status": "least concern"},
	}
}

func tulsiNarrative() *narrative.Record {
	return &narrative.Record{
		Title:         "Ocimum tenuiflorum",
		SummaryText:   "Ocimum tenuiflorum is an aromatic perennial plant.",
		SourceURL:     "https://wiki.test/wiki/Ocimum_tenuiflorum",
		UsesSentences: []string{"The leaves are brewed as a herbal tea."},
	}
}

func nearbySightings() []observations.Record {
	return []observations.Record{
		{ObservationID: "1002", QualityGrade: observations.GradeResearch, DistanceFromQueryKm: 0.7},
		{ObservationID: "1004", QualityGrade: observations.GradeNeedsID, DistanceFromQueryKm: 1.8},
	}
}

func newTestCoordinator(providers Providers) *Coordinator {
	settings := &conf.Settings{}
	settings.Enrichment.ProviderTimeout = 200 * time.Millisecond
	settings.Enrichment.RequestTimeout = time.Second
	settings.Observations.RadiusKm = 50
	settings.Observations.MaxResults = 10
	return NewCoordinator(settings, providers)
}

var hyderabad = location.Coordinate{Latitude: 17.385, Longitude: 78.486}

func TestEnrich_FullPipeline(t *testing.T) {
	resolver := &fakeResolver{record: resolvedTulsi()}
	locator := &fakeLocator{records: nearbySightings()}
	c := newTestCoordinator(Providers{
		Resolver:  resolver,
		Fetcher:   &fakeFetcher{record: tulsiNarrative()},
		Localizer: &fakeLocalizer{},
		Locator:   locator,
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Ocimum tenuiflorum (98%)", Confidence: 0.98},
		&hyderabad, "te")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RequestID)

	assert.Equal(t, "Ocimum tenuiflorum", resolver.gotQuery.ScientificName)

	require.NotNil(t, result.Taxonomy)
	assert.Equal(t, "Q200633", result.Taxonomy.EntityID)
	require.NotNil(t, result.Narrative)

	assert.Equal(t, map[string]Status{
		ProviderTaxonomy:     StatusOK,
		ProviderNarrative:    StatusOK,
		ProviderTranslation:  StatusOK,
		ProviderObservations: StatusOK,
	}, result.ProviderStatus)

	assert.Equal(t, "[te] Ocimum tenuiflorum is an aromatic perennial plant.", result.LocalizedNarrative["te"])
	assert.Equal(t, "[te] holy basil", result.LocalizedFields["common_name"])

	require.Len(t, result.NearbyObservations, 2)
	for i := 1; i < len(result.NearbyObservations); i++ {
		assert.LessOrEqual(t,
			result.NearbyObservations[i-1].DistanceFromQueryKm,
			result.NearbyObservations[i].DistanceFromQueryKm)
	}
}

func TestEnrich_ObservationQueryPrefersResolvedName(t *testing.T) {
	locator := &fakeLocator{}
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: resolvedTulsi()},
		Fetcher:   &fakeFetcher{},
		Localizer: &fakeLocalizer{},
		Locator:   locator,
	})

	_, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "ocimum_tenuiflorum"}, &hyderabad, "en")

	require.NoError(t, err)
	assert.Equal(t, "Ocimum tenuiflorum", locator.gotQuery)
}

func TestEnrich_NarrativeTimeoutDoesNotBlockOthers(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: resolvedTulsi()},
		Fetcher:   &fakeFetcher{record: tulsiNarrative(), delay: time.Second},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{records: nearbySightings()},
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Ocimum tenuiflorum"}, &hyderabad, "te")

	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, result.ProviderStatus[ProviderNarrative])
	assert.Nil(t, result.Narrative)

	// Taxonomy and observations are unaffected
	assert.Equal(t, StatusOK, result.ProviderStatus[ProviderTaxonomy])
	require.NotNil(t, result.Taxonomy)
	assert.Equal(t, StatusOK, result.ProviderStatus[ProviderObservations])
	assert.Len(t, result.NearbyObservations, 2)

	// The common name still localizes even with the narrative absent
	assert.Equal(t, "[te] holy basil", result.LocalizedFields["common_name"])
}

func TestEnrich_NoLocationOmitsObservations(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: resolvedTulsi()},
		Fetcher:   &fakeFetcher{record: tulsiNarrative()},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{records: nearbySightings()},
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Ocimum tenuiflorum"}, nil, "te")

	require.NoError(t, err)
	assert.NotContains(t, result.ProviderStatus, ProviderObservations)
	assert.NotNil(t, result.NearbyObservations)
	assert.Empty(t, result.NearbyObservations)
}

func TestEnrich_BothProvidersNotFound(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: &taxonomy.Record{}},
		Fetcher:   &fakeFetcher{},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{},
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Plantus imaginarius"}, &hyderabad, "te")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Taxonomy)
	assert.Nil(t, result.Narrative)
	assert.Equal(t, StatusNotFound, result.ProviderStatus[ProviderTaxonomy])
	assert.Equal(t, StatusNotFound, result.ProviderStatus[ProviderNarrative])

	// Nothing to translate, so the translation provider is not consulted
	assert.NotContains(t, result.ProviderStatus, ProviderTranslation)
}

func TestEnrich_ProviderFaultIsAbsorbed(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver: &fakeResolver{err: errors.Newf("service exploded").
			Component("taxonomy").Category(errors.CategoryNetwork).Build()},
		Fetcher:   &fakeFetcher{record: tulsiNarrative()},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{},
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Ocimum tenuiflorum"}, &hyderabad, "te")

	require.NoError(t, err)
	assert.Equal(t, StatusError, result.ProviderStatus[ProviderTaxonomy])
	assert.Nil(t, result.Taxonomy)
	assert.Equal(t, StatusOK, result.ProviderStatus[ProviderNarrative])
}

func TestEnrich_SourceLanguageSkipsTranslation(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: resolvedTulsi()},
		Fetcher:   &fakeFetcher{record: tulsiNarrative()},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{},
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Ocimum tenuiflorum"}, nil, "en")

	require.NoError(t, err)
	assert.NotContains(t, result.ProviderStatus, ProviderTranslation)
	assert.Empty(t, result.LocalizedNarrative)
}

func TestEnrich_FatalInputErrors(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: resolvedTulsi()},
		Fetcher:   &fakeFetcher{},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{},
	})

	t.Run("empty label", func(t *testing.T) {
		result, err := c.Enrich(context.Background(), species.Guess{RawLabel: "  "}, nil, "en")
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("malformed coordinate", func(t *testing.T) {
		bad := location.Coordinate{Latitude: 95, Longitude: 78.486}
		result, err := c.Enrich(context.Background(), species.Guess{RawLabel: "Ocimum"}, &bad, "en")
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("unsupported language", func(t *testing.T) {
		result, err := c.Enrich(context.Background(), species.Guess{RawLabel: "Ocimum"}, nil, "not-a-language")
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestEnrichedResult_RoundTripsThroughJSON(t *testing.T) {
	c := newTestCoordinator(Providers{
		Resolver:  &fakeResolver{record: resolvedTulsi()},
		Fetcher:   &fakeFetcher{record: tulsiNarrative()},
		Localizer: &fakeLocalizer{},
		Locator:   &fakeLocator{records: nearbySightings()},
	})

	result, err := c.Enrich(context.Background(),
		species.Guess{RawLabel: "Ocimum tenuiflorum (98%)", Confidence: 0.98},
		&hyderabad, "te")
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded EnrichedResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *result, decoded)
}

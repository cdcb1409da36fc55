package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/enrichment"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/narrative"
	"github.com/sisigoks/plantverse-go/internal/observability"
	"github.com/sisigoks/plantverse-go/internal/observations"
	"github.com/sisigoks/plantverse-go/internal/species"
	"github.com/sisigoks/plantverse-go/internal/taxonomy"
)

type stubClassifier struct {
	guess species.Guess
	err   error
}

func (s *stubClassifier) Classify(ctx context.Context, imageData []byte) (species.Guess, error) {
	return s.guess, s.err
}

type stubResolver struct{ record *taxonomy.Record }

func (s *stubResolver) Resolve(ctx context.Context, query species.CanonicalQuery) (*taxonomy.Record, error) {
	return s.record, nil
}

type stubFetcher struct{}

func (s *stubFetcher) Fetch(ctx context.Context, query species.CanonicalQuery) (*narrative.Record, error) {
	return nil, nil
}

type stubLocalizer struct{}

func (s *stubLocalizer) Localize(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error) {
	return fields, nil
}

type stubLocator struct{ records []observations.Record }

func (s *stubLocator) Locate(ctx context.Context, origin location.Coordinate, speciesQuery string, radiusKm float64, maxResults int) ([]observations.Record, error) {
	return s.records, nil
}

func newTestServer(t *testing.T, cls *stubClassifier) *Server {
	t.Helper()

	settings := &conf.Settings{Language: "en", Version: "test"}
	settings.Enrichment.ProviderTimeout = time.Second
	settings.Enrichment.RequestTimeout = 2 * time.Second
	settings.Observations.RadiusKm = 50
	settings.Observations.MaxResults = 10
	settings.WebServer.Listen = "127.0.0.1:0"

	record := &taxonomy.Record{
		EntityID:  "Q200633",
		RankChain: []taxonomy.Rank{{RankName: "species", TaxonName: "Ocimum tenuiflorum"}},
	}
	sightings := []observations.Record{
		{ObservationID: "1", QualityGrade: observations.GradeResearch, DistanceFromQueryKm: 0.7},
		{ObservationID: "2", QualityGrade: observations.GradeCasual, DistanceFromQueryKm: 1.2},
	}

	coordinator := enrichment.NewCoordinator(settings, enrichment.Providers{
		Classifier: cls,
		Resolver:   &stubResolver{record: record},
		Fetcher:    &stubFetcher{},
		Localizer:  &stubLocalizer{},
		Locator:    &stubLocator{records: sightings},
	})

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	return New(settings, coordinator,
		WithLocator(&stubLocator{records: sightings}),
		WithMetrics(metrics))
}

func TestEnrichRoute(t *testing.T) {
	s := newTestServer(t, &stubClassifier{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/enrich?label=Ocimum+tenuiflorum&confidence=0.98&lat=17.385&lon=78.486", http.NoBody)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result enrichment.EnrichedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Taxonomy)
	assert.Equal(t, "Q200633", result.Taxonomy.EntityID)
	assert.Len(t, result.NearbyObservations, 2)
	assert.Equal(t, enrichment.StatusOK, result.ProviderStatus[enrichment.ProviderTaxonomy])
}

func TestEnrichRoute_BadInput(t *testing.T) {
	s := newTestServer(t, &stubClassifier{})

	cases := map[string]string{
		"missing label":     "/api/v1/enrich",
		"half a coordinate": "/api/v1/enrich?label=Ocimum&lat=17.385",
		"bad confidence":    "/api/v1/enrich?label=Ocimum&confidence=7",
		"bad language":      "/api/v1/enrich?label=Ocimum&lang=not-a-language",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func multipartImage(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, "plant.jpg")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestIdentifyRoute(t *testing.T) {
	s := newTestServer(t, &stubClassifier{
		guess: species.Guess{RawLabel: "Ocimum tenuiflorum", Confidence: 0.98},
	})

	body, contentType := multipartImage(t, "image", []byte("fake-jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identify?lat=17.385&lon=78.486", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result enrichment.EnrichedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Ocimum tenuiflorum", result.Guess.RawLabel)
}

func TestIdentifyRoute_MissingImage(t *testing.T) {
	s := newTestServer(t, &stubClassifier{})

	body, contentType := multipartImage(t, "not-an-image", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentifyRoute_ClassifierFaultIsBadGateway(t *testing.T) {
	s := newTestServer(t, &stubClassifier{
		err: errors.Newf("inference endpoint down").
			Component("classifier").Category(errors.CategoryNetwork).Build(),
	})

	body, contentType := multipartImage(t, "image", []byte("fake-jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestObservationsRoute(t *testing.T) {
	s := newTestServer(t, &stubClassifier{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/observations?species=Ocimum+tenuiflorum&lat=17.385&lon=78.486&min_grade=research", http.NoBody)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var records []observations.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].ObservationID)
}

func TestObservationsRoute_RequiresCoordinate(t *testing.T) {
	s := newTestServer(t, &stubClassifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations?species=Ocimum", http.NoBody)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndMetricsRoutes(t *testing.T) {
	s := newTestServer(t, &stubClassifier{})

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

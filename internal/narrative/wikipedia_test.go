package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/species"
)

func newTestFetcher(t *testing.T) *WikipediaFetcher {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewWikipedia(&conf.NarrativeSettings{
		APIEndpoint:  "https://wiki.test/w/api.php",
		RESTEndpoint: "https://wiki.test/api/rest_v1",
		Timeout:      5 * time.Second,
		CacheTTL:     time.Minute,
		MaxRetries:   2,
	})
}

const usesSectionHTML = `<div class="mw-parser-output">
<p>Tulsi has been used in Ayurveda for thousands of years to treat ailments.[1] It is grown for religious purposes across the Indian subcontinent.[2]</p>
<p>Short fragment.</p>
<p>There is insufficient evidence for many claims. The leaves are brewed as a herbal tea in many households.[3]</p>
</div>`

// registerActionAPI wires one responder handling search, sections and
// section-text calls of the action API.
func registerActionAPI(t *testing.T, searchResults map[string]string, sectionsJSON, sectionHTML string) {
	t.Helper()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://wiki\.test/w/api\.php`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			switch {
			case q.Get("list") == "search":
				body, ok := searchResults[q.Get("srsearch")]
				if !ok {
					body = `{"query":{"search":[]}}`
				}
				return httpmock.NewStringResponse(http.StatusOK, body), nil
			case q.Get("prop") == "sections":
				return httpmock.NewStringResponse(http.StatusOK, sectionsJSON), nil
			case q.Get("prop") == "text":
				encoded, err := json.Marshal(sectionHTML)
				require.NoError(t, err)
				return httpmock.NewStringResponse(http.StatusOK,
					`{"parse":{"text":{"*":`+string(encoded)+`}}}`), nil
			}
			return httpmock.NewStringResponse(http.StatusBadRequest, `{}`), nil
		})
}

func registerSummary(t *testing.T, body string) {
	t.Helper()
	httpmock.RegisterResponder(http.MethodGet, `=~^https://wiki\.test/api/rest_v1/page/summary/`,
		httpmock.NewStringResponder(http.StatusOK, body))
}

func TestFetch_SummaryWithUses(t *testing.T) {
	f := newTestFetcher(t)

	registerActionAPI(t,
		map[string]string{
			"Ocimum tenuiflorum": `{"query":{"search":[{"title":"Ocimum tenuiflorum"}]}}`,
		},
		`{"parse":{"sections":[{"line":"Description","index":"1"},{"line":"Medicinal uses","index":"3"}]}}`,
		usesSectionHTML)
	registerSummary(t, `{
		"title": "Ocimum tenuiflorum",
		"type": "standard",
		"extract": "Ocimum tenuiflorum, commonly known as holy basil or tulsi, is an aromatic perennial plant.",
		"content_urls": {"desktop": {"page": "https://wiki.test/wiki/Ocimum_tenuiflorum"}}
	}`)

	record, err := f.Fetch(context.Background(), species.CanonicalQuery{
		ScientificName: "Ocimum tenuiflorum",
		SearchTerms:    []string{"Ocimum tenuiflorum", "Ocimum"},
	})

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Ocimum tenuiflorum", record.Title)
	assert.Contains(t, record.SummaryText, "holy basil")
	assert.Equal(t, "https://wiki.test/wiki/Ocimum_tenuiflorum", record.SourceURL)

	require.Len(t, record.UsesSentences, 3)
	assert.Equal(t, "Tulsi has been used in Ayurveda for thousands of years to treat ailments.", record.UsesSentences[0])
	assert.Equal(t, "It is grown for religious purposes across the Indian subcontinent.", record.UsesSentences[1])
	assert.Equal(t, "The leaves are brewed as a herbal tea in many households.", record.UsesSentences[2])
}

func TestFetch_DisambiguationFallsBackToGenus(t *testing.T) {
	f := newTestFetcher(t)

	registerActionAPI(t,
		map[string]string{
			"Basil": `{"query":{"search":[{"title":"Basil"}]}}`,
			"Ocimum": `{"query":{"search":[{"title":"Ocimum"}]}}`,
		},
		`{"parse":{"sections":[]}}`,
		"")
	httpmock.RegisterResponder(http.MethodGet, `=~^https://wiki\.test/api/rest_v1/page/summary/Basil$`,
		httpmock.NewStringResponder(http.StatusOK, `{"title":"Basil","type":"disambiguation","extract":"Basil may refer to:"}`))
	httpmock.RegisterResponder(http.MethodGet, `=~^https://wiki\.test/api/rest_v1/page/summary/Ocimum$`,
		httpmock.NewStringResponder(http.StatusOK, `{"title":"Ocimum","type":"standard","extract":"Ocimum is a genus of aromatic plants."}`))

	record, err := f.Fetch(context.Background(), species.CanonicalQuery{
		ScientificName: "Basil",
		SearchTerms:    []string{"Basil", "Ocimum"},
	})

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Ocimum", record.Title)
}

func TestFetch_LooseHitIsNotGuessed(t *testing.T) {
	f := newTestFetcher(t)

	// Search returns related articles but no exact title match
	registerActionAPI(t,
		map[string]string{
			"Plantus imaginarius": `{"query":{"search":[{"title":"List of imaginary plants"},{"title":"Plantus"}]}}`,
		},
		`{"parse":{"sections":[]}}`,
		"")

	record, err := f.Fetch(context.Background(), species.CanonicalQuery{
		ScientificName: "Plantus imaginarius",
		SearchTerms:    []string{"Plantus imaginarius"},
	})

	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestFetch_NotFoundIsNormal(t *testing.T) {
	f := newTestFetcher(t)

	registerActionAPI(t, map[string]string{}, `{"parse":{"sections":[]}}`, "")

	record, err := f.Fetch(context.Background(), species.CanonicalQuery{
		ScientificName: "Plantus imaginarius",
		SearchTerms:    []string{"Plantus imaginarius", "Plantus"},
	})

	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestFetch_MissingUsesSectionKeepsSummary(t *testing.T) {
	f := newTestFetcher(t)

	registerActionAPI(t,
		map[string]string{
			"Ficus religiosa": `{"query":{"search":[{"title":"Ficus religiosa"}]}}`,
		},
		`{"parse":{"sections":[{"line":"Description","index":"1"}]}}`,
		"")
	registerSummary(t, `{"title":"Ficus religiosa","type":"standard","extract":"Ficus religiosa is a species of fig native to the Indian subcontinent."}`)

	record, err := f.Fetch(context.Background(), species.CanonicalQuery{
		ScientificName: "Ficus religiosa",
		SearchTerms:    []string{"Ficus religiosa"},
	})

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Empty(t, record.UsesSentences)
	assert.Contains(t, record.SummaryText, "species of fig")
}

func TestFetch_ServiceFaultIsError(t *testing.T) {
	f := newTestFetcher(t)

	httpmock.RegisterResponder(http.MethodGet, `=~^https://wiki\.test/w/api\.php`,
		httpmock.NewStringResponder(http.StatusInternalServerError, `{}`))

	record, err := f.Fetch(context.Background(), species.CanonicalQuery{
		ScientificName: "Ocimum tenuiflorum",
		SearchTerms:    []string{"Ocimum tenuiflorum"},
	})

	require.Error(t, err)
	assert.Nil(t, record)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestExtractSentences(t *testing.T) {
	t.Parallel()

	sentences := extractSentences(usesSectionHTML)

	require.Len(t, sentences, 3)
	for _, s := range sentences {
		assert.NotContains(t, s, "[")
		assert.True(t, len(s) > 0 && s[len(s)-1] == '.')
	}
}

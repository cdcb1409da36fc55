package classifier

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
)

const testModelURL = "https://inference.test/models/Sisigoks/FloraSense"

func newTestClassifier(t *testing.T) *HuggingFaceClassifier {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewHuggingFace(&conf.ClassifierSettings{
		Endpoint: "https://inference.test/models",
		Model:    "Sisigoks/FloraSense",
		APIKey:   "test-token",
		Timeout:  5 * time.Second,
	})
}

func TestClassify_Success(t *testing.T) {
	c := newTestClassifier(t)

	httpmock.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusOK,
			`[{"label":"Ocimum tenuiflorum","score":0.98},{"label":"Ocimum basilicum","score":0.01}]`))

	guess, err := c.Classify(context.Background(), []byte("fake-jpeg-bytes"))

	require.NoError(t, err)
	assert.Equal(t, "Ocimum tenuiflorum", guess.RawLabel)
	assert.InDelta(t, 0.98, guess.Confidence, 0.001)
}

func TestClassify_EmptyImageIsFatal(t *testing.T) {
	c := newTestClassifier(t)

	_, err := c.Classify(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestClassify_RetriesOnModelLoading(t *testing.T) {
	c := newTestClassifier(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testModelURL,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable,
					`{"error":"Model Sisigoks/FloraSense is currently loading","estimated_time":20}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`[{"label":"Azadirachta indica","score":0.91}]`), nil
		})

	guess, err := c.Classify(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Azadirachta indica", guess.RawLabel)
}

func TestClassify_ClientErrorNotRetried(t *testing.T) {
	c := newTestClassifier(t)

	httpmock.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"invalid image"}`))

	_, err := c.Classify(context.Background(), []byte("img"))

	require.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
}

func TestClassify_NoPredictions(t *testing.T) {
	c := newTestClassifier(t)

	httpmock.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	_, err := c.Classify(context.Background(), []byte("img"))

	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestClassify_SendsAuthorizationHeader(t *testing.T) {
	c := newTestClassifier(t)

	httpmock.RegisterResponder(http.MethodPost, testModelURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK, `[{"label":"Ficus religiosa","score":0.8}]`), nil
		})

	_, err := c.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
}

// Package classifier is the boundary to the external image classification
// model. The model is a black box behind an HTTP inference endpoint; this
// package only knows how to send it an image and read back a labeled guess.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/logging"
	"github.com/sisigoks/plantverse-go/internal/observability/metrics"
	"github.com/sisigoks/plantverse-go/internal/species"
)

var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)
	serviceLogger, _, err = logging.NewFileLogger("logs/classifier.log", "classifier", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "classifier")
	}
}

// Classifier identifies a plant species from a photograph.
type Classifier interface {
	Classify(ctx context.Context, imageData []byte) (species.Guess, error)
}

// prediction mirrors one entry of the inference endpoint's response array.
type prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HuggingFaceClassifier calls a hosted inference endpoint serving the
// FloraSense image-classification model.
type HuggingFaceClassifier struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.ClassifierMetrics
}

// SetMetrics attaches metric collectors. Optional; call before serving.
func (c *HuggingFaceClassifier) SetMetrics(m *metrics.ClassifierMetrics) {
	c.metrics = m
}

// NewHuggingFace creates a classifier client from settings. The client is
// stateless and safe for concurrent use.
func NewHuggingFace(settings *conf.ClassifierSettings) *HuggingFaceClassifier {
	return &HuggingFaceClassifier{
		endpoint:   settings.Endpoint,
		model:      settings.Model,
		apiKey:     settings.APIKey,
		httpClient: &http.Client{Timeout: settings.Timeout},
	}
}

// Classify sends the image to the inference endpoint and returns the top
// prediction. An empty image is a validation error; endpoint faults are
// network errors after one bounded retry. A classifier failure aborts the
// whole identification request, there is nothing to enrich without a label.
func (c *HuggingFaceClassifier) Classify(ctx context.Context, imageData []byte) (species.Guess, error) {
	if len(imageData) == 0 {
		return species.Guess{}, errors.ValidationError("empty image")
	}

	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordImageSize(len(imageData))
	}

	url := c.endpoint + "/" + c.model

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return species.Guess{}, ctxError(ctx, "classify")
			case <-time.After(time.Second):
			}
		}

		guess, retryable, err := c.doClassify(ctx, url, imageData)
		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordClassification("success")
				c.metrics.RecordClassificationDuration(time.Since(start).Seconds())
				c.metrics.UpdateConfidence(guess.Confidence)
			}
			serviceLogger.Info("classified image",
				"label", guess.RawLabel,
				"confidence", guess.Confidence,
				"image_bytes", len(imageData))
			return guess, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		serviceLogger.Warn("classifier request failed, retrying", "attempt", attempt+1, "error", err)
	}

	if c.metrics != nil {
		c.metrics.RecordClassification("error")
	}
	return species.Guess{}, lastErr
}

func (c *HuggingFaceClassifier) doClassify(ctx context.Context, url string, imageData []byte) (guess species.Guess, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(imageData))
	if err != nil {
		return species.Guess{}, false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryHTTP).
			Build()
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return species.Guess{}, false, ctxError(ctx, "classify")
		}
		return species.Guess{}, true, errors.New(err).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("model", c.model).
			Build()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return species.Guess{}, true, errors.New(err).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Build()
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		// Cold model still loading on the inference host
		return species.Guess{}, true, errors.Newf("model loading, status %d", resp.StatusCode).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("model", c.model).
			Build()
	case resp.StatusCode >= 500:
		return species.Guess{}, true, errors.Newf("inference endpoint returned status %d", resp.StatusCode).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Build()
	case resp.StatusCode != http.StatusOK:
		return species.Guess{}, false, errors.Newf("inference endpoint returned status %d", resp.StatusCode).
			Component("classifier").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Build()
	}

	var predictions []prediction
	if err := json.Unmarshal(body, &predictions); err != nil {
		return species.Guess{}, false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	if len(predictions) == 0 {
		return species.Guess{}, false, errors.NotFoundError("classifier returned no predictions")
	}

	return species.Guess{
		RawLabel:   predictions[0].Label,
		Confidence: predictions[0].Score,
	}, false, nil
}

func ctxError(ctx context.Context, operation string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New(ctx.Err()).
			Component("classifier").
			Category(errors.CategoryTimeout).
			Context("operation", operation).
			Build()
	}
	return errors.New(ctx.Err()).
		Component("classifier").
		Category(errors.CategoryNetwork).
		Context("operation", operation).
		Build()
}

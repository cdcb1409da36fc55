// Package translate localizes structured and narrative text fields into a
// target language, one field at a time so partial failures degrade per
// field instead of atomically.
package translate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/logging"
)

var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)
	serviceLogger, _, err = logging.NewFileLogger("logs/translate.log", "translate", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "translate")
	}
}

// Localizer translates a set of named text fields into a target language.
// Implementations must be safe for concurrent use and must never drop a
// field: a failed translation falls back to the source-language text.
type Localizer interface {
	Localize(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error)
}

// GoogleLocalizer implements Localizer against the translate gtx endpoint.
type GoogleLocalizer struct {
	endpoint   string
	httpClient *http.Client
	cache      *cache.Cache
}

// NewGoogle creates a gtx-backed localizer.
func NewGoogle(settings *conf.TranslateSettings) *GoogleLocalizer {
	return &GoogleLocalizer{
		endpoint:   settings.Endpoint,
		httpClient: &http.Client{Timeout: settings.Timeout},
		cache:      cache.New(settings.CacheTTL, 2*settings.CacheTTL),
	}
}

// Localize translates each field independently. The returned map always
// has exactly the input keys; fields whose translation failed carry the
// original text. The returned error, when non-nil, reports that at least
// one field fell back, for status accounting only. Localizing into the
// source language is an identity operation and performs no network calls.
func (g *GoogleLocalizer) Localize(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error) {
	result := make(map[string]string, len(fields))

	if targetLanguage == conf.SourceLanguage {
		for key, text := range fields {
			result[key] = text
		}
		return result, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for key, text := range fields {
		wg.Add(1)
		go func(key, text string) {
			defer wg.Done()

			translated, err := g.translate(ctx, text, targetLanguage)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Per-field fallback to the source text
				result[key] = text
				if firstErr == nil {
					firstErr = err
				}
				serviceLogger.Warn("field translation failed, using source text",
					"field", key,
					"target_language", targetLanguage,
					"error", err)
				return
			}
			result[key] = translated
		}(key, text)
	}
	wg.Wait()

	return result, firstErr
}

// translate performs one cached translation call.
func (g *GoogleLocalizer) translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	cacheKey := targetLanguage + "\x00" + text
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", conf.SourceLanguage)
	params.Set("tl", targetLanguage)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return "", errors.New(err).
			Component("translate").
			Category(errors.CategoryHTTP).
			Build()
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		category := errors.CategoryNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		}
		return "", errors.New(err).
			Component("translate").
			Category(category).
			Context("target_language", targetLanguage).
			Build()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.New(err).
			Component("translate").
			Category(errors.CategoryNetwork).
			Build()
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("translation endpoint returned status %d", resp.StatusCode).
			Component("translate").
			Category(errors.CategoryTranslation).
			Context("status_code", resp.StatusCode).
			Build()
	}

	translated, err := parseTranslation(body)
	if err != nil {
		return "", err
	}

	g.cache.Set(cacheKey, translated, cache.DefaultExpiration)
	return translated, nil
}

// parseTranslation reads the gtx response shape: a nested array whose first
// element lists [translated, source, ...] segments.
func parseTranslation(body []byte) (string, error) {
	root, err := jason.NewValueFromBytes(body)
	if err != nil {
		return "", errors.New(err).
			Component("translate").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	outer, err := root.Array()
	if err != nil || len(outer) == 0 {
		return "", errors.Newf("unexpected translation response shape").
			Component("translate").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	segments, err := outer[0].Array()
	if err != nil {
		return "", errors.Newf("unexpected translation response shape").
			Component("translate").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	var sb strings.Builder
	for _, segment := range segments {
		parts, err := segment.Array()
		if err != nil || len(parts) == 0 {
			continue
		}
		if chunk, err := parts[0].String(); err == nil {
			sb.WriteString(chunk)
		}
	}

	if sb.Len() == 0 {
		return "", errors.Newf("empty translation").
			Component("translate").
			Category(errors.CategoryTranslation).
			Build()
	}

	return sb.String(), nil
}

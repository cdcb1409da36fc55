package narrative

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/logging"
	"github.com/sisigoks/plantverse-go/internal/species"
)

const (
	// Wikimedia robot policy requires an identifying User-Agent
	userAgentName    = "PlantVerse-Go"
	userAgentContact = "https://github.com/sisigoks/plantverse-go"

	disambiguationType = "disambiguation"

	maxUsesSentences = 5
	minSentenceWords = 5

	requestsPerSecond = 5
)

var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)

	citationRe = regexp.MustCompile(`\[\d+\]`)
	sentenceRe = regexp.MustCompile(`\.\s+`)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)
	serviceLogger, _, err = logging.NewFileLogger("logs/narrative.log", "narrative", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "narrative")
	}
}

// WikipediaFetcher implements Fetcher against the Wikipedia action and REST
// APIs.
type WikipediaFetcher struct {
	apiEndpoint  string
	restEndpoint string
	httpClient   *http.Client
	limiter      *rate.Limiter
	summaries    *cache.Cache
	maxRetries   int
}

// NewWikipedia creates a Wikipedia-backed narrative fetcher.
func NewWikipedia(settings *conf.NarrativeSettings) *WikipediaFetcher {
	return &WikipediaFetcher{
		apiEndpoint:  settings.APIEndpoint,
		restEndpoint: settings.RESTEndpoint,
		httpClient:   &http.Client{Timeout: settings.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		summaries:    cache.New(settings.CacheTTL, 2*settings.CacheTTL),
		maxRetries:   settings.MaxRetries,
	}
}

// Fetch tries each search term in order. A term matches only when the
// search result title exact-matches it case-insensitively; disambiguation
// pages and loose hits are treated as not-found rather than guessed.
// No match across all terms returns (nil, nil).
func (w *WikipediaFetcher) Fetch(ctx context.Context, query species.CanonicalQuery) (*Record, error) {
	for _, term := range query.SearchTerms {
		title, err := w.searchTitle(ctx, term)
		if err != nil {
			return nil, err
		}
		if title == "" {
			continue
		}

		record, err := w.summary(ctx, title)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		// Uses extraction is best-effort enrichment of the record; a
		// failure here never discards the summary
		if uses, err := w.fetchUses(ctx, title); err == nil {
			record.UsesSentences = uses
		} else if !errors.IsNotFound(err) {
			serviceLogger.Debug("uses section fetch failed", "title", title, "error", err)
		}

		serviceLogger.Info("fetched narrative",
			"term", term,
			"title", record.Title,
			"summary_chars", len(record.SummaryText),
			"uses_sentences", len(record.UsesSentences))
		return record, nil
	}

	return nil, nil
}

// searchTitle returns the exact-matching article title for a term, or empty.
func (w *WikipediaFetcher) searchTitle(ctx context.Context, term string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", term)
	params.Set("format", "json")

	body, err := w.get(ctx, w.apiEndpoint+"?"+params.Encode())
	if err != nil {
		return "", err
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", parseError(err, "search")
	}

	hits, err := root.GetObjectArray("query", "search")
	if err != nil {
		return "", nil
	}

	return pickSearchHit(hits, term), nil
}

// pickSearchHit returns the first hit whose title exact-matches the term
// case-insensitively. Anything looser is treated as no match.
func pickSearchHit(hits []*jason.Object, term string) string {
	for _, hit := range hits {
		title, err := hit.GetString("title")
		if err != nil {
			continue
		}
		if strings.EqualFold(title, term) {
			return title
		}
	}
	return ""
}

// summary fetches the REST summary for a title, TTL-cached.
func (w *WikipediaFetcher) summary(ctx context.Context, title string) (*Record, error) {
	if cached, ok := w.summaries.Get(title); ok {
		record := cached.(Record)
		return &record, nil
	}

	escaped := url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	body, err := w.get(ctx, fmt.Sprintf("%s/page/summary/%s", w.restEndpoint, escaped))
	if err != nil {
		return nil, err
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, parseError(err, "summary")
	}

	if pageType, err := root.GetString("type"); err == nil && pageType == disambiguationType {
		return nil, errors.NotFoundError("title %q is a disambiguation page", title)
	}

	extract, err := root.GetString("extract")
	if err != nil || strings.TrimSpace(extract) == "" {
		return nil, errors.NotFoundError("no extract for title %q", title)
	}

	record := Record{
		Title:       title,
		SummaryText: strings.TrimSpace(extract),
	}
	if canonical, err := root.GetString("content_urls", "desktop", "page"); err == nil {
		record.SourceURL = canonical
	}

	w.summaries.Set(title, record, cache.DefaultExpiration)
	return &record, nil
}

// fetchUses pulls the medicinal/traditional-use section of an article and
// reduces it to a handful of clean sentences.
func (w *WikipediaFetcher) fetchUses(ctx context.Context, title string) ([]string, error) {
	sectionIndex, err := w.findUsesSection(ctx, title)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text")
	params.Set("section", sectionIndex)
	params.Set("format", "json")

	body, err := w.get(ctx, w.apiEndpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, parseError(err, "parse_section")
	}

	sectionHTML, err := root.GetString("parse", "text", "*")
	if err != nil {
		return nil, errors.NotFoundError("no section text for title %q", title)
	}

	return extractSentences(sectionHTML), nil
}

// findUsesSection returns the index of the first section whose heading
// mentions medicinal or traditional-medicine use.
func (w *WikipediaFetcher) findUsesSection(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "sections")
	params.Set("format", "json")

	body, err := w.get(ctx, w.apiEndpoint+"?"+params.Encode())
	if err != nil {
		return "", err
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", parseError(err, "parse_sections")
	}

	sections, err := root.GetObjectArray("parse", "sections")
	if err != nil {
		return "", errors.NotFoundError("no sections for title %q", title)
	}

	for _, section := range sections {
		line, err := section.GetString("line")
		if err != nil {
			continue
		}
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "medicinal") && !strings.Contains(lower, "traditional medicine") {
			continue
		}
		if index, err := section.GetString("index"); err == nil && index != "" {
			return index, nil
		}
	}

	return "", errors.NotFoundError("no uses section for title %q", title)
}

// extractSentences converts section HTML paragraphs into cleaned sentences:
// citation markers removed, short fragments and non-statements dropped,
// capped at maxUsesSentences.
func extractSentences(sectionHTML string) []string {
	var sentences []string
	for _, paragraph := range paragraphTexts(sectionHTML) {
		text := citationRe.ReplaceAllString(paragraph, "")
		if len(strings.Fields(text)) < minSentenceWords {
			continue
		}
		for _, sentence := range sentenceRe.Split(text, -1) {
			sentence = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sentence), "."))
			if len(strings.Fields(sentence)) < minSentenceWords {
				continue
			}
			if strings.HasPrefix(strings.ToLower(sentence), "there is insufficient") {
				continue
			}
			sentences = append(sentences, sentence+".")
			if len(sentences) >= maxUsesSentences {
				return sentences
			}
		}
	}
	return sentences
}

// paragraphTexts returns the plain text of each <p> element in the HTML.
func paragraphTexts(sectionHTML string) []string {
	doc, err := html.Parse(strings.NewReader(sectionHTML))
	if err != nil {
		return nil
	}

	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			var buf bytes.Buffer
			if err := html.Render(&buf, n); err == nil {
				if text := strings.TrimSpace(html2text.HTML2Text(buf.String())); text != "" {
					paragraphs = append(paragraphs, text)
				}
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return paragraphs
}

// get performs a rate-limited GET with one bounded retry on transient faults.
func (w *WikipediaFetcher) get(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, requestError(ctx.Err(), fullURL)
			case <-time.After(500 * time.Millisecond):
			}
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return nil, requestError(err, fullURL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
		if err != nil {
			return nil, errors.New(err).
				Component("narrative").
				Category(errors.CategoryHTTP).
				Build()
		}
		req.Header.Set("User-Agent", fmt.Sprintf("%s/1.0 (%s)", userAgentName, userAgentContact))

		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = requestError(err, fullURL)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case readErr != nil:
			lastErr = requestError(readErr, fullURL)
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, errors.NotFoundError("resource not found: %s", fullURL)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errors.Newf("rate limited by encyclopedic source").
				Component("narrative").
				Category(errors.CategoryRateLimit).
				Build()
			continue
		case resp.StatusCode >= 500:
			lastErr = errors.Newf("encyclopedic source returned status %d", resp.StatusCode).
				Component("narrative").
				Category(errors.CategoryNetwork).
				Context("status_code", resp.StatusCode).
				Build()
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, errors.Newf("encyclopedic source returned status %d", resp.StatusCode).
				Component("narrative").
				Category(errors.CategoryHTTP).
				Context("status_code", resp.StatusCode).
				Build()
		}

		return body, nil
	}
	return nil, lastErr
}

func requestError(err error, fullURL string) error {
	category := errors.CategoryNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	}
	return errors.New(err).
		Component("narrative").
		Category(category).
		Context("url", fullURL).
		Build()
}

func parseError(err error, operation string) error {
	return errors.New(err).
		Component("narrative").
		Category(errors.CategoryJSONParsing).
		Context("operation", operation).
		Build()
}

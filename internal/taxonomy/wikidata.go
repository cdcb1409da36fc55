package taxonomy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/logging"
	"github.com/sisigoks/plantverse-go/internal/species"
)

// Wikidata property identifiers used by the resolver.
const (
	propScientificName     = "P225"
	propParentTaxon        = "P171"
	propTaxonRank          = "P105"
	propInstanceOf         = "P31"
	propSubclassOf         = "P279"
	propConservationStatus = "P141"
	propUse                = "P366"
	propCommonName         = "P1843"
)

const (
	// taxonRootMaxDepth bounds the P31/P279 walk from a search hit down to
	// an entity that carries a scientific name and a parent taxon.
	taxonRootMaxDepth = 5
	// rankChainMaxDepth bounds the parent-taxon walk.
	rankChainMaxDepth = 20

	requestsPerSecond = 5
)

var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)
	serviceLogger, _, err = logging.NewFileLogger("logs/taxonomy.log", "taxonomy", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "taxonomy")
	}
}

// WikidataResolver implements Resolver against the Wikidata API.
type WikidataResolver struct {
	endpoint   string
	entityURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
	entities   *cache.Cache
	maxRetries int
}

// NewWikidata creates a Wikidata-backed resolver. The entity cache is
// client state constructed once at startup; resolved records themselves are
// never persisted across requests.
func NewWikidata(settings *conf.TaxonomySettings) *WikidataResolver {
	return &WikidataResolver{
		endpoint:   settings.Endpoint,
		entityURL:  settings.EntityURL,
		httpClient: &http.Client{Timeout: settings.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		entities:   cache.New(settings.CacheTTL, 2*settings.CacheTTL),
		maxRetries: settings.MaxRetries,
	}
}

// Resolve tries each search term in order until one yields a disambiguated
// entity with a taxon root. No match across all terms returns an unresolved
// Record with nil error; only service faults return an error.
func (w *WikidataResolver) Resolve(ctx context.Context, query species.CanonicalQuery) (*Record, error) {
	for _, term := range query.SearchTerms {
		candidates, err := w.search(ctx, term)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			serviceLogger.Debug("no search hits", "term", term)
			continue
		}

		entityID := pickCandidate(candidates, term)

		record, err := w.buildRecord(ctx, entityID)
		if err != nil {
			return nil, err
		}
		if record.Resolved() {
			serviceLogger.Info("resolved taxonomy",
				"term", term,
				"entity_id", record.EntityID,
				"ranks", len(record.RankChain))
			return record, nil
		}
		serviceLogger.Debug("search hit had no taxon root", "term", term, "entity_id", entityID)
	}

	return &Record{}, nil
}

type searchCandidate struct {
	id    string
	label string
}

// pickCandidate prefers the candidate whose label exact-matches the query
// case-insensitively, else the first. Homonyms across kingdoms are
// disambiguated by this deterministic rule, not by cross-provider mapping.
func pickCandidate(candidates []searchCandidate, term string) string {
	for _, c := range candidates {
		if strings.EqualFold(c.label, term) {
			return c.id
		}
	}
	return candidates[0].id
}

func (w *WikidataResolver) search(ctx context.Context, term string) ([]searchCandidate, error) {
	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("search", term)
	params.Set("language", "en")
	params.Set("type", "item")
	params.Set("format", "json")

	body, err := w.get(ctx, w.endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(err).
			Component("taxonomy").
			Category(errors.CategoryJSONParsing).
			Context("operation", "wbsearchentities").
			Build()
	}

	hits, err := root.GetObjectArray("search")
	if err != nil {
		// Absent search array means no results, not a malformed response
		return nil, nil
	}

	candidates := make([]searchCandidate, 0, len(hits))
	for _, hit := range hits {
		id, err := hit.GetString("id")
		if err != nil {
			continue
		}
		label, _ := hit.GetString("label")
		candidates = append(candidates, searchCandidate{id: id, label: label})
	}
	return candidates, nil
}

// buildRecord walks from a search hit to its taxon root and assembles the
// rank chain, common names and properties.
func (w *WikidataResolver) buildRecord(ctx context.Context, entityID string) (*Record, error) {
	taxonID, err := w.findTaxonRoot(ctx, entityID, 0)
	if err != nil {
		return nil, err
	}
	if taxonID == "" {
		return &Record{}, nil
	}

	record := &Record{EntityID: taxonID}

	if err := w.collectRankChain(ctx, taxonID, record); err != nil {
		return nil, err
	}

	taxon, err := w.entity(ctx, taxonID)
	if err != nil {
		if errors.IsNotFound(err) {
			return record, nil
		}
		return nil, err
	}
	record.CommonNames = w.commonNames(taxon, record.ScientificName())
	record.Properties = w.properties(ctx, taxon)

	return record, nil
}

// findTaxonRoot returns the first entity reachable through P31/P279 that
// carries both a scientific name and a parent taxon.
func (w *WikidataResolver) findTaxonRoot(ctx context.Context, entityID string, depth int) (string, error) {
	if depth > taxonRootMaxDepth {
		return "", nil
	}

	ent, err := w.entity(ctx, entityID)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	if _, err := claimString(ent, propScientificName); err == nil {
		if _, err := claimItemID(ent, propParentTaxon); err == nil {
			return entityID, nil
		}
	}

	for _, prop := range []string{propInstanceOf, propSubclassOf} {
		claims, err := ent.GetObjectArray("claims", prop)
		if err != nil {
			continue
		}
		for _, claim := range claims {
			nextID, err := claim.GetString("mainsnak", "datavalue", "value", "id")
			if err != nil {
				continue
			}
			found, err := w.findTaxonRoot(ctx, nextID, depth+1)
			if err != nil {
				return "", err
			}
			if found != "" {
				return found, nil
			}
		}
	}

	return "", nil
}

// collectRankChain walks parent taxa upward, most specific rank first.
func (w *WikidataResolver) collectRankChain(ctx context.Context, taxonID string, record *Record) error {
	currentID := taxonID
	for level := 0; level <= rankChainMaxDepth && currentID != ""; level++ {
		ent, err := w.entity(ctx, currentID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}

		if sci, err := claimString(ent, propScientificName); err == nil && sci != "" {
			rankName := ""
			if rankID, err := claimItemID(ent, propTaxonRank); err == nil {
				rankName, _ = w.entityLabel(ctx, rankID)
			}
			if rankName == "" {
				rankName = fmt.Sprintf("rank%d", level)
			}
			record.RankChain = append(record.RankChain, Rank{RankName: rankName, TaxonName: sci})
		}

		parentID, err := claimItemID(ent, propParentTaxon)
		if err != nil {
			break
		}
		currentID = parentID
	}
	return nil
}

// commonNames collects the English label, aliases and taxon-common-name
// claims, deduplicated, with the scientific name itself excluded.
func (w *WikidataResolver) commonNames(taxon *jason.Object, scientificName string) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, scientificName) {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	if label, err := taxon.GetString("labels", "en", "value"); err == nil {
		add(label)
	}
	if aliases, err := taxon.GetObjectArray("aliases", "en"); err == nil {
		for _, alias := range aliases {
			if v, err := alias.GetString("value"); err == nil {
				add(v)
			}
		}
	}
	if claims, err := taxon.GetObjectArray("claims", propCommonName); err == nil {
		for _, claim := range claims {
			lang, _ := claim.GetString("mainsnak", "datavalue", "value", "language")
			if lang != "" && lang != "en" {
				continue
			}
			if text, err := claim.GetString("mainsnak", "datavalue", "value", "text"); err == nil {
				add(text)
			}
		}
	}
	return names
}

// properties extracts conservation status and use claims as label text.
func (w *WikidataResolver) properties(ctx context.Context, taxon *jason.Object) map[string]string {
	props := make(map[string]string)

	if statusID, err := claimItemID(taxon, propConservationStatus); err == nil {
		if label, err := w.entityLabel(ctx, statusID); err == nil && label != "" {
			props["conservation_status"] = label
		}
	}

	if claims, err := taxon.GetObjectArray("claims", propUse); err == nil {
		var uses []string
		for _, claim := range claims {
			useID, err := claim.GetString("mainsnak", "datavalue", "value", "id")
			if err != nil {
				continue
			}
			if label, err := w.entityLabel(ctx, useID); err == nil && label != "" {
				uses = append(uses, label)
			}
		}
		if len(uses) > 0 {
			props["use"] = strings.Join(uses, ", ")
		}
	}

	if len(props) == 0 {
		return nil
	}
	return props
}

func (w *WikidataResolver) entityLabel(ctx context.Context, entityID string) (string, error) {
	ent, err := w.entity(ctx, entityID)
	if err != nil {
		return "", err
	}
	return ent.GetString("labels", "en", "value")
}

// entity fetches one entity document, TTL-cached.
func (w *WikidataResolver) entity(ctx context.Context, entityID string) (*jason.Object, error) {
	if cached, ok := w.entities.Get(entityID); ok {
		return cached.(*jason.Object), nil
	}

	body, err := w.get(ctx, fmt.Sprintf("%s/%s.json", w.entityURL, entityID))
	if err != nil {
		return nil, err
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(err).
			Component("taxonomy").
			Category(errors.CategoryJSONParsing).
			Context("entity_id", entityID).
			Build()
	}

	ent, err := root.GetObject("entities", entityID)
	if err != nil {
		return nil, errors.NotFoundError("entity %s missing from response", entityID)
	}

	w.entities.Set(entityID, ent, cache.DefaultExpiration)
	return ent, nil
}

// get performs a rate-limited GET with one bounded retry on transient faults.
func (w *WikidataResolver) get(ctx context.Context, fullURL string) ([]byte, error) {
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
				Component("taxonomy").
				Category(errors.CategoryHTTP).
				Build()
		}
		req.Header.Set("User-Agent", userAgent())

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
			lastErr = errors.Newf("rate limited by knowledge base").
				Component("taxonomy").
				Category(errors.CategoryRateLimit).
				Build()
			continue
		case resp.StatusCode >= 500:
			lastErr = errors.Newf("knowledge base returned status %d", resp.StatusCode).
				Component("taxonomy").
				Category(errors.CategoryNetwork).
				Context("status_code", resp.StatusCode).
				Build()
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, errors.Newf("knowledge base returned status %d", resp.StatusCode).
				Component("taxonomy").
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
		Component("taxonomy").
		Category(category).
		Context("url", fullURL).
		Build()
}

func claimString(ent *jason.Object, prop string) (string, error) {
	claims, err := ent.GetObjectArray("claims", prop)
	if err != nil || len(claims) == 0 {
		return "", errors.NewStd("claim absent")
	}
	return claims[0].GetString("mainsnak", "datavalue", "value")
}

func claimItemID(ent *jason.Object, prop string) (string, error) {
	claims, err := ent.GetObjectArray("claims", prop)
	if err != nil || len(claims) == 0 {
		return "", errors.NewStd("claim absent")
	}
	return claims[0].GetString("mainsnak", "datavalue", "value", "id")
}

func userAgent() string {
	return fmt.Sprintf("PlantVerse-Go/1.0 (https://github.com/sisigoks/plantverse-go) Go-HTTP-Client/%s", runtime.Version())
}

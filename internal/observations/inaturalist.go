package observations

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/logging"
)

var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelInfo)
	serviceLogger, _, err = logging.NewFileLogger("logs/observations.log", "observations", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "observations")
	}
}

// The index asks API clients to stay at or below roughly one request
// per second.
const requestsPerSecond = 1

// Two attempts per call: the original request and one retry on a
// transient fault.
const maxAttempts = 2

// maxPages bounds pagination regardless of what total_results claims.
const maxPages = 10

// INaturalistLocator implements Locator against the iNaturalist API.
type INaturalistLocator struct {
	endpoint   string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewINaturalist(settings *conf.ObservationSettings) *INaturalistLocator {
	pageSize := settings.PageSize
	if pageSize <= 0 {
		pageSize = 30
	}
	return &INaturalistLocator{
		endpoint:   settings.Endpoint,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: settings.Timeout},
		limiter:    rate.NewLimiter(requestsPerSecond, 2),
	}
}

// Locate resolves the species query to a taxon ID, then pages through
// observations within radiusKm of origin. Pages may overlap, so results
// are deduplicated by observation ID before sorting by distance.
func (l *INaturalistLocator) Locate(ctx context.Context, origin location.Coordinate, speciesQuery string, radiusKm float64, maxResults int) ([]Record, error) {
	if maxResults <= 0 {
		return []Record{}, nil
	}

	taxonID, err := l.findTaxon(ctx, speciesQuery)
	if err != nil {
		if errors.IsNotFound(err) {
			serviceLogger.Debug("no taxon for species query", "species_query", speciesQuery)
			return []Record{}, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	var records []Record

	for page := 1; page <= maxPages; page++ {
		pageRecords, total, err := l.fetchPage(ctx, origin, taxonID, radiusKm, page)
		if err != nil {
			return nil, err
		}
		for _, r := range pageRecords {
			if seen[r.ObservationID] {
				continue
			}
			seen[r.ObservationID] = true
			records = append(records, r)
		}
		if len(records) >= maxResults || page*l.pageSize >= total || len(pageRecords) == 0 {
			break
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DistanceFromQueryKm < records[j].DistanceFromQueryKm
	})
	if len(records) > maxResults {
		records = records[:maxResults]
	}
	if records == nil {
		records = []Record{}
	}

	serviceLogger.Debug("located observations",
		"species_query", speciesQuery,
		"taxon_id", taxonID,
		"count", len(records))

	return records, nil
}

// findTaxon searches the taxa index and returns the ID of the exact
// name match, or of the first hit when no name matches exactly.
func (l *INaturalistLocator) findTaxon(ctx context.Context, speciesQuery string) (int64, error) {
	params := url.Values{}
	params.Set("q", speciesQuery)
	params.Set("per_page", "5")

	root, err := l.get(ctx, l.endpoint+"/taxa?"+params.Encode())
	if err != nil {
		return 0, err
	}

	results, err := root.GetObjectArray("results")
	if err != nil || len(results) == 0 {
		return 0, errors.NotFoundError("no taxon matching %q", speciesQuery)
	}

	pick := results[0]
	for _, hit := range results {
		if name, err := hit.GetString("name"); err == nil && strings.EqualFold(name, speciesQuery) {
			pick = hit
			break
		}
	}

	taxonID, err := pick.GetInt64("id")
	if err != nil {
		return 0, errors.New(err).
			Component("observations").
			Category(errors.CategoryJSONParsing).
			Context("species_query", speciesQuery).
			Build()
	}
	return taxonID, nil
}

// fetchPage retrieves one observations page and converts its entries.
// Entries with no usable coordinate are skipped.
func (l *INaturalistLocator) fetchPage(ctx context.Context, origin location.Coordinate, taxonID int64, radiusKm float64, page int) ([]Record, int, error) {
	params := url.Values{}
	params.Set("taxon_id", strconv.FormatInt(taxonID, 10))
	params.Set("lat", strconv.FormatFloat(origin.Latitude, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(origin.Longitude, 'f', -1, 64))
	params.Set("radius", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	params.Set("per_page", strconv.Itoa(l.pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("order_by", "observed_on")

	root, err := l.get(ctx, l.endpoint+"/observations?"+params.Encode())
	if err != nil {
		return nil, 0, err
	}

	total64, err := root.GetInt64("total_results")
	if err != nil {
		return nil, 0, errors.New(err).
			Component("observations").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	results, err := root.GetObjectArray("results")
	if err != nil {
		return nil, 0, errors.New(err).
			Component("observations").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	records := make([]Record, 0, len(results))
	for _, obs := range results {
		record, ok := parseObservation(obs, origin)
		if !ok {
			continue
		}
		records = append(records, record)
	}
	return records, int(total64), nil
}

// parseObservation converts one index entry. The "location" field is a
// "lat,lng" string; entries without one cannot be ranked and are dropped.
func parseObservation(obs *jason.Object, origin location.Coordinate) (Record, bool) {
	id, err := obs.GetInt64("id")
	if err != nil {
		return Record{}, false
	}

	locString, err := obs.GetString("location")
	if err != nil {
		return Record{}, false
	}
	coord, ok := parseLatLng(locString)
	if !ok {
		return Record{}, false
	}

	record := Record{
		ObservationID:       strconv.FormatInt(id, 10),
		Coordinate:          coord,
		DistanceFromQueryKm: origin.DistanceKm(coord),
	}

	if grade, err := obs.GetString("quality_grade"); err == nil {
		record.QualityGrade = grade
	}

	if observed, err := obs.GetString("time_observed_at"); err == nil {
		if ts, err := time.Parse(time.RFC3339, observed); err == nil {
			record.ObservedAt = ts
		}
	}
	if record.ObservedAt.IsZero() {
		if observedOn, err := obs.GetString("observed_on"); err == nil {
			if ts, err := time.Parse("2006-01-02", observedOn); err == nil {
				record.ObservedAt = ts
			}
		}
	}

	if photos, err := obs.GetObjectArray("photos"); err == nil && len(photos) > 0 {
		if photoURL, err := photos[0].GetString("url"); err == nil {
			// The index hands out square thumbnails; swap in the
			// medium-size rendition.
			record.PhotoURL = strings.Replace(photoURL, "square", "medium", 1)
		}
	}

	return record, true
}

func parseLatLng(s string) (location.Coordinate, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return location.Coordinate{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return location.Coordinate{}, false
	}
	return location.Coordinate{Latitude: lat, Longitude: lng}, true
}

// get performs a rate-limited GET with one bounded retry on transient
// faults, returning the parsed JSON body.
func (l *INaturalistLocator) get(ctx context.Context, requestURL string) (*jason.Object, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, http.NoBody)
		if err != nil {
			return nil, errors.New(err).
				Component("observations").
				Category(errors.CategoryHTTP).
				Build()
		}
		req.Header.Set("Accept", "application/json")

		resp, err := l.httpClient.Do(req)
		if err != nil {
			category := errors.CategoryNetwork
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				category = errors.CategoryTimeout
			}
			lastErr = errors.New(err).
				Component("observations").
				Category(category).
				Build()
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = errors.New(readErr).
				Component("observations").
				Category(errors.CategoryNetwork).
				Build()
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			root, err := jason.NewObjectFromBytes(body)
			if err != nil {
				return nil, errors.New(err).
					Component("observations").
					Category(errors.CategoryJSONParsing).
					Build()
			}
			return root, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = errors.Newf("observation index rate limited the request").
				Component("observations").
				Category(errors.CategoryRateLimit).
				Build()
			continue
		case resp.StatusCode >= 500:
			lastErr = errors.Newf("observation index returned status %d", resp.StatusCode).
				Component("observations").
				Category(errors.CategoryNetwork).
				Context("status_code", resp.StatusCode).
				Build()
			continue
		default:
			return nil, errors.Newf("observation index returned status %d", resp.StatusCode).
				Component("observations").
				Category(errors.CategoryHTTP).
				Context("status_code", resp.StatusCode).
				Build()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

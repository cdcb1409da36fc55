// Package location defines the geographic coordinate type shared across
// the pipeline and an optional IP-based coordinate lookup used when the
// caller supplies no position.
package location

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"

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
	serviceLogger, _, err = logging.NewFileLogger("logs/location.log", "location", serviceLevelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "location")
	}
}

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies in the legal degree ranges.
func (c Coordinate) Valid() bool {
	return conf.ValidateCoordinate(c.Latitude, c.Longitude) == nil
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance to other via the haversine
// formula.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - c.Latitude) * math.Pi / 180
	dLon := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ResolveFromSettings returns the configured coordinate, falling back
// to IP geolocation when enabled. A nil return means no location is
// available and observation lookup should be skipped.
func ResolveFromSettings(ctx context.Context, settings *conf.Settings) *Coordinate {
	if settings.Latitude != 0 || settings.Longitude != 0 {
		coord := Coordinate{Latitude: settings.Latitude, Longitude: settings.Longitude}
		if coord.Valid() {
			return &coord
		}
		serviceLogger.Warn("configured coordinate is out of range, ignoring",
			"latitude", settings.Latitude,
			"longitude", settings.Longitude)
	}
	if settings.Geolocation.Enabled {
		coord, err := NewIPLocator(&settings.Geolocation).Lookup(ctx)
		if err != nil {
			serviceLogger.Warn("IP geolocation failed, continuing without location", "error", err)
			return nil
		}
		return coord
	}
	return nil
}

// IPLocator resolves a coarse coordinate from the caller's public IP.
// It exists for the CLI path only; failures degrade to "no location".
type IPLocator struct {
	endpoint   string
	httpClient *http.Client
}

func NewIPLocator(settings *conf.GeolocationSettings) *IPLocator {
	return &IPLocator{
		endpoint:   settings.Endpoint,
		httpClient: &http.Client{Timeout: settings.Timeout},
	}
}

// Lookup queries the geolocation endpoint. The response schema is fixed
// and small, so it is decoded directly.
func (l *IPLocator) Lookup(ctx context.Context) (*Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("location").
			Category(errors.CategoryHTTP).
			Build()
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("location").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("geolocation endpoint returned status %d", resp.StatusCode).
			Component("location").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Build()
	}

	var payload struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		City    string  `json:"city"`
		Country string  `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.New(err).
			Component("location").
			Category(errors.CategoryJSONParsing).
			Build()
	}

	if payload.Status != "success" {
		return nil, errors.Newf("geolocation lookup failed: %s", payload.Message).
			Component("location").
			Category(errors.CategoryGeneric).
			Build()
	}

	coord := Coordinate{Latitude: payload.Lat, Longitude: payload.Lon}
	if !coord.Valid() {
		return nil, errors.Newf("geolocation endpoint returned out-of-range coordinate (%f, %f)", payload.Lat, payload.Lon).
			Component("location").
			Category(errors.CategoryValidation).
			Build()
	}

	serviceLogger.Info("resolved coordinate from IP",
		"latitude", coord.Latitude,
		"longitude", coord.Longitude,
		"city", payload.City,
		"country", payload.Country)

	return &coord, nil
}

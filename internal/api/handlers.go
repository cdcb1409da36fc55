package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sisigoks/plantverse-go/internal/errors"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/observations"
	"github.com/sisigoks/plantverse-go/internal/species"
)

type errorBody struct {
	Error string `json:"error"`
}

// handleIdentify accepts a multipart image upload, classifies it, and
// returns the enriched result.
func (s *Server) handleIdentify(c echo.Context) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "missing image file"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "unreadable image file"})
	}
	defer file.Close()
	imageData, err := io.ReadAll(file)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "unreadable image file"})
	}

	coord, err := parseCoordinate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}

	result, err := s.coordinator.IdentifyAndEnrich(c.Request().Context(), imageData, coord, s.targetLanguage(c))
	if err != nil {
		return s.enrichmentError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleEnrich enriches an already-known label without classification.
func (s *Server) handleEnrich(c echo.Context) error {
	label := c.QueryParam("label")
	if label == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "missing label parameter"})
	}

	confidence := 0.0
	if raw := c.QueryParam("confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "confidence must be a number in [0,1]"})
		}
		confidence = parsed
	}

	coord, err := parseCoordinate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}

	guess := species.Guess{RawLabel: label, Confidence: confidence}
	result, err := s.coordinator.Enrich(c.Request().Context(), guess, coord, s.targetLanguage(c))
	if err != nil {
		return s.enrichmentError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleObservations searches the observation index directly.
func (s *Server) handleObservations(c echo.Context) error {
	speciesQuery := c.QueryParam("species")
	if speciesQuery == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "missing species parameter"})
	}

	coord, err := parseCoordinate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	if coord == nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "missing lat/lon parameters"})
	}

	radiusKm := s.settings.Observations.RadiusKm
	if raw := c.QueryParam("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "radius_km must be a positive number"})
		}
		radiusKm = parsed
	}

	maxResults := s.settings.Observations.MaxResults
	if raw := c.QueryParam("max_results"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "max_results must be a positive integer"})
		}
		maxResults = parsed
	}

	records, err := s.locator.Locate(c.Request().Context(), *coord, speciesQuery, radiusKm, maxResults)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorBody{Error: "observation index unavailable"})
	}

	if minGrade := c.QueryParam("min_grade"); minGrade != "" {
		records = observations.FilterMinimumGrade(records, minGrade)
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.settings.Version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// enrichmentError maps pipeline errors to HTTP statuses. Validation
// failures are the caller's fault; everything else that escapes the
// coordinator is an upstream fault (classifier included).
func (s *Server) enrichmentError(c echo.Context, err error) error {
	if errors.IsValidation(err) {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	s.slogger.Error("enrichment request failed", "error", err)
	return c.JSON(http.StatusBadGateway, errorBody{Error: "identification unavailable"})
}

func (s *Server) targetLanguage(c echo.Context) string {
	if lang := c.QueryParam("lang"); lang != "" {
		return lang
	}
	if lang := c.FormValue("lang"); lang != "" {
		return lang
	}
	return s.settings.Language
}

// parseCoordinate reads the optional lat/lon pair from query or form
// parameters. Either both are present or neither.
func parseCoordinate(c echo.Context) (*location.Coordinate, error) {
	latRaw := c.QueryParam("lat")
	if latRaw == "" {
		latRaw = c.FormValue("lat")
	}
	lonRaw := c.QueryParam("lon")
	if lonRaw == "" {
		lonRaw = c.FormValue("lon")
	}

	if latRaw == "" && lonRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lonRaw == "" {
		return nil, errors.ValidationError("lat and lon must be given together")
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, errors.ValidationError("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil, errors.ValidationError("lon must be a number")
	}
	return &location.Coordinate{Latitude: lat, Longitude: lon}, nil
}

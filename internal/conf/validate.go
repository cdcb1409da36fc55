package conf

import (
	"github.com/sisigoks/plantverse-go/internal/errors"
)

// ValidateSettings checks the loaded configuration for values no component
// could operate with.
func ValidateSettings(settings *Settings) error {
	if _, err := NormalizeLanguage(settings.Language); err != nil {
		return err
	}

	// 0,0 is the "no location configured" sentinel and skips validation
	if settings.Latitude != 0 || settings.Longitude != 0 {
		if err := ValidateCoordinate(settings.Latitude, settings.Longitude); err != nil {
			return err
		}
	}

	if settings.Observations.RadiusKm <= 0 {
		return errors.ValidationError("observation search radius must be positive, got %f", settings.Observations.RadiusKm)
	}
	if settings.Observations.MaxResults <= 0 {
		return errors.ValidationError("observation max results must be positive, got %d", settings.Observations.MaxResults)
	}
	if settings.Enrichment.ProviderTimeout <= 0 || settings.Enrichment.RequestTimeout <= 0 {
		return errors.ValidationError("enrichment timeouts must be positive")
	}

	return nil
}

// ValidateCoordinate checks that a latitude/longitude pair is on the globe.
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return errors.ValidationError("latitude %f out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return errors.ValidationError("longitude %f out of range [-180, 180]", lon)
	}
	return nil
}

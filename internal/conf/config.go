// config.go: This file contains the configuration for the PlantVerse-Go application.
// It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// ClassifierSettings contains settings for the image classifier endpoint.
// The classifier is an external model service, consumed as a black box.
type ClassifierSettings struct {
	Endpoint string        // inference endpoint URL
	Model    string        // model identifier, e.g. Sisigoks/FloraSense
	APIKey   string        // bearer token for the inference API
	Timeout  time.Duration // per-request timeout
}

// TaxonomySettings contains settings for the Wikidata knowledge resolver.
type TaxonomySettings struct {
	Endpoint   string        // Wikidata API endpoint
	EntityURL  string        // Special:EntityData base URL
	Timeout    time.Duration // per-request timeout
	CacheTTL   time.Duration // TTL for resolved records
	MaxRetries int           // bounded retry count for transient failures
}

// NarrativeSettings contains settings for the Wikipedia narrative fetcher.
type NarrativeSettings struct {
	APIEndpoint  string        // action API endpoint
	RESTEndpoint string        // REST summary endpoint base
	Timeout      time.Duration // per-request timeout
	CacheTTL     time.Duration // TTL for fetched summaries
	MaxRetries   int           // bounded retry count for transient failures
}

// TranslateSettings contains settings for the translation service.
type TranslateSettings struct {
	Endpoint string        // translate endpoint URL
	Timeout  time.Duration // per-field request timeout
	CacheTTL time.Duration // TTL for translated fields
}

// ObservationSettings contains settings for the iNaturalist observation index.
type ObservationSettings struct {
	Endpoint   string        // iNaturalist API base URL
	Timeout    time.Duration // per-request timeout
	RadiusKm   float64       // default search radius
	MaxResults int           // default result cap
	PageSize   int           // per_page value for pagination
}

// GeolocationSettings contains settings for IP-based location lookup.
type GeolocationSettings struct {
	Enabled  bool          // true to auto-detect location when none is given
	Endpoint string        // ip-api.com endpoint
	Timeout  time.Duration // request timeout
}

// EnrichmentSettings bounds the coordinator fan-out.
type EnrichmentSettings struct {
	ProviderTimeout time.Duration // budget for each provider call
	RequestTimeout  time.Duration // overall deadline for one enrich call
}

// WebServerSettings contains settings for the HTTP API server.
type WebServerSettings struct {
	Enabled bool   // true to enable the HTTP API
	Listen  string // address and port to listen on
	Debug   bool   // true to enable request debug logging
}

// Settings contains all configuration options for the PlantVerse-Go application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version string `yaml:"-"` // Version from build

	Main struct {
		Name string // name of this PlantVerse-Go node
	}

	// Language is the default target language for localized output,
	// 2-letter code as accepted by the translation endpoint
	Language string

	// Latitude and Longitude set a default query location; zero values
	// mean "no location configured"
	Latitude  float64
	Longitude float64

	Classifier   ClassifierSettings
	Taxonomy     TaxonomySettings
	Narrative    NarrativeSettings
	Translate    TranslateSettings
	Observations ObservationSettings
	Geolocation  GeolocationSettings
	Enrichment   EnrichmentSettings
	WebServer    WebServerSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Setting returns the current settings instance, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("plantverse")
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)

	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the config file search paths in priority order:
// current directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user config directory: %w", err)
	}

	return []string{
		".",
		filepath.Join(configDir, "plantverse-go"),
	}, nil
}

// Package config handles loading and parsing application configuration.
// It supports two sources for the file path (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//
// Before either is consulted an optional .env file in the working directory
// is loaded, so local secrets (DATABASE_URL, GOOGLE_MAPS_API_KEY, MINIO_*)
// can live outside the YAML file.
//
// The parsed values are returned as a *Config pointer so the struct is
// shared by reference rather than copied everywhere.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity.
	// Valid values: "dev", "staging", "prod"
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	Storage  Storage  `yaml:"storage"`
	Geofence Geofence `yaml:"geofence"`
	Geocode  Geocode  `yaml:"geocode"`
	Export   Export   `yaml:"export"`
	QR       QR       `yaml:"qr"`

	// HTTPServer is embedded so cfg.Addr works as well as cfg.HTTPServer.Addr.
	HTTPServer `yaml:"http_server"`
}

// Storage selects and configures the class record backend.
type Storage struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`

	// Path is the SQLite database file.
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"storage/attendance.db"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" env:"DATABASE_URL"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	// Addr is the TCP address the server listens on, e.g. "localhost:8082".
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR" env-required:"true"`

	// PublicBaseURL prefixes the attendance links handed out to students.
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:5173"`

	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"HTTP_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"HTTP_WRITE_TIMEOUT"    env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"HTTP_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Geofence holds the admission tunables.
type Geofence struct {
	DefaultThresholdMeters float64       `yaml:"default_threshold_meters" env:"GEOFENCE_THRESHOLD_METERS" env-default:"200"`
	MaxThresholdMeters     float64       `yaml:"max_threshold_meters"     env:"GEOFENCE_MAX_THRESHOLD_METERS" env-default:"5000"`
	AutoSwap               Toggle        `yaml:"auto_swap"                env:"GEOFENCE_AUTO_SWAP"`
	SwapCutoffMeters       float64       `yaml:"swap_cutoff_meters"       env:"GEOFENCE_SWAP_CUTOFF_METERS" env-default:"5000"`
	LocationTimeout        time.Duration `yaml:"location_timeout"         env:"GEOFENCE_LOCATION_TIMEOUT" env-default:"10s"`
}

// AutoSwapEnabled reports the default for the lat/lng swap heuristic.
// An absent auto_swap key means enabled.
func (g Geofence) AutoSwapEnabled() bool {
	return g.AutoSwap.Enabled(true)
}

// Toggle is a boolean setting that remembers whether it was set at all,
// so an absent key can default to on. It reads from YAML and env alike.
type Toggle int8

const (
	toggleUnset Toggle = iota
	toggleOn
	toggleOff
)

// UnmarshalText accepts anything strconv.ParseBool does.
func (t *Toggle) UnmarshalText(text []byte) error {
	v, err := strconv.ParseBool(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid boolean %q", text)
	}
	if v {
		*t = toggleOn
	} else {
		*t = toggleOff
	}
	return nil
}

// Enabled returns the setting, or def when it was never set.
func (t Toggle) Enabled(def bool) bool {
	switch t {
	case toggleOn:
		return true
	case toggleOff:
		return false
	default:
		return def
	}
}

// Geocode configures the reverse geocoder used for venue display names.
type Geocode struct {
	// Provider is "nominatim", "google" or "none".
	Provider     string        `yaml:"provider"      env:"GEOCODE_PROVIDER" env-default:"nominatim"`
	NominatimURL string        `yaml:"nominatim_url" env:"NOMINATIM_URL" env-default:"https://nominatim.openstreetmap.org"`
	UserAgent    string        `yaml:"user_agent"    env:"GEOCODE_USER_AGENT" env-default:"attendance-api/1.0"`
	GoogleAPIKey string        `yaml:"google_api_key" env:"GOOGLE_MAPS_API_KEY"`
	Timeout      time.Duration `yaml:"timeout"       env:"GEOCODE_TIMEOUT" env-default:"5s"`
	MaxRetries   int           `yaml:"max_retries"   env:"GEOCODE_MAX_RETRIES" env-default:"2"`
	Cache        Toggle        `yaml:"cache"         env:"GEOCODE_CACHE"`
}

// CacheEnabled reports whether lookups go through the place cache.
// Absent means enabled.
func (g Geocode) CacheEnabled() bool {
	return g.Cache.Enabled(true)
}

// Export configures upload of attendance reports to object storage.
type Export struct {
	Enabled   bool   `yaml:"enabled"    env:"EXPORT_ENABLED" env-default:"false"`
	Endpoint  string `yaml:"endpoint"   env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket"     env:"MINIO_BUCKET" env-default:"attendance-reports"`
	UseSSL    bool   `yaml:"use_ssl"    env:"MINIO_USE_SSL" env-default:"false"`
}

// QR configures the rendered attendance QR codes.
type QR struct {
	// Size is the PNG edge length in pixels.
	Size int `yaml:"size" env:"QR_SIZE" env-default:"256"`
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case "dev", "staging", "prod":
	default:
		errs = append(errs, fmt.Errorf("env must be dev, staging or prod, got %q", c.Env))
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn (DATABASE_URL) is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver))
	}

	g := c.Geofence
	if g.DefaultThresholdMeters <= 0 {
		errs = append(errs, errors.New("geofence.default_threshold_meters must be positive"))
	}
	if g.MaxThresholdMeters < g.DefaultThresholdMeters {
		errs = append(errs, errors.New("geofence.max_threshold_meters must not be below the default threshold"))
	}
	if g.SwapCutoffMeters <= 0 {
		errs = append(errs, errors.New("geofence.swap_cutoff_meters must be positive"))
	}

	switch c.Geocode.Provider {
	case "nominatim", "none":
	case "google":
		if c.Geocode.GoogleAPIKey == "" {
			errs = append(errs, errors.New("geocode.google_api_key is required for the google provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("geocode.provider must be nominatim, google or none, got %q", c.Geocode.Provider))
	}

	if c.Export.Enabled && c.Export.Endpoint == "" {
		errs = append(errs, errors.New("export.endpoint is required when export is enabled"))
	}

	if c.QR.Size < 64 || c.QR.Size > 2048 {
		errs = append(errs, errors.New("qr.size must be between 64 and 2048"))
	}

	return errors.Join(errs...)
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad reads, validates, and returns the application config.
//
// Functions prefixed with "Must" are allowed to exit on failure. Callers
// do not need to check a returned error: if this returns, config is valid.
func MustLoad() *Config {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: could not load .env: %v", err)
	}

	// ── Source 1: environment variable ───────────────────────────────
	configPath := os.Getenv("CONFIG_PATH")

	// ── Source 2: command-line flag ───────────────────────────────────
	//   go run ./cmd/attendance-api --config=config/local.yaml
	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	if configPath == "" {
		log.Fatal("config path is not set: use --config flag or CONFIG_PATH env var")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	return cfg
}

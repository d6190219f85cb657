package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig    `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig   `toml:"logging"`  // Application logging settings
	Source   SourceConfig    `toml:"source"`   // Airport page retrieval settings
	Refresh  RefreshConfig   `toml:"refresh"`  // Periodic refresh settings
	Storage  StorageConfig   `toml:"storage"`  // Snapshot history settings
	Airports []AirportConfig `toml:"airports"` // Airports to monitor
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port" env:"ATIS_PORT, overwrite"`    // HTTP port for the server
	Host               string   `toml:"host" env:"ATIS_HOST, overwrite"`    // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`               // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`               // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"`              // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`               // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" env:"ATIS_LOG_LEVEL, overwrite"`   // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format" env:"ATIS_LOG_FORMAT, overwrite"` // Log format: "json" (structured) or "console" (human-readable)
}

// SourceConfig contains settings for fetching airport pages
type SourceConfig struct {
	BaseURL               string `toml:"base_url" env:"ATIS_SOURCE_URL, overwrite"` // Page URL template, {code} is replaced by the lower-case ICAO code
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`                   // HTTP timeout per request
	MaxRetries            int    `toml:"max_retries"`                               // Retries on transport errors and 5xx answers
	RetryWaitMillis       int    `toml:"retry_wait_ms"`                             // Initial wait between retries, doubled each attempt
	UserAgent             string `toml:"user_agent"`                                // User-Agent header sent with each request
}

// RefreshConfig contains the periodic refresh settings
type RefreshConfig struct {
	IntervalMinutes int `toml:"interval_minutes" env:"ATIS_REFRESH_MINUTES, overwrite"` // How often every airport is refreshed
	StaggerSeconds  int `toml:"stagger_seconds"`                                      // Delay between airports within one refresh round
}

// StorageConfig contains snapshot persistence configuration
type StorageConfig struct {
	Enabled       bool   `toml:"enabled" env:"ATIS_STORAGE_ENABLED, overwrite"` // Keep decoded records in SQLite
	SQLitePath    string `toml:"sqlite_path" env:"ATIS_SQLITE_PATH, overwrite"` // Database file path
	RetentionDays int    `toml:"retention_days"`                                // Snapshots older than this are pruned (0 = keep forever)
}

// AirportConfig describes one monitored airport
type AirportConfig struct {
	Code          string  `toml:"code" json:"code"`                     // ICAO code (e.g., "YMML")
	Name          string  `toml:"name" json:"name"`                     // Display name
	Latitude      float64 `toml:"latitude" json:"latitude"`             // Aerodrome reference point latitude
	Longitude     float64 `toml:"longitude" json:"longitude"`           // Aerodrome reference point longitude
	ElevationFeet float64 `toml:"elevation_feet" json:"elevation_feet"` // Aerodrome elevation
}

// DefaultAirports is used when the configuration lists no airports
func DefaultAirports() []AirportConfig {
	return []AirportConfig{
		{Code: "YMML", Name: "Melbourne", Latitude: -37.6733, Longitude: 144.8433, ElevationFeet: 434},
		{Code: "YSSY", Name: "Sydney", Latitude: -33.9461, Longitude: 151.1772, ElevationFeet: 21},
		{Code: "YBBN", Name: "Brisbane", Latitude: -27.3842, Longitude: 153.1175, ElevationFeet: 13},
		{Code: "YPPH", Name: "Perth", Latitude: -31.9403, Longitude: 115.9669, ElevationFeet: 67},
		{Code: "YPAD", Name: "Adelaide", Latitude: -34.9450, Longitude: 138.5306, ElevationFeet: 20},
		{Code: "YSCB", Name: "Canberra", Latitude: -35.3069, Longitude: 149.1950, ElevationFeet: 1886},
		{Code: "YMHB", Name: "Hobart", Latitude: -42.8361, Longitude: 147.5103, ElevationFeet: 13},
		{Code: "YPDN", Name: "Darwin", Latitude: -12.4147, Longitude: 130.8767, ElevationFeet: 103},
		{Code: "YBCS", Name: "Cairns", Latitude: -16.8858, Longitude: 145.7553, ElevationFeet: 10},
		{Code: "YBCG", Name: "Gold Coast", Latitude: -28.1644, Longitude: 153.5047, ElevationFeet: 21},
	}
}

var icaoCode = regexp.MustCompile(`^[A-Z]{4}$`)

// ErrConfigNotFound is returned when no configuration file exists
var ErrConfigNotFound = errors.New("config file not found")

// configSearchPaths are tried after the path given on the command line
var configSearchPaths = []string{"configs/config.toml", "config.toml"}

// Load decodes the TOML file at path
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadWithFallback loads preferredPath, or the first of the default
// locations that exists. A file that exists but does not decode is an
// error rather than a reason to try the next location.
func LoadWithFallback(preferredPath string) (*Config, error) {
	var tried []string
	for _, path := range append([]string{preferredPath}, configSearchPaths...) {
		if path == "" || slices.Contains(tried, path) {
			continue
		}
		tried = append(tried, path)

		cfg, err := Load(path)
		if errors.Is(err, ErrConfigNotFound) {
			continue
		}
		return cfg, err
	}
	return nil, fmt.Errorf("looked in %s: %w", strings.Join(tried, ", "), ErrConfigNotFound)
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides configuration values with ATIS_* environment variables
func (c *Config) ApplyEnv(ctx context.Context) error {
	return c.applyEnv(ctx, envconfig.OsLookuper())
}

func (c *Config) applyEnv(ctx context.Context, lookuper envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   c,
		Lookuper: lookuper,
	}); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Validate applies defaults and validates the configuration
func (c *Config) Validate() error {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be 0 or greater")
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if err := c.ValidateSource(); err != nil {
		return err
	}

	// Refresh defaults
	if c.Refresh.IntervalMinutes == 0 {
		c.Refresh.IntervalMinutes = 15
	}
	if c.Refresh.IntervalMinutes < 0 {
		return fmt.Errorf("refresh interval_minutes must be greater than 0: %d", c.Refresh.IntervalMinutes)
	}
	if c.Refresh.StaggerSeconds < 0 {
		return fmt.Errorf("refresh stagger_seconds must be 0 or greater: %d", c.Refresh.StaggerSeconds)
	}

	// Validate storage config
	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/atis.db"
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage retention_days must be 0 or greater: %d", c.Storage.RetentionDays)
	}

	return c.ValidateAirports()
}

// ValidateSource validates the page retrieval configuration
func (c *Config) ValidateSource() error {
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "http://aussieadsb.com/airportinfo/{code}"
	}
	if !strings.Contains(c.Source.BaseURL, "{code}") {
		return fmt.Errorf("source base_url must contain {code}: %s", c.Source.BaseURL)
	}
	if c.Source.RequestTimeoutSeconds == 0 {
		c.Source.RequestTimeoutSeconds = 10
	}
	if c.Source.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("source request_timeout_seconds must be greater than 0: %d", c.Source.RequestTimeoutSeconds)
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source max_retries must be 0 or greater: %d", c.Source.MaxRetries)
	}
	if c.Source.RetryWaitMillis == 0 {
		c.Source.RetryWaitMillis = 500
	}
	if c.Source.RetryWaitMillis < 0 {
		return fmt.Errorf("source retry_wait_ms must be 0 or greater: %d", c.Source.RetryWaitMillis)
	}
	return nil
}

// ValidateAirports validates the airport table, falling back to the default list when empty
func (c *Config) ValidateAirports() error {
	if len(c.Airports) == 0 {
		c.Airports = DefaultAirports()
	}

	seen := make(map[string]bool)
	for i := range c.Airports {
		a := &c.Airports[i]
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		if a.Code == "" {
			return fmt.Errorf("airport #%d: code is required", i+1)
		}
		if !icaoCode.MatchString(a.Code) {
			return fmt.Errorf("airport #%d: invalid ICAO code: %s", i+1, a.Code)
		}
		if seen[a.Code] {
			return fmt.Errorf("airport #%d: duplicate code: %s", i+1, a.Code)
		}
		seen[a.Code] = true

		if a.Name == "" {
			a.Name = a.Code
		}
		if a.Latitude < -90 || a.Latitude > 90 {
			return fmt.Errorf("airport %s: invalid latitude: %f", a.Code, a.Latitude)
		}
		if a.Longitude < -180 || a.Longitude > 180 {
			return fmt.Errorf("airport %s: invalid longitude: %f", a.Code, a.Longitude)
		}
	}
	return nil
}

// AirportMap returns the airport table keyed by ICAO code
func (c *Config) AirportMap() map[string]AirportConfig {
	m := make(map[string]AirportConfig, len(c.Airports))
	for _, a := range c.Airports {
		m[a.Code] = a
	}
	return m
}

// AirportCodes returns the configured codes in sorted order
func (c *Config) AirportCodes() []string {
	codes := make([]string, 0, len(c.Airports))
	for _, a := range c.Airports {
		codes = append(codes, a.Code)
	}
	sort.Strings(codes)
	return codes
}

// RefreshInterval returns the refresh interval as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalMinutes) * time.Minute
}

// RequestTimeout returns the page request timeout as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Source.RequestTimeoutSeconds) * time.Second
}

// RetryWait returns the initial retry wait as a duration
func (c *Config) RetryWait() time.Duration {
	return time.Duration(c.Source.RetryWaitMillis) * time.Millisecond
}

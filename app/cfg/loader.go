package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./cinetica.db" description:"Path to the catalog SQLite database"`

	// Remote catalog API configuration
	TMDBAPIKey  string `long:"tmdb-api-key" env:"TMDB_API_KEY" description:"TMDB API key (required for sync commands)"`
	TMDBBaseURL string `long:"tmdb-base-url" env:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3" description:"TMDB API base URL"`
	Language    string `long:"language" env:"CATALOG_LANGUAGE" default:"pt-BR" description:"Preferred metadata language"`
	Region      string `long:"region" env:"CATALOG_REGION" default:"BR" description:"Region for release dates, providers and local content"`

	// Rate limiting and caching
	RateLimitMs    int `long:"rate-limit-ms" env:"RATE_LIMIT_MS" default:"250" description:"Minimum delay between outbound API calls in milliseconds"`
	RequestTimeout int `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"15" description:"Remote API request timeout in seconds"`
	CacheTTLMin    int `long:"cache-ttl" env:"CACHE_TTL_MIN" default:"60" description:"Remote API response cache TTL in minutes"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for sync trigger endpoints (optional)"`
	PolicyFile   string `long:"sync-policy" env:"SYNC_POLICY" description:"Path to the sync policy YAML file (optional, defaults apply)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Cinetica/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/Sao_Paulo)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses configuration from command-line flags and environment variables.
// Returns (nil, nil) when help was requested. Remaining positional arguments
// (the CLI command and its parameters) are returned alongside the config.
func Load() (*Cfg, []string, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.Usage = "[OPTIONS] [full|releases|update|trending|cleanup|stats|fetch|daemon]"

	args, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:         raw.DBPath,
		TMDBAPIKey:     raw.TMDBAPIKey,
		TMDBBaseURL:    raw.TMDBBaseURL,
		Language:       raw.Language,
		Region:         raw.Region,
		RateLimitMs:    raw.RateLimitMs,
		RequestTimeout: raw.RequestTimeout,
		CacheTTLMin:    raw.CacheTTLMin,
		Port:           raw.Port,
		APIAccessKey:   raw.APIAccessKey,
		PolicyFile:     raw.PolicyFile,
		UserAgent:      raw.UserAgent,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, args, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}

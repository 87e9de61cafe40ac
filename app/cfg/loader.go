package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Crawl target configuration
	BaseURL    string `long:"base-url" env:"BASE_URL" default:"https://www.healthboard.example" description:"Origin of the crawled site"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing category source configuration files"`

	// Politeness and limits
	RequestDelay    float64 `long:"request-delay" env:"REQUEST_DELAY" default:"1.5" description:"Politeness delay between network operations in seconds"`
	MaxPagesPerCat  int     `long:"max-pages" env:"MAX_PAGES" default:"50" description:"Default listing page cap per category"`
	MinContentScore float64 `long:"min-content-score" env:"MIN_CONTENT_SCORE" default:"0.4" description:"Minimum quality score for a record to be persisted"`
	FetchTimeout    int     `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Plain HTTP fetch timeout in seconds"`
	RenderTimeout   int     `long:"render-timeout" env:"RENDER_TIMEOUT" default:"15" description:"Headless render wait timeout in seconds"`
	MaxRetries      int     `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Fetch attempts per URL before it is recorded as failed"`

	// Session configuration
	SessionCachePath string `long:"session-cache" env:"SESSION_CACHE" default:"./session.json" description:"Path of the persisted session artifact"`
	SessionTTL       int    `long:"session-ttl" env:"SESSION_TTL" default:"86400" description:"Session cache lifetime in seconds"`

	// Storage configuration
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./crawler.db" description:"SQLite database path"`
	SummaryDir string `long:"summary-dir" env:"SUMMARY_DIR" default:"./summaries" description:"Directory for run summary artifacts"`

	// HTTP status API
	Port         string `long:"port" env:"PORT" default:"8080" description:"Status API port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"Access key for record listing endpoints (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36" description:"User agent string for all requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		BaseURL:          raw.BaseURL,
		SourcesDir:       raw.SourcesDir,
		RequestDelay:     raw.RequestDelay,
		MaxPagesPerCat:   raw.MaxPagesPerCat,
		MinContentScore:  raw.MinContentScore,
		FetchTimeout:     raw.FetchTimeout,
		RenderTimeout:    raw.RenderTimeout,
		MaxRetries:       raw.MaxRetries,
		SessionCachePath: raw.SessionCachePath,
		SessionTTL:       raw.SessionTTL,
		DBPath:           raw.DBPath,
		SummaryDir:       raw.SummaryDir,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		UserAgent:        raw.UserAgent,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

package cfg

type Cfg struct {
	// Crawl target configuration
	BaseURL    string
	SourcesDir string

	// Politeness and limits
	RequestDelay    float64
	MaxPagesPerCat  int
	MinContentScore float64
	FetchTimeout    int
	RenderTimeout   int
	MaxRetries      int

	// Session configuration
	SessionCachePath string
	SessionTTL       int

	// Storage configuration
	DBPath     string
	SummaryDir string

	// HTTP status API
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}

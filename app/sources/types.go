package sources

// Config describes one crawl target: a category of the site with its
// listing URL template and processing settings.
type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	Settings ConfigSettings `yaml:"settings"`
	Keywords []string       `yaml:"keywords"`
}

type ConfigSettings struct {
	Enabled bool `yaml:"enabled"`

	// ListingURL is the first listing page of the category, relative to the
	// configured base URL or absolute. Subsequent pages are discovered by
	// the pagination walker.
	ListingURL string `yaml:"listing_url"`

	// FeedURL optionally points at an RSS/Atom feed for the category; when
	// set, item URLs are seeded from the feed before listing pagination.
	FeedURL string `yaml:"feed_url"`

	// Kind is "article" or "forum"; forum items have paginated comments.
	Kind string `yaml:"kind"`

	// Render forces headless rendering for this category's pages.
	Render bool `yaml:"render"`

	// WaitSelector is an optional CSS selector the renderer waits for.
	WaitSelector string `yaml:"wait_selector"`

	// PageCap bounds listing pages visited for this category; 0 falls back
	// to the process-wide default.
	PageCap int `yaml:"page_cap"`
}

const (
	KindArticle = "article"
	KindForum   = "forum"
)

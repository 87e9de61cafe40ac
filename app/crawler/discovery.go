package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/gofeed"
)

// FeedDiscoverer seeds item URLs from a category's RSS/Atom feed when one
// is configured, ahead of listing pagination. Feed failures are soft: the
// listing walk still runs.
type FeedDiscoverer struct {
	parser *gofeed.Parser
}

func NewFeedDiscoverer(userAgent string) *FeedDiscoverer {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &FeedDiscoverer{parser: parser}
}

func (d *FeedDiscoverer) ItemURLs(ctx context.Context, feedURL string) ([]string, error) {
	feed, err := d.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link != "" {
			urls = append(urls, item.Link)
		}
	}

	slog.Debug("Feed discovery completed", "feed", feedURL, "items", len(urls))
	return urls, nil
}

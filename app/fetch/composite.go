package fetch

import (
	"context"
	"fmt"
	"log/slog"
)

// Composite routes a request to the rendered or plain strategy and wraps the
// whole fetch in the retry policy. A hard renderer failure falls back to the
// plain strategy for the same URL before the attempt counts as failed.
type Composite struct {
	plain    Fetcher
	renderer Fetcher
	retry    RetryPolicy
}

var _ Fetcher = (*Composite)(nil)

func NewComposite(plain Fetcher, renderer Fetcher, retry RetryPolicy) *Composite {
	return &Composite{
		plain:    plain,
		renderer: renderer,
		retry:    retry,
	}
}

func (c *Composite) Fetch(ctx context.Context, req Request) (*Document, error) {
	var doc *Document

	err := c.retry.Run(ctx, func() error {
		var err error
		doc, err = c.fetchOnce(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch failed after retries: %w", err)
	}

	return doc, nil
}

func (c *Composite) fetchOnce(ctx context.Context, req Request) (*Document, error) {
	if req.Render && c.renderer != nil {
		doc, err := c.renderer.Fetch(ctx, req)
		if err == nil {
			return doc, nil
		}
		slog.Warn("Render failed, falling back to plain fetch", "url", req.URL, "error", err)
	}

	return c.plain.Fetch(ctx, req)
}

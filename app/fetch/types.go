package fetch

import (
	"context"
	"time"
)

// Request describes one page fetch. Render selects the headless-browser
// strategy; WaitSelector optionally names an element the renderer waits for
// before snapshotting the DOM.
type Request struct {
	URL          string
	Render       bool
	WaitSelector string
}

// Document is a fetched page after rendering and charset normalization.
type Document struct {
	URL        string
	HTML       string
	StatusCode int
	Rendered   bool
	FetchedAt  time.Time
}

// Fetcher is what the orchestrator and pagination walker depend on.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Document, error)
}

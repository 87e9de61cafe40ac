package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/healthboard/crawler/app/fetch"
	"github.com/healthboard/crawler/app/sources"
)

const minCommentLength = 10

var errInterrupted = errors.New("run interrupted")

// RecordStore persists accepted records; implemented by the database
// record repository.
type RecordStore interface {
	CheckDuplicate(runID, contentHash string) (bool, error)
	StoreRecord(runID string, rec Record) error
}

// Options carries the orchestrator's crawl parameters from configuration.
type Options struct {
	BaseURL        string
	Delay          time.Duration
	DefaultPageCap int
}

// Orchestrator drives a full run: category by category, listing page by
// listing page, item by item, strictly sequentially. All components share
// one fetcher and one run-scoped visited set.
type Orchestrator struct {
	opts       Options
	sources    *sources.Cache
	fetcher    fetch.Fetcher
	extractor  *Extractor
	filter     *Filter
	discoverer *FeedDiscoverer
	records    RecordStore
	stats      *Stats
	visited    *VisitedSet
	walker     *Walker

	interrupted atomic.Bool
}

func NewOrchestrator(opts Options, srcs *sources.Cache, fetcher fetch.Fetcher, extractor *Extractor,
	filter *Filter, discoverer *FeedDiscoverer, records RecordStore, stats *Stats) *Orchestrator {

	polite := newPoliteFetcher(fetcher, opts.Delay)
	visited := NewVisitedSet()

	return &Orchestrator{
		opts:       opts,
		sources:    srcs,
		fetcher:    polite,
		extractor:  extractor,
		filter:     filter,
		discoverer: discoverer,
		records:    records,
		stats:      stats,
		visited:    visited,
		walker:     NewWalker(polite, visited),
	}
}

// Interrupt requests cooperative shutdown. It is observed at category and
// item boundaries only, so the item in flight always finishes.
func (o *Orchestrator) Interrupt() {
	o.interrupted.Store(true)
}

func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Run executes the crawl and reports the terminal state through Stats.
// The returned error is non-nil only for fatal faults; per-item and
// per-page failures are counted and skipped.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.stats.SetState(StateRunning)

	for _, cat := range o.sources.GetEnabledConfigs() {
		if o.stopRequested(ctx) {
			break
		}

		o.stats.Category(cat.Name)
		o.stats.SetCategoryStatus(cat.Name, "running")

		err := o.processCategory(ctx, cat)
		switch {
		case errors.Is(err, errInterrupted):
			o.stats.SetCategoryStatus(cat.Name, "interrupted")
		case err != nil:
			o.stats.SetState(StateFailed)
			o.stats.SetCategoryStatus(cat.Name, "failed")
			return fmt.Errorf("category %s: %w", cat.Name, err)
		default:
			o.stats.SetCategoryStatus(cat.Name, "completed")
		}
	}

	if o.stopRequested(ctx) {
		o.stats.SetState(StateInterrupted)
		slog.Info("Run interrupted", "run_id", o.stats.RunID)
	} else {
		o.stats.SetState(StateCompleted)
		slog.Info("Run completed", "run_id", o.stats.RunID)
	}

	return nil
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	return o.interrupted.Load() || ctx.Err() != nil
}

func (o *Orchestrator) processCategory(ctx context.Context, cat *sources.Config) error {
	slog.Info("Crawling category", "category", cat.Name, "kind", cat.Settings.Kind)

	if cat.Settings.FeedURL != "" && o.discoverer != nil {
		feedURL, err := BuildURL(o.opts.BaseURL, cat.Settings.FeedURL)
		if err != nil {
			return err
		}
		urls, err := o.discoverer.ItemURLs(ctx, feedURL)
		if err != nil {
			slog.Warn("Feed discovery failed, continuing with listing walk",
				"category", cat.Name, "error", err)
			o.stats.Error(cat.Name, feedURL)
		}
		for _, itemURL := range urls {
			if o.stopRequested(ctx) {
				return errInterrupted
			}
			o.processItem(ctx, cat, itemURL)
		}
	}

	startURL, err := BuildURL(o.opts.BaseURL, cat.Settings.ListingURL)
	if err != nil {
		return err
	}

	pageCap := cat.Settings.PageCap
	if pageCap == 0 {
		pageCap = o.opts.DefaultPageCap
	}

	return o.walker.WalkListing(ctx, startURL, cat.Settings.Render, cat.Settings.WaitSelector, pageCap,
		func(page *ListingPage) error {
			o.stats.PageVisited(cat.Name)
			slog.Debug("Listing page processed", "category", cat.Name,
				"page", page.PageIndex, "items", len(page.ItemURLs))

			for _, itemURL := range page.ItemURLs {
				if o.stopRequested(ctx) {
					return errInterrupted
				}
				o.processItem(ctx, cat, itemURL)
			}
			return nil
		})
}

// processItem walks one item's pages in increasing index order, extracts,
// scores, and persists. Every failure in here is isolated: logged,
// counted, and skipped.
func (o *Orchestrator) processItem(ctx context.Context, cat *sources.Config, itemURL string) {
	if !o.visited.MarkSeen(itemURL) {
		return
	}
	o.stats.ItemFound(cat.Name)

	firstDoc, err := o.fetcher.Fetch(ctx, fetch.Request{
		URL:          itemURL,
		Render:       cat.Settings.Render,
		WaitSelector: cat.Settings.WaitSelector,
	})
	if err != nil {
		slog.Warn("Item fetch failed", "url", itemURL, "error", err)
		o.stats.Error(cat.Name, itemURL)
		return
	}
	o.stats.PageVisited(cat.Name)

	item, ok := o.extractor.ExtractItem(firstDoc.HTML, itemURL, cat.Name, cat.Settings.Kind)
	if !ok {
		slog.Debug("Extraction miss, dropping item", "url", itemURL)
		o.stats.ItemDropped(cat.Name)
		return
	}

	err = o.walker.WalkItemPages(ctx, firstDoc, cat.Settings.Render, cat.Settings.WaitSelector, 0,
		func(pageIndex int, doc *fetch.Document) error {
			o.stats.PageVisited(cat.Name)
			page, ok := o.extractor.ExtractPage(doc.HTML, doc.URL, cat.Settings.Kind, pageIndex)
			if !ok {
				slog.Debug("Item page extraction miss", "url", doc.URL, "page", pageIndex)
				return nil
			}
			item.Pages = append(item.Pages, page)
			return nil
		})
	if err != nil {
		slog.Warn("Item page walk failed", "url", itemURL, "error", err)
		o.stats.Error(cat.Name, itemURL)
	}

	item.TotalPages = len(item.Pages)
	item.TotalComments = len(item.Comments())

	o.persistItem(cat, item)
}

func (o *Orchestrator) persistItem(cat *sources.Config, item *ContentItem) {
	body := item.BodyText()
	score, accepted := o.filter.Accept(body, cat.Keywords)
	if !accepted {
		slog.Debug("Item rejected by quality filter", "url", item.URL, "score", score)
		o.stats.ItemDropped(cat.Name)
		return
	}

	hash := ContentHash(body)
	if dup, err := o.records.CheckDuplicate(o.stats.RunID, hash); err != nil {
		slog.Error("Duplicate check failed", "url", item.URL, "error", err)
		o.stats.Error(cat.Name, item.URL)
		return
	} else if dup {
		slog.Debug("Duplicate item within run, skipping", "url", item.URL)
		o.stats.ItemDropped(cat.Name)
		return
	}

	now := time.Now().UTC()
	rec := Record{
		URL:         item.URL,
		Title:       item.Title,
		Author:      item.Author,
		Date:        item.PublishedAt,
		Category:    item.Category,
		ContentText: body,
		ContentHTML: item.Pages[0].BodyHTML,
		Type:        item.Kind,
		ScrapedAt:   now,
		ContentHash: hash,
	}
	if err := o.records.StoreRecord(o.stats.RunID, rec); err != nil {
		slog.Error("Failed to persist item", "url", item.URL, "error", err)
		o.stats.Error(cat.Name, item.URL)
		return
	}

	stored := 0
	for _, c := range item.Comments() {
		if len(c.Content) < minCommentLength {
			continue
		}
		commentRec := Record{
			URL:         item.URL + "#comment-" + c.ID,
			Title:       item.Title,
			Author:      c.Author,
			Date:        c.Timestamp,
			Category:    item.Category,
			ContentText: c.Content,
			Type:        TypeForumPost,
			ScrapedAt:   now,
			ContentHash: ContentHash(c.ID + c.Content),
		}
		if err := o.records.StoreRecord(o.stats.RunID, commentRec); err != nil {
			slog.Error("Failed to persist comment", "id", c.ID, "error", err)
			o.stats.Error(cat.Name, item.URL)
			continue
		}
		stored++
	}

	o.stats.ItemAccepted(cat.Name, item.TotalComments)
	slog.Info("Item accepted", "url", item.URL, "score", score,
		"pages", item.TotalPages, "comments", item.TotalComments, "comments_stored", stored)
}

// politeFetcher inserts the politeness delay before every fetch after the
// first, so no two network operations run back to back.
type politeFetcher struct {
	inner fetch.Fetcher
	delay time.Duration
	first atomic.Bool
}

func newPoliteFetcher(inner fetch.Fetcher, delay time.Duration) *politeFetcher {
	f := &politeFetcher{inner: inner, delay: delay}
	f.first.Store(true)
	return f
}

func (p *politeFetcher) Fetch(ctx context.Context, req fetch.Request) (*fetch.Document, error) {
	if !p.first.CompareAndSwap(true, false) && p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.inner.Fetch(ctx, req)
}

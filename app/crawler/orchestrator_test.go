package crawler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/healthboard/crawler/app/fetch"
	"github.com/healthboard/crawler/app/sources"
)

const threadBody = "Switching to a high protein breakfast changed my training recovery completely. " +
	"I pair eggs with oats and a vitamin supplement, and my diet finally feels sustainable. " +
	"Happy to share the full meal plan if anyone here wants the details."

func threadFirstPage(next string) string {
	html := `<html><head><title>Thread</title></head><body>
	<div class="board-view">
	  <h1 class="view-title">High protein breakfast experiment</h1>
	  <span class="writer">fit_choi</span>
	  <div class="view-content"><p>` + threadBody + `</p></div>
	</div>
	<div class="comment-list">
	  <div class="comment-item"><div class="comment-content">Sounds interesting, following this thread.</div></div>
	  <div class="comment-item"><div class="comment-content">What brand of supplement do you take daily?</div></div>
	  <div class="comment-item"><div class="comment-content">Oats with eggs works for me as well.</div></div>
	</div>`
	if next != "" {
		html += `<div class="pagination"><a rel="next" href="` + next + `">next</a></div>`
	}
	return html + `</body></html>`
}

const threadSecondPage = `<html><body>
<div class="comment-list">
  <div class="comment-item"><div class="comment-content">Please do share the meal plan here.</div></div>
  <div class="comment-item"><div class="comment-content">Tried this for two weeks, energy levels are up.</div></div>
  <div class="comment-item"><div class="comment-content">Careful with supplement dosing, check the label.</div></div>
</div>
</body></html>`

const thinItemPage = `<html><head><title>Thin</title></head><body>
<div class="view-content"><p>bump</p></div>
</body></html>`

// memStore is an in-memory RecordStore.
type memStore struct {
	records []Record
	runIDs  []string
}

func (m *memStore) CheckDuplicate(runID, contentHash string) (bool, error) {
	for i, r := range m.records {
		if m.runIDs[i] == runID && r.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) StoreRecord(runID string, rec Record) error {
	m.records = append(m.records, rec)
	m.runIDs = append(m.runIDs, runID)
	return nil
}

func writeSourceConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestSources(t *testing.T, configs map[string]string) *sources.Cache {
	t.Helper()
	dir := t.TempDir()
	for name, body := range configs {
		writeSourceConfig(t, dir, name, body)
	}
	cache := sources.NewCache(dir)
	if err := cache.Run(); err != nil {
		t.Fatal(err)
	}
	return cache
}

const dietSourceYML = `settings:
  enabled: true
  listing_url: "/board/diet"
  kind: "forum"
keywords:
  - "protein"
  - "diet"
  - "vitamin"
`

func newTestOrchestrator(t *testing.T, f fetch.Fetcher, srcs *sources.Cache, store *memStore) *Orchestrator {
	t.Helper()
	return NewOrchestrator(
		Options{BaseURL: "https://forum.example.com", Delay: 0, DefaultPageCap: 50},
		srcs, f, NewExtractor(), NewFilter(0.4), nil, store, NewStats(),
	)
}

func TestRunCrawlsForumCategory(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/board/diet": listingHTML(
			[]string{"/board/diet/100?page=1", "/board/diet/101"}, ""),
		"https://forum.example.com/board/diet/100?page=1": threadFirstPage("/board/diet/100?page=2"),
		"https://forum.example.com/board/diet/100?page=2": threadSecondPage,
		"https://forum.example.com/board/diet/101":        thinItemPage,
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{"diet": dietSourceYML}), store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	snap := o.Stats().Snapshot()
	if snap.State != StateCompleted {
		t.Errorf("expected state %s, got %s", StateCompleted, snap.State)
	}
	if snap.ItemsFound != 2 {
		t.Errorf("expected 2 items found, got %d", snap.ItemsFound)
	}
	if snap.ItemsAccepted != 1 {
		t.Errorf("expected 1 item accepted, got %d", snap.ItemsAccepted)
	}
	if snap.ItemsDropped != 1 {
		t.Errorf("expected the thin item dropped, got %d", snap.ItemsDropped)
	}
	if snap.Comments != 6 {
		t.Errorf("expected 6 comments across both thread pages, got %d", snap.Comments)
	}
	// Listing, thread page 1, thread page 2, thin item.
	if len(f.calls) != 4 {
		t.Errorf("expected 4 fetches, got %d: %v", len(f.calls), f.calls)
	}

	// One thread record plus six comment records.
	if len(store.records) != 7 {
		t.Fatalf("expected 7 stored records, got %d", len(store.records))
	}
	thread := store.records[0]
	if thread.Type != TypeForumPost {
		t.Errorf("expected thread record type %s, got %s", TypeForumPost, thread.Type)
	}
	if thread.Title != "High protein breakfast experiment" {
		t.Errorf("unexpected thread title %q", thread.Title)
	}
	if !strings.Contains(thread.ContentText, "training recovery") {
		t.Errorf("expected thread body in record, got %q", thread.ContentText)
	}
	for _, rec := range store.records[1:] {
		if rec.Type != TypeForumPost {
			t.Errorf("expected comment record type %s, got %s", TypeForumPost, rec.Type)
		}
		if !strings.Contains(rec.URL, "#comment-") {
			t.Errorf("expected comment record URL with fragment, got %s", rec.URL)
		}
		if rec.Category != "diet" {
			t.Errorf("expected category diet, got %s", rec.Category)
		}
	}

	cat := snap.Categories["diet"]
	if cat == nil || cat.Status != "completed" {
		t.Fatalf("expected diet category completed, got %+v", cat)
	}
}

func articleSeriesPage(body, next string) string {
	html := `<html><head><title>Series</title></head><body>
	<div class="board-view">
	  <h1 class="view-title">Winter micronutrient basics</h1>
	  <span class="writer">nutri_kim</span>
	  <div class="view-content"><p>` + body + `</p></div>
	</div>`
	if next != "" {
		html += `<div class="pagination"><a rel="next" href="` + next + `">next</a></div>`
	}
	return html + `</body></html>`
}

func TestRunWalksMultiPageArticle(t *testing.T) {
	articleYML := `settings:
  enabled: true
  listing_url: "/articles/nutrition"
  kind: "article"
keywords:
  - "vitamin"
`
	// Each page alone stays under the acceptance threshold; the combined
	// body clears it.
	pageOne := "Magnesium supports deep sleep and steady muscle recovery through the winter season. " +
		"A daily vitamin routine keeps afternoon fatigue away."
	pageTwo := "Leafy greens, nuts, and whole grains cover most of the daily requirement for active adults. " +
		"Pairing them with fermented foods improves absorption, and a short walk after dinner helps " +
		"the body settle into rest. Small consistent habits beat occasional large doses."

	f := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/articles/nutrition": listingHTML([]string{"/articles/9?page=1"}, ""),
		"https://forum.example.com/articles/9?page=1":  articleSeriesPage(pageOne, "/articles/9?page=2"),
		"https://forum.example.com/articles/9?page=2":  articleSeriesPage(pageTwo, ""),
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{"series": articleYML}), store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	snap := o.Stats().Snapshot()
	if snap.ItemsAccepted != 1 {
		t.Fatalf("expected the two-page article accepted, got %d accepted / %d dropped",
			snap.ItemsAccepted, snap.ItemsDropped)
	}
	// Listing, article page 1, article page 2.
	if len(f.calls) != 3 {
		t.Errorf("expected 3 fetches, got %d: %v", len(f.calls), f.calls)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.Type != TypeArticle {
		t.Errorf("expected record type %s, got %s", TypeArticle, rec.Type)
	}
	for _, want := range []string{"muscle recovery", "fermented foods"} {
		if !strings.Contains(rec.ContentText, want) {
			t.Errorf("expected record body to include page text %q, got %q", want, rec.ContentText)
		}
	}
}

func TestRunSkipsAlreadyVisitedItems(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/board/diet": listingHTML(
			[]string{"/board/diet/100?page=1", "/board/diet/100?page=1&utm_source=list"}, ""),
		"https://forum.example.com/board/diet/100?page=1": threadFirstPage(""),
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{"diet": dietSourceYML}), store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	snap := o.Stats().Snapshot()
	if snap.ItemsFound != 1 {
		t.Errorf("expected tracking-parameter variant to be deduplicated, found %d items", snap.ItemsFound)
	}
	if len(f.calls) != 2 {
		t.Errorf("expected 2 fetches, got %d: %v", len(f.calls), f.calls)
	}
}

func TestRunContentHashDeduplication(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/board/diet": listingHTML(
			[]string{"/board/diet/100", "/board/diet/200"}, ""),
		// Distinct URLs serving identical content.
		"https://forum.example.com/board/diet/100": threadFirstPage(""),
		"https://forum.example.com/board/diet/200": threadFirstPage(""),
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{"diet": dietSourceYML}), store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	snap := o.Stats().Snapshot()
	if snap.ItemsAccepted != 1 {
		t.Errorf("expected second identical item to be deduplicated, accepted %d", snap.ItemsAccepted)
	}
	if snap.ItemsDropped != 1 {
		t.Errorf("expected duplicate counted as dropped, got %d", snap.ItemsDropped)
	}
}

// interruptingFetcher requests interruption after a fixed number of
// fetches, mid-item. The orch field is assigned after construction.
type interruptingFetcher struct {
	inner *fakeFetcher
	after int
	orch  *Orchestrator
}

func (f *interruptingFetcher) Fetch(ctx context.Context, req fetch.Request) (*fetch.Document, error) {
	doc, err := f.inner.Fetch(ctx, req)
	if len(f.inner.calls) == f.after {
		f.orch.Interrupt()
	}
	return doc, err
}

func TestRunInterruptFinishesInFlightItem(t *testing.T) {
	inner := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/board/diet": listingHTML(
			[]string{"/board/diet/100?page=1", "/board/diet/101"}, ""),
		"https://forum.example.com/board/diet/100?page=1": threadFirstPage("/board/diet/100?page=2"),
		"https://forum.example.com/board/diet/100?page=2": threadSecondPage,
		"https://forum.example.com/board/diet/101":        thinItemPage,
	}}
	store := &memStore{}

	// Interrupt fires right after the first item's first page is fetched.
	f := &interruptingFetcher{inner: inner, after: 2}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{"diet": dietSourceYML}), store)
	f.orch = o

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	snap := o.Stats().Snapshot()
	if snap.State != StateInterrupted {
		t.Errorf("expected state %s, got %s", StateInterrupted, snap.State)
	}
	// The in-flight thread still walks its second page and is persisted;
	// the second listing item is never fetched.
	if snap.ItemsAccepted != 1 {
		t.Errorf("expected the in-flight item to complete, accepted %d", snap.ItemsAccepted)
	}
	if snap.Comments != 6 {
		t.Errorf("expected all 6 comments of the in-flight item, got %d", snap.Comments)
	}
	if len(inner.calls) != 3 {
		t.Errorf("expected 3 fetches before stopping, got %d: %v", len(inner.calls), inner.calls)
	}

	cat := snap.Categories["diet"]
	if cat == nil || cat.Status != "interrupted" {
		t.Fatalf("expected diet category interrupted, got %+v", cat)
	}
}

func TestRunWritesSummaryArtifact(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/board/diet":     listingHTML([]string{"/board/diet/100"}, ""),
		"https://forum.example.com/board/diet/100": threadFirstPage(""),
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{"diet": dietSourceYML}), store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	dir := t.TempDir()
	path, err := o.Stats().WriteSummary(dir)
	if err != nil {
		t.Fatalf("failed to write summary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{`"state": "completed"`, `"items_accepted": 1`, o.Stats().RunID} {
		if !strings.Contains(content, want) {
			t.Errorf("expected summary to contain %q", want)
		}
	}
}

func TestRunMultipleCategoriesInNameOrder(t *testing.T) {
	articleYML := `settings:
  enabled: true
  listing_url: "/articles/nutrition"
  kind: "article"
keywords:
  - "vitamin"
`
	f := &fakeFetcher{pages: map[string]string{
		"https://forum.example.com/articles/nutrition": listingHTML([]string{"/articles/1"}, ""),
		"https://forum.example.com/articles/1":         articleHTML,
		"https://forum.example.com/board/diet":         listingHTML([]string{"/board/diet/100"}, ""),
		"https://forum.example.com/board/diet/100":     threadFirstPage(""),
	}}
	store := &memStore{}
	o := newTestOrchestrator(t, f, newTestSources(t, map[string]string{
		"diet":    dietSourceYML,
		"article": articleYML,
	}), store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if f.calls[0] != "https://forum.example.com/articles/nutrition" {
		t.Errorf("expected the article category to run first, calls: %v", f.calls)
	}

	snap := o.Stats().Snapshot()
	if len(snap.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(snap.Categories))
	}
	for name, cat := range snap.Categories {
		if cat.Status != "completed" {
			t.Errorf("category %s: expected completed, got %s", name, cat.Status)
		}
	}
}

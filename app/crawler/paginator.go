package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/healthboard/crawler/app/fetch"
)

const defaultFailureThreshold = 3

// VisitedSet is the run-scoped set of normalized URLs; the walker never
// yields a URL already present.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// MarkSeen records the URL and reports whether it was new.
func (v *VisitedSet) MarkSeen(rawURL string) bool {
	key := NormalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

func (v *VisitedSet) Seen(rawURL string) bool {
	key := NormalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[key]
	return ok
}

func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// NormalizeURL canonicalizes a URL for deduplication: lowercased scheme and
// host, no fragment, no tracking parameters, sorted query.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "ref" || key == "fbclid" {
			q.Del(key)
		}
	}
	u.RawQuery = sortedEncode(q)

	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String()
}

func sortedEncode(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Walker discovers the pages of a listing or a comment thread one step at
// a time: Discovering -> {HasMore -> Discovering | NoMore -> Done}. A run
// of consecutive fetch failures forces early termination with a warning.
type Walker struct {
	fetcher          fetch.Fetcher
	visited          *VisitedSet
	failureThreshold int
}

func NewWalker(fetcher fetch.Fetcher, visited *VisitedSet) *Walker {
	return &Walker{
		fetcher:          fetcher,
		visited:          visited,
		failureThreshold: defaultFailureThreshold,
	}
}

// WalkListing fetches listing pages starting at startURL and hands each
// one to handle until there is no next page, pageCap is reached, or the
// handler returns an error. Already-visited pages terminate the walk.
func (w *Walker) WalkListing(ctx context.Context, startURL string, render bool, waitSelector string,
	pageCap int, handle func(page *ListingPage) error) error {

	current := startURL
	failures := 0

	for pageIndex := 1; ; pageIndex++ {
		if pageCap > 0 && pageIndex > pageCap {
			slog.Debug("Listing page cap reached", "url", current, "cap", pageCap)
			return nil
		}
		if !w.visited.MarkSeen(current) {
			slog.Debug("Listing page already visited, stopping", "url", current)
			return nil
		}

		doc, err := w.fetcher.Fetch(ctx, fetch.Request{URL: current, Render: render, WaitSelector: waitSelector})
		if err != nil {
			failures++
			slog.Warn("Listing page fetch failed", "url", current, "consecutive", failures, "error", err)
			if failures >= w.failureThreshold {
				slog.Warn("Consecutive failure threshold hit, terminating listing walk",
					"url", current, "threshold", w.failureThreshold)
				return nil
			}
			// The next page cannot be discovered from a failed document;
			// synthesize it by stepping the page parameter, if any.
			next := incrementPageParam(current)
			if next == "" {
				return nil
			}
			current = next
			continue
		}
		failures = 0

		page := parseListingPage(doc, pageIndex)
		page.ItemURLs = w.filterNew(page.ItemURLs)

		if err := handle(page); err != nil {
			return err
		}

		if !page.HasNext {
			return nil
		}
		current = page.NextURL
	}
}

// WalkItemPages yields the remaining pages of an item in increasing index
// order, starting from the already-fetched first page document.
func (w *Walker) WalkItemPages(ctx context.Context, firstDoc *fetch.Document, render bool, waitSelector string,
	pageCap int, handle func(pageIndex int, doc *fetch.Document) error) error {

	doc := firstDoc
	next := ""
	failures := 0

	for pageIndex := 2; ; pageIndex++ {
		if pageCap > 0 && pageIndex > pageCap {
			return nil
		}

		if doc != nil {
			next = nextPageURL(doc)
		}
		if next == "" {
			return nil
		}
		if !w.visited.MarkSeen(next) {
			return nil
		}

		nextDoc, err := w.fetcher.Fetch(ctx, fetch.Request{URL: next, Render: render, WaitSelector: waitSelector})
		if err != nil {
			failures++
			slog.Warn("Item page fetch failed", "url", next, "consecutive", failures, "error", err)
			if failures >= w.failureThreshold {
				slog.Warn("Consecutive failure threshold hit, terminating item walk",
					"url", next, "threshold", w.failureThreshold)
				return nil
			}
			// A failed page cannot name its successor; synthesize one by
			// stepping the page parameter, if any.
			doc = nil
			next = incrementPageParam(next)
			continue
		}
		failures = 0

		if err := handle(pageIndex, nextDoc); err != nil {
			return err
		}
		doc = nextDoc
	}
}

func (w *Walker) filterNew(urls []string) []string {
	fresh := urls[:0]
	for _, u := range urls {
		if !w.visited.Seen(u) {
			fresh = append(fresh, u)
		}
	}
	return fresh
}

var itemLinkSelectors = []string{
	".board-list td.subject a[href]",
	".board-list a.title[href]",
	"ul.list-body a[href]",
	".article-list a[href]",
}

func parseListingPage(doc *fetch.Document, pageIndex int) *ListingPage {
	page := &ListingPage{URL: doc.URL, PageIndex: pageIndex}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		slog.Debug("Listing parse failed", "url", doc.URL, "error", err)
		return page
	}

	page.ItemURLs = itemLinks(parsed, doc.URL)

	if next := nextPageURLFromDoc(parsed, doc.URL); next != "" {
		page.HasNext = true
		page.NextURL = next
	}

	return page
}

// itemLinks extracts item detail links in document order, deduplicated,
// resolved against the page URL.
func itemLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var sel *goquery.Selection
	for _, s := range itemLinkSelectors {
		found := doc.Find(s)
		if found.Length() > 0 {
			sel = found
			break
		}
	}
	if sel == nil {
		// Generic fallback: detail-page links by path convention.
		sel = doc.Find(`a[href*="/view/"], a[href*="mode=view"], a[href*="document_srl="]`)
	}

	var links []string
	local := make(map[string]struct{})
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		key := NormalizeURL(abs)
		if _, ok := local[key]; ok {
			return
		}
		local[key] = struct{}{}
		links = append(links, abs)
	})

	return links
}

func nextPageURL(doc *fetch.Document) string {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return ""
	}
	return nextPageURLFromDoc(parsed, doc.URL)
}

// nextPageURLFromDoc applies the next-page heuristics in order: explicit
// pagination controls first, then numbered page-parameter links.
func nextPageURLFromDoc(doc *goquery.Document, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	for _, sel := range []string{`a[rel="next"]`, ".pagination .next a", "a.next", ".paging a.direction.next"} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && href != "" && !strings.HasPrefix(href, "#") {
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return base.ResolveReference(ref).String()
		}
	}

	// Numbered links: find one pointing at the current page number + 1 in
	// a recognized page query parameter.
	currentPage := pageParam(base)
	var next string
	doc.Find(".pagination a[href], .paging a[href], .pages a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if pageParam(abs) == currentPage+1 {
			next = abs.String()
			return false
		}
		return true
	})

	return next
}

var pageParamNames = []string{"page", "cpage", "p", "pg"}

// incrementPageParam returns the URL with its page parameter stepped by
// one, or "" when no recognized page parameter is present.
func incrementPageParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, name := range pageParamNames {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return ""
			}
			q.Set(name, strconv.Itoa(n+1))
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return ""
}

func pageParam(u *url.URL) int {
	q := u.Query()
	for _, name := range pageParamNames {
		if raw := q.Get(name); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				return n
			}
		}
	}
	return 1
}

// BuildURL resolves a possibly relative configured URL against the base.
func BuildURL(baseURL, configured string) (string, error) {
	if strings.HasPrefix(configured, "http://") || strings.HasPrefix(configured, "https://") {
		return configured, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(configured)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

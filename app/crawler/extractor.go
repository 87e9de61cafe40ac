package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
)

const minBodyLength = 100

var reWhitespace = regexp.MustCompile(`\s+`)

// strippedSelectors are removed from a document before any body strategy
// runs: scripts, navigation, share widgets and similar chrome.
var strippedSelectors = []string{
	"script", "style", "noscript", "iframe",
	"nav", "header", "footer", "aside",
	".share", ".sns", ".sns-share", ".social-buttons",
	".ad", ".advertisement", ".banner",
	".related-articles", ".recommend",
}

// bodyStrategy is one entry of the extraction cascade: a pure function from
// document to candidate body text. The first strategy whose result reaches
// minBodyLength wins.
type bodyStrategy struct {
	name string
	run  func(doc *goquery.Document, pageURL string) (text, html string)
}

func selectorStrategy(name string, selectors ...string) bodyStrategy {
	return bodyStrategy{
		name: name,
		run: func(doc *goquery.Document, _ string) (string, string) {
			for _, sel := range selectors {
				node := doc.Find(sel).First()
				if node.Length() == 0 {
					continue
				}
				text := normalizeText(node.Text())
				if text == "" {
					continue
				}
				html, _ := node.Html()
				return text, html
			}
			return "", ""
		},
	}
}

func readabilityStrategy() bodyStrategy {
	return bodyStrategy{
		name: "readability",
		run: func(doc *goquery.Document, pageURL string) (string, string) {
			raw, err := doc.Html()
			if err != nil {
				return "", ""
			}
			parsed, err := url.Parse(pageURL)
			if err != nil {
				parsed = nil
			}
			article, err := readability.FromReader(strings.NewReader(raw), parsed)
			if err != nil {
				return "", ""
			}
			return normalizeText(article.TextContent), article.Content
		},
	}
}

// defaultBodyStrategies is ordered from most site-specific to most generic;
// new structure variants are added here, not in control flow.
var defaultBodyStrategies = []bodyStrategy{
	selectorStrategy("article", "article"),
	selectorStrategy("known-containers",
		".board-view .view-content", ".view-content", ".post-content",
		".article-content", ".entry-content", "#article-body"),
	readabilityStrategy(),
	selectorStrategy("generic-main", "main", "#content", "#main"),
}

var commentContainerSelectors = []string{
	".comment-list .comment-item",
	".comments .comment",
	"ul.cmt-list > li",
	".reply-list .reply",
}

// Extractor turns rendered documents into structured records. Strategies
// are injected so tests and new site variants can supply their own cascade.
type Extractor struct {
	bodyStrategies []bodyStrategy
}

func NewExtractor() *Extractor {
	return &Extractor{bodyStrategies: defaultBodyStrategies}
}

// ExtractItem builds a ContentItem header plus its first page from doc.
// The boolean result is false on an extraction miss, which is an expected
// outcome, not an error: the caller drops and counts the candidate.
func (e *Extractor) ExtractItem(html, pageURL, category, kind string) (*ContentItem, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Debug("Document parse failed", "url", pageURL, "error", err)
		return nil, false
	}

	title := extractTitle(doc)
	author := extractAuthor(doc)
	publishedAt := extractTimestamp(doc)

	page, ok := e.extractPage(doc, pageURL, kind, 1)
	if !ok {
		return nil, false
	}

	item := &ContentItem{
		URL:         pageURL,
		Title:       title,
		Author:      author,
		PublishedAt: publishedAt,
		Category:    category,
		Kind:        itemType(kind),
		Pages:       []ItemPage{page},
		TotalPages:  1,
	}
	item.TotalComments = len(page.Comments)

	return item, true
}

// ExtractPage extracts one additional page of an already-started item.
func (e *Extractor) ExtractPage(html, pageURL, kind string, pageIndex int) (ItemPage, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Debug("Document parse failed", "url", pageURL, "error", err)
		return ItemPage{}, false
	}
	return e.extractPage(doc, pageURL, kind, pageIndex)
}

func (e *Extractor) extractPage(doc *goquery.Document, pageURL, kind string, pageIndex int) (ItemPage, bool) {
	stripUnwanted(doc)

	if kind == TypeForumPost || kind == "forum" {
		comments := extractComments(doc, pageIndex)
		// The thread body lives on page 1; later pages may carry comments
		// only.
		text, html := e.runBodyCascade(doc, pageURL)
		if pageIndex > 1 && len(comments) > 0 {
			return ItemPage{PageIndex: pageIndex, BodyText: text, BodyHTML: html, Comments: comments}, true
		}
		if len(text) < minBodyLength && len(comments) == 0 {
			return ItemPage{}, false
		}
		return ItemPage{PageIndex: pageIndex, BodyText: text, BodyHTML: html, Comments: comments}, true
	}

	text, html := e.runBodyCascade(doc, pageURL)
	if len(text) < minBodyLength {
		return ItemPage{}, false
	}
	return ItemPage{PageIndex: pageIndex, BodyText: text, BodyHTML: html}, true
}

func (e *Extractor) runBodyCascade(doc *goquery.Document, pageURL string) (string, string) {
	for _, strategy := range e.bodyStrategies {
		text, html := strategy.run(doc, pageURL)
		if len(text) >= minBodyLength {
			slog.Debug("Body strategy matched", "strategy", strategy.name, "length", len(text))
			return text, html
		}
	}
	return "", ""
}

func stripUnwanted(doc *goquery.Document) {
	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range []string{".view-title", ".post-title", "h1"} {
		if t := normalizeText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && t != "" {
		return normalizeText(t)
	}
	return normalizeText(doc.Find("title").First().Text())
}

func extractAuthor(doc *goquery.Document) string {
	for _, sel := range []string{".writer", ".author", ".nickname", ".post-author", `meta[name="author"]`} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if goquery.NodeName(node) == "meta" {
			if v, ok := node.Attr("content"); ok && v != "" {
				return normalizeText(v)
			}
			continue
		}
		if t := normalizeText(node.Text()); t != "" {
			return t
		}
	}
	return ""
}

func extractTimestamp(doc *goquery.Document) *time.Time {
	candidates := []string{}
	if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}
	for _, sel := range []string{".date", ".post-date", ".view-date", ".regdate"} {
		if t := normalizeText(doc.Find(sel).First().Text()); t != "" {
			candidates = append(candidates, t)
		}
	}

	for _, c := range candidates {
		if ts, err := dateparse.ParseAny(c); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

// extractComments pulls ordered comments off a thread page. IDs are
// deterministic so re-extracting the same DOM yields identical records.
func extractComments(doc *goquery.Document, pageNumber int) []CommentRecord {
	var nodes *goquery.Selection
	for _, sel := range commentContainerSelectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			nodes = found
			break
		}
	}
	if nodes == nil {
		return nil
	}

	var comments []CommentRecord
	nodes.Each(func(i int, node *goquery.Selection) {
		content := normalizeText(node.Find(".comment-content, .cmt-content, .content, p").First().Text())
		if content == "" {
			content = normalizeText(node.Text())
		}
		if content == "" {
			return
		}

		author := normalizeText(node.Find(".comment-author, .nickname, .writer, .author").First().Text())
		authorID, _ := node.Attr("data-author-id")

		var ts *time.Time
		if raw := normalizeText(node.Find(".comment-date, .date, time").First().Text()); raw != "" {
			if parsed, err := dateparse.ParseAny(raw); err == nil {
				utc := parsed.UTC()
				ts = &utc
			}
		}

		likeCount := 0
		if raw := normalizeText(node.Find(".like-count, .likes, .vote-up").First().Text()); raw != "" {
			if n, err := strconv.Atoi(strings.TrimLeft(raw, "+")); err == nil {
				likeCount = n
			}
		}

		position := i + 1
		comments = append(comments, CommentRecord{
			ID:         commentID(pageNumber, position, content),
			Author:     author,
			AuthorID:   authorID,
			Content:    content,
			Timestamp:  ts,
			PageNumber: pageNumber,
			Position:   position,
			LikeCount:  likeCount,
		})
	})

	return comments
}

func commentID(pageNumber, position int, content string) string {
	return fmt.Sprintf("%d-%d-%s", pageNumber, position, ContentHash(content)[:12])
}

// ContentHash is the hash used for comment IDs and within-run deduplication.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

func itemType(kind string) string {
	if kind == "forum" || kind == TypeForumPost {
		return TypeForumPost
	}
	return TypeArticle
}

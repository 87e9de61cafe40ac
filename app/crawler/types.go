package crawler

import (
	"time"
)

// Record is the output contract handed to the indexing collaborator: one
// row per accepted content item or comment.
type Record struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Date        *time.Time `json:"date"`
	Category    string     `json:"category"`
	ContentText string     `json:"content_text"`
	ContentHTML string     `json:"content_html,omitempty"`
	Type        string     `json:"type"`
	ScrapedAt   time.Time  `json:"scraped_at"`
	ContentHash string     `json:"-"`
}

const (
	TypeArticle   = "article"
	TypeForumPost = "forum_post"
)

// ContentItem is an article or forum thread, possibly spanning several
// pages. It is finalized once all pages are walked.
type ContentItem struct {
	URL           string
	Title         string
	Author        string
	PublishedAt   *time.Time
	Category      string
	Kind          string // TypeArticle or TypeForumPost
	Pages         []ItemPage
	TotalPages    int
	TotalComments int
}

// BodyText concatenates the body text of all pages in index order.
func (it *ContentItem) BodyText() string {
	switch len(it.Pages) {
	case 0:
		return ""
	case 1:
		return it.Pages[0].BodyText
	}

	var b []byte
	for i, p := range it.Pages {
		if i > 0 {
			b = append(b, '\n', '\n')
		}
		b = append(b, p.BodyText...)
	}
	return string(b)
}

// Comments returns all comments across pages in page/position order.
func (it *ContentItem) Comments() []CommentRecord {
	var all []CommentRecord
	for _, p := range it.Pages {
		all = append(all, p.Comments...)
	}
	return all
}

// ItemPage is one fetched page of an item: body text for articles, an
// ordered comment list for threads. Immutable once extracted.
type ItemPage struct {
	PageIndex int
	BodyText  string
	BodyHTML  string
	Comments  []CommentRecord
}

// CommentRecord is a single extracted comment. The ID is deterministic:
// page number, position, and a content hash.
type CommentRecord struct {
	ID         string
	Author     string
	AuthorID   string
	Content    string
	Timestamp  *time.Time
	PageNumber int
	Position   int
	LikeCount  int
}

// ListingPage is one page of a category listing; discarded after its item
// URLs are consumed.
type ListingPage struct {
	URL       string
	PageIndex int
	ItemURLs  []string
	HasNext   bool
	NextURL   string
}

package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/healthboard/crawler/app/session"
)

// HTTPFetcher is the plain fetch strategy: a net/http client whose cookie
// jar is seeded from the run's session at construction time.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(sess *session.Session, baseURL, userAgent string, timeout time.Duration) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if sess != nil {
		jar.SetCookies(base, sess.HTTPCookies())
	}

	return &HTTPFetcher{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		userAgent: userAgent,
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Document{
		URL:        resp.Request.URL.String(),
		HTML:       body,
		StatusCode: resp.StatusCode,
		Rendered:   false,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// decodeBody converts the response body to UTF-8 when the Content-Type
// header declares another charset. Unknown charsets fall back to the raw
// bytes rather than failing the fetch.
func decodeBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body

	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		name := strings.ToLower(params["charset"])
		if name != "" && name != "utf-8" && name != "utf8" {
			if enc, err := htmlindex.Get(name); err == nil {
				reader = transform.NewReader(reader, enc.NewDecoder())
			} else {
				slog.Debug("Unknown charset, reading raw bytes", "charset", name)
			}
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

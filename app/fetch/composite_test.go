package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubFetcher struct {
	calls int
	fail  int // fail this many leading calls
	doc   *Document
}

func (s *stubFetcher) Fetch(ctx context.Context, req Request) (*Document, error) {
	s.calls++
	if s.calls <= s.fail {
		return nil, errors.New("stub failure")
	}
	if s.doc != nil {
		return s.doc, nil
	}
	return &Document{URL: req.URL, HTML: "<html></html>", StatusCode: 200}, nil
}

func TestCompositePlainStrategy(t *testing.T) {
	plain := &stubFetcher{}
	c := NewComposite(plain, nil, fastPolicy(3))

	doc, err := c.Fetch(context.Background(), Request{URL: "http://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Rendered {
		t.Error("Plain fetch should not be marked rendered")
	}
	if plain.calls != 1 {
		t.Errorf("Expected 1 plain call, got %d", plain.calls)
	}
}

func TestCompositeRendererFallsBackToPlain(t *testing.T) {
	plain := &stubFetcher{}
	renderer := &stubFetcher{fail: 100}
	c := NewComposite(plain, renderer, fastPolicy(3))

	doc, err := c.Fetch(context.Background(), Request{URL: "http://example.com/a", Render: true})
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil {
		t.Fatal("Expected document from fallback")
	}
	if renderer.calls != 1 || plain.calls != 1 {
		t.Errorf("Expected 1 renderer and 1 plain call, got %d/%d", renderer.calls, plain.calls)
	}
}

func TestCompositeRetriesWhenBothStrategiesFail(t *testing.T) {
	plain := &stubFetcher{fail: 2}
	renderer := &stubFetcher{fail: 100}
	c := NewComposite(plain, renderer, fastPolicy(3))

	doc, err := c.Fetch(context.Background(), Request{URL: "http://example.com/a", Render: true})
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil {
		t.Fatal("Expected document on third attempt")
	}
	if plain.calls != 3 {
		t.Errorf("Expected 3 plain attempts, got %d", plain.calls)
	}
}

func TestCompositeReportsRecoverableErrorAfterRetries(t *testing.T) {
	plain := &stubFetcher{fail: 100}
	c := NewComposite(plain, nil, fastPolicy(3))

	_, err := c.Fetch(context.Background(), Request{URL: "http://example.com/a"})
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if plain.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", plain.calls)
	}
}

func TestHTTPFetcherDecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" with a latin-1 encoded é.
		w.Write([]byte("<html><body>caf\xe9</body></html>"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(nil, srv.URL, "test-agent", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/page"})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(doc.HTML, "café") {
		t.Errorf("Expected decoded body to contain 'café', got %q", doc.HTML)
	}
}

func TestHTTPFetcherRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(nil, srv.URL, "test-agent", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Fetch(context.Background(), Request{URL: srv.URL}); err == nil {
		t.Error("Expected error for 503 response")
	}
}

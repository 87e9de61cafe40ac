package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Options configures a Manager. SectionPath is the first in-site page the
// bootstrap sequence visits after the origin; the site sets its session
// cookies and embeds the CSRF token there.
type Options struct {
	BaseURL     string
	SectionPath string
	CachePath   string
	TTL         time.Duration
	UserAgent   string
	Client      *http.Client
}

type Manager struct {
	baseURL     string
	sectionPath string
	cachePath   string
	ttl         time.Duration
	userAgent   string
	client      *http.Client
}

func NewManager(opts Options) *Manager {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	sectionPath := opts.SectionPath
	if sectionPath == "" {
		sectionPath = "/board"
	}

	return &Manager{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		sectionPath: sectionPath,
		cachePath:   opts.CachePath,
		ttl:         opts.TTL,
		userAgent:   opts.UserAgent,
		client:      client,
	}
}

// Acquire returns a validated session: the cached one when it is still
// fresh and passes the validation probe, otherwise a freshly bootstrapped
// one. Bootstrap is retried exactly once; a second validation failure is
// fatal to the run.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	cached, err := LoadCached(m.cachePath, m.ttl)
	if err != nil {
		slog.Warn("Session cache unreadable, bootstrapping", "error", err)
	}

	if cached != nil {
		if m.Validate(ctx, cached) {
			slog.Info("Reusing cached session", "age", time.Since(cached.CreatedAt).Round(time.Second))
			cached.validated = true
			return cached, nil
		}
		slog.Info("Cached session rejected by validation probe")
	}

	s, err := m.bootstrap(ctx)
	if err == nil && m.Validate(ctx, s) {
		s.validated = true
		return s, nil
	}
	if err != nil {
		slog.Warn("Session bootstrap failed, retrying once", "error", err)
	} else {
		slog.Warn("Fresh session failed validation, retrying once")
	}

	s, err = m.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("session bootstrap failed twice: %w", err)
	}
	if !m.Validate(ctx, s) {
		return nil, fmt.Errorf("session validation failed after forced re-acquisition")
	}

	s.validated = true
	return s, nil
}

// Validate issues a lightweight probe and checks for logged-out signals:
// a redirect toward a login page or a login form in the response body.
func (m *Manager) Validate(ctx context.Context, s *Session) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+m.sectionPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", m.userAgent)
	for _, c := range s.HTTPCookies() {
		req.AddCookie(c)
	}

	redirectedToLogin := false
	client := *m.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if isLoginURL(req.URL) {
			redirectedToLogin = true
			return http.ErrUseLastResponse
		}
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if redirectedToLogin || isLoginURL(resp.Request.URL) {
		return false
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return false
	}
	return !hasLoginForm(string(body))
}

// bootstrap performs the login-equivalent sequence: visit the origin so the
// site issues its session cookies, visit the target section, and pull the
// CSRF-equivalent token out of the rendered markup. The fresh session is
// persisted before returning.
func (m *Manager) bootstrap(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := *m.client
	client.Jar = jar

	if _, err := m.get(ctx, &client, m.baseURL+"/"); err != nil {
		return nil, fmt.Errorf("origin visit failed: %w", err)
	}

	body, err := m.get(ctx, &client, m.baseURL+m.sectionPath)
	if err != nil {
		return nil, fmt.Errorf("section visit failed: %w", err)
	}

	token := extractCSRFToken(body)
	if token == "" {
		slog.Debug("No CSRF token found during bootstrap")
	}

	base, err := url.Parse(m.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	s := &Session{
		CSRFToken: token,
		CreatedAt: time.Now().UTC(),
	}
	for _, c := range jar.Cookies(base) {
		domain := c.Domain
		if domain == "" {
			domain = base.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		s.Cookies = append(s.Cookies, Cookie{Name: c.Name, Value: c.Value, Domain: domain, Path: path})
	}

	if err := Persist(s, m.cachePath); err != nil {
		slog.Warn("Failed to persist session cache", "error", err)
	}

	slog.Info("Session bootstrapped", "cookies", len(s.Cookies), "has_token", token != "")

	return s, nil
}

func (m *Manager) get(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}

func extractCSRFToken(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	if token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content"); ok && token != "" {
		return token
	}
	if token, ok := doc.Find(`input[name="_token"]`).Attr("value"); ok && token != "" {
		return token
	}
	if token, ok := doc.Find(`input[name="csrfmiddlewaretoken"]`).Attr("value"); ok && token != "" {
		return token
	}

	return ""
}

func isLoginURL(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	return strings.Contains(p, "login") || strings.Contains(p, "signin") || strings.Contains(p, "member/auth")
}

func hasLoginForm(body string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find(`form[action*="login"]`).Length() > 0 {
		return true
	}
	return doc.Find(`input[type="password"]`).Length() > 0 && doc.Find(`input[name="password"], input[name="user_pw"]`).Length() > 0
}

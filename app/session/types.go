package session

import (
	"net/http"
	"time"
)

// Cookie is the round-trippable subset of http.Cookie persisted in the
// session cache artifact.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Session holds the authentication state for one crawl run: the cookie set
// and the CSRF-equivalent token extracted during bootstrap. A single Session
// is the source of truth for every fetch in a run.
type Session struct {
	Cookies   []Cookie  `json:"cookies"`
	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"created_at"`

	validated bool
}

func (s *Session) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return cookies
}

func (s *Session) Expired(ttl time.Duration) bool {
	return time.Since(s.CreatedAt) > ttl
}

func (s *Session) Validated() bool {
	return s.validated
}

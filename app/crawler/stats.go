package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run states.
const (
	StateIdle        = "idle"
	StateRunning     = "running"
	StateCompleted   = "completed"
	StateInterrupted = "interrupted"
	StateFailed      = "failed"
)

// Stats tracks one run. The orchestrator mutates it sequentially; the
// mutex exists because the status API reads snapshots concurrently.
type Stats struct {
	mu sync.Mutex

	RunID      string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time

	PagesVisited  int
	ItemsFound    int
	ItemsAccepted int
	ItemsDropped  int
	Comments      int
	Errors        int
	FailedURLs    []string

	Categories map[string]*CategoryStats
}

type CategoryStats struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	PagesVisited  int    `json:"pages_visited"`
	ItemsFound    int    `json:"items_found"`
	ItemsAccepted int    `json:"items_accepted"`
	ItemsDropped  int    `json:"items_dropped"`
	Comments      int    `json:"comments"`
	Errors        int    `json:"errors"`
}

func NewStats() *Stats {
	return &Stats{
		RunID:      uuid.NewString(),
		State:      StateIdle,
		Categories: make(map[string]*CategoryStats),
	}
}

func (s *Stats) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
	switch state {
	case StateRunning:
		s.StartedAt = time.Now().UTC()
	case StateCompleted, StateInterrupted, StateFailed:
		s.FinishedAt = time.Now().UTC()
	}
}

func (s *Stats) Category(name string) *CategoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Categories[name]
	if !ok {
		c = &CategoryStats{Name: name, Status: "pending"}
		s.Categories[name] = c
	}
	return c
}

func (s *Stats) PageVisited(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PagesVisited++
	if c := s.Categories[category]; c != nil {
		c.PagesVisited++
	}
}

func (s *Stats) ItemFound(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ItemsFound++
	if c := s.Categories[category]; c != nil {
		c.ItemsFound++
	}
}

func (s *Stats) ItemAccepted(category string, comments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ItemsAccepted++
	s.Comments += comments
	if c := s.Categories[category]; c != nil {
		c.ItemsAccepted++
		c.Comments += comments
	}
}

func (s *Stats) ItemDropped(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ItemsDropped++
	if c := s.Categories[category]; c != nil {
		c.ItemsDropped++
	}
}

func (s *Stats) Error(category, failedURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
	if failedURL != "" {
		s.FailedURLs = append(s.FailedURLs, failedURL)
	}
	if c := s.Categories[category]; c != nil {
		c.Errors++
	}
}

func (s *Stats) SetCategoryStatus(name, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.Categories[name]; c != nil {
		c.Status = status
	}
}

// Snapshot is the JSON shape shared by the stats endpoint and the run
// summary artifact.
type Snapshot struct {
	RunID         string                    `json:"run_id"`
	State         string                    `json:"state"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    *time.Time                `json:"finished_at,omitempty"`
	Duration      string                    `json:"duration"`
	PagesVisited  int                       `json:"pages_visited"`
	ItemsFound    int                       `json:"items_found"`
	ItemsAccepted int                       `json:"items_accepted"`
	ItemsDropped  int                       `json:"items_dropped"`
	Comments      int                       `json:"comments"`
	Errors        int                       `json:"errors"`
	FailedURLs    []string                  `json:"failed_urls,omitempty"`
	Categories    map[string]*CategoryStats `json:"categories"`
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		RunID:         s.RunID,
		State:         s.State,
		StartedAt:     s.StartedAt,
		PagesVisited:  s.PagesVisited,
		ItemsFound:    s.ItemsFound,
		ItemsAccepted: s.ItemsAccepted,
		ItemsDropped:  s.ItemsDropped,
		Comments:      s.Comments,
		Errors:        s.Errors,
		FailedURLs:    append([]string(nil), s.FailedURLs...),
		Categories:    make(map[string]*CategoryStats, len(s.Categories)),
	}
	for k, v := range s.Categories {
		copied := *v
		snap.Categories[k] = &copied
	}

	end := time.Now().UTC()
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		snap.FinishedAt = &finished
		end = finished
	}
	if !s.StartedAt.IsZero() {
		snap.Duration = end.Sub(s.StartedAt).Round(time.Millisecond).String()
	}

	return snap
}

// WriteSummary writes the run summary artifact. It is called on every exit
// path, including interruption.
func (s *Stats) WriteSummary(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create summary directory: %w", err)
	}

	snap := s.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize summary: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run-%s.json", snap.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	return path, nil
}

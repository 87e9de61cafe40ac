package database

import (
	"time"
)

type StoredRecord struct {
	ID          string
	RunID       string
	URL         string
	Title       string
	Author      string
	PublishedAt *time.Time
	Category    string
	ContentText string
	ContentHTML string
	Type        string
	ContentHash string
	ScrapedAt   time.Time
	CreatedAt   time.Time
}

type Run struct {
	ID            string
	State         string
	StartedAt     time.Time
	FinishedAt    *time.Time
	PagesVisited  int
	ItemsFound    int
	ItemsAccepted int
	ItemsDropped  int
	Comments      int
	Errors        int
}

package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/healthboard/crawler/app/crawler"
)

// RecordRepository handles database operations for crawled records
type RecordRepository struct {
	db *DB
}

var _ RecordRepositoryInterface = (*RecordRepository)(nil)
var _ crawler.RecordStore = (*RecordRepository)(nil)

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// StoreRecord stores one accepted record. Re-storing identical content
// within the same run is a no-op.
func (r *RecordRepository) StoreRecord(runID string, rec crawler.Record) error {
	_, err := r.db.Exec(`
		INSERT INTO records (
			id, run_id, url, title, author, published_at,
			category, content_text, content_html, type, content_hash, scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, content_hash) DO NOTHING
	`, uuid.NewString(), runID, rec.URL, rec.Title, rec.Author, rec.Date,
		rec.Category, rec.ContentText, rec.ContentHTML, rec.Type, rec.ContentHash, rec.ScrapedAt)

	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	return nil
}

// CheckDuplicate reports whether content with the given hash was already
// stored during this run.
func (r *RecordRepository) CheckDuplicate(runID, contentHash string) (bool, error) {
	var id string
	err := r.db.QueryRow(`
		SELECT id FROM records WHERE run_id = ? AND content_hash = ? LIMIT 1
	`, runID, contentHash).Scan(&id)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return true, nil
}

// GetRecords returns the most recently scraped records, optionally limited
// to one category.
func (r *RecordRepository) GetRecords(category string, limit int) ([]StoredRecord, error) {
	query := `
		SELECT id, run_id, url, title, author, published_at,
			category, content_text, content_html, type, content_hash, scraped_at, created_at
		FROM records`
	args := []interface{}{}

	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY scraped_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.URL, &rec.Title, &rec.Author, &rec.PublishedAt,
			&rec.Category, &rec.ContentText, &rec.ContentHTML, &rec.Type, &rec.ContentHash,
			&rec.ScrapedAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetRecordCount returns the total number of stored records
func (r *RecordRepository) GetRecordCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// GetRunRecordCount returns the number of records stored during one run
func (r *RecordRepository) GetRunRecordCount(runID string) (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM records WHERE run_id = ?`, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count run records: %w", err)
	}
	return count, nil
}

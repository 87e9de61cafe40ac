package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/healthboard/crawler/app/crawler"
)

// RunRepository handles database operations for crawl runs
type RunRepository struct {
	db *DB
}

var _ RunRepositoryInterface = (*RunRepository)(nil)

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(runID string, startedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO runs (id, state, started_at) VALUES (?, 'running', ?)
	`, runID, startedAt)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun records the terminal state and counters of a run.
func (r *RunRepository) FinishRun(runID string, snap crawler.Snapshot) error {
	finishedAt := time.Now().UTC()
	if snap.FinishedAt != nil {
		finishedAt = *snap.FinishedAt
	}

	_, err := r.db.Exec(`
		UPDATE runs SET
			state = ?,
			finished_at = ?,
			pages_visited = ?,
			items_found = ?,
			items_accepted = ?,
			items_dropped = ?,
			comments = ?,
			errors = ?
		WHERE id = ?
	`, snap.State, finishedAt, snap.PagesVisited, snap.ItemsFound,
		snap.ItemsAccepted, snap.ItemsDropped, snap.Comments, snap.Errors, runID)

	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

func (r *RunRepository) GetRun(runID string) (*Run, error) {
	var run Run
	err := r.db.QueryRow(`
		SELECT id, state, started_at, finished_at, pages_visited,
			items_found, items_accepted, items_dropped, comments, errors
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.State, &run.StartedAt, &run.FinishedAt, &run.PagesVisited,
		&run.ItemsFound, &run.ItemsAccepted, &run.ItemsDropped, &run.Comments, &run.Errors)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

package database

import (
	"time"

	"github.com/healthboard/crawler/app/crawler"
)

type RecordRepositoryInterface interface {
	StoreRecord(runID string, rec crawler.Record) error
	CheckDuplicate(runID, contentHash string) (bool, error)
	GetRecords(category string, limit int) ([]StoredRecord, error)
	GetRecordCount() (int, error)
	GetRunRecordCount(runID string) (int, error)
}

type RunRepositoryInterface interface {
	CreateRun(runID string, startedAt time.Time) error
	FinishRun(runID string, snap crawler.Snapshot) error
	GetRun(runID string) (*Run, error)
}

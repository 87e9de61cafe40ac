package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/healthboard/crawler/app/crawler"
	"github.com/healthboard/crawler/app/database"
	"github.com/healthboard/crawler/app/sources"
)

func NewHandler(stats *crawler.Stats, recordRepo database.RecordRepositoryInterface,
	sourceCache *sources.Cache) *Handler {
	return &Handler{
		stats:       stats,
		recordRepo:  recordRepo,
		sourceCache: sourceCache,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"run_state": h.stats.Snapshot().State,
	}

	if recordCount, err := h.recordRepo.GetRecordCount(); err == nil {
		health["records"] = recordCount
	}

	health["loaded_sources"] = h.sourceCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

// GetStats serves a live snapshot of the current run.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

func (h *Handler) APIListRecords(c *gin.Context) {
	category := c.Query("category")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 500"})
			return
		}
		limit = parsed
	}

	records, err := h.recordRepo.GetRecords(category, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_records", "category", category, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]interface{}{
			"url":          rec.URL,
			"title":        rec.Title,
			"author":       rec.Author,
			"date":         rec.PublishedAt,
			"category":     rec.Category,
			"content_text": rec.ContentText,
			"type":         rec.Type,
			"scraped_at":   rec.ScrapedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(out),
		"records": out,
	})
}

// APIGetRun reports how many records the current run has stored so far,
// alongside the live counters.
func (h *Handler) APIGetRun(c *gin.Context) {
	snap := h.stats.Snapshot()

	stored, err := h.recordRepo.GetRunRecordCount(snap.RunID)
	if err != nil {
		slog.Error("Database error", "operation", "get_run_record_count", "run", snap.RunID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":            snap,
		"stored_records": stored,
	})
}

package api

import (
	"github.com/healthboard/crawler/app/crawler"
	"github.com/healthboard/crawler/app/database"
	"github.com/healthboard/crawler/app/sources"
)

type Handler struct {
	stats       *crawler.Stats
	recordRepo  database.RecordRepositoryInterface
	sourceCache *sources.Cache
}

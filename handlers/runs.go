package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"city311-api/models"
	"city311-api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const runsCacheTTL = 5 * time.Second

// RunsHandler lists the pipeline's training history.
type RunsHandler struct {
	db     *gorm.DB
	cache  *services.CacheService
	logger *zap.Logger
}

func NewRunsHandler(db *gorm.DB, cache *services.CacheService, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{db: db, cache: cache, logger: logger}
}

// ListRuns pages through runs newest first.
func (h *RunsHandler) ListRuns(c *gin.Context) {
	p, err := ParsePagination(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	cacheKey := p.cacheKey()

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.WithContext(c.Request.Context()).
		Model(&models.ModelRun{}).
		Order("started_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("started_at < ?", *p.Before)
	}
	if p.Status != "" {
		query = query.Where("status = ?", p.Status)
	}

	var rows []models.ModelRun
	if err := query.Find(&rows).Error; err != nil {
		h.logger.Error("list model runs failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "database query failed")
		return
	}

	resp := runsPage(rows, p.Limit)
	go h.cache.Set(context.Background(), cacheKey, resp, runsCacheTTL)

	c.JSON(http.StatusOK, resp)
}

func (h *RunsHandler) GetRun(c *gin.Context) {
	var run models.ModelRun
	err := h.db.WithContext(c.Request.Context()).
		Where("run_id = ?", c.Param("id")).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("get model run failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "database query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": run})
}

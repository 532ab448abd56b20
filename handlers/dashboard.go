package handlers

import (
	"fmt"
	"net/http"
	"time"

	"city311-api/insights"
	"city311-api/serving"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	APIVersion = "1.0.0"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// DashboardHandler serves the precomputed report and service status.
type DashboardHandler struct {
	snapshot *serving.Snapshot
	logger   *zap.Logger
	now      func() time.Time
}

func NewDashboardHandler(snapshot *serving.Snapshot, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{snapshot: snapshot, logger: logger, now: time.Now}
}

func (h *DashboardHandler) GetDashboardData(c *gin.Context) {
	report := h.snapshot.Report()
	if report == nil {
		respondError(c, http.StatusServiceUnavailable, "Dashboard data not available. Run the pipeline first.")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"data":         report,
		"last_updated": report.GeneratedAt,
	})
}

func (h *DashboardHandler) ExportDashboard(c *gin.Context) {
	report := h.snapshot.Report()
	if report == nil {
		respondError(c, http.StatusServiceUnavailable, "Dashboard data not available. Run the pipeline first.")
		return
	}
	data, err := insights.ExportXLSX(report)
	if err != nil {
		h.logger.Error("xlsx export failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Export failed")
		return
	}
	name := fmt.Sprintf("city311-insights-%s.xlsx", report.GeneratedAt.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *DashboardHandler) GetCategoricalValues(c *gin.Context) {
	values, ok := h.snapshot.CategoricalValues()
	if !ok {
		respondError(c, http.StatusServiceUnavailable, "Data not available")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   values,
	})
}

func (h *DashboardHandler) Health(c *gin.Context) {
	charts := h.snapshot.ReportAvailable()
	model := h.snapshot.ModelAvailable()

	message := "Backend ready for dynamic charts and ML predictions"
	switch {
	case !charts && !model:
		message = "No dashboard data or model loaded. Run the pipeline and restart."
	case !charts:
		message = "Model loaded but dashboard data is missing"
	case !model:
		message = "Dashboard data loaded but the ML model is missing"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "healthy",
		"timestamp":            h.now().Format(time.RFC3339),
		"chart_data_available": charts,
		"ml_model_available":   model,
		"message":              message,
	})
}

func (h *DashboardHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "City 311 Dashboard API - Dynamic Charts & ML Predictions",
		"version": APIVersion,
		"endpoints": gin.H{
			"charts":       "/api/dashboard-data",
			"export":       "/api/dashboard-data/export",
			"prediction":   "/api/predict-completion (POST)",
			"dropdowns":    "/api/categorical-values",
			"health":       "/api/health",
			"model_runs":   "/api/model-runs (auth)",
			"live_runs":    "/api/model-runs/live (websocket, auth)",
			"metrics":      "/metrics",
			"authenticate": "/api/auth/login (POST)",
		},
	})
}

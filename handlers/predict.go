package handlers

import (
	"errors"
	"io"
	"net/http"

	"city311-api/metrics"
	"city311-api/prediction"
	"city311-api/serving"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PredictHandler struct {
	snapshot *serving.Snapshot
	logger   *zap.Logger
}

func NewPredictHandler(snapshot *serving.Snapshot, logger *zap.Logger) *PredictHandler {
	return &PredictHandler{snapshot: snapshot, logger: logger}
}

func (h *PredictHandler) PredictCompletion(c *gin.Context) {
	predictor := h.snapshot.Predictor()
	if predictor == nil {
		metrics.PredictionFailures.WithLabelValues("unavailable").Inc()
		respondError(c, http.StatusServiceUnavailable, "ML model not available. Run the pipeline first.")
		return
	}

	var req prediction.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.PredictionFailures.WithLabelValues("bad_request").Inc()
		if errors.Is(err, io.EOF) {
			respondError(c, http.StatusBadRequest, "No data provided")
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := predictor.Predict(req)
	if err != nil {
		var verr *prediction.ValidationError
		switch {
		case errors.As(err, &verr):
			metrics.PredictionFailures.WithLabelValues("validation").Inc()
			respondError(c, http.StatusBadRequest, verr.Error())
		case errors.Is(err, prediction.ErrModelUnavailable):
			metrics.PredictionFailures.WithLabelValues("unavailable").Inc()
			respondError(c, http.StatusServiceUnavailable, "ML model not available. Run the pipeline first.")
		default:
			metrics.PredictionFailures.WithLabelValues("internal").Inc()
			h.logger.Error("prediction failed", zap.Error(err), zap.Any("request", req))
			respondError(c, http.StatusInternalServerError, "Prediction failed")
		}
		return
	}

	metrics.Predictions.WithLabelValues(res.Prediction).Inc()
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"prediction": res,
	})
}

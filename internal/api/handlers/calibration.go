package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/prop-engine/internal/calibration"
	"github.com/stitts-dev/prop-engine/internal/config"
)

// CalibrationHandler handles prediction logging and tuning endpoints
type CalibrationHandler struct {
	calibrator *calibration.AutoCalibrator
	config     *config.Config
	logger     *logrus.Logger
}

// NewCalibrationHandler creates a new calibration handler
func NewCalibrationHandler(calibrator *calibration.AutoCalibrator, cfg *config.Config, logger *logrus.Logger) *CalibrationHandler {
	return &CalibrationHandler{
		calibrator: calibrator,
		config:     cfg,
		logger:     logger,
	}
}

// PredictionRequest logs one forecast
type PredictionRequest struct {
	Type           string  `json:"type" binding:"required"`
	League         string  `json:"league" binding:"required"`
	PredictedValue float64 `json:"predicted_value"`
	PredictedProb  float64 `json:"predicted_prob" binding:"gte=0,lte=1"`
	Confidence     string  `json:"confidence"`
	EdgePct        float64 `json:"edge_pct"`
	Stake          float64 `json:"stake"`
}

// LogPrediction handles POST /api/v1/predictions
func (h *CalibrationHandler) LogPrediction(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_REQUEST",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}

	id, err := h.calibrator.LogPrediction(calibration.PredictionRecord{
		Type:           req.Type,
		League:         req.League,
		PredictedValue: req.PredictedValue,
		PredictedProb:  req.PredictedProb,
		Confidence:     req.Confidence,
		EdgePct:        req.EdgePct,
		Stake:          req.Stake,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to log prediction")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to log prediction",
			Code:  "LOG_FAILED",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"prediction_id": id})
}

// OutcomeRequest settles one forecast
type OutcomeRequest struct {
	ActualValue  float64            `json:"actual_value"`
	ActualResult calibration.Result `json:"actual_result" binding:"required,oneof=win loss push"`
	ProfitLoss   float64            `json:"profit_loss"`
}

// UpdateOutcome handles PUT /api/v1/predictions/:id/outcome
func (h *CalibrationHandler) UpdateOutcome(c *gin.Context) {
	id := c.Param("id")

	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_REQUEST",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}

	err := h.calibrator.UpdateOutcome(id, req.ActualValue, req.ActualResult, req.ProfitLoss)
	if err != nil {
		switch {
		case errors.Is(err, calibration.ErrUnknownPrediction):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Unknown prediction id",
				Code:  "UNKNOWN_PREDICTION",
				Details: map[string]string{
					"prediction_id": id,
				},
			})
		case errors.Is(err, calibration.ErrAlreadySettled):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "Prediction already settled",
				Code:  "ALREADY_SETTLED",
				Details: map[string]string{
					"prediction_id": id,
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Failed to update outcome",
				Code:  "UPDATE_FAILED",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"prediction_id": id, "settled": true})
}

// RunCalibration handles POST /api/v1/calibration/run
func (h *CalibrationHandler) RunCalibration(c *gin.Context) {
	result := h.calibrator.RunCalibration()
	c.JSON(http.StatusOK, result)
}

// GetReport handles GET /api/v1/calibration/report
func (h *CalibrationHandler) GetReport(c *gin.Context) {
	leagues := h.config.SupportedLeagues
	if league := c.Query("league"); league != "" {
		leagues = []string{league}
	}
	c.JSON(http.StatusOK, h.calibrator.PerformanceReport(leagues))
}

// GetParameters handles GET /api/v1/calibration/parameters
func (h *CalibrationHandler) GetParameters(c *gin.Context) {
	c.JSON(http.StatusOK, h.calibrator.Parameters())
}

// GetPredictions handles GET /api/v1/predictions
func (h *CalibrationHandler) GetPredictions(c *gin.Context) {
	settledOnly := c.Query("settled") == "true"
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid limit",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, h.calibrator.Records(settledOnly, limit))
}

// ResetToDefaults handles POST /api/v1/calibration/reset
func (h *CalibrationHandler) ResetToDefaults(c *gin.Context) {
	if err := h.calibrator.ResetToDefaults(); err != nil {
		h.logger.WithError(err).Error("Failed to reset parameters")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to reset parameters",
			Code:  "RESET_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

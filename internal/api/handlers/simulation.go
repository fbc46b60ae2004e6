package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/prop-engine/internal/calibration"
	"github.com/stitts-dev/prop-engine/internal/config"
	"github.com/stitts-dev/prop-engine/internal/engine"
	"github.com/stitts-dev/prop-engine/internal/types"
	"github.com/stitts-dev/prop-engine/internal/websocket"
	"github.com/stitts-dev/prop-engine/pkg/cache"
)

// ErrorResponse is the shared error payload shape
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
	Issues  []string          `json:"issues,omitempty"`
}

// SimulationHandler handles simulation-related endpoints
type SimulationHandler struct {
	calibrator *calibration.AutoCalibrator
	cache      *cache.SimulationCacheService
	wsHub      *websocket.Hub
	config     *config.Config
	logger     *logrus.Logger
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(
	calibrator *calibration.AutoCalibrator,
	cacheService *cache.SimulationCacheService,
	wsHub *websocket.Hub,
	cfg *config.Config,
	logger *logrus.Logger,
) *SimulationHandler {
	return &SimulationHandler{
		calibrator: calibrator,
		cache:      cacheService,
		wsHub:      wsHub,
		config:     cfg,
		logger:     logger,
	}
}

// SimulationRequest represents a request to simulate one matchup
type SimulationRequest struct {
	League         string                `json:"league" binding:"required"`
	Roster         []types.PlayerContext `json:"roster" binding:"required"`
	HomeTeam       *types.TeamContext    `json:"home_team,omitempty"`
	AwayTeam       *types.TeamContext    `json:"away_team,omitempty"`
	Iterations     int                   `json:"iterations"`
	Seed           int64                 `json:"seed,omitempty"`
	MaxPossessions int                   `json:"max_possessions,omitempty"`
	TimeBased      *bool                 `json:"time_based,omitempty"`
}

// SimulationResponse wraps the run summary with its cacheable id
type SimulationResponse struct {
	SimulationID string             `json:"simulation_id"`
	Summary      *engine.RunSummary `json:"summary"`
}

// RunSimulation handles POST /api/v1/simulations
func (h *SimulationHandler) RunSimulation(c *gin.Context) {
	var req SimulationRequest
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

	league, err := types.ParseLeague(req.League)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unsupported league",
			Code:  "INVALID_LEAGUE",
			Details: map[string]string{
				"league": req.League,
			},
		})
		return
	}

	iterations := req.Iterations
	if iterations <= 0 {
		iterations = 1000
	}
	if iterations > h.config.MaxIterations {
		iterations = h.config.MaxIterations
	}

	sim, err := engine.NewSimulator(engine.SimulatorConfig{
		League:         league,
		Roster:         req.Roster,
		HomeContext:    req.HomeTeam,
		AwayContext:    req.AwayTeam,
		Params:         h.calibrator.CalibratedParameter,
		SamplerBackend: h.config.SamplerBackend,
		Logger:         h.logger,
	})
	if err != nil {
		var insufficient *engine.InsufficientDataError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:  "Insufficient data, skipping matchup",
				Code:   "INSUFFICIENT_DATA",
				Issues: insufficient.Result.Issues,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to build simulator",
			Code:  "SIMULATOR_ERROR",
		})
		return
	}

	simulationID := uuid.New().String()
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	timeBased := true
	if req.TimeBased != nil {
		timeBased = *req.TimeBased
	}

	progressChan := make(chan engine.Progress, 100)
	go func() {
		for p := range progressChan {
			h.wsHub.BroadcastProgress(websocket.ProgressMessage{
				SimulationID: simulationID,
				Completed:    p.Completed,
				Total:        p.Total,
				Pct:          float64(p.Completed) / float64(p.Total) * 100,
			})
		}
	}()

	summary, err := sim.RunSimulation(engine.RunConfig{
		Iterations: iterations,
		Workers:    h.config.SimulationWorkers,
		BaseSeed:   seed,
		GameOpts: engine.GameOptions{
			MaxPossessions: req.MaxPossessions,
			TimeBased:      timeBased,
		},
	}, progressChan)
	close(progressChan)
	if err != nil {
		h.logger.WithError(err).Error("Simulation run failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Simulation run failed",
			Code:  "SIMULATION_ERROR",
		})
		return
	}

	if h.cache.Enabled() {
		if err := h.cache.SetRunSummary(c.Request.Context(), simulationID, summary, time.Hour); err != nil {
			h.logger.WithError(err).Warn("Failed to cache run summary")
		}
	}

	c.JSON(http.StatusOK, SimulationResponse{
		SimulationID: simulationID,
		Summary:      summary,
	})
}

// GetSimulation handles GET /api/v1/simulations/:id
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	id := c.Param("id")

	if !h.cache.Enabled() {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Simulation cache disabled",
			Code:  "CACHE_DISABLED",
		})
		return
	}

	summary, err := h.cache.GetRunSummary(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Simulation not found",
			Code:  "NOT_FOUND",
			Details: map[string]string{
				"simulation_id": id,
			},
		})
		return
	}

	c.JSON(http.StatusOK, SimulationResponse{
		SimulationID: id,
		Summary:      summary,
	})
}

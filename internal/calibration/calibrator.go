package calibration

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TriggerMode decides when LogPrediction schedules a calibration pass
type TriggerMode string

const (
	TriggerCount  TriggerMode = "count"
	TriggerDaily  TriggerMode = "daily"
	TriggerWeekly TriggerMode = "weekly"
)

// CalibrationConfig is the process-wide tuning policy
type CalibrationConfig struct {
	Enabled           bool        `json:"enabled"`
	TriggerMode       TriggerMode `json:"trigger_mode"`
	CalibrateEvery    int         `json:"calibrate_every"` // predictions, for count mode
	MinSampleSize     int         `json:"min_sample_size"`
	Strategy          Strategy    `json:"strategy"`
	PerformanceWindow int         `json:"performance_window"`

	AlertsEnabled       bool    `json:"alerts_enabled"`
	AlertROIThreshold   float64 `json:"alert_roi_threshold"`   // alert when ROI falls below
	AlertBrierThreshold float64 `json:"alert_brier_threshold"` // alert when Brier rises above
}

// DefaultCalibrationConfig returns the documented policy defaults
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		Enabled:             true,
		TriggerMode:         TriggerCount,
		CalibrateEvery:      20,
		MinSampleSize:       50,
		Strategy:            StrategyAdaptive,
		PerformanceWindow:   100,
		AlertsEnabled:       true,
		AlertROIThreshold:   -0.15,
		AlertBrierThreshold: 0.28,
	}
}

// Report is the calibrator's combined performance view
type Report struct {
	GeneratedAt     time.Time                  `json:"generated_at"`
	Overall         PerformanceSummary         `json:"overall"`
	ByLeague        map[string]PerformanceSummary `json:"by_league,omitempty"`
	Parameters      map[string]ParameterConfig `json:"parameters"`
	LastCalibration time.Time                  `json:"last_calibration,omitempty"`
	LastResult      *TuneResult                `json:"last_result,omitempty"`
}

// AutoCalibrator coordinates one tracker and one tuner. It is an
// explicitly constructed instance injected into whatever owns the
// simulation loop; all mutation runs behind its mutex.
type AutoCalibrator struct {
	mu sync.Mutex

	config  CalibrationConfig
	tracker *PerformanceTracker
	tuner   *ParameterTuner
	logger  *logrus.Logger

	predictionsSinceTune int
	lastCalibration      time.Time
	lastResult           *TuneResult
}

// NewAutoCalibrator builds the calibrator, reloading tracker and tuner
// state from the store.
func NewAutoCalibrator(config CalibrationConfig, store Store, logger *logrus.Logger) *AutoCalibrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutoCalibrator{
		config:          config,
		tracker:         NewPerformanceTracker(store, logger),
		tuner:           NewParameterTuner(store, logger),
		logger:          logger,
		lastCalibration: time.Now(),
	}
}

// LogPrediction stamps the current parameter snapshot onto the record,
// forwards it to the tracker, and runs a calibration pass when the
// configured trigger is due.
func (c *AutoCalibrator) LogPrediction(record PredictionRecord) (string, error) {
	record.Parameters = c.tuner.Snapshot()

	id, err := c.tracker.LogPrediction(record)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.predictionsSinceTune++
	due := c.config.Enabled && c.triggerDueLocked()
	c.mu.Unlock()

	if due {
		c.RunCalibration()
	}
	return id, nil
}

func (c *AutoCalibrator) triggerDueLocked() bool {
	switch c.config.TriggerMode {
	case TriggerDaily:
		return time.Since(c.lastCalibration) >= 24*time.Hour
	case TriggerWeekly:
		return time.Since(c.lastCalibration) >= 7*24*time.Hour
	default:
		return c.config.CalibrateEvery > 0 && c.predictionsSinceTune >= c.config.CalibrateEvery
	}
}

// UpdateOutcome settles a prediction and, when alerting is enabled,
// re-checks recent performance against the alert thresholds.
func (c *AutoCalibrator) UpdateOutcome(id string, actualValue float64, result Result, profitLoss float64) error {
	if err := c.tracker.UpdateOutcome(id, actualValue, result, profitLoss); err != nil {
		return err
	}

	if c.config.AlertsEnabled {
		c.checkAlerts()
	}
	return nil
}

// checkAlerts raises non-fatal warnings when recent ROI or Brier score
// crosses the configured thresholds.
func (c *AutoCalibrator) checkAlerts() {
	summary := c.tracker.Summary("", "", c.config.PerformanceWindow)
	if summary.Count < c.config.MinSampleSize {
		return
	}

	if summary.ROI < c.config.AlertROIThreshold {
		c.logger.WithFields(logrus.Fields{
			"roi":       summary.ROI,
			"threshold": c.config.AlertROIThreshold,
			"window":    c.config.PerformanceWindow,
		}).Warn("Performance alert: ROI below threshold")
	}
	if summary.BrierScore > c.config.AlertBrierThreshold {
		c.logger.WithFields(logrus.Fields{
			"brier_score": summary.BrierScore,
			"threshold":   c.config.AlertBrierThreshold,
			"window":      c.config.PerformanceWindow,
		}).Warn("Performance alert: Brier score above threshold")
	}
}

// RunCalibration executes one tuning pass and resets the trigger
func (c *AutoCalibrator) RunCalibration() *TuneResult {
	c.mu.Lock()
	strategy := c.config.Strategy
	minSamples := c.config.MinSampleSize
	window := c.config.PerformanceWindow
	c.mu.Unlock()

	result := c.tuner.AutoTune(c.tracker, strategy, minSamples, window)

	c.mu.Lock()
	c.predictionsSinceTune = 0
	c.lastCalibration = time.Now()
	c.lastResult = result
	c.mu.Unlock()

	return result
}

// CalibratedParameter is the single read path the simulation core
// uses. It never blocks on tuning and always returns a usable value:
// the supplied default when the name is unknown.
func (c *AutoCalibrator) CalibratedParameter(name string, defaultValue float64) float64 {
	if value, ok := c.tuner.Parameter(name); ok {
		return value
	}
	return defaultValue
}

// Parameters exposes the current tunable set
func (c *AutoCalibrator) Parameters() map[string]ParameterConfig {
	return c.tuner.Parameters()
}

// PerformanceReport assembles the overall and per-league summaries
// together with the current parameter set.
func (c *AutoCalibrator) PerformanceReport(leagues []string) *Report {
	c.mu.Lock()
	lastCalibration := c.lastCalibration
	lastResult := c.lastResult
	window := c.config.PerformanceWindow
	c.mu.Unlock()

	report := &Report{
		GeneratedAt:     time.Now(),
		Overall:         c.tracker.Summary("", "", window),
		Parameters:      c.tuner.Parameters(),
		LastCalibration: lastCalibration,
		LastResult:      lastResult,
	}

	if len(leagues) > 0 {
		report.ByLeague = make(map[string]PerformanceSummary, len(leagues))
		for _, league := range leagues {
			report.ByLeague[league] = c.tracker.Summary("", league, window)
		}
	}
	return report
}

// Records exposes the tracker's log for reporting surfaces
func (c *AutoCalibrator) Records(settledOnly bool, limit int) []PredictionRecord {
	return c.tracker.Records(settledOnly, limit)
}

// ResetToDefaults discards all learned adjustments
func (c *AutoCalibrator) ResetToDefaults() error {
	c.mu.Lock()
	c.predictionsSinceTune = 0
	c.lastResult = nil
	c.mu.Unlock()

	c.logger.Info("Resetting calibration parameters to defaults")
	return c.tuner.ResetDefaults()
}

// Reconfigure replaces the tuning policy
func (c *AutoCalibrator) Reconfigure(config CalibrationConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = config
}

// Config returns the active tuning policy
func (c *AutoCalibrator) Config() CalibrationConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

package calibration

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy selects how AutoTune adjusts parameters
type Strategy string

const (
	StrategyAdaptive     Strategy = "adaptive"
	StrategyConservative Strategy = "conservative"
	StrategyGradient     Strategy = "gradient"
)

// Tuning result statuses
const (
	StatusTuned            = "tuned"
	StatusNoChanges        = "no_changes"
	StatusInsufficientData = "insufficient_data"
)

// ParameterConfig is one tunable scalar with its bounds. Current always
// stays inside [Min, Max]: violated adjustments are clamped, never
// rejected.
type ParameterConfig struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current_value"`
	Min      float64 `json:"min_value"`
	Max      float64 `json:"max_value"`
	Step     float64 `json:"step_size"`
	Priority int     `json:"priority"`
}

// Clamp forces a candidate value inside the parameter's bounds
func (p *ParameterConfig) Clamp(value float64) float64 {
	return math.Max(p.Min, math.Min(p.Max, value))
}

// DefaultParameters returns the documented tunable set:
// shot-allocation tiers, possession pace, edge thresholds, Kelly
// fraction, and probability calibration controls.
func DefaultParameters() map[string]*ParameterConfig {
	params := []*ParameterConfig{
		{Name: "edge_threshold_spread", Current: 0.030, Min: 0.010, Max: 0.100, Step: 0.005, Priority: 1},
		{Name: "edge_threshold_prop", Current: 0.040, Min: 0.010, Max: 0.120, Step: 0.005, Priority: 1},
		{Name: "kelly_fraction", Current: 0.25, Min: 0.10, Max: 0.50, Step: 0.05, Priority: 2},
		{Name: "calibration_shrinkage", Current: 0.15, Min: 0.00, Max: 0.50, Step: 0.05, Priority: 2},
		{Name: "pace_multiplier", Current: 1.00, Min: 0.70, Max: 1.30, Step: 0.05, Priority: 2},
		{Name: "max_probability", Current: 0.75, Min: 0.55, Max: 0.95, Step: 0.05, Priority: 3},
		{Name: "shot_allocation_star", Current: 0.30, Min: 0.20, Max: 0.45, Step: 0.02, Priority: 3},
		{Name: "shot_allocation_secondary", Current: 0.28, Min: 0.15, Max: 0.35, Step: 0.02, Priority: 4},
		{Name: "shot_allocation_tertiary", Current: 0.22, Min: 0.10, Max: 0.30, Step: 0.02, Priority: 4},
		{Name: "shot_allocation_other", Current: 0.20, Min: 0.05, Max: 0.30, Step: 0.02, Priority: 5},
	}
	out := make(map[string]*ParameterConfig, len(params))
	for _, p := range params {
		out[p.Name] = p
	}
	return out
}

// Adjustment records one parameter change from a tuning pass
type Adjustment struct {
	Parameter string  `json:"parameter"`
	OldValue  float64 `json:"old_value"`
	NewValue  float64 `json:"new_value"`
	Reason    string  `json:"reason"`
}

// TuneResult is the structured outcome of one AutoTune call
type TuneResult struct {
	Status      string       `json:"status"`
	Strategy    Strategy     `json:"strategy"`
	SampleSize  int          `json:"sample_size"`
	Adjustments []Adjustment `json:"adjustments"`
	RunAt       time.Time    `json:"run_at"`
}

// PerformanceSource is what the tuner reads from the tracker
type PerformanceSource interface {
	Summary(predictionType, league string, recentN int) PerformanceSummary
	SettledCount(window int) int
	ParameterPerformance(parameterName string) map[float64]ParamBucket
}

// ParameterTuner owns the tunable parameter set and its strategy-driven
// adjustment.
type ParameterTuner struct {
	mu     sync.RWMutex
	params map[string]*ParameterConfig
	store  Store
	logger *logrus.Logger
}

// NewParameterTuner seeds the tuner with documented defaults, then
// overlays any persisted values. Missing or corrupt persisted state
// falls back to the defaults.
func NewParameterTuner(store Store, logger *logrus.Logger) *ParameterTuner {
	if logger == nil {
		logger = logrus.New()
	}
	t := &ParameterTuner{
		params: DefaultParameters(),
		store:  store,
		logger: logger,
	}

	if store != nil {
		saved, err := store.LoadParameters()
		if err != nil {
			logger.WithError(err).Warn("Failed to load parameters, using defaults")
		} else {
			for name, p := range saved {
				if base, ok := t.params[name]; ok {
					base.Current = base.Clamp(p.Current)
				} else {
					t.params[name] = p
				}
			}
		}
	}
	return t
}

// Parameter returns the current clamped value, with ok=false for an
// unknown name.
func (t *ParameterTuner) Parameter(name string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.params[name]
	if !ok {
		return 0, false
	}
	return p.Clamp(p.Current), true
}

// Snapshot returns a copy of every current parameter value
func (t *ParameterTuner) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.params))
	for name, p := range t.params {
		out[name] = p.Clamp(p.Current)
	}
	return out
}

// Parameters returns a copy of the full configuration set
func (t *ParameterTuner) Parameters() map[string]ParameterConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ParameterConfig, len(t.params))
	for name, p := range t.params {
		out[name] = *p
	}
	return out
}

// ResetDefaults discards every learned adjustment
func (t *ParameterTuner) ResetDefaults() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params = DefaultParameters()
	return t.persistLocked()
}

// AutoTune runs one strategy-driven tuning pass against the tracker's
// aggregated metrics. With fewer than minSamples settled records in the
// window it refuses to act and reports insufficient data.
func (t *ParameterTuner) AutoTune(src PerformanceSource, strategy Strategy, minSamples, recentWindow int) *TuneResult {
	result := &TuneResult{
		Strategy: strategy,
		RunAt:    time.Now(),
	}

	result.SampleSize = src.SettledCount(recentWindow)
	if result.SampleSize < minSamples {
		result.Status = StatusInsufficientData
		t.logger.WithFields(logrus.Fields{
			"sample_size": result.SampleSize,
			"min_samples": minSamples,
		}).Info("Auto-tune skipped: insufficient data")
		return result
	}

	summary := src.Summary("", "", recentWindow)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch strategy {
	case StrategyConservative:
		result.Adjustments = t.tuneConservative(summary)
	case StrategyGradient:
		result.Adjustments = t.tuneGradient(src)
	default:
		result.Adjustments = t.tuneAdaptive(summary)
	}

	if len(result.Adjustments) == 0 {
		result.Status = StatusNoChanges
		return result
	}

	result.Status = StatusTuned
	if err := t.persistLocked(); err != nil {
		t.logger.WithError(err).Warn("Failed to persist tuned parameters")
	}

	for _, adj := range result.Adjustments {
		t.logger.WithFields(logrus.Fields{
			"parameter": adj.Parameter,
			"old_value": adj.OldValue,
			"new_value": adj.NewValue,
			"reason":    adj.Reason,
		}).Info("Parameter tuned")
	}
	return result
}

// adaptiveMagnitude scales adjustment size with how bad recent ROI is:
// 2.0x under heavy losses down to 0.5x when comfortably profitable.
func adaptiveMagnitude(roi float64) float64 {
	switch {
	case roi < -0.15:
		return 2.0
	case roi < -0.05:
		return 1.5
	case roi < 0.05:
		return 1.0
	case roi < 0.15:
		return 0.75
	default:
		return 0.5
	}
}

func (t *ParameterTuner) tuneAdaptive(summary PerformanceSummary) []Adjustment {
	var adjustments []Adjustment
	magnitude := adaptiveMagnitude(summary.ROI)

	if summary.WinRate < 0.48 {
		reason := fmt.Sprintf("win rate %.3f below 0.48, raising selectivity", summary.WinRate)
		for _, name := range []string{"edge_threshold_spread", "edge_threshold_prop"} {
			if adj := t.shiftLocked(name, func(p *ParameterConfig) float64 {
				return p.Current + p.Step*magnitude
			}, reason); adj != nil {
				adjustments = append(adjustments, *adj)
			}
		}
	} else if summary.WinRate > 0.55 {
		reason := fmt.Sprintf("win rate %.3f above 0.55, loosening thresholds", summary.WinRate)
		for _, name := range []string{"edge_threshold_spread", "edge_threshold_prop"} {
			if adj := t.shiftLocked(name, func(p *ParameterConfig) float64 {
				return p.Current - p.Step*magnitude/2
			}, reason); adj != nil {
				adjustments = append(adjustments, *adj)
			}
		}
	}

	if summary.BrierScore > 0.20 {
		reason := fmt.Sprintf("brier score %.3f above 0.20, tightening shrinkage toward 0.5", summary.BrierScore)
		if adj := t.shiftLocked("calibration_shrinkage", func(p *ParameterConfig) float64 {
			return p.Current + p.Step*magnitude
		}, reason); adj != nil {
			adjustments = append(adjustments, *adj)
		}
	}

	return adjustments
}

// tuneConservative only acts on clearly bad signals, and then only by
// half a step.
func (t *ParameterTuner) tuneConservative(summary PerformanceSummary) []Adjustment {
	var adjustments []Adjustment

	if summary.ROI < -0.10 {
		reason := fmt.Sprintf("roi %.3f below -0.10, small selectivity nudge", summary.ROI)
		for _, name := range []string{"edge_threshold_spread", "edge_threshold_prop"} {
			if adj := t.shiftLocked(name, func(p *ParameterConfig) float64 {
				return p.Current + p.Step/2
			}, reason); adj != nil {
				adjustments = append(adjustments, *adj)
			}
		}
	}

	if summary.BrierScore > 0.25 {
		reason := fmt.Sprintf("brier score %.3f above 0.25, small shrinkage nudge", summary.BrierScore)
		if adj := t.shiftLocked("calibration_shrinkage", func(p *ParameterConfig) float64 {
			return p.Current + p.Step/2
		}, reason); adj != nil {
			adjustments = append(adjustments, *adj)
		}
	}

	return adjustments
}

// tuneGradient moves top-priority parameters halfway toward their best
// historically observed value, when that value has enough samples and
// positive ROI.
func (t *ParameterTuner) tuneGradient(src PerformanceSource) []Adjustment {
	const minBucketSamples = 10

	names := make([]string, 0, len(t.params))
	for name := range t.params {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if t.params[names[i]].Priority != t.params[names[j]].Priority {
			return t.params[names[i]].Priority < t.params[names[j]].Priority
		}
		return names[i] < names[j]
	})

	var adjustments []Adjustment
	topPriority := t.params[names[0]].Priority + 1

	for _, name := range names {
		p := t.params[name]
		if p.Priority > topPriority {
			break
		}

		var best *ParamBucket
		for value, bucket := range src.ParameterPerformance(name) {
			if bucket.Count < minBucketSamples {
				continue
			}
			b := bucket
			b.Value = value
			if best == nil || b.ROI > best.ROI {
				best = &b
			}
		}
		if best == nil || best.ROI <= 0 {
			continue
		}
		if math.Abs(best.Value-p.Current) < 1e-9 {
			continue
		}

		reason := fmt.Sprintf("value %.3f earned %.3f roi over %d samples, moving halfway",
			best.Value, best.ROI, best.Count)
		target := p.Current + (best.Value-p.Current)/2
		if adj := t.shiftLocked(name, func(*ParameterConfig) float64 { return target }, reason); adj != nil {
			adjustments = append(adjustments, *adj)
		}
	}

	return adjustments
}

// shiftLocked applies a candidate value, clamped to bounds. Returns nil
// when the clamp leaves the value unchanged. Caller holds t.mu.
func (t *ParameterTuner) shiftLocked(name string, next func(*ParameterConfig) float64, reason string) *Adjustment {
	p, ok := t.params[name]
	if !ok {
		return nil
	}
	newValue := p.Clamp(next(p))
	if math.Abs(newValue-p.Current) < 1e-12 {
		return nil
	}
	adj := &Adjustment{
		Parameter: name,
		OldValue:  p.Current,
		NewValue:  newValue,
		Reason:    reason,
	}
	p.Current = newValue
	return adj
}

func (t *ParameterTuner) persistLocked() error {
	if t.store == nil {
		return nil
	}
	return t.store.SaveParameters(t.params)
}

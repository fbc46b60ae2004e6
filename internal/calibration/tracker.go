package calibration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrUnknownPrediction is returned when an outcome update names an id
// that was never logged. This is a caller bug and fails loudly.
var ErrUnknownPrediction = errors.New("unknown prediction id")

// ErrAlreadySettled is returned on a second outcome update for the
// same record; outcome fields are written exactly once.
var ErrAlreadySettled = errors.New("prediction already settled")

// Result is the settled outcome of one prediction
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultPush Result = "push"
)

// PredictionRecord is one logged forecast. Outcome fields stay zero
// until the prediction is settled; records are never deleted.
type PredictionRecord struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	League         string             `json:"league"`
	PredictedValue float64            `json:"predicted_value"`
	PredictedProb  float64            `json:"predicted_prob"`
	Confidence     string             `json:"confidence"`
	EdgePct        float64            `json:"edge_pct"`
	Stake          float64            `json:"stake"`
	Parameters     map[string]float64 `json:"parameters,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`

	Settled      bool      `json:"settled"`
	ActualValue  float64   `json:"actual_value,omitempty"`
	ActualResult Result    `json:"actual_result,omitempty"`
	ProfitLoss   float64   `json:"profit_loss,omitempty"`
	SettledAt    time.Time `json:"settled_at,omitempty"`
}

// PerformanceSummary aggregates settled predictions over a window
type PerformanceSummary struct {
	Count       int     `json:"count"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Pushes      int     `json:"pushes"`
	WinRate     float64 `json:"win_rate"`
	TotalStake  float64 `json:"total_stake"`
	TotalProfit float64 `json:"total_profit"`
	ROI         float64 `json:"roi"`
	BrierScore  float64 `json:"brier_score"`
}

// ParamBucket aggregates settled outcomes observed at one distinct
// parameter value.
type ParamBucket struct {
	Value       float64 `json:"value"`
	Count       int     `json:"count"`
	TotalStake  float64 `json:"total_stake"`
	TotalProfit float64 `json:"total_profit"`
	ROI         float64 `json:"roi"`
}

// PerformanceTracker keeps the append-only prediction log and serves
// the aggregated metrics the tuner feeds on.
type PerformanceTracker struct {
	mu      sync.Mutex
	records []PredictionRecord
	index   map[string]int
	store   Store
	logger  *logrus.Logger
}

// NewPerformanceTracker creates a tracker, reloading any persisted log.
// A corrupt or missing log falls back to an empty one.
func NewPerformanceTracker(store Store, logger *logrus.Logger) *PerformanceTracker {
	if logger == nil {
		logger = logrus.New()
	}
	t := &PerformanceTracker{
		index:  make(map[string]int),
		store:  store,
		logger: logger,
	}

	if store != nil {
		records, err := store.LoadPredictions()
		if err != nil {
			logger.WithError(err).Warn("Failed to load prediction log, starting empty")
		} else {
			t.records = records
			for i := range t.records {
				t.index[t.records[i].ID] = i
			}
		}
	}
	return t
}

// LogPrediction appends a record with empty outcome fields and returns
// its stable identifier.
func (t *PerformanceTracker) LogPrediction(record PredictionRecord) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record.ID = uuid.New().String()
	record.CreatedAt = time.Now()
	record.Settled = false
	record.ActualValue = 0
	record.ActualResult = ""
	record.ProfitLoss = 0

	t.records = append(t.records, record)
	t.index[record.ID] = len(t.records) - 1

	if err := t.persistLocked(); err != nil {
		t.logger.WithError(err).Warn("Failed to persist prediction log")
	}

	t.logger.WithFields(logrus.Fields{
		"prediction_id": record.ID,
		"type":          record.Type,
		"league":        record.League,
		"edge_pct":      record.EdgePct,
	}).Debug("Logged prediction")

	return record.ID, nil
}

// UpdateOutcome fills the outcome fields of one record exactly once
func (t *PerformanceTracker) UpdateOutcome(id string, actualValue float64, result Result, profitLoss float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPrediction, id)
	}
	if t.records[i].Settled {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, id)
	}

	t.records[i].Settled = true
	t.records[i].ActualValue = actualValue
	t.records[i].ActualResult = result
	t.records[i].ProfitLoss = profitLoss
	t.records[i].SettledAt = time.Now()

	if err := t.persistLocked(); err != nil {
		t.logger.WithError(err).Warn("Failed to persist prediction log")
	}

	return nil
}

// Records returns the most recent limit records, optionally settled
// only. A non-positive limit returns everything.
func (t *PerformanceTracker) Records(settledOnly bool, limit int) []PredictionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PredictionRecord, 0, len(t.records))
	for _, r := range t.records {
		if settledOnly && !r.Settled {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// SettledCount returns the number of settled records in the most
// recent window of that size.
func (t *PerformanceTracker) SettledCount(window int) int {
	return len(t.Records(true, window))
}

// Summary computes win rate, ROI and Brier score over the filtered
// window. Pushes are excluded from both win rate and Brier.
func (t *PerformanceTracker) Summary(predictionType, league string, recentN int) PerformanceSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	filtered := make([]PredictionRecord, 0, len(t.records))
	for _, r := range t.records {
		if !r.Settled {
			continue
		}
		if predictionType != "" && r.Type != predictionType {
			continue
		}
		if league != "" && r.League != league {
			continue
		}
		filtered = append(filtered, r)
	}
	if recentN > 0 && len(filtered) > recentN {
		filtered = filtered[len(filtered)-recentN:]
	}

	summary := PerformanceSummary{Count: len(filtered)}
	brierSum := 0.0
	brierN := 0

	for _, r := range filtered {
		summary.TotalStake += r.Stake
		summary.TotalProfit += r.ProfitLoss

		switch r.ActualResult {
		case ResultWin:
			summary.Wins++
		case ResultLoss:
			summary.Losses++
		case ResultPush:
			summary.Pushes++
			continue
		}

		realized := 0.0
		if r.ActualResult == ResultWin {
			realized = 1.0
		}
		diff := r.PredictedProb - realized
		brierSum += diff * diff
		brierN++
	}

	decided := summary.Wins + summary.Losses
	if decided > 0 {
		summary.WinRate = float64(summary.Wins) / float64(decided)
	}
	if summary.TotalStake > 0 {
		summary.ROI = summary.TotalProfit / summary.TotalStake
	}
	if brierN > 0 {
		summary.BrierScore = brierSum / float64(brierN)
	}

	return summary
}

// ParameterPerformance groups settled records by the value a parameter
// held at prediction time and reports count and ROI per distinct value.
func (t *PerformanceTracker) ParameterPerformance(parameterName string) map[float64]ParamBucket {
	t.mu.Lock()
	defer t.mu.Unlock()

	buckets := make(map[float64]ParamBucket)
	for _, r := range t.records {
		if !r.Settled {
			continue
		}
		value, ok := r.Parameters[parameterName]
		if !ok {
			continue
		}
		b := buckets[value]
		b.Value = value
		b.Count++
		b.TotalStake += r.Stake
		b.TotalProfit += r.ProfitLoss
		if b.TotalStake > 0 {
			b.ROI = b.TotalProfit / b.TotalStake
		}
		buckets[value] = b
	}
	return buckets
}

func (t *PerformanceTracker) persistLocked() error {
	if t.store == nil {
		return nil
	}
	return t.store.SavePredictions(t.records)
}

package engine

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// maxStoredSamples bounds the per-stat sample subset kept in summaries
const maxStoredSamples = 100

// RunConfig controls a multi-iteration simulation run
type RunConfig struct {
	Iterations int
	Workers    int
	BaseSeed   int64
	GameOpts   GameOptions
}

// StatSummary holds aggregate statistics for one player stat across
// all iterations.
type StatSummary struct {
	Mean    float64   `json:"mean"`
	StdDev  float64   `json:"std_dev"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Samples []float64 `json:"samples,omitempty"`
	N       int       `json:"n"`
}

// RunSummary is the aggregate result of RunSimulation
type RunSummary struct {
	League        string                            `json:"league"`
	Iterations    int                               `json:"iterations"`
	PlayerStats   map[string]map[string]StatSummary `json:"player_stats"`
	HomeWinPct    float64                           `json:"home_win_pct"`
	AvgHomeScore  float64                           `json:"avg_home_score"`
	AvgAwayScore  float64                           `json:"avg_away_score"`
	ExecutionTime time.Duration                     `json:"execution_time"`
}

// Progress reports completed iterations for streaming consumers
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// RunSimulation repeats SimulateGame across a worker pool. Iterations
// are independent: each gets its own sampler seeded from BaseSeed plus
// the iteration index, so a fixed BaseSeed reproduces the full run.
// The aggregation merge is order-independent.
func (sim *Simulator) RunSimulation(cfg RunConfig, progressChan chan<- Progress) (*RunSummary, error) {
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", cfg.Iterations)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	startTime := time.Now()
	sim.logger.WithFields(logrus.Fields{
		"league":     sim.league.String(),
		"iterations": cfg.Iterations,
		"workers":    workers,
	}).Info("Starting simulation run")

	jobsChan := make(chan int, cfg.Iterations)
	resultsChan := make(chan *GameResult, cfg.Iterations)
	errChan := make(chan error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iteration := range jobsChan {
				opts := cfg.GameOpts
				opts.Seed = cfg.BaseSeed + int64(iteration)
				gameResult, err := sim.SimulateGame(opts)
				if err != nil {
					select {
					case errChan <- err:
					default:
					}
					return
				}
				resultsChan <- gameResult
			}
		}()
	}

	for i := 0; i < cfg.Iterations; i++ {
		jobsChan <- i
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Merge: per-player per-stat sample sequences plus game-level sums
	samples := make(map[string]map[string][]float64)
	homeWins := 0
	homeTotal := 0.0
	awayTotal := 0.0
	completed := 0

	for gameResult := range resultsChan {
		state := gameResult.FinalState
		if state.HomeScore > state.AwayScore {
			homeWins++
		}
		homeTotal += float64(state.HomeScore)
		awayTotal += float64(state.AwayScore)

		for player, stats := range state.PlayerStats {
			if _, ok := samples[player]; !ok {
				samples[player] = make(map[string][]float64)
			}
			for statName, value := range stats {
				samples[player][statName] = append(samples[player][statName], value)
			}
		}

		completed++
		if progressChan != nil {
			select {
			case progressChan <- Progress{Completed: completed, Total: cfg.Iterations}:
			default:
				// Never stall the merge on a slow consumer
			}
		}
	}

	select {
	case err := <-errChan:
		return nil, fmt.Errorf("simulation worker failed: %w", err)
	default:
	}

	summary := &RunSummary{
		League:        sim.league.String(),
		Iterations:    completed,
		PlayerStats:   make(map[string]map[string]StatSummary),
		HomeWinPct:    float64(homeWins) / float64(completed),
		AvgHomeScore:  homeTotal / float64(completed),
		AvgAwayScore:  awayTotal / float64(completed),
		ExecutionTime: time.Since(startTime),
	}

	for player, stats := range samples {
		summary.PlayerStats[player] = make(map[string]StatSummary)
		for statName, values := range stats {
			// A player absent from some games simply has fewer samples;
			// missing games do not count as zeros here.
			summary.PlayerStats[player][statName] = summarize(values)
		}
	}

	sim.logger.WithFields(logrus.Fields{
		"league":         sim.league.String(),
		"iterations":     completed,
		"players":        len(summary.PlayerStats),
		"execution_time": summary.ExecutionTime,
	}).Info("Simulation run completed")

	return summary, nil
}

func summarize(values []float64) StatSummary {
	if len(values) == 0 {
		return StatSummary{}
	}

	minVal := values[0]
	maxVal := values[0]
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	stored := values
	if len(stored) > maxStoredSamples {
		stored = stored[:maxStoredSamples]
	}
	subset := make([]float64, len(stored))
	copy(subset, stored)

	summary := StatSummary{
		Mean:    stat.Mean(values, nil),
		Min:     minVal,
		Max:     maxVal,
		Samples: subset,
		N:       len(values),
	}
	if len(values) > 1 {
		summary.StdDev = stat.StdDev(values, nil)
	}
	return summary
}

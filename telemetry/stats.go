package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Live int `csv:"live"`

	// Events during window
	Spawns           int `csv:"spawns"`
	Deaths           int `csv:"deaths"`
	Pulses           int `csv:"pulses"`
	ActionsApplied   int `csv:"actions_applied"`
	ActionsRejected  int `csv:"actions_rejected"`
	ActionFailures   int `csv:"action_failures"`
	Trips            int `csv:"trips"`
	ControllerErrors int `csv:"controller_errors"`
	EvolutionSteps   int `csv:"evolution_steps"`
	Offspring        int `csv:"offspring"`

	RejectRate  float64 `csv:"reject_rate"`
	FailureRate float64 `csv:"failure_rate"`

	// Energy distribution (sampled at window end)
	EnergyMean float64 `csv:"energy_mean"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`
	EnergyMax  float64 `csv:"energy_max"`
	Entropy    float64 `csv:"entropy"`

	// Last evolution step in the window
	MeanFitness float64 `csv:"mean_fitness"`
	BestFitness float64 `csv:"best_fitness"`

	// Controller state at window end
	Mood          float64 `csv:"mood"`
	Curiosity     float64 `csv:"curiosity"`
	Empathy       float64 `csv:"empathy"`
	Stabilization float64 `csv:"stabilization"`

	// Guard state at window end
	BreakerState string  `csv:"breaker_state"`
	RhythmHz     float64 `csv:"rhythm_hz"`
	RhythmDrift  bool    `csv:"rhythm_drift"`
	Trauma       bool    `csv:"trauma"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeEnergyStats calculates mean and percentiles from energy values.
// values is not modified.
func ComputeEnergyStats(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	mean = stat.Mean(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return mean, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("live", s.Live),
		slog.Int("spawns", s.Spawns),
		slog.Int("deaths", s.Deaths),
		slog.Int("pulses", s.Pulses),
		slog.Int("actions_applied", s.ActionsApplied),
		slog.Int("actions_rejected", s.ActionsRejected),
		slog.Int("action_failures", s.ActionFailures),
		slog.Int("trips", s.Trips),
		slog.Int("controller_errors", s.ControllerErrors),
		slog.Int("evolution_steps", s.EvolutionSteps),
		slog.Int("offspring", s.Offspring),
		slog.Float64("reject_rate", s.RejectRate),
		slog.Float64("failure_rate", s.FailureRate),
		slog.Float64("energy_mean", s.EnergyMean),
		slog.Float64("energy_p10", s.EnergyP10),
		slog.Float64("energy_p50", s.EnergyP50),
		slog.Float64("energy_p90", s.EnergyP90),
		slog.Float64("energy_max", s.EnergyMax),
		slog.Float64("entropy", s.Entropy),
		slog.Float64("mean_fitness", s.MeanFitness),
		slog.Float64("best_fitness", s.BestFitness),
		slog.Float64("mood", s.Mood),
		slog.Float64("curiosity", s.Curiosity),
		slog.Float64("empathy", s.Empathy),
		slog.Float64("stabilization", s.Stabilization),
		slog.String("breaker_state", s.BreakerState),
		slog.Float64("rhythm_hz", s.RhythmHz),
		slog.Bool("rhythm_drift", s.RhythmDrift),
		slog.Bool("trauma", s.Trauma),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}

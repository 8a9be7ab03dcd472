package archguard

import (
	"context"
	"html"
	"log/slog"
	"sync"
	"unicode"

	"github.com/pthm-cable/voxelcore/config"
)

// Counters are monotonically increasing totals since the guard was created.
type Counters struct {
	Pulses           uint64 `csv:"pulses"`
	Applied          uint64 `csv:"applied"`
	Rejected         uint64 `csv:"rejected"`
	Failures         uint64 `csv:"failures"`
	Trips            uint64 `csv:"trips"`
	ControllerErrors uint64 `csv:"controller_errors"`
}

// Telemetry is a consistent copy of everything the guard exposes.
type Telemetry struct {
	Counters
	State       State   `csv:"-"`
	Cooldown    float64 `csv:"cooldown"`
	Empathy     float64 `csv:"empathy"`
	RhythmHz    float64 `csv:"rhythm_hz"`
	RhythmDrift bool    `csv:"rhythm_drift"`
	Phase       float64 `csv:"phase"`
	Time        float64 `csv:"sim_time"`
}

// LogValue implements slog.LogValuer for structured logging.
func (t Telemetry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", t.State.String()),
		slog.Uint64("pulses", t.Pulses),
		slog.Uint64("applied", t.Applied),
		slog.Uint64("rejected", t.Rejected),
		slog.Uint64("failures", t.Failures),
		slog.Uint64("trips", t.Trips),
		slog.Uint64("controller_errors", t.ControllerErrors),
		slog.Float64("empathy", t.Empathy),
		slog.Float64("rhythm_hz", t.RhythmHz),
		slog.Bool("rhythm_drift", t.RhythmDrift),
		slog.Float64("phase", t.Phase),
	)
}

// Guard owns the breaker, counters, empathy gauge, rhythm detector and pulse
// history. The simulation goroutine writes; any goroutine may read. Writers hold
// the lock only for the few field updates of one call and log after releasing it.
type Guard struct {
	mu sync.RWMutex

	breaker  *Breaker
	rhythm   *Rhythm
	counters Counters
	empathy  float64
	now      float64

	history     []string
	historyNext int
	historyLen  int

	logger *slog.Logger
}

// NewGuard creates a guard with a closed breaker. logger may be nil.
func NewGuard(cfg config.ArchGuardConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		breaker: NewBreaker(cfg),
		rhythm:  NewRhythm(cfg),
		empathy: 0.5,
		history: make([]string, max(cfg.HistorySize, 1)),
		logger:  logger,
	}
}

// logEvent is a log record built under mu and emitted after it is released.
type logEvent struct {
	level slog.Level
	msg   string
	attrs []any
}

func (g *Guard) emit(events ...logEvent) {
	for _, ev := range events {
		if ev.msg != "" {
			g.logger.Log(context.Background(), ev.level, ev.msg, ev.attrs...)
		}
	}
}

// Allow asks the breaker whether one action may be applied at now.
// A rejection is counted.
func (g *Guard) Allow(now float64) bool {
	g.mu.Lock()
	g.now = now

	before := g.breaker.State()
	ok := g.breaker.Allow(now)
	if !ok {
		g.counters.Rejected++
		g.mu.Unlock()
		return false
	}
	var ev logEvent
	if before == Open {
		ev = logEvent{slog.LevelInfo, "breaker half-open", []any{"time", now, "cooldown", g.breaker.Cooldown()}}
	}
	g.mu.Unlock()

	g.emit(ev)
	return true
}

// Report records the outcome of an applied action.
func (g *Guard) Report(now float64, ok bool) {
	g.mu.Lock()
	g.now = now

	g.counters.Applied++
	if !ok {
		g.counters.Failures++
	}
	ev := g.record(now, ok)
	g.mu.Unlock()

	g.emit(ev)
}

// ReportControllerError counts a controller failure against the breaker.
func (g *Guard) ReportControllerError(now float64, err error) {
	g.mu.Lock()
	g.now = now

	g.counters.ControllerErrors++
	g.counters.Failures++
	ev := g.record(now, false)
	g.mu.Unlock()

	g.emit(logEvent{slog.LevelWarn, "controller error", []any{"time", now, "error", err}}, ev)
}

// record feeds the breaker and returns the transition to log, if any.
// Callers hold mu.
func (g *Guard) record(now float64, ok bool) logEvent {
	before := g.breaker.State()
	if g.breaker.Record(now, ok) {
		g.counters.Trips++
		return logEvent{slog.LevelWarn, "breaker open", []any{
			"time", now,
			"from", before.String(),
			"cooldown", g.breaker.Cooldown(),
			"trips", g.counters.Trips,
		}}
	}
	if before == HalfOpen && g.breaker.State() == Closed {
		return logEvent{slog.LevelInfo, "breaker closed", []any{"time", now}}
	}
	return logEvent{}
}

// SetEmpathy writes the empathy gauge.
func (g *Guard) SetEmpathy(v float64) {
	g.mu.Lock()
	g.empathy = v
	g.mu.Unlock()
}

// Empathy reads the empathy gauge.
func (g *Guard) Empathy() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.empathy
}

// State returns the breaker state.
func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.breaker.State()
}

// ObservePulse feeds the rhythm detector and stores the escaped pulse log.
// Empty logs and logs with control characters are counted but not stored.
// Returns the drift state and whether it changed with this pulse.
func (g *Guard) ObservePulse(now float64, log string) (drift, changed bool) {
	g.mu.Lock()
	g.now = now

	g.counters.Pulses++
	drift, changed = g.rhythm.Observe(now)
	var ev logEvent
	if changed {
		ev = logEvent{slog.LevelWarn, "pulse rhythm drift", []any{
			"time", now,
			"drift", drift,
			"hz", g.rhythm.Frequency(),
		}}
	}

	escaped := html.EscapeString(log)
	if escaped != "" && printable(escaped) {
		g.history[g.historyNext] = escaped
		g.historyNext = (g.historyNext + 1) % len(g.history)
		if g.historyLen < len(g.history) {
			g.historyLen++
		}
	}
	g.mu.Unlock()

	g.emit(ev)
	return drift, changed
}

// printable rejects logs carrying control characters.
func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) && r != ' ' {
			return false
		}
	}
	return true
}

// Telemetry returns a consistent copy of the counters and gauges.
func (g *Guard) Telemetry() Telemetry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Telemetry{
		Counters:    g.counters,
		State:       g.breaker.State(),
		Cooldown:    g.breaker.Cooldown(),
		Empathy:     g.empathy,
		RhythmHz:    g.rhythm.Frequency(),
		RhythmDrift: g.rhythm.Drifting(),
		Phase:       g.rhythm.Phase(g.now),
		Time:        g.now,
	}
}

// History returns the stored pulse logs, oldest first.
func (g *Guard) History() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, g.historyLen)
	start := (g.historyNext - g.historyLen + len(g.history)) % len(g.history)
	for i := 0; i < g.historyLen; i++ {
		out = append(out, g.history[(start+i)%len(g.history)])
	}
	return out
}

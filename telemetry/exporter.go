package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/voxelcore/archguard"
)

// GuardReader is the read side of the reliability layer. Implementations must
// be safe to call from any goroutine.
type GuardReader interface {
	Telemetry() archguard.Telemetry
}

// GuardSample is one exporter reading.
type GuardSample struct {
	WallSec float64 `csv:"wall_sec"`
	archguard.Telemetry
}

// Exporter samples a GuardReader on a fixed wall-clock interval and logs the
// counters and empathy gauge. It never touches simulation state directly.
type Exporter struct {
	reader   GuardReader
	interval time.Duration
	logger   *slog.Logger
	out      *OutputManager

	samples atomic.Int64
}

// NewExporter creates an exporter. logger may be nil; out may be nil to skip CSV output.
func NewExporter(reader GuardReader, interval time.Duration, logger *slog.Logger, out *OutputManager) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Exporter{
		reader:   reader,
		interval: interval,
		logger:   logger,
		out:      out,
	}
}

// Run samples until ctx is done, taking one final sample on the way out.
// It always returns nil so it can run inside an errgroup without cancelling peers.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.export(time.Since(start))
			return nil
		case <-ticker.C:
			e.export(time.Since(start))
		}
	}
}

// Samples returns how many readings have been taken.
func (e *Exporter) Samples() int64 {
	return e.samples.Load()
}

func (e *Exporter) export(elapsed time.Duration) {
	s := GuardSample{WallSec: elapsed.Seconds(), Telemetry: e.reader.Telemetry()}
	e.samples.Add(1)

	e.logger.Info("guard", "wall_sec", s.WallSec, "telemetry", s.Telemetry)
	if err := e.out.WriteGuard(s); err != nil {
		e.logger.Error("failed to write guard sample", "error", err)
	}
}

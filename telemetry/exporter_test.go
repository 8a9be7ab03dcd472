package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pthm-cable/voxelcore/archguard"
	"github.com/pthm-cable/voxelcore/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingReader struct {
	calls atomic.Int64
}

func (r *countingReader) Telemetry() archguard.Telemetry {
	n := r.calls.Add(1)
	return archguard.Telemetry{
		Counters: archguard.Counters{Pulses: uint64(n)},
		State:    archguard.HalfOpen,
		Empathy:  0.5,
	}
}

func TestExporterSamplesUntilCancelled(t *testing.T) {
	reader := &countingReader{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exp := NewExporter(reader, 2*time.Millisecond, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exp.Run(ctx) }()

	require.Eventually(t, func() bool { return exp.Samples() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("exporter did not stop after cancel")
	}
	assert.Equal(t, reader.calls.Load(), exp.Samples())
}

func TestExporterWritesGuardCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	exp := NewExporter(&countingReader{}, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)), om)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, exp.Run(ctx))
	require.NoError(t, om.Close())

	data, err := os.ReadFile(filepath.Join(dir, "guard.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "header plus the final sample")
	assert.Contains(t, lines[0], "breaker_state")
	assert.Contains(t, lines[0], "pulses")
	assert.Contains(t, lines[1], om.RunID())
	assert.Contains(t, lines[1], "half_open")
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	require.NoError(t, err)
	assert.Nil(t, om)

	// Every method is a no-op on nil
	assert.NoError(t, om.WriteTelemetry(WindowStats{}))
	assert.NoError(t, om.WritePerf(PerfStats{}, 0))
	assert.NoError(t, om.WriteBookmark(Bookmark{}))
	assert.NoError(t, om.WriteGuard(GuardSample{}))
	assert.NoError(t, om.WriteConfig(config.Default()))
	assert.NoError(t, om.Close())
	assert.Empty(t, om.RunID())
	assert.Empty(t, om.Dir())
}

func TestOutputManagerWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)
	assert.Len(t, om.RunID(), 36)

	for i := 1; i <= 3; i++ {
		require.NoError(t, om.WriteTelemetry(WindowStats{WindowEndTick: int64(i * 600), Live: 100 + i}))
		require.NoError(t, om.WriteBookmark(Bookmark{Type: BookmarkBreakerTrip, Tick: int64(i * 600), Description: "trip"}))
	}
	require.NoError(t, om.WriteConfig(config.Default()))
	require.NoError(t, om.Close())

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "window_end,sim_time,live"), lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "1800,"), lines[3])

	data, err = os.ReadFile(filepath.Join(dir, "bookmarks.csv"))
	require.NoError(t, err)
	assert.Equal(t, "type,tick,description\nbreaker_trip,600,trip\nbreaker_trip,1200,trip\nbreaker_trip,1800,trip\n", string(data))

	_, err = config.Load(filepath.Join(dir, "config.yaml"))
	assert.NoError(t, err, "written config must load back")

	id, err := os.ReadFile(filepath.Join(dir, "run_id"))
	require.NoError(t, err)
	assert.Equal(t, om.RunID(), strings.TrimSpace(string(id)))
}

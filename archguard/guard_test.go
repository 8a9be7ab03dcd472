package archguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardCounters(t *testing.T) {
	g := NewGuard(testConfig(), quietLogger())

	require.True(t, g.Allow(0))
	g.Report(0, true)
	for i := 1; i <= 3; i++ {
		require.True(t, g.Allow(float64(i)))
		g.Report(float64(i), false)
	}
	assert.Equal(t, Open, g.State())
	assert.False(t, g.Allow(3.5))
	assert.False(t, g.Allow(3.6))

	tel := g.Telemetry()
	assert.Equal(t, uint64(4), tel.Applied)
	assert.Equal(t, uint64(3), tel.Failures)
	assert.Equal(t, uint64(2), tel.Rejected)
	assert.Equal(t, uint64(1), tel.Trips)
	assert.Equal(t, Open, tel.State)
	assert.Equal(t, 3.6, tel.Time)
}

func TestGuardControllerErrorsCountAsFailures(t *testing.T) {
	g := NewGuard(testConfig(), quietLogger())
	for i := 0; i < 3; i++ {
		g.ReportControllerError(float64(i), errors.New("malformed"))
	}
	tel := g.Telemetry()
	assert.Equal(t, uint64(3), tel.ControllerErrors)
	assert.Equal(t, uint64(1), tel.Trips)
	assert.Equal(t, Open, tel.State)
	assert.Zero(t, tel.Applied)
}

// stallHandler blocks every record until release is closed.
type stallHandler struct {
	entered chan string
	release chan struct{}
}

func (h *stallHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *stallHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *stallHandler) WithGroup(string) slog.Handler             { return h }

func (h *stallHandler) Handle(_ context.Context, r slog.Record) error {
	h.entered <- r.Message
	<-h.release
	return nil
}

func TestGuardReadersDoNotWaitOnLogging(t *testing.T) {
	h := &stallHandler{entered: make(chan string, 8), release: make(chan struct{})}
	g := NewGuard(testConfig(), slog.New(h))

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.ReportControllerError(1, errors.New("malformed"))
	}()
	require.Equal(t, "controller error", <-h.entered)

	read := make(chan Telemetry, 1)
	go func() { read <- g.Telemetry() }()
	select {
	case tel := <-read:
		assert.Equal(t, uint64(1), tel.ControllerErrors)
		assert.Equal(t, 1.0, tel.Time)
	case <-time.After(2 * time.Second):
		t.Error("Telemetry blocked while the guard was logging")
		close(h.release)
		<-read
		<-done
		return
	}

	close(h.release)
	<-done
}

func TestGuardHistoryEscapesAndWraps(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 3
	g := NewGuard(cfg, quietLogger())

	g.ObservePulse(0, `<b>"calm" & 'ignite'</b>`)
	g.ObservePulse(1, "bell\x07")
	assert.Equal(t, []string{"&lt;b&gt;&#34;calm&#34; &amp; &#39;ignite&#39;&lt;/b&gt;"}, g.History())

	for i := 0; i < 5; i++ {
		g.ObservePulse(float64(2+i), fmt.Sprintf("pulse %d", i))
	}
	assert.Equal(t, []string{"pulse 2", "pulse 3", "pulse 4"}, g.History())
	assert.Equal(t, uint64(7), g.Telemetry().Pulses)
}

func TestRhythmFlagsFastPulses(t *testing.T) {
	r := NewRhythm(testConfig())

	var drift, changed bool
	now := 0.0
	for i := 0; i < 8; i++ {
		now += 0.9
		drift, _ = r.Observe(now)
	}
	assert.False(t, drift)
	assert.InDelta(t, 1/0.9, r.Frequency(), 1e-9)

	var flipped bool
	for i := 0; i < 20; i++ {
		now += 0.1
		drift, changed = r.Observe(now)
		flipped = flipped || changed
	}
	assert.True(t, drift)
	assert.True(t, flipped)
	assert.True(t, r.Drifting())
	assert.Greater(t, r.Frequency(), 2.0)
}

func TestRhythmFlagsStalls(t *testing.T) {
	r := NewRhythm(testConfig())
	var drift bool
	for i := 0; i < 6; i++ {
		drift, _ = r.Observe(float64(i) * 5)
	}
	assert.True(t, drift)
}

func TestRhythmPhase(t *testing.T) {
	r := NewRhythm(testConfig())
	assert.Zero(t, r.Phase(0))
	p := r.Phase(10)
	assert.InDelta(t, 0.38, p, 1e-9)
	for _, now := range []float64{0, 13.7, 100, 1e4} {
		p := r.Phase(now)
		assert.True(t, p >= 0 && p < 1, "phase %v at %v", p, now)
	}
}

func TestGuardConcurrentReaders(t *testing.T) {
	g := NewGuard(testConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var readers errgroup.Group
	for i := 0; i < 4; i++ {
		readers.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				tel := g.Telemetry()
				if tel.Empathy < 0 || tel.Empathy > 1 {
					return fmt.Errorf("empathy %v out of range", tel.Empathy)
				}
				if tel.Applied < tel.Failures {
					return fmt.Errorf("applied %d below failures %d", tel.Applied, tel.Failures)
				}
				_ = g.Empathy()
				_ = g.History()
			}
		})
	}

	// Simulation side
	for i := 0; i < 2000; i++ {
		now := float64(i) * 0.1
		g.SetEmpathy(float64(i%100) / 100)
		if g.Allow(now) {
			g.Report(now, i%5 != 0)
		}
		if i%10 == 0 {
			g.ObservePulse(now, "tick "+strings.Repeat("*", i%7))
		}
	}

	cancel()
	require.NoError(t, readers.Wait())
}

package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/pthm-cable/voxelcore/config"
)

// csvFile appends records to one CSV file, writing the header once.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func createCSV(dir, name string) (*csvFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvFile{f: f}, nil
}

func (c *csvFile) write(records any) error {
	if c == nil {
		return os.ErrClosed
	}
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// GuardRow is one exporter sample in guard.csv.
type GuardRow struct {
	RunID        string `csv:"run_id"`
	BreakerState string `csv:"breaker_state"`
	GuardSample
}

// OutputManager handles structured run output with CSV logging.
// Methods are safe on a nil receiver, which means output is disabled.
type OutputManager struct {
	dir   string
	runID string

	telemetry *csvFile
	perf      *csvFile
	bookmarks *csvFile

	// guard.csv is written by the exporter goroutine
	guardMu sync.Mutex
	guard   *csvFile
}

// NewOutputManager creates the output directory and its CSV files, stamped with
// a fresh run id. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, runID: uuid.NewString()}

	files := []struct {
		name string
		dst  **csvFile
	}{
		{"telemetry.csv", &om.telemetry},
		{"perf.csv", &om.perf},
		{"bookmarks.csv", &om.bookmarks},
		{"guard.csv", &om.guard},
	}
	for _, spec := range files {
		f, err := createCSV(dir, spec.name)
		if err != nil {
			om.Close()
			return nil, err
		}
		*spec.dst = f
	}

	if err := os.WriteFile(filepath.Join(dir, "run_id"), []byte(om.runID+"\n"), 0644); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing run_id: %w", err)
	}

	return om, nil
}

// RunID returns the run id, or "" when output is disabled.
func (om *OutputManager) RunID() string {
	if om == nil {
		return ""
	}
	return om.runID
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := om.telemetry.write([]WindowStats{stats}); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	if err := om.perf.write([]PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	if err := om.bookmarks.write([]Bookmark{b}); err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

// WriteGuard writes an exporter sample to guard.csv. Safe for concurrent use.
func (om *OutputManager) WriteGuard(s GuardSample) error {
	if om == nil {
		return nil
	}
	om.guardMu.Lock()
	defer om.guardMu.Unlock()

	row := GuardRow{RunID: om.runID, BreakerState: s.State.String(), GuardSample: s}
	if err := om.guard.write([]GuardRow{row}); err != nil {
		return fmt.Errorf("writing guard: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files. Later calls are no-ops.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	om.guardMu.Lock()
	defer om.guardMu.Unlock()

	var firstErr error
	for _, c := range []**csvFile{&om.telemetry, &om.perf, &om.bookmarks, &om.guard} {
		if *c == nil {
			continue
		}
		if err := (*c).f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		*c = nil
	}
	return firstErr
}

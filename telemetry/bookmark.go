package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/voxelcore/config"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkBreakerTrip     BookmarkType = "breaker_trip"
	BookmarkRhythmDrift     BookmarkType = "rhythm_drift"
	BookmarkEntropyCollapse BookmarkType = "entropy_collapse"
	BookmarkEnergySurge     BookmarkType = "energy_surge"
)

// minBookmarkHistory is the number of windows a rolling average needs.
const minBookmarkHistory = 3

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Tick        int64        `csv:"tick" json:"tick"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark to logger, or to the default logger when nil.
func (b Bookmark) LogBookmark(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the run.
type BookmarkDetector struct {
	cfg config.BookmarksConfig

	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	lastDrift bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int, cfg config.BookmarksConfig) *BookmarkDetector {
	historySize = max(historySize, minBookmarkHistory)
	return &BookmarkDetector{
		cfg:         cfg,
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	// Breaker trip: the breaker opened at least once in the window
	if stats.Trips > 0 {
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkBreakerTrip,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Breaker opened %d time(s), %d of %d actions failed", stats.Trips, stats.ActionFailures, stats.ActionsApplied),
		})
	}

	// Rhythm drift: rising edge only
	if stats.RhythmDrift && !bd.lastDrift {
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkRhythmDrift,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Pulse rhythm drifted to %.2f Hz", stats.RhythmHz),
		})
	}
	bd.lastDrift = stats.RhythmDrift

	if b := bd.checkEntropyCollapse(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkEnergySurge(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkEntropyCollapse fires when entropy drops by DropFraction below a rolling
// mean that was itself above MinEntropy.
func (bd *BookmarkDetector) checkEntropyCollapse(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < minBookmarkHistory {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.Entropy
	}
	avg := total / float64(len(history))
	if avg <= bd.cfg.EntropyCollapse.MinEntropy {
		return nil
	}

	if stats.Entropy < avg*(1-bd.cfg.EntropyCollapse.DropFraction) {
		return &Bookmark{
			Type:        BookmarkEntropyCollapse,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Entropy %.3f fell from average %.3f", stats.Entropy, avg),
		}
	}
	return nil
}

// checkEnergySurge fires when mean energy exceeds Multiplier times its rolling mean.
func (bd *BookmarkDetector) checkEnergySurge(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < minBookmarkHistory {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.EnergyMean
	}
	avg := total / float64(len(history))
	if avg <= 0 {
		return nil
	}

	if stats.EnergyMean > avg*bd.cfg.EnergySurge.Multiplier {
		return &Bookmark{
			Type:        BookmarkEnergySurge,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean energy %.3f is %.1fx average (%.3f)", stats.EnergyMean, stats.EnergyMean/avg, avg),
		}
	}
	return nil
}

package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/voxelcore/consciousness"
	"github.com/pthm-cable/voxelcore/world"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// SnapshotExt is the file extension of saved snapshots.
const SnapshotExt = ".json.zst"

// ErrDigestMismatch is returned by Restore when the restored store does not
// hash to the digest recorded at save time.
var ErrDigestMismatch = errors.New("telemetry: snapshot digest mismatch")

// Snapshot holds the complete store state for replay.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	Seed    int64  `json:"seed"`

	Tick   int64  `json:"tick"`
	Digest uint64 `json:"digest"`

	Mind  *consciousness.State `json:"mind,omitempty"`
	Store world.StoreState     `json:"store"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// NewSnapshot captures store and records its digest.
func NewSnapshot(store *world.Store, seed int64, runID string) *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		RunID:   runID,
		Seed:    seed,
		Tick:    store.TickCount(),
		Digest:  store.Digest(),
		Store:   store.ExportStates(),
	}
}

// Restore loads the snapshot into store and verifies the digest.
func (s *Snapshot) Restore(store *world.Store) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	}
	if err := store.ImportStates(s.Store); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if got := store.Digest(); got != s.Digest {
		return fmt.Errorf("%w: got %016x, want %016x", ErrDigestMismatch, got, s.Digest)
	}
	return nil
}

// SnapshotName returns the file name a snapshot is saved under.
func SnapshotName(snapshot *Snapshot) string {
	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	return name + SnapshotExt
}

// SaveSnapshot writes a zstd-compressed JSON snapshot into dir.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, SnapshotName(snapshot))
	if err := WriteSnapshot(path, snapshot); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSnapshot writes a zstd-compressed JSON snapshot to path.
func WriteSnapshot(path string, snapshot *Snapshot) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close snapshot: %w", cerr)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if err := json.NewEncoder(bw).Encode(snapshot); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from disk. The digest is checked by Restore.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024)).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// Package cache keeps the last successful upstream fetch on disk so reports
// can still be built when Nightscout is unreachable.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/klauspost/compress/zstd"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Snapshot is the raw data a report is built from.
type Snapshot struct {
	SavedAt    time.Time             `json:"savedAt"`
	Entries    []models.GlucoseEntry `json:"entries"`
	Treatments []models.Treatment    `json:"treatments"`
	Meals      []models.Meal         `json:"meals"`
	Summary    *models.HealthSummary `json:"summary,omitempty"`
}

// Store reads and writes a zstd-compressed JSON snapshot.
type Store struct {
	path string

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// DefaultPath returns the snapshot location under the XDG cache directory.
func DefaultPath() (string, error) {
	return xdg.CacheFile(filepath.Join(models.AppName, "snapshot.json.zst"))
}

// NewStore creates a Store writing to path.
func NewStore(path string) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Store{path: path, encoder: enc, decoder: dec}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Save replaces the snapshot atomically.
func (s *Store) Save(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	s.mu.Lock()
	compressed := s.encoder.EncodeAll(data, nil)
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the snapshot, or returns ErrNoSnapshot.
func (s *Store) Load() (*Snapshot, error) {
	compressed, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	s.mu.Lock()
	data, err := s.decoder.DecodeAll(compressed, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// Close releases the codec resources.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.encoder.Close()
	s.decoder.Close()
}

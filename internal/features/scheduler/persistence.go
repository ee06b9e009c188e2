package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-syncbridge/internal/config"
)

// stateSchemaVersion versions the persisted snapshot so a future format
// change can migrate old files.
const stateSchemaVersion = 1

// persistedState is the JSON snapshot written to disk: the full job table
// plus the bounded per-job result histories.
type persistedState struct {
	SchemaVersion int                          `json:"schema_version"`
	SavedAt       time.Time                    `json:"saved_at"`
	Jobs          []*ScheduledJob              `json:"jobs"`
	Results       map[string][]ExecutionResult `json:"results,omitempty"`
}

// StateStore persists the scheduler snapshot. Save must be atomic so a crash
// mid-write never leaves a partial file behind.
type StateStore interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

type FileStateStore struct {
	path string
}

func NewFileStateStore(cfg *config.Config) StateStore {
	return &FileStateStore{path: cfg.ScheduleStatePath}
}

// Save writes to a temp file in the target directory and renames it over the
// destination.
func (s *FileStateStore) Save(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when none exists yet.
func (s *FileStateStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, nil
}

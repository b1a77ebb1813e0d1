package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileCheckpointStore persists checkpoints as one JSON file per key under
// a base directory. It survives process restarts, which is what makes
// replay and resume work from a fresh process without external services.
type FileCheckpointStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileCheckpointStore creates the base directory if needed and returns
// a store rooted there.
func NewFileCheckpointStore(basePath string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %q: %w", basePath, err)
	}
	return &FileCheckpointStore{basePath: basePath}, nil
}

// path maps a checkpoint key to its file. Separators and the reserved
// marker's colons are flattened so every key stays a single file name.
func (s *FileCheckpointStore) path(key string) string {
	sanitized := strings.NewReplacer("/", "_", ":", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(s.basePath, sanitized+".json")
}

// Save writes the record to the key's file atomically enough for a single
// process: writes are serialized by the store's mutex and go through a
// temp file rename.
func (s *FileCheckpointStore) Save(_ context.Context, key string, record CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", key, err)
	}
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit checkpoint %q: %w", key, err)
	}
	return nil
}

// Load reads the key's file, or returns (nil, nil) when it does not exist.
func (s *FileCheckpointStore) Load(_ context.Context, key string) (*CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %q: %w", key, err)
	}
	var record CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode checkpoint %q: %w", key, err)
	}
	return &record, nil
}

var _ CheckpointStore = (*FileCheckpointStore)(nil)

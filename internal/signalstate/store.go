package signalstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Alias1177/signalwatch/models"
)

// Store persists the whole signal table. Save always receives the full table.
type Store interface {
	Load(ctx context.Context) (map[string]models.SignalRecord, error)
	Save(ctx context.Context, records map[string]models.SignalRecord) error
}

// FileStore keeps the table as one JSON object on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty table when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) (map[string]models.SignalRecord, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]models.SignalRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	records := map[string]models.SignalRecord{}
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if records == nil {
		records = map[string]models.SignalRecord{}
	}
	return records, nil
}

// Save rewrites the file through a temp file in the same directory.
func (s *FileStore) Save(_ context.Context, records map[string]models.SignalRecord) error {
	b, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// MemoryStore keeps the table in memory. Useful for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.SignalRecord
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]models.SignalRecord{}}
}

func (m *MemoryStore) Load(_ context.Context) (map[string]models.SignalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecords(m.records), nil
}

func (m *MemoryStore) Save(_ context.Context, records map[string]models.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = copyRecords(records)
	m.saves++
	return nil
}

// Saves reports how many times the table was written.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func copyRecords(in map[string]models.SignalRecord) map[string]models.SignalRecord {
	out := make(map[string]models.SignalRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys used in Storage.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
	KeySQLHistory   = "sql_history"
)

// Storage is a small string key-value store that outlives the process.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(keys ...string) error
}

// FileStorage keeps every key in one JSON object on disk.
type FileStorage struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewFileStorage opens path, creating nothing until the first write. A missing file is empty.
func NewFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.values); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	return fs, nil
}

func (fs *FileStorage) Get(key string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.values[key]
	return v, ok
}

func (fs *FileStorage) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.values[key] = value
	return fs.flush()
}

func (fs *FileStorage) Delete(keys ...string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, k := range keys {
		delete(fs.values, k)
	}
	return fs.flush()
}

// flush writes through a temp file so a crash never leaves a half-written session. Caller holds mu.
func (fs *FileStorage) flush() error {
	data, err := json.MarshalIndent(fs.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("failed to replace session file %s: %w", fs.path, err)
	}
	return nil
}

// MemoryStorage is a Storage that lives only as long as the process.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

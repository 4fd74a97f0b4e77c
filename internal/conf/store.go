package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// SettingsStore is a small durable key/value store for runtime state such as
// the active classifier. It is read at startup and written on change.
type SettingsStore interface {
	Get(key, def string) string
	Set(key, value string) error
}

// FileStore persists a flat string map as YAML. Writes go through a temp
// file and rename so a crash never leaves a truncated file behind.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// OpenFileStore loads path, treating a missing file as empty.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.New(fmt.Errorf("read settings store: %w", err)).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, errors.New(fmt.Errorf("parse settings store: %w", err)).
			Category(errors.CategoryFileParsing).
			FileContext(path, int64(len(data))).
			Build()
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}

	return s, nil
}

// Get returns the stored value or def when the key is absent.
func (s *FileStore) Get(key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Set stores value and writes the file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = value

	if err := s.saveLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}

	GetLogger().Debug("settings store updated", logger.String("key", key), logger.String("value", value))
	return nil
}

func (s *FileStore) saveLocked() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return errors.New(err).Category(errors.CategoryFileParsing).Build()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Build()
	}

	tmp, err := os.CreateTemp(dir, ".pagd-state-*.yaml")
	if err != nil {
		return errors.New(fmt.Errorf("error creating temporary file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.New(fmt.Errorf("error writing temporary file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := tmp.Close(); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Build()
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.New(fmt.Errorf("error replacing settings store: %w", err)).
			Category(errors.CategoryFileIO).
			FileContext(s.path, int64(len(data))).
			Build()
	}

	return nil
}

// MemoryStore is an in-memory SettingsStore for tests and one-shot commands.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	// Err, when set, is returned by Set without storing.
	Err error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value or def.
func (m *MemoryStore) Get(key, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Set stores value unless Err is set.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.values[key] = value
	return nil
}

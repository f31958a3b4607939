// Package ledger persists feature requests and conversation history as JSON
// documents that are read in full and rewritten in full on every save.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// Store is a JSON array of T kept in a single file. Writes hold a mutex within
// the process and a file lock on <path>.lock across processes.
type Store[T any] struct {
	path        string
	logger      *slog.Logger
	mu          sync.Mutex
	lockTimeout time.Duration
}

// NewStore creates a store for path. A nil logger uses slog.Default().
func NewStore[T any](path string, logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{path: path, logger: logger, lockTimeout: DefaultLockTimeout}
}

// Path returns the backing file path.
func (s *Store[T]) Path() string {
	return s.path
}

// Load reads all items. A missing file is an empty ledger.
func (s *Store[T]) Load() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the file contents with items.
func (s *Store[T]) Save(items []T) error {
	return s.locked(func() error {
		return s.save(items)
	})
}

// Update loads, applies fn and saves under one lock.
func (s *Store[T]) Update(fn func([]T) ([]T, error)) error {
	return s.locked(func() error {
		items, err := s.load()
		if err != nil {
			return err
		}
		items, err = fn(items)
		if err != nil {
			return err
		}
		return s.save(items)
	})
}

func (s *Store[T]) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock := newFileLock(s.path + ".lock")
	if err := lock.lock(context.Background(), s.lockTimeout); err != nil {
		return fmt.Errorf("failed to lock ledger %s: %w", s.path, err)
	}
	defer func() {
		if err := lock.unlock(); err != nil {
			s.logger.Warn("Failed to unlock ledger", "path", s.path, "error", err)
		}
	}()

	return fn()
}

func (s *Store[T]) load() ([]T, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("failed to parse ledger %s: %w", s.path, err)
		}
		if err := json.Unmarshal([]byte(repaired), &items); err != nil {
			return nil, fmt.Errorf("failed to parse repaired ledger %s: %w", s.path, err)
		}
		s.logger.Warn("Ledger was malformed and has been repaired", "path", s.path)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (s *Store[T]) save(items []T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}
	return nil
}

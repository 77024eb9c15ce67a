// Package history keeps the most recent capture-and-send outcomes on disk.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// Limit is how many entries are kept
const Limit = 10

const fileName = "history.json"

// Store is a newest-first, bounded list of history entries persisted as JSON
type Store struct {
	mu      sync.RWMutex
	path    string
	entries []models.HistoryEntry
}

// NewStore opens the history kept in dir, creating dir if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	s := &Store{path: filepath.Join(dir, fileName)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Record prepends entry, assigning an ID and timestamp when missing, and
// drops anything past Limit.
func (s *Store) Record(entry models.HistoryEntry) (models.HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CapturedAt.IsZero() {
		entry.CapturedAt = time.Now().UTC()
	}
	if entry.CategoryName == "" {
		entry.CategoryName = "Unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.HistoryEntry, 0, Limit)
	next = append(next, entry)
	next = append(next, s.entries...)
	if len(next) > Limit {
		next = next[:Limit]
	}

	if err := s.save(next); err != nil {
		return models.HistoryEntry{}, err
	}
	s.entries = next
	return entry, nil
}

// List returns the entries, newest first
func (s *Store) List() []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.HistoryEntry(nil), s.entries...)
}

// Clear removes every entry
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(nil); err != nil {
		return err
	}
	s.entries = nil
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse history %s: %w", s.path, err)
	}
	if len(entries) > Limit {
		entries = entries[:Limit]
	}
	s.entries = entries
	return nil
}

// save writes entries to a temp file and renames it over the history file
func (s *Store) save(entries []models.HistoryEntry) error {
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*")
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

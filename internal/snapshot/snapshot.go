// Package snapshot persists crawl results as dated JSON files, the fallback
// sink when the relational store is unreachable and the cache the HTTP API
// serves from.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound reports a snapshot key that has never been written. It is a
// condition, not a failure.
var ErrNotFound = errors.New("snapshot not found")

// Store reads and writes JSON snapshots under one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name, date string) string {
	if date == "" {
		return filepath.Join(s.dir, name+".json")
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", name, date))
}

// Save writes v as an indented JSON snapshot keyed by name and an optional
// date string.
func (s *Store) Save(name, date string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}

	path := s.path(name, date)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// Load decodes the snapshot for name and date into v. A missing key yields
// ErrNotFound.
func (s *Store) Load(name, date string, v interface{}) error {
	path := s.path(name, date)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return nil
}

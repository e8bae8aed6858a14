package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// HashesFile holds the path -> digest map of the last ingestion run
	HashesFile = "file_hashes.yaml"

	// StatsFile holds the RunStats of the last build
	StatsFile = "stats.yaml"
)

// HashStore persists the file hash record as a YAML mapping
type HashStore struct {
	path string
}

// NewHashStore creates a store for the hash record under dir
func NewHashStore(dir string) *HashStore {
	return &HashStore{path: filepath.Join(dir, HashesFile)}
}

// Path returns the location of the hash record
func (s *HashStore) Path() string {
	return s.path
}

// Load reads the record. A missing file is an empty record, not an error.
func (s *HashStore) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file hashes: %w", err)
	}

	hashes := map[string]string{}
	if err := yaml.Unmarshal(data, &hashes); err != nil {
		return nil, fmt.Errorf("failed to parse file hashes: %w", err)
	}
	return hashes, nil
}

// Save replaces the record wholesale
func (s *HashStore) Save(hashes map[string]string) error {
	data, err := yaml.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("failed to encode file hashes: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// writeFileAtomic writes data to a sibling temp file and renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

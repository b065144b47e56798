package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/quantumflow/annealflow/internal/models"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version int                    `json:"version"`
	Agents  []*models.AgentProfile `json:"agents"`
}

// FileStore keeps all profiles in a single JSON document on disk. Writes go
// to a temporary file that is renamed over the original.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the JSON file at path, creating the
// parent directory if needed
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, storeErr(BackendFile, "open", errors.New("empty path"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, storeErr(BackendFile, "open", fmt.Errorf("failed to create directory: %w", err))
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file
func (s *FileStore) Path() string { return s.path }

// LoadAll reads every profile from disk. A missing file is an empty store.
func (s *FileStore) LoadAll(ctx context.Context) ([]*models.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.read()
	if err != nil {
		return nil, storeErr(BackendFile, "load", err)
	}
	sortByCreation(profiles)
	return profiles, nil
}

// SaveAll replaces the file's contents with profiles
func (s *FileStore) SaveAll(ctx context.Context, profiles []*models.AgentProfile) error {
	for _, p := range profiles {
		if err := validate(p); err != nil {
			return storeErr(BackendFile, "save all", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return storeErr(BackendFile, "save all", s.write(profiles))
}

// Save replaces or appends one profile
func (s *FileStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	if err := validate(profile); err != nil {
		return storeErr(BackendFile, "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.read()
	if err != nil {
		return storeErr(BackendFile, "save", err)
	}

	replaced := false
	for i, p := range profiles {
		if p.ID == profile.ID {
			profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		profiles = append(profiles, profile)
	}
	return storeErr(BackendFile, "save", s.write(profiles))
}

// Delete removes one profile
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.read()
	if err != nil {
		return storeErr(BackendFile, "delete", err)
	}

	kept := profiles[:0]
	for _, p := range profiles {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(profiles) {
		return nil
	}
	return storeErr(BackendFile, "delete", s.write(kept))
}

// Close is a no-op; the file is not held open
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() ([]*models.AgentProfile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if doc.Version > fileFormatVersion {
		return nil, fmt.Errorf("%s has unsupported format version %d", s.path, doc.Version)
	}
	return doc.Agents, nil
}

func (s *FileStore) write(profiles []*models.AgentProfile) error {
	if profiles == nil {
		profiles = []*models.AgentProfile{}
	}
	data, err := json.MarshalIndent(fileDocument{Version: fileFormatVersion, Agents: profiles}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".agents-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

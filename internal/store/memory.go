package store

import (
	"context"
	"sync"

	"github.com/quantumflow/annealflow/internal/models"
)

// MemoryStore keeps encoded profiles in process memory. Profiles are copied
// on the way in and out, so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string][]byte)}
}

// LoadAll returns copies of every stored profile
func (s *MemoryStore) LoadAll(ctx context.Context) ([]*models.AgentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]*models.AgentProfile, 0, len(s.profiles))
	for _, data := range s.profiles {
		profile, err := decodeProfile(data)
		if err != nil {
			return nil, storeErr(BackendMemory, "load", err)
		}
		profiles = append(profiles, profile)
	}
	sortByCreation(profiles)
	return profiles, nil
}

// SaveAll replaces the stored collection
func (s *MemoryStore) SaveAll(ctx context.Context, profiles []*models.AgentProfile) error {
	encoded := make(map[string][]byte, len(profiles))
	for _, p := range profiles {
		data, err := encodeProfile(p)
		if err != nil {
			return storeErr(BackendMemory, "save all", err)
		}
		encoded[p.ID] = data
	}

	s.mu.Lock()
	s.profiles = encoded
	s.mu.Unlock()
	return nil
}

// Save replaces one profile
func (s *MemoryStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	data, err := encodeProfile(profile)
	if err != nil {
		return storeErr(BackendMemory, "save", err)
	}

	s.mu.Lock()
	s.profiles[profile.ID] = data
	s.mu.Unlock()
	return nil
}

// Delete removes one profile
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.profiles, id)
	s.mu.Unlock()
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// Package store persists agent profiles and their accumulated history.
//
// AgentStore is the load/save boundary of the engine. Every backend stores a
// profile as one JSON document and treats Save as an atomic replace of that
// document; SaveAll replaces the whole collection.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quantumflow/annealflow/internal/models"
)

// AgentStore loads and saves agent profiles
type AgentStore interface {
	// LoadAll returns every stored profile, oldest first
	LoadAll(ctx context.Context) ([]*models.AgentProfile, error)

	// SaveAll replaces the stored collection with profiles
	SaveAll(ctx context.Context, profiles []*models.AgentProfile) error

	// Save atomically replaces (or inserts) a single profile
	Save(ctx context.Context, profile *models.AgentProfile) error

	// Delete removes a profile; deleting a missing profile is not an error
	Delete(ctx context.Context, id string) error

	// Close releases the backend's resources
	Close() error
}

// ErrInvalidProfile is returned when a profile cannot be stored
var ErrInvalidProfile = errors.New("invalid profile")

// StoreError reports a failed store operation
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: backend, Op: op, Err: err}
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendDgraph = "dgraph"
)

// Config selects and configures a backend
type Config struct {
	Backend string `yaml:"backend"`

	// Path is the JSON file, Badger directory or SQLite database file
	Path string `yaml:"path"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	DgraphURL string `yaml:"dgraph_url"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns a file-backed configuration under the user's home
func DefaultConfig() Config {
	return Config{
		Backend:        BackendFile,
		Path:           "~/.annealflow/agents.json",
		RedisURL:       "localhost:6379",
		RedisPrefix:    "annealflow",
		DgraphURL:      "localhost:9080",
		ConnectTimeout: 5 * time.Second,
	}
}

// Open creates the backend named by cfg.Backend
func Open(cfg Config, logger *slog.Logger) (AgentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("store: opening", "backend", cfg.Backend, "path", cfg.Path)

	var (
		s   AgentStore
		err error
	)
	switch cfg.Backend {
	case BackendMemory:
		s = NewMemoryStore()
	case BackendFile, "":
		s, err = NewFileStore(expandPath(cfg.Path))
	case BackendBadger:
		s, err = NewBadgerStore(expandPath(cfg.Path))
	case BackendRedis:
		s, err = NewRedisStore(cfg)
	case BackendSQLite:
		s, err = NewSQLiteStore(expandPath(cfg.Path))
	case BackendDgraph:
		s, err = NewDgraphStore(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func validate(profile *models.AgentProfile) error {
	if profile == nil {
		return fmt.Errorf("%w: nil profile", ErrInvalidProfile)
	}
	if profile.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProfile)
	}
	return nil
}

func encodeProfile(profile *models.AgentProfile) ([]byte, error) {
	if err := validate(profile); err != nil {
		return nil, err
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile %s: %w", profile.ID, err)
	}
	return data, nil
}

func decodeProfile(data []byte) (*models.AgentProfile, error) {
	var profile models.AgentProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// sortByCreation orders profiles oldest first, breaking ties by ID
func sortByCreation(profiles []*models.AgentProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

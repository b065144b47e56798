package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/quantumflow/annealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile(id string, created time.Time) *models.AgentProfile {
	return &models.AgentProfile{
		ID:               id,
		Name:             "agent " + id,
		Category:         models.CategoryCoder,
		Goal:             "ship small functions",
		TemperatureScale: 0.5,
		MaxIterations:    10,
		CreatedAt:        created,
		UpdatedAt:        created,
		Strategies: map[string]*models.StrategyStats{
			models.DefaultStrategy: {SuccessRate: 0.5, Uses: 0},
		},
		StrategyOrder: []string{models.DefaultStrategy},
		BestStrategy:  models.DefaultStrategy,
		TaskHistory: []models.TaskResult{
			{
				ID:        id + "-r1",
				AgentID:   id,
				Task:      "write a parser",
				Result:    "# Parser",
				Success:   true,
				Quality:   0.72,
				Duration:  1500 * time.Millisecond,
				Timestamp: created.Add(time.Minute),
			},
		},
	}
}

// exerciseStore runs the shared AgentStore contract against s
func exerciseStore(t *testing.T, s AgentStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	profiles, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	a := testProfile("a", base.Add(2*time.Hour))
	b := testProfile("b", base)
	require.NoError(t, s.SaveAll(ctx, []*models.AgentProfile{a, b}))

	profiles, err = s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "b", profiles[0].ID, "oldest profile first")
	assert.Equal(t, "a", profiles[1].ID)
	assert.Equal(t, models.CategoryCoder, profiles[1].Category)
	require.Len(t, profiles[1].TaskHistory, 1)
	assert.InDelta(t, 0.72, profiles[1].TaskHistory[0].Quality, 1e-9)
	assert.True(t, profiles[1].CreatedAt.Equal(a.CreatedAt))

	a.Goal = "ship tested functions"
	require.NoError(t, s.Save(ctx, a))

	c := testProfile("c", base.Add(time.Hour))
	require.NoError(t, s.Save(ctx, c))

	profiles, err = s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, []string{"b", "c", "a"}, ids(profiles))
	assert.Equal(t, "ship tested functions", profiles[2].Goal)

	require.NoError(t, s.Delete(ctx, "b"))
	require.NoError(t, s.Delete(ctx, "missing"))

	profiles, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(profiles))

	require.NoError(t, s.SaveAll(ctx, []*models.AgentProfile{b}))
	profiles, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(profiles), "SaveAll replaces the collection")

	err = s.Save(ctx, &models.AgentProfile{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidProfile))
}

func ids(profiles []*models.AgentProfile) []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := testProfile("a", time.Now())
	require.NoError(t, s.Save(ctx, p))
	p.Goal = "changed after save"

	profiles, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "ship small functions", profiles[0].Goal)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "agents.json"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestFileStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agents.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testProfile("a", time.Now())))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	profiles, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "a", profiles[0].ID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.LoadAll(context.Background())
	require.Error(t, err)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, BackendFile, storeErr.Backend)
	assert.Equal(t, "load", storeErr.Op)
}

func TestFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestBadgerStore(t *testing.T) {
	s, err := openBadgerStore(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testProfile("a", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	profiles, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(profiles))
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_QueryResults(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "agents.db"))
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := testProfile("a", base)
	p.TaskHistory = append(p.TaskHistory, models.TaskResult{
		ID:        "a-r2",
		AgentID:   "a",
		Task:      "write a lexer",
		Success:   false,
		Quality:   0.41,
		Duration:  2 * time.Second,
		Timestamp: base.Add(2 * time.Minute),
	})
	require.NoError(t, s.Save(ctx, p))
	// Saving again must not duplicate results.
	require.NoError(t, s.Save(ctx, p))
	require.NoError(t, s.Save(ctx, testProfile("b", base)))

	all, err := s.QueryResults(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	agentID := "a"
	forA, err := s.QueryResults(ctx, &ResultFilter{AgentID: &agentID})
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, "a-r2", forA[0].ID, "newest first")
	assert.Equal(t, 2*time.Second, forA[0].Duration)

	failed := false
	failures, err := s.QueryResults(ctx, &ResultFilter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.InDelta(t, 0.41, failures[0].Quality, 1e-9)

	limited, err := s.QueryResults(ctx, &ResultFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// Results outlive the agent.
	require.NoError(t, s.Delete(ctx, "a"))
	forA, err = s.QueryResults(ctx, &ResultFilter{AgentID: &agentID})
	require.NoError(t, err)
	assert.Len(t, forA, 2)
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	cfg.RedisPrefix = "annealflow-test-" + time.Now().Format("150405.000000")
	cfg.ConnectTimeout = time.Second
	s, err := NewRedisStore(cfg)
	if err != nil {
		t.Skip("Skipping test - Redis not available")
	}
	defer s.Close()
	defer s.SaveAll(context.Background(), nil)

	exerciseStore(t, s)
}

func TestDgraphStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	s, err := NewDgraphStore(cfg)
	if err != nil {
		t.Skip("Skipping test - Dgraph not available")
	}
	defer s.Close()

	ctx := context.Background()
	existing, err := s.LoadAll(ctx)
	require.NoError(t, err)
	if len(existing) > 0 {
		t.Skip("Skipping test - Dgraph already holds agents")
	}
	defer s.SaveAll(ctx, nil)

	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    interface{}
		wantErr bool
	}{
		{name: "memory", cfg: Config{Backend: BackendMemory}, want: &MemoryStore{}},
		{name: "file", cfg: Config{Backend: BackendFile, Path: filepath.Join(dir, "agents.json")}, want: &FileStore{}},
		{name: "empty backend is file", cfg: Config{Path: filepath.Join(dir, "default.json")}, want: &FileStore{}},
		{name: "sqlite", cfg: Config{Backend: BackendSQLite, Path: filepath.Join(dir, "agents.db")}, want: &SQLiteStore{}},
		{name: "badger", cfg: Config{Backend: BackendBadger, Path: filepath.Join(dir, "badger")}, want: &BadgerStore{}},
		{name: "unknown", cfg: Config{Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x", "agents.json"), expandPath("~/x/agents.json"))
	assert.Equal(t, "/tmp/agents.json", expandPath("/tmp/agents.json"))
}

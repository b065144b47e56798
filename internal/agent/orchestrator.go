package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/learning"
	"github.com/quantumflow/annealflow/internal/metrics"
	"github.com/quantumflow/annealflow/internal/models"
	"github.com/quantumflow/annealflow/internal/store"
)

var (
	// ErrAgentNotFound is returned for an unknown agent ID
	ErrAgentNotFound = errors.New("agent not found")

	// ErrCategoryImmutable is returned when an update tries to change an
	// agent's category
	ErrCategoryImmutable = errors.New("agent category cannot be changed")

	// ErrInvalidAgent is returned when a create or update request is invalid
	ErrInvalidAgent = errors.New("invalid agent")

	// ErrEmptyTask is returned by Execute for a blank task
	ErrEmptyTask = errors.New("task is empty")
)

// Orchestrator owns the loaded agent profiles. It serializes executions per
// agent and writes every change through to the store.
type Orchestrator struct {
	engine   *anneal.Engine
	tracker  *learning.Tracker
	store    store.AgentStore
	defaults Defaults
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	profiles map[string]*models.AgentProfile
	locks    map[string]*sync.Mutex
}

// Defaults fill tunables omitted from a CreateRequest
type Defaults struct {
	TemperatureScale float64
	CreativityBias   float64
	MaxIterations    int
	LearningRate     float64
}

// DefaultDefaults returns the built-in agent tunables
func DefaultDefaults() Defaults {
	return Defaults{
		TemperatureScale: 0.5,
		CreativityBias:   0.5,
		MaxIterations:    10,
		LearningRate:     0.1,
	}
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithDefaults sets the tunables used for omitted create fields
func WithDefaults(d Defaults) OrchestratorOption {
	return func(o *Orchestrator) { o.defaults = d }
}

// WithMetrics records agent counts and store failures
func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator. Call Load to read existing
// profiles from the store.
func NewOrchestrator(engine *anneal.Engine, tracker *learning.Tracker, agentStore store.AgentStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		tracker:  tracker,
		store:    agentStore,
		defaults: DefaultDefaults(),
		logger:   slog.Default(),
		now:      time.Now,
		profiles: make(map[string]*models.AgentProfile),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load replaces the in-memory profiles with the store's contents
func (o *Orchestrator) Load(ctx context.Context) error {
	profiles, err := o.store.LoadAll(ctx)
	if err != nil {
		o.observeStoreError("load")
		return fmt.Errorf("failed to load agents: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.profiles = make(map[string]*models.AgentProfile, len(profiles))
	for _, p := range profiles {
		p.Clamp()
		learning.EnsureStrategies(p)
		p.State.Running = false
		o.profiles[p.ID] = p
		if _, ok := o.locks[p.ID]; !ok {
			o.locks[p.ID] = &sync.Mutex{}
		}
	}
	o.updateAgentGauge()

	o.logger.Info("orchestrator: agents loaded", "count", len(profiles))
	return nil
}

// CreateRequest describes a new agent. Nil tunables take the orchestrator
// defaults.
type CreateRequest struct {
	Name             string
	Category         models.AgentCategory
	Goal             string
	TemperatureScale *float64
	CreativityBias   *float64
	MaxIterations    *int
	LearningRate     *float64
}

// CreateAgent validates req, stores a new profile and returns a snapshot
func (o *Orchestrator) CreateAgent(ctx context.Context, req CreateRequest) (*models.AgentProfile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidAgent, req.Category)
	}

	now := o.now()
	profile := &models.AgentProfile{
		ID:               uuid.NewString(),
		Name:             name,
		Category:         req.Category,
		Goal:             strings.TrimSpace(req.Goal),
		TemperatureScale: floatOr(req.TemperatureScale, o.defaults.TemperatureScale),
		CreativityBias:   floatOr(req.CreativityBias, o.defaults.CreativityBias),
		MaxIterations:    intOr(req.MaxIterations, o.defaults.MaxIterations),
		LearningRate:     floatOr(req.LearningRate, o.defaults.LearningRate),
		CreatedAt:        now,
		UpdatedAt:        now,
		State:            models.AnnealingState{Energy: 1, BestEnergy: 1},
	}
	profile.Clamp()
	learning.EnsureStrategies(profile)
	profile.Metrics = o.tracker.Compute(nil, profile.BestStrategy)

	if err := o.store.Save(ctx, profile); err != nil {
		o.observeStoreError("save")
		return nil, fmt.Errorf("failed to save agent: %w", err)
	}

	o.mu.Lock()
	o.profiles[profile.ID] = profile
	o.locks[profile.ID] = &sync.Mutex{}
	o.updateAgentGauge()
	o.mu.Unlock()

	o.logger.Info("orchestrator: agent created", "agent_id", profile.ID, "name", profile.Name, "category", profile.Category)
	return profile.Clone(), nil
}

// GetAgent returns a snapshot of one profile
func (o *Orchestrator) GetAgent(id string) (*models.AgentProfile, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p, ok := o.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return p.Clone(), nil
}

// FindAgent resolves an ID, a unique ID prefix or an exact name
func (o *Orchestrator) FindAgent(ref string) (*models.AgentProfile, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if p, ok := o.profiles[ref]; ok {
		return p.Clone(), nil
	}

	var match *models.AgentProfile
	for _, p := range o.profiles {
		if p.Name == ref || (len(ref) >= 4 && strings.HasPrefix(p.ID, ref)) {
			if match != nil {
				return nil, fmt.Errorf("agent reference %q is ambiguous", ref)
			}
			match = p
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, ref)
	}
	return match.Clone(), nil
}

// ListAgents returns snapshots of every profile, oldest first
func (o *Orchestrator) ListAgents() []*models.AgentProfile {
	o.mu.RLock()
	profiles := make([]*models.AgentProfile, 0, len(o.profiles))
	for _, p := range o.profiles {
		profiles = append(profiles, p.Clone())
	}
	o.mu.RUnlock()

	sortProfiles(profiles)
	return profiles
}

// UpdateRequest changes the mutable fields of an agent. Nil fields are left
// alone. Category may be given but must match the current one.
type UpdateRequest struct {
	Name             *string
	Category         *models.AgentCategory
	Goal             *string
	TemperatureScale *float64
	CreativityBias   *float64
	MaxIterations    *int
	LearningRate     *float64
}

// UpdateAgent applies req. It waits for any running execution of the agent.
func (o *Orchestrator) UpdateAgent(ctx context.Context, id string, req UpdateRequest) (*models.AgentProfile, error) {
	lock, err := o.agentLock(id)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	current, err := o.GetAgent(id)
	if err != nil {
		return nil, err
	}

	if req.Category != nil && *req.Category != current.Category {
		return nil, fmt.Errorf("%w: %s is a %s", ErrCategoryImmutable, id, current.Category)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidAgent)
		}
		current.Name = name
	}
	if req.Goal != nil {
		current.Goal = strings.TrimSpace(*req.Goal)
	}
	current.TemperatureScale = floatOr(req.TemperatureScale, current.TemperatureScale)
	current.CreativityBias = floatOr(req.CreativityBias, current.CreativityBias)
	current.MaxIterations = intOr(req.MaxIterations, current.MaxIterations)
	current.LearningRate = floatOr(req.LearningRate, current.LearningRate)
	current.Clamp()
	current.UpdatedAt = o.now()

	if err := o.store.Save(ctx, current); err != nil {
		o.observeStoreError("save")
		return nil, fmt.Errorf("failed to save agent: %w", err)
	}

	o.publish(current)
	o.logger.Info("orchestrator: agent updated", "agent_id", id)
	return current.Clone(), nil
}

// DeleteAgent removes an agent. It waits for any running execution.
func (o *Orchestrator) DeleteAgent(ctx context.Context, id string) error {
	lock, err := o.agentLock(id)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	if err := o.store.Delete(ctx, id); err != nil {
		o.observeStoreError("delete")
		return fmt.Errorf("failed to delete agent: %w", err)
	}

	o.mu.Lock()
	delete(o.profiles, id)
	delete(o.locks, id)
	o.updateAgentGauge()
	o.mu.Unlock()

	o.logger.Info("orchestrator: agent deleted", "agent_id", id)
	return nil
}

// Execute runs task on agent id. Only one execution per agent runs at a
// time; further calls block until the agent is free. The run works on a
// private copy of the profile which replaces the stored one when it ends.
//
// The result is returned even when persisting the updated profile fails; in
// that case the store error is returned alongside it.
func (o *Orchestrator) Execute(ctx context.Context, id, task string, obs anneal.Observer) (*models.TaskResult, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrEmptyTask
	}

	lock, err := o.agentLock(id)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	work, err := o.GetAgent(id)
	if err != nil {
		// Deleted while we waited for the lock.
		return nil, err
	}

	result := o.engine.ExecuteTask(ctx, work, task, obs)
	o.tracker.Record(work, result)
	work.UpdatedAt = o.now()
	o.publish(work)

	// Persist even if the caller cancelled: the run's learning is kept.
	if err := o.store.Save(context.WithoutCancel(ctx), work); err != nil {
		o.observeStoreError("save")
		o.logger.Error("orchestrator: failed to persist agent after run", "agent_id", id, "error", err)
		return result, fmt.Errorf("failed to save agent %s: %w", id, err)
	}
	return result, nil
}

// Close closes the underlying store
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

func (o *Orchestrator) agentLock(id string) (*sync.Mutex, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	lock, ok := o.locks[id]
	if !ok || o.profiles[id] == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return lock, nil
}

func (o *Orchestrator) publish(p *models.AgentProfile) {
	o.mu.Lock()
	if _, ok := o.profiles[p.ID]; ok {
		o.profiles[p.ID] = p.Clone()
	}
	o.mu.Unlock()
}

// updateAgentGauge must be called with o.mu held
func (o *Orchestrator) updateAgentGauge() {
	if o.metrics != nil {
		o.metrics.AgentsTotal.Set(float64(len(o.profiles)))
	}
}

func (o *Orchestrator) observeStoreError(op string) {
	if o.metrics != nil {
		o.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

// sortProfiles orders profiles oldest first, breaking ties by ID
func sortProfiles(profiles []*models.AgentProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

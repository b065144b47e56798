package anneal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/quantumflow/annealflow/internal/models"
)

// Config holds the annealing schedule and success criterion
type Config struct {
	InitialTemperature float64 `yaml:"initial_temperature"` // Multiplied by the profile's temperature scale
	CoolingRate        float64 `yaml:"cooling_rate"`        // Geometric cooling factor applied every iteration
	MinTemperature     float64 `yaml:"min_temperature"`     // The loop stops once temperature falls to this value
	SuccessThreshold   float64 `yaml:"success_threshold"`   // Minimum best quality for a successful run
	NoiseAmplitude     float64 `yaml:"noise_amplitude"`     // Half-width of the evaluator's uniform noise
}

// DefaultConfig returns the default annealing schedule
func DefaultConfig() Config {
	return Config{
		InitialTemperature: 100,
		CoolingRate:        0.9,
		MinTemperature:     1,
		SuccessThreshold:   0.6,
		NoiseAmplitude:     defaultNoiseAmount,
	}
}

// Engine runs the generate/evaluate/accept/cool loop for one task at a time
// per profile. It holds no per-profile state between calls, so one Engine
// may serve many profiles concurrently as long as callers never run two
// executions against the same profile at once.
type Engine struct {
	generator CandidateGenerator
	evaluator *Evaluator
	learner   Learner
	recorder  Recorder
	random    Random
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig replaces the default schedule
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithEvaluator replaces the evaluator built from the engine's random source
func WithEvaluator(ev *Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithLearner registers the component that learns from finished runs
func WithLearner(l Learner) Option {
	return func(e *Engine) { e.learner = l }
}

// WithRecorder registers a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRandom sets the source used for Metropolis draws and, unless an
// evaluator is given, for score noise
func WithRandom(r Random) Option {
	return func(e *Engine) { e.random = r }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine around a candidate generator
func NewEngine(generator CandidateGenerator, opts ...Option) *Engine {
	e := &Engine{
		generator: generator,
		config:    DefaultConfig(),
		random:    DefaultRandom(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluator == nil {
		e.evaluator = NewEvaluator(e.random, e.config.NoiseAmplitude)
	}
	return e
}

// Evaluator returns the evaluator used to score candidates
func (e *Engine) Evaluator() *Evaluator { return e.evaluator }

// ExecuteTask optimizes a solution for task using profile's parameters.
// It always returns a well-formed result: generation failures fall back to
// a template and cancellation of ctx stops the loop after the current
// iteration. A generation call cut short by cancellation is dropped without
// a fallback. The profile's State is updated as the loop progresses.
func (e *Engine) ExecuteTask(ctx context.Context, profile *models.AgentProfile, task string, obs Observer) *models.TaskResult {
	if obs == nil {
		obs = nopObserver{}
	}
	start := e.now()
	logger := e.logger.With("agent_id", profile.ID, "category", profile.Category)

	state := models.AnnealingState{
		Temperature: e.config.InitialTemperature * profile.TemperatureScale,
		Energy:      1,
		BestEnergy:  1,
		Running:     true,
	}
	profile.State = state

	var (
		bestResult   string
		bestQuality  float64
		improvements []string
		cancelled    bool
	)

	logger.Info("anneal: starting task", "temperature", state.Temperature, "max_iterations", profile.MaxIterations)
	obs.OnLog(fmt.Sprintf("starting task at temperature %.2f", state.Temperature), models.LogInfo)

	for state.Iterations < profile.MaxIterations && state.Temperature > e.config.MinTemperature {
		// Yield point: cancellation is only observed between iterations.
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		iteration := state.Iterations + 1
		candidate, err := e.generator.Generate(ctx, task, profile, state.Temperature)
		if err != nil && ctx.Err() != nil {
			// Interrupted mid-call: the draft is discarded, not replaced by
			// the fallback.
			cancelled = true
			break
		}
		if err != nil {
			genErr := asGenerationError(err, profile.ID, iteration)
			logger.Warn("anneal: generation failed, using fallback", "iteration", iteration, "error", genErr.Err)
			obs.OnLog(genErr.Error(), models.LogError)
			if e.recorder != nil {
				e.recorder.ObserveGenerationFailure(profile.Category)
			}
			candidate = FallbackCandidate(profile.Category, task)
		}

		quality := e.evaluator.Score(candidate, task, profile.Category)
		energy := 1 - quality
		state.Energy = energy

		accepted := e.accept(energy, state.BestEnergy, state.Temperature)
		if accepted {
			state.Acceptances++
			if quality > bestQuality {
				msg := fmt.Sprintf("iteration %d: quality %.3f -> %.3f", iteration, bestQuality, quality)
				improvements = append(improvements, msg)
				state.Improvements++
				obs.OnLog(msg, models.LogImprovement)

				bestResult = candidate
				bestQuality = quality
				state.BestEnergy = energy
			} else {
				obs.OnLog(fmt.Sprintf("iteration %d: accepted non-improving draft (quality %.3f)", iteration, quality), models.LogInfo)
			}
		}

		if e.recorder != nil {
			e.recorder.ObserveIteration(profile.Category, state.Temperature, accepted)
		}

		state.Iterations = iteration
		state.Convergence = 1 - state.BestEnergy
		state.Temperature *= e.config.CoolingRate
		profile.State = state
		obs.OnState(state)
	}

	state.Running = false
	profile.State = state
	obs.OnState(state)

	if bestResult == "" {
		bestResult = FallbackCandidate(profile.Category, task)
	}
	success := bestQuality >= e.config.SuccessThreshold

	result := &models.TaskResult{
		ID:           uuid.NewString(),
		AgentID:      profile.ID,
		Task:         task,
		Result:       bestResult,
		Success:      success,
		Quality:      bestQuality,
		Duration:     e.now().Sub(start),
		Iterations:   state.Iterations,
		Improvements: improvements,
		Cancelled:    cancelled,
		Timestamp:    e.now(),
	}

	if cancelled {
		obs.OnLog(fmt.Sprintf("cancelled after %d iterations", state.Iterations), models.LogInfo)
	}
	obs.OnLog(fmt.Sprintf("finished: quality %.3f, success %t", bestQuality, success), models.LogInfo)
	logger.Info("anneal: task finished",
		"iterations", state.Iterations,
		"quality", bestQuality,
		"success", success,
		"cancelled", cancelled,
		"duration", result.Duration,
	)

	if e.learner != nil {
		e.learner.RecordLearning(profile, task, bestQuality, success)
	}
	if e.recorder != nil {
		e.recorder.ObserveRun(profile.Category, result)
	}

	return result
}

func (e *Engine) accept(energy, bestEnergy, temperature float64) bool {
	if energy < bestEnergy {
		return true
	}
	return e.random.Float64() < AcceptanceProbability(energy, bestEnergy, temperature)
}

// AcceptanceProbability is the Metropolis criterion on the 0-100
// temperature scale. Strictly better candidates are always accepted.
func AcceptanceProbability(energy, bestEnergy, temperature float64) float64 {
	if energy < bestEnergy {
		return 1
	}
	if temperature <= 0 {
		return 0
	}
	return math.Exp(-(energy - bestEnergy) / (temperature / 100))
}

func asGenerationError(err error, agentID string, iteration int) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Err != nil {
		err = genErr.Err
	}
	return &GenerationError{AgentID: agentID, Iteration: iteration, Err: err}
}

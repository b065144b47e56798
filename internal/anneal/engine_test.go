package anneal

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/quantumflow/annealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generatorFunc func(ctx context.Context, task string, profile *models.AgentProfile, temperature float64) (string, error)

func (f generatorFunc) Generate(ctx context.Context, task string, profile *models.AgentProfile, temperature float64) (string, error) {
	return f(ctx, task, profile, temperature)
}

type recordingObserver struct {
	states []models.AnnealingState
	logs   map[models.LogKind][]string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{logs: make(map[models.LogKind][]string)}
}

func (o *recordingObserver) OnState(s models.AnnealingState) { o.states = append(o.states, s) }
func (o *recordingObserver) OnLog(msg string, kind models.LogKind) {
	o.logs[kind] = append(o.logs[kind], msg)
}

// iterationStates drops the final frozen snapshot emitted after the loop
func (o *recordingObserver) iterationStates() []models.AnnealingState {
	if len(o.states) == 0 {
		return nil
	}
	return o.states[:len(o.states)-1]
}

type learnerSpy struct {
	calls   int
	task    string
	quality float64
	success bool
}

func (l *learnerSpy) RecordLearning(_ *models.AgentProfile, task string, quality float64, success bool) {
	l.calls++
	l.task = task
	l.quality = quality
	l.success = success
}

type recorderSpy struct {
	iterations         int
	generationFailures int
	runs               int
}

func (r *recorderSpy) ObserveIteration(models.AgentCategory, float64, bool) { r.iterations++ }
func (r *recorderSpy) ObserveGenerationFailure(models.AgentCategory)         { r.generationFailures++ }
func (r *recorderSpy) ObserveRun(models.AgentCategory, *models.TaskResult)   { r.runs++ }

func deterministicConfig() Config {
	cfg := DefaultConfig()
	cfg.NoiseAmplitude = 0
	return cfg
}

func coderProfile(maxIterations int) *models.AgentProfile {
	return &models.AgentProfile{
		ID:               "agent-1",
		Name:             "coder",
		Category:         models.CategoryCoder,
		TemperatureScale: 1.0,
		MaxIterations:    maxIterations,
	}
}

const codeSnippet = "```js\nfunction add(a, b) {\n  return a + b;\n}\n```\n"

func TestExecuteTask_CoderScenario(t *testing.T) {
	gen := generatorFunc(func(context.Context, string, *models.AgentProfile, float64) (string, error) {
		return codeSnippet, nil
	})
	learner := &learnerSpy{}
	engine := NewEngine(gen,
		WithConfig(deterministicConfig()),
		WithRandom(NewSeededRandom(1)),
		WithLearner(learner),
	)

	profile := coderProfile(5)
	obs := newRecordingObserver()
	result := engine.ExecuteTask(context.Background(), profile, "write a function that adds two numbers", obs)

	require.NotNil(t, result)
	assert.Equal(t, 5, result.Iterations)
	// base + code fence + function keyword + return keyword + "function" relevance
	assert.InDelta(t, 0.5+0.05+0.1+0.05+0.03, result.Quality, 1e-9)
	assert.True(t, result.Success)
	assert.Equal(t, codeSnippet, result.Result)
	assert.Len(t, result.Improvements, 1, "identical drafts never improve on the first one")
	assert.Equal(t, "agent-1", result.AgentID)
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.Cancelled)

	assert.False(t, profile.State.Running)
	assert.Equal(t, 5, profile.State.Iterations)
	assert.Equal(t, 1, profile.State.Improvements)
	assert.InDelta(t, result.Quality, profile.State.Convergence, 1e-9)

	assert.Equal(t, 1, learner.calls)
	assert.Equal(t, "write a function that adds two numbers", learner.task)
	assert.InDelta(t, result.Quality, learner.quality, 1e-12)
	assert.True(t, learner.success)

	assert.Len(t, obs.logs[models.LogImprovement], 1)
	assert.Len(t, obs.iterationStates(), 5)
}

func TestExecuteTask_GeneratorAlwaysFails(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, string, *models.AgentProfile, float64) (string, error) {
		calls++
		return "", errors.New("connection refused")
	})
	engine := NewEngine(gen, WithConfig(deterministicConfig()), WithRandom(NewSeededRandom(2)))

	profile := coderProfile(5)
	obs := newRecordingObserver()
	task := "write a function that adds two numbers"
	result := engine.ExecuteTask(context.Background(), profile, task, obs)

	require.NotNil(t, result)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, FallbackCandidate(models.CategoryCoder, task), result.Result)
	assert.Greater(t, result.Quality, 0.0)
	assert.Len(t, obs.logs[models.LogError], 5)
	assert.Contains(t, obs.logs[models.LogError][0], "connection refused")
}

func TestExecuteTask_ZeroIterations(t *testing.T) {
	gen := generatorFunc(func(context.Context, string, *models.AgentProfile, float64) (string, error) {
		t.Fatal("generator must not be called")
		return "", nil
	})
	learner := &learnerSpy{}
	engine := NewEngine(gen, WithConfig(deterministicConfig()), WithLearner(learner))

	profile := coderProfile(0)
	result := engine.ExecuteTask(context.Background(), profile, "anything", nil)

	require.NotNil(t, result)
	assert.Equal(t, 0, result.Iterations)
	assert.False(t, result.Success)
	assert.Equal(t, 0.0, result.Quality)
	assert.Equal(t, FallbackCandidate(models.CategoryCoder, "anything"), result.Result)
	assert.Empty(t, result.Improvements)
	assert.Equal(t, 1, learner.calls)
}

func TestExecuteTask_GeometricCooling(t *testing.T) {
	var temps []float64
	gen := generatorFunc(func(_ context.Context, _ string, _ *models.AgentProfile, temperature float64) (string, error) {
		temps = append(temps, temperature)
		return "draft", nil
	})
	engine := NewEngine(gen, WithConfig(deterministicConfig()), WithRandom(NewSeededRandom(3)))

	profile := coderProfile(1000)
	profile.TemperatureScale = 0.5
	obs := newRecordingObserver()
	result := engine.ExecuteTask(context.Background(), profile, "task", obs)

	// 50 * 0.9^i > 1 holds for i <= 37
	require.Len(t, temps, 38)
	assert.Equal(t, 38, result.Iterations)

	for i, temp := range temps {
		want := 100 * 0.5 * math.Pow(0.9, float64(i))
		assert.InEpsilon(t, want, temp, 1e-9, "iteration %d", i)
		if i > 0 {
			assert.Less(t, temp, temps[i-1])
		}
	}

	states := obs.iterationStates()
	require.Len(t, states, 38)
	for i, s := range states {
		want := 100 * 0.5 * math.Pow(0.9, float64(i+1))
		assert.InEpsilon(t, want, s.Temperature, 1e-9)
	}
	assert.LessOrEqual(t, states[len(states)-1].Temperature, 1.0)
}

func TestExecuteTask_BestEnergyNeverIncreases(t *testing.T) {
	drafts := []string{
		"short",
		"# Plan\n- step one\n- step two\n```\nfunction x() { return 1 }\n```",
		"tiny",
		codeSnippet,
		"",
		"# Heading only",
	}
	i := 0
	gen := generatorFunc(func(context.Context, string, *models.AgentProfile, float64) (string, error) {
		d := drafts[i%len(drafts)]
		i++
		return d, nil
	})

	for seed := uint64(0); seed < 20; seed++ {
		engine := NewEngine(gen, WithRandom(NewSeededRandom(seed)))
		obs := newRecordingObserver()
		engine.ExecuteTask(context.Background(), coderProfile(40), "write a function", obs)

		states := obs.iterationStates()
		require.NotEmpty(t, states)
		for j := 1; j < len(states); j++ {
			assert.LessOrEqual(t, states[j].BestEnergy, states[j-1].BestEnergy)
			assert.GreaterOrEqual(t, states[j].Convergence, states[j-1].Convergence)
		}
		for _, s := range states {
			assert.InDelta(t, 1-s.BestEnergy, s.Convergence, 1e-12)
			assert.GreaterOrEqual(t, s.Convergence, 0.0)
			assert.LessOrEqual(t, s.Convergence, 1.0)
		}
	}
}

func TestExecuteTask_CancellationReturnsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	gen := generatorFunc(func(context.Context, string, *models.AgentProfile, float64) (string, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return codeSnippet, nil
	})
	engine := NewEngine(gen, WithConfig(deterministicConfig()))

	result := engine.ExecuteTask(ctx, coderProfile(20), "write a function", nil)

	require.NotNil(t, result)
	assert.Equal(t, 3, calls, "the in-flight iteration completes, no further ones start")
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, result.Cancelled)
	assert.Equal(t, codeSnippet, result.Result)
}

// blockingGenerator returns draft for the first ready calls, then blocks
// until ctx is done and returns its error, like an interrupted HTTP call.
func blockingGenerator(ready int, draft string, started chan<- struct{}) generatorFunc {
	calls := 0
	return func(ctx context.Context, _ string, _ *models.AgentProfile, _ float64) (string, error) {
		calls++
		if calls <= ready {
			return draft, nil
		}
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
}

func TestExecuteTask_CancelledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	learner := &learnerSpy{}
	failures := &recorderSpy{}
	engine := NewEngine(blockingGenerator(0, codeSnippet, started),
		WithConfig(deterministicConfig()),
		WithLearner(learner),
		WithRecorder(failures),
	)
	obs := newRecordingObserver()

	result := engine.ExecuteTask(ctx, coderProfile(10), "write a function that adds two numbers", obs)

	require.NotNil(t, result)
	assert.True(t, result.Cancelled)
	assert.False(t, result.Success)
	assert.Zero(t, result.Quality)
	assert.Equal(t, 0, result.Iterations)
	assert.Empty(t, result.Improvements)
	assert.Empty(t, obs.logs[models.LogError], "cancellation is not a generation failure")
	assert.Zero(t, failures.generationFailures)

	assert.Equal(t, 1, learner.calls)
	assert.False(t, learner.success)
	assert.Zero(t, learner.quality)
}

func TestExecuteTask_CancelledDuringGenerationKeepsBest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	learner := &learnerSpy{}
	engine := NewEngine(blockingGenerator(2, codeSnippet, started),
		WithConfig(deterministicConfig()),
		WithLearner(learner),
	)
	obs := newRecordingObserver()

	result := engine.ExecuteTask(ctx, coderProfile(10), "write a function that adds two numbers", obs)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, codeSnippet, result.Result)
	assert.True(t, result.Success)
	assert.Empty(t, obs.logs[models.LogError])
	assert.True(t, learner.success)
}

func TestExecuteTask_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := generatorFunc(func(context.Context, string, *models.AgentProfile, float64) (string, error) {
		return codeSnippet, nil
	})
	result := NewEngine(gen).ExecuteTask(ctx, coderProfile(5), "task", nil)

	assert.Equal(t, 0, result.Iterations)
	assert.True(t, result.Cancelled)
	assert.False(t, result.Success)
}

func TestAcceptanceProbability(t *testing.T) {
	assert.Equal(t, 1.0, AcceptanceProbability(0.2, 0.5, 0.0001))
	assert.Equal(t, 1.0, AcceptanceProbability(0.2, 0.5, 100))

	hot := AcceptanceProbability(0.6, 0.5, 100)
	warm := AcceptanceProbability(0.6, 0.5, 10)
	cold := AcceptanceProbability(0.6, 0.5, 0.01)
	assert.InDelta(t, math.Exp(-0.1), hot, 1e-12)
	assert.Less(t, warm, hot)
	assert.Less(t, cold, warm)
	assert.Less(t, cold, 1e-100)
	assert.Equal(t, 0.0, AcceptanceProbability(0.6, 0.5, 0))
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&GenerationError{AgentID: "a", Iteration: 2, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "iteration 2")

	wrapped := asGenerationError(&GenerationError{Err: cause}, "b", 4)
	assert.Equal(t, "b", wrapped.AgentID)
	assert.Equal(t, 4, wrapped.Iteration)
	assert.Same(t, cause, wrapped.Err)
}

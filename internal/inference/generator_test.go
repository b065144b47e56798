package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completerFunc func(ctx context.Context, prompt Prompt) (*InferenceResult, error)

func (f completerFunc) GenerateSync(ctx context.Context, prompt Prompt) (*InferenceResult, error) {
	return f(ctx, prompt)
}

func coderProfile() *models.AgentProfile {
	return &models.AgentProfile{
		ID:             "agent-1",
		Category:       models.CategoryCoder,
		Goal:           "write small, tested functions",
		CreativityBias: 0.5,
		BestStrategy:   "technical",
	}
}

func unlimited() GeneratorConfig {
	cfg := DefaultGeneratorConfig()
	cfg.RequestsPerSecond = 0
	return cfg
}

func TestGenerator_Generate(t *testing.T) {
	var seen Prompt
	gen := NewGenerator(completerFunc(func(ctx context.Context, p Prompt) (*InferenceResult, error) {
		seen = p
		return &InferenceResult{Response: "  func Sum(a, b int) int { return a + b }\n"}, nil
	}), unlimited(), nil)

	text, err := gen.Generate(context.Background(), "implement sum", coderProfile(), 80)
	require.NoError(t, err)

	assert.Equal(t, "func Sum(a, b int) int { return a + b }", text)
	assert.Contains(t, seen.System, "software engineer")
	assert.Contains(t, seen.System, "write small, tested functions")
	assert.Contains(t, seen.System, "technical approach")
	assert.Contains(t, seen.Text, "Task: implement sum")
	assert.Contains(t, seen.Text, "Explore")
	assert.InDelta(t, gen.SamplingTemperature(80, 0.5), seen.Temperature, 1e-9)
}

func TestGenerator_Errors(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name    string
		result  *InferenceResult
		err     error
		wantErr error
	}{
		{name: "transport failure", err: cause, wantErr: cause},
		{name: "blank response", result: &InferenceResult{Response: " \n\t"}, wantErr: ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(completerFunc(func(ctx context.Context, p Prompt) (*InferenceResult, error) {
				return tt.result, tt.err
			}), unlimited(), nil)

			_, err := gen.Generate(context.Background(), "task", coderProfile(), 50)
			require.Error(t, err)

			var genErr *anneal.GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, "agent-1", genErr.AgentID)
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}
}

func TestGenerator_RateLimitHonoursContext(t *testing.T) {
	calls := 0
	gen := NewGenerator(completerFunc(func(ctx context.Context, p Prompt) (*InferenceResult, error) {
		calls++
		return &InferenceResult{Response: "ok"}, nil
	}), GeneratorConfig{MinSampling: 0.2, MaxSampling: 1, RequestsPerSecond: 0.001, Burst: 1}, nil)

	_, err := gen.Generate(context.Background(), "task", coderProfile(), 50)
	require.NoError(t, err, "the burst admits the first call")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, "task", coderProfile(), 50)
	require.Error(t, err)

	var genErr *anneal.GenerationError
	assert.True(t, errors.As(err, &genErr))
	assert.Equal(t, 1, calls)
}

func TestGenerator_SamplingTemperature(t *testing.T) {
	gen := NewGenerator(nil, GeneratorConfig{MinSampling: 0.2, MaxSampling: 1.2}, nil)

	assert.InDelta(t, 0.2, gen.SamplingTemperature(0, 0), 1e-9)
	assert.InDelta(t, 1.2, gen.SamplingTemperature(100, 1), 1e-9)
	assert.InDelta(t, 1.2, gen.SamplingTemperature(250, 3), 1e-9, "inputs are clamped")
	assert.InDelta(t, 0.2+0.7, gen.SamplingTemperature(100, 0), 1e-9)
	assert.Less(t, gen.SamplingTemperature(10, 0.5), gen.SamplingTemperature(90, 0.5))
}

func TestTaskPrompt(t *testing.T) {
	assert.Contains(t, TaskPrompt("t", 95), "Explore")
	assert.Contains(t, TaskPrompt("t", 20), "Balance")
	assert.Contains(t, TaskPrompt("t", 2), "Refine")
}

func TestSystemPrompt(t *testing.T) {
	p := &models.AgentProfile{Category: models.CategoryWriter, BestStrategy: models.DefaultStrategy}
	s := SystemPrompt(p)
	assert.Contains(t, s, "professional writer")
	assert.NotContains(t, s, "standing goal")
	assert.NotContains(t, s, "worked best")
}

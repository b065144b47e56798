package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/models"
)

// ErrEmptyResponse is returned when the model produced no text
var ErrEmptyResponse = errors.New("empty model response")

// Completer performs one non-streaming completion. *Client implements it.
type Completer interface {
	GenerateSync(ctx context.Context, prompt Prompt) (*InferenceResult, error)
}

// GeneratorConfig controls how engine temperatures map onto model sampling
type GeneratorConfig struct {
	// Sampling temperature range used for the coldest and hottest drafts
	MinSampling float64 `yaml:"min_sampling"`
	MaxSampling float64 `yaml:"max_sampling"`

	// Outbound request budget; RequestsPerSecond <= 0 disables limiting
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefaultGeneratorConfig returns the default generator configuration
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MinSampling:       0.2,
		MaxSampling:       1.2,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Generator produces candidates with a language model. It implements
// anneal.CandidateGenerator.
type Generator struct {
	completer Completer
	config    GeneratorConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewGenerator creates a generator on top of completer
func NewGenerator(completer Completer, config GeneratorConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxSampling < config.MinSampling {
		config.MaxSampling = config.MinSampling
	}

	limit := rate.Inf
	burst := config.Burst
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &Generator{
		completer: completer,
		config:    config,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

var _ anneal.CandidateGenerator = (*Generator)(nil)

// Generate asks the model for a draft solution of task
func (g *Generator) Generate(ctx context.Context, task string, profile *models.AgentProfile, temperature float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", g.fail(profile, fmt.Errorf("rate limit wait: %w", err))
	}

	prompt := Prompt{
		System:      SystemPrompt(profile),
		Text:        TaskPrompt(task, temperature),
		Temperature: g.SamplingTemperature(temperature, profile.CreativityBias),
	}

	result, err := g.completer.GenerateSync(ctx, prompt)
	if err != nil {
		return "", g.fail(profile, err)
	}

	text := strings.TrimSpace(result.Response)
	if text == "" {
		return "", g.fail(profile, ErrEmptyResponse)
	}

	g.logger.Debug("generator: draft produced",
		"agent", profile.ID,
		"sampling", prompt.Temperature,
		"chars", len(text),
		"latency", result.Latency,
		"tokens_per_sec", result.TokensPerSec,
	)
	return text, nil
}

func (g *Generator) fail(profile *models.AgentProfile, err error) error {
	g.logger.Warn("generator: request failed", "agent", profile.ID, "error", err)
	return &anneal.GenerationError{AgentID: profile.ID, Err: err}
}

// SamplingTemperature maps an engine temperature (0-100) and a creativity
// bias (0-1) onto the configured sampling range. Hot, creative agents sample
// near MaxSampling; cold, conservative ones near MinSampling.
func (g *Generator) SamplingTemperature(temperature, creativityBias float64) float64 {
	heat := clampUnit(temperature / 100)
	weight := clampUnit(0.7*heat + 0.3*clampUnit(creativityBias))
	return g.config.MinSampling + (g.config.MaxSampling-g.config.MinSampling)*weight
}

var categoryPersonas = map[models.AgentCategory]string{
	models.CategoryResearcher: "You are a meticulous researcher. Gather the relevant facts, cite what they rest on and summarize the findings.",
	models.CategoryCoder:      "You are a senior software engineer. Answer with working code and a short explanation of how it behaves.",
	models.CategoryAnalyst:    "You are a data analyst. Break the problem down, quantify where possible and state clear conclusions.",
	models.CategoryWriter:     "You are a professional writer. Produce clear, well-structured prose for the intended reader.",
}

// SystemPrompt describes the agent to the model
func SystemPrompt(profile *models.AgentProfile) string {
	var b strings.Builder

	persona, ok := categoryPersonas[profile.Category]
	if !ok {
		persona = "You are a capable assistant."
	}
	b.WriteString(persona)

	if profile.Goal != "" {
		b.WriteString("\nYour standing goal: ")
		b.WriteString(profile.Goal)
	}
	if profile.BestStrategy != "" && profile.BestStrategy != models.DefaultStrategy {
		fmt.Fprintf(&b, "\nA %s approach has worked best for you so far.", profile.BestStrategy)
	}
	b.WriteString("\nUse Markdown headings and lists where they help.")
	return b.String()
}

// TaskPrompt frames task for one draft. Hot drafts are pushed to explore,
// cold ones to refine.
func TaskPrompt(task string, temperature float64) string {
	var hint string
	switch {
	case temperature >= 50:
		hint = "Explore an unconventional angle; breadth matters more than polish."
	case temperature >= 10:
		hint = "Balance new ideas with a solid, complete answer."
	default:
		hint = "Refine: produce the most precise and complete answer you can."
	}
	return fmt.Sprintf("Task: %s\n\n%s", task, hint)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

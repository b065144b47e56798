// Package anneal implements the self-annealing task optimization loop.
//
// An Engine repeatedly asks a CandidateGenerator for a draft, scores it with
// an Evaluator, accepts or rejects it with the Metropolis criterion and cools
// its exploration temperature until it is cold or out of iterations.
package anneal

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/quantumflow/annealflow/internal/models"
)

// CandidateGenerator produces a candidate solution for a task
type CandidateGenerator interface {
	// Generate returns candidate text. temperature is the engine's current
	// exploration temperature on the 0-100 scale.
	Generate(ctx context.Context, task string, profile *models.AgentProfile, temperature float64) (string, error)
}

// GenerationError reports a failed candidate generation
type GenerationError struct {
	AgentID   string
	Iteration int
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for agent %s (iteration %d): %v", e.AgentID, e.Iteration, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Learner consumes the outcome of a finished execution
type Learner interface {
	RecordLearning(profile *models.AgentProfile, task string, quality float64, success bool)
}

// Observer receives progress from a running execution. Calls happen
// synchronously on the executing goroutine.
type Observer interface {
	OnState(state models.AnnealingState)
	OnLog(message string, kind models.LogKind)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State func(models.AnnealingState)
	Log   func(string, models.LogKind)
}

func (o ObserverFuncs) OnState(state models.AnnealingState) {
	if o.State != nil {
		o.State(state)
	}
}

func (o ObserverFuncs) OnLog(message string, kind models.LogKind) {
	if o.Log != nil {
		o.Log(message, kind)
	}
}

type nopObserver struct{}

func (nopObserver) OnState(models.AnnealingState)  {}
func (nopObserver) OnLog(string, models.LogKind) {}

// Random is the source of uniform draws in [0, 1)
type Random interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// DefaultRandom returns the goroutine-safe process-wide random source
func DefaultRandom() Random { return globalRandom{} }

// NewSeededRandom returns a deterministic source. It is not safe for
// concurrent use.
func NewSeededRandom(seed uint64) Random {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Recorder receives per-iteration and per-run measurements
type Recorder interface {
	ObserveIteration(category models.AgentCategory, temperature float64, accepted bool)
	ObserveGenerationFailure(category models.AgentCategory)
	ObserveRun(category models.AgentCategory, result *models.TaskResult)
}

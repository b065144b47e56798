package models

import "time"

// AgentCategory defines the specialization of an optimizing agent
type AgentCategory string

const (
	CategoryResearcher AgentCategory = "researcher"
	CategoryCoder      AgentCategory = "coder"
	CategoryAnalyst    AgentCategory = "analyst"
	CategoryWriter     AgentCategory = "writer"
)

// Categories lists every valid agent category
var Categories = []AgentCategory{CategoryResearcher, CategoryCoder, CategoryAnalyst, CategoryWriter}

// Valid reports whether c is one of the known categories
func (c AgentCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// AgentProfile holds the identity, tunables and accumulated history of one agent
type AgentProfile struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Category         AgentCategory `json:"category"` // Immutable after creation
	Goal             string        `json:"goal"`
	TemperatureScale float64       `json:"temperature_scale"` // (0, 1]
	CreativityBias   float64       `json:"creativity_bias"`   // [0, 1]
	MaxIterations    int           `json:"max_iterations"`
	LearningRate     float64       `json:"learning_rate"` // Reserved, [0, 1]
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`

	State           AnnealingState            `json:"state"`
	TaskHistory     []TaskResult              `json:"task_history"`
	LearningHistory []LearningEntry           `json:"learning_history"`
	Strategies      map[string]*StrategyStats `json:"strategies"`
	StrategyOrder   []string                  `json:"strategy_order"` // First-seen order of strategy labels
	BestStrategy    string                    `json:"best_strategy"`
	Metrics         PerformanceMetrics        `json:"metrics"`
}

// MinTemperatureScale replaces non-positive temperature scales
const MinTemperatureScale = 0.01

// Clamp forces the numeric tunables into their documented ranges
func (p *AgentProfile) Clamp() {
	if p.TemperatureScale <= 0 {
		p.TemperatureScale = MinTemperatureScale
	} else if p.TemperatureScale > 1 {
		p.TemperatureScale = 1
	}
	p.CreativityBias = clampUnit(p.CreativityBias)
	p.LearningRate = clampUnit(p.LearningRate)
	if p.MaxIterations < 0 {
		p.MaxIterations = 0
	}
}

// Clone returns a deep copy of p. Histories and strategy stats are not
// shared with the original.
func (p *AgentProfile) Clone() *AgentProfile {
	c := *p
	if p.TaskHistory != nil {
		c.TaskHistory = make([]TaskResult, len(p.TaskHistory))
		for i, r := range p.TaskHistory {
			r.Improvements = append([]string(nil), r.Improvements...)
			c.TaskHistory[i] = r
		}
	}
	c.LearningHistory = append([]LearningEntry(nil), p.LearningHistory...)
	c.StrategyOrder = append([]string(nil), p.StrategyOrder...)
	if p.Strategies != nil {
		c.Strategies = make(map[string]*StrategyStats, len(p.Strategies))
		for k, v := range p.Strategies {
			stats := *v
			c.Strategies[k] = &stats
		}
	}
	return &c
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

// AnnealingState is the live (or last) state of one task execution
type AnnealingState struct {
	Temperature  float64 `json:"temperature"`
	Energy       float64 `json:"energy"` // 1 - quality of the latest candidate
	BestEnergy   float64 `json:"best_energy"`
	Iterations   int     `json:"iterations"`
	Improvements int     `json:"improvements"`
	Acceptances  int     `json:"acceptances"`
	Convergence  float64 `json:"convergence"` // 1 - BestEnergy
	Running      bool    `json:"running"`
}

// TaskResult is the durable record of one completed execution
type TaskResult struct {
	ID           string        `json:"id"`
	AgentID      string        `json:"agent_id"`
	Task         string        `json:"task"`
	Result       string        `json:"result"`
	Success      bool          `json:"success"`
	Quality      float64       `json:"quality"`
	Duration     time.Duration `json:"duration"`
	Iterations   int           `json:"iterations"`
	Improvements []string      `json:"improvements"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Outcome classifies how a task went for learning purposes
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// LearningEntry is one lesson extracted from a completed task
type LearningEntry struct {
	AgentID      string    `json:"agent_id"`
	Timestamp    time.Time `json:"timestamp"`
	TaskCategory string    `json:"task_category"`
	Approach     string    `json:"approach"`
	Outcome      Outcome   `json:"outcome"`
	Lesson       string    `json:"lesson"`
	QualityDelta float64   `json:"quality_delta"`
}

// DefaultStrategy is the strategy label every profile starts with
const DefaultStrategy = "default"

// StrategyStats aggregates outcomes for one approach label
type StrategyStats struct {
	SuccessRate float64 `json:"success_rate"`
	Uses        int     `json:"uses"`
}

// Trend classifies the recent direction of quality scores
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// PerformanceMetrics is derived from a profile's task history
type PerformanceMetrics struct {
	TotalTasks       int           `json:"total_tasks"`
	SuccessfulTasks  int           `json:"successful_tasks"`
	AverageQuality   float64       `json:"average_quality"`
	AverageDuration  time.Duration `json:"average_duration"`
	LearningProgress float64       `json:"learning_progress"`
	BestStrategy     string        `json:"best_strategy"`
	Trend            Trend         `json:"trend"`
}

// LogKind tags progress log messages emitted during a run
type LogKind string

const (
	LogInfo        LogKind = "info"
	LogImprovement LogKind = "improvement"
	LogError       LogKind = "error"
)

// Package learning keeps the per-agent strategy statistics, lesson history
// and performance metrics that let later runs start smarter.
package learning

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/quantumflow/annealflow/internal/models"
)

// partialThreshold is the quality at which an unsuccessful run still
// counts as a partial outcome
const partialThreshold = 0.4

// LearnerConfig bounds the learner's bookkeeping
type LearnerConfig struct {
	HistoryWindow   int `yaml:"history_window"`    // Maximum learning entries kept per profile
	MinStrategyUses int `yaml:"min_strategy_uses"` // Uses before an approach can become the best strategy
}

// DefaultLearnerConfig returns the default learner bounds
func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		HistoryWindow:   100,
		MinStrategyUses: 2,
	}
}

// StrategyLearner updates a profile's strategy statistics and learning
// history after each task. It mutates the profile in place and relies on
// the caller's single-writer discipline per profile.
type StrategyLearner struct {
	config LearnerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewStrategyLearner creates a learner. A nil logger uses slog.Default().
func NewStrategyLearner(config LearnerConfig, logger *slog.Logger) *StrategyLearner {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = DefaultLearnerConfig().HistoryWindow
	}
	if config.MinStrategyUses <= 0 {
		config.MinStrategyUses = DefaultLearnerConfig().MinStrategyUses
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StrategyLearner{config: config, logger: logger, now: time.Now}
}

// RecordLearning folds the outcome of one task into profile
func (l *StrategyLearner) RecordLearning(profile *models.AgentProfile, task string, quality float64, success bool) {
	EnsureStrategies(profile)

	category := ClassifyTask(task)
	approach := IdentifyApproach(task)

	stats := UpdateStrategy(profile, approach, success)
	profile.BestStrategy = BestStrategy(profile, l.config.MinStrategyUses)
	profile.Metrics.BestStrategy = profile.BestStrategy

	outcome := outcomeFor(quality, success)
	entry := models.LearningEntry{
		AgentID:      profile.ID,
		Timestamp:    l.now(),
		TaskCategory: category,
		Approach:     approach,
		Outcome:      outcome,
		Lesson:       lessonFor(category, approach, outcome, quality, stats),
		QualityDelta: quality - profile.Metrics.AverageQuality,
	}

	profile.LearningHistory = append(profile.LearningHistory, entry)
	if over := len(profile.LearningHistory) - l.config.HistoryWindow; over > 0 {
		profile.LearningHistory = append([]models.LearningEntry(nil), profile.LearningHistory[over:]...)
	}

	l.logger.Debug("learning: recorded lesson",
		"agent_id", profile.ID,
		"task_category", category,
		"approach", approach,
		"outcome", outcome,
		"success_rate", stats.SuccessRate,
		"best_strategy", profile.BestStrategy,
	)
}

// EnsureStrategies initializes the strategy map with the default entry
func EnsureStrategies(profile *models.AgentProfile) {
	if profile.Strategies == nil {
		profile.Strategies = make(map[string]*models.StrategyStats)
	}
	if _, ok := profile.Strategies[models.DefaultStrategy]; !ok {
		profile.Strategies[models.DefaultStrategy] = &models.StrategyStats{}
		profile.StrategyOrder = append([]string{models.DefaultStrategy}, profile.StrategyOrder...)
	}
	if profile.BestStrategy == "" {
		profile.BestStrategy = models.DefaultStrategy
	}
}

// UpdateStrategy applies the incremental mean
// rate' = (rate*(n-1) + outcome) / n, where n counts this use
func UpdateStrategy(profile *models.AgentProfile, approach string, success bool) *models.StrategyStats {
	stats, ok := profile.Strategies[approach]
	if !ok {
		stats = &models.StrategyStats{}
		profile.Strategies[approach] = stats
		profile.StrategyOrder = append(profile.StrategyOrder, approach)
	}

	outcome := 0.0
	if success {
		outcome = 1
	}
	stats.Uses++
	n := float64(stats.Uses)
	stats.SuccessRate = (stats.SuccessRate*(n-1) + outcome) / n
	return stats
}

// BestStrategy returns the approach with the highest success rate among
// those used at least minUses times. Earlier-seen approaches win ties;
// with no qualifying approach the default strategy is returned.
func BestStrategy(profile *models.AgentProfile, minUses int) string {
	best := models.DefaultStrategy
	bestRate := -1.0
	for _, label := range profile.StrategyOrder {
		stats, ok := profile.Strategies[label]
		if !ok || stats.Uses < minUses {
			continue
		}
		if stats.SuccessRate > bestRate {
			best = label
			bestRate = stats.SuccessRate
		}
	}
	return best
}

func outcomeFor(quality float64, success bool) models.Outcome {
	switch {
	case success:
		return models.OutcomeSuccess
	case quality >= partialThreshold:
		return models.OutcomePartial
	default:
		return models.OutcomeFailure
	}
}

func lessonFor(category, approach string, outcome models.Outcome, quality float64, stats *models.StrategyStats) string {
	switch outcome {
	case models.OutcomeSuccess:
		return fmt.Sprintf("%s approach worked for %s task (quality %.2f, success rate %.0f%% over %d uses)",
			approach, category, quality, stats.SuccessRate*100, stats.Uses)
	case models.OutcomePartial:
		return fmt.Sprintf("%s approach was partially effective for %s task (quality %.2f)", approach, category, quality)
	default:
		return fmt.Sprintf("%s approach failed for %s task (quality %.2f); try another approach", approach, category, quality)
	}
}

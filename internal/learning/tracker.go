package learning

import (
	"math"
	"time"

	"github.com/quantumflow/annealflow/internal/models"
)

// trendThreshold is the mean-quality gap that separates a trend from noise
const trendThreshold = 0.05

// TrackerConfig bounds the performance tracker
type TrackerConfig struct {
	TaskHistoryLimit int `yaml:"task_history_limit"` // Maximum task results kept per profile
	TrendWindow      int `yaml:"trend_window"`       // Results per window in the trend comparison
	ProgressTarget   int `yaml:"progress_target"`    // Task count at which learning progress reaches 1
}

// DefaultTrackerConfig returns the default tracker settings
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		TaskHistoryLimit: 50,
		TrendWindow:      5,
		ProgressTarget:   20,
	}
}

// Tracker derives PerformanceMetrics from task history
type Tracker struct {
	config TrackerConfig
}

// NewTracker creates a tracker, replacing non-positive settings with defaults
func NewTracker(config TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if config.TaskHistoryLimit <= 0 {
		config.TaskHistoryLimit = def.TaskHistoryLimit
	}
	if config.TrendWindow <= 0 {
		config.TrendWindow = def.TrendWindow
	}
	if config.ProgressTarget <= 0 {
		config.ProgressTarget = def.ProgressTarget
	}
	return &Tracker{config: config}
}

// Record appends result to the profile's history, dropping the oldest
// results beyond the limit, and recomputes the profile's metrics
func (t *Tracker) Record(profile *models.AgentProfile, result *models.TaskResult) {
	profile.TaskHistory = append(profile.TaskHistory, *result)
	if over := len(profile.TaskHistory) - t.config.TaskHistoryLimit; over > 0 {
		profile.TaskHistory = append([]models.TaskResult(nil), profile.TaskHistory[over:]...)
	}
	profile.Metrics = t.Compute(profile.TaskHistory, profile.BestStrategy)
}

// Compute recomputes metrics from scratch over results
func (t *Tracker) Compute(results []models.TaskResult, bestStrategy string) models.PerformanceMetrics {
	if bestStrategy == "" {
		bestStrategy = models.DefaultStrategy
	}
	metrics := models.PerformanceMetrics{
		TotalTasks:   len(results),
		BestStrategy: bestStrategy,
		Trend:        models.TrendStable,
	}
	if len(results) == 0 {
		return metrics
	}

	var qualitySum float64
	var durationSum time.Duration
	for _, r := range results {
		if r.Success {
			metrics.SuccessfulTasks++
		}
		qualitySum += r.Quality
		durationSum += r.Duration
	}

	n := len(results)
	metrics.AverageQuality = qualitySum / float64(n)
	metrics.AverageDuration = durationSum / time.Duration(n)
	metrics.LearningProgress = math.Min(1, float64(n)/float64(t.config.ProgressTarget))
	metrics.Trend = t.Trend(results)
	return metrics
}

// Trend compares the mean quality of the latest window against the window
// before it. A window holding fewer than TrendWindow results counts as 0.
func (t *Tracker) Trend(results []models.TaskResult) models.Trend {
	w := t.config.TrendWindow
	n := len(results)

	recent := windowMean(results, n-w, n, w)
	older := windowMean(results, n-2*w, n-w, w)

	switch diff := recent - older; {
	case diff > trendThreshold:
		return models.TrendImproving
	case diff < -trendThreshold:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

func windowMean(results []models.TaskResult, from, to, size int) float64 {
	if from < 0 || to-from < size {
		return 0
	}
	var sum float64
	for _, r := range results[from:to] {
		sum += r.Quality
	}
	return sum / float64(size)
}

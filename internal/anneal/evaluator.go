package anneal

import (
	"strings"
	"unicode"

	"github.com/quantumflow/annealflow/internal/models"
)

const (
	baseScore          = 0.5
	structureBonus     = 0.05
	keywordBonus       = 0.03
	maxKeywordBonus    = 0.15
	maxCategoryBonus   = 0.15
	defaultNoiseAmount = 0.05
)

// categoryMarker is a group of alternative terms worth one bonus step
type categoryMarker struct {
	terms []string
	bonus float64
}

var categoryMarkers = map[models.AgentCategory][]categoryMarker{
	models.CategoryCoder: {
		{terms: []string{"function", "func ", "def ", "class "}, bonus: 0.1},
		{terms: []string{"return"}, bonus: 0.05},
	},
	models.CategoryResearcher: {
		{terms: []string{"finding"}, bonus: 0.05},
		{terms: []string{"analysis"}, bonus: 0.05},
		{terms: []string{"source", "reference", "evidence"}, bonus: 0.05},
	},
	models.CategoryAnalyst: {
		{terms: []string{"metric"}, bonus: 0.05},
		{terms: []string{"insight"}, bonus: 0.05},
		{terms: []string{"trend", "data"}, bonus: 0.05},
	},
	models.CategoryWriter: {
		{terms: []string{"introduction"}, bonus: 0.05},
		{terms: []string{"conclusion"}, bonus: 0.05},
		{terms: []string{"\n\n"}, bonus: 0.05},
	},
}

// Evaluator scores candidate text against the task it answers
type Evaluator struct {
	random Random
	noise  float64
}

// NewEvaluator creates an evaluator. noise is the half-width of the uniform
// perturbation added to every score; a nil random source uses DefaultRandom.
func NewEvaluator(random Random, noise float64) *Evaluator {
	if random == nil {
		random = DefaultRandom()
	}
	if noise < 0 {
		noise = 0
	}
	return &Evaluator{random: random, noise: noise}
}

// Score returns the heuristic quality of candidate in [0, 1]
func (e *Evaluator) Score(candidate, task string, category models.AgentCategory) float64 {
	score := baseScore

	switch n := len(candidate); {
	case n > 2000:
		score += 0.25
	case n > 500:
		score += 0.2
	case n > 200:
		score += 0.1
	}

	score += structureScore(candidate)

	lower := strings.ToLower(candidate)
	score += relevanceScore(lower, task)
	score += categoryScore(lower, category)

	if e.noise > 0 {
		score += (e.random.Float64()*2 - 1) * e.noise
	}

	return clamp01(score)
}

func structureScore(candidate string) float64 {
	var heading, list bool
	for _, line := range strings.Split(candidate, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading = true
		}
		if isListItem(trimmed) {
			list = true
		}
	}

	score := 0.0
	if heading {
		score += structureBonus
	}
	if list {
		score += structureBonus
	}
	if strings.Contains(candidate, "```") {
		score += structureBonus
	}
	return score
}

func isListItem(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return true
	}
	// Numbered items: "1. ", "12. "
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && strings.HasPrefix(line[i:], ". ")
}

func relevanceScore(lowerCandidate, task string) float64 {
	score := 0.0
	for _, kw := range TaskKeywords(task) {
		if strings.Contains(lowerCandidate, kw) {
			score += keywordBonus
			if score >= maxKeywordBonus {
				return maxKeywordBonus
			}
		}
	}
	return score
}

func categoryScore(lowerCandidate string, category models.AgentCategory) float64 {
	score := 0.0
	for _, marker := range categoryMarkers[category] {
		for _, term := range marker.terms {
			if strings.Contains(lowerCandidate, term) {
				score += marker.bonus
				break
			}
		}
	}
	if score > maxCategoryBonus {
		return maxCategoryBonus
	}
	return score
}

// TaskKeywords returns the distinct lower-cased words of task longer than
// three characters, in order of appearance
func TaskKeywords(task string) []string {
	fields := strings.FieldsFunc(strings.ToLower(task), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
	}
	return keywords
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package learning

import "strings"

// Task categories used for learning bookkeeping
const (
	TaskCoding   = "coding"
	TaskResearch = "research"
	TaskAnalysis = "analysis"
	TaskWriting  = "writing"
	TaskGeneral  = "general"
)

// Approach labels
const (
	ApproachDetailed  = "detailed"
	ApproachConcise   = "concise"
	ApproachCreative  = "creative"
	ApproachTechnical = "technical"
	ApproachBalanced  = "balanced"
)

type keywordRule struct {
	label    string
	keywords []string
}

// Rules are checked in order; the first rule with a matching keyword wins.
var taskRules = []keywordRule{
	{TaskCoding, []string{"code", "function", "program", "implement", "debug", "bug", "script", "api", "refactor", "compile"}},
	{TaskResearch, []string{"research", "investigate", "study", "literature", "explore", "survey", "discover"}},
	{TaskAnalysis, []string{"analyze", "analyse", "analysis", "data", "metric", "compare", "evaluate", "trend", "statistic"}},
	{TaskWriting, []string{"write", "essay", "article", "blog", "story", "draft", "document", "summarize"}},
}

var approachRules = []keywordRule{
	{ApproachDetailed, []string{"detailed", "comprehensive", "thorough", "in-depth", "in depth", "explain", "step by step"}},
	{ApproachConcise, []string{"brief", "concise", "short", "summary", "quick", "tl;dr"}},
	{ApproachCreative, []string{"creative", "innovative", "novel", "imagine", "story", "brainstorm"}},
	{ApproachTechnical, []string{"technical", "implement", "code", "function", "algorithm", "architecture", "api"}},
}

// ClassifyTask maps task text to one of the fixed task categories
func ClassifyTask(task string) string {
	return matchRules(taskRules, task, TaskGeneral)
}

// IdentifyApproach maps task text to an approach label, independently of
// ClassifyTask
func IdentifyApproach(task string) string {
	return matchRules(approachRules, task, ApproachBalanced)
}

func matchRules(rules []keywordRule, text, fallback string) string {
	text = strings.ToLower(text)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if containsWord(text, kw) {
				return rule.label
			}
		}
	}
	return fallback
}

// containsWord reports whether kw appears in text starting at a word
// boundary, so "api" does not match inside "rapid"
func containsWord(text, kw string) bool {
	for i := 0; i+len(kw) <= len(text); {
		idx := strings.Index(text[i:], kw)
		if idx < 0 {
			return false
		}
		pos := i + idx
		if pos == 0 || !isWordByte(text[pos-1]) {
			return true
		}
		i = pos + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

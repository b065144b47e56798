package anneal

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/quantumflow/annealflow/internal/models"
)

var fallbackTemplates = map[models.AgentCategory]string{
	models.CategoryCoder: "# Solution: %s\n\n" +
		"```\n// function placeholder\n```\n\n" +
		"- Define the inputs and outputs\n" +
		"- Implement the core function\n" +
		"- Add tests for the edge cases\n",
	models.CategoryResearcher: "# Research Notes: %s\n\n" +
		"## Findings\n" +
		"- Gather primary sources\n" +
		"- Summarize each finding with its evidence\n\n" +
		"## Analysis\nCompare the sources and note open questions.\n",
	models.CategoryAnalyst: "# Analysis: %s\n\n" +
		"## Metrics\n" +
		"- Identify the key metric\n" +
		"- Collect baseline data\n\n" +
		"## Insights\nDescribe the trend and what drives it.\n",
	models.CategoryWriter: "# %s\n\n" +
		"## Introduction\nState the topic and why it matters.\n\n" +
		"## Body\n- Main point one\n- Main point two\n\n" +
		"## Conclusion\nSummarize the argument.\n",
}

// FallbackCandidate returns the deterministic template used when the
// generator fails. It has no network dependency.
func FallbackCandidate(category models.AgentCategory, task string) string {
	tmpl, ok := fallbackTemplates[category]
	if !ok {
		tmpl = "# Task: %s\n\n- Break the task into steps\n- Work through each step\n"
	}
	return fmt.Sprintf(tmpl, task)
}

// TemplateGenerator is an offline CandidateGenerator. It elaborates the
// category template more as the temperature drops, so cooler iterations
// produce longer, more task-specific drafts.
type TemplateGenerator struct{}

// Generate implements CandidateGenerator
func (TemplateGenerator) Generate(ctx context.Context, task string, profile *models.AgentProfile, temperature float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(FallbackCandidate(profile.Category, task))

	keywords := TaskKeywords(task)
	depth := int((100 - math.Min(temperature, 100)) / 10)
	if depth > 0 {
		b.WriteString("\n## Details\n")
	}
	for i := 0; i < depth; i++ {
		kw := "the task"
		if len(keywords) > 0 {
			kw = keywords[i%len(keywords)]
		}
		fmt.Fprintf(&b, "%d. Work out how %s affects step %d and record the result.\n", i+1, kw, i+1)
	}
	if profile.Goal != "" {
		fmt.Fprintf(&b, "\nGoal: %s\n", profile.Goal)
	}
	return b.String(), nil
}

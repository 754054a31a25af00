package evaluator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/basket/genebank/internal/gene"
)

const nameTargetLen = 15

// inferCategory picks a category for the candidate gene. An explicit
// task category always wins; otherwise the task type and description
// vote via keyword lists, defaulting to coding.
func (e *Evaluator) inferCategory(task *gene.Task) gene.Category {
	if task.Category != "" {
		if c, ok := gene.ParseCategory(string(task.Category)); ok {
			return c
		}
	}
	text := strings.ToLower(task.Type + " " + task.Description)
	best := gene.CategoryCoding
	bestHits := 0
	for _, category := range gene.Categories {
		hits := 0
		for _, term := range e.cfg.CategoryTerms[string(category)] {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits > bestHits {
			best = category
			bestHits = hits
		}
	}
	return best
}

// extractName picks a short human label from the solution's explicit
// fields, falling back to the task description.
func extractName(task *gene.Task, sol *gene.Solution) string {
	for _, candidate := range []string{sol.GeneName, sol.StrategyDescription, sol.Approach, sol.Summary, task.Description} {
		if strings.TrimSpace(candidate) != "" {
			return truncateAtBoundary(strings.TrimSpace(candidate), nameTargetLen)
		}
	}
	return "unnamed strategy"
}

// extractSummary picks the one-line description of the method.
func extractSummary(task *gene.Task, sol *gene.Solution) string {
	for _, candidate := range []string{sol.StrategyDescription, sol.Approach, sol.Summary, sol.Pattern, sol.Principles} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return strings.TrimSpace(task.Description)
}

// truncateAtBoundary shortens s to roughly max runes, preferring to cut
// at a sentence or clause boundary over mid-word.
func truncateAtBoundary(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	window := runes[:max]
	// Prefer the last clause boundary inside the window.
	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '.', ',', ';', ':', '!', '?':
			return strings.TrimSpace(string(window[:i]))
		}
	}
	// Otherwise break at the last space.
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return strings.TrimSpace(string(window[:i]))
		}
	}
	return string(window)
}

// extractSteps returns the ordered step list. Explicit steps/actions win;
// otherwise important-flagged log entries are promoted. Entries without a
// leading ordinal are numbered.
func extractSteps(sol *gene.Solution) []string {
	steps := sol.DeclaredSteps()
	if len(steps) == 0 {
		for _, entry := range sol.Logs {
			if entry.Important && strings.TrimSpace(entry.Text) != "" {
				steps = append(steps, strings.TrimSpace(entry.Text))
			}
		}
	}
	out := make([]string, 0, len(steps))
	for i, step := range steps {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		if !startsWithOrdinal(step) {
			step = fmt.Sprintf("%d. %s", i+1, step)
		}
		out = append(out, step)
	}
	return out
}

func startsWithOrdinal(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return false
	}
	return i < len(s) && (s[i] == '.' || s[i] == ')' || s[i] == ':')
}

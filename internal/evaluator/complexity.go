package evaluator

import (
	"time"

	"github.com/basket/genebank/internal/gene"
)

// Complexity buckets.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// estimateComplexity buckets a solution's effort from step count, tool
// variety, code volume, and elapsed time. Thresholds are fixed; the
// weighted total maps >=4 to high and >=1 to medium.
func estimateComplexity(sol *gene.Solution) string {
	score := 0

	steps := len(sol.DeclaredSteps())
	switch {
	case steps > 5:
		score += 2
	case steps > 2:
		score++
	}

	if distinctTools(sol.Tools) > 3 {
		score++
	}

	switch {
	case sol.CodeLines > 100:
		score += 2
	case sol.CodeLines > 20:
		score++
	}

	if sol.Duration > 30*time.Minute {
		score++
	}

	switch {
	case score >= 4:
		return ComplexityHigh
	case score >= 1:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

func distinctTools(tools []string) int {
	seen := map[string]bool{}
	for _, t := range tools {
		seen[t] = true
	}
	return len(seen)
}

// Package evaluator scores a completed (task, solution) pair to decide
// whether the solution is worth keeping as a reusable gene. Evaluation
// is pure: no I/O, deterministic for a given input and config.
package evaluator

import (
	"fmt"
	"regexp"

	"github.com/basket/genebank/internal/gene"
)

// Details carries the intermediate signals behind a score, plus the
// inferred gene fields the recorder builds a candidate from.
type Details struct {
	Complexity string          `json:"complexity"`
	StepCount  int             `json:"step_count"`
	ToolCount  int             `json:"tool_count"`
	Category   gene.Category   `json:"category"`
	Name       string          `json:"name"`
	Summary    string          `json:"summary"`
	Steps      []string        `json:"steps,omitempty"`
	Signals    map[string]bool `json:"signals,omitempty"`
}

// Evaluation is the outcome of scoring one solution.
type Evaluation struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
	Details Details  `json:"details"`
}

// Evaluator applies the admission scoring policy.
type Evaluator struct {
	cfg Config
}

// New creates an evaluator. Empty config fields fall back to defaults.
func New(cfg Config) *Evaluator {
	def := DefaultConfig()
	if len(cfg.TrivialCommands) == 0 {
		cfg.TrivialCommands = def.TrivialCommands
	}
	if len(cfg.EnvironmentPatterns) == 0 {
		cfg.EnvironmentPatterns = def.EnvironmentPatterns
	}
	if len(cfg.CategoryTerms) == 0 {
		cfg.CategoryTerms = def.CategoryTerms
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate produces the admission score for a solution, clamped to
// [0,5], along with the reasons and the extracted gene fields.
func (e *Evaluator) Evaluate(task *gene.Task, sol *gene.Solution) Evaluation {
	var score float64
	var reasons []string
	signals := map[string]bool{}

	if sol.Success {
		score += 2
		reasons = append(reasons, "solved the stated problem (+2)")
		signals["success"] = true
	}

	steps := sol.DeclaredSteps()
	reusable := (len(steps) > 1 || sol.HasMethodField()) && !sol.OneTime
	if reusable {
		score++
		reasons = append(reasons, "exposes a reusable method (+1)")
		signals["reusable"] = true
	}

	if e.environmentIndependent(sol) {
		score++
		reasons = append(reasons, "environment-independent (+1)")
		signals["portable"] = true
	}

	if sol.Approved {
		score++
		reasons = append(reasons, "explicitly approved by the user (+1)")
		signals["approved"] = true
	}

	complexity := estimateComplexity(sol)
	if complexity == ComplexityMedium {
		score += 0.5
		reasons = append(reasons, "medium complexity (+0.5)")
	}

	if len(steps) >= 2 {
		score += 0.5
		reasons = append(reasons, "multi-step solution (+0.5)")
	}

	if e.commonPattern(sol) {
		score--
		reasons = append(reasons, "common/boilerplate pattern (-1)")
		signals["common"] = true
	}

	score = gene.ClampScore(score)
	reasons = append(reasons, fmt.Sprintf("final score %.1f", score))

	return Evaluation{
		Score:   score,
		Reasons: reasons,
		Details: Details{
			Complexity: complexity,
			StepCount:  len(steps),
			ToolCount:  distinctTools(sol.Tools),
			Category:   e.inferCategory(task),
			Name:       extractName(task, sol),
			Summary:    extractSummary(task, sol),
			Steps:      extractSteps(sol),
			Signals:    signals,
		},
	}
}

// environmentIndependent checks the declared paths and credentials for
// environment-specific artifacts. No declared fields means nothing ties
// the solution to one machine.
func (e *Evaluator) environmentIndependent(sol *gene.Solution) bool {
	fields := make([]string, 0, len(sol.Paths)+len(sol.Credentials))
	fields = append(fields, sol.Paths...)
	fields = append(fields, sol.Credentials...)
	for _, field := range fields {
		// "user=current" means "whoever runs this", not a pinned identity.
		field = currentUserRef.ReplaceAllString(field, "")
		for _, pat := range e.cfg.EnvironmentPatterns {
			if pat.MatchString(field) {
				return false
			}
		}
	}
	return true
}

var currentUserRef = regexp.MustCompile(`(?i)\buser(name)?\s*[:=]\s*current\b`)

// commonPattern reports whether the solution is boilerplate: either
// explicitly flagged, or every declared command matches the trivial set.
func (e *Evaluator) commonPattern(sol *gene.Solution) bool {
	if sol.Common {
		return true
	}
	if len(sol.Commands) == 0 {
		return false
	}
	for _, cmd := range sol.Commands {
		trivial := false
		for _, pat := range e.cfg.TrivialCommands {
			if pat.MatchString(cmd) {
				trivial = true
				break
			}
		}
		if !trivial {
			return false
		}
	}
	return true
}

package gene

import "time"

// Task describes the problem an agent was asked to solve. All fields are
// optional except Description; the evaluator consults whatever is present.
type Task struct {
	ID          string   `json:"id,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description"`
	Category    Category `json:"category,omitempty"` // explicit category wins over inference
}

// LogEntry is one line of an agent's execution log. Entries marked
// important are candidates for step extraction when a solution declares
// no explicit steps.
type LogEntry struct {
	Text      string `json:"text"`
	Important bool   `json:"important,omitempty"`
}

// Solution is the loosely structured outcome of a completed task. Every
// field is optional; absent fields simply contribute nothing to scoring.
type Solution struct {
	Success  bool `json:"success"`
	Approved bool `json:"approved,omitempty"` // explicit user approval
	OneTime  bool `json:"one_time,omitempty"` // flagged disposable, defeats reusability
	Common   bool `json:"common,omitempty"`   // flagged common/basic, triggers the boilerplate penalty

	// Naming and summary hints, in preference order.
	GeneName string `json:"gene_name,omitempty"`
	Approach string `json:"approach,omitempty"`
	Summary  string `json:"summary,omitempty"`

	// Explicit method fields. Any non-empty one marks the solution as
	// exposing a reusable method.
	StrategyDescription string `json:"strategy_description,omitempty"`
	Pattern             string `json:"pattern,omitempty"`
	Principles          string `json:"principles,omitempty"`

	Steps   []string `json:"steps,omitempty"`
	Actions []string `json:"actions,omitempty"`

	// Environment signals.
	Commands    []string `json:"commands,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	Paths       []string `json:"paths,omitempty"`
	Credentials []string `json:"credentials,omitempty"`

	CodeLines int           `json:"code_lines,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`

	Logs []LogEntry `json:"logs,omitempty"`
}

// DeclaredSteps returns the explicit step list, preferring Steps over
// Actions.
func (s *Solution) DeclaredSteps() []string {
	if len(s.Steps) > 0 {
		return s.Steps
	}
	return s.Actions
}

// HasMethodField reports whether the solution carries any explicit
// strategy/approach/pattern/principles text.
func (s *Solution) HasMethodField() bool {
	return s.StrategyDescription != "" || s.Approach != "" || s.Pattern != "" || s.Principles != ""
}

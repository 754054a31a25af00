package evaluator

import "regexp"

// Config holds the heuristic lists the evaluator consults. The defaults
// are intentionally small and conservative; deployments can override
// them without code changes.
type Config struct {
	// TrivialCommands match boilerplate shell commands. A solution whose
	// declared commands all match here earns the common-pattern penalty.
	TrivialCommands []*regexp.Regexp

	// EnvironmentPatterns match environment-specific artifacts in a
	// solution's declared paths/credentials. Any hit forfeits the
	// environment-independence bonus.
	EnvironmentPatterns []*regexp.Regexp

	// CategoryTerms maps category names to the keywords that vote for
	// them during category inference.
	CategoryTerms map[string][]string
}

// DefaultConfig returns the stock heuristic lists.
func DefaultConfig() Config {
	return Config{
		TrivialCommands: []*regexp.Regexp{
			regexp.MustCompile(`^(ls|cd|pwd|cat|cp|mv|rm|mkdir|touch|echo)(\s|$)`),
			regexp.MustCompile(`^(npm|pnpm|yarn|pip|pip3|go|cargo|brew|apt|apt-get)\s+(install|add|get)\s+\S+$`),
			regexp.MustCompile(`^git\s+(add|commit|push|pull|status|clone|checkout|log)(\s|$)`),
		},
		EnvironmentPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^(/|[A-Za-z]:\\)`),                          // absolute path
			regexp.MustCompile(`\b(127\.0\.0\.1|0\.0\.0\.0|localhost)\b`),   // loopback
			regexp.MustCompile(`\b(10|192\.168|172\.(1[6-9]|2\d|3[01]))\.`), // private IP range
			regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key)\s*[:=]`),
			regexp.MustCompile(`(?i)\buser(name)?\s*[:=]\s*(?:\w+)`), // fixed user id; "current" is stripped before matching
		},
		CategoryTerms: map[string][]string{
			"debug":    {"debug", "error", "bug", "fix", "crash", "failure", "traceback", "exception", "troubleshoot"},
			"coding":   {"code", "implement", "refactor", "function", "api", "build", "compile", "library", "module"},
			"writing":  {"write", "draft", "document", "doc", "readme", "article", "summary", "translate"},
			"analysis": {"analyze", "analysis", "investigate", "profile", "benchmark", "measure", "compare", "review"},
			"planning": {"plan", "design", "roadmap", "schedule", "architecture", "scope", "estimate"},
			"tool":     {"tool", "script", "automation", "cli", "command", "pipeline", "workflow"},
		},
	}
}

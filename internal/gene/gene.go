// Package gene defines the strategy record model shared by the store,
// evaluator, recorder, injector, and sync engine.
package gene

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is the closed set of strategy categories.
type Category string

const (
	CategoryDebug    Category = "debug"
	CategoryCoding   Category = "coding"
	CategoryWriting  Category = "writing"
	CategoryAnalysis Category = "analysis"
	CategoryPlanning Category = "planning"
	CategoryTool     Category = "tool"
)

// Categories lists every valid category in presentation order.
var Categories = []Category{
	CategoryDebug,
	CategoryCoding,
	CategoryWriting,
	CategoryAnalysis,
	CategoryPlanning,
	CategoryTool,
}

// ParseCategory normalizes a category string. Returns false for unknown values.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Author identifies who created a gene.
type Author string

const (
	AuthorPlatform Author = "platform"
	AuthorUser     Author = "user"
)

// Scope is the visibility tier of a gene.
type Scope string

const (
	// ScopePrivate genes are visible only to the owning agent.
	ScopePrivate Scope = "private"
	// ScopeTeam genes are visible to every agent in the deployment.
	ScopeTeam Scope = "team"
	// ScopePlatform genes are distributed by the central platform and
	// visible to everyone.
	ScopePlatform Scope = "platform"
)

// Scopes lists every valid scope.
var Scopes = []Scope{ScopePrivate, ScopeTeam, ScopePlatform}

// ParseScope normalizes a scope string. Returns false for unknown values.
func ParseScope(s string) (Scope, bool) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Scopes {
		if sc == known {
			return sc, true
		}
	}
	return "", false
}

const (
	// MaxScore is the upper bound of the admission score range.
	MaxScore = 5.0
	// MaxTags caps metadata.tags.
	MaxTags = 10
	// MaxNameLen caps gene name length in runes. The wire schema
	// carries the same bound.
	MaxNameLen = 30
)

// Strategy is the reusable method a gene captures.
type Strategy struct {
	Description string   `json:"description" yaml:"description"`
	Steps       []string `json:"steps" yaml:"steps"`
	Tips        []string `json:"tips,omitempty" yaml:"tips,omitempty"`
}

// Metadata carries ownership, visibility, and scoring state.
type Metadata struct {
	Author            Author    `json:"author" yaml:"author"`
	UserID            string    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	AgentID           string    `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Scope             Scope     `json:"scope" yaml:"scope"`
	Roles             []string  `json:"roles,omitempty" yaml:"roles,omitempty"`
	Tags              []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"updated_at"`
	Score             float64   `json:"score" yaml:"score"`
	UsageCount        int       `json:"usage_count" yaml:"usage_count"`
	SimilarityWarning float64   `json:"similarity_warning,omitempty" yaml:"similarity_warning,omitempty"`
}

// Gene is a recorded, reusable problem-solving strategy.
type Gene struct {
	ID       string   `json:"id" yaml:"id"`
	Version  string   `json:"version" yaml:"version"`
	Name     string   `json:"name" yaml:"name"`
	Category Category `json:"category" yaml:"category"`
	Trigger  string   `json:"trigger" yaml:"trigger"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	// Capsules map tool names to environment-specific command hints.
	Capsules map[string]string `json:"capsules,omitempty" yaml:"capsules,omitempty"`
	Metadata Metadata          `json:"metadata" yaml:"metadata"`
}

// ClampScore bounds a score to [0, MaxScore].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// VisibleTo reports whether the gene is readable by the given agent.
// Platform-authored genes and team-scoped genes are visible to everyone;
// otherwise visibility requires an agent match.
func (g *Gene) VisibleTo(agentID string) bool {
	if g.Metadata.Author == AuthorPlatform {
		return true
	}
	if g.Metadata.Scope == ScopeTeam || g.Metadata.Scope == ScopePlatform {
		return true
	}
	return g.Metadata.AgentID == "" || g.Metadata.AgentID == agentID
}

// AppliesToRole reports whether the gene's role list admits the agent.
// An empty list and the wildcard "all" admit everyone.
func (g *Gene) AppliesToRole(agentID string) bool {
	if len(g.Metadata.Roles) == 0 {
		return true
	}
	for _, r := range g.Metadata.Roles {
		if r == "all" || r == agentID {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants a gene must satisfy before it
// is persisted or accepted from the network.
func (g *Gene) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("gene: missing id")
	}
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("gene %s: missing name", g.ID)
	}
	if n := utf8.RuneCountInString(g.Name); n > MaxNameLen {
		return fmt.Errorf("gene %s: name length %d exceeds limit of %d", g.ID, n, MaxNameLen)
	}
	if _, ok := ParseCategory(string(g.Category)); !ok {
		return fmt.Errorf("gene %s: invalid category %q", g.ID, g.Category)
	}
	switch g.Metadata.Scope {
	case ScopePrivate, ScopeTeam, ScopePlatform:
	default:
		return fmt.Errorf("gene %s: invalid scope %q", g.ID, g.Metadata.Scope)
	}
	if len(g.Metadata.Tags) > MaxTags {
		return fmt.Errorf("gene %s: %d tags exceeds limit of %d", g.ID, len(g.Metadata.Tags), MaxTags)
	}
	if g.Metadata.Score < 0 || g.Metadata.Score > MaxScore {
		return fmt.Errorf("gene %s: score %.2f outside [0,%g]", g.ID, g.Metadata.Score, MaxScore)
	}
	if g.Metadata.UsageCount < 0 {
		return fmt.Errorf("gene %s: negative usage count", g.ID)
	}
	return nil
}

// Touch bumps usage bookkeeping in place.
func (g *Gene) Touch(now time.Time) {
	g.Metadata.UsageCount++
	g.Metadata.UpdatedAt = now
}

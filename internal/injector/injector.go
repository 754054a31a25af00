// Package injector assembles stored genes into an agent's working
// context. Two read paths: category-grouped context assembly for prompt
// construction, and keyword relevance search against a task description.
// Both are read-only against the store except for the best-effort usage
// counter on search hits.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/store"
	"github.com/basket/genebank/internal/textmatch"
)

// Defaults for the retrieval options. Callers override per call.
const (
	DefaultMaxGenes   = 10
	DefaultMinScore   = 3.0
	DefaultMaxResults = 5
	DefaultThreshold  = 0.1
	compactMaxGenes   = 3
)

// PromptOptions shapes context assembly.
type PromptOptions struct {
	MaxGenes   int
	MinScore   float64
	Categories []gene.Category // empty means all
}

// SearchOptions shapes relevance search.
type SearchOptions struct {
	MaxResults int
	MinScore   float64
	Threshold  float64
}

// Injector reads genes from the store for context assembly.
type Injector struct {
	store     *store.Store
	stopwords map[string]bool
	bus       *bus.Bus // may be nil in tests and one-shot commands
	logger    *slog.Logger
}

// New creates an injector. A nil stopword set uses the default list.
func New(st *store.Store, stopwords map[string]bool, b *bus.Bus, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{store: st, stopwords: stopwords, bus: b, logger: logger}
}

func (in *Injector) publish(topic string, payload any) {
	if in.bus != nil {
		in.bus.Publish(topic, payload)
	}
}

// eligible loads every gene the agent may use at or above minScore,
// filtered by role applicability.
func (in *Injector) eligible(ctx context.Context, agentID string, minScore float64) ([]gene.Gene, error) {
	genes, err := in.store.List(ctx, store.Filter{AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("injector: list genes: %w", err)
	}
	out := genes[:0]
	for _, g := range genes {
		if g.Metadata.Score < minScore {
			continue
		}
		if !g.AppliesToRole(agentID) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

// BuildPrompt renders the agent's top genes as a category-grouped text
// block for prompt injection. Returns an empty string when nothing
// qualifies.
func (in *Injector) BuildPrompt(ctx context.Context, agentID string, opts PromptOptions) (string, error) {
	if opts.MaxGenes <= 0 {
		opts.MaxGenes = DefaultMaxGenes
	}
	if opts.MinScore == 0 {
		opts.MinScore = DefaultMinScore
	}

	genes, err := in.eligible(ctx, agentID, opts.MinScore)
	if err != nil {
		return "", err
	}
	if len(opts.Categories) > 0 {
		wanted := map[gene.Category]bool{}
		for _, c := range opts.Categories {
			wanted[c] = true
		}
		kept := genes[:0]
		for _, g := range genes {
			if wanted[g.Category] {
				kept = append(kept, g)
			}
		}
		genes = kept
	}

	sort.SliceStable(genes, func(i, j int) bool {
		return genes[i].Metadata.Score > genes[j].Metadata.Score
	})
	if len(genes) > opts.MaxGenes {
		genes = genes[:opts.MaxGenes]
	}
	if len(genes) == 0 {
		return "", nil
	}

	in.publish(bus.TopicPromptBuilt, bus.PromptBuiltEvent{AgentID: agentID, Genes: len(genes)})

	byCategory := map[gene.Category][]gene.Gene{}
	for _, g := range genes {
		byCategory[g.Category] = append(byCategory[g.Category], g)
	}

	var b strings.Builder
	b.WriteString("# Known strategies\n")
	for _, category := range gene.Categories {
		group := byCategory[category]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", category)
		for _, g := range group {
			fmt.Fprintf(&b, "\n### %s (score %.1f)\n", g.Name, g.Metadata.Score)
			if g.Trigger != "" {
				fmt.Fprintf(&b, "When: %s\n", g.Trigger)
			}
			if g.Strategy.Description != "" {
				fmt.Fprintf(&b, "Strategy: %s\n", g.Strategy.Description)
			}
			for _, step := range g.Strategy.Steps {
				fmt.Fprintf(&b, "  %s\n", step)
			}
			for _, tip := range g.Strategy.Tips {
				fmt.Fprintf(&b, "  Tip: %s\n", tip)
			}
		}
	}
	return b.String(), nil
}

// Relevance scores a gene against task keywords: trigger overlap counts
// double, strategy description overlap once, normalized by the combined
// token counts.
func (in *Injector) relevance(taskKeywords []string, taskSet map[string]bool, g *gene.Gene) float64 {
	triggerTokens := textmatch.Keywords(g.Trigger, in.stopwords)
	denom := len(taskKeywords) + len(triggerTokens)
	if denom == 0 {
		return 0
	}
	triggerHits := textmatch.Overlap(triggerTokens, taskSet)
	descHits := textmatch.Overlap(textmatch.Keywords(g.Strategy.Description, in.stopwords), taskSet)
	return float64(2*triggerHits+descHits) / float64(denom)
}

// FindRelevant returns the genes whose trigger and strategy text best
// match the task description. Usage counts on returned genes are bumped
// best-effort; a failed bump never fails the search.
func (in *Injector) FindRelevant(ctx context.Context, taskDescription, agentID string, opts SearchOptions) ([]gene.Gene, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MinScore == 0 {
		opts.MinScore = DefaultMinScore
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}

	taskKeywords := textmatch.Keywords(taskDescription, in.stopwords)
	if len(taskKeywords) == 0 {
		return nil, nil
	}
	taskSet := textmatch.TokenSet(taskKeywords)

	genes, err := in.eligible(ctx, agentID, opts.MinScore)
	if err != nil {
		return nil, err
	}

	type scored struct {
		g   gene.Gene
		rel float64
	}
	var hits []scored
	for _, g := range genes {
		rel := in.relevance(taskKeywords, taskSet, &g)
		if rel >= opts.Threshold {
			hits = append(hits, scored{g: g, rel: rel})
		}
	}

	// Relevance descending; close calls fall back to the admission score.
	sort.SliceStable(hits, func(i, j int) bool {
		if math.Abs(hits[i].rel-hits[j].rel) < 0.1 {
			return hits[i].g.Metadata.Score > hits[j].g.Metadata.Score
		}
		return hits[i].rel > hits[j].rel
	})
	if len(hits) > opts.MaxResults {
		hits = hits[:opts.MaxResults]
	}

	out := make([]gene.Gene, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.g)
		if err := in.store.IncrementUsage(ctx, h.g.ID); err != nil {
			in.logger.Debug("usage bump failed", "id", h.g.ID, "error", err)
		}
	}
	if len(out) > 0 {
		in.publish(bus.TopicRetrievalCompleted, bus.RetrievalEvent{AgentID: agentID, Hits: len(out)})
	}
	return out, nil
}

// CompactDigest renders a one-line-per-gene summary of the agent's top
// genes, for token-constrained contexts.
func (in *Injector) CompactDigest(ctx context.Context, agentID string, maxGenes int) (string, error) {
	if maxGenes <= 0 {
		maxGenes = compactMaxGenes
	}
	genes, err := in.eligible(ctx, agentID, DefaultMinScore)
	if err != nil {
		return "", err
	}
	sort.SliceStable(genes, func(i, j int) bool {
		return genes[i].Metadata.Score > genes[j].Metadata.Score
	})
	if len(genes) > maxGenes {
		genes = genes[:maxGenes]
	}
	if len(genes) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, g := range genes {
		fmt.Fprintf(&b, "[%s] %s: %s\n", g.Category, g.Name, g.Strategy.Description)
	}
	return b.String(), nil
}

// Stats is the read-only reporting view over the whole store.
type Stats struct {
	Total      int                   `json:"total"`
	ByCategory map[gene.Category]int `json:"by_category"`
	ByAuthor   map[gene.Author]int   `json:"by_author"`
	AvgScore   float64               `json:"avg_score"`
	Top        []gene.Gene           `json:"top"`
}

const statsTopN = 5

// GetStats aggregates counts by category and author, the average score,
// and the top genes by score. No side effects.
func (in *Injector) GetStats(ctx context.Context) (*Stats, error) {
	genes, err := in.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("injector: list genes: %w", err)
	}
	stats := &Stats{
		Total:      len(genes),
		ByCategory: map[gene.Category]int{},
		ByAuthor:   map[gene.Author]int{},
	}
	var sum float64
	for _, g := range genes {
		stats.ByCategory[g.Category]++
		stats.ByAuthor[g.Metadata.Author]++
		sum += g.Metadata.Score
	}
	if len(genes) > 0 {
		stats.AvgScore = sum / float64(len(genes))
	}
	sort.SliceStable(genes, func(i, j int) bool {
		return genes[i].Metadata.Score > genes[j].Metadata.Score
	})
	if len(genes) > statsTopN {
		genes = genes[:statsTopN]
	}
	stats.Top = genes
	return stats, nil
}

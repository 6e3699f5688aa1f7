package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ajitpratap0/graphnet/internal/llm"
	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/store"
)

const explainSystemPrompt = `You are explaining query results from a knowledge graph. Be clear and concise, mention entity names, and do not invent facts.`

// noMatchExplanation is the fixed answer for empty results. Zero matches is
// a valid outcome, never an error.
const noMatchExplanation = "No matching entities found."

// Executor runs query plans against the graph store and builds explanations
// citing source provenance.
type Executor struct {
	store      store.GraphStore
	generator  llm.Generator
	maxResults int
	logger     *slog.Logger
}

// NewExecutor creates an executor. generator may be nil; explanations then
// stay purely deterministic.
func NewExecutor(st store.GraphStore, gen llm.Generator, maxResults int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: st, generator: gen, maxResults: maxResults, logger: logger}
}

// Execute dispatches the plan, caps the result count, and attaches an
// explanation with the contributing provenance.
func (e *Executor) Execute(ctx context.Context, plan models.QueryPlan) (models.QueryResult, error) {
	var result models.QueryResult
	var err error

	switch plan.Intent {
	case models.IntentListByType:
		result.Entities, err = e.store.EntitiesByType(ctx, plan.Type)
	case models.IntentFindByName:
		result.Entities, err = e.store.EntitiesByName(ctx, plan.Name)
	case models.IntentRelationshipsOf:
		result, err = e.relationshipsOf(ctx, plan.Name)
	default:
		result.Entities, err = e.generalSearch(ctx, plan.Text)
	}
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("executing %s query: %w", plan.Intent, err)
	}

	if len(result.Entities) > e.maxResults {
		result.Entities = result.Entities[:e.maxResults]
	}
	if len(result.Relationships) > e.maxResults {
		result.Relationships = result.Relationships[:e.maxResults]
	}

	result.Provenance = collectProvenance(result)
	result.Explanation = e.explain(ctx, plan, result)
	return result, nil
}

// relationshipsOf finds the named entity and gathers its edges plus the
// entities on both ends.
func (e *Executor) relationshipsOf(ctx context.Context, name string) (models.QueryResult, error) {
	var result models.QueryResult

	matches, err := e.store.EntitiesByName(ctx, name)
	if err != nil {
		return result, err
	}
	if len(matches) == 0 {
		return result, nil
	}

	subject := matches[0]
	result.Entities = append(result.Entities, subject)

	rels, err := e.store.RelationshipsOf(ctx, subject.ID)
	if err != nil {
		return result, err
	}
	result.Relationships = rels

	seen := map[string]bool{subject.ID: true}
	for i := range rels {
		for _, id := range []string{rels[i].SourceID, rels[i].TargetID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			other, getErr := e.store.GetEntity(ctx, id)
			if getErr != nil {
				e.logger.Warn("relationship endpoint missing during query", "id", id, "error", getErr)
				continue
			}
			result.Entities = append(result.Entities, *other)
		}
	}
	return result, nil
}

// generalSearch scans entity names and descriptions for the question's
// significant words and ranks by hit count, name as tiebreaker.
func (e *Executor) generalSearch(ctx context.Context, text string) ([]models.CanonicalEntity, error) {
	export, err := e.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}

	words := significantWords(text)
	if len(words) == 0 {
		return nil, nil
	}

	type scored struct {
		entity models.CanonicalEntity
		hits   int
	}
	var matches []scored
	for i := range export.Entities {
		entity := export.Entities[i]
		haystack := strings.ToLower(entity.Name + " " + entity.Description)
		hits := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{entity: entity, hits: hits})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].hits != matches[j].hits {
			return matches[i].hits > matches[j].hits
		}
		return matches[i].entity.Name < matches[j].entity.Name
	})

	out := make([]models.CanonicalEntity, 0, len(matches))
	for i := range matches {
		out = append(out, matches[i].entity)
	}
	return out, nil
}

// stopwords are skipped by the general search scan.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"to": true, "is": true, "are": true, "was": true, "all": true, "me": true,
	"show": true, "list": true, "find": true, "what": true, "who": true,
	"which": true, "where": true, "how": true, "does": true, "do": true,
	"and": true, "or": true, "for": true, "about": true, "with": true,
}

func significantWords(text string) []string {
	var words []string
	for _, w := range strings.Fields(strings.Map(dropPunct, strings.ToLower(text))) {
		if len(w) > 1 && !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

// explain builds the natural language summary. The deterministic summary
// names matches and cites provenance; when a generator is available it may
// refine the wording, degrading to the deterministic text on any error.
func (e *Executor) explain(ctx context.Context, plan models.QueryPlan, result models.QueryResult) string {
	deterministic := buildExplanation(plan, result)
	if e.generator == nil || len(result.Entities) == 0 {
		return deterministic
	}

	prompt := fmt.Sprintf(`Question: %s

Findings from the knowledge graph:
%s

Rewrite the findings as a brief, natural answer to the question. Keep every entity name and source citation.`,
		plan.Text, deterministic)

	refined, err := e.generator.Generate(ctx, explainSystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("explanation refinement failed, using deterministic summary", "error", err)
		return deterministic
	}
	return strings.TrimSpace(refined)
}

// buildExplanation produces the deterministic summary with citations.
func buildExplanation(plan models.QueryPlan, result models.QueryResult) string {
	if len(result.Entities) == 0 && len(result.Relationships) == 0 {
		return noMatchExplanation
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching entities", len(result.Entities))
	if len(result.Relationships) > 0 {
		fmt.Fprintf(&b, " and %d relationships", len(result.Relationships))
	}
	b.WriteString(".")

	entityByID := make(map[string]string, len(result.Entities))
	for i := range result.Entities {
		entity := result.Entities[i]
		entityByID[entity.ID] = entity.Name
		fmt.Fprintf(&b, "\n- %s (%s)", entity.Name, entity.Type)
		if len(entity.Provenance) > 0 {
			fmt.Fprintf(&b, " [sources: %s]", strings.Join(entity.Provenance, ", "))
		}
	}
	for i := range result.Relationships {
		rel := result.Relationships[i]
		src := entityByID[rel.SourceID]
		dst := entityByID[rel.TargetID]
		if src == "" {
			src = rel.SourceID
		}
		if dst == "" {
			dst = rel.TargetID
		}
		fmt.Fprintf(&b, "\n- %s -[%s]-> %s", src, rel.Type, dst)
		if len(rel.Provenance) > 0 {
			fmt.Fprintf(&b, " [sources: %s]", strings.Join(rel.Provenance, ", "))
		}
	}
	return b.String()
}

// collectProvenance unions the provenance of everything in the result.
func collectProvenance(result models.QueryResult) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(chunks []string) {
		for _, c := range chunks {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	for i := range result.Entities {
		add(result.Entities[i].Provenance)
	}
	for i := range result.Relationships {
		add(result.Relationships[i].Provenance)
	}
	sort.Strings(out)
	return out
}

// Package query turns natural language questions into structured plans,
// executes them against the graph store, and explains the results with
// source provenance.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ajitpratap0/graphnet/internal/llm"
	"github.com/ajitpratap0/graphnet/internal/metrics"
	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/pkg/xmlutil"
)

const translateSystemPrompt = `You are a precise query classification system. Output only valid JSON.`

// translatePromptTemplate constrains the model to the query plan schema.
const translatePromptTemplate = `Classify the question below into a structured query against a knowledge graph.

Return a JSON object:
- intent: one of "list_by_type", "find_by_name", "relationships_of", "general_search"
  - list_by_type: list all entities of one type
  - find_by_name: look up one entity by name
  - relationships_of: list the relationships of one named entity
  - general_search: anything else, or when unsure
- type: for list_by_type, one of "Person", "Organization", "Location", "Concept", "Product", "Date", "Event", "Technology", "Other"; otherwise omit
- name: for find_by_name and relationships_of, the entity name; otherwise omit

Prefer general_search over guessing a narrow filter for ambiguous questions.

<question>%s</question>

Classify as JSON:`

// rawPlan mirrors the JSON shape returned by the model.
type rawPlan struct {
	Intent string `json:"intent"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

// Translator converts a free-form question into a QueryPlan. Translation
// never hard-fails: unparseable or unrecognized model output degrades to a
// general search carrying the raw question.
type Translator struct {
	generator llm.Generator
	logger    *slog.Logger
}

// NewTranslator creates a translator. generator may be nil, in which case
// only the heuristic classification runs.
func NewTranslator(gen llm.Generator, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{generator: gen, logger: logger}
}

// Translate produces a usable plan for any question.
func (t *Translator) Translate(ctx context.Context, question string) models.QueryPlan {
	fallback := models.QueryPlan{Intent: models.IntentGeneralSearch, Text: question}

	if t.generator == nil {
		return t.heuristicPlan(question)
	}

	prompt := fmt.Sprintf(translatePromptTemplate, xmlutil.Escape(question))
	text, err := t.generator.Generate(ctx, translateSystemPrompt, prompt)
	if err != nil {
		t.logger.Warn("query translation call failed, using heuristic fallback", "error", err)
		metrics.Inc(metrics.TranslateFallbacks)
		return t.heuristicPlan(question)
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		t.logger.Warn("query translation output unparseable, using general search", "error", err)
		metrics.Inc(metrics.TranslateFallbacks)
		return fallback
	}

	intent := models.QueryIntent(strings.ToLower(strings.TrimSpace(raw.Intent)))
	if !intent.IsValid() {
		t.logger.Warn("unrecognized query intent, using general search", "intent", raw.Intent)
		metrics.Inc(metrics.TranslateFallbacks)
		return fallback
	}

	plan := models.QueryPlan{Intent: intent, Text: question}
	switch intent {
	case models.IntentListByType:
		if strings.TrimSpace(raw.Type) == "" {
			return fallback
		}
		plan.Type = models.NormalizeEntityType(raw.Type)
	case models.IntentFindByName, models.IntentRelationshipsOf:
		if strings.TrimSpace(raw.Name) == "" {
			return fallback
		}
		plan.Name = strings.TrimSpace(raw.Name)
	case models.IntentGeneralSearch:
		// Raw question already carried in Text.
	}
	return plan
}

// typeKeywords maps question words to entity types for the heuristic path.
var typeKeywords = map[string]models.EntityType{
	"person":        models.EntityTypePerson,
	"people":        models.EntityTypePerson,
	"persons":       models.EntityTypePerson,
	"organization":  models.EntityTypeOrganization,
	"organizations": models.EntityTypeOrganization,
	"company":       models.EntityTypeOrganization,
	"companies":     models.EntityTypeOrganization,
	"location":      models.EntityTypeLocation,
	"locations":     models.EntityTypeLocation,
	"place":         models.EntityTypeLocation,
	"places":        models.EntityTypeLocation,
	"concept":       models.EntityTypeConcept,
	"concepts":      models.EntityTypeConcept,
	"product":       models.EntityTypeProduct,
	"products":      models.EntityTypeProduct,
	"date":          models.EntityTypeDate,
	"dates":         models.EntityTypeDate,
	"event":         models.EntityTypeEvent,
	"events":        models.EntityTypeEvent,
	"technology":    models.EntityTypeTechnology,
	"technologies":  models.EntityTypeTechnology,
}

// listMarkers suggest the question asks for an enumeration.
var listMarkers = []string{"all", "list", "show", "every"}

// heuristicPlan classifies without the model: a list marker plus a type
// keyword yields a typed listing; everything else is a general search.
func (t *Translator) heuristicPlan(question string) models.QueryPlan {
	lower := strings.ToLower(question)

	hasListMarker := false
	for _, marker := range listMarkers {
		if strings.Contains(lower, marker) {
			hasListMarker = true
			break
		}
	}
	if hasListMarker {
		for _, word := range strings.Fields(strings.Map(dropPunct, lower)) {
			if et, ok := typeKeywords[word]; ok {
				return models.QueryPlan{Intent: models.IntentListByType, Type: et, Text: question}
			}
		}
	}

	if strings.Contains(lower, "relationship") || strings.Contains(lower, "related to") || strings.Contains(lower, "connected") {
		if name := quotedName(question); name != "" {
			return models.QueryPlan{Intent: models.IntentRelationshipsOf, Name: name, Text: question}
		}
	}

	return models.QueryPlan{Intent: models.IntentGeneralSearch, Text: question}
}

func dropPunct(r rune) rune {
	switch r {
	case '?', '!', '.', ',', ';', ':':
		return ' '
	}
	return r
}

// quotedName returns the first single- or double-quoted span, if any.
func quotedName(s string) string {
	for _, q := range []string{`"`, `'`} {
		start := strings.Index(s, q)
		if start < 0 {
			continue
		}
		end := strings.Index(s[start+1:], q)
		if end < 0 {
			continue
		}
		if name := strings.TrimSpace(s[start+1 : start+1+end]); name != "" {
			return name
		}
	}
	return ""
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

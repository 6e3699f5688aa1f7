// Package extract turns text chunks into candidate entities and
// relationships using the text-generation capability. Model output is
// untrusted input: it is validated against the expected JSON shape, retried
// with a stricter instruction on mismatch, and degraded to an empty result
// when it stays unparseable.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ajitpratap0/graphnet/internal/llm"
	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/pkg/xmlutil"
)

// maxParseRetries is how many times a chunk is re-sent after an unparseable
// response before degrading to zero candidates.
const maxParseRetries = 2

const systemPrompt = `You are a precise entity and relationship extraction system. Output only valid JSON.`

// extractionPromptTemplate constrains the model to the extraction schema.
// Chunk text is injected via an XML tag to prevent prompt injection attacks.
const extractionPromptTemplate = `Extract all relevant entities and their relationships from the text below.

For each entity provide:
- name: The canonical name of the entity
- type: One of "Person", "Organization", "Location", "Concept", "Product", "Date", "Event", "Technology", "Other"
- description: Brief description of the entity
- confidence: 0.0-1.0 how confident you are this is a real entity

For each relationship provide:
- source: Source entity name (must appear in entities)
- target: Target entity name (must appear in entities)
- type: UPPER_SNAKE relationship type, preferably one of WORKS_FOR, LOCATED_IN, RELATED_TO, OWNS, CREATED, MANAGES, PARTICIPATED_IN
- description: Description of the relationship
- confidence: 0.0-1.0

Extract at most %d entities. Only extract facts that are clearly mentioned or strongly implied.

Return a JSON object: {"entities": [...], "relationships": [...]}

<text>%s</text>

Extract as JSON:`

// strictSuffix is appended on retry after an unparseable response.
const strictSuffix = `

Your previous response was not valid JSON. Respond with ONLY the JSON object, no markdown fences, no commentary.`

// rawEntity and rawRelationship mirror the JSON shape returned by the model.
type rawEntity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type rawRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type extractionResponse struct {
	Entities      []rawEntity       `json:"entities"`
	Relationships []rawRelationship `json:"relationships"`
}

// Result holds the filtered candidates extracted from one chunk.
type Result struct {
	Entities      []models.CandidateEntity
	Relationships []models.CandidateRelationship
}

// Extractor sends chunks to the generator and parses candidate facts.
type Extractor struct {
	generator     llm.Generator
	minConfidence float64
	maxEntities   int
	logger        *slog.Logger
}

// New creates an extraction engine.
func New(gen llm.Generator, minConfidence float64, maxEntities int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		generator:     gen,
		minConfidence: minConfidence,
		maxEntities:   maxEntities,
		logger:        logger,
	}
}

// Extract produces candidates for one chunk. On persistently unparseable
// model output it returns an empty result and an error wrapping
// models.ErrExtractionRecoverable; callers treat that as a degraded chunk,
// not a failed document. Re-running on an identical chunk yields materially
// equivalent candidates; outputs are best-effort, not ground truth.
func (e *Extractor) Extract(ctx context.Context, chunk models.Chunk) (Result, error) {
	if e.generator == nil {
		return Result{}, fmt.Errorf("%w: chunk %s: no generator configured", models.ErrExtractionRecoverable, chunk.ID)
	}

	prompt := fmt.Sprintf(extractionPromptTemplate, e.maxEntities, xmlutil.Escape(chunk.Text))

	var resp extractionResponse
	var lastErr error
	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		p := prompt
		if attempt > 0 {
			p += strictSuffix
		}

		text, err := e.generator.Generate(ctx, systemPrompt, p)
		if err != nil {
			lastErr = err
			e.logger.Warn("extraction call failed", "chunk", chunk.ID, "attempt", attempt, "error", err)
			continue
		}

		parsed, parseErr := parseResponse(text)
		if parseErr != nil {
			lastErr = parseErr
			e.logger.Warn("extraction output unparseable, retrying stricter",
				"chunk", chunk.ID, "attempt", attempt, "error", parseErr)
			continue
		}

		resp = parsed
		lastErr = nil
		break
	}
	if lastErr != nil {
		return Result{}, fmt.Errorf("%w: chunk %s: %v", models.ErrExtractionRecoverable, chunk.ID, lastErr)
	}

	result := e.filter(resp, chunk.ID)
	e.logger.Info("extracted candidates",
		"chunk", chunk.ID, "entities", len(result.Entities), "relationships", len(result.Relationships))
	return result, nil
}

// parseResponse validates model text against the extraction schema. Markdown
// fences are tolerated; everything else must be the expected JSON object.
func parseResponse(text string) (extractionResponse, error) {
	text = stripFences(text)

	var resp extractionResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return extractionResponse{}, fmt.Errorf("parsing extraction response: %w", err)
	}
	return resp, nil
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

// filter applies the confidence floor and the per-chunk cap, keeping the
// highest-confidence candidates when over the cap.
func (e *Extractor) filter(resp extractionResponse, chunkID string) Result {
	entities := make([]models.CandidateEntity, 0, len(resp.Entities))
	for i := range resp.Entities {
		raw := resp.Entities[i]
		if raw.Confidence < e.minConfidence {
			continue
		}
		et := models.NormalizeEntityType(raw.Type)
		if !models.EntityType(raw.Type).IsValid() && et == models.EntityTypeOther {
			e.logger.Debug("unknown entity type folded to Other", "type", raw.Type, "name", raw.Name)
		}
		entities = append(entities, models.CandidateEntity{
			Name:        raw.Name,
			Type:        et,
			Description: raw.Description,
			Confidence:  raw.Confidence,
			ChunkID:     chunkID,
		})
	}

	// Over the cap, drop the lowest-confidence candidates, never a prefix.
	if len(entities) > e.maxEntities {
		sort.SliceStable(entities, func(i, j int) bool {
			return entities[i].Confidence > entities[j].Confidence
		})
		entities = entities[:e.maxEntities]
	}

	relationships := make([]models.CandidateRelationship, 0, len(resp.Relationships))
	for i := range resp.Relationships {
		raw := resp.Relationships[i]
		if raw.Confidence < e.minConfidence {
			continue
		}
		relationships = append(relationships, models.CandidateRelationship{
			Source:      raw.Source,
			Target:      raw.Target,
			Type:        models.NormalizeRelationType(raw.Type),
			Description: raw.Description,
			Confidence:  raw.Confidence,
			ChunkID:     chunkID,
		})
	}

	return Result{Entities: entities, Relationships: relationships}
}

package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/graphnet/internal/chunker"
	"github.com/ajitpratap0/graphnet/internal/extract"
	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/query"
	"github.com/ajitpratap0/graphnet/internal/resolver"
	"github.com/ajitpratap0/graphnet/internal/retry"
	"github.com/ajitpratap0/graphnet/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// keywordGenerator emulates extraction and translation deterministically: it
// answers extraction prompts based on keywords present in the chunk text, and
// translation prompts with a fixed plan.
type keywordGenerator struct{}

func (g *keywordGenerator) Generate(_ context.Context, _ string, prompt string) (string, error) {
	if strings.Contains(prompt, "Classify the question") {
		return `{"intent": "find_by_name", "name": "Alice"}`, nil
	}
	if strings.Contains(prompt, "Rewrite the findings") {
		return "Alice works at Acme Corp.", nil
	}

	var entities []string
	var rels []string
	if strings.Contains(prompt, "Alice") {
		entities = append(entities,
			`{"name": "Alice", "type": "Person", "description": "An engineer", "confidence": 0.9}`)
	}
	if strings.Contains(prompt, "Acme") {
		entities = append(entities,
			`{"name": "Acme Corp", "type": "Organization", "description": "An employer", "confidence": 0.85}`)
	}
	if strings.Contains(prompt, "Alice") && strings.Contains(prompt, "Acme") {
		rels = append(rels,
			`{"source": "Alice", "target": "Acme Corp", "type": "WORKS_FOR", "description": "Employment", "confidence": 0.8}`)
	}
	if strings.Contains(prompt, "Springfield") {
		entities = append(entities,
			`{"name": "Springfield", "type": "Location", "description": "A town", "confidence": 0.8}`)
	}
	return `{"entities": [` + strings.Join(entities, ",") + `], "relationships": [` + strings.Join(rels, ",") + `]}`, nil
}

// garbageGenerator never produces parseable output.
type garbageGenerator struct{}

func (g *garbageGenerator) Generate(context.Context, string, string) (string, error) {
	return "not json", nil
}

func newTestPipeline(t *testing.T, gen interface {
	Generate(context.Context, string, string) (string, error)
}, chunkSize, overlap int) (*Pipeline, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	ch, err := chunker.New(chunkSize, overlap)
	require.NoError(t, err)

	policy := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	ex := extract.New(gen, 0.3, 25, testLogger())
	res := resolver.New(st, policy, testLogger())
	tr := query.NewTranslator(gen, testLogger())
	qe := query.NewExecutor(st, gen, 25, testLogger())

	opts := Options{Concurrency: 2, CallTimeout: 5 * time.Second}
	return New(ch, ex, res, st, tr, qe, opts, testLogger()), st
}

func TestIngestDocumentEndToEnd(t *testing.T) {
	pipe, st := newTestPipeline(t, &keywordGenerator{}, 1000, 200)
	ctx := context.Background()

	text := "Alice works at Acme Corp. Acme Corp is based in Springfield."
	report, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", text)
	require.NoError(t, err)

	assert.Equal(t, "doc-1", report.DocumentID)
	assert.Equal(t, 1, report.ChunksTotal)
	assert.Zero(t, report.ChunksFailed)
	assert.Equal(t, 3, report.EntitiesCreated)
	assert.Equal(t, 1, report.RelationshipsCreated)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Entities, 3)
	require.Len(t, export.Relationships, 1)
	assert.Equal(t, models.RelationWorksFor, export.Relationships[0].Type)
}

func TestIngestDocumentIdempotent(t *testing.T) {
	pipe, st := newTestPipeline(t, &keywordGenerator{}, 1000, 200)
	ctx := context.Background()

	text := "Alice works at Acme Corp."
	_, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", text)
	require.NoError(t, err)

	report, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", text)
	require.NoError(t, err)
	assert.Zero(t, report.EntitiesCreated)
	assert.Equal(t, 2, report.EntitiesMerged)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Entities, 2)
	assert.Len(t, export.Relationships, 1)
}

func TestIngestDocumentMergesAcrossChunks(t *testing.T) {
	// Small windows so the text spans several chunks; Alice appears in more
	// than one and must still resolve to a single canonical node.
	pipe, st := newTestPipeline(t, &keywordGenerator{}, 40, 10)
	ctx := context.Background()

	text := strings.Repeat("Alice knows things. ", 8)
	report, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", text)
	require.NoError(t, err)
	assert.Greater(t, report.ChunksTotal, 1)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, export.Entities, 1)
	entity := export.Entities[0]
	assert.Equal(t, "Alice", entity.Name)
	assert.Greater(t, len(entity.Provenance), 1)
}

func TestIngestDocumentDegradedChunksAreCountedNotFatal(t *testing.T) {
	pipe, st := newTestPipeline(t, &garbageGenerator{}, 1000, 200)
	ctx := context.Background()

	report, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", "Some text nobody can parse.")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksTotal)
	assert.Equal(t, 1, report.ChunksFailed)
	require.NotEmpty(t, report.Errors)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, export.Entities)
}

func TestIngestDocumentEmptyText(t *testing.T) {
	pipe, _ := newTestPipeline(t, &keywordGenerator{}, 1000, 200)

	report, err := pipe.IngestDocument(context.Background(), "doc-1", "empty.txt", "")
	require.NoError(t, err)
	assert.Zero(t, report.ChunksTotal)
	assert.Zero(t, report.EntitiesCreated)
}

func TestIngestDocumentCancelledContext(t *testing.T) {
	pipe, _ := newTestPipeline(t, &keywordGenerator{}, 40, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, _ := pipe.IngestDocument(ctx, "doc-1", "memo.txt", strings.Repeat("Alice. ", 40))
	assert.Equal(t, report.ChunksTotal, report.ChunksFailed)
	assert.Zero(t, report.EntitiesCreated)
}

func TestAnswerQuestionEndToEnd(t *testing.T) {
	pipe, _ := newTestPipeline(t, &keywordGenerator{}, 1000, 200)
	ctx := context.Background()

	_, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", "Alice works at Acme Corp.")
	require.NoError(t, err)

	result, err := pipe.AnswerQuestion(ctx, "Who is Alice?")
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "Alice", result.Entities[0].Name)
	assert.NotEmpty(t, result.Explanation)
	assert.Contains(t, result.Provenance, "doc-1:0")
}

func TestStatisticsExportClear(t *testing.T) {
	pipe, _ := newTestPipeline(t, &keywordGenerator{}, 1000, 200)
	ctx := context.Background()

	_, err := pipe.IngestDocument(ctx, "doc-1", "memo.txt", "Alice works at Acme Corp.")
	require.NoError(t, err)

	stats, err := pipe.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 1, stats.RelationshipCount)

	export, err := pipe.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Entities, 2)

	require.NoError(t, pipe.Clear(ctx))

	stats, err = pipe.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EntityCount)
}

// Package pipeline wires the chunker, extraction engine, resolver, and query
// layer into the operations exposed to callers: ingest, answer, statistics,
// export, and clear.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/graphnet/internal/chunker"
	"github.com/ajitpratap0/graphnet/internal/extract"
	"github.com/ajitpratap0/graphnet/internal/metrics"
	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/query"
	"github.com/ajitpratap0/graphnet/internal/resolver"
	"github.com/ajitpratap0/graphnet/internal/store"
)

// statsTopN is how many highest-degree entities statistics include.
const statsTopN = 10

// Options bound the pipeline's resource use.
type Options struct {
	// Concurrency caps simultaneous extraction calls, to respect external
	// rate limits.
	Concurrency int

	// CallTimeout bounds each external call (extraction, translation,
	// storage). Timeouts are transient failures, retried like any other.
	CallTimeout time.Duration
}

// Pipeline is the extraction-to-graph engine and query front.
type Pipeline struct {
	chunker    *chunker.Chunker
	extractor  *extract.Extractor
	resolver   *resolver.Resolver
	store      store.GraphStore
	translator *query.Translator
	executor   *query.Executor
	opts       Options
	logger     *slog.Logger
}

// New assembles a pipeline from its components.
func New(
	ch *chunker.Chunker,
	ex *extract.Extractor,
	res *resolver.Resolver,
	st store.GraphStore,
	tr *query.Translator,
	qe *query.Executor,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	return &Pipeline{
		chunker:    ch,
		extractor:  ex,
		resolver:   res,
		store:      st,
		translator: tr,
		executor:   qe,
		opts:       opts,
		logger:     logger,
	}
}

// IngestDocument chunks the text, extracts candidates concurrently, and
// merges them into the canonical graph as one batch.
//
// Per-chunk failures degrade to zero candidates and are counted, not fatal.
// Cancelling ctx stops issuing new extraction calls; in-flight calls finish
// and their candidates still merge, so partial ingestion is valid and
// re-running the same document is idempotent under the dedup keys.
func (p *Pipeline) IngestDocument(ctx context.Context, docID, filename, text string) (models.IngestionReport, error) {
	report := models.IngestionReport{DocumentID: docID}

	chunks := p.chunker.Chunks(docID, text)
	report.ChunksTotal = len(chunks)
	if len(chunks) == 0 {
		return report, nil
	}

	p.logger.Info("ingesting document",
		"document", docID, "filename", filename, "chunks", len(chunks), "concurrency", p.opts.Concurrency)

	// Extraction results collected per chunk index so merging happens in
	// ordinal order regardless of arrival order.
	results := make([]extract.Result, len(chunks))
	failures := make([]error, len(chunks))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i := range chunks {
		// Stop issuing new calls once cancelled; in-flight ones complete and
		// the unscheduled remainder is reported as failed.
		if err := gctx.Err(); err != nil {
			failures[i] = err
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, p.opts.CallTimeout)
			defer cancel()

			res, err := p.extractor.Extract(callCtx, chunks[i])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()

	var batch resolver.Batch
	for i := range chunks {
		if failures[i] != nil {
			report.ChunksFailed++
			report.Errors = append(report.Errors, failures[i].Error())
			if errors.Is(failures[i], models.ErrExtractionRecoverable) {
				p.logger.Warn("chunk degraded to zero candidates", "chunk", chunks[i].ID)
			}
			metrics.Inc(metrics.ChunksFailed)
			continue
		}
		batch.Entities = append(batch.Entities, results[i].Entities...)
		batch.Relationships = append(batch.Relationships, results[i].Relationships...)
		metrics.Inc(metrics.ChunksExtracted)
	}

	stats, err := p.resolver.MergeBatch(ctx, batch)
	report.EntitiesCreated = stats.EntitiesCreated
	report.EntitiesMerged = stats.EntitiesMerged
	report.RelationshipsCreated = stats.RelationshipsCreated
	report.RelationshipsMerged = stats.RelationshipsMerged
	report.CandidatesDropped = stats.Dropped
	report.Errors = append(report.Errors, stats.Warnings...)
	for i := 0; i < stats.EntitiesCreated+stats.EntitiesMerged; i++ {
		metrics.Inc(metrics.EntitiesMerged)
	}
	for i := 0; i < stats.RelationshipsCreated+stats.RelationshipsMerged; i++ {
		metrics.Inc(metrics.RelationshipsMerge)
	}
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, fmt.Errorf("merging batch for document %s: %w", docID, err)
	}

	metrics.Inc(metrics.DocumentsIngested)
	p.logger.Info("document ingested",
		"document", docID,
		"chunks_failed", report.ChunksFailed,
		"entities_created", report.EntitiesCreated,
		"entities_merged", report.EntitiesMerged,
		"relationships_created", report.RelationshipsCreated)
	return report, nil
}

// AnswerQuestion translates the question into a plan and executes it.
// Zero matches is a valid answer, not an error.
func (p *Pipeline) AnswerQuestion(ctx context.Context, question string) (models.QueryResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	plan := p.translator.Translate(callCtx, question)
	p.logger.Info("translated question", "intent", plan.Intent, "type", plan.Type, "name", plan.Name)

	result, err := p.executor.Execute(ctx, plan)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("answering question: %w", err)
	}
	metrics.Inc(metrics.QueriesAnswered)
	return result, nil
}

// Statistics returns aggregate graph statistics.
func (p *Pipeline) Statistics(ctx context.Context) (*models.GraphStatistics, error) {
	stats, err := p.store.Stats(ctx, statsTopN)
	if err != nil {
		return nil, fmt.Errorf("fetching graph statistics: %w", err)
	}
	return stats, nil
}

// Export returns the full graph with all attributes.
func (p *Pipeline) Export(ctx context.Context) (*models.GraphExport, error) {
	export, err := p.store.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting graph: %w", err)
	}
	return export, nil
}

// Clear removes every node and edge. The only bulk-delete path.
func (p *Pipeline) Clear(ctx context.Context) error {
	if err := p.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}
	return nil
}

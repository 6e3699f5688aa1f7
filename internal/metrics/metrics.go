// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint
// when net/http/pprof is imported in the main binary.
package metrics

import "expvar"

// Operation counters.
var (
	DocumentsIngested  = expvar.NewInt("graphnet_documents_ingested_total")
	ChunksExtracted    = expvar.NewInt("graphnet_chunks_extracted_total")
	ChunksFailed       = expvar.NewInt("graphnet_chunks_failed_total")
	EntitiesMerged     = expvar.NewInt("graphnet_entities_merged_total")
	RelationshipsMerge = expvar.NewInt("graphnet_relationships_merged_total")
	QueriesAnswered    = expvar.NewInt("graphnet_queries_answered_total")
	TranslateFallbacks = expvar.NewInt("graphnet_translation_fallback_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

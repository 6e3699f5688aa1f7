package models

// QueryIntent tags the structured interpretation of a natural language
// question.
type QueryIntent string

const (
	IntentListByType      QueryIntent = "list_by_type"
	IntentFindByName      QueryIntent = "find_by_name"
	IntentRelationshipsOf QueryIntent = "relationships_of"
	IntentGeneralSearch   QueryIntent = "general_search"
)

// IsValid returns true if the intent is recognized.
func (qi QueryIntent) IsValid() bool {
	switch qi {
	case IntentListByType, IntentFindByName, IntentRelationshipsOf, IntentGeneralSearch:
		return true
	}
	return false
}

// QueryPlan is the structured, executable representation of a question.
// Ephemeral, produced per question. Text always carries the raw question so
// general search remains possible when the filters are empty.
type QueryPlan struct {
	Intent QueryIntent `json:"intent"`
	Type   EntityType  `json:"type,omitempty"`
	Name   string      `json:"name,omitempty"`
	Text   string      `json:"text"`
}

// QueryResult is the answer to one question: the matched graph elements, a
// natural language explanation, and the provenance chunks that justify it.
type QueryResult struct {
	Entities      []CanonicalEntity       `json:"entities"`
	Relationships []CanonicalRelationship `json:"relationships"`
	Explanation   string                  `json:"explanation"`
	Provenance    []string                `json:"provenance,omitempty"`
}

// EntityDegree pairs an entity with its degree for centrality rankings.
type EntityDegree struct {
	Entity CanonicalEntity `json:"entity"`
	Degree int             `json:"degree"`
}

// GraphStatistics summarizes the canonical graph.
type GraphStatistics struct {
	EntityCount         int                  `json:"entity_count"`
	RelationshipCount   int                  `json:"relationship_count"`
	EntitiesByType      map[EntityType]int   `json:"entities_by_type"`
	RelationshipsByType map[RelationType]int `json:"relationships_by_type"`
	TopEntities         []EntityDegree       `json:"top_entities,omitempty"`
}

// GraphExport is the full serialized graph: every node and edge with all
// attributes.
type GraphExport struct {
	Entities      []CanonicalEntity       `json:"entities"`
	Relationships []CanonicalRelationship `json:"relationships"`
}

// IngestionReport summarizes one document ingestion. Ingestion is not
// all-or-nothing: failed chunks are counted, not fatal.
type IngestionReport struct {
	DocumentID           string   `json:"document_id"`
	ChunksTotal          int      `json:"chunks_total"`
	ChunksFailed         int      `json:"chunks_failed"`
	EntitiesCreated      int      `json:"entities_created"`
	EntitiesMerged       int      `json:"entities_merged"`
	RelationshipsCreated int      `json:"relationships_created"`
	RelationshipsMerged  int      `json:"relationships_merged"`
	CandidatesDropped    int      `json:"candidates_dropped"`
	Errors               []string `json:"errors,omitempty"`
}

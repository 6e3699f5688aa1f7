// Package store abstracts the persistent property-graph backend. Two
// implementations exist: MemoryStore (embedded, used by tests and when no
// Neo4j URI is configured) and Neo4jStore (Cypher MERGE-on-key).
package store

import (
	"context"
	"errors"

	"github.com/ajitpratap0/graphnet/internal/models"
)

// ErrNotFound is returned by GetEntity when the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// GraphStore defines the interface for canonical graph persistence.
//
// Write operations are keyed by the deterministic identifiers derived from
// the dedup keys, so retrying with the same inputs produces the same state
// and never accumulates duplicates. Read operations return results ordered
// by name so query output stays deterministic.
type GraphStore interface {
	// UpsertEntity stores the given canonical entity, replacing any previous
	// record with the same ID. Returns true when the entity was newly created.
	UpsertEntity(ctx context.Context, entity models.CanonicalEntity) (created bool, err error)

	// UpsertRelationship stores the given edge, replacing any previous record
	// with the same ID. Returns true when the edge was newly created.
	// Both endpoints must already exist.
	UpsertRelationship(ctx context.Context, rel models.CanonicalRelationship) (created bool, err error)

	// GetEntity retrieves a single entity by ID.
	GetEntity(ctx context.Context, id string) (*models.CanonicalEntity, error)

	// GetRelationship retrieves a single edge by ID.
	GetRelationship(ctx context.Context, id string) (*models.CanonicalRelationship, error)

	// EntitiesByType returns all entities of the given type, ordered by name.
	EntitiesByType(ctx context.Context, et models.EntityType) ([]models.CanonicalEntity, error)

	// EntitiesByName returns entities whose name contains the given string,
	// case-insensitively, ordered by name.
	EntitiesByName(ctx context.Context, name string) ([]models.CanonicalEntity, error)

	// EntitiesByNormalizedName returns entities whose persisted normalized
	// name equals the given value exactly, ordered by name. Display names
	// carry punctuation the dedup form strips, so substring search on Name
	// cannot serve endpoint resolution.
	EntitiesByNormalizedName(ctx context.Context, normalized string) ([]models.CanonicalEntity, error)

	// RelationshipsOf returns all edges touching the given entity, in either
	// direction, ordered by ID.
	RelationshipsOf(ctx context.Context, entityID string) ([]models.CanonicalRelationship, error)

	// Stats returns aggregate statistics with the topN highest-degree entities.
	Stats(ctx context.Context, topN int) (*models.GraphStatistics, error)

	// ExportAll returns every node and edge with all attributes.
	ExportAll(ctx context.Context) (*models.GraphExport, error)

	// ClearAll removes every node and edge. This is the only bulk-delete path;
	// entities are never deleted individually.
	ClearAll(ctx context.Context) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close(ctx context.Context) error
}

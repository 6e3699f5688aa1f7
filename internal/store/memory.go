package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/graphnet/internal/models"
)

// MemoryStore is an embedded in-memory GraphStore. It backs tests and
// standalone runs without a Neo4j instance.
type MemoryStore struct {
	mu            sync.RWMutex
	entities      map[string]models.CanonicalEntity
	relationships map[string]models.CanonicalRelationship
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:      make(map[string]models.CanonicalEntity),
		relationships: make(map[string]models.CanonicalRelationship),
	}
}

// UpsertEntity stores the entity, replacing any previous record with the same ID.
func (m *MemoryStore) UpsertEntity(_ context.Context, entity models.CanonicalEntity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.entities[entity.ID]
	m.entities[entity.ID] = copyEntity(entity)
	return !exists, nil
}

// UpsertRelationship stores the edge after checking both endpoints exist.
func (m *MemoryStore) UpsertRelationship(_ context.Context, rel models.CanonicalRelationship) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[rel.SourceID]; !ok {
		return false, fmt.Errorf("%w: relationship source %s", ErrNotFound, rel.SourceID)
	}
	if _, ok := m.entities[rel.TargetID]; !ok {
		return false, fmt.Errorf("%w: relationship target %s", ErrNotFound, rel.TargetID)
	}
	_, exists := m.relationships[rel.ID]
	m.relationships[rel.ID] = copyRelationship(rel)
	return !exists, nil
}

// GetEntity retrieves a single entity by ID.
func (m *MemoryStore) GetEntity(_ context.Context, id string) (*models.CanonicalEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entity, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e := copyEntity(entity)
	return &e, nil
}

// GetRelationship retrieves a single edge by ID.
func (m *MemoryStore) GetRelationship(_ context.Context, id string) (*models.CanonicalRelationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.relationships[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r := copyRelationship(rel)
	return &r, nil
}

// EntitiesByType returns all entities of the given type, ordered by name.
func (m *MemoryStore) EntitiesByType(_ context.Context, et models.EntityType) ([]models.CanonicalEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CanonicalEntity
	for _, e := range m.entities {
		if e.Type == et {
			out = append(out, copyEntity(e))
		}
	}
	sortEntitiesByName(out)
	return out, nil
}

// EntitiesByName returns entities whose name contains the given string,
// case-insensitively, ordered by name.
func (m *MemoryStore) EntitiesByName(_ context.Context, name string) ([]models.CanonicalEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(name)
	var out []models.CanonicalEntity
	for _, e := range m.entities {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			out = append(out, copyEntity(e))
		}
	}
	sortEntitiesByName(out)
	return out, nil
}

// EntitiesByNormalizedName returns entities whose stored normalized name
// equals the given value exactly, ordered by name.
func (m *MemoryStore) EntitiesByNormalizedName(_ context.Context, normalized string) ([]models.CanonicalEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CanonicalEntity
	for _, e := range m.entities {
		if e.NormalizedName == normalized {
			out = append(out, copyEntity(e))
		}
	}
	sortEntitiesByName(out)
	return out, nil
}

// RelationshipsOf returns all edges touching the entity, ordered by ID.
func (m *MemoryStore) RelationshipsOf(_ context.Context, entityID string) ([]models.CanonicalRelationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CanonicalRelationship
	for _, r := range m.relationships {
		if r.SourceID == entityID || r.TargetID == entityID {
			out = append(out, copyRelationship(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats computes aggregate counts and the topN highest-degree entities.
func (m *MemoryStore) Stats(_ context.Context, topN int) (*models.GraphStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.GraphStatistics{
		EntityCount:         len(m.entities),
		RelationshipCount:   len(m.relationships),
		EntitiesByType:      make(map[models.EntityType]int),
		RelationshipsByType: make(map[models.RelationType]int),
	}
	for _, e := range m.entities {
		stats.EntitiesByType[e.Type]++
	}

	degrees := make(map[string]int)
	for _, r := range m.relationships {
		stats.RelationshipsByType[r.Type]++
		degrees[r.SourceID]++
		degrees[r.TargetID]++
	}

	var top []models.EntityDegree
	for id, d := range degrees {
		if e, ok := m.entities[id]; ok {
			top = append(top, models.EntityDegree{Entity: copyEntity(e), Degree: d})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Degree != top[j].Degree {
			return top[i].Degree > top[j].Degree
		}
		return top[i].Entity.Name < top[j].Entity.Name
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	stats.TopEntities = top

	return stats, nil
}

// ExportAll returns every node and edge, ordered by name and ID.
func (m *MemoryStore) ExportAll(_ context.Context) (*models.GraphExport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	export := &models.GraphExport{
		Entities:      make([]models.CanonicalEntity, 0, len(m.entities)),
		Relationships: make([]models.CanonicalRelationship, 0, len(m.relationships)),
	}
	for _, e := range m.entities {
		export.Entities = append(export.Entities, copyEntity(e))
	}
	for _, r := range m.relationships {
		export.Relationships = append(export.Relationships, copyRelationship(r))
	}
	sortEntitiesByName(export.Entities)
	sort.Slice(export.Relationships, func(i, j int) bool {
		return export.Relationships[i].ID < export.Relationships[j].ID
	})
	return export, nil
}

// ClearAll removes every node and edge.
func (m *MemoryStore) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[string]models.CanonicalEntity)
	m.relationships = make(map[string]models.CanonicalRelationship)
	return nil
}

// Ping is a no-op for the embedded store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the embedded store.
func (m *MemoryStore) Close(_ context.Context) error { return nil }

// --- helpers ---

// copyEntity deep-copies mutable fields so callers cannot mutate stored data.
func copyEntity(e models.CanonicalEntity) models.CanonicalEntity {
	if len(e.Provenance) > 0 {
		prov := make([]string, len(e.Provenance))
		copy(prov, e.Provenance)
		e.Provenance = prov
	}
	return e
}

func copyRelationship(r models.CanonicalRelationship) models.CanonicalRelationship {
	if len(r.Provenance) > 0 {
		prov := make([]string, len(r.Provenance))
		copy(prov, r.Provenance)
		r.Provenance = prov
	}
	return r
}

func sortEntitiesByName(entities []models.CanonicalEntity) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].ID < entities[j].ID
	})
}

package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ajitpratap0/graphnet/internal/models"
)

// relTypePattern is the only shape accepted for relationship types written
// into Cypher. Relationship types cannot be parameterized, so anything else
// would be an injection vector.
var relTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Neo4jStore persists the canonical graph in Neo4j. Entities are nodes with
// the Entity label; relationships carry their full attribute set as edge
// properties so reads never need to re-derive them.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, username, password, database string, logger *slog.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: connecting to neo4j at %s: %v", models.ErrStorageTransient, uri, err)
	}
	logger.Info("connected to neo4j", "uri", uri, "database", database)
	return &Neo4jStore{driver: driver, database: database, logger: logger}, nil
}

// UpsertEntity merges the node on its deterministic ID and overwrites its
// attributes with the given record. Safe to retry: same input, same state.
func (s *Neo4jStore) UpsertEntity(ctx context.Context, entity models.CanonicalEntity) (bool, error) {
	created, err := boolResult(s.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MERGE (e:Entity {id: $id})
			ON CREATE SET e.created_at = $created_at
			SET e.name = $name,
			    e.normalized_name = $normalized_name,
			    e.type = $type,
			    e.description = $description,
			    e.confidence = $confidence,
			    e.provenance = $provenance,
			    e.updated_at = $updated_at
		`, map[string]any{
			"id":              entity.ID,
			"name":            entity.Name,
			"normalized_name": entity.NormalizedName,
			"type":            string(entity.Type),
			"description":     entity.Description,
			"confidence":      entity.Confidence,
			"provenance":      toAnySlice(entity.Provenance),
			"created_at":      entity.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at":      entity.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesCreated() > 0, nil
	}))
	if err != nil {
		return false, fmt.Errorf("upserting entity %s: %w", entity.ID, err)
	}
	return created, nil
}

// UpsertRelationship merges the edge between its endpoints. Matching both
// endpoints first means the merge silently does nothing when either is
// absent, so the existence check is explicit.
func (s *Neo4jStore) UpsertRelationship(ctx context.Context, rel models.CanonicalRelationship) (bool, error) {
	relType := string(rel.Type)
	if !relTypePattern.MatchString(relType) {
		return false, fmt.Errorf("%w: relationship type %q", models.ErrValidation, relType)
	}

	created, err := boolResult(s.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (src:Entity {id: $source_id})
			MATCH (dst:Entity {id: $target_id})
			MERGE (src)-[r:%s {id: $id}]->(dst)
			ON CREATE SET r.created_at = $created_at
			SET r.source_id = $source_id,
			    r.target_id = $target_id,
			    r.type = $type,
			    r.description = $description,
			    r.confidence = $confidence,
			    r.provenance = $provenance,
			    r.updated_at = $updated_at
			RETURN r.id
		`, relType)
		result, err := tx.Run(ctx, query, map[string]any{
			"id":          rel.ID,
			"source_id":   rel.SourceID,
			"target_id":   rel.TargetID,
			"type":        relType,
			"description": rel.Description,
			"confidence":  rel.Confidence,
			"provenance":  toAnySlice(rel.Provenance),
			"created_at":  rel.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at":  rel.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: endpoints %s -> %s", ErrNotFound, rel.SourceID, rel.TargetID)
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().RelationshipsCreated() > 0, nil
	}))
	if err != nil {
		return false, fmt.Errorf("upserting relationship %s: %w", rel.ID, err)
	}
	return created, nil
}

// GetEntity retrieves a single entity by ID.
func (s *Neo4jStore) GetEntity(ctx context.Context, id string) (*models.CanonicalEntity, error) {
	entities, err := s.readEntities(ctx, `MATCH (e:Entity {id: $id}) RETURN e`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("getting entity %s: %w", id, err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &entities[0], nil
}

// GetRelationship retrieves a single edge by ID.
func (s *Neo4jStore) GetRelationship(ctx context.Context, id string) (*models.CanonicalRelationship, error) {
	rels, err := s.readRelationships(ctx,
		`MATCH ()-[r {id: $id}]->() RETURN properties(r) AS props`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("getting relationship %s: %w", id, err)
	}
	if len(rels) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &rels[0], nil
}

// EntitiesByType returns all entities of the given type, ordered by name.
func (s *Neo4jStore) EntitiesByType(ctx context.Context, et models.EntityType) ([]models.CanonicalEntity, error) {
	entities, err := s.readEntities(ctx,
		`MATCH (e:Entity {type: $type}) RETURN e ORDER BY e.name, e.id`,
		map[string]any{"type": string(et)})
	if err != nil {
		return nil, fmt.Errorf("listing entities of type %s: %w", et, err)
	}
	return entities, nil
}

// EntitiesByName returns entities whose name contains the given string,
// case-insensitively, ordered by name.
func (s *Neo4jStore) EntitiesByName(ctx context.Context, name string) ([]models.CanonicalEntity, error) {
	entities, err := s.readEntities(ctx,
		`MATCH (e:Entity) WHERE toLower(e.name) CONTAINS toLower($name) RETURN e ORDER BY e.name, e.id`,
		map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("searching entities by name %q: %w", name, err)
	}
	return entities, nil
}

// EntitiesByNormalizedName returns entities whose stored normalized name
// equals the given value exactly, ordered by name.
func (s *Neo4jStore) EntitiesByNormalizedName(ctx context.Context, normalized string) ([]models.CanonicalEntity, error) {
	entities, err := s.readEntities(ctx,
		`MATCH (e:Entity {normalized_name: $normalized}) RETURN e ORDER BY e.name, e.id`,
		map[string]any{"normalized": normalized})
	if err != nil {
		return nil, fmt.Errorf("looking up entities by normalized name %q: %w", normalized, err)
	}
	return entities, nil
}

// RelationshipsOf returns all edges touching the entity, in either direction.
func (s *Neo4jStore) RelationshipsOf(ctx context.Context, entityID string) ([]models.CanonicalRelationship, error) {
	rels, err := s.readRelationships(ctx,
		`MATCH (e:Entity {id: $id})-[r]-() RETURN DISTINCT properties(r) AS props ORDER BY props.id`,
		map[string]any{"id": entityID})
	if err != nil {
		return nil, fmt.Errorf("listing relationships of %s: %w", entityID, err)
	}
	return rels, nil
}

// Stats computes aggregate counts and the topN highest-degree entities.
func (s *Neo4jStore) Stats(ctx context.Context, topN int) (*models.GraphStatistics, error) {
	out, err := s.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := &models.GraphStatistics{
			EntitiesByType:      make(map[models.EntityType]int),
			RelationshipsByType: make(map[models.RelationType]int),
		}

		result, err := tx.Run(ctx,
			`MATCH (e:Entity) RETURN e.type AS type, count(e) AS count`, nil)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			t, _ := rec.Get("type")
			n, _ := rec.Get("count")
			count := int(n.(int64))
			stats.EntitiesByType[models.EntityType(t.(string))] = count
			stats.EntityCount += count
		}

		result, err = tx.Run(ctx,
			`MATCH (:Entity)-[r]->(:Entity) RETURN r.type AS type, count(r) AS count`, nil)
		if err != nil {
			return nil, err
		}
		records, err = result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			t, _ := rec.Get("type")
			n, _ := rec.Get("count")
			count := int(n.(int64))
			stats.RelationshipsByType[models.RelationType(t.(string))] = count
			stats.RelationshipCount += count
		}

		result, err = tx.Run(ctx, `
			MATCH (e:Entity)-[r]-()
			WITH e, count(r) AS degree
			RETURN e, degree
			ORDER BY degree DESC, e.name
			LIMIT $limit
		`, map[string]any{"limit": topN})
		if err != nil {
			return nil, err
		}
		records, err = result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			nodeVal, _ := rec.Get("e")
			degVal, _ := rec.Get("degree")
			node, ok := nodeVal.(neo4j.Node)
			if !ok {
				continue
			}
			stats.TopEntities = append(stats.TopEntities, models.EntityDegree{
				Entity: entityFromProps(node.Props),
				Degree: int(degVal.(int64)),
			})
		}

		return stats, nil
	})
	if err != nil {
		return nil, fmt.Errorf("computing graph statistics: %w", err)
	}
	return out.(*models.GraphStatistics), nil
}

// ExportAll returns every node and edge with all attributes.
func (s *Neo4jStore) ExportAll(ctx context.Context) (*models.GraphExport, error) {
	entities, err := s.readEntities(ctx, `MATCH (e:Entity) RETURN e ORDER BY e.name, e.id`, nil)
	if err != nil {
		return nil, fmt.Errorf("exporting entities: %w", err)
	}
	rels, err := s.readRelationships(ctx,
		`MATCH (:Entity)-[r]->(:Entity) RETURN properties(r) AS props ORDER BY props.id`, nil)
	if err != nil {
		return nil, fmt.Errorf("exporting relationships: %w", err)
	}
	return &models.GraphExport{Entities: entities, Relationships: rels}, nil
}

// ClearAll detaches and deletes every entity node.
func (s *Neo4jStore) ClearAll(ctx context.Context) error {
	_, err := s.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}
	s.logger.Info("graph cleared")
	return nil
}

// Ping verifies backend connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageTransient, err)
	}
	return nil
}

// Close closes the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// --- session helpers ---

// boolResult narrows the untyped result of a managed transaction whose work
// function returns the created flag.
func boolResult(v any, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected transaction result type %T", v)
	}
	return b, nil
}

func (s *Neo4jStore) executeWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (s *Neo4jStore) executeRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

func (s *Neo4jStore) readEntities(ctx context.Context, query string, params map[string]any) ([]models.CanonicalEntity, error) {
	out, err := s.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]models.CanonicalEntity, 0, len(records))
		for _, rec := range records {
			nodeVal, ok := rec.Get("e")
			if !ok {
				continue
			}
			node, ok := nodeVal.(neo4j.Node)
			if !ok {
				continue
			}
			entities = append(entities, entityFromProps(node.Props))
		}
		return entities, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.CanonicalEntity), nil
}

func (s *Neo4jStore) readRelationships(ctx context.Context, query string, params map[string]any) ([]models.CanonicalRelationship, error) {
	out, err := s.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rels := make([]models.CanonicalRelationship, 0, len(records))
		for _, rec := range records {
			propsVal, ok := rec.Get("props")
			if !ok {
				continue
			}
			props, ok := propsVal.(map[string]any)
			if !ok {
				continue
			}
			rels = append(rels, relationshipFromProps(props))
		}
		// DISTINCT + ORDER BY on property maps is not guaranteed stable
		// across server versions; re-sort locally.
		sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })
		return rels, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.CanonicalRelationship), nil
}

// --- property mapping ---

func entityFromProps(props map[string]any) models.CanonicalEntity {
	return models.CanonicalEntity{
		ID:             stringProp(props, "id"),
		Name:           stringProp(props, "name"),
		NormalizedName: stringProp(props, "normalized_name"),
		Type:           models.EntityType(stringProp(props, "type")),
		Description:    stringProp(props, "description"),
		Confidence:     floatProp(props, "confidence"),
		Provenance:     stringSliceProp(props, "provenance"),
		CreatedAt:      timeProp(props, "created_at"),
		UpdatedAt:      timeProp(props, "updated_at"),
	}
}

func relationshipFromProps(props map[string]any) models.CanonicalRelationship {
	return models.CanonicalRelationship{
		ID:          stringProp(props, "id"),
		SourceID:    stringProp(props, "source_id"),
		TargetID:    stringProp(props, "target_id"),
		Type:        models.RelationType(stringProp(props, "type")),
		Description: stringProp(props, "description"),
		Confidence:  floatProp(props, "confidence"),
		Provenance:  stringSliceProp(props, "provenance"),
		CreatedAt:   timeProp(props, "created_at"),
		UpdatedAt:   timeProp(props, "updated_at"),
	}
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func stringSliceProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeProp(props map[string]any, key string) time.Time {
	s, ok := props[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i := range ss {
		out[i] = ss[i]
	}
	return out
}

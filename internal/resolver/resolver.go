// Package resolver merges candidate facts into the canonical graph. It owns
// the dedup keys, the merge policy, and the concurrency discipline: entity
// merges for a batch complete before its relationships are attempted, and
// merges touching the same key serialize through a per-key critical section
// so concurrent batches never lose confidence or provenance updates.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/retry"
	"github.com/ajitpratap0/graphnet/internal/store"
)

// Batch is one document's worth of candidates, entities and relationships
// extracted across its chunks.
type Batch struct {
	Entities      []models.CandidateEntity
	Relationships []models.CandidateRelationship
}

// MergeStats counts the outcome of one batch merge.
type MergeStats struct {
	EntitiesCreated      int
	EntitiesMerged       int
	RelationshipsCreated int
	RelationshipsMerged  int
	Dropped              int
	Warnings             []string
}

// Resolver deduplicates candidates and merges them into the graph store.
type Resolver struct {
	store  store.GraphStore
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// New creates a resolver over the given store.
func New(st store.GraphStore, policy retry.Policy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  st,
		policy: policy,
		logger: logger,
		now:    time.Now,
		keys:   make(map[string]*sync.Mutex),
	}
}

// lockKey returns the mutex serializing merges for one dedup key. Disjoint
// keys proceed independently.
func (r *Resolver) lockKey(key string) *sync.Mutex {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()
	mu, ok := r.keys[key]
	if !ok {
		mu = &sync.Mutex{}
		r.keys[key] = mu
	}
	return mu
}

// MergeBatch merges all candidates into the canonical graph: entities first,
// then relationships (two-phase barrier so same-batch co-references resolve).
// Malformed candidates and dangling relationships are dropped, not fatal.
// Storage failures are retried with backoff; exhausting the retry bound
// surfaces as ErrMergeFailed for this batch only. Re-submitting the same
// batch is a no-op beyond refreshing provenance and timestamps.
func (r *Resolver) MergeBatch(ctx context.Context, batch Batch) (MergeStats, error) {
	var stats MergeStats
	var mergeErrs []error

	// Phase 1: entities, grouped by dedup key so one read-merge-write cycle
	// covers all same-key candidates in the batch.
	grouped, order, dropped := r.groupEntities(batch.Entities)
	stats.Dropped += dropped

	batchIndex := make(map[string]string, len(order)) // normalized name -> entity id
	for _, key := range order {
		candidates := grouped[key]
		created, id, err := r.mergeEntityKey(ctx, key, candidates)
		if err != nil {
			mergeErrs = append(mergeErrs, err)
			continue
		}
		if created {
			stats.EntitiesCreated++
		} else {
			stats.EntitiesMerged++
		}
		normalized := NormalizeName(candidates[0].Name)
		if _, ok := batchIndex[normalized]; !ok {
			batchIndex[normalized] = id
		}
	}

	// Phase 2: relationships, endpoints resolved against the batch first,
	// then the existing graph.
	for i := range batch.Relationships {
		cand := batch.Relationships[i]
		if err := validateRelationship(cand); err != nil {
			stats.Dropped++
			r.logger.Debug("dropping invalid relationship candidate",
				"source", cand.Source, "target", cand.Target, "error", err)
			continue
		}

		sourceID, srcOK := r.resolveEndpoint(ctx, batchIndex, cand.Source)
		targetID, dstOK := r.resolveEndpoint(ctx, batchIndex, cand.Target)
		if !srcOK || !dstOK {
			stats.Dropped++
			warning := fmt.Sprintf("%v: %s -[%s]-> %s", models.ErrDanglingReference, cand.Source, cand.Type, cand.Target)
			stats.Warnings = append(stats.Warnings, warning)
			r.logger.Warn("dropping relationship with unresolved endpoint",
				"source", cand.Source, "target", cand.Target, "type", cand.Type)
			continue
		}

		created, err := r.mergeRelationship(ctx, sourceID, targetID, cand)
		if err != nil {
			mergeErrs = append(mergeErrs, err)
			continue
		}
		if created {
			stats.RelationshipsCreated++
		} else {
			stats.RelationshipsMerged++
		}
	}

	if len(mergeErrs) > 0 {
		return stats, fmt.Errorf("%w: %d of %d operations failed: %v",
			models.ErrMergeFailed, len(mergeErrs), len(order)+len(batch.Relationships), errors.Join(mergeErrs...))
	}
	return stats, nil
}

// groupEntities validates candidates and groups them by dedup key,
// preserving first-seen order for deterministic merging.
func (r *Resolver) groupEntities(candidates []models.CandidateEntity) (map[string][]models.CandidateEntity, []string, int) {
	grouped := make(map[string][]models.CandidateEntity)
	var order []string
	dropped := 0
	for i := range candidates {
		cand := candidates[i]
		if err := validateEntity(cand); err != nil {
			dropped++
			r.logger.Debug("dropping invalid entity candidate", "name", cand.Name, "error", err)
			continue
		}
		key := string(cand.Type) + "\x00" + NormalizeName(cand.Name)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], cand)
	}
	return grouped, order, dropped
}

// mergeEntityKey merges all candidates for one dedup key under its critical
// section: read current state, fold candidates in, write back.
func (r *Resolver) mergeEntityKey(ctx context.Context, key string, candidates []models.CandidateEntity) (created bool, id string, err error) {
	mu := r.lockKey(key)
	mu.Lock()
	defer mu.Unlock()

	first := candidates[0]
	normalized := NormalizeName(first.Name)
	id = models.EntityID(normalized, first.Type)
	now := r.now().UTC()

	existing, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) (*models.CanonicalEntity, error) {
		e, getErr := r.store.GetEntity(ctx, id)
		if getErr != nil && errors.Is(getErr, store.ErrNotFound) {
			return nil, nil
		}
		return e, getErr
	})
	if err != nil {
		return false, id, fmt.Errorf("reading entity %s: %w", id, err)
	}

	entity := models.CanonicalEntity{
		ID:        id,
		Name:      first.Name,
		Type:      first.Type,
		CreatedAt: now,
	}
	if existing != nil {
		entity = *existing
	}
	entity.NormalizedName = normalized
	for i := range candidates {
		cand := candidates[i]
		// Maximum observed confidence; ties keep the most recent observation.
		if cand.Confidence >= entity.Confidence {
			entity.Confidence = cand.Confidence
		}
		entity.Description = mergeDescription(entity.Description, cand.Description)
		entity.Provenance = unionProvenance(entity.Provenance, cand.ChunkID)
	}
	entity.UpdatedAt = now

	storedCreated, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) (bool, error) {
		return r.store.UpsertEntity(ctx, entity)
	})
	if err != nil {
		return false, id, fmt.Errorf("upserting entity %s: %w", id, err)
	}
	return storedCreated, id, nil
}

// mergeRelationship merges one edge under its critical section.
func (r *Resolver) mergeRelationship(ctx context.Context, sourceID, targetID string, cand models.CandidateRelationship) (bool, error) {
	id := models.RelationshipID(sourceID, targetID, cand.Type)
	mu := r.lockKey(id)
	mu.Lock()
	defer mu.Unlock()

	now := r.now().UTC()
	existing, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) (*models.CanonicalRelationship, error) {
		rel, getErr := r.store.GetRelationship(ctx, id)
		if getErr != nil && errors.Is(getErr, store.ErrNotFound) {
			return nil, nil
		}
		return rel, getErr
	})
	if err != nil {
		return false, fmt.Errorf("reading relationship %s: %w", id, err)
	}

	rel := models.CanonicalRelationship{
		ID:        id,
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      cand.Type,
		CreatedAt: now,
	}
	if existing != nil {
		rel = *existing
	}
	if cand.Confidence >= rel.Confidence {
		rel.Confidence = cand.Confidence
	}
	rel.Description = mergeDescription(rel.Description, cand.Description)
	rel.Provenance = unionProvenance(rel.Provenance, cand.ChunkID)
	rel.UpdatedAt = now

	created, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) (bool, error) {
		return r.store.UpsertRelationship(ctx, rel)
	})
	if err != nil {
		return false, fmt.Errorf("upserting relationship %s: %w", id, err)
	}
	return created, nil
}

// resolveEndpoint maps a candidate's entity name to a canonical ID: the
// current batch first, then the existing graph by normalized name.
func (r *Resolver) resolveEndpoint(ctx context.Context, batchIndex map[string]string, name string) (string, bool) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "", false
	}
	if id, ok := batchIndex[normalized]; ok {
		return id, true
	}

	matches, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) ([]models.CanonicalEntity, error) {
		return r.store.EntitiesByNormalizedName(ctx, normalized)
	})
	if err != nil {
		r.logger.Warn("endpoint lookup failed", "name", name, "error", err)
		return "", false
	}
	if len(matches) == 0 {
		return "", false
	}
	// Ordered by name then ID, so the pick is deterministic when the same
	// normalized name exists under several types.
	return matches[0].ID, true
}

// --- merge policy helpers ---

// mergeDescription appends addition to current unless current already
// contains it (case-insensitive). Deterministic and idempotent.
func mergeDescription(current, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return current
	}
	if current == "" {
		return addition
	}
	if strings.Contains(strings.ToLower(current), strings.ToLower(addition)) {
		return current
	}
	return current + "\n" + addition
}

// unionProvenance adds chunkID to the sorted provenance set.
func unionProvenance(provenance []string, chunkID string) []string {
	if chunkID == "" {
		return provenance
	}
	for i := range provenance {
		if provenance[i] == chunkID {
			return provenance
		}
	}
	provenance = append(provenance, chunkID)
	sort.Strings(provenance)
	return provenance
}

func validateEntity(cand models.CandidateEntity) error {
	if NormalizeName(cand.Name) == "" {
		return fmt.Errorf("%w: empty entity name", models.ErrValidation)
	}
	if !cand.Type.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", models.ErrValidation, cand.Type)
	}
	return nil
}

func validateRelationship(cand models.CandidateRelationship) error {
	if NormalizeName(cand.Source) == "" || NormalizeName(cand.Target) == "" {
		return fmt.Errorf("%w: empty relationship endpoint", models.ErrValidation)
	}
	if strings.TrimSpace(string(cand.Type)) == "" {
		return fmt.Errorf("%w: empty relationship type", models.ErrValidation)
	}
	return nil
}

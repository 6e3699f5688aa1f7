package resolver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/retry"
	"github.com/ajitpratap0/graphnet/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestResolver(t *testing.T) (*Resolver, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	res := New(st, retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, testLogger())
	return res, st
}

func entityCand(name string, et models.EntityType, conf float64, chunk string) models.CandidateEntity {
	return models.CandidateEntity{
		Name:        name,
		Type:        et,
		Description: name + " description",
		Confidence:  conf,
		ChunkID:     chunk,
	}
}

func TestMergeBatchDeduplicatesByNormalizedName(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Jane Doe", models.EntityTypePerson, 0.8, "doc:0"),
			entityCand(" jane doe ", models.EntityTypePerson, 0.9, "doc:1"),
			entityCand("JANE DOE", models.EntityTypePerson, 0.7, "doc:2"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntitiesCreated)
	assert.Equal(t, 0, stats.EntitiesMerged)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, export.Entities, 1)

	got := export.Entities[0]
	assert.Equal(t, models.EntityID("jane doe", models.EntityTypePerson), got.ID)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, []string{"doc:0", "doc:1", "doc:2"}, got.Provenance)
}

func TestMergeBatchSameNameDifferentTypeStaysDistinct(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Mercury", models.EntityTypeLocation, 0.8, "doc:0"),
			entityCand("Mercury", models.EntityTypeConcept, 0.8, "doc:0"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntitiesCreated)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Entities, 2)
}

func TestMergeBatchIdempotentReingest(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	batch := Batch{
		Entities: []models.CandidateEntity{
			entityCand("Acme Corp", models.EntityTypeOrganization, 0.9, "doc:0"),
			entityCand("Alice", models.EntityTypePerson, 0.85, "doc:0"),
		},
		Relationships: []models.CandidateRelationship{{
			Source: "Alice", Target: "Acme Corp", Type: models.RelationWorksFor,
			Description: "Alice works for Acme", Confidence: 0.8, ChunkID: "doc:0",
		}},
	}

	first, err := res.MergeBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.EntitiesCreated)
	assert.Equal(t, 1, first.RelationshipsCreated)

	second, err := res.MergeBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.EntitiesCreated)
	assert.Equal(t, 2, second.EntitiesMerged)
	assert.Equal(t, 0, second.RelationshipsCreated)
	assert.Equal(t, 1, second.RelationshipsMerged)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Entities, 2)
	assert.Len(t, export.Relationships, 1)

	// Descriptions did not duplicate and provenance stayed a set.
	for _, e := range export.Entities {
		assert.Equal(t, []string{"doc:0"}, e.Provenance)
		assert.NotContains(t, e.Description, "\n")
	}
}

func TestMergeBatchRelationshipEndpointsResolveWithinBatch(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Alice", models.EntityTypePerson, 0.9, "doc:0"),
			entityCand("Springfield", models.EntityTypeLocation, 0.9, "doc:1"),
		},
		Relationships: []models.CandidateRelationship{{
			Source: "alice", Target: "SPRINGFIELD", Type: models.RelationLocatedIn,
			Confidence: 0.7, ChunkID: "doc:1",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RelationshipsCreated)
	assert.Zero(t, stats.Dropped)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, export.Relationships, 1)
	rel := export.Relationships[0]
	assert.Equal(t, models.RelationLocatedIn, rel.Type)
	assert.NotEmpty(t, rel.SourceID)
	assert.NotEmpty(t, rel.TargetID)
}

func TestMergeBatchRelationshipEndpointsResolveAgainstExistingGraph(t *testing.T) {
	res, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Bob", models.EntityTypePerson, 0.9, "a:0"),
		},
	})
	require.NoError(t, err)

	// A later document references Bob without re-extracting him.
	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Initech", models.EntityTypeOrganization, 0.9, "b:0"),
		},
		Relationships: []models.CandidateRelationship{{
			Source: "Bob", Target: "Initech", Type: models.RelationWorksFor,
			Confidence: 0.8, ChunkID: "b:0",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RelationshipsCreated)
	assert.Zero(t, stats.Dropped)
}

func TestMergeBatchResolvesPunctuatedNamesAcrossBatches(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	_, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Dr. Smith", models.EntityTypePerson, 0.9, "a:0"),
		},
	})
	require.NoError(t, err)

	// Normalization strips the period, so the dedup form is not a substring
	// of the stored display name. The edge must still find its endpoint.
	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Initech", models.EntityTypeOrganization, 0.9, "b:0"),
		},
		Relationships: []models.CandidateRelationship{{
			Source: "Dr. Smith", Target: "Initech", Type: models.RelationWorksFor,
			Confidence: 0.8, ChunkID: "b:0",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RelationshipsCreated)
	assert.Zero(t, stats.Dropped)
	assert.Empty(t, stats.Warnings)

	// A differently punctuated mention of the same entity resolves too.
	stats, err = res.MergeBatch(ctx, Batch{
		Relationships: []models.CandidateRelationship{{
			Source: "dr smith", Target: "Initech", Type: models.RelationManages,
			Confidence: 0.7, ChunkID: "c:0",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RelationshipsCreated)
	assert.Zero(t, stats.Dropped)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Relationships, 2)
}

func TestMergeBatchDropsDanglingRelationships(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			entityCand("Alice", models.EntityTypePerson, 0.9, "doc:0"),
		},
		Relationships: []models.CandidateRelationship{{
			Source: "Alice", Target: "Nobody Mentioned", Type: models.RelationManages,
			Confidence: 0.8, ChunkID: "doc:0",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	require.Len(t, stats.Warnings, 1)
	assert.Contains(t, stats.Warnings[0], "Nobody Mentioned")

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, export.Relationships)
}

func TestMergeBatchDropsInvalidCandidates(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	stats, err := res.MergeBatch(ctx, Batch{
		Entities: []models.CandidateEntity{
			{Name: "   ", Type: models.EntityTypePerson, Confidence: 0.9, ChunkID: "doc:0"},
			{Name: "Valid", Type: models.EntityType("Alien"), Confidence: 0.9, ChunkID: "doc:0"},
			entityCand("Kept", models.EntityTypeConcept, 0.9, "doc:0"),
		},
		Relationships: []models.CandidateRelationship{
			{Source: "", Target: "Kept", Type: models.RelationRelatedTo, Confidence: 0.5, ChunkID: "doc:0"},
			{Source: "Kept", Target: "Kept", Type: models.RelationType(""), Confidence: 0.5, ChunkID: "doc:0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Dropped)
	assert.Equal(t, 1, stats.EntitiesCreated)

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Entities, 1)
	assert.Empty(t, export.Relationships)
}

func TestMergeBatchCommutativeOutcome(t *testing.T) {
	ctx := context.Background()

	batchA := Batch{Entities: []models.CandidateEntity{
		entityCand("Jane Doe", models.EntityTypePerson, 0.7, "a:0"),
	}}
	batchB := Batch{Entities: []models.CandidateEntity{
		entityCand("jane doe", models.EntityTypePerson, 0.9, "b:0"),
	}}

	resolve := func(first, second Batch) models.CanonicalEntity {
		res, st := newTestResolver(t)
		_, err := res.MergeBatch(ctx, first)
		require.NoError(t, err)
		_, err = res.MergeBatch(ctx, second)
		require.NoError(t, err)
		export, err := st.ExportAll(ctx)
		require.NoError(t, err)
		require.Len(t, export.Entities, 1)
		return export.Entities[0]
	}

	ab := resolve(batchA, batchB)
	ba := resolve(batchB, batchA)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, ab.Confidence, ba.Confidence)
	assert.Equal(t, ab.Provenance, ba.Provenance)
}

func TestMergeBatchConcurrentSameKey(t *testing.T) {
	res, st := newTestResolver(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := res.MergeBatch(ctx, Batch{Entities: []models.CandidateEntity{
				entityCand("Shared Entity", models.EntityTypeConcept, 0.5+float64(n)*0.05, "doc:0"),
			}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	export, err := st.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, export.Entities, 1)
	assert.InDelta(t, 0.85, export.Entities[0].Confidence, 1e-9)
}

func TestMergeBatchSurfacesStorageFailures(t *testing.T) {
	st := &failingStore{GraphStore: store.NewMemoryStore()}
	res := New(st, retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, testLogger())

	_, err := res.MergeBatch(context.Background(), Batch{Entities: []models.CandidateEntity{
		entityCand("Doomed", models.EntityTypePerson, 0.9, "doc:0"),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMergeFailed))
}

// failingStore fails every entity upsert to exercise the retry-then-fail path.
type failingStore struct {
	store.GraphStore
}

func (f *failingStore) UpsertEntity(context.Context, models.CanonicalEntity) (bool, error) {
	return false, errors.New("storage down")
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane doe"},
		{"  jane   doe  ", "jane doe"},
		{"JANE DOE", "jane doe"},
		{"Acme, Inc.", "acme inc"},
		{"AT&T", "at&t"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestMergeDescription(t *testing.T) {
	assert.Equal(t, "new", mergeDescription("", "new"))
	assert.Equal(t, "old", mergeDescription("old", ""))
	assert.Equal(t, "old", mergeDescription("old", "OLD"))
	assert.Equal(t, "old\nnew", mergeDescription("old", "new"))
	// Idempotent: merging the same addition again is a no-op.
	merged := mergeDescription("old", "new")
	assert.Equal(t, merged, mergeDescription(merged, "new"))
}

func TestUnionProvenance(t *testing.T) {
	prov := unionProvenance(nil, "b")
	prov = unionProvenance(prov, "a")
	prov = unionProvenance(prov, "b")
	prov = unionProvenance(prov, "")
	assert.Equal(t, []string{"a", "b"}, prov)
}

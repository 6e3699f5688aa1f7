package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RelationType names the kind of edge between two entities. The vocabulary is
// open: extraction prompts recommend the well-known set below, but any
// non-empty UPPER_SNAKE string is accepted.
type RelationType string

const (
	RelationWorksFor       RelationType = "WORKS_FOR"
	RelationLocatedIn      RelationType = "LOCATED_IN"
	RelationRelatedTo      RelationType = "RELATED_TO"
	RelationOwns           RelationType = "OWNS"
	RelationCreated        RelationType = "CREATED"
	RelationManages        RelationType = "MANAGES"
	RelationParticipatedIn RelationType = "PARTICIPATED_IN"
)

// WellKnownRelationTypes is the recommended closed set offered to the
// extraction prompt. Types outside this set remain valid.
var WellKnownRelationTypes = []RelationType{
	RelationWorksFor,
	RelationLocatedIn,
	RelationRelatedTo,
	RelationOwns,
	RelationCreated,
	RelationManages,
	RelationParticipatedIn,
}

// IsWellKnown reports whether rt belongs to the recommended vocabulary.
func (rt RelationType) IsWellKnown() bool {
	for i := range WellKnownRelationTypes {
		if rt == WellKnownRelationTypes[i] {
			return true
		}
	}
	return false
}

// NormalizeRelationType canonicalizes a model-supplied relation string to
// UPPER_SNAKE form. An empty result means the candidate is unusable.
func NormalizeRelationType(s string) RelationType {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), "_")
	s = strings.ReplaceAll(s, "-", "_")
	return RelationType(strings.ToUpper(s))
}

// CandidateRelationship is a relationship proposed by the extraction engine,
// referencing entities by name. Ephemeral, same lifecycle as CandidateEntity.
type CandidateRelationship struct {
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Type        RelationType `json:"type"`
	Description string       `json:"description"`
	Confidence  float64      `json:"confidence"`
	ChunkID     string       `json:"chunk_id"`
}

// CanonicalRelationship is a persisted graph edge. At most one exists per
// (source id, target id, type) triple; repeated extraction of the same fact
// reinforces confidence and provenance instead of duplicating the edge.
// Both endpoints must exist as canonical entities.
type CanonicalRelationship struct {
	ID          string       `json:"id"`
	SourceID    string       `json:"source_id"`
	TargetID    string       `json:"target_id"`
	Type        RelationType `json:"type"`
	Description string       `json:"description"`
	Confidence  float64      `json:"confidence"`
	Provenance  []string     `json:"provenance,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RelationshipID derives the deterministic edge identifier for an edge key.
func RelationshipID(sourceID, targetID string, rt RelationType) string {
	sum := sha256.Sum256([]byte(sourceID + "\x00" + targetID + "\x00" + string(rt)))
	return "rel_" + hex.EncodeToString(sum[:12])
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EntityType classifies the kind of entity.
type EntityType string

const (
	EntityTypePerson       EntityType = "Person"
	EntityTypeOrganization EntityType = "Organization"
	EntityTypeLocation     EntityType = "Location"
	EntityTypeConcept      EntityType = "Concept"
	EntityTypeProduct      EntityType = "Product"
	EntityTypeDate         EntityType = "Date"
	EntityTypeEvent        EntityType = "Event"
	EntityTypeTechnology   EntityType = "Technology"
	EntityTypeOther        EntityType = "Other"
)

// ValidEntityTypes is the set of all valid entity types.
var ValidEntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeLocation,
	EntityTypeConcept,
	EntityTypeProduct,
	EntityTypeDate,
	EntityTypeEvent,
	EntityTypeTechnology,
	EntityTypeOther,
}

// IsValid returns true if the entity type is recognized.
func (et EntityType) IsValid() bool {
	for i := range ValidEntityTypes {
		if et == ValidEntityTypes[i] {
			return true
		}
	}
	return false
}

// NormalizeEntityType maps an arbitrary model-supplied type string onto the
// closed set, folding anything unrecognized to EntityTypeOther. Model output
// is untrusted; case drift is tolerated before giving up.
func NormalizeEntityType(s string) EntityType {
	s = strings.TrimSpace(s)
	for i := range ValidEntityTypes {
		if strings.EqualFold(string(ValidEntityTypes[i]), s) {
			return ValidEntityTypes[i]
		}
	}
	return EntityTypeOther
}

// CandidateEntity is an entity proposed by the extraction engine for a single
// chunk. Candidates are ephemeral: they are consumed by the resolver and
// never persisted directly.
type CandidateEntity struct {
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Description string     `json:"description"`
	Confidence  float64    `json:"confidence"`
	ChunkID     string     `json:"chunk_id"`
}

// CanonicalEntity is the deduplicated, persisted representation of an entity
// in the graph. Exactly one canonical entity exists per (normalized name,
// type) pair; its identifier is derived deterministically from that key.
// NormalizedName persists the dedup form of Name so endpoint resolution can
// match entities exactly regardless of display punctuation or casing.
type CanonicalEntity struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Type           EntityType `json:"type"`
	Description    string     `json:"description"`
	Confidence     float64    `json:"confidence"`
	Provenance     []string   `json:"provenance,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EntityID derives the deterministic canonical identifier for a dedup key.
// Re-processing identical input always maps to the same identifier.
func EntityID(normalizedName string, et EntityType) string {
	sum := sha256.Sum256([]byte(normalizedName + "\x00" + string(et)))
	return "ent_" + hex.EncodeToString(sum[:12])
}

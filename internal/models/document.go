package models

import "time"

// Document identifies one ingested source. Immutable once created; it owns
// zero or more chunks.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is one overlapping window of a document's text. Immutable; created
// once by the chunker and referenced (never owned) by candidates as
// provenance. Start and End are byte offsets into the original text.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

// Package chunker splits document text into overlapping windows. It is pure
// and deterministic: no I/O, no side effects beyond the returned boundaries.
package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/ajitpratap0/graphnet/internal/models"
)

// Chunker produces overlapping fixed-size windows over raw text.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. size must be greater than overlap, overlap must be
// >= 0; anything else is a configuration error.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be greater than 0, got %d", models.ErrConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must be >= 0, got %d", models.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be less than chunk size (%d)", models.ErrConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Boundary is one window's half-open byte range [Start, End) in the text.
type Boundary struct {
	Start int
	End   int
}

// Boundaries returns the window boundaries covering text completely.
// Consecutive windows overlap by the configured amount; concatenating the
// non-overlapping spans reconstructs the input exactly. The sequence is
// finite and restartable: the same input always yields the same boundaries.
// Windows are sized in bytes but never split a UTF-8 rune: both edges snap
// forward to the next rune start, so a chunk may run up to three bytes long.
func (c *Chunker) Boundaries(text string) []Boundary {
	if len(text) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var bounds []Boundary
	start := 0
	for {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = snapToRuneStart(text, end)
		}
		bounds = append(bounds, Boundary{Start: start, End: end})
		if end == len(text) {
			break
		}
		start = snapToRuneStart(text, start+step)
	}
	return bounds
}

// snapToRuneStart advances i to the nearest rune boundary at or after it.
func snapToRuneStart(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

// Chunks materializes the boundaries for a document into chunk values with
// strictly increasing ordinals starting at 0.
func (c *Chunker) Chunks(docID, text string) []models.Chunk {
	bounds := c.Boundaries(text)
	chunks := make([]models.Chunk, 0, len(bounds))
	for i, b := range bounds {
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s:%d", docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Start:      b.Start,
			End:        b.End,
			Text:       text[b.Start:b.End],
		})
	}
	return chunks
}

// Reassemble reconstructs the original text from chunks produced by Chunks,
// dropping each chunk's leading overlap. Used to verify losslessness.
func (c *Chunker) Reassemble(chunks []models.Chunk) string {
	var out []byte
	prevEnd := 0
	for i := range chunks {
		ch := chunks[i]
		skip := prevEnd - ch.Start
		if skip < 0 {
			skip = 0
		}
		if skip < len(ch.Text) {
			out = append(out, ch.Text[skip:]...)
		}
		prevEnd = ch.End
	}
	return string(out)
}

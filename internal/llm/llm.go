// Package llm defines the text-generation capability consumed by the
// extraction engine and the query translator, plus its Claude-backed
// implementation. The schema constraint travels in the prompt; callers
// validate the returned text against their expected JSON shape.
package llm

import "context"

// Generator is the text-generation capability. Implementations make one
// network call per invocation and hold no local persistent state.
type Generator interface {
	// Generate sends the prompt with a system instruction and returns the
	// model's text output.
	Generate(ctx context.Context, system, prompt string) (string, error)
}

package workflow

import (
	"context"
	"fmt"
)

// InputProvider supplies values for fields that upstream nodes could not fill.
// Implementations may prompt a terminal, read a form, or return canned answers.
type InputProvider interface {
	PromptForMissing(ctx context.Context, field string) (string, error)
}

// InputFunc adapts a function to InputProvider
type InputFunc func(ctx context.Context, field string) (string, error)

// PromptForMissing calls f
func (f InputFunc) PromptForMissing(ctx context.Context, field string) (string, error) {
	return f(ctx, field)
}

// StaticInput answers prompts from a fixed map. Unknown fields yield an error.
type StaticInput map[string]string

// PromptForMissing looks up the field
func (s StaticInput) PromptForMissing(_ context.Context, field string) (string, error) {
	v, ok := s[field]
	if !ok {
		return "", fmt.Errorf("no value for %s", field)
	}
	return v, nil
}

//go:build !llama

package reference

import "context"

// Available reports whether this binary has llama.cpp support.
const Available = false

// Generator is a stub that refuses to run without the 'llama' build tag.
type Generator struct{}

// New always fails with ErrUnavailable.
func New(string, Options) (*Generator, error) { return nil, ErrUnavailable }

// Complete always fails with ErrUnavailable.
func (g *Generator) Complete(ctx context.Context, _ string, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", ErrUnavailable
}

// Close is a no-op.
func (g *Generator) Close() error { return nil }

// Package reference produces baseline continuations with llama.cpp so that
// the native engine's unpatched output can be checked against an
// independent runtime. The real backend needs the 'llama' build tag; other
// builds get a stub whose constructor fails with ErrUnavailable.
package reference

import (
	"errors"
	"strings"
)

// ErrUnavailable is returned when llama.cpp support was not compiled in.
var ErrUnavailable = errors.New("reference: llama.cpp support not built (missing 'llama' build tag)")

// Options configure the llama.cpp context.
type Options struct {
	ContextSize int
	Threads     int
}

func (o Options) withDefaults() Options {
	if o.ContextSize <= 0 {
		o.ContextSize = 2048
	}
	if o.Threads <= 0 {
		o.Threads = 1
	}
	return o
}

// trimEcho drops the prompt when the backend echoes it back.
func trimEcho(prompt, out string) string {
	return strings.TrimPrefix(out, prompt)
}

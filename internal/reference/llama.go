//go:build llama

package reference

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// Available reports whether this binary has llama.cpp support.
const Available = true

// Generator owns one llama.cpp model. Predict calls are serialized.
type Generator struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

// New loads modelPath into llama.cpp.
func New(modelPath string, opts Options) (*Generator, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("reference: model path is empty")
	}
	opts = opts.withDefaults()
	m, err := llama.New(modelPath, llama.SetContext(opts.ContextSize))
	if err != nil {
		return nil, err
	}
	return &Generator{model: m, threads: opts.Threads}, nil
}

// Complete greedily generates up to maxTokens after prompt.
func (g *Generator) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model == nil {
		return "", errors.New("reference: model closed")
	}
	g.model.SetTokenCallback(func(string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	text, err := g.model.Predict(prompt,
		llama.SetTokens(max(1, maxTokens)),
		llama.SetThreads(g.threads),
		llama.SetTemperature(0),
		llama.SetTopK(1),
		llama.SetPenalty(1),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return trimEcho(prompt, text), nil
}

// Close frees the llama.cpp model.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != nil {
		g.model.Free()
		g.model = nil
	}
	return nil
}

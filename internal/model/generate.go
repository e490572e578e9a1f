package model

import (
	"context"
	"slices"
)

// GenerateOptions controls greedy decoding.
type GenerateOptions struct {
	MaxNewTokens int
	// StopIDs end generation; the stop token itself is not returned.
	StopIDs []int
	// PreHooks apply to every forward call: the prompt prefill and each
	// single-token decode step.
	PreHooks map[int]PreHook
}

// Generate greedily extends prompt and returns only the new tokens.
// Decoding also stops when the context window is full.
func (m *Model) Generate(ctx context.Context, prompt []int, opts GenerateOptions) ([]int, error) {
	if opts.MaxNewTokens <= 0 {
		return nil, nil
	}
	st := m.NewState()
	fo := ForwardOptions{PreHooks: opts.PreHooks}
	res, err := m.Forward(ctx, prompt, st, fo)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, opts.MaxNewTokens)
	for {
		next := Argmax(res.Logits)
		if slices.Contains(opts.StopIDs, next) {
			break
		}
		out = append(out, next)
		if len(out) >= opts.MaxNewTokens || st.Pos >= m.Config.ContextLength {
			break
		}
		if res, err = m.Forward(ctx, []int{next}, st, fo); err != nil {
			return nil, err
		}
	}
	return out, nil
}

package analyzer

import (
	"context"
	"fmt"
	"time"

	"patchscope/internal/metrics"
	"patchscope/internal/model"
	"patchscope/pkg/types"
)

// Activations runs prompt once and reports, for each requested hidden-state
// index, the L2 norm of every token's vector. A nil layers slice selects
// 0..NumLayers-1; indices outside the hidden-state range are skipped.
func (a *Analyzer) Activations(ctx context.Context, prompt string, layers []int) (res *types.ActivationsResult, err error) {
	if !a.Loaded() {
		return nil, ErrNotLoaded
	}
	if prompt == "" {
		return nil, ErrInvalidArgument("Prompt is required")
	}
	start := time.Now()
	defer func() { metrics.ObserveOp("activations", time.Since(start), err) }()

	ids := a.encode(prompt)
	if err := a.checkContext(ids, 0); err != nil {
		return nil, err
	}
	release, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out, err := a.model.Forward(ctx, ids, a.model.NewState(), model.ForwardOptions{CaptureHidden: true})
	if err != nil {
		return nil, err
	}
	metrics.AddTokens("prompt", len(ids))

	requested := layers
	if layers == nil {
		layers = make([]int, a.model.NumLayers())
		for i := range layers {
			layers[i] = i
		}
	}
	acts := make(map[string][]float32, len(layers))
	for _, idx := range layers {
		li, ok := resolveIndex(idx, len(out.Hidden))
		if !ok {
			continue
		}
		norms := make([]float32, len(ids))
		for t, vec := range out.Hidden[li] {
			norms[t] = model.L2Norm(vec)
		}
		acts[fmt.Sprintf("layer_%d", idx)] = norms
	}
	res = &types.ActivationsResult{
		Activations: acts,
		Tokens:      a.tok.Pieces(ids),
		TokenIDs:    ids,
	}
	took := time.Since(start)
	a.log.Debug().Int("tokens", len(ids)).Int("layers", len(acts)).Dur("took", took).Msg("activations")
	a.record(ctx, "activations", types.ActivationsRequest{Prompt: prompt, LayerIndices: requested}, res, took)
	return res, nil
}

package analyzer

import (
	"context"
	"time"

	"patchscope/internal/metrics"
	"patchscope/internal/model"
	"patchscope/pkg/types"
)

// validatePatch checks presence in the order clients see errors reported.
func validatePatch(req *types.PatchscopeRequest) error {
	switch {
	case req.SourcePrompt == nil:
		return ErrMissingField("source_prompt")
	case req.TargetPrompt == nil:
		return ErrMissingField("target_prompt")
	case req.SourceTokenIdx == nil:
		return ErrMissingField("source_token_idx")
	case req.TargetTokenIdx == nil:
		return ErrMissingField("target_token_idx")
	case req.SourceLayerIdx == nil:
		return ErrMissingField("source_layer_idx")
	case req.TargetLayerIdx == nil:
		return ErrMissingField("target_layer_idx")
	}
	return nil
}

// Patchscope takes the hidden state of one source token at one layer and
// writes it into the target prompt's residual stream at the input of the
// target block, then compares greedy continuations with and without the
// patch.
func (a *Analyzer) Patchscope(ctx context.Context, req types.PatchscopeRequest) (res *types.PatchscopeResult, err error) {
	if !a.Loaded() {
		return nil, ErrNotLoaded
	}
	if err := validatePatch(&req); err != nil {
		return nil, err
	}
	n := DefaultNTokens
	if req.NTokens != nil {
		n = *req.NTokens
	}
	if n < 1 || n > a.maxNewTokens {
		return nil, ErrInvalidArgument("n_tokens must be between 1 and %d", a.maxNewTokens)
	}
	srcTok, tgtTok := *req.SourceTokenIdx, *req.TargetTokenIdx
	srcLayer, tgtLayer := *req.SourceLayerIdx, *req.TargetLayerIdx

	start := time.Now()
	defer func() { metrics.ObserveOp("patchscope", time.Since(start), err) }()

	srcIDs := a.encode(*req.SourcePrompt)
	tgtIDs := a.encode(*req.TargetPrompt)
	if err := a.checkContext(srcIDs, 0); err != nil {
		return nil, err
	}
	if err := a.checkContext(tgtIDs, 0); err != nil {
		return nil, err
	}
	ti, ok := resolveIndex(srcTok, len(srcIDs))
	if !ok {
		return nil, ErrInvalidArgument("source_token_idx %d out of range for %d source tokens", srcTok, len(srcIDs))
	}
	li, ok := resolveIndex(srcLayer, a.model.NumHiddenStates())
	if !ok {
		return nil, ErrInvalidArgument("source_layer_idx %d out of range for %d hidden states", srcLayer, a.model.NumHiddenStates())
	}
	tl, ok := resolveIndex(tgtLayer, a.model.NumLayers())
	if !ok {
		return nil, ErrInvalidArgument("target_layer_idx %d out of range for %d layers", tgtLayer, a.model.NumLayers())
	}

	release, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	src, err := a.model.Forward(ctx, srcIDs, a.model.NewState(), model.ForwardOptions{CaptureHidden: true})
	if err != nil {
		return nil, err
	}
	vec := append([]float32(nil), src.Hidden[li][ti]...)
	metrics.AddTokens("prompt", len(srcIDs))

	stop := a.tok.StopIDs()
	orig, err := a.model.Generate(ctx, tgtIDs, model.GenerateOptions{MaxNewTokens: n, StopIDs: stop})
	if err != nil {
		return nil, err
	}
	patched, err := a.model.Generate(ctx, tgtIDs, model.GenerateOptions{
		MaxNewTokens: n,
		StopIDs:      stop,
		PreHooks:     map[int]model.PreHook{tl: patchHook(tgtTok, vec)},
	})
	if err != nil {
		return nil, err
	}
	metrics.AddTokens("prompt", 2*len(tgtIDs))
	metrics.AddTokens("generated", len(orig)+len(patched))

	res = &types.PatchscopeResult{
		SourcePrompt:     *req.SourcePrompt,
		TargetPrompt:     *req.TargetPrompt,
		OriginalResponse: a.tok.Decode(orig, true),
		PatchedResponse:  a.tok.Decode(patched, true),
		SourceTokens:     a.tok.Pieces(srcIDs),
		TargetTokens:     a.tok.Pieces(tgtIDs),
		PatchConfig: types.PatchConfig{
			SourceTokenIdx: srcTok,
			TargetTokenIdx: tgtTok,
			SourceLayerIdx: srcLayer,
			TargetLayerIdx: tgtLayer,
		},
	}
	if a.baseline != nil {
		if out, err := a.baseline.Complete(ctx, *req.TargetPrompt, n); err != nil {
			a.log.Warn().Err(err).Msg("baseline completion failed")
		} else {
			res.BaselineResponse = out
		}
	}
	took := time.Since(start)
	a.log.Debug().
		Int("source_tokens", len(srcIDs)).
		Int("target_tokens", len(tgtIDs)).
		Int("n_tokens", n).
		Dur("took", took).
		Msg("patchscope")
	a.record(ctx, "patchscope", req, res, took)
	return res, nil
}

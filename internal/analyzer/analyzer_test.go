package analyzer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"patchscope/internal/model"
	"patchscope/internal/testutil"
	"patchscope/pkg/types"
)

type memRecorder struct {
	mu   sync.Mutex
	runs []*types.Run
}

func (r *memRecorder) CreateRun(_ context.Context, run *types.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

type fixedBaseline struct {
	out string
	err error
}

func (b fixedBaseline) Complete(context.Context, string, int) (string, error) { return b.out, b.err }

func newTestAnalyzer(t *testing.T, mutate func(*Config)) *Analyzer {
	t.Helper()
	cfg := Config{ModelPath: testutil.WriteTinyLlama(t, t.TempDir(), testutil.DefaultTiny), Threads: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil { t.Fatalf("new: %v", err) }
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func ptr[T any](v T) *T { return &v }

func fullRequest(src, tgt string, srcTok, tgtTok, srcLayer, tgtLayer int) types.PatchscopeRequest {
	return types.PatchscopeRequest{
		SourcePrompt:   ptr(src),
		TargetPrompt:   ptr(tgt),
		SourceTokenIdx: ptr(srcTok),
		TargetTokenIdx: ptr(tgtTok),
		SourceLayerIdx: ptr(srcLayer),
		TargetLayerIdx: ptr(tgtLayer),
		NTokens:        ptr(4),
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil { t.Fatalf("expected error for empty model path") }
	if _, err := New(Config{ModelPath: "/does/not/exist.gguf"}); err == nil { t.Fatalf("expected error for missing file") }
}

func TestModelInfo(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	info, err := a.ModelInfo()
	if err != nil { t.Fatalf("model info: %v", err) }
	toks, _, _ := testutil.Vocab()
	if info.NumLayers != 3 || info.HiddenSize != 32 || info.VocabSize != len(toks) { t.Fatalf("unexpected info: %+v", info) }
	if info.ModelID != DefaultModelID { t.Fatalf("model id=%q", info.ModelID) }
}

func TestNilAnalyzerNotLoaded(t *testing.T) {
	var a *Analyzer
	if a.Loaded() { t.Fatalf("nil analyzer reports loaded") }
	if _, err := a.ModelInfo(); !IsNotLoaded(err) { t.Fatalf("expected not loaded, got %v", err) }
	if _, err := a.Activations(context.Background(), "x", nil); !IsNotLoaded(err) { t.Fatalf("expected not loaded, got %v", err) }
	if _, err := a.Patchscope(context.Background(), types.PatchscopeRequest{}); !IsNotLoaded(err) { t.Fatalf("expected not loaded, got %v", err) }
}

func TestActivationsDefaultLayers(t *testing.T) {
	rec := &memRecorder{}
	a := newTestAnalyzer(t, func(c *Config) { c.Recorder = rec })
	res, err := a.Activations(context.Background(), "Harry Car", nil)
	if err != nil { t.Fatalf("activations: %v", err) }
	if len(res.TokenIDs) < 3 || res.TokenIDs[0] != 1 { t.Fatalf("token ids=%v", res.TokenIDs) }
	if len(res.Tokens) != len(res.TokenIDs) || res.Tokens[0] != "<s>" { t.Fatalf("tokens=%v", res.Tokens) }
	if len(res.Activations) != 3 { t.Fatalf("expected 3 layers, got %d", len(res.Activations)) }
	for _, k := range []string{"layer_0", "layer_1", "layer_2"} {
		norms, ok := res.Activations[k]
		if !ok || len(norms) != len(res.TokenIDs) { t.Fatalf("%s: %v", k, norms) }
		for _, n := range norms {
			if n <= 0 { t.Fatalf("%s has non-positive norm %v", k, n) }
		}
	}
	if len(rec.runs) != 1 || rec.runs[0].Kind != "activations" { t.Fatalf("recorded runs=%v", rec.runs) }
	if got := string(rec.runs[0].Request); got != `{"prompt":"Harry Car"}` { t.Fatalf("recorded request=%s", got) }

	if _, err := a.Activations(context.Background(), "Harry", []int{-1}); err != nil { t.Fatalf("activations: %v", err) }
	if got := string(rec.runs[1].Request); got != `{"prompt":"Harry","layer_indices":[-1]}` { t.Fatalf("recorded request=%s", got) }
}

func TestActivationsExplicitLayers(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	res, err := a.Activations(context.Background(), "Harry", []int{3, -1, 99, -99})
	if err != nil { t.Fatalf("activations: %v", err) }
	if len(res.Activations) != 2 { t.Fatalf("keys=%v", res.Activations) }
	last, neg := res.Activations["layer_3"], res.Activations["layer_-1"]
	if last == nil || neg == nil { t.Fatalf("missing final layer keys: %v", res.Activations) }
	for i := range last {
		if last[i] != neg[i] { t.Fatalf("layer_3 and layer_-1 differ at %d", i) }
	}
}

func TestActivationsRequiresPrompt(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	_, err := a.Activations(context.Background(), "", nil)
	if !IsInvalidArgument(err) || err.Error() != "Prompt is required" { t.Fatalf("got %v", err) }
}

func TestPatchscopeMissingFieldOrder(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	req := fullRequest("Harry", "Man -> man, x ->", -1, -1, 1, 1)
	cases := []struct {
		clear func(*types.PatchscopeRequest)
		field string
	}{
		{func(r *types.PatchscopeRequest) { r.SourcePrompt = nil; r.TargetLayerIdx = nil }, "source_prompt"},
		{func(r *types.PatchscopeRequest) { r.TargetPrompt = nil; r.SourceTokenIdx = nil }, "target_prompt"},
		{func(r *types.PatchscopeRequest) { r.SourceTokenIdx = nil }, "source_token_idx"},
		{func(r *types.PatchscopeRequest) { r.TargetTokenIdx = nil }, "target_token_idx"},
		{func(r *types.PatchscopeRequest) { r.SourceLayerIdx = nil }, "source_layer_idx"},
		{func(r *types.PatchscopeRequest) { r.TargetLayerIdx = nil }, "target_layer_idx"},
	}
	for _, tc := range cases {
		r := req
		tc.clear(&r)
		_, err := a.Patchscope(context.Background(), r)
		if !IsInvalidArgument(err) || err.Error() != "Missing field: "+tc.field { t.Fatalf("%s: got %v", tc.field, err) }
	}
}

func TestPatchscopeSelfPatchIsIdentity(t *testing.T) {
	rec := &memRecorder{}
	a := newTestAnalyzer(t, func(c *Config) { c.Recorder = rec })
	prompt := "Man -> man, Car -> car, x ->"
	for _, layer := range []int{0, 1, 2} {
		res, err := a.Patchscope(context.Background(), fullRequest(prompt, prompt, -3, -3, layer, layer))
		if err != nil { t.Fatalf("patchscope: %v", err) }
		if res.PatchedResponse != res.OriginalResponse { t.Fatalf("layer %d: patched %q != original %q", layer, res.PatchedResponse, res.OriginalResponse) }
		if res.PatchConfig.SourceLayerIdx != layer || res.PatchConfig.TargetTokenIdx != -3 { t.Fatalf("patch config=%+v", res.PatchConfig) }
		if res.SourceTokens[0] != "<s>" || len(res.TargetTokens) != len(res.SourceTokens) { t.Fatalf("tokens=%v", res.TargetTokens) }
	}
	if len(rec.runs) != 3 { t.Fatalf("recorded %d runs", len(rec.runs)) }
	if !strings.Contains(string(rec.runs[0].Request), `"source_prompt":"Man`) { t.Fatalf("request json=%s", rec.runs[0].Request) }
	if !strings.Contains(string(rec.runs[0].Response), `"patched_response"`) { t.Fatalf("response json=%s", rec.runs[0].Response) }
}

func TestPatchscopeValidation(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.MaxNewTokens = 8 })
	cases := map[string]types.PatchscopeRequest{
		"source token": fullRequest("Harry", "x ->", 5, -1, 1, 1),
		"source layer": fullRequest("Harry", "x ->", -1, -1, 4, 1),
		"target layer": fullRequest("Harry", "x ->", -1, -1, 1, 3),
		"neg layer":    fullRequest("Harry", "x ->", -1, -1, -5, 1),
	}
	zero := fullRequest("Harry", "x ->", -1, -1, 1, 1)
	zero.NTokens = ptr(0)
	cases["zero tokens"] = zero
	many := fullRequest("Harry", "x ->", -1, -1, 1, 1)
	many.NTokens = ptr(9)
	cases["too many tokens"] = many
	for name, req := range cases {
		if _, err := a.Patchscope(context.Background(), req); !IsInvalidArgument(err) { t.Fatalf("%s: expected invalid argument, got %v", name, err) }
	}
}

func TestPatchscopeDefaultsAndBaseline(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.Baseline = fixedBaseline{out: " man"} })
	req := fullRequest("Harry", "Man -> man, x ->", -1, -1, 1, 1)
	req.NTokens = nil
	res, err := a.Patchscope(context.Background(), req)
	if err != nil { t.Fatalf("patchscope: %v", err) }
	if res.BaselineResponse != " man" { t.Fatalf("baseline=%q", res.BaselineResponse) }
	if res.SourcePrompt != "Harry" { t.Fatalf("source prompt=%q", res.SourcePrompt) }

	b := newTestAnalyzer(t, func(c *Config) { c.Baseline = fixedBaseline{err: errors.New("offline")} })
	res, err = b.Patchscope(context.Background(), req)
	if err != nil { t.Fatalf("baseline failure must not fail the request: %v", err) }
	if res.BaselineResponse != "" { t.Fatalf("baseline=%q", res.BaselineResponse) }
}

func TestPatchscopeDeterministic(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	req := fullRequest("Harry", "Man -> man, x ->", -1, -2, 2, 1)
	r1, err := a.Patchscope(context.Background(), req)
	if err != nil { t.Fatalf("patchscope: %v", err) }
	r2, err := a.Patchscope(context.Background(), req)
	if err != nil { t.Fatalf("patchscope: %v", err) }
	if r1.PatchedResponse != r2.PatchedResponse || r1.OriginalResponse != r2.OriginalResponse { t.Fatalf("results differ: %+v vs %+v", r1, r2) }
}

func TestConcurrentRequests(t *testing.T) {
	a := newTestAnalyzer(t, func(c *Config) { c.MaxInflight = 2 })
	want, err := a.Activations(context.Background(), "Harry", nil)
	if err != nil { t.Fatalf("activations: %v", err) }
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.Activations(context.Background(), "Harry", nil)
			if err == nil && got.Activations["layer_2"][1] != want.Activations["layer_2"][1] {
				err = errors.New("concurrent result differs")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil { t.Fatalf("concurrent: %v", err) }
	}
}

func TestCloseRejectsWork(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	if err := a.Close(context.Background()); err != nil { t.Fatalf("close: %v", err) }
	if a.Loaded() { t.Fatalf("closed analyzer reports loaded") }
	if _, err := a.Activations(context.Background(), "Harry", nil); !IsNotLoaded(err) { t.Fatalf("expected not loaded, got %v", err) }
	if err := a.Close(context.Background()); err != nil { t.Fatalf("second close: %v", err) }
}

func TestCloseWaitsForInflight(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	release, err := a.begin(context.Background())
	if err != nil { t.Fatalf("begin: %v", err) }
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Close(ctx); !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("expected deadline, got %v", err) }
	if a.Loaded() { t.Fatalf("analyzer still admits work after close") }
	if n := len(a.queueCh); n != 1 { t.Fatalf("timed-out close kept %d queue slots, want only the in-flight one", n) }
	if a.unmapped { t.Fatalf("model unmapped while a request was in flight") }
	release()

	if err := a.Close(context.Background()); err != nil { t.Fatalf("retry close: %v", err) }
	if !a.unmapped { t.Fatalf("retry close did not unmap the model") }
	if err := a.Close(context.Background()); err != nil { t.Fatalf("third close: %v", err) }
}

// A state taken from a different prompt, layer and position must move the
// patched continuation away from the original for at least one setting.
func TestPatchscopeForeignStateChangesGeneration(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	targets := []string{"Man -> man, x ->", "Respond only with the completion to this pattern: Man -> man, Car -> car, x ->", "x"}
	changed := 0
	for _, tgt := range targets {
		for _, layer := range []int{0, 1} {
			res, err := a.Patchscope(context.Background(), fullRequest("Harry Car Man", tgt, -1, -1, 3, layer))
			if err != nil { t.Fatalf("patchscope: %v", err) }
			if res.PatchedResponse != res.OriginalResponse {
				changed++
			}
		}
	}
	if changed == 0 { t.Fatalf("no patch changed the generated text") }
}

func TestPatchHookDecodeSteps(t *testing.T) {
	vec := []float32{9, 9}
	rows := func(n int) [][]float32 {
		h := make([][]float32, n)
		for i := range h {
			h[i] = []float32{0, 0}
		}
		return h
	}
	prefill := rows(5)
	patchHook(-1, vec)(prefill)
	if prefill[4][0] != 9 || prefill[3][0] != 0 { t.Fatalf("-1 on prefill: %v", prefill) }

	step := rows(1)
	patchHook(-1, vec)(step)
	if step[0][0] != 0 { t.Fatalf("-1 must not patch a single-token step: %v", step) }
	patchHook(0, vec)(step)
	if step[0][0] != 9 { t.Fatalf("0 must patch a single-token step: %v", step) }
}

// Counts the forward calls a target hook modifies during a real generation:
// index 0 hits the prefill and every decode step, index -1 only the prefill.
func TestPatchHookAppliedPerForwardCall(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	ids := a.encode("Man -> man, x ->")
	vec := make([]float32, a.model.Config.Hidden)
	for i := range vec {
		vec[i] = 3
	}
	countPatched := func(idx int) int {
		patched := 0
		inner := patchHook(idx, vec)
		hook := func(h [][]float32) {
			before := make([]float32, 0, len(h)*len(vec))
			for _, r := range h {
				before = append(before, r...)
			}
			inner(h)
			k := 0
			for _, r := range h {
				for _, v := range r {
					if v != before[k] {
						patched++
						return
					}
					k++
				}
			}
		}
		_, err := a.model.Generate(context.Background(), ids, model.GenerateOptions{MaxNewTokens: 4, PreHooks: map[int]model.PreHook{1: hook}})
		if err != nil { t.Fatalf("generate: %v", err) }
		return patched
	}
	if got := countPatched(0); got != 4 { t.Fatalf("index 0 patched %d forward calls, want 4", got) }
	if got := countPatched(-1); got != 1 { t.Fatalf("index -1 patched %d forward calls, want 1", got) }
}

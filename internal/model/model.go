// Package model runs llama-family transformers from GGUF weights on the CPU.
//
// A Model is immutable after Load. All per-request state (KV cache, layer
// hooks, captured hidden states) is passed in per call, so one Model serves
// concurrent requests.
package model

import (
	"fmt"
	"math"
	"runtime"

	"patchscope/internal/gguf"
)

type block struct {
	attnNorm []float32
	ffnNorm  []float32
	wq, wk   *matrix
	wv, wo   *matrix
	bq, bk   []float32
	bv       []float32
	gate, up *matrix
	down     *matrix
}

// Model is a loaded transformer.
type Model struct {
	Config Config

	embed      *matrix
	output     *matrix
	outputNorm []float32
	blocks     []block
	invFreq    []float32
	threads    int
}

// LoadOptions tunes Load.
type LoadOptions struct {
	// Threads bounds matmul parallelism; 0 means GOMAXPROCS.
	Threads int
}

// Load builds a Model over f. Quantized weights alias f's mapping, so f must
// stay open for the Model's lifetime.
func Load(f *gguf.File, opts LoadOptions) (*Model, error) {
	cfg, err := ConfigFromGGUF(f)
	if err != nil {
		return nil, err
	}
	m := &Model{Config: cfg, threads: opts.Threads}
	if m.threads <= 0 {
		m.threads = runtime.GOMAXPROCS(0)
	}
	l := loader{f: f}

	m.embed = l.matrix("token_embd.weight", cfg.VocabSize, cfg.Hidden)
	m.outputNorm = l.vector("output_norm.weight", cfg.Hidden)
	if _, ok := f.Tensor("output.weight"); ok {
		m.output = l.matrix("output.weight", cfg.VocabSize, cfg.Hidden)
	} else {
		m.output = m.embed
	}
	m.blocks = make([]block, cfg.NumLayers)
	for i := range m.blocks {
		p := fmt.Sprintf("blk.%d.", i)
		b := &m.blocks[i]
		b.attnNorm = l.vector(p+"attn_norm.weight", cfg.Hidden)
		b.ffnNorm = l.vector(p+"ffn_norm.weight", cfg.Hidden)
		b.wq = l.matrix(p+"attn_q.weight", cfg.QDim(), cfg.Hidden)
		b.wk = l.matrix(p+"attn_k.weight", cfg.KVDim(), cfg.Hidden)
		b.wv = l.matrix(p+"attn_v.weight", cfg.KVDim(), cfg.Hidden)
		b.wo = l.matrix(p+"attn_output.weight", cfg.Hidden, cfg.QDim())
		b.bq = l.optVector(p+"attn_q.bias", cfg.QDim())
		b.bk = l.optVector(p+"attn_k.bias", cfg.KVDim())
		b.bv = l.optVector(p+"attn_v.bias", cfg.KVDim())
		b.gate = l.matrix(p+"ffn_gate.weight", cfg.FFN, cfg.Hidden)
		b.up = l.matrix(p+"ffn_up.weight", cfg.FFN, cfg.Hidden)
		b.down = l.matrix(p+"ffn_down.weight", cfg.Hidden, cfg.FFN)
	}
	freqFactors := l.optVector("rope_freqs.weight", cfg.HeadDim/2)
	if l.err != nil {
		return nil, l.err
	}

	m.invFreq = make([]float32, cfg.HeadDim/2)
	for i := range m.invFreq {
		inv := 1 / math.Pow(float64(cfg.RopeBase), float64(2*i)/float64(cfg.HeadDim))
		if freqFactors != nil {
			inv /= float64(freqFactors[i])
		}
		m.invFreq[i] = float32(inv)
	}
	return m, nil
}

// loader accumulates the first error so Load reads as a flat list.
type loader struct {
	f   *gguf.File
	err error
}

func (l *loader) matrix(name string, rows, cols int) *matrix {
	if l.err != nil {
		return nil
	}
	t, ok := l.f.Tensor(name)
	if !ok {
		l.err = fmt.Errorf("model: missing tensor %s", name)
		return nil
	}
	m, err := newMatrix(t)
	if err == nil {
		err = m.expect(rows, cols)
	}
	if err != nil {
		l.err = fmt.Errorf("model: %w", err)
		return nil
	}
	return m
}

func (l *loader) vector(name string, n int) []float32 {
	if l.err != nil {
		return nil
	}
	if _, ok := l.f.Tensor(name); !ok {
		l.err = fmt.Errorf("model: missing tensor %s", name)
		return nil
	}
	return l.optVector(name, n)
}

func (l *loader) optVector(name string, n int) []float32 {
	if l.err != nil {
		return nil
	}
	t, ok := l.f.Tensor(name)
	if !ok {
		return nil
	}
	if int(t.Elements()) != n {
		l.err = fmt.Errorf("model: tensor %s has %d elements, want %d", name, t.Elements(), n)
		return nil
	}
	v, err := t.Float32s()
	if err != nil {
		l.err = fmt.Errorf("model: %w", err)
		return nil
	}
	return v
}

// NumLayers is the number of transformer blocks.
func (m *Model) NumLayers() int { return m.Config.NumLayers }

// NumHiddenStates is the length of captured hidden states: the embeddings,
// one entry per block boundary, and the final normalized output.
func (m *Model) NumHiddenStates() int { return m.Config.NumLayers + 1 }

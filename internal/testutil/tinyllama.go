// Package testutil builds small synthetic GGUF models for tests.
package testutil

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"patchscope/internal/gguf"
)

// Tiny describes a randomly initialized llama model.
type Tiny struct {
	Layers  int
	Hidden  int
	Heads   int
	KVHeads int
	FFN     int
	Context int
	Seed    int64
	// F16 stores the matrices as float16 instead of float32.
	F16 bool
	// Untied writes a separate output.weight.
	Untied bool
}

// DefaultTiny is small enough for fast tests but has every feature the
// forward pass exercises (GQA, several blocks).
var DefaultTiny = Tiny{Layers: 3, Hidden: 32, Heads: 4, KVHeads: 2, FFN: 64, Context: 128, Seed: 7}

// Words are whole-word pieces present in the fixture vocabulary.
var Words = []string{"▁Harry", "▁Man", "▁man", "▁Car", "▁car", "▁x", "▁->", ","}

// Vocab returns the fixture's SentencePiece tokens, scores and types.
func Vocab() ([]string, []float32, []int32) {
	toks := []string{"<unk>", "<s>", "</s>"}
	types := []int32{2, 3, 3}
	for b := 0; b < 256; b++ {
		toks = append(toks, fmt.Sprintf("<0x%02X>", b))
		types = append(types, 6)
	}
	pieces := []string{"▁", ":", "-", ">"}
	for c := 'a'; c <= 'z'; c++ {
		pieces = append(pieces, string(c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		pieces = append(pieces, string(c))
	}
	pieces = append(pieces, "▁H", "▁Ha", "▁Har", "▁Harr", "▁M", "▁Ma", "▁m", "▁ma", "▁C", "▁Ca", "▁c", "▁ca", "->")
	pieces = append(pieces, Words...)
	for _, p := range pieces {
		toks = append(toks, p)
		types = append(types, 1)
	}
	scores := make([]float32, len(toks))
	for i := range scores {
		// Longer pieces win merges.
		scores[i] = float32(len(toks[i]))
	}
	return toks, scores, types
}

// WriteTinyLlama writes the model to dir and returns its path.
func WriteTinyLlama(tb testing.TB, dir string, cfg Tiny) string {
	tb.Helper()
	path := filepath.Join(dir, fmt.Sprintf("tiny-llama-%d.gguf", cfg.Seed))
	if err := BuildTinyLlama(cfg).WriteFile(path); err != nil {
		tb.Fatalf("write tiny llama: %v", err)
	}
	return path
}

// BuildTinyLlama assembles the GGUF writer for cfg.
func BuildTinyLlama(cfg Tiny) *gguf.Writer {
	toks, scores, types := Vocab()
	vocab := len(toks)
	headDim := cfg.Hidden / cfg.Heads
	rng := rand.New(rand.NewSource(cfg.Seed))

	w := gguf.NewWriter()
	w.Set("general.architecture", "llama")
	w.Set("general.name", "tiny-llama")
	w.Set("llama.block_count", uint32(cfg.Layers))
	w.Set("llama.embedding_length", uint32(cfg.Hidden))
	w.Set("llama.feed_forward_length", uint32(cfg.FFN))
	w.Set("llama.attention.head_count", uint32(cfg.Heads))
	w.Set("llama.attention.head_count_kv", uint32(cfg.KVHeads))
	w.Set("llama.context_length", uint32(cfg.Context))
	w.Set("llama.attention.layer_norm_rms_epsilon", float32(1e-5))
	w.Set("llama.rope.freq_base", float32(10000))
	w.Set("tokenizer.ggml.model", "llama")
	w.Set("tokenizer.ggml.tokens", toks)
	w.Set("tokenizer.ggml.scores", scores)
	w.Set("tokenizer.ggml.token_type", types)
	w.Set("tokenizer.ggml.bos_token_id", uint32(1))
	w.Set("tokenizer.ggml.eos_token_id", uint32(2))
	w.Set("tokenizer.ggml.unknown_token_id", uint32(0))
	w.Set("tokenizer.ggml.add_bos_token", true)

	mat := func(name string, rows, cols int, scale float64) {
		data := make([]float32, rows*cols)
		for i := range data {
			data[i] = float32(rng.NormFloat64() * scale)
		}
		dims := []uint64{uint64(cols), uint64(rows)}
		if cfg.F16 {
			w.AddF16(name, dims, data)
		} else {
			w.AddF32(name, dims, data)
		}
	}
	ones := func(name string, n int) {
		data := make([]float32, n)
		for i := range data {
			data[i] = 1 + float32(rng.NormFloat64()*0.05)
		}
		w.AddF32(name, []uint64{uint64(n)}, data)
	}

	mat("token_embd.weight", vocab, cfg.Hidden, 1)
	ones("output_norm.weight", cfg.Hidden)
	if cfg.Untied {
		mat("output.weight", vocab, cfg.Hidden, 0.5)
	}
	for l := 0; l < cfg.Layers; l++ {
		p := fmt.Sprintf("blk.%d.", l)
		ones(p+"attn_norm.weight", cfg.Hidden)
		ones(p+"ffn_norm.weight", cfg.Hidden)
		mat(p+"attn_q.weight", cfg.Heads*headDim, cfg.Hidden, 0.3)
		mat(p+"attn_k.weight", cfg.KVHeads*headDim, cfg.Hidden, 0.3)
		mat(p+"attn_v.weight", cfg.KVHeads*headDim, cfg.Hidden, 0.3)
		mat(p+"attn_output.weight", cfg.Hidden, cfg.Heads*headDim, 0.3)
		mat(p+"ffn_gate.weight", cfg.FFN, cfg.Hidden, 0.3)
		mat(p+"ffn_up.weight", cfg.FFN, cfg.Hidden, 0.3)
		mat(p+"ffn_down.weight", cfg.Hidden, cfg.FFN, 0.3)
	}
	return w
}

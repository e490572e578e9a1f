package model

import (
	"fmt"

	"patchscope/internal/gguf"
)

// Config holds the hyperparameters read from <arch>.* metadata.
type Config struct {
	Arch          string
	NumLayers     int
	Hidden        int
	FFN           int
	Heads         int
	KVHeads       int
	HeadDim       int
	VocabSize     int
	ContextLength int
	NormEps       float32
	RopeBase      float32
	// RopeNeox rotates (i, i+d/2) pairs instead of adjacent (2i, 2i+1).
	RopeNeox bool
}

var supportedArch = map[string]bool{
	"llama":   false,
	"mistral": false,
	"qwen2":   true,
}

const defaultContextLength = 4096

// ConfigFromGGUF extracts and validates the hyperparameters.
func ConfigFromGGUF(f *gguf.File) (Config, error) {
	arch := f.Architecture()
	neox, ok := supportedArch[arch]
	if !ok {
		return Config{}, fmt.Errorf("model: unsupported architecture %q", arch)
	}
	u := func(key string) int {
		v, _ := f.Uint(arch + "." + key)
		return int(v)
	}
	c := Config{
		Arch:          arch,
		NumLayers:     u("block_count"),
		Hidden:        u("embedding_length"),
		FFN:           u("feed_forward_length"),
		Heads:         u("attention.head_count"),
		KVHeads:       u("attention.head_count_kv"),
		ContextLength: u("context_length"),
		NormEps:       1e-5,
		RopeBase:      10000,
		RopeNeox:      neox,
	}
	if v, ok := f.Float(arch + ".attention.layer_norm_rms_epsilon"); ok {
		c.NormEps = float32(v)
	}
	if v, ok := f.Float(arch + ".rope.freq_base"); ok {
		c.RopeBase = float32(v)
	}
	if c.KVHeads == 0 {
		c.KVHeads = c.Heads
	}
	if c.ContextLength == 0 {
		c.ContextLength = defaultContextLength
	}
	if c.Heads > 0 {
		c.HeadDim = c.Hidden / c.Heads
	}
	if v := u("attention.key_length"); v > 0 {
		c.HeadDim = v
	}
	if toks, ok := f.Strings("tokenizer.ggml.tokens"); ok {
		c.VocabSize = len(toks)
	}
	if v := u("vocab_size"); v > 0 {
		c.VocabSize = v
	}
	return c, c.Validate()
}

// Validate checks the shape invariants the forward pass relies on.
func (c Config) Validate() error {
	switch {
	case c.NumLayers <= 0:
		return fmt.Errorf("model: invalid block_count %d", c.NumLayers)
	case c.Hidden <= 0 || c.FFN <= 0:
		return fmt.Errorf("model: invalid embedding/ffn size %d/%d", c.Hidden, c.FFN)
	case c.Heads <= 0 || c.KVHeads <= 0 || c.Heads%c.KVHeads != 0:
		return fmt.Errorf("model: invalid head counts %d/%d", c.Heads, c.KVHeads)
	case c.HeadDim <= 0 || c.HeadDim%2 != 0:
		return fmt.Errorf("model: invalid head dim %d", c.HeadDim)
	case c.VocabSize <= 0:
		return fmt.Errorf("model: invalid vocab size %d", c.VocabSize)
	}
	return nil
}

// QDim and KVDim are the projected widths of queries and keys/values.
func (c Config) QDim() int  { return c.Heads * c.HeadDim }
func (c Config) KVDim() int { return c.KVHeads * c.HeadDim }

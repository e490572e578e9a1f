// Package tokenizer implements the two vocabularies llama-family GGUF files
// carry: SentencePiece ("llama") and GPT-2 style byte-level BPE ("gpt2").
package tokenizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"patchscope/internal/gguf"
)

// Token types as stored in tokenizer.ggml.token_type.
const (
	TypeNormal      int32 = 1
	TypeUnknown     int32 = 2
	TypeControl     int32 = 3
	TypeUserDefined int32 = 4
	TypeUnused      int32 = 5
	TypeByte        int32 = 6
)

const (
	ModelSPM = "llama"
	ModelBPE = "gpt2"
)

// Vocab is the raw tokenizer description. Ids are -1 when absent.
type Vocab struct {
	Model          string
	Pre            string
	Tokens         []string
	Scores         []float32
	Types          []int32
	Merges         []string
	BOS, EOS, EOT  int
	UNK, Pad       int
	AddBOS         bool
	AddSpacePrefix bool
}

// Tokenizer encodes text to ids and back. It is immutable and safe for
// concurrent use.
type Tokenizer struct {
	v       Vocab
	ids     map[string]int
	special []string
	enc     encoder
}

type encoder interface {
	encode(text string, first bool) []int
	decode(ids []int, skipSpecial bool) string
}

// FromGGUF reads the tokenizer.ggml.* metadata.
func FromGGUF(f *gguf.File) (*Tokenizer, error) {
	model, _ := f.String("tokenizer.ggml.model")
	toks, ok := f.Strings("tokenizer.ggml.tokens")
	if !ok || len(toks) == 0 {
		return nil, errors.New("tokenizer: tokenizer.ggml.tokens missing")
	}
	v := Vocab{
		Model:          model,
		Tokens:         toks,
		BOS:            optID(f, "tokenizer.ggml.bos_token_id"),
		EOS:            optID(f, "tokenizer.ggml.eos_token_id"),
		EOT:            optID(f, "tokenizer.ggml.eot_token_id"),
		UNK:            optID(f, "tokenizer.ggml.unknown_token_id"),
		Pad:            optID(f, "tokenizer.ggml.padding_token_id"),
		AddBOS:         true,
		AddSpacePrefix: model == ModelSPM,
	}
	v.Scores, _ = f.Floats("tokenizer.ggml.scores")
	v.Types, _ = f.Ints("tokenizer.ggml.token_type")
	v.Merges, _ = f.Strings("tokenizer.ggml.merges")
	v.Pre, _ = f.String("tokenizer.ggml.pre")
	if b, ok := f.Bool("tokenizer.ggml.add_bos_token"); ok {
		v.AddBOS = b
	}
	if b, ok := f.Bool("tokenizer.ggml.add_space_prefix"); ok {
		v.AddSpacePrefix = b
	}
	return New(v)
}

func optID(f *gguf.File, key string) int {
	if n, ok := f.Uint(key); ok {
		return int(n)
	}
	return -1
}

// New validates v and builds the lookup tables.
func New(v Vocab) (*Tokenizer, error) {
	n := len(v.Tokens)
	if n == 0 {
		return nil, errors.New("tokenizer: empty vocabulary")
	}
	if v.Scores != nil && len(v.Scores) != n {
		return nil, fmt.Errorf("tokenizer: %d scores for %d tokens", len(v.Scores), n)
	}
	if v.Types != nil && len(v.Types) != n {
		return nil, fmt.Errorf("tokenizer: %d token types for %d tokens", len(v.Types), n)
	}
	for _, id := range []*int{&v.BOS, &v.EOS, &v.EOT, &v.UNK, &v.Pad} {
		if *id >= n {
			*id = -1
		}
	}
	// Without a dedicated pad token, padding reuses EOS.
	if v.Pad < 0 {
		v.Pad = v.EOS
	}
	t := &Tokenizer{v: v, ids: make(map[string]int, n)}
	for i, s := range v.Tokens {
		if _, dup := t.ids[s]; !dup {
			t.ids[s] = i
		}
		if typ := t.typeOf(i); (typ == TypeControl || typ == TypeUserDefined) && s != "" {
			t.special = append(t.special, s)
		}
	}
	// Longest match first when splitting on special tokens.
	sort.SliceStable(t.special, func(i, j int) bool { return len(t.special[i]) > len(t.special[j]) })

	switch v.Model {
	case ModelSPM, "":
		t.enc = newSPM(t)
	case ModelBPE:
		enc, err := newBPE(t)
		if err != nil {
			return nil, err
		}
		t.enc = enc
	default:
		return nil, fmt.Errorf("tokenizer: unsupported model %q", v.Model)
	}
	return t, nil
}

func (t *Tokenizer) typeOf(id int) int32 {
	if t.v.Types == nil || id < 0 || id >= len(t.v.Types) {
		return TypeNormal
	}
	return t.v.Types[id]
}

// IsSpecial reports whether id is a control or unknown token.
func (t *Tokenizer) IsSpecial(id int) bool {
	switch t.typeOf(id) {
	case TypeControl, TypeUnknown:
		return true
	}
	return id == t.v.BOS || id == t.v.EOS || id == t.v.EOT
}

// VocabSize returns the number of tokens.
func (t *Tokenizer) VocabSize() int { return len(t.v.Tokens) }

// Model returns the tokenizer model name.
func (t *Tokenizer) Model() string { return t.v.Model }

func (t *Tokenizer) BOS() int { return t.v.BOS }
func (t *Tokenizer) EOS() int { return t.v.EOS }
func (t *Tokenizer) Pad() int { return t.v.Pad }

// AddBOS reports the file's default for prepending BOS.
func (t *Tokenizer) AddBOS() bool { return t.v.AddBOS && t.v.BOS >= 0 }

// StopIDs are the ids that end generation.
func (t *Tokenizer) StopIDs() []int {
	var out []int
	for _, id := range []int{t.v.EOS, t.v.EOT} {
		if id >= 0 && (len(out) == 0 || out[0] != id) {
			out = append(out, id)
		}
	}
	return out
}

// Token returns the raw vocabulary entry for id.
func (t *Tokenizer) Token(id int) string {
	if id < 0 || id >= len(t.v.Tokens) {
		return ""
	}
	return t.v.Tokens[id]
}

// Encode tokenizes text, prepending BOS when addBOS is set and the
// vocabulary has one. Special token strings in text map to their ids.
func (t *Tokenizer) Encode(text string, addBOS bool) []int {
	var out []int
	if addBOS && t.v.BOS >= 0 {
		out = append(out, t.v.BOS)
	}
	first := true
	for _, seg := range t.splitSpecial(text) {
		if seg.id >= 0 {
			out = append(out, seg.id)
		} else if seg.text != "" {
			out = append(out, t.enc.encode(seg.text, first)...)
		}
		first = false
	}
	return out
}

// Decode renders ids as text. skipSpecial drops control tokens.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	return t.enc.decode(ids, skipSpecial)
}

// Piece decodes a single id.
func (t *Tokenizer) Piece(id int) string {
	return t.enc.decode([]int{id}, false)
}

// Pieces decodes each id on its own.
func (t *Tokenizer) Pieces(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = t.Piece(id)
	}
	return out
}

type segment struct {
	text string
	id   int
}

func (t *Tokenizer) splitSpecial(text string) []segment {
	if len(t.special) == 0 {
		return []segment{{text: text, id: -1}}
	}
	var segs []segment
	for len(text) > 0 {
		pos, match := -1, ""
		for _, s := range t.special {
			if i := strings.Index(text, s); i >= 0 && (pos < 0 || i < pos) {
				pos, match = i, s
			}
		}
		if pos < 0 {
			segs = append(segs, segment{text: text, id: -1})
			break
		}
		if pos > 0 {
			segs = append(segs, segment{text: text[:pos], id: -1})
		}
		segs = append(segs, segment{id: t.ids[match]})
		text = text[pos+len(match):]
	}
	return segs
}

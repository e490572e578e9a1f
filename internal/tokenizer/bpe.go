package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Pre-tokenizer patterns. Both need negative lookahead, which RE2 lacks.
const (
	preGPT2   = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`
	preLlama3 = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`
)

type bpe struct {
	t     *Tokenizer
	ranks map[string]int
	pre   *regexp2.Regexp
	enc   [256]rune
	dec   map[rune]byte
}

func newBPE(t *Tokenizer) (*bpe, error) {
	pattern := preGPT2
	switch t.v.Pre {
	case "llama3", "llama-bpe", "llama-v3", "smaug-bpe":
		pattern = preLlama3
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: pre-tokenizer: %w", err)
	}
	b := &bpe{t: t, ranks: make(map[string]int, len(t.v.Merges)), pre: re, dec: make(map[rune]byte, 256)}
	for i, m := range t.v.Merges {
		if _, dup := b.ranks[m]; !dup {
			b.ranks[m] = i
		}
	}
	b.enc = byteRunes()
	for i, r := range b.enc {
		b.dec[r] = byte(i)
	}
	return b, nil
}

// byteRunes is the GPT-2 reversible byte to printable rune mapping.
func byteRunes() [256]rune {
	var out [256]rune
	printable := func(c int) bool {
		return (c >= '!' && c <= '~') || (c >= 0xA1 && c <= 0xAC) || (c >= 0xAE && c <= 0xFF)
	}
	n := 0
	for c := 0; c < 256; c++ {
		if printable(c) {
			out[c] = rune(c)
		} else {
			out[c] = rune(256 + n)
			n++
		}
	}
	return out
}

func (b *bpe) encode(text string, _ bool) []int {
	var out []int
	m, err := b.pre.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, b.word(m.String())...)
		m, err = b.pre.FindNextMatch(m)
	}
	return out
}

func (b *bpe) word(w string) []int {
	var sb strings.Builder
	for i := 0; i < len(w); i++ {
		sb.WriteRune(b.enc[w[i]])
	}
	mapped := sb.String()
	if id, ok := b.t.ids[mapped]; ok {
		return []int{id}
	}
	syms := make([]string, 0, utf8.RuneCountInString(mapped))
	for _, r := range mapped {
		syms = append(syms, string(r))
	}
	for len(syms) > 1 {
		best, bestRank := -1, 0
		for i := 0; i+1 < len(syms); i++ {
			if r, ok := b.ranks[syms[i]+" "+syms[i+1]]; ok && (best < 0 || r < bestRank) {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		left, right := syms[best], syms[best+1]
		merged := syms[:0:0]
		for i := 0; i < len(syms); i++ {
			if i+1 < len(syms) && syms[i] == left && syms[i+1] == right {
				merged = append(merged, left+right)
				i++
				continue
			}
			merged = append(merged, syms[i])
		}
		syms = merged
	}
	out := make([]int, 0, len(syms))
	for _, s := range syms {
		if id, ok := b.t.ids[s]; ok {
			out = append(out, id)
		} else if b.t.v.UNK >= 0 {
			out = append(out, b.t.v.UNK)
		}
	}
	return out
}

func (b *bpe) decode(ids []int, skipSpecial bool) string {
	var raw []byte
	for _, id := range ids {
		if id < 0 || id >= len(b.t.v.Tokens) {
			continue
		}
		if skipSpecial && b.t.IsSpecial(id) {
			continue
		}
		tok := b.t.v.Tokens[id]
		if typ := b.t.typeOf(id); typ == TypeControl || typ == TypeUserDefined {
			raw = append(raw, tok...)
			continue
		}
		for _, r := range tok {
			if c, ok := b.dec[r]; ok {
				raw = append(raw, c)
			} else {
				raw = utf8.AppendRune(raw, r)
			}
		}
	}
	return string(raw)
}

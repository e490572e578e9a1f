package tokenizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const spmSpace = "▁"

type spm struct {
	t     *Tokenizer
	bytes [256]int
}

func newSPM(t *Tokenizer) *spm {
	s := &spm{t: t}
	for b := range s.bytes {
		id, ok := t.ids[fmt.Sprintf("<0x%02X>", b)]
		if !ok {
			id = -1
		}
		s.bytes[b] = id
	}
	return s
}

func (s *spm) score(id int) float32 {
	if s.t.v.Scores == nil {
		return 0
	}
	return s.t.v.Scores[id]
}

// encode greedily merges the adjacent pair whose concatenation has the
// highest score, leftmost on ties, until no pair is in the vocabulary.
func (s *spm) encode(text string, first bool) []int {
	text = strings.ReplaceAll(text, " ", spmSpace)
	if first && s.t.v.AddSpacePrefix {
		text = spmSpace + text
	}
	syms := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		syms = append(syms, string(r))
	}
	for len(syms) > 1 {
		best, bestScore := -1, float32(math.Inf(-1))
		for i := 0; i+1 < len(syms); i++ {
			id, ok := s.t.ids[syms[i]+syms[i+1]]
			if !ok || s.t.typeOf(id) == TypeUnused {
				continue
			}
			if sc := s.score(id); best < 0 || sc > bestScore {
				best, bestScore = i, sc
			}
		}
		if best < 0 {
			break
		}
		syms[best] += syms[best+1]
		syms = append(syms[:best+1], syms[best+2:]...)
	}

	out := make([]int, 0, len(syms))
	for _, sym := range syms {
		if id, ok := s.t.ids[sym]; ok {
			out = append(out, id)
			continue
		}
		for i := 0; i < len(sym); i++ {
			if id := s.bytes[sym[i]]; id >= 0 {
				out = append(out, id)
			} else if s.t.v.UNK >= 0 {
				out = append(out, s.t.v.UNK)
			}
		}
	}
	return out
}

func (s *spm) decode(ids []int, skipSpecial bool) string {
	var b strings.Builder
	leading := true
	for _, id := range ids {
		if id < 0 || id >= len(s.t.v.Tokens) {
			continue
		}
		typ := s.t.typeOf(id)
		if skipSpecial && s.t.IsSpecial(id) {
			continue
		}
		if typ == TypeByte {
			if v, ok := byteToken(s.t.v.Tokens[id]); ok {
				b.WriteByte(v)
				leading = false
				continue
			}
		}
		piece := s.t.v.Tokens[id]
		if typ != TypeControl && typ != TypeUserDefined {
			piece = strings.ReplaceAll(piece, spmSpace, " ")
			// The dummy prefix added on encode is dropped from the first piece.
			if leading && s.t.v.AddSpacePrefix {
				piece = strings.TrimPrefix(piece, " ")
			}
			leading = false
		}
		b.WriteString(piece)
	}
	return b.String()
}

// byteToken parses "<0xNN>".
func byteToken(tok string) (byte, bool) {
	if len(tok) != 6 || !strings.HasPrefix(tok, "<0x") || tok[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(tok[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

package model

import (
	"context"
	"fmt"
	"math"
)

// State is the per-sequence KV cache. It is not safe for concurrent use.
type State struct {
	// Pos is the number of tokens already processed.
	Pos int
	k   [][]float32
	v   [][]float32
}

// NewState returns an empty cache for m.
func (m *Model) NewState() *State {
	return &State{k: make([][]float32, m.Config.NumLayers), v: make([][]float32, m.Config.NumLayers)}
}

// PreHook sees a block's input for the current chunk, one row per token, and
// may modify it in place before the block runs.
type PreHook func(hidden [][]float32)

// ForwardOptions controls one Forward call.
type ForwardOptions struct {
	// PreHooks maps a block index to the hook run on its input.
	PreHooks map[int]PreHook
	// CaptureHidden records hidden states for every block boundary.
	CaptureHidden bool
}

// ForwardResult holds the next-token logits for the last position of the
// chunk and, when requested, the hidden states.
type ForwardResult struct {
	Logits []float32
	// Hidden has NumHiddenStates entries of [chunk][hidden]: index 0 is the
	// embedding output, index i the input of block i, and the last entry
	// the final normalized output.
	Hidden [][][]float32
}

// Forward runs tokens through the model at positions st.Pos onwards and
// advances st.
func (m *Model) Forward(ctx context.Context, tokens []int, st *State, opts ForwardOptions) (*ForwardResult, error) {
	c := m.Config
	n := len(tokens)
	if n == 0 {
		return nil, fmt.Errorf("model: empty token chunk")
	}
	if st.Pos+n > c.ContextLength {
		return nil, fmt.Errorf("model: %d tokens exceed context length %d", st.Pos+n, c.ContextLength)
	}
	for _, id := range tokens {
		if id < 0 || id >= c.VocabSize {
			return nil, fmt.Errorf("model: token id %d out of range", id)
		}
	}

	x := newMatrix2D(n, c.Hidden)
	for t, id := range tokens {
		copy(x[t], m.embed.row(id, x[t]))
	}
	res := &ForwardResult{}
	if opts.CaptureHidden {
		res.Hidden = make([][][]float32, 0, m.NumHiddenStates())
	}

	s := newScratch(c, n)
	for l := range m.blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hook := opts.PreHooks[l]; hook != nil {
			hook(x)
		}
		if opts.CaptureHidden {
			res.Hidden = append(res.Hidden, clone2D(x))
		}
		m.block(l, x, st, s)
	}

	for t := range x {
		rmsNorm(x[t], x[t], m.outputNorm, c.NormEps)
	}
	if opts.CaptureHidden {
		res.Hidden = append(res.Hidden, clone2D(x))
	}
	logits := newMatrix2D(1, c.VocabSize)
	m.output.mul(logits, x[n-1:], m.threads)
	res.Logits = logits[0]
	st.Pos += n
	return res, nil
}

type scratch struct {
	xn, att    [][]float32
	q, k, v, o [][]float32
	gate, up   [][]float32
	down       [][]float32
}

func newScratch(c Config, n int) *scratch {
	return &scratch{
		xn:   newMatrix2D(n, c.Hidden),
		att:  newMatrix2D(n, c.QDim()),
		q:    newMatrix2D(n, c.QDim()),
		k:    newMatrix2D(n, c.KVDim()),
		v:    newMatrix2D(n, c.KVDim()),
		o:    newMatrix2D(n, c.Hidden),
		gate: newMatrix2D(n, c.FFN),
		up:   newMatrix2D(n, c.FFN),
		down: newMatrix2D(n, c.Hidden),
	}
}

func addBias(rows [][]float32, b []float32) {
	if b == nil {
		return
	}
	for _, r := range rows {
		for i := range r {
			r[i] += b[i]
		}
	}
}

// block applies transformer block l to x in place.
func (m *Model) block(l int, x [][]float32, st *State, s *scratch) {
	c := m.Config
	b := &m.blocks[l]
	kvDim := c.KVDim()

	for t := range x {
		rmsNorm(s.xn[t], x[t], b.attnNorm, c.NormEps)
	}
	b.wq.mul(s.q, s.xn, m.threads)
	b.wk.mul(s.k, s.xn, m.threads)
	b.wv.mul(s.v, s.xn, m.threads)
	addBias(s.q, b.bq)
	addBias(s.k, b.bk)
	addBias(s.v, b.bv)
	for t := range x {
		pos := st.Pos + t
		rope(s.q[t], pos, c.Heads, c.HeadDim, m.invFreq, c.RopeNeox)
		rope(s.k[t], pos, c.KVHeads, c.HeadDim, m.invFreq, c.RopeNeox)
		st.k[l] = append(st.k[l], s.k[t]...)
		st.v[l] = append(st.v[l], s.v[t]...)
	}

	scale := float32(1 / math.Sqrt(float64(c.HeadDim)))
	group := c.Heads / c.KVHeads
	keys, vals := st.k[l], st.v[l]
	for t := range x {
		span := st.Pos + t + 1
		scores := make([]float32, span)
		out := s.att[t]
		clear(out)
		for h := 0; h < c.Heads; h++ {
			q := s.q[t][h*c.HeadDim : (h+1)*c.HeadDim]
			kvOff := (h / group) * c.HeadDim
			for p := 0; p < span; p++ {
				scores[p] = dot(q, keys[p*kvDim+kvOff:p*kvDim+kvOff+c.HeadDim]) * scale
			}
			softmax(scores)
			o := out[h*c.HeadDim : (h+1)*c.HeadDim]
			for p := 0; p < span; p++ {
				w := scores[p]
				vv := vals[p*kvDim+kvOff : p*kvDim+kvOff+c.HeadDim]
				for i := range o {
					o[i] += w * vv[i]
				}
			}
		}
	}
	b.wo.mul(s.o, s.att, m.threads)
	for t := range x {
		for i := range x[t] {
			x[t][i] += s.o[t][i]
		}
	}

	for t := range x {
		rmsNorm(s.xn[t], x[t], b.ffnNorm, c.NormEps)
	}
	b.gate.mul(s.gate, s.xn, m.threads)
	b.up.mul(s.up, s.xn, m.threads)
	for t := range x {
		for i, g := range s.gate[t] {
			s.gate[t][i] = silu(g) * s.up[t][i]
		}
	}
	b.down.mul(s.down, s.gate, m.threads)
	for t := range x {
		for i := range x[t] {
			x[t][i] += s.down[t][i]
		}
	}
}

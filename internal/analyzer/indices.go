package analyzer

import "patchscope/internal/model"

// resolveIndex maps a possibly negative index into [0, n).
func resolveIndex(idx, n int) (int, bool) {
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// patchPosition is the row a target hook overwrites in a chunk of n rows.
// Only chunks longer than |idx| are patched, so during single-token decode
// steps only index 0 applies.
func patchPosition(idx, n int) (int, bool) {
	abs := idx
	if abs < 0 {
		abs = -abs
	}
	if n <= abs {
		return 0, false
	}
	if idx < 0 {
		idx += n
	}
	return idx, true
}

// patchHook overwrites row idx of every chunk long enough to hold it with vec.
func patchHook(idx int, vec []float32) model.PreHook {
	return func(h [][]float32) {
		if p, ok := patchPosition(idx, len(h)); ok {
			copy(h[p], vec)
		}
	}
}

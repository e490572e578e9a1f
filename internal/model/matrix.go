package model

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"patchscope/internal/gguf"
)

// matrix is a rows x cols weight kept in its on-disk encoding. Quantized
// rows are expanded on demand so resident memory stays close to file size.
type matrix struct {
	name     string
	rows     int
	cols     int
	typ      gguf.GGMLType
	raw      []byte
	f32      []float32
	rowBytes int
}

func newMatrix(t *gguf.TensorInfo) (*matrix, error) {
	if len(t.Dims) < 1 || len(t.Dims) > 2 {
		return nil, fmt.Errorf("tensor %s: want 1 or 2 dims, got %v", t.Name, t.Dims)
	}
	for _, d := range t.Dims {
		if d == 0 {
			return nil, fmt.Errorf("tensor %s: empty shape %v", t.Name, t.Dims)
		}
	}
	if !t.Type.Dequantizable() {
		return nil, fmt.Errorf("tensor %s: unsupported type %s", t.Name, t.Type)
	}
	m := &matrix{name: t.Name, rows: t.Rows(), cols: t.Cols(), typ: t.Type}
	m.rowBytes = t.Type.RowBytes(m.cols)
	if m.rowBytes < 0 {
		return nil, fmt.Errorf("tensor %s: %d columns not a multiple of %s block size", t.Name, m.cols, t.Type)
	}
	if t.Type == gguf.GGMLTypeF32 {
		v, err := t.Float32s()
		if err != nil {
			return nil, err
		}
		m.f32 = v
		return m, nil
	}
	m.raw = t.Data
	return m, nil
}

func (m *matrix) expect(rows, cols int) error {
	if m.rows != rows || m.cols != cols {
		return fmt.Errorf("tensor %s: shape %dx%d, want %dx%d", m.name, m.rows, m.cols, rows, cols)
	}
	return nil
}

// row returns row r, dequantizing into buf when needed.
func (m *matrix) row(r int, buf []float32) []float32 {
	if m.f32 != nil {
		return m.f32[r*m.cols : (r+1)*m.cols]
	}
	// Type and size were validated in newMatrix.
	_ = gguf.Dequantize(m.typ, m.raw[r*m.rowBytes:(r+1)*m.rowBytes], buf[:m.cols])
	return buf[:m.cols]
}

// mul computes dst[t] = W · x[t] for every t, sharing each dequantized row
// across the whole chunk. Rows are split across up to threads goroutines.
func (m *matrix) mul(dst, x [][]float32, threads int) {
	if threads < 1 {
		threads = 1
	}
	chunk := (m.rows + threads*4 - 1) / (threads * 4)
	if chunk < 16 {
		chunk = 16
	}
	var g errgroup.Group
	g.SetLimit(threads)
	for start := 0; start < m.rows; start += chunk {
		end := min(start+chunk, m.rows)
		g.Go(func() error {
			buf := make([]float32, m.cols)
			for r := start; r < end; r++ {
				w := m.row(r, buf)
				for t := range x {
					dst[t][r] = dot(w, x[t])
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

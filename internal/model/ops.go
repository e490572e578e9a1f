package model

import "math"

func dot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return s0 + s1 + s2 + s3
}

// rmsNorm writes x / rms(x) * w into dst.
func rmsNorm(dst, x, w []float32, eps float32) {
	var ss float64
	for _, v := range x {
		ss += float64(v) * float64(v)
	}
	scale := float32(1 / math.Sqrt(ss/float64(len(x))+float64(eps)))
	for i, v := range x {
		dst[i] = v * scale * w[i]
	}
}

// rope rotates each head of v in place for position pos.
func rope(v []float32, pos, heads, headDim int, invFreq []float32, neox bool) {
	half := headDim / 2
	for h := 0; h < heads; h++ {
		x := v[h*headDim : (h+1)*headDim]
		for i := 0; i < half; i++ {
			theta := float64(pos) * float64(invFreq[i])
			sin, cos := math.Sincos(theta)
			a, b := 2*i, 2*i+1
			if neox {
				a, b = i, i+half
			}
			x0, x1 := float64(x[a]), float64(x[b])
			x[a] = float32(x0*cos - x1*sin)
			x[b] = float32(x0*sin + x1*cos)
		}
	}
}

func softmax(x []float32) {
	maxv := x[0]
	for _, v := range x[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - maxv))
		x[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range x {
		x[i] *= inv
	}
}

func silu(x float32) float32 {
	return x / (1 + float32(math.Exp(float64(-x))))
}

// Argmax returns the index of the largest value, lowest index on ties.
func Argmax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

// L2Norm returns the Euclidean norm of v.
func L2Norm(v []float32) float32 {
	var ss float64
	for _, x := range v {
		ss += float64(x) * float64(x)
	}
	return float32(math.Sqrt(ss))
}

func newMatrix2D(rows, cols int) [][]float32 {
	buf := make([]float32, rows*cols)
	out := make([][]float32, rows)
	for i := range out {
		out[i] = buf[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}

func clone2D(x [][]float32) [][]float32 {
	if len(x) == 0 {
		return nil
	}
	out := newMatrix2D(len(x), len(x[0]))
	for i := range x {
		copy(out[i], x[i])
	}
	return out
}

package gguf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Set("general.architecture", "llama")
	w.Set("llama.block_count", uint32(3))
	w.Set("llama.attention.layer_norm_rms_epsilon", float32(1e-5))
	w.Set("tokenizer.ggml.add_bos_token", true)
	w.Set("tokenizer.ggml.tokens", []string{"a", "b", "c"})
	w.Set("tokenizer.ggml.scores", []float32{0, -1, -2})
	w.Set("tokenizer.ggml.token_type", []int32{1, 1, 3})
	w.AddF32("a.weight", []uint64{4, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	w.AddF16("b.weight", []uint64{3}, []float32{0.5, -2, 1024})

	path := filepath.Join(t.TempDir(), "m.gguf")
	if err := w.WriteFile(path); err != nil { t.Fatalf("write: %v", err) }
	f, err := Open(path)
	if err != nil { t.Fatalf("open: %v", err) }
	defer f.Close()

	if f.Version != 3 { t.Fatalf("version=%d", f.Version) }
	if f.Architecture() != "llama" { t.Fatalf("arch=%q", f.Architecture()) }
	if n, ok := f.Uint("llama.block_count"); !ok || n != 3 { t.Fatalf("block_count=%d ok=%v", n, ok) }
	if v, ok := f.Float("llama.attention.layer_norm_rms_epsilon"); !ok || math.Abs(v-1e-5) > 1e-9 { t.Fatalf("eps=%v", v) }
	if b, ok := f.Bool("tokenizer.ggml.add_bos_token"); !ok || !b { t.Fatalf("add_bos=%v ok=%v", b, ok) }
	if toks, ok := f.Strings("tokenizer.ggml.tokens"); !ok || len(toks) != 3 || toks[2] != "c" { t.Fatalf("tokens=%v", toks) }
	if types, ok := f.Ints("tokenizer.ggml.token_type"); !ok || types[2] != 3 { t.Fatalf("types=%v", types) }

	a, ok := f.Tensor("a.weight")
	if !ok { t.Fatalf("missing a.weight") }
	if a.Rows() != 2 || a.Cols() != 4 { t.Fatalf("shape rows=%d cols=%d", a.Rows(), a.Cols()) }
	vals, err := a.Float32s()
	if err != nil { t.Fatalf("dequant: %v", err) }
	if vals[0] != 1 || vals[7] != 8 { t.Fatalf("vals=%v", vals) }

	b, _ := f.Tensor("b.weight")
	hv, err := b.Float32s()
	if err != nil { t.Fatalf("dequant f16: %v", err) }
	if hv[0] != 0.5 || hv[1] != -2 || hv[2] != 1024 { t.Fatalf("f16 vals=%v", hv) }
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte{1, 2}); !errors.Is(err, io.ErrUnexpectedEOF) { t.Fatalf("expected truncation error, got %v", err) }

	var bad bytes.Buffer
	binary.Write(&bad, binary.LittleEndian, uint32(0xdeadbeef))
	bad.Write(make([]byte, 20))
	var me ErrInvalidMagic
	if _, err := Parse(bad.Bytes()); !errors.As(err, &me) { t.Fatalf("expected magic error, got %v", err) }

	var old bytes.Buffer
	binary.Write(&old, binary.LittleEndian, Magic)
	binary.Write(&old, binary.LittleEndian, uint32(1))
	old.Write(make([]byte, 16))
	var ve ErrUnsupportedVersion
	if _, err := Parse(old.Bytes()); !errors.As(err, &ve) || ve.Version != 1 { t.Fatalf("expected version error, got %v", err) }

	// Tensor data beyond EOF.
	w := NewWriter()
	w.AddF32("x", []uint64{8}, make([]float32, 8))
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil { t.Fatalf("write: %v", err) }
	if _, err := Parse(buf.Bytes()[:buf.Len()-16]); err == nil { t.Fatalf("expected error for truncated tensor data") }
}

func TestParseRejectsZeroDim(t *testing.T) {
	w := NewWriter()
	w.AddF32("token_embd.weight", []uint64{0, 4}, nil)
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil { t.Fatalf("write: %v", err) }
	if _, err := Parse(buf.Bytes()); err == nil || !strings.Contains(err.Error(), "zero-length dim") { t.Fatalf("expected zero dim error, got %v", err) }

	ti := &TensorInfo{Name: "x", Dims: []uint64{0, 4}}
	if ti.Rows() != 0 || ti.Cols() != 0 { t.Fatalf("rows=%d cols=%d", ti.Rows(), ti.Cols()) }
}

func TestHalfConversions(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, 65504, 6.103515625e-05, 5.960464477539063e-08, -3.25}
	for _, c := range cases {
		if got := HalfToFloat32(Float32ToHalf(c)); got != c { t.Fatalf("round trip %v -> %v", c, got) }
	}
	if !math.IsInf(float64(HalfToFloat32(Float32ToHalf(1e9))), 1) { t.Fatalf("expected +Inf on overflow") }
	if HalfToFloat32(Float32ToHalf(1e-12)) != 0 { t.Fatalf("expected underflow to zero") }
	if BF16ToFloat32(0x3f80) != 1 { t.Fatalf("bf16 1.0") }
}

func TestDequantQ8_0(t *testing.T) {
	blk := make([]byte, 34)
	binary.LittleEndian.PutUint16(blk, Float32ToHalf(0.5))
	for i := 0; i < 32; i++ {
		blk[2+i] = byte(int8(i - 16))
	}
	out := make([]float32, 32)
	if err := Dequantize(GGMLTypeQ8_0, blk, out); err != nil { t.Fatalf("dequant: %v", err) }
	for i, v := range out {
		if want := 0.5 * float32(i-16); v != want { t.Fatalf("out[%d]=%v want %v", i, v, want) }
	}
}

func TestDequantQ4_0(t *testing.T) {
	blk := make([]byte, 18)
	binary.LittleEndian.PutUint16(blk, Float32ToHalf(2))
	for j := 0; j < 16; j++ {
		blk[2+j] = byte(j) | byte(15-j)<<4
	}
	out := make([]float32, 32)
	if err := Dequantize(GGMLTypeQ4_0, blk, out); err != nil { t.Fatalf("dequant: %v", err) }
	for j := 0; j < 16; j++ {
		if out[j] != 2*float32(j-8) { t.Fatalf("low[%d]=%v", j, out[j]) }
		if out[j+16] != 2*float32(15-j-8) { t.Fatalf("high[%d]=%v", j, out[j+16]) }
	}
}

func TestDequantQ4_K(t *testing.T) {
	blk := make([]byte, 144)
	binary.LittleEndian.PutUint16(blk[0:], Float32ToHalf(1))
	binary.LittleEndian.PutUint16(blk[2:], Float32ToHalf(0.5))
	// sub-blocks 0..3 use the low 6 bits: scale 2, min 4
	for j := 0; j < 4; j++ {
		blk[4+j] = 2
		blk[8+j] = 4
	}
	// sub-blocks 4..7: scale 1, min 0 packed into scales[8..11]
	for j := 8; j < 12; j++ {
		blk[4+j] = 0x01
	}
	for l := 0; l < 128; l++ {
		blk[16+l] = 0x53 // low nibble 3, high nibble 5
	}
	out := make([]float32, 256)
	if err := Dequantize(GGMLTypeQ4_K, blk, out); err != nil { t.Fatalf("dequant: %v", err) }
	// first 64 values: sub-blocks 0 (low) and 1 (high)
	if out[0] != 2*3-0.5*4 { t.Fatalf("out[0]=%v", out[0]) }
	if out[32] != 2*5-0.5*4 { t.Fatalf("out[32]=%v", out[32]) }
	// last 64 values: sub-blocks 6 and 7, scale 1 min 0
	if out[192] != 3 || out[255] != 5 { t.Fatalf("tail=%v,%v", out[192], out[255]) }
}

func TestDequantQ6_K(t *testing.T) {
	blk := make([]byte, 210)
	for i := 0; i < 128; i++ {
		blk[i] = 0x21 // low nibble 1, high nibble 2
	}
	for i := 0; i < 16; i++ {
		blk[192+i] = 1
	}
	binary.LittleEndian.PutUint16(blk[208:], Float32ToHalf(1))
	out := make([]float32, 256)
	if err := Dequantize(GGMLTypeQ6_K, blk, out); err != nil { t.Fatalf("dequant: %v", err) }
	// qh is zero so q = nibble - 32
	if out[0] != 1-32 || out[64] != 2-32 || out[255] != 2-32 { t.Fatalf("q6k=%v %v %v", out[0], out[64], out[255]) }
}

func TestDequantRejects(t *testing.T) {
	if err := Dequantize(GGMLTypeQ5_K, make([]byte, 176), make([]float32, 256)); err == nil { t.Fatalf("expected unsupported type error") }
	if err := Dequantize(GGMLTypeQ8_0, make([]byte, 10), make([]float32, 32)); err == nil { t.Fatalf("expected short buffer error") }
	if err := Dequantize(GGMLTypeQ8_0, make([]byte, 34), make([]float32, 20)); err == nil { t.Fatalf("expected partial block error") }
}

package gguf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Dequantize expands src, holding len(dst) elements of type t, into dst.
// len(dst) must be a whole number of blocks.
func Dequantize(t GGMLType, src []byte, dst []float32) error {
	need := t.RowBytes(len(dst))
	if need < 0 || !t.Dequantizable() {
		return fmt.Errorf("gguf: cannot dequantize %s x %d", t, len(dst))
	}
	if len(src) < need {
		return fmt.Errorf("gguf: %s needs %d bytes, have %d", t, need, len(src))
	}
	switch t {
	case GGMLTypeF32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case GGMLTypeF16:
		for i := range dst {
			dst[i] = HalfToFloat32(binary.LittleEndian.Uint16(src[2*i:]))
		}
	case GGMLTypeBF16:
		for i := range dst {
			dst[i] = BF16ToFloat32(binary.LittleEndian.Uint16(src[2*i:]))
		}
	case GGMLTypeQ8_0:
		for b := 0; b < len(dst)/32; b++ {
			blk := src[b*34:]
			d := HalfToFloat32(binary.LittleEndian.Uint16(blk))
			out := dst[b*32 : b*32+32]
			for j := range out {
				out[j] = d * float32(int8(blk[2+j]))
			}
		}
	case GGMLTypeQ4_0:
		for b := 0; b < len(dst)/32; b++ {
			blk := src[b*18:]
			d := HalfToFloat32(binary.LittleEndian.Uint16(blk))
			qs := blk[2:18]
			out := dst[b*32 : b*32+32]
			for j := 0; j < 16; j++ {
				out[j] = d * float32(int(qs[j]&0x0f)-8)
				out[j+16] = d * float32(int(qs[j]>>4)-8)
			}
		}
	case GGMLTypeQ4_K:
		for b := 0; b < len(dst)/256; b++ {
			dequantQ4K(src[b*144:b*144+144], dst[b*256:b*256+256])
		}
	case GGMLTypeQ6_K:
		for b := 0; b < len(dst)/256; b++ {
			dequantQ6K(src[b*210:b*210+210], dst[b*256:b*256+256])
		}
	}
	return nil
}

// scaleMinK4 unpacks the 6-bit scale and min for sub-block j of a Q4_K block.
func scaleMinK4(j int, q []byte) (uint8, uint8) {
	if j < 4 {
		return q[j] & 63, q[j+4] & 63
	}
	sc := (q[j+4] & 0x0f) | ((q[j-4] >> 6) << 4)
	m := (q[j+4] >> 4) | ((q[j] >> 6) << 4)
	return sc, m
}

// Q4_K block: d f16, dmin f16, scales[12], qs[128].
func dequantQ4K(blk []byte, out []float32) {
	d := HalfToFloat32(binary.LittleEndian.Uint16(blk[0:]))
	dmin := HalfToFloat32(binary.LittleEndian.Uint16(blk[2:]))
	scales := blk[4:16]
	q := blk[16:144]
	is := 0
	y := 0
	for j := 0; j < 256; j += 64 {
		sc, m := scaleMinK4(is, scales)
		d1, m1 := d*float32(sc), dmin*float32(m)
		sc, m = scaleMinK4(is+1, scales)
		d2, m2 := d*float32(sc), dmin*float32(m)
		for l := 0; l < 32; l++ {
			out[y+l] = d1*float32(q[l]&0x0f) - m1
		}
		for l := 0; l < 32; l++ {
			out[y+32+l] = d2*float32(q[l]>>4) - m2
		}
		q = q[32:]
		y += 64
		is += 2
	}
}

// Q6_K block: ql[128], qh[64], scales[16] int8, d f16.
func dequantQ6K(blk []byte, out []float32) {
	ql := blk[0:128]
	qh := blk[128:192]
	sc := blk[192:208]
	d := HalfToFloat32(binary.LittleEndian.Uint16(blk[208:]))
	for n := 0; n < 2; n++ {
		y := out[n*128:]
		for l := 0; l < 32; l++ {
			is := l / 16
			q1 := int(int8((ql[l]&0x0f)|((qh[l]>>0)&3)<<4)) - 32
			q2 := int(int8((ql[l+32]&0x0f)|((qh[l]>>2)&3)<<4)) - 32
			q3 := int(int8((ql[l]>>4)|((qh[l]>>4)&3)<<4)) - 32
			q4 := int(int8((ql[l+32]>>4)|((qh[l]>>6)&3)<<4)) - 32
			y[l] = d * float32(int8(sc[is])) * float32(q1)
			y[l+32] = d * float32(int8(sc[is+2])) * float32(q2)
			y[l+64] = d * float32(int8(sc[is+4])) * float32(q3)
			y[l+96] = d * float32(int8(sc[is+6])) * float32(q4)
		}
		ql = ql[64:]
		qh = qh[32:]
		sc = sc[8:]
	}
}

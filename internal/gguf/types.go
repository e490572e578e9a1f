package gguf

import "fmt"

// Magic is "GGUF" read as a little-endian uint32.
const Magic uint32 = 0x46554747

const defaultAlignment = 32

// ValueType tags a metadata value.
type ValueType uint32

const (
	TypeUint8 ValueType = iota
	TypeInt8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeFloat32
	TypeBool
	TypeString
	TypeArray
	TypeUint64
	TypeInt64
	TypeFloat64
)

// GGMLType is the storage type of a tensor.
type GGMLType uint32

const (
	GGMLTypeF32  GGMLType = 0
	GGMLTypeF16  GGMLType = 1
	GGMLTypeQ4_0 GGMLType = 2
	GGMLTypeQ4_1 GGMLType = 3
	GGMLTypeQ5_0 GGMLType = 6
	GGMLTypeQ5_1 GGMLType = 7
	GGMLTypeQ8_0 GGMLType = 8
	GGMLTypeQ8_1 GGMLType = 9
	GGMLTypeQ2_K GGMLType = 10
	GGMLTypeQ3_K GGMLType = 11
	GGMLTypeQ4_K GGMLType = 12
	GGMLTypeQ5_K GGMLType = 13
	GGMLTypeQ6_K GGMLType = 14
	GGMLTypeQ8_K GGMLType = 15
	GGMLTypeBF16 GGMLType = 30
)

var typeNames = map[GGMLType]string{
	GGMLTypeF32:  "F32",
	GGMLTypeF16:  "F16",
	GGMLTypeQ4_0: "Q4_0",
	GGMLTypeQ4_1: "Q4_1",
	GGMLTypeQ5_0: "Q5_0",
	GGMLTypeQ5_1: "Q5_1",
	GGMLTypeQ8_0: "Q8_0",
	GGMLTypeQ8_1: "Q8_1",
	GGMLTypeQ2_K: "Q2_K",
	GGMLTypeQ3_K: "Q3_K",
	GGMLTypeQ4_K: "Q4_K",
	GGMLTypeQ5_K: "Q5_K",
	GGMLTypeQ6_K: "Q6_K",
	GGMLTypeQ8_K: "Q8_K",
	GGMLTypeBF16: "BF16",
}

func (t GGMLType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("GGMLType(%d)", uint32(t))
}

// blockLayout describes how many elements a block holds and its size on disk.
type blockLayout struct {
	elems int
	bytes int
}

var layouts = map[GGMLType]blockLayout{
	GGMLTypeF32:  {1, 4},
	GGMLTypeF16:  {1, 2},
	GGMLTypeBF16: {1, 2},
	GGMLTypeQ4_0: {32, 18},
	GGMLTypeQ4_1: {32, 20},
	GGMLTypeQ5_0: {32, 22},
	GGMLTypeQ5_1: {32, 24},
	GGMLTypeQ8_0: {32, 34},
	GGMLTypeQ8_1: {32, 36},
	GGMLTypeQ2_K: {256, 84},
	GGMLTypeQ3_K: {256, 110},
	GGMLTypeQ4_K: {256, 144},
	GGMLTypeQ5_K: {256, 176},
	GGMLTypeQ6_K: {256, 210},
	GGMLTypeQ8_K: {256, 292},
}

// BlockSize returns the number of elements per quantization block.
func (t GGMLType) BlockSize() int {
	if l, ok := layouts[t]; ok {
		return l.elems
	}
	return 0
}

// RowBytes returns the storage size of n consecutive elements, or -1 when
// the type is unknown or n is not a whole number of blocks.
func (t GGMLType) RowBytes(n int) int {
	l, ok := layouts[t]
	if !ok || n%l.elems != 0 {
		return -1
	}
	return n / l.elems * l.bytes
}

// Dequantizable reports whether Dequantize supports t.
func (t GGMLType) Dequantizable() bool {
	switch t {
	case GGMLTypeF32, GGMLTypeF16, GGMLTypeBF16, GGMLTypeQ4_0, GGMLTypeQ8_0, GGMLTypeQ4_K, GGMLTypeQ6_K:
		return true
	}
	return false
}

// ErrInvalidMagic is returned when the file does not start with GGUF.
type ErrInvalidMagic struct{ Magic uint32 }

func (e ErrInvalidMagic) Error() string { return fmt.Sprintf("gguf: invalid magic 0x%08x", e.Magic) }

// ErrUnsupportedVersion is returned for GGUF versions other than 2 and 3.
type ErrUnsupportedVersion struct{ Version uint32 }

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("gguf: unsupported version %d", e.Version)
}

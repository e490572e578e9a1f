package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// TensorInfo describes one tensor and points at its bytes inside the file.
type TensorInfo struct {
	Name string
	// Dims are in GGML order: Dims[0] is the contiguous (column) dimension.
	Dims   []uint64
	Type   GGMLType
	Offset uint64
	Data   []byte
}

// Elements returns the total element count.
func (t *TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Rows and Cols view the tensor as a 2-D matrix with Cols contiguous.
func (t *TensorInfo) Cols() int {
	if len(t.Dims) == 0 {
		return 0
	}
	return int(t.Dims[0])
}

func (t *TensorInfo) Rows() int {
	if len(t.Dims) == 0 || t.Dims[0] == 0 {
		return 0
	}
	return int(t.Elements() / t.Dims[0])
}

// Float32s dequantizes the whole tensor.
func (t *TensorInfo) Float32s() ([]float32, error) {
	out := make([]float32, t.Elements())
	if err := Dequantize(t.Type, t.Data, out); err != nil {
		return nil, fmt.Errorf("tensor %s: %w", t.Name, err)
	}
	return out, nil
}

// File is a parsed GGUF container. Tensor data aliases the mapped file and
// is only valid until Close.
type File struct {
	Path      string
	Version   uint32
	Metadata  map[string]any
	Tensors   []*TensorInfo
	Alignment uint64

	byName map[string]*TensorInfo
	data   []byte
	unmap  func() error
}

// Open maps path into memory and parses it.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	st, err := fh.Stat()
	if err != nil {
		return nil, err
	}
	data, unmap, err := mapFile(fh, st.Size())
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		_ = unmap()
		return nil, err
	}
	f.Path = path
	f.unmap = unmap
	return f, nil
}

// Close releases the mapping. Tensor data must not be used afterwards.
func (f *File) Close() error {
	if f == nil || f.unmap == nil {
		return nil
	}
	err := f.unmap()
	f.unmap = nil
	f.data = nil
	return err
}

// Tensor looks up a tensor by name.
func (f *File) Tensor(name string) (*TensorInfo, bool) {
	t, ok := f.byName[name]
	return t, ok
}

// Parse decodes a GGUF image held in memory.
func Parse(data []byte) (*File, error) {
	c := &cursor{buf: data}
	magic, err := c.u32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrInvalidMagic{Magic: magic}
	}
	version, err := c.u32()
	if err != nil {
		return nil, err
	}
	if version < 2 || version > 3 {
		return nil, ErrUnsupportedVersion{Version: version}
	}
	nTensors, err := c.u64()
	if err != nil {
		return nil, err
	}
	nKV, err := c.u64()
	if err != nil {
		return nil, err
	}

	f := &File{
		Version:  version,
		Metadata: make(map[string]any, nKV),
		byName:   make(map[string]*TensorInfo, nTensors),
		data:     data,
	}
	for i := uint64(0); i < nKV; i++ {
		key, err := c.str()
		if err != nil {
			return nil, fmt.Errorf("metadata %d key: %w", i, err)
		}
		vt, err := c.u32()
		if err != nil {
			return nil, err
		}
		v, err := c.value(ValueType(vt))
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", key, err)
		}
		f.Metadata[key] = v
	}

	for i := uint64(0); i < nTensors; i++ {
		name, err := c.str()
		if err != nil {
			return nil, fmt.Errorf("tensor %d name: %w", i, err)
		}
		nd, err := c.u32()
		if err != nil {
			return nil, err
		}
		if nd > 4 {
			return nil, fmt.Errorf("tensor %s: %d dims", name, nd)
		}
		dims := make([]uint64, nd)
		for j := range dims {
			if dims[j], err = c.u64(); err != nil {
				return nil, err
			}
			if dims[j] == 0 {
				return nil, fmt.Errorf("tensor %s: zero-length dim %d", name, j)
			}
		}
		typ, err := c.u32()
		if err != nil {
			return nil, err
		}
		off, err := c.u64()
		if err != nil {
			return nil, err
		}
		t := &TensorInfo{Name: name, Dims: dims, Type: GGMLType(typ), Offset: off}
		f.Tensors = append(f.Tensors, t)
		f.byName[name] = t
	}

	f.Alignment = defaultAlignment
	if a, ok := f.Uint("general.alignment"); ok && a > 0 {
		f.Alignment = a
	}
	start := alignUp(uint64(c.off), f.Alignment)
	for _, t := range f.Tensors {
		size := t.Type.RowBytes(int(t.Elements()))
		if size < 0 {
			// Unknown layouts keep no data; Dequantize reports them on use.
			continue
		}
		lo := start + t.Offset
		hi := lo + uint64(size)
		if hi > uint64(len(data)) || lo > hi {
			return nil, fmt.Errorf("tensor %s: data [%d,%d) beyond file size %d: %w", t.Name, lo, hi, len(data), io.ErrUnexpectedEOF)
		}
		t.Data = data[lo:hi:hi]
	}
	return f, nil
}

func alignUp(n, a uint64) uint64 {
	return (n + a - 1) / a * a
}

// cursor is a bounds-checked little-endian reader over the mapped bytes.
type cursor struct {
	buf []byte
	off int
}

var errShort = fmt.Errorf("gguf: truncated: %w", io.ErrUnexpectedEOF)

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, errShort
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) str() (string, error) {
	n, err := c.u64()
	if err != nil {
		return "", err
	}
	if n > uint64(len(c.buf)) {
		return "", errShort
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) value(t ValueType) (any, error) {
	switch t {
	case TypeUint8:
		return c.u8()
	case TypeInt8:
		v, err := c.u8()
		return int8(v), err
	case TypeUint16:
		return c.u16()
	case TypeInt16:
		v, err := c.u16()
		return int16(v), err
	case TypeUint32:
		return c.u32()
	case TypeInt32:
		v, err := c.u32()
		return int32(v), err
	case TypeFloat32:
		v, err := c.u32()
		return math.Float32frombits(v), err
	case TypeBool:
		v, err := c.u8()
		return v != 0, err
	case TypeString:
		return c.str()
	case TypeUint64:
		return c.u64()
	case TypeInt64:
		v, err := c.u64()
		return int64(v), err
	case TypeFloat64:
		v, err := c.u64()
		return math.Float64frombits(v), err
	case TypeArray:
		return c.array()
	}
	return nil, fmt.Errorf("gguf: unknown value type %d", t)
}

// array decodes the common element types into typed slices and falls back
// to []any for the rest.
func (c *cursor) array() (any, error) {
	et, err := c.u32()
	if err != nil {
		return nil, err
	}
	n, err := c.u64()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(c.buf)-c.off) {
		return nil, errShort
	}
	switch ValueType(et) {
	case TypeString:
		out := make([]string, n)
		for i := range out {
			if out[i], err = c.str(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case TypeFloat32:
		out := make([]float32, n)
		for i := range out {
			v, err := c.u32()
			if err != nil {
				return nil, err
			}
			out[i] = math.Float32frombits(v)
		}
		return out, nil
	case TypeInt32:
		out := make([]int32, n)
		for i := range out {
			v, err := c.u32()
			if err != nil {
				return nil, err
			}
			out[i] = int32(v)
		}
		return out, nil
	case TypeUint32:
		out := make([]uint32, n)
		for i := range out {
			if out[i], err = c.u32(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case TypeArray:
		return nil, errors.New("gguf: nested arrays are not supported")
	}
	out := make([]any, n)
	for i := range out {
		if out[i], err = c.value(ValueType(et)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

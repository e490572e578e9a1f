package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

type kv struct {
	key string
	val any
}

type pendingTensor struct {
	name string
	dims []uint64
	typ  GGMLType
	data []byte
}

// Writer assembles a GGUF v3 file. Metadata keeps insertion order.
type Writer struct {
	kvs       []kv
	tensors   []pendingTensor
	alignment uint64
}

// NewWriter returns a Writer using the default alignment.
func NewWriter() *Writer { return &Writer{alignment: defaultAlignment} }

// Set stores a metadata value. Supported: string, bool, uint8, int8, uint16,
// int16, uint32, int32, uint64, int64, float32, float64, []string,
// []float32, []int32, []uint32.
func (w *Writer) Set(key string, val any) {
	for i := range w.kvs {
		if w.kvs[i].key == key {
			w.kvs[i].val = val
			return
		}
	}
	w.kvs = append(w.kvs, kv{key, val})
}

// AddF32 appends a float32 tensor. dims follow GGML order.
func (w *Writer) AddF32(name string, dims []uint64, data []float32) {
	b := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	w.tensors = append(w.tensors, pendingTensor{name, dims, GGMLTypeF32, b})
}

// AddF16 appends a float16 tensor.
func (w *Writer) AddF16(name string, dims []uint64, data []float32) {
	b := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(b[2*i:], Float32ToHalf(v))
	}
	w.tensors = append(w.tensors, pendingTensor{name, dims, GGMLTypeF16, b})
}

// AddRaw appends pre-encoded tensor bytes of the given type.
func (w *Writer) AddRaw(name string, dims []uint64, typ GGMLType, data []byte) {
	w.tensors = append(w.tensors, pendingTensor{name, dims, typ, data})
}

// WriteFile writes the container to path.
func (w *Writer) WriteFile(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(fh)
	if _, err := w.WriteTo(bw); err != nil {
		fh.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// WriteTo encodes the container.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	e := &encoder{w: out}
	e.u32(Magic)
	e.u32(3)
	e.u64(uint64(len(w.tensors)))
	e.u64(uint64(len(w.kvs)))
	for _, p := range w.kvs {
		e.str(p.key)
		e.value(p.val)
	}
	var off uint64
	offsets := make([]uint64, len(w.tensors))
	for i, t := range w.tensors {
		offsets[i] = off
		off = alignUp(off+uint64(len(t.data)), w.alignment)
	}
	for i, t := range w.tensors {
		e.str(t.name)
		e.u32(uint32(len(t.dims)))
		for _, d := range t.dims {
			e.u64(d)
		}
		e.u32(uint32(t.typ))
		e.u64(offsets[i])
	}
	e.pad(w.alignment)
	for _, t := range w.tensors {
		e.bytes(t.data)
		e.pad(w.alignment)
	}
	return e.n, e.err
}

type encoder struct {
	w   io.Writer
	n   int64
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(b)
	e.n += int64(n)
	e.err = err
}

func (e *encoder) pad(a uint64) {
	if rem := uint64(e.n) % a; rem != 0 {
		e.bytes(make([]byte, a-rem))
	}
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) str(s string) {
	e.u64(uint64(len(s)))
	e.bytes([]byte(s))
}

func (e *encoder) value(v any) {
	switch x := v.(type) {
	case string:
		e.u32(uint32(TypeString))
		e.str(x)
	case bool:
		e.u32(uint32(TypeBool))
		if x {
			e.bytes([]byte{1})
		} else {
			e.bytes([]byte{0})
		}
	case uint8:
		e.u32(uint32(TypeUint8))
		e.bytes([]byte{x})
	case int8:
		e.u32(uint32(TypeInt8))
		e.bytes([]byte{byte(x)})
	case uint16:
		e.u32(uint32(TypeUint16))
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], x)
		e.bytes(b[:])
	case int16:
		e.u32(uint32(TypeInt16))
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(x))
		e.bytes(b[:])
	case uint32:
		e.u32(uint32(TypeUint32))
		e.u32(x)
	case int32:
		e.u32(uint32(TypeInt32))
		e.u32(uint32(x))
	case uint64:
		e.u32(uint32(TypeUint64))
		e.u64(x)
	case int64:
		e.u32(uint32(TypeInt64))
		e.u64(uint64(x))
	case float32:
		e.u32(uint32(TypeFloat32))
		e.u32(math.Float32bits(x))
	case float64:
		e.u32(uint32(TypeFloat64))
		e.u64(math.Float64bits(x))
	case []string:
		e.u32(uint32(TypeArray))
		e.u32(uint32(TypeString))
		e.u64(uint64(len(x)))
		for _, s := range x {
			e.str(s)
		}
	case []float32:
		e.u32(uint32(TypeArray))
		e.u32(uint32(TypeFloat32))
		e.u64(uint64(len(x)))
		for _, f := range x {
			e.u32(math.Float32bits(f))
		}
	case []int32:
		e.u32(uint32(TypeArray))
		e.u32(uint32(TypeInt32))
		e.u64(uint64(len(x)))
		for _, i := range x {
			e.u32(uint32(i))
		}
	case []uint32:
		e.u32(uint32(TypeArray))
		e.u32(uint32(TypeUint32))
		e.u64(uint64(len(x)))
		for _, i := range x {
			e.u32(i)
		}
	default:
		if e.err == nil {
			e.err = fmt.Errorf("gguf: unsupported metadata type %T", v)
		}
	}
}

package datapack

import (
	"encoding/binary"
	"fmt"
	"math"
)

func float32bits(f float32) uint32     { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

// Packer accumulates typed arguments into byte offsets within a single flat
// buffer, in the order set by SetTypes. It mirrors the shape of a real JIT's
// packed-argument ABI: set_argument(index, data) copies a typed payload at a
// fixed offset; arrays are packed contiguously; scalar bool is 1 byte,
// int/float are 4 bytes little-endian.
type Packer struct {
	types   []IOType
	offsets []int
	buf     []byte
}

// NewPacker lays out a packer for a fixed ordered sequence of argument
// types. Variable-length array arguments must carry their final length in
// lens (same index), so offsets can be computed once up front.
func NewPacker(types []IOType, lens []int) *Packer {
	p := &Packer{types: append([]IOType(nil), types...)}
	offset := 0
	for i, t := range types {
		p.offsets = append(p.offsets, offset)
		switch t {
		case Bool:
			offset += 1
		case Int, Float:
			offset += 4
		case BoolArray:
			offset += lens[i]
		case IntArray, FloatArray:
			offset += 4 * lens[i]
		}
	}
	p.buf = make([]byte, offset)
	return p
}

// Len returns the total byte length of the packed buffer.
func (p *Packer) Len() int { return len(p.buf) }

// Bytes returns the underlying packed buffer.
func (p *Packer) Bytes() []byte { return p.buf }

// SetArgument copies data into the index-th slot. The value's Type must
// match the slot's declared type.
func (p *Packer) SetArgument(index int, data Value) error {
	if index < 0 || index >= len(p.types) {
		return fmt.Errorf("datapack: argument index %d out of range [0,%d)", index, len(p.types))
	}
	if data.Type != p.types[index] {
		return fmt.Errorf("datapack: argument %d expects %s, got %s", index, p.types[index], data.Type)
	}
	off := p.offsets[index]
	switch data.Type {
	case Bool:
		if data.Bool {
			p.buf[off] = 1
		} else {
			p.buf[off] = 0
		}
	case Int:
		binary.LittleEndian.PutUint32(p.buf[off:off+4], uint32(data.Int))
	case Float:
		binary.LittleEndian.PutUint32(p.buf[off:off+4], float32bits(data.Float))
	case BoolArray:
		for i, b := range data.BoolArray {
			if b {
				p.buf[off+i] = 1
			} else {
				p.buf[off+i] = 0
			}
		}
	case IntArray:
		for i, v := range data.IntArray {
			binary.LittleEndian.PutUint32(p.buf[off+4*i:off+4*i+4], uint32(v))
		}
	case FloatArray:
		for i, v := range data.FloatArray {
			binary.LittleEndian.PutUint32(p.buf[off+4*i:off+4*i+4], float32bits(v))
		}
	}
	return nil
}

// Unpacker reads back typed values from a packed buffer produced with the
// same type/length layout as a Packer.
type Unpacker struct {
	types   []IOType
	offsets []int
	lens    []int
	buf     []byte
}

// NewUnpacker wraps an existing packed buffer for reading, using the same
// type/length layout that produced it.
func NewUnpacker(types []IOType, lens []int, buf []byte) *Unpacker {
	u := &Unpacker{types: append([]IOType(nil), types...), lens: append([]int(nil), lens...), buf: buf}
	offset := 0
	for i, t := range types {
		u.offsets = append(u.offsets, offset)
		switch t {
		case Bool:
			offset += 1
		case Int, Float:
			offset += 4
		case BoolArray:
			offset += lens[i]
		case IntArray, FloatArray:
			offset += 4 * lens[i]
		}
	}
	return u
}

// GetArgument reads back the index-th value.
func (u *Unpacker) GetArgument(index int) (Value, error) {
	if index < 0 || index >= len(u.types) {
		return Value{}, fmt.Errorf("datapack: argument index %d out of range [0,%d)", index, len(u.types))
	}
	t := u.types[index]
	off := u.offsets[index]
	switch t {
	case Bool:
		return Value{Type: Bool, Bool: u.buf[off] != 0}, nil
	case Int:
		return Value{Type: Int, Int: int32(binary.LittleEndian.Uint32(u.buf[off : off+4]))}, nil
	case Float:
		return Value{Type: Float, Float: float32frombits(binary.LittleEndian.Uint32(u.buf[off : off+4]))}, nil
	case BoolArray:
		n := u.lens[index]
		out := make([]bool, n)
		for i := 0; i < n; i++ {
			out[i] = u.buf[off+i] != 0
		}
		return Value{Type: BoolArray, BoolArray: out}, nil
	case IntArray:
		n := u.lens[index]
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			out[i] = int32(binary.LittleEndian.Uint32(u.buf[off+4*i : off+4*i+4]))
		}
		return Value{Type: IntArray, IntArray: out}, nil
	case FloatArray:
		n := u.lens[index]
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = float32frombits(binary.LittleEndian.Uint32(u.buf[off+4*i : off+4*i+4]))
		}
		return Value{Type: FloatArray, FloatArray: out}, nil
	default:
		return Value{}, fmt.Errorf("datapack: unknown type %s", t)
	}
}

// Package datapack implements the fixed-layout byte packing contract between
// the engine and the compiled program it drives: a single packed input
// block consumed by exec() and a single packed output block it produces.
package datapack

import "fmt"

// IOType identifies the shape of a single packed argument.
type IOType int

const (
	Bool IOType = iota
	Int
	Float
	BoolArray
	IntArray
	FloatArray
)

func (t IOType) String() string {
	switch t {
	case Bool:
		return "Bool"
	case Int:
		return "Int"
	case Float:
		return "Float"
	case BoolArray:
		return "BoolArray"
	case IntArray:
		return "IntArray"
	case FloatArray:
		return "FloatArray"
	default:
		return fmt.Sprintf("IOType(%d)", int(t))
	}
}

// Value is a typed payload destined for one packed argument slot.
// Exactly one of the fields is meaningful, selected by Type.
type Value struct {
	Type       IOType
	Bool       bool
	Int        int32
	Float      float32
	BoolArray  []bool
	IntArray   []int32
	FloatArray []float32
}

// byteLen returns the number of bytes this value occupies once packed.
func (v Value) byteLen() int {
	switch v.Type {
	case Bool:
		return 1
	case Int, Float:
		return 4
	case BoolArray:
		return len(v.BoolArray)
	case IntArray:
		return 4 * len(v.IntArray)
	case FloatArray:
		return 4 * len(v.FloatArray)
	default:
		return 0
	}
}

// Package compiler defines the boundary between the generated textual
// program and whatever turns it into something runnable. Production
// deployments are expected to hand the source text to a real JIT; this
// package also ships a tree-walking Interpreter that implements the same
// contract for testing without one.
package compiler

import "fmt"

// Program is a compiled, ready-to-run module graph. It knows nothing about
// where it came from; recompiling means passing new source to a Compiler.
type Program interface {
	// InitStatic allocates (or resets) per-voice static storage for the
	// given static index.
	InitStatic(staticIndex int)
	// Exec runs one buffer's worth of computation for the given static
	// index, reading inputs and writing outputs through io.
	Exec(staticIndex int, io *IO) error
}

// IO is the fixed-slot input/output surface a Program reads and writes per
// call, mirroring the source text's fixed slot numbering.
type IO struct {
	Inputs  []Slot
	Outputs []Slot
}

// Slot is one fixed-position argument: either a scalar-rate value (length
// 1, used for Pitch/Trigger-typed signals and plain floats) or a
// buffer-rate array.
type Slot struct {
	Values []float32
}

// Get returns the slot at index, or a zero slot if out of range.
func (io *IO) Get(index int) Slot {
	if index < 0 || index >= len(io.Inputs) {
		return Slot{}
	}
	return io.Inputs[index]
}

// SetOutput writes the slot at index, growing Outputs as needed.
func (io *IO) SetOutput(index int, values []float32) {
	for len(io.Outputs) <= index {
		io.Outputs = append(io.Outputs, Slot{})
	}
	io.Outputs[index] = Slot{Values: values}
}

// GetOutput returns the slot at index, or a zero slot if out of range. Used
// to read a caller-preallocated output buffer (e.g. the feedback slot) by
// reference before the program fills it in.
func (io *IO) GetOutput(index int) Slot {
	if index < 0 || index >= len(io.Outputs) {
		return Slot{}
	}
	return io.Outputs[index]
}

// Compiler turns generated source text into a runnable Program. This is
// the seam a real JIT backend plugs into; none is implemented here.
type Compiler interface {
	Compile(source string) (Program, error)
}

// ErrUnsupported is returned by compilers that recognize a construct in the
// source text but do not implement it.
type ErrUnsupported struct {
	Construct string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("compiler: unsupported construct %q", e.Construct)
}

package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/audiobench/core/datapack"
)

// evalExpr evaluates one ARG expression from the generated source against
// the current call's already-computed outputs and the program's input
// slots. Expressions are sums of products of atoms, matching the shape the
// code generator emits for automation lanes (output*scale+offset, summed
// across lanes).
func evalExpr(expr string, io *IO, outputs map[string][]float32, bufferLength int) ([]float32, error) {
	terms := splitTopLevel(expr, '+')
	var sum []float32
	for _, term := range terms {
		v, err := evalProduct(term, io, outputs, bufferLength)
		if err != nil {
			return nil, err
		}
		sum = addElementwise(sum, v)
	}
	return sum, nil
}

func evalProduct(expr string, io *IO, outputs map[string][]float32, bufferLength int) ([]float32, error) {
	factors := splitTopLevel(expr, '*')
	var product []float32
	for _, f := range factors {
		v, err := evalAtom(strings.TrimSpace(f), io, outputs, bufferLength)
		if err != nil {
			return nil, err
		}
		if product == nil {
			product = v
		} else {
			product = mulElementwise(product, v)
		}
	}
	return product, nil
}

// splitTopLevel splits on sep, ignoring occurrences inside ( ) or [ ].
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func evalAtom(s string, io *IO, outputs map[string][]float32, bufferLength int) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("compiler: empty expression atom")
	}

	if v, ok := outputs[s]; ok {
		return v, nil
	}

	if f, err := strconv.ParseFloat(s, 32); err == nil {
		return []float32{float32(f)}, nil
	}

	if inner, ok := unwrapCall(s, "StaticControlSignal"); ok {
		return evalAtom(inner, io, outputs, bufferLength)
	}

	if idx, ok := arrayIndex(s, "autocon_dyn_data"); ok {
		vals := io.Get(datapack.SlotAutoconDynData).Values
		if idx < 0 || idx >= len(vals) {
			return nil, fmt.Errorf("compiler: autocon_dyn_data index %d out of range", idx)
		}
		return []float32{vals[idx]}, nil
	}

	if strings.HasPrefix(s, "staticon_dyn_data_") {
		n, err := strconv.Atoi(strings.TrimPrefix(s, "staticon_dyn_data_"))
		if err != nil {
			return nil, fmt.Errorf("compiler: malformed staticon slot name %q", s)
		}
		return io.Get(datapack.SlotStaticonDynDataStart + n).Values, nil
	}

	switch s {
	case "global_pitch":
		return io.Get(datapack.SlotPitch).Values, nil
	case "global_start_trigger":
		return []float32{boolFloat(noteStatusIs(io, datapack.NoteStatusStart))}, nil
	case "global_release_trigger":
		return []float32{boolFloat(noteStatusIs(io, datapack.NoteStatusRelease))}, nil
	case "FALSE":
		return []float32{0}, nil
	case "FlatWaveform":
		return make([]float32, bufferLength), nil
	case "RampUpWaveform":
		return rampWaveform(bufferLength, -1, 1), nil
	case "RampDownWaveform":
		return rampWaveform(bufferLength, 1, -1), nil
	case "SineWaveform":
		return sineWaveform(bufferLength), nil
	}

	return nil, fmt.Errorf("compiler: unrecognized expression atom %q", s)
}

func unwrapCall(s, name string) (string, bool) {
	prefix := name + "("
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ")") {
		return s[len(prefix) : len(s)-1], true
	}
	return "", false
}

func arrayIndex(s, name string) (int, bool) {
	prefix := name + "["
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, "]") {
		n, err := strconv.Atoi(s[len(prefix) : len(s)-1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func noteStatusIs(io *IO, want float32) bool {
	vals := io.Get(datapack.SlotNoteStatus).Values
	return len(vals) > 0 && vals[0] == want
}

func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func rampWaveform(n int, from, to float32) []float32 {
	out := make([]float32, n)
	if n <= 1 {
		return out
	}
	step := (to - from) / float32(n-1)
	for i := range out {
		out[i] = from + step*float32(i)
	}
	return out
}

func sineWaveform(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(n)))
	}
	return out
}

func addElementwise(a, b []float32) []float32 {
	if a == nil {
		return append([]float32(nil), b...)
	}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = sampleOrZero(a, i) + sampleOrZero(b, i)
	}
	return out
}

func mulElementwise(a, b []float32) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = sampleOrBroadcast(a, i) * sampleOrBroadcast(b, i)
	}
	return out
}

func sampleOrZero(buf []float32, i int) float32 {
	if len(buf) == 0 {
		return 0
	}
	if len(buf) == 1 {
		return buf[0]
	}
	if i >= len(buf) {
		return 0
	}
	return buf[i]
}

func sampleOrBroadcast(buf []float32, i int) float32 {
	if len(buf) == 0 {
		return 0
	}
	if len(buf) == 1 {
		return buf[0]
	}
	if i >= len(buf) {
		return buf[len(buf)-1]
	}
	return buf[i]
}

// Package factorylib provides the built-in module implementations that ship
// with the engine: basic arithmetic, a constant source, a phase-accumulating
// sine oscillator, pitch conversion, gain, and the two sink modules that
// assemble a voice's audio and feedback output.
package factorylib

import (
	"math"

	"github.com/audiobench/core/graph"
)

// Register installs every built-in module implementation into reg.
func Register(reg *graph.Registry) {
	reg.Register("factory.add", addFunc)
	reg.Register("factory.multiply", multiplyFunc)
	reg.Register("factory.constant", constantFunc)
	reg.Register("factory.sine", sineFunc)
	reg.Register("factory.pitch_to_freq", pitchToFreqFunc)
	reg.Register("factory.gain", gainFunc)
	reg.Register("factory.audio_out", audioOutFunc)
	reg.Register("factory.feedback", feedbackFunc)
}

func addFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	out := make([]float32, ctx.BufferLength)
	a, b := ins[0], ins[1]
	for i := range out {
		out[i] = sampleAt(a, i) + sampleAt(b, i)
	}
	return [][]float32{out}
}

func multiplyFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	out := make([]float32, ctx.BufferLength)
	a, b := ins[0], ins[1]
	for i := range out {
		out[i] = sampleAt(a, i) * sampleAt(b, i)
	}
	return [][]float32{out}
}

func constantFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	// ins[0] is the baked static value, always length 1.
	v := ins[0][0]
	out := make([]float32, ctx.BufferLength)
	for i := range out {
		out[i] = v
	}
	return [][]float32{out}
}

// sineFunc is a phase-accumulating oscillator. ins[0] is the Pitch input
// (a frequency in Hz, scalar per buffer). Per-voice phase is kept in
// ctx.Static keyed by a caller-supplied module index, so retriggered voices
// restart at phase zero while a sustained voice continues smoothly across
// buffers.
func sineFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	freq := ins[0][0]
	state := ctx.Static[sineStateKey]
	if state == nil {
		state = []float32{0}
		ctx.Static[sineStateKey] = state
	}
	phase := state[0]
	out := make([]float32, ctx.BufferLength)
	step := float32(2*math.Pi) * freq / ctx.SampleRate
	for i := range out {
		out[i] = float32(math.Sin(float64(phase)))
		phase += step
		if phase > float32(2*math.Pi) {
			phase -= float32(2 * math.Pi)
		}
	}
	state[0] = phase
	return [][]float32{out}
}

// sineStateKey is the well-known per-module static slot used for phase.
// Individual module instances are distinguished by the Static map itself
// being keyed per-module by the caller (the compiler's interpreted
// program), not by this constant.
const sineStateKey = 0

// pitchToFreqFunc passes its input through unchanged. A Pitch jack's value
// is already a frequency in Hz by the time it reaches any module: the
// equal-tempered conversion from a MIDI key happens once, in the voice
// tracker, when a note starts.
func pitchToFreqFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	return [][]float32{{ins[0][0]}}
}

func gainFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	signal, gain := ins[0], ins[1]
	out := make([]float32, ctx.BufferLength)
	for i := range out {
		out[i] = sampleAt(signal, i) * sampleAt(gain, i)
	}
	return [][]float32{out}
}

// audioOutFunc sums its input into the voice's shared audio accumulator,
// channel-wise, rather than producing an output of its own.
func audioOutFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	signal := ins[0]
	for ch := 0; ch < ctx.Channels; ch++ {
		for i := 0; i < ctx.BufferLength; i++ {
			ctx.AudioOut[ch*ctx.BufferLength+i] += sampleAt(signal, i)
		}
	}
	return nil
}

// feedbackFunc writes its input into the voice's feedback accumulator.
func feedbackFunc(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
	signal := ins[0]
	n := len(ctx.FeedbackOut)
	for i := 0; i < n && i < len(signal); i++ {
		ctx.FeedbackOut[i] = signal[i]
	}
	return nil
}

// sampleAt reads buf[i] if buf carries a full buffer-rate signal, or buf[0]
// if it carries a scalar (Pitch/Trigger-rate) signal.
func sampleAt(buf []float32, i int) float32 {
	if len(buf) == 1 {
		return buf[0]
	}
	return buf[i]
}

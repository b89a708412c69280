package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiobench/core/codegen"
	"github.com/audiobench/core/compiler"
	"github.com/audiobench/core/datapack"
	"github.com/audiobench/core/graph"
	"github.com/audiobench/core/graph/factorylib"
	"github.com/audiobench/core/voice"
)

func newIO(bufferLength int) *compiler.IO {
	types := []datapack.IOType{
		datapack.Float, datapack.Float, datapack.Float, datapack.Float, datapack.Float,
		datapack.FloatArray, datapack.FloatArray, datapack.FloatArray, datapack.FloatArray,
		datapack.FloatArray, datapack.FloatArray,
	}
	lens := []int{0, 0, 0, 0, 0, bufferLength, bufferLength, bufferLength, bufferLength, 128, 0}
	inputs := make([]compiler.Slot, len(types))
	for i := range types {
		if lens[i] > 0 {
			inputs[i] = compiler.Slot{Values: make([]float32, lens[i])}
		} else {
			inputs[i] = compiler.Slot{Values: make([]float32, 1)}
		}
	}
	return &compiler.IO{Inputs: inputs}
}

func TestInterpreterSingleModulePassthrough(t *testing.T) {
	g := graph.NewModuleGraph()
	constTmpl := &graph.ModuleTemplate{
		CodeID: "factory.constant",
		Inputs: []graph.Jack{graph.NewJack(graph.Audio, "value", "Value")},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	constMod := graph.NewModule(constTmpl)
	constMod.Inputs[0] = graph.DefaultInputConn(0)
	constRef := g.Add(constMod)

	outTmpl := &graph.ModuleTemplate{
		CodeID: "factory.audio_out",
		Inputs: []graph.Jack{graph.NewJack(graph.Audio, "signal", "Signal")},
	}
	outMod := graph.NewModule(outTmpl)
	outMod.Inputs[0] = graph.WireInput(constRef, 0)
	g.Add(outMod)

	// Rewire the constant module's default option to literal 0.5 directly,
	// since the Audio jack's builtin default is silence (0.0).
	constMod.Template.Inputs[0].DefaultOptions = []graph.DefaultInput{{Name: "Value", Code: "0.5"}}

	result, err := codegen.Generate(g, 4, 48000)
	require.NoError(t, err)

	reg := graph.NewRegistry()
	factorylib.Register(reg)
	interp := compiler.NewInterpreter(reg, 2)

	prog, err := interp.Compile(result.Source)
	require.NoError(t, err)

	prog.InitStatic(0)
	io := newIO(4)
	io.Inputs[datapack.SlotNoteStatus] = compiler.Slot{Values: []float32{datapack.NoteStatusStart}}
	io.Outputs = []compiler.Slot{{}, {}}

	require.NoError(t, prog.Exec(0, io))

	audio := io.Outputs[compiler.OutAudioSlot].Values
	require.Len(t, audio, 8)
	for _, v := range audio {
		assert.InDelta(t, 0.5, float64(v), 1e-6)
	}
}

func TestInterpreterTwoOperatorChain(t *testing.T) {
	g := graph.NewModuleGraph()
	pitchTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.pitch_to_freq",
		Inputs:  []graph.Jack{graph.NewJack(graph.Pitch, "pitch", "Pitch")},
		Outputs: []graph.Jack{graph.NewJack(graph.Pitch, "freq", "Frequency")},
	}
	pitchMod := graph.NewModule(pitchTmpl)
	pitchRef := g.Add(pitchMod)

	gainTmpl := &graph.ModuleTemplate{
		CodeID: "factory.gain",
		Inputs: []graph.Jack{
			graph.NewJack(graph.Audio, "signal", "Signal"),
			graph.NewJack(graph.Audio, "gain", "Gain"),
		},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	gainMod := graph.NewModule(gainTmpl)
	gainMod.Inputs[0] = graph.WireInput(pitchRef, 0)
	gainMod.Template.Inputs[1].DefaultOptions = []graph.DefaultInput{{Name: "Gain", Code: "2.0"}}
	gainRef := g.Add(gainMod)

	outTmpl := &graph.ModuleTemplate{
		CodeID: "factory.audio_out",
		Inputs: []graph.Jack{graph.NewJack(graph.Audio, "signal", "Signal")},
	}
	outMod := graph.NewModule(outTmpl)
	outMod.Inputs[0] = graph.WireInput(gainRef, 0)
	g.Add(outMod)

	result, err := codegen.Generate(g, 4, 48000)
	require.NoError(t, err)

	reg := graph.NewRegistry()
	factorylib.Register(reg)
	interp := compiler.NewInterpreter(reg, 1)

	prog, err := interp.Compile(result.Source)
	require.NoError(t, err)

	// Drive a real note through the tracker rather than poking SlotPitch
	// with a raw semitone number: the tracker is the only thing that ever
	// converts a MIDI key to Hz, so the slot must carry its output.
	tracker := voice.NewTracker()
	require.True(t, tracker.StartNote(69, 1.0)) // A4 = 440Hz
	voices := tracker.ActiveVoices()
	require.Len(t, voices, 1)
	hz := voices[0].Data.Pitch

	prog.InitStatic(0)
	io := newIO(4)
	io.Inputs[datapack.SlotPitch] = compiler.Slot{Values: []float32{hz}}
	io.Outputs = []compiler.Slot{{}, {}}

	require.NoError(t, prog.Exec(0, io))

	audio := io.Outputs[compiler.OutAudioSlot].Values
	require.Len(t, audio, 4)
	for _, v := range audio {
		assert.InDelta(t, 880.0, float64(v), 1e-2)
	}
}

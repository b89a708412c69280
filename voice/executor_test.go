package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiobench/core/codegen"
	"github.com/audiobench/core/compiler"
	"github.com/audiobench/core/datapack"
	"github.com/audiobench/core/graph"
	"github.com/audiobench/core/graph/factorylib"
)

func buildConstantToAudioOutGraph(t *testing.T, value string) *graph.ModuleGraph {
	t.Helper()
	g := graph.NewModuleGraph()
	constTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.constant",
		Inputs:  []graph.Jack{graph.NewJack(graph.Audio, "value", "Value")},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	constMod := graph.NewModule(constTmpl)
	constMod.Template.Inputs[0].DefaultOptions = []graph.DefaultInput{{Name: "Value", Code: value}}
	constRef := g.Add(constMod)

	outTmpl := &graph.ModuleTemplate{
		CodeID: "factory.audio_out",
		Inputs: []graph.Jack{graph.NewJack(graph.Audio, "signal", "Signal")},
	}
	outMod := graph.NewModule(outTmpl)
	outMod.Inputs[0] = graph.WireInput(constRef, 0)
	g.Add(outMod)
	return g
}

func TestExecutorSumsAudioAcrossVoices(t *testing.T) {
	g := buildConstantToAudioOutGraph(t, "0.25")
	result, err := codegen.Generate(g, 4, 48000)
	require.NoError(t, err)

	reg := graph.NewRegistry()
	factorylib.Register(reg)
	interp := compiler.NewInterpreter(reg, 1)
	prog, err := interp.Compile(result.Source)
	require.NoError(t, err)

	exec := NewExecutor(prog, Params{Channels: 1, BufferLength: 4, SampleRate: 48000})

	tr := NewTracker()
	tr.StartNote(60, 1.0)
	tr.StartNote(64, 1.0)

	audio, _, err := exec.Render(tr, GlobalData{}, DynamicData{}, false, 0)
	require.NoError(t, err)

	for _, v := range audio {
		assert.InDelta(t, 0.5, float64(v), 1e-5) // two voices, 0.25 each
	}
}

func TestExecutorAdvancesElapsedSamplesByBufferLength(t *testing.T) {
	g := buildConstantToAudioOutGraph(t, "0.0")
	result, err := codegen.Generate(g, 256, 48000)
	require.NoError(t, err)

	reg := graph.NewRegistry()
	factorylib.Register(reg)
	interp := compiler.NewInterpreter(reg, 1)
	prog, err := interp.Compile(result.Source)
	require.NoError(t, err)

	exec := NewExecutor(prog, Params{Channels: 1, BufferLength: 256, SampleRate: 48000})

	tr := NewTracker()
	tr.StartNote(60, 1.0)

	_, _, err = exec.Render(tr, GlobalData{}, DynamicData{}, false, 0)
	require.NoError(t, err)

	voices := tr.ActiveVoices()
	require.Len(t, voices, 1)
	assert.Equal(t, 256, voices[0].Data.ElapsedSamples)
}

func TestExecutorFeedbackWrittenForSelectedVoice(t *testing.T) {
	g := graph.NewModuleGraph()
	constTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.constant",
		Inputs:  []graph.Jack{graph.NewJack(graph.Audio, "value", "Value")},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	constMod := graph.NewModule(constTmpl)
	constMod.Template.Inputs[0].DefaultOptions = []graph.DefaultInput{{Name: "Value", Code: "0.5"}}
	constRef := g.Add(constMod)

	fbTmpl := &graph.ModuleTemplate{
		CodeID:          "factory.feedback",
		Inputs:          []graph.Jack{graph.NewJack(graph.Audio, "signal", "Signal")},
		FeedbackDataLen: 1,
	}
	fbMod := graph.NewModule(fbTmpl)
	fbMod.Inputs[0] = graph.WireInput(constRef, 0)
	g.Add(fbMod)

	result, err := codegen.Generate(g, 4, 48000)
	require.NoError(t, err)
	require.Equal(t, 1, result.Format.FeedbackDataLen)

	reg := graph.NewRegistry()
	factorylib.Register(reg)
	interp := compiler.NewInterpreter(reg, 1)
	prog, err := interp.Compile(result.Source)
	require.NoError(t, err)

	exec := NewExecutor(prog, Params{Channels: 1, BufferLength: 4, SampleRate: 48000})

	tr := NewTracker()
	tr.StartNote(60, 1.0)

	_, feedback, err := exec.Render(tr, GlobalData{}, DynamicData{}, true, result.Format.FeedbackDataLen)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.InDelta(t, 0.5, float64(feedback[0]), 1e-5)
}

// TestExecutorShouldUpdateOnlySetForFeedbackVoice asserts SlotShouldUpdate
// is true only for the voice selected for feedback display, not for every
// active voice.
func TestExecutorShouldUpdateOnlySetForFeedbackVoice(t *testing.T) {
	g := buildConstantToAudioOutGraph(t, "0.1")
	result, err := codegen.Generate(g, 4, 48000)
	require.NoError(t, err)

	reg := graph.NewRegistry()
	factorylib.Register(reg)
	interp := compiler.NewInterpreter(reg, 1)
	prog, err := interp.Compile(result.Source)
	require.NoError(t, err)

	exec := NewExecutor(prog, Params{Channels: 1, BufferLength: 4, SampleRate: 48000})

	tr := NewTracker()
	tr.StartNote(60, 1.0)
	tr.StartNote(64, 1.0)

	feedbackStatic, ok := tr.RecommendNoteForFeedback()
	require.True(t, ok)

	var gotFeedbackVoice bool
	for _, v := range tr.ActiveVoices() {
		isFeedbackVoice := v.StaticIndex == feedbackStatic
		io := exec.buildIO(v, GlobalData{}, DynamicData{}, 1, isFeedbackVoice)
		want := float32(0)
		if isFeedbackVoice {
			want = 1
			gotFeedbackVoice = true
		}
		assert.Equal(t, want, io.Inputs[datapack.SlotShouldUpdate].Values[0])
	}
	assert.True(t, gotFeedbackVoice)
}

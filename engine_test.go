package audiobench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiobench/core/comms"
	"github.com/audiobench/core/graph"
	"github.com/audiobench/core/graph/factorylib"
	"github.com/audiobench/core/session"
)

func requestRender(t *testing.T, hub *comms.Hub, req comms.RenderRequest) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if hub.TryRender(req) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out submitting render request")
}

func waitForResponse(t *testing.T, hub *comms.Hub) comms.RenderResponse {
	t.Helper()
	for i := 0; i < 500; i++ {
		if resp, ok := hub.TryTakeResponse(); ok {
			return resp
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for render response")
	return comms.RenderResponse{}
}

func renderOnce(t *testing.T, e *Engine, req comms.RenderRequest) comms.RenderResponse {
	t.Helper()
	requestRender(t, e.Hub(), req)
	return waitForResponse(t, e.Hub())
}

func audioOutTemplate() *graph.ModuleTemplate {
	return &graph.ModuleTemplate{
		CodeID: "factory.audio_out",
		Inputs: []graph.Jack{graph.NewJack(graph.Audio, "signal", "Signal")},
	}
}

func constantTemplate(value string) *graph.ModuleTemplate {
	tmpl := &graph.ModuleTemplate{
		CodeID:  "factory.constant",
		Inputs:  []graph.Jack{graph.NewJack(graph.Audio, "value", "Value")},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	tmpl.Inputs[0].DefaultOptions = []graph.DefaultInput{{Name: "Value", Code: value}}
	return tmpl
}

func gainTemplate(gainLiteral string) *graph.ModuleTemplate {
	tmpl := &graph.ModuleTemplate{
		CodeID: "factory.gain",
		Inputs: []graph.Jack{
			graph.NewJack(graph.Audio, "signal", "Signal"),
			graph.NewJack(graph.Audio, "gain", "Gain"),
		},
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	tmpl.Inputs[1].DefaultOptions = []graph.DefaultInput{{Name: "Gain", Code: gainLiteral}}
	return tmpl
}

// Scenario 1: a single constant module wired straight to the audio sink
// should produce that constant on every sample of every channel.
func TestEngineSingleModulePassthrough(t *testing.T) {
	e, err := NewEngine(EngineConfig{Session: session.Spec{
		Channels: 1, BufferLengthOverride: 4, PreferredSampleRate: 48000,
	}})
	require.NoError(t, err)

	constRef, err := e.Dispatcher().AddModule(constantTemplate("0.5"))
	require.NoError(t, err)
	outRef, err := e.Dispatcher().AddModule(audioOutTemplate())
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(outRef, 0, constRef, 0))

	require.NoError(t, e.Start())
	defer e.Stop()

	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 60, Velocity: 1.0})
	resp := renderOnce(t, e, comms.RenderRequest{})

	require.Len(t, resp.Audio, 4)
	for _, v := range resp.Audio {
		assert.InDelta(t, 0.5, float64(v), 1e-6)
	}
}

// Scenario 2: a two-operator chain (pitch_to_freq -> gain) composes
// correctly. pitch_to_freq passes through the Hz value the tracker already
// computed for the started note (its jack's default, left unconnected,
// reads straight off global_pitch); gain x2 doubles it.
func TestEngineTwoOperatorChain(t *testing.T) {
	e, err := NewEngine(EngineConfig{Session: session.Spec{
		Channels: 1, BufferLengthOverride: 4, PreferredSampleRate: 48000,
	}})
	require.NoError(t, err)

	pitchTmpl := &graph.ModuleTemplate{
		CodeID:  "factory.pitch_to_freq",
		Inputs:  []graph.Jack{graph.NewJack(graph.Pitch, "pitch", "Pitch")},
		Outputs: []graph.Jack{graph.NewJack(graph.Pitch, "freq", "Frequency")},
	}
	pitchRef, err := e.Dispatcher().AddModule(pitchTmpl)
	require.NoError(t, err)

	gainRef, err := e.Dispatcher().AddModule(gainTemplate("2.0"))
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(gainRef, 0, pitchRef, 0))

	outRef, err := e.Dispatcher().AddModule(audioOutTemplate())
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(outRef, 0, gainRef, 0))

	require.NoError(t, e.Start())
	defer e.Stop()

	const key = 69 // MIDI 69 = A4 = 440Hz
	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: key, Velocity: 1.0})
	resp := renderOnce(t, e, comms.RenderRequest{})

	require.Len(t, resp.Audio, 4)
	for _, v := range resp.Audio {
		assert.InDelta(t, 880.0, float64(v), 1e-2)
	}
}

// Scenario 3: an automation lane rescales its source module's output
// linearly: module_0_output_0 * 3 + 5, evaluated at a source output of 1,
// should yield 8 on every sample.
func TestEngineAutomationLaneArithmetic(t *testing.T) {
	reg := graph.NewRegistry()
	factorylib.Register(reg)
	reg.Register("test.echo_automation", func(ctx *graph.ExecContext, ins [][]float32) [][]float32 {
		return [][]float32{ins[0]}
	})

	e, err := NewEngine(EngineConfig{
		Session:  session.Spec{Channels: 1, BufferLengthOverride: 4, PreferredSampleRate: 48000},
		Registry: reg,
	})
	require.NoError(t, err)

	sourceRef, err := e.Dispatcher().AddModule(constantTemplate("1.0"))
	require.NoError(t, err)

	echoTmpl := &graph.ModuleTemplate{
		CodeID:  "test.echo_automation",
		Outputs: []graph.Jack{graph.NewJack(graph.Audio, "audio", "Audio")},
	}
	echoMod := graph.NewModule(echoTmpl)
	echoMod.AutomationControls = []*graph.AutomationControl{
		graph.NewAutomationControl("amount", 0, 1, 0, "%"),
	}
	echoMod.AutomationControls[0].AddLane(sourceRef, 0, 2, 8)
	// Inserted directly rather than through the dispatcher since the
	// control and its lane need to exist before the module's first
	// recompile; the wire below triggers that recompile.
	echoRef := e.graph.Add(echoMod)

	outRef, err := e.Dispatcher().AddModule(audioOutTemplate())
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(outRef, 0, echoRef, 0))

	require.NoError(t, e.Start())
	defer e.Stop()

	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 60, Velocity: 1.0})
	resp := renderOnce(t, e, comms.RenderRequest{})

	require.Len(t, resp.Audio, 4)
	for _, v := range resp.Audio {
		assert.InDelta(t, 8.0, float64(v), 1e-5)
	}
}

// Scenario 4: polyphony sums every active voice's output channel-wise.
func TestEnginePolyphonySumsVoices(t *testing.T) {
	e, err := NewEngine(EngineConfig{Session: session.Spec{
		Channels: 1, BufferLengthOverride: 4, PreferredSampleRate: 48000,
	}})
	require.NoError(t, err)

	constRef, err := e.Dispatcher().AddModule(constantTemplate("0.25"))
	require.NoError(t, err)
	outRef, err := e.Dispatcher().AddModule(audioOutTemplate())
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(outRef, 0, constRef, 0))

	require.NoError(t, e.Start())
	defer e.Stop()

	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 60, Velocity: 1.0})
	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 64, Velocity: 1.0})
	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 67, Velocity: 1.0})
	resp := renderOnce(t, e, comms.RenderRequest{})

	require.Len(t, resp.Audio, 4)
	for _, v := range resp.Audio {
		assert.InDelta(t, 0.75, float64(v), 1e-5)
	}
}

// Scenario 5: wiring a cycle is rejected and the engine's previously
// compiled program keeps running unchanged.
func TestEngineCycleLeavesPreviousProgramLive(t *testing.T) {
	e, err := NewEngine(EngineConfig{Session: session.Spec{
		Channels: 1, BufferLengthOverride: 4, PreferredSampleRate: 48000,
	}})
	require.NoError(t, err)

	constRef, err := e.Dispatcher().AddModule(constantTemplate("0.5"))
	require.NoError(t, err)
	outRef, err := e.Dispatcher().AddModule(audioOutTemplate())
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(outRef, 0, constRef, 0))

	g1Ref, err := e.Dispatcher().AddModule(gainTemplate("1.0"))
	require.NoError(t, err)
	g2Ref, err := e.Dispatcher().AddModule(gainTemplate("1.0"))
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(g1Ref, 0, g2Ref, 0))

	err = e.Dispatcher().ConnectWire(g2Ref, 0, g1Ref, 0)
	require.Error(t, err)
	engErr, ok := err.(*EngineError)
	require.True(t, ok)
	assert.Equal(t, ErrCycleDetected, engErr.Kind)

	require.NoError(t, e.Start())
	defer e.Stop()

	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 60, Velocity: 1.0})
	resp := renderOnce(t, e, comms.RenderRequest{})

	require.Len(t, resp.Audio, 4)
	for _, v := range resp.Audio {
		assert.InDelta(t, 0.5, float64(v), 1e-6)
	}
}

// Scenario 6: changing the buffer length recompiles the program but does
// not reset a held voice's elapsed-sample clock, so consecutive buffers
// account for every sample exactly once.
func TestEngineBufferSizeChangePreservesElapsedSamples(t *testing.T) {
	e, err := NewEngine(EngineConfig{Session: session.Spec{
		Channels: 1, BufferLengthOverride: 4, PreferredSampleRate: 48000,
	}})
	require.NoError(t, err)

	constRef, err := e.Dispatcher().AddModule(constantTemplate("0.5"))
	require.NoError(t, err)
	outRef, err := e.Dispatcher().AddModule(audioOutTemplate())
	require.NoError(t, err)
	require.NoError(t, e.Dispatcher().ConnectWire(outRef, 0, constRef, 0))

	require.NoError(t, e.Start())
	defer e.Stop()

	e.Hub().PushNoteEvent(comms.NoteEvent{Kind: comms.NoteStart, Key: 60, Velocity: 1.0})
	first := renderOnce(t, e, comms.RenderRequest{})
	require.Len(t, first.Audio, 4)

	newParams := e.Params()
	newParams.BufferLength = 8
	require.NoError(t, e.Dispatcher().ChangeGlobalParams(newParams))

	second := renderOnce(t, e, comms.RenderRequest{})
	require.Len(t, second.Audio, 8)
	for _, v := range second.Audio {
		assert.InDelta(t, 0.5, float64(v), 1e-6)
	}

	// 4 samples from the first buffer plus 8 from the second.
	voices := e.tracker.ActiveVoices()
	require.Len(t, voices, 1)
	assert.Equal(t, 4+8, voices[0].Data.ElapsedSamples)
}

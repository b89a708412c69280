package voice

import (
	"fmt"

	"github.com/audiobench/core/compiler"
	"github.com/audiobench/core/datapack"
)

// GlobalData carries the per-buffer host state that applies across every
// voice: MIDI controller values, pitch wheel, tempo, and song position.
type GlobalData struct {
	MIDIControllers [128]float32
	PitchWheel      float32
	BPM             float32
	SongSeconds     float32
	SongBeats       float32
}

// Params describes the fixed shape a compiled program expects.
type Params struct {
	Channels     int
	BufferLength int
	SampleRate   float32
}

// Executor drains pending static-data resets, selects the feedback voice,
// packs each active voice's inputs, runs the compiled program once per
// voice, and sums the results into a shared audio buffer.
type Executor struct {
	Program compiler.Program
	Params  Params
}

// NewExecutor binds an already-compiled program to its fixed parameters.
func NewExecutor(program compiler.Program, params Params) *Executor {
	return &Executor{Program: program, Params: params}
}

// DynamicData is the per-generation dynamic data computed by
// codegen.AutoconDynDataCollector/StaticonDynDataCollector for the program
// currently loaded into Program.
type DynamicData struct {
	AutoconDynData   []float32
	StaticonDynData  []datapack.Value
}

// Render executes one buffer across every active voice in tracker, summing
// their audio output. doFeedback selects whether a feedback snapshot is
// produced this buffer; feedbackDataLen is the compiled program's feedback
// slot length (0 if the patch has no feedback-producing module).
func (e *Executor) Render(tracker *Tracker, global GlobalData, dyn DynamicData, doFeedback bool, feedbackDataLen int) ([]float32, []float32, error) {
	for _, idx := range tracker.DrainIndexesToReset() {
		e.Program.InitStatic(idx)
	}

	audioOut := make([]float32, e.Params.Channels*e.Params.BufferLength)

	var feedbackStatic int
	var haveFeedback bool
	if doFeedback {
		feedbackStatic, haveFeedback = tracker.RecommendNoteForFeedback()
	}
	var feedbackOut []float32

	pitchMul := datapack.PitchWheelMultiplier(global.PitchWheel)

	for _, voice := range tracker.ActiveVoices() {
		isFeedbackVoice := haveFeedback && voice.StaticIndex == feedbackStatic
		io := e.buildIO(voice, global, dyn, pitchMul, isFeedbackVoice)
		if isFeedbackVoice && feedbackDataLen > 0 {
			io.Outputs = []compiler.Slot{{}, {Values: make([]float32, feedbackDataLen)}}
		} else {
			io.Outputs = []compiler.Slot{{}, {}}
		}

		if err := e.Program.Exec(voice.StaticIndex, io); err != nil {
			return nil, nil, fmt.Errorf("voice: executing static index %d: %w", voice.StaticIndex, err)
		}

		audio := io.Outputs[compiler.OutAudioSlot].Values
		silent := true
		for ch := 0; ch < e.Params.Channels; ch++ {
			for i := 0; i < e.Params.BufferLength; i++ {
				pos := ch*e.Params.BufferLength + i
				v := audio[pos]
				audioOut[pos] += v
				if abs32(v) > silentCutoff {
					silent = false
				}
			}
		}
		tracker.MarkSilence(voice.StaticIndex, e.Params.BufferLength, silent)

		if isFeedbackVoice && feedbackDataLen > 0 {
			feedbackOut = io.Outputs[compiler.OutFeedbackSlot].Values
		}
	}

	tracker.AdvanceAllNotes(e.Params.SampleRate, e.Params.BufferLength, global.BPM)

	return audioOut, feedbackOut, nil
}

func (e *Executor) buildIO(voice ActiveVoice, global GlobalData, dyn DynamicData, pitchMul float32, isFeedbackVoice bool) *compiler.IO {
	inputs := make([]compiler.Slot, datapack.SlotStaticonDynDataStart+len(dyn.StaticonDynData))

	status := float32(datapack.NoteStatusSustain)
	if voice.Data.StartTrigger {
		status = datapack.NoteStatusStart
	} else if voice.Data.ReleaseTrigger {
		status = datapack.NoteStatusRelease
	}

	inputs[datapack.SlotPitch] = compiler.Slot{Values: []float32{voice.Data.Pitch * pitchMul}}
	inputs[datapack.SlotVelocity] = compiler.Slot{Values: []float32{voice.Data.Velocity}}
	inputs[datapack.SlotNoteStatus] = compiler.Slot{Values: []float32{status}}
	shouldUpdate := float32(0)
	if isFeedbackVoice {
		shouldUpdate = 1
	}
	inputs[datapack.SlotShouldUpdate] = compiler.Slot{Values: []float32{shouldUpdate}}
	inputs[datapack.SlotBPM] = compiler.Slot{Values: []float32{global.BPM}}

	elapsedSecs := make([]float32, e.Params.BufferLength)
	elapsedBeats := make([]float32, e.Params.BufferLength)
	songSecs := make([]float32, e.Params.BufferLength)
	songBeats := make([]float32, e.Params.BufferLength)
	baseSecs := float32(voice.Data.ElapsedSamples) / e.Params.SampleRate
	for i := range elapsedSecs {
		t := baseSecs + float32(i)/e.Params.SampleRate
		elapsedSecs[i] = t
		elapsedBeats[i] = voice.Data.ElapsedBeats
		songSecs[i] = global.SongSeconds + float32(i)/e.Params.SampleRate
		songBeats[i] = global.SongBeats
	}
	inputs[datapack.SlotNoteElapsedSecs] = compiler.Slot{Values: elapsedSecs}
	inputs[datapack.SlotNoteElapsedBeats] = compiler.Slot{Values: elapsedBeats}
	inputs[datapack.SlotSongSeconds] = compiler.Slot{Values: songSecs}
	inputs[datapack.SlotSongBeats] = compiler.Slot{Values: songBeats}

	controllers := make([]float32, 128)
	copy(controllers, global.MIDIControllers[:])
	inputs[datapack.SlotMIDIControllers] = compiler.Slot{Values: controllers}

	inputs[datapack.SlotAutoconDynData] = compiler.Slot{Values: dyn.AutoconDynData}

	for i, v := range dyn.StaticonDynData {
		inputs[datapack.SlotStaticonDynDataStart+i] = valueSlot(v)
	}

	return &compiler.IO{Inputs: inputs}
}

func valueSlot(v datapack.Value) compiler.Slot {
	switch v.Type {
	case datapack.Bool:
		if v.Bool {
			return compiler.Slot{Values: []float32{1}}
		}
		return compiler.Slot{Values: []float32{0}}
	case datapack.Int:
		return compiler.Slot{Values: []float32{float32(v.Int)}}
	case datapack.Float:
		return compiler.Slot{Values: []float32{v.Float}}
	case datapack.FloatArray:
		return compiler.Slot{Values: v.FloatArray}
	default:
		return compiler.Slot{Values: []float32{0}}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Package voice tracks active notes and drives per-buffer execution of a
// compiled program across all of them.
package voice

import "math"

const (
	numMIDINotes = 128
	// minSilentTime is how long, in seconds, a decaying voice's output must
	// stay below silentCutoff before it is retired.
	minSilentTime = 0.1
	silentCutoff  = 1e-5
)

// NoteData is the per-voice state fed into a program's fixed input slots.
type NoteData struct {
	Pitch           float32
	Velocity        float32
	ElapsedSamples  int
	ElapsedBeats    float32
	StartTrigger    bool
	ReleaseTrigger  bool
}

type completeNoteData struct {
	data         NoteData
	silentSamples int
	staticIndex  int
}

// Tracker holds every active voice: one per held MIDI key, any number
// currently decaying after release, and an optional always-on dummy voice.
type Tracker struct {
	dummyNote   *completeNoteData
	heldNotes   [numMIDINotes]*completeNoteData
	decaying    []*completeNoteData
	reserved    map[int]bool
	toReset     []int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{reserved: make(map[int]bool)}
}

// reserveStaticIndex allocates the smallest free non-negative integer and
// queues it for a static-data reset before its first use.
func (t *Tracker) reserveStaticIndex() int {
	index := 0
	for t.reserved[index] {
		index++
	}
	t.reserved[index] = true
	t.toReset = append(t.toReset, index)
	return index
}

// DrainIndexesToReset returns and clears the queue of static indexes that
// need their per-voice state reinitialized before the next execution.
func (t *Tracker) DrainIndexesToReset() []int {
	out := t.toReset
	t.toReset = nil
	return out
}

// equalTemperedTuning converts a MIDI note index into Hz, anchored at A4
// (MIDI 69) = 440Hz.
func equalTemperedTuning(index int) float32 {
	return 440.0 * float32(math.Pow(2, float64(index-69)/12.0))
}

// StartNote begins a new held voice for the given MIDI key, unless one is
// already held there. Returns true if a voice was actually started.
func (t *Tracker) StartNote(index int, velocity float32) bool {
	if index < 0 || index >= numMIDINotes || t.heldNotes[index] != nil {
		return false
	}
	staticIndex := t.reserveStaticIndex()
	t.heldNotes[index] = &completeNoteData{
		data: NoteData{
			Pitch:        equalTemperedTuning(index),
			Velocity:     velocity,
			StartTrigger: true,
		},
		staticIndex: staticIndex,
	}
	return true
}

// ReleaseNote moves the held voice at index into the decaying set. Returns
// false if no voice was held there.
func (t *Tracker) ReleaseNote(index int) bool {
	if index < 0 || index >= numMIDINotes || t.heldNotes[index] == nil {
		return false
	}
	note := t.heldNotes[index]
	t.heldNotes[index] = nil
	note.data.StartTrigger = false
	note.data.ReleaseTrigger = true
	t.decaying = append(t.decaying, note)
	return true
}

// StartDummyNote activates the dummy voice if it is not already active.
func (t *Tracker) StartDummyNote() {
	if t.dummyNote != nil {
		return
	}
	t.dummyNote = &completeNoteData{
		data: NoteData{
			Pitch:        440.0,
			Velocity:     1.0,
			StartTrigger: true,
		},
		staticIndex: t.reserveStaticIndex(),
	}
}

// StopDummyNote deactivates and frees the dummy voice's static index.
func (t *Tracker) StopDummyNote() {
	if t.dummyNote == nil {
		return
	}
	delete(t.reserved, t.dummyNote.staticIndex)
	t.dummyNote = nil
}

// SetDummyActive activates or deactivates the dummy voice as a standing
// state (used to keep the engine warm with no keys held).
func (t *Tracker) SetDummyActive(active bool) {
	if active {
		t.StartDummyNote()
	} else {
		t.StopDummyNote()
	}
}

// TriggerDummyOnce activates the dummy voice for exactly one upcoming
// render, to be cleared by the caller once that render's feedback snapshot
// has been captured. See ClearDummyOnce.
func (t *Tracker) TriggerDummyOnce() {
	t.StartDummyNote()
}

// ClearDummyOnce deactivates a dummy voice that was started by
// TriggerDummyOnce, once its single render has completed.
func (t *Tracker) ClearDummyOnce() {
	t.StopDummyNote()
}

// SilenceAll retires every voice immediately: held, decaying and dummy
// voices are dropped and every static index reservation is released.
func (t *Tracker) SilenceAll() {
	t.StopDummyNote()
	for i := range t.heldNotes {
		t.heldNotes[i] = nil
	}
	t.decaying = nil
	t.reserved = make(map[int]bool)
	t.toReset = nil
}

// AdvanceAllNotes retires decaying voices that have been silent for at
// least MIN_SILENT_TIME, and advances the elapsed time of every remaining
// active voice by one buffer.
func (t *Tracker) AdvanceAllNotes(sampleRate float32, bufferLength int, bpm float32) {
	minSilentSamples := int(minSilentTime * sampleRate)
	bufferBeats := bpm / 60.0 * float32(bufferLength) / sampleRate

	kept := t.decaying[:0]
	for _, note := range t.decaying {
		if note.silentSamples >= minSilentSamples {
			delete(t.reserved, note.staticIndex)
			continue
		}
		note.data.ElapsedSamples += bufferLength
		note.data.ElapsedBeats += bufferBeats
		note.data.StartTrigger = false
		note.data.ReleaseTrigger = false
		kept = append(kept, note)
	}
	t.decaying = kept

	for _, note := range t.heldNotes {
		if note == nil {
			continue
		}
		note.data.ElapsedSamples += bufferLength
		note.data.ElapsedBeats += bufferBeats
		note.data.StartTrigger = false
	}

	if t.dummyNote != nil {
		t.dummyNote.data.ElapsedSamples += bufferLength
		t.dummyNote.data.ElapsedBeats += bufferBeats
		t.dummyNote.data.StartTrigger = false
	}
}

// MarkSilence records that a decaying voice's most recent rendered buffer
// was silent (or not), feeding the MIN_SILENT_TIME retirement clock.
func (t *Tracker) MarkSilence(staticIndex int, bufferLength int, silent bool) {
	for _, note := range t.decaying {
		if note.staticIndex == staticIndex {
			if silent {
				note.silentSamples += bufferLength
			} else {
				note.silentSamples = 0
			}
			return
		}
	}
}

// RecommendNoteForFeedback returns the static index of the voice that
// should be displayed this buffer: the held voice with the smallest
// elapsed-samples, else the decaying voice with the smallest, else the
// dummy voice if active, else ok=false.
func (t *Tracker) RecommendNoteForFeedback() (staticIndex int, ok bool) {
	youngest := -1
	for _, note := range t.heldNotes {
		if note == nil {
			continue
		}
		if youngest == -1 || note.data.ElapsedSamples < youngest {
			youngest = note.data.ElapsedSamples
		}
	}
	if youngest == -1 {
		for _, note := range t.decaying {
			if youngest == -1 || note.data.ElapsedSamples < youngest {
				youngest = note.data.ElapsedSamples
			}
		}
	}
	for _, note := range t.heldNotes {
		if note != nil && note.data.ElapsedSamples == youngest {
			return note.staticIndex, true
		}
	}
	for _, note := range t.decaying {
		if note.data.ElapsedSamples == youngest {
			return note.staticIndex, true
		}
	}
	if t.dummyNote != nil {
		return t.dummyNote.staticIndex, true
	}
	return 0, false
}

// ActiveVoice is one voice eligible for execution this buffer.
type ActiveVoice struct {
	Data        NoteData
	StaticIndex int
}

// ActiveVoices returns every currently active voice: the dummy voice (if
// any), then held voices in MIDI key order, then decaying voices in
// release order.
func (t *Tracker) ActiveVoices() []ActiveVoice {
	var out []ActiveVoice
	if t.dummyNote != nil {
		out = append(out, ActiveVoice{Data: t.dummyNote.data, StaticIndex: t.dummyNote.staticIndex})
	}
	for _, note := range t.heldNotes {
		if note != nil {
			out = append(out, ActiveVoice{Data: note.data, StaticIndex: note.staticIndex})
		}
	}
	for _, note := range t.decaying {
		out = append(out, ActiveVoice{Data: note.data, StaticIndex: note.staticIndex})
	}
	return out
}

// ReservedCount reports how many static indexes are currently allocated,
// for tests asserting that retirement frees them.
func (t *Tracker) ReservedCount() int { return len(t.reserved) }

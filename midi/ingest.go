// Package midi turns incoming MIDI messages into note and controller events
// for the voice tracker and communication hub.
package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/audiobench/core/comms"
)

const (
	statusNoteOff        = 0x80
	statusNoteOn         = 0x90
	statusControlChange  = 0xB0
	statusPitchBend      = 0xE0
)

// Ingest decodes a raw gomidi message and, if it is musically meaningful,
// applies it to hub (as a queued note event) or stores the pitch wheel /
// controller value in its PitchWheel / MIDIControllers fields for the
// caller to fold into the next GlobalData.
type Ingest struct {
	Hub *comms.Hub

	PitchWheel      float32
	MIDIControllers [128]float32
}

// NewIngest creates an ingest bound to hub.
func NewIngest(hub *comms.Hub) *Ingest {
	return &Ingest{Hub: hub}
}

// Handle decodes one incoming MIDI message and updates state or queues a
// note event accordingly. Unrecognized or non-channel messages are
// ignored.
func (in *Ingest) Handle(msg midi.Message) {
	raw := msg.Bytes()
	if len(raw) == 0 {
		return
	}
	status := raw[0] & 0xF0
	switch status {
	case statusNoteOn:
		if len(raw) < 3 {
			return
		}
		key, velocity := raw[1], raw[2]
		if velocity == 0 {
			in.Hub.PushNoteEvent(comms.NoteEvent{Kind: comms.NoteRelease, Key: int(key)})
			return
		}
		in.Hub.PushNoteEvent(comms.NoteEvent{
			Kind:     comms.NoteStart,
			Key:      int(key),
			Velocity: float32(velocity) / 127.0,
		})
	case statusNoteOff:
		if len(raw) < 2 {
			return
		}
		in.Hub.PushNoteEvent(comms.NoteEvent{Kind: comms.NoteRelease, Key: int(raw[1])})
	case statusControlChange:
		if len(raw) < 3 {
			return
		}
		controller, value := raw[1], raw[2]
		if int(controller) < len(in.MIDIControllers) {
			in.MIDIControllers[controller] = float32(value) / 127.0
		}
	case statusPitchBend:
		if len(raw) < 3 {
			return
		}
		lsb, msb := int(raw[1]), int(raw[2])
		value := (msb << 7) | lsb // 14-bit, centered at 8192
		in.PitchWheel = (float32(value) - 8192) / 8192.0
	}
}

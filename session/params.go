// Package session resolves the engine's global render parameters from
// user preferences and reasonable defaults, independent of any specific
// audio backend.
package session

import (
	"fmt"

	"github.com/audiobench/core/voice"
)

// LatencyClass is a coarse latency preference that maps to a default
// buffer length.
type LatencyClass string

const (
	LatencyLow    LatencyClass = "low"
	LatencyMedium LatencyClass = "medium"
	LatencyHigh   LatencyClass = "high"
)

func (c LatencyClass) bufferLength() int {
	switch c {
	case LatencyLow:
		return 128
	case LatencyHigh:
		return 1024
	default:
		return 512
	}
}

const (
	defaultChannels   = 2
	defaultSampleRate = 44100
)

// Spec captures a caller's preferences for the engine's render parameters.
// Zero values mean "use the default".
type Spec struct {
	Channels            int
	PreferredSampleRate float32
	LatencyHint         LatencyClass
	BufferLengthOverride int
}

// Resolve merges spec with the engine's defaults into a concrete, valid
// voice.Params. It never returns zero channels, buffer length, or sample
// rate.
func Resolve(spec Spec) (voice.Params, error) {
	params := voice.Params{
		Channels:     defaultChannels,
		BufferLength: spec.LatencyHint.bufferLength(),
		SampleRate:   defaultSampleRate,
	}

	if spec.Channels != 0 {
		params.Channels = spec.Channels
	}
	if spec.PreferredSampleRate != 0 {
		params.SampleRate = spec.PreferredSampleRate
	}
	if spec.BufferLengthOverride != 0 {
		params.BufferLength = spec.BufferLengthOverride
	}

	if params.Channels < 1 {
		return voice.Params{}, fmt.Errorf("session: channels must be at least 1, got %d", params.Channels)
	}
	if params.BufferLength < 1 {
		return voice.Params{}, fmt.Errorf("session: buffer length must be at least 1, got %d", params.BufferLength)
	}
	if params.SampleRate <= 0 {
		return voice.Params{}, fmt.Errorf("session: sample rate must be positive, got %g", params.SampleRate)
	}

	return params, nil
}

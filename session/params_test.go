package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	p, err := Resolve(Spec{})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Channels)
	assert.Equal(t, 512, p.BufferLength)
	assert.Equal(t, float32(44100), p.SampleRate)
}

func TestResolveLatencyHintMapsToBufferLength(t *testing.T) {
	p, err := Resolve(Spec{LatencyHint: LatencyLow})
	require.NoError(t, err)
	assert.Equal(t, 128, p.BufferLength)

	p, err = Resolve(Spec{LatencyHint: LatencyHigh})
	require.NoError(t, err)
	assert.Equal(t, 1024, p.BufferLength)
}

func TestResolveExplicitOverrideWinsOverLatencyHint(t *testing.T) {
	p, err := Resolve(Spec{LatencyHint: LatencyLow, BufferLengthOverride: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, p.BufferLength)
}

func TestResolveRejectsInvalidChannels(t *testing.T) {
	_, err := Resolve(Spec{Channels: -1})
	assert.Error(t, err)
}

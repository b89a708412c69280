package datapack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackerRoundTrip(t *testing.T) {
	types := []IOType{Bool, Int, Float, BoolArray, IntArray, FloatArray}
	lens := []int{0, 0, 0, 3, 2, 4}

	values := []Value{
		{Type: Bool, Bool: true},
		{Type: Int, Int: -42},
		{Type: Float, Float: 3.25},
		{Type: BoolArray, BoolArray: []bool{true, false, true}},
		{Type: IntArray, IntArray: []int32{7, -7}},
		{Type: FloatArray, FloatArray: []float32{1, 2, 3, 4}},
	}

	p := NewPacker(types, lens)
	for i, v := range values {
		require.NoError(t, p.SetArgument(i, v))
	}

	u := NewUnpacker(types, lens, p.Bytes())
	for i, want := range values {
		got, err := u.GetArgument(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPackerRejectsTypeMismatch(t *testing.T) {
	p := NewPacker([]IOType{Float}, []int{0})
	err := p.SetArgument(0, Value{Type: Int, Int: 1})
	assert.Error(t, err)
}

func TestPitchWheelMultiplier(t *testing.T) {
	assert.Equal(t, float32(1.0), PitchWheelMultiplier(0))
	assert.Equal(t, float32(1.0), PitchWheelMultiplier(0.1))
	assert.Equal(t, float32(1.0), PitchWheelMultiplier(-0.1))

	up := PitchWheelMultiplier(1.0)
	assert.InDelta(t, 1.4983070768766815, float64(up), 1e-4) // 2^(7/12)

	down := PitchWheelMultiplier(-1.0)
	assert.InDelta(t, 1/1.4983070768766815, float64(down), 1e-4) // 2^(-7/12)

	// Continuity at the deadzone boundary.
	justOutside := PitchWheelMultiplier(0.1 + 1e-6)
	assert.InDelta(t, 1.0, float64(justOutside), 1e-3)
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutomationControlDefault(t *testing.T) {
	c := NewAutomationControl("freq", 20, 20000, 440, "Hz")
	assert.Equal(t, float32(440), c.Value)
	assert.Empty(t, c.Lanes)
}

func TestAutomationControlSeverConnectionsWith(t *testing.T) {
	g := NewModuleGraph()
	src := g.Add(NewModule(sineTemplate()))
	other := g.Add(NewModule(sineTemplate()))

	c := NewAutomationControl("freq", 20, 20000, 440, "Hz")
	c.AddLane(src, 0, 20, 20000)
	c.AddLane(other, 0, 20, 20000)

	c.severConnectionsWith(src)

	assert.Len(t, c.Lanes, 1)
	assert.Equal(t, other, c.Lanes[0].Source)
}

func TestDurationControlFractionRoundTrip(t *testing.T) {
	d := NewDurationControl(0.25)
	d.UseFractionalMode()
	assert.True(t, d.FractionMode)
	assert.InDelta(t, 0.25, float64(d.rawValue()), 0.01)

	d.UseDecimalMode()
	assert.False(t, d.FractionMode)
	assert.InDelta(t, 0.25, float64(d.DecimalValue), 0.01)
}

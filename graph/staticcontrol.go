package graph

import (
	"fmt"

	"github.com/audiobench/core/datapack"
)

// StaticControl is a discrete, serializable per-module parameter that
// contributes either baked-in code (static-only) or a dynamic input to the
// generated program.
type StaticControl interface {
	// IsStaticOnly reports whether this control never needs a dynamic
	// input slot — its current value can always be baked directly into
	// the generated source text.
	IsStaticOnly() bool
	// GenerateStaticCode returns the literal expression baked into the
	// source when IsStaticOnly is true.
	GenerateStaticCode() string
	// DynamicType returns the IOType of the dynamic input slot this
	// control consumes when IsStaticOnly is false.
	DynamicType() datapack.IOType
	// GenerateDynamicCode returns the code fragment referencing the named
	// dynamic input slot, used in the call to the module's exec function.
	GenerateDynamicCode(inputName string) string
	// Value returns the control's current value packed for the dynamic
	// input slot. Only meaningful when IsStaticOnly is false.
	Value() datapack.Value
}

// DurationControl models a duration either as a decimal number of seconds
// or as a musical fraction (numerator/denominator), mirroring the source
// system's tempo-synced duration controls.
type DurationControl struct {
	FractionMode        bool
	DecimalValue        float32
	FractionNumerator   uint8
	FractionDenominator uint8
}

// NewDurationControl creates a decimal-mode duration control.
func NewDurationControl(seconds float32) *DurationControl {
	return &DurationControl{DecimalValue: seconds, FractionNumerator: 1, FractionDenominator: 1}
}

func (d *DurationControl) IsStaticOnly() bool { return false }

func (d *DurationControl) GenerateStaticCode() string { return "" }

func (d *DurationControl) DynamicType() datapack.IOType { return datapack.Float }

func (d *DurationControl) GenerateDynamicCode(inputName string) string {
	return fmt.Sprintf("StaticControlSignal(%s)", inputName)
}

func (d *DurationControl) rawValue() float32 {
	if d.FractionMode {
		return float32(d.FractionNumerator) / float32(d.FractionDenominator)
	}
	return d.DecimalValue
}

func (d *DurationControl) Value() datapack.Value {
	return datapack.Value{Type: datapack.Float, Float: d.rawValue()}
}

// UseFractionalMode switches representation while preserving the closest
// representable fraction to the current decimal value.
func (d *DurationControl) UseFractionalMode() {
	if d.FractionMode {
		return
	}
	d.FractionMode = true
	best := [3]float32{1, 1, 1.0}
	for _, den := range []uint8{2, 3, 4, 5, 6, 8, 10, 12, 15, 16, 20, 24, 32} {
		for num := uint8(1); num <= 20; num++ {
			v := float32(num) / float32(den)
			dist := v - d.DecimalValue
			if dist < 0 {
				dist = -dist
			}
			if dist < best[2] {
				best = [3]float32{float32(num), float32(den), dist}
			}
		}
	}
	d.FractionNumerator = uint8(best[0])
	d.FractionDenominator = uint8(best[1])
}

// UseDecimalMode switches representation back to a plain decimal seconds
// value computed from the current fraction.
func (d *DurationControl) UseDecimalMode() {
	if !d.FractionMode {
		return
	}
	d.FractionMode = false
	d.DecimalValue = float32(d.FractionNumerator) / float32(d.FractionDenominator)
}

// FrequencyControl is a static-only oscillator frequency in Hz, baked
// directly into the generated source since it never needs to vary
// per-buffer.
type FrequencyControl struct {
	Hz float32
}

func NewFrequencyControl(hz float32) *FrequencyControl { return &FrequencyControl{Hz: hz} }

func (f *FrequencyControl) IsStaticOnly() bool { return true }

func (f *FrequencyControl) GenerateStaticCode() string {
	return fmt.Sprintf("%g", f.Hz)
}

func (f *FrequencyControl) DynamicType() datapack.IOType          { return datapack.Float }
func (f *FrequencyControl) GenerateDynamicCode(string) string      { return "" }
func (f *FrequencyControl) Value() datapack.Value                 { return datapack.Value{} }

// FilterTypeControl is a static-only enumerated selector (e.g. lowpass /
// highpass / bandpass), baked directly into the generated source as an
// integer tag.
type FilterTypeControl struct {
	Options []string
	Index   int
}

func NewFilterTypeControl(options []string) *FilterTypeControl {
	return &FilterTypeControl{Options: options}
}

func (f *FilterTypeControl) IsStaticOnly() bool { return true }

func (f *FilterTypeControl) GenerateStaticCode() string {
	return fmt.Sprintf("%d", f.Index)
}

func (f *FilterTypeControl) DynamicType() datapack.IOType     { return datapack.Int }
func (f *FilterTypeControl) GenerateDynamicCode(string) string { return "" }
func (f *FilterTypeControl) Value() datapack.Value            { return datapack.Value{} }

// Selected returns the option name currently selected.
func (f *FilterTypeControl) Selected() string {
	if f.Index < 0 || f.Index >= len(f.Options) {
		return ""
	}
	return f.Options[f.Index]
}

package graph

// AutomationLane maps one module output's audio-rate signal, linearly
// rescaled from [-1, +1] into Range, into an AutomationControl.
type AutomationLane struct {
	Source ModuleRef
	Output int
	Range  [2]float32 // (min, max)
}

// AutomationControl is a scalar parameter that can be continuously
// modulated by summed automation lanes.
type AutomationControl struct {
	CodeName string
	Range    [2]float32 // (min, max)
	Default  float32
	Value    float32
	Suffix   string
	Lanes    []AutomationLane
}

// NewAutomationControl creates a control at its default value with no
// lanes attached.
func NewAutomationControl(codeName string, min, max, def float32, suffix string) *AutomationControl {
	return &AutomationControl{
		CodeName: codeName,
		Range:    [2]float32{min, max},
		Default:  def,
		Value:    def,
		Suffix:   suffix,
	}
}

// severConnectionsWith removes any lane sourced from the given module.
func (c *AutomationControl) severConnectionsWith(ref ModuleRef) {
	kept := c.Lanes[:0]
	for _, lane := range c.Lanes {
		if lane.Source != ref {
			kept = append(kept, lane)
		}
	}
	c.Lanes = kept
}

// AddLane attaches a new automation lane to the control.
func (c *AutomationControl) AddLane(source ModuleRef, output int, min, max float32) {
	c.Lanes = append(c.Lanes, AutomationLane{Source: source, Output: output, Range: [2]float32{min, max}})
}

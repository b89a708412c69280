package graph

import "github.com/audiobench/core/datapack"

// ModuleRef is an opaque handle to a module inside a ModuleGraph's arena.
// It stays valid across additions and removals of other modules; a
// generation mismatch means the slot was reused by a later Add after the
// originally-referenced module was removed, so the handle is stale and
// resolves to nothing.
type ModuleRef struct {
	index      int
	generation uint32
}

// IsValid reports whether the ref names any slot at all. It does not by
// itself guarantee the slot is still occupied by the module this ref was
// taken from — use ModuleGraph.Resolve for that.
func (r ModuleRef) IsValid() bool { return r.generation != 0 }

// ModuleTemplate is the immutable, shared description of one entry in the
// module library: its code body identity and its jack layout. Many Module
// instances in many graphs can share the same template.
type ModuleTemplate struct {
	Library  string
	Name     string
	CodeID   string
	Inputs   []Jack
	Outputs  []Jack
	// FeedbackDataLen is the number of float32 slots a module of this
	// template writes into the feedback output when selected as the
	// feedback-displayed voice. Zero if the module has no feedback display.
	FeedbackDataLen int
}

// InputConnection is either a wire from another module's output, or a
// selection among the jack's built-in default options.
type InputConnection struct {
	wired   bool
	source  ModuleRef
	output  int
	defIdx  int
}

// WireInput connects an input jack to another module's output.
func WireInput(source ModuleRef, output int) InputConnection {
	return InputConnection{wired: true, source: source, output: output}
}

// DefaultInputConn selects one of the jack's built-in default options by index.
func DefaultInputConn(optionIndex int) InputConnection {
	return InputConnection{wired: false, defIdx: optionIndex}
}

// IsWired reports whether this connection sources from another module.
func (c InputConnection) IsWired() bool { return c.wired }

// Wire returns the source module ref and output index. Only meaningful
// when IsWired is true.
func (c InputConnection) Wire() (ModuleRef, int) { return c.source, c.output }

// DefaultIndex returns the selected default option index. Only meaningful
// when IsWired is false.
func (c InputConnection) DefaultIndex() int { return c.defIdx }

// Module is one node in a ModuleGraph: a template reference plus its
// instance-specific state (wiring, controls, feedback buffer, position).
type Module struct {
	Template *ModuleTemplate

	X, Y float32

	Inputs             []InputConnection
	AutomationControls []*AutomationControl
	StaticControls      []StaticControl

	// feedbackData holds the most recent feedback snapshot for this
	// module's instance, owned by the graph editor and refreshed only
	// while this module is the one selected for feedback display.
	feedbackData []float32
}

// NewModule creates a module instance from a template with every input set
// to its jack's first default option and every automation control at its
// default value.
func NewModule(tmpl *ModuleTemplate) *Module {
	m := &Module{
		Template: tmpl,
		Inputs:   make([]InputConnection, len(tmpl.Inputs)),
	}
	for i := range tmpl.Inputs {
		m.Inputs[i] = DefaultInputConn(0)
	}
	if tmpl.FeedbackDataLen > 0 {
		m.feedbackData = make([]float32, tmpl.FeedbackDataLen)
	}
	return m
}

// FeedbackData returns the module's current feedback snapshot buffer.
func (m *Module) FeedbackData() []float32 { return m.feedbackData }

// SetFeedbackData overwrites the module's feedback snapshot buffer in
// place. len(data) must equal the template's FeedbackDataLen.
func (m *Module) SetFeedbackData(data []float32) {
	copy(m.feedbackData, data)
}

// severInputsReferencing clears any wired input jack sourced from ref back
// to its jack's first default option.
func (m *Module) severInputsReferencing(ref ModuleRef) {
	for i, in := range m.Inputs {
		if in.IsWired() {
			if src, _ := in.Wire(); src == ref {
				m.Inputs[i] = DefaultInputConn(0)
			}
		}
	}
}

// severAutomationReferencing removes every automation lane sourced from ref
// across all of the module's automation controls.
func (m *Module) severAutomationReferencing(ref ModuleRef) {
	for _, ac := range m.AutomationControls {
		ac.severConnectionsWith(ref)
	}
}

// staticDataValues packs the current values of every non-static-only
// control in declaration order, matching the dynamic input slots reserved
// for this module starting at datapack.SlotStaticonDynDataStart.
func (m *Module) staticDataValues() []datapack.Value {
	var vals []datapack.Value
	for _, sc := range m.StaticControls {
		if !sc.IsStaticOnly() {
			vals = append(vals, sc.Value())
		}
	}
	return vals
}

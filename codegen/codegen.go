// Package codegen turns a module graph into the line-oriented textual
// program consumed by compiler.Compiler, plus the bookkeeping needed to
// feed it per-buffer dynamic data and read back its feedback output.
package codegen

import (
	"fmt"
	"strings"

	"github.com/audiobench/core/datapack"
	"github.com/audiobench/core/graph"
)

// DataFormat describes the shape of the dynamic data a generated program
// expects on each call, and the feedback data it produces.
type DataFormat struct {
	BufferLength int
	SampleRate   float32

	AutoconDynDataLen   int
	StaticonDynDataTypes []datapack.IOType
	FeedbackDataLen     int
}

// Result is everything produced by a single Generate call.
type Result struct {
	Source               string
	AutoconDynDataCollector *AutoconDynDataCollector
	StaticonDynDataCollector *StaticonDynDataCollector
	FeedbackDisplayer    *FeedbackDisplayer
	Format               DataFormat
}

type autoconRef struct {
	control *graph.AutomationControl
}

// AutoconDynDataCollector walks the flat schedule of automation controls
// recorded during code generation and packs their current lane-derived
// coefficients into the autocon dynamic data slot ahead of each render.
type AutoconDynDataCollector struct {
	order []autoconRef
	len   int
}

// Collect packs, in schedule order, one slot holding the current Value of
// each control that has no lanes, and for each lane of a control that has
// lanes a (multiplier, offset) pair such that raw_output*multiplier+offset
// maps the lane source's [-1, +1] output onto the lane's range. The
// generated code sums the terms of a control's lanes.
func (c *AutoconDynDataCollector) Collect() []float32 {
	out := make([]float32, c.len)
	i := 0
	for _, ref := range c.order {
		ctrl := ref.control
		if len(ctrl.Lanes) == 0 {
			out[i] = ctrl.Value
			i++
			continue
		}
		for _, lane := range ctrl.Lanes {
			mul := (lane.Range[1] - lane.Range[0]) / 2
			off := (lane.Range[1] + lane.Range[0]) / 2
			out[i] = mul
			out[i+1] = off
			i += 2
		}
	}
	return out
}

// Len returns the total autocon dynamic data length.
func (c *AutoconDynDataCollector) Len() int { return c.len }

// StaticonDynDataCollector packs the current value of every non-static-only
// StaticControl encountered during code generation, in schedule order.
type StaticonDynDataCollector struct {
	controls []graph.StaticControl
}

// Collect returns the packed values in schedule order.
func (c *StaticonDynDataCollector) Collect() []datapack.Value {
	vals := make([]datapack.Value, len(c.controls))
	for i, ctrl := range c.controls {
		vals[i] = ctrl.Value()
	}
	return vals
}

// FeedbackDisplayer records, for the currently feedback-selected module
// index, how to interpret that module's slice of the feedback output
// buffer.
type FeedbackDisplayer struct {
	modules         []*graph.Module
	feedbackDataLen int
}

// DataLenFor returns the module at the given execution index's feedback
// slot length.
func (f *FeedbackDisplayer) DataLenFor(moduleIndex int) int {
	if moduleIndex < 0 || moduleIndex >= len(f.modules) {
		return 0
	}
	if f.modules[moduleIndex].Template.FeedbackDataLen == 0 {
		return 0
	}
	return f.modules[moduleIndex].Template.FeedbackDataLen
}

// TotalLen returns the total feedback buffer length across all modules.
func (f *FeedbackDisplayer) TotalLen() int { return f.feedbackDataLen }

// Generate computes an execution order for g and emits the textual program
// plus collectors bound to it. The returned source text is deterministic
// for a given graph topology, wiring, and global parameters: running
// Generate twice without modifying the graph between calls yields
// byte-identical source.
func Generate(g *graph.ModuleGraph, bufferLength int, sampleRate float32) (*Result, error) {
	order, err := g.ComputeExecutionOrder()
	if err != nil {
		return nil, err
	}

	execIndex := make(map[graph.ModuleRef]int, len(order))
	for i, ref := range order {
		execIndex[ref] = i
	}

	gen := &generator{
		graph:        g,
		order:        order,
		execIndex:    execIndex,
		bufferLength: bufferLength,
		sampleRate:   sampleRate,
	}
	return gen.run()
}

type generator struct {
	graph        *graph.ModuleGraph
	order        []graph.ModuleRef
	execIndex    map[graph.ModuleRef]int // position of each module in order
	bufferLength int
	sampleRate   float32

	autoconOrder []autoconRef
	autoconLen   int

	staticonOrder []graph.StaticControl
	staticonTypes []datapack.IOType
}

func (gen *generator) nextAuxValue() string {
	idx := gen.autoconLen
	gen.autoconLen++
	return fmt.Sprintf("autocon_dyn_data[%d]", idx)
}

func (gen *generator) codeForLane(lane graph.AutomationLane) string {
	modIndex := gen.execIndex[lane.Source]
	return fmt.Sprintf("module_%d_output_%d * %s + %s", modIndex, lane.Output, gen.nextAuxValue(), gen.nextAuxValue())
}

func (gen *generator) codeForAutomationControl(ctrl *graph.AutomationControl) string {
	gen.autoconOrder = append(gen.autoconOrder, autoconRef{control: ctrl})
	if len(ctrl.Lanes) == 0 {
		return gen.nextAuxValue()
	}
	parts := make([]string, len(ctrl.Lanes))
	for i, lane := range ctrl.Lanes {
		parts[i] = gen.codeForLane(lane)
	}
	return strings.Join(parts, " + ")
}

// codeForStaticControl returns the expression an EXEC call site should pass
// for one of a module's static controls: a literal baked straight into the
// source for static-only controls, or a reference to a staticon dynamic
// data slot name for controls whose value can change without recompiling.
func (gen *generator) codeForStaticControl(ctrl graph.StaticControl) string {
	if ctrl.IsStaticOnly() {
		return ctrl.GenerateStaticCode()
	}
	inputName := fmt.Sprintf("staticon_dyn_data_%d", len(gen.staticonOrder))
	gen.staticonOrder = append(gen.staticonOrder, ctrl)
	gen.staticonTypes = append(gen.staticonTypes, ctrl.DynamicType())
	return ctrl.GenerateDynamicCode(inputName)
}

func (gen *generator) codeForInput(conn graph.InputConnection, jack graph.Jack) string {
	if conn.IsWired() {
		src, output := conn.Wire()
		return fmt.Sprintf("module_%d_output_%d", gen.execIndex[src], output)
	}
	opts := jack.DefaultOptions
	idx := conn.DefaultIndex()
	if idx < 0 || idx >= len(opts) {
		return "0.0"
	}
	return opts[idx].Code
}

func (gen *generator) run() (*Result, error) {
	var sb strings.Builder
	sb.WriteString("MODULE Generated\n")
	fmt.Fprintf(&sb, "BUFFER_LENGTH %d\n", gen.bufferLength)
	fmt.Fprintf(&sb, "SAMPLE_RATE %g\n", gen.sampleRate)

	modules := make([]*graph.Module, len(gen.order))
	for i, ref := range gen.order {
		m, _ := gen.graph.Resolve(ref)
		modules[i] = m
	}

	feedbackLen := 0
	for _, m := range modules {
		if m.Template.FeedbackDataLen > 0 {
			feedbackLen += m.Template.FeedbackDataLen
		}
	}

	sb.WriteString("EXEC\n")
	for index, m := range modules {
		tmpl := m.Template
		sb.WriteString("  CALL ")
		sb.WriteString(tmpl.CodeID)
		sb.WriteString(" -> ")
		outs := make([]string, len(tmpl.Outputs))
		for o := range tmpl.Outputs {
			outs[o] = fmt.Sprintf("module_%d_output_%d", index, o)
		}
		sb.WriteString(strings.Join(outs, ", "))
		sb.WriteString("\n")
		for i, conn := range m.Inputs {
			jack := tmpl.Inputs[i]
			fmt.Fprintf(&sb, "    ARG %s # %s\n", gen.codeForInput(conn, jack), jack.CodeName)
		}
		for _, ctrl := range m.AutomationControls {
			fmt.Fprintf(&sb, "    ARG %s # %s\n", gen.codeForAutomationControl(ctrl), ctrl.CodeName)
		}
		for _, sc := range m.StaticControls {
			fmt.Fprintf(&sb, "    ARG %s # static\n", gen.codeForStaticControl(sc))
		}
		sb.WriteString("  END_CALL\n")
	}
	sb.WriteString("END_EXEC\n")
	sb.WriteString("END_MODULE\n")

	format := DataFormat{
		BufferLength:         gen.bufferLength,
		SampleRate:           gen.sampleRate,
		AutoconDynDataLen:    gen.autoconLen,
		StaticonDynDataTypes: gen.staticonTypes,
		FeedbackDataLen:      feedbackLen,
	}

	return &Result{
		Source: sb.String(),
		AutoconDynDataCollector: &AutoconDynDataCollector{
			order: gen.autoconOrder,
			len:   gen.autoconLen,
		},
		StaticonDynDataCollector: &StaticonDynDataCollector{controls: gen.staticonOrder},
		FeedbackDisplayer: &FeedbackDisplayer{
			modules:         modules,
			feedbackDataLen: feedbackLen,
		},
		Format: format,
	}, nil
}

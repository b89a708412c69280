package audiobench

import (
	"fmt"
	"sync"
	"time"

	"github.com/audiobench/core/graph"
	"github.com/audiobench/core/voice"
)

// OperationType identifies a topology-changing operation serialized
// through the Dispatcher.
type OperationType string

const (
	OpAddModule            OperationType = "add_module"
	OpRemoveModule         OperationType = "remove_module"
	OpConnectWire          OperationType = "connect_wire"
	OpDisconnectWire       OperationType = "disconnect_wire"
	OpSetAutomationLane    OperationType = "set_automation_lane"
	OpRemoveAutomationLane OperationType = "remove_automation_lane"
	OpSetStaticControl     OperationType = "set_static_control"
	OpChangeGlobalParams   OperationType = "change_global_params"
)

// DispatcherOperation is one queued topology change awaiting execution on
// the dispatcher's single worker goroutine, with a response channel the
// caller blocks on.
type DispatcherOperation struct {
	Type     OperationType
	Data     interface{}
	Response chan DispatcherResult
}

// DispatcherResult is the outcome of one DispatcherOperation.
type DispatcherResult struct {
	Success bool
	Data    interface{}
	Error   error
}

// Dispatcher serializes every module graph mutation through a single
// buffered operations channel, so two calls changing the graph at once
// can never interleave mid-recompile. It also tracks how long each
// topology change took.
type Dispatcher struct {
	engine *Engine

	mu         sync.RWMutex
	running    bool
	operations chan DispatcherOperation
	stopChan   chan struct{}

	performanceMu         sync.RWMutex
	lastOperationDuration time.Duration
	maxOperationDuration  time.Duration
}

// NewDispatcher creates a dispatcher bound to engine. Call Start before
// queuing any operation.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{
		engine:     engine,
		operations: make(chan DispatcherOperation, 100),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the dispatch loop goroutine.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher: already running")
	}
	d.running = true
	go d.dispatchLoop()
	return nil
}

// Stop halts the dispatch loop. Operations already queued are abandoned.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	close(d.stopChan)
}

// GetPerformanceStats reports the most recent and worst operation
// latencies observed so far.
func (d *Dispatcher) GetPerformanceStats() (last, max time.Duration) {
	d.performanceMu.RLock()
	defer d.performanceMu.RUnlock()
	return d.lastOperationDuration, d.maxOperationDuration
}

func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case <-d.stopChan:
			return
		case op := <-d.operations:
			start := time.Now()
			result := d.executeOperation(op)
			duration := time.Since(start)

			d.performanceMu.Lock()
			d.lastOperationDuration = duration
			if duration > d.maxOperationDuration {
				d.maxOperationDuration = duration
			}
			d.performanceMu.Unlock()

			if duration > 300*time.Millisecond {
				d.engine.errorHandler.HandleError(NewEngineError(ErrExecutionError,
					fmt.Errorf("topology change took %v, target is sub-300ms", duration)))
			}

			op.Response <- result
		}
	}
}

func (d *Dispatcher) executeOperation(op DispatcherOperation) DispatcherResult {
	switch op.Type {
	case OpAddModule:
		data := op.Data.(addModuleData)
		ref, err := d.engine.addModule(data.Template)
		return DispatcherResult{Success: err == nil, Data: ref, Error: err}

	case OpRemoveModule:
		data := op.Data.(removeModuleData)
		err := d.engine.removeModule(data.Ref)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpConnectWire:
		data := op.Data.(connectWireData)
		err := d.engine.connectWire(data.Target, data.InputIndex, data.Source, data.OutputIndex)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpDisconnectWire:
		data := op.Data.(disconnectWireData)
		err := d.engine.disconnectWire(data.Target, data.InputIndex, data.DefaultIndex)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetAutomationLane:
		data := op.Data.(setAutomationLaneData)
		err := d.engine.setAutomationLane(data.Target, data.ControlIndex, data.Source, data.Output, data.Min, data.Max)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpRemoveAutomationLane:
		data := op.Data.(removeAutomationLaneData)
		err := d.engine.removeAutomationLane(data.Target, data.ControlIndex, data.LaneIndex)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetStaticControl:
		data := op.Data.(setStaticControlData)
		err := d.engine.setStaticControl(data.Target, data.ControlIndex, data.Apply)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpChangeGlobalParams:
		data := op.Data.(changeGlobalParamsData)
		err := d.engine.changeGlobalParams(data.Params)
		return DispatcherResult{Success: err == nil, Error: err}

	default:
		return DispatcherResult{Success: false, Error: fmt.Errorf("dispatcher: unknown operation type: %s", op.Type)}
	}
}

// Operation payload types.

type addModuleData struct {
	Template *graph.ModuleTemplate
}

type removeModuleData struct {
	Ref graph.ModuleRef
}

type connectWireData struct {
	Target      graph.ModuleRef
	InputIndex  int
	Source      graph.ModuleRef
	OutputIndex int
}

type disconnectWireData struct {
	Target       graph.ModuleRef
	InputIndex   int
	DefaultIndex int
}

type setAutomationLaneData struct {
	Target       graph.ModuleRef
	ControlIndex int
	Source       graph.ModuleRef
	Output       int
	Min, Max     float32
}

type removeAutomationLaneData struct {
	Target       graph.ModuleRef
	ControlIndex int
	LaneIndex    int
}

type setStaticControlData struct {
	Target       graph.ModuleRef
	ControlIndex int
	Apply        func(graph.StaticControl)
}

type changeGlobalParamsData struct {
	Params voice.Params
}

// Public API. Each method queues one operation and blocks for its result
// on a dedicated rendezvous channel.

// AddModule instantiates tmpl into the graph and recompiles.
func (d *Dispatcher) AddModule(tmpl *graph.ModuleTemplate) (graph.ModuleRef, error) {
	result := d.submit(OpAddModule, addModuleData{Template: tmpl})
	if result.Success {
		return result.Data.(graph.ModuleRef), nil
	}
	return graph.ModuleRef{}, result.Error
}

// RemoveModule deletes a module and recompiles.
func (d *Dispatcher) RemoveModule(ref graph.ModuleRef) error {
	return d.submit(OpRemoveModule, removeModuleData{Ref: ref}).Error
}

// ConnectWire wires an input jack to another module's output and
// recompiles.
func (d *Dispatcher) ConnectWire(target graph.ModuleRef, inputIndex int, source graph.ModuleRef, outputIndex int) error {
	return d.submit(OpConnectWire, connectWireData{
		Target: target, InputIndex: inputIndex, Source: source, OutputIndex: outputIndex,
	}).Error
}

// DisconnectWire reverts an input jack to one of its default options and
// recompiles.
func (d *Dispatcher) DisconnectWire(target graph.ModuleRef, inputIndex int, defaultIndex int) error {
	return d.submit(OpDisconnectWire, disconnectWireData{
		Target: target, InputIndex: inputIndex, DefaultIndex: defaultIndex,
	}).Error
}

// SetAutomationLane attaches a new automation lane to a module's control
// and recompiles.
func (d *Dispatcher) SetAutomationLane(target graph.ModuleRef, controlIndex int, source graph.ModuleRef, output int, min, max float32) error {
	return d.submit(OpSetAutomationLane, setAutomationLaneData{
		Target: target, ControlIndex: controlIndex, Source: source, Output: output, Min: min, Max: max,
	}).Error
}

// RemoveAutomationLane removes one lane from a module's control and
// recompiles.
func (d *Dispatcher) RemoveAutomationLane(target graph.ModuleRef, controlIndex, laneIndex int) error {
	return d.submit(OpRemoveAutomationLane, removeAutomationLaneData{
		Target: target, ControlIndex: controlIndex, LaneIndex: laneIndex,
	}).Error
}

// SetStaticControl applies apply to one of a module's static controls and
// recompiles, since a static control's code-generation shape can change
// (e.g. a duration control switching between fractional and decimal mode).
func (d *Dispatcher) SetStaticControl(target graph.ModuleRef, controlIndex int, apply func(graph.StaticControl)) error {
	return d.submit(OpSetStaticControl, setStaticControlData{
		Target: target, ControlIndex: controlIndex, Apply: apply,
	}).Error
}

// ChangeGlobalParams changes the engine's channel count, buffer length, or
// sample rate and recompiles against the new shape.
func (d *Dispatcher) ChangeGlobalParams(params voice.Params) error {
	return d.submit(OpChangeGlobalParams, changeGlobalParamsData{Params: params}).Error
}

func (d *Dispatcher) submit(opType OperationType, data interface{}) DispatcherResult {
	response := make(chan DispatcherResult, 1)
	d.operations <- DispatcherOperation{Type: opType, Data: data, Response: response}
	return <-response
}

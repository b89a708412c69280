// Package audiobench is the root of a real-time modular audio engine: a
// single current module graph compiled into a textual program, executed
// once per active voice every buffer, and exposed to a real-time audio
// callback through a lock-free communication hub.
package audiobench

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/audiobench/core/codegen"
	"github.com/audiobench/core/compiler"
	"github.com/audiobench/core/comms"
	"github.com/audiobench/core/graph"
	"github.com/audiobench/core/graph/factorylib"
	"github.com/audiobench/core/session"
	"github.com/audiobench/core/voice"
)

// EngineInitState tracks the engine's lifecycle from construction through
// a running render worker.
type EngineInitState int

const (
	EngineCreated EngineInitState = iota
	CodeCompiled
	EngineRunning
)

// EngineConfig configures a new Engine. Every field is optional; zero
// values resolve to the engine's defaults.
type EngineConfig struct {
	Session      session.Spec
	Compiler     compiler.Compiler // defaults to the reference Interpreter
	Registry     *graph.Registry   // defaults to a fresh Registry with factorylib registered
	ErrorHandler ErrorHandler      // defaults to DefaultErrorHandler
}

// Engine owns the one current module graph, the voice tracker driving it,
// and the communication hub a real-time audio callback uses to request
// renders without ever blocking on the graph's mutex.
type Engine struct {
	id   uuid.UUID
	name string

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	initState EngineInitState

	graph        *graph.ModuleGraph
	tracker      *voice.Tracker
	params       voice.Params
	registry     *graph.Registry
	codeCompiler compiler.Compiler

	program           compiler.Program
	feedbackDataLen   int
	autoconCollector  *codegen.AutoconDynDataCollector
	staticonCollector *codegen.StaticonDynDataCollector

	hub        *comms.Hub
	dispatcher *Dispatcher

	errorHandler ErrorHandler
	fatal        chan *EngineError
}

// NewEngine resolves config into concrete render parameters, builds an
// empty module graph, compiles it once (an empty graph is a valid, silent
// patch), and starts the topology dispatcher before returning, so the
// graph can be edited through Dispatcher before Start is called.
func NewEngine(config EngineConfig) (*Engine, error) {
	params, err := session.Resolve(config.Session)
	if err != nil {
		return nil, fmt.Errorf("audiobench: %w", err)
	}

	registry := config.Registry
	if registry == nil {
		registry = graph.NewRegistry()
		factorylib.Register(registry)
	}

	codeCompiler := config.Compiler
	if codeCompiler == nil {
		codeCompiler = compiler.NewInterpreter(registry, params.Channels)
	}

	errorHandler := config.ErrorHandler
	if errorHandler == nil {
		errorHandler = &DefaultErrorHandler{}
	}

	e := &Engine{
		id:           uuid.New(),
		graph:        graph.NewModuleGraph(),
		tracker:      voice.NewTracker(),
		params:       params,
		registry:     registry,
		codeCompiler: codeCompiler,
		hub:          comms.NewHub(params),
		errorHandler: errorHandler,
		fatal:        make(chan *EngineError, 8),
		initState:    EngineCreated,
	}
	e.dispatcher = NewDispatcher(e)

	if err := e.recompile(); err != nil {
		return nil, err
	}
	if err := e.dispatcher.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetID returns the engine's internal identity.
func (e *Engine) GetID() uuid.UUID { return e.id }

// GetIDString returns GetID formatted as a string, for logging and
// serialization.
func (e *Engine) GetIDString() string { return e.id.String() }

// GetName returns the engine's display name, empty until SetName is
// called.
func (e *Engine) GetName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name
}

// SetName sets the engine's display name.
func (e *Engine) SetName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
}

// Hub returns the communication hub an audio callback and a MIDI ingest
// goroutine use to talk to the engine without touching its mutex.
func (e *Engine) Hub() *comms.Hub { return e.hub }

// Dispatcher returns the engine's topology dispatcher, used to mutate the
// module graph from any goroutine safely.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// Params returns the engine's current render parameters.
func (e *Engine) Params() voice.Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// IsRunning reports whether the render worker is active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Fatal returns a channel for unrecoverable worker failures. No code path
// in Engine sends on it: a render error goes to the ErrorHandler as
// ErrExecutionError and the worker keeps running, and an invalid parameter
// change is returned to the Dispatcher caller as ErrParameterUpdateFailed.
func (e *Engine) Fatal() <-chan *EngineError { return e.fatal }

// Start launches the render worker goroutine. The topology dispatcher is
// already running, started by NewEngine.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: engine already running")
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	e.initState = EngineRunning
	e.mu.Unlock()

	go e.renderWorker()
	return nil
}

// Stop halts the render worker and the topology dispatcher. Safe to call
// more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.hub.Poll()
	e.dispatcher.Stop()
}

// renderWorker is the processing thread: it waits for render requests from
// the audio thread, applies any pending code/parameter changes first, and
// never performs a topology mutation itself.
func (e *Engine) renderWorker() {
	e.hub.SetStatus(comms.Ready)
	for {
		req, ok := e.hub.WaitRenderRequest()

		select {
		case <-e.ctx.Done():
			return
		default:
		}

		if !ok {
			e.applyPending()
			continue
		}

		e.hub.SetStatus(comms.NotReady)
		e.applyPending()

		for _, ev := range e.hub.DrainNoteEvents() {
			switch ev.Kind {
			case comms.NoteStart:
				e.tracker.StartNote(ev.Key, ev.Velocity)
			case comms.NoteRelease:
				e.tracker.ReleaseNote(ev.Key)
			}
		}

		e.mu.RLock()
		program := e.program
		params := e.params
		feedbackLen := e.feedbackDataLen
		e.mu.RUnlock()

		if program == nil {
			e.hub.SendResponse(comms.RenderResponse{Audio: make([]float32, params.Channels*params.BufferLength)})
			e.hub.SetStatus(comms.Ready)
			continue
		}

		dyn, haveDyn := e.hub.TakeNewDynData()
		if !haveDyn {
			dyn = e.currentDynData()
		}

		exec := voice.NewExecutor(program, params)
		audio, feedback, err := exec.Render(e.tracker, req.Global, dyn, req.DoFeedback, feedbackLen)
		if err != nil {
			e.errorHandler.HandleError(NewEngineError(ErrExecutionError, err))
			audio = make([]float32, params.Channels*params.BufferLength)
		}

		resp := comms.RenderResponse{Audio: audio, Feedback: feedback}
		e.hub.SendResponse(resp)
		if req.DoFeedback {
			e.hub.PublishFeedback(resp)
		}
		e.hub.SetStatus(comms.Ready)
	}
}

// applyPending picks up any parameter change or freshly compiled program
// published since the worker's last iteration.
func (e *Engine) applyPending() {
	if params, ok := e.hub.TakeNewGlobalParams(); ok {
		// A parameter-only change (buffer length, sample rate, channel
		// count) keeps every held and decaying voice's elapsed-time
		// bookkeeping intact; only the compiled program is replaced.
		e.mu.Lock()
		e.params = params
		e.mu.Unlock()
	}
	if newCode, ok := e.hub.TakeNewCode(); ok {
		program, err := e.codeCompiler.Compile(newCode.Source)
		if err != nil {
			e.errorHandler.HandleError(NewEngineError(ErrCompileFailed, err))
			return
		}
		e.mu.Lock()
		e.program = program
		e.feedbackDataLen = newCode.Format.FeedbackDataLen
		e.mu.Unlock()
	}
}

func (e *Engine) currentDynData() voice.DynamicData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.autoconCollector == nil {
		return voice.DynamicData{}
	}
	return voice.DynamicData{
		AutoconDynData:  e.autoconCollector.Collect(),
		StaticonDynData: e.staticonCollector.Collect(),
	}
}

// recompile regenerates source from the current graph, compiles it, and
// publishes the result through the hub for the render worker to pick up.
// On a cycle or compile failure the engine's previously compiled program
// remains live; the caller only learns of the failure via the returned
// error and the error handler.
func (e *Engine) recompile() error {
	e.mu.RLock()
	params := e.params
	e.mu.RUnlock()

	result, err := codegen.Generate(e.graph, params.BufferLength, params.SampleRate)
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			engErr := NewEngineError(ErrCycleDetected, err)
			e.errorHandler.HandleError(engErr)
			return engErr
		}
		engErr := NewEngineError(ErrCompileFailed, err)
		e.errorHandler.HandleError(engErr)
		return engErr
	}

	program, err := e.codeCompiler.Compile(result.Source)
	if err != nil {
		engErr := NewEngineError(ErrCompileFailed, err)
		e.errorHandler.HandleError(engErr)
		return engErr
	}

	e.mu.Lock()
	e.program = program
	e.feedbackDataLen = result.Format.FeedbackDataLen
	e.autoconCollector = result.AutoconDynDataCollector
	e.staticonCollector = result.StaticonDynDataCollector
	e.initState = CodeCompiled
	e.mu.Unlock()

	e.hub.PublishNewCode(comms.NewCode{Source: result.Source, Format: result.Format})
	e.hub.PublishNewDynData(voice.DynamicData{
		AutoconDynData:  result.AutoconDynDataCollector.Collect(),
		StaticonDynData: result.StaticonDynDataCollector.Collect(),
	})
	return nil
}

// Internal mutators, called only from the dispatcher's single worker
// goroutine via Dispatcher.executeOperation.

func (e *Engine) addModule(tmpl *graph.ModuleTemplate) (graph.ModuleRef, error) {
	e.mu.Lock()
	ref := e.graph.Add(graph.NewModule(tmpl))
	e.mu.Unlock()
	return ref, e.recompile()
}

func (e *Engine) removeModule(ref graph.ModuleRef) error {
	e.mu.Lock()
	ok := e.graph.Remove(ref)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("audiobench: module ref is stale")
	}
	return e.recompile()
}

func (e *Engine) connectWire(target graph.ModuleRef, inputIndex int, source graph.ModuleRef, outputIndex int) error {
	e.mu.Lock()
	m, ok := e.graph.Resolve(target)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: target module ref is stale")
	}
	if inputIndex < 0 || inputIndex >= len(m.Inputs) {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: input index %d out of range", inputIndex)
	}
	if _, ok := e.graph.Resolve(source); !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: source module ref is stale")
	}
	m.Inputs[inputIndex] = graph.WireInput(source, outputIndex)
	e.mu.Unlock()
	return e.recompile()
}

func (e *Engine) disconnectWire(target graph.ModuleRef, inputIndex int, defaultIndex int) error {
	e.mu.Lock()
	m, ok := e.graph.Resolve(target)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: target module ref is stale")
	}
	if inputIndex < 0 || inputIndex >= len(m.Inputs) {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: input index %d out of range", inputIndex)
	}
	m.Inputs[inputIndex] = graph.DefaultInputConn(defaultIndex)
	e.mu.Unlock()
	return e.recompile()
}

func (e *Engine) setAutomationLane(target graph.ModuleRef, controlIndex int, source graph.ModuleRef, output int, min, max float32) error {
	e.mu.Lock()
	m, ok := e.graph.Resolve(target)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: target module ref is stale")
	}
	if controlIndex < 0 || controlIndex >= len(m.AutomationControls) {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: automation control index %d out of range", controlIndex)
	}
	if _, ok := e.graph.Resolve(source); !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: source module ref is stale")
	}
	m.AutomationControls[controlIndex].AddLane(source, output, min, max)
	e.mu.Unlock()
	return e.recompile()
}

func (e *Engine) removeAutomationLane(target graph.ModuleRef, controlIndex, laneIndex int) error {
	e.mu.Lock()
	m, ok := e.graph.Resolve(target)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: target module ref is stale")
	}
	if controlIndex < 0 || controlIndex >= len(m.AutomationControls) {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: automation control index %d out of range", controlIndex)
	}
	ctrl := m.AutomationControls[controlIndex]
	if laneIndex < 0 || laneIndex >= len(ctrl.Lanes) {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: automation lane index %d out of range", laneIndex)
	}
	ctrl.Lanes = append(ctrl.Lanes[:laneIndex], ctrl.Lanes[laneIndex+1:]...)
	e.mu.Unlock()
	return e.recompile()
}

func (e *Engine) setStaticControl(target graph.ModuleRef, controlIndex int, apply func(graph.StaticControl)) error {
	e.mu.Lock()
	m, ok := e.graph.Resolve(target)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: target module ref is stale")
	}
	if controlIndex < 0 || controlIndex >= len(m.StaticControls) {
		e.mu.Unlock()
		return fmt.Errorf("audiobench: static control index %d out of range", controlIndex)
	}
	apply(m.StaticControls[controlIndex])
	e.mu.Unlock()
	return e.recompile()
}

func (e *Engine) changeGlobalParams(params voice.Params) error {
	if params.Channels < 1 || params.BufferLength < 1 || params.SampleRate <= 0 {
		return NewEngineError(ErrParameterUpdateFailed, fmt.Errorf("audiobench: invalid params %+v", params))
	}
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	e.hub.PublishNewGlobalParams(params)
	return e.recompile()
}

// Package comms is the shared-memory handoff between the UI thread, the
// compiling/rendering worker, and the audio callback: atomic cells for
// single-value state, take-slots for one-shot handoffs, and bounded
// channels for the render request/response rendezvous.
package comms

import (
	"sync"
	"sync/atomic"

	"github.com/audiobench/core/codegen"
	"github.com/audiobench/core/voice"
)

// NoteEvent is a MIDI-originated event queued by the UI thread for the
// worker to apply to its NoteTracker before the next render.
type NoteEvent struct {
	Kind     NoteEventKind
	Key      int
	Velocity float32
}

// NoteEventKind distinguishes NoteEvent variants.
type NoteEventKind int

const (
	NoteStart NoteEventKind = iota
	NoteRelease
)

// NewCode is a take-slot payload publishing a freshly generated program
// and its data format. Dynamic data is published separately through
// PublishNewDynData.
type NewCode struct {
	Source string
	Format codegen.DataFormat
}

// RenderRequest is sent from the audio thread to the worker to ask for one
// buffer's worth of output.
type RenderRequest struct {
	Global      voice.GlobalData
	DoFeedback  bool
}

// RenderResponse is the worker's answer to a RenderRequest.
type RenderResponse struct {
	Audio    []float32
	Feedback []float32
}

// Hub is the communication record shared by all three threads. Every field
// is safe to touch concurrently without holding an external lock; callers
// only take the NoteEvents mutex directly when enqueuing or draining
// events.
type Hub struct {
	status atomic.Int32 // Status

	globalParams    atomic.Value // voice.Params
	newGlobalParams atomic.Value // *voice.Params, take-slot

	newCode     atomic.Value // *NewCode, take-slot
	newDynData  atomic.Value // *voice.DynamicData, take-slot
	newFeedback atomic.Value // *RenderResponse, take-slot (latest feedback snapshot)

	noteEventsMu sync.Mutex
	noteEvents   []NoteEvent

	// renderChan and audioResponseChan are each capacity 1: at most one
	// outstanding request/response pair at a time, matching the source's
	// synchronous rendezvous without letting the audio thread block past
	// a single non-blocking try-send.
	renderChan        chan RenderRequest
	audioResponseChan chan RenderResponse

	// pollChan has zero capacity: a send only succeeds when the worker is
	// actively selecting on it, used to wake an idle worker without
	// forcing the audio thread to wait for an acknowledgment.
	pollChan chan struct{}
}

// NewHub creates a hub with Ready status and the given initial params.
func NewHub(initial voice.Params) *Hub {
	h := &Hub{
		renderChan:        make(chan RenderRequest, 1),
		audioResponseChan: make(chan RenderResponse, 1),
		pollChan:          make(chan struct{}),
	}
	h.status.Store(int32(Ready))
	h.globalParams.Store(initial)
	return h
}

// Status returns the worker's current published status.
func (h *Hub) Status() Status { return Status(h.status.Load()) }

// SetStatus publishes the worker's status. Only the worker calls this.
func (h *Hub) SetStatus(s Status) { h.status.Store(int32(s)) }

// GlobalParams returns the currently active render parameters.
func (h *Hub) GlobalParams() voice.Params { return h.globalParams.Load().(voice.Params) }

// PublishNewGlobalParams stores a pending parameter change for the worker
// to pick up and apply on its own schedule (recompiling if needed).
func (h *Hub) PublishNewGlobalParams(p voice.Params) { h.newGlobalParams.Store(&p) }

// TakeNewGlobalParams returns and clears a pending parameter change, or
// ok=false if none is pending.
func (h *Hub) TakeNewGlobalParams() (voice.Params, bool) {
	v := h.newGlobalParams.Swap((*voice.Params)(nil))
	if v == nil {
		return voice.Params{}, false
	}
	p, ok := v.(*voice.Params)
	if !ok || p == nil {
		return voice.Params{}, false
	}
	return *p, true
}

// PublishNewCode stores a freshly generated program for the worker to
// compile, replacing any not-yet-consumed prior code.
func (h *Hub) PublishNewCode(c NewCode) { h.newCode.Store(&c) }

// TakeNewCode returns and clears pending generated code, or ok=false if
// none is pending.
func (h *Hub) TakeNewCode() (NewCode, bool) {
	v := h.newCode.Swap((*NewCode)(nil))
	if v == nil {
		return NewCode{}, false
	}
	c, ok := v.(*NewCode)
	if !ok || c == nil {
		return NewCode{}, false
	}
	return *c, true
}

// PublishNewDynData stores freshly recomputed automation/static dynamic
// data, replacing any not-yet-consumed prior value.
func (h *Hub) PublishNewDynData(d voice.DynamicData) { h.newDynData.Store(&d) }

// TakeNewDynData returns and clears pending dynamic data, or ok=false if
// none is pending.
func (h *Hub) TakeNewDynData() (voice.DynamicData, bool) {
	v := h.newDynData.Swap((*voice.DynamicData)(nil))
	if v == nil {
		return voice.DynamicData{}, false
	}
	d, ok := v.(*voice.DynamicData)
	if !ok || d == nil {
		return voice.DynamicData{}, false
	}
	return *d, true
}

// PublishFeedback stores the latest feedback snapshot for the UI thread to
// poll, replacing any not-yet-consumed prior snapshot.
func (h *Hub) PublishFeedback(r RenderResponse) { h.newFeedback.Store(&r) }

// TakeFeedback returns and clears the latest feedback snapshot, or
// ok=false if none is pending.
func (h *Hub) TakeFeedback() (RenderResponse, bool) {
	v := h.newFeedback.Swap((*RenderResponse)(nil))
	if v == nil {
		return RenderResponse{}, false
	}
	r, ok := v.(*RenderResponse)
	if !ok || r == nil {
		return RenderResponse{}, false
	}
	return *r, true
}

// PushNoteEvent enqueues a note event for the worker to apply before its
// next render. Safe to call from the UI thread at any time.
func (h *Hub) PushNoteEvent(e NoteEvent) {
	h.noteEventsMu.Lock()
	defer h.noteEventsMu.Unlock()
	h.noteEvents = append(h.noteEvents, e)
}

// DrainNoteEvents returns and clears every queued note event. Called by
// the worker immediately before building a render's note state.
func (h *Hub) DrainNoteEvents() []NoteEvent {
	h.noteEventsMu.Lock()
	defer h.noteEventsMu.Unlock()
	events := h.noteEvents
	h.noteEvents = nil
	return events
}

// TryRender attempts a non-blocking render request. It returns false
// immediately if the worker is not Ready or the render channel is full,
// satisfying the audio thread's never-block requirement.
func (h *Hub) TryRender(req RenderRequest) bool {
	if h.Status() != Ready {
		return false
	}
	select {
	case h.renderChan <- req:
		return true
	default:
		return false
	}
}

// TryTakeResponse attempts a non-blocking read of a completed render's
// response.
func (h *Hub) TryTakeResponse() (RenderResponse, bool) {
	select {
	case resp := <-h.audioResponseChan:
		return resp, true
	default:
		return RenderResponse{}, false
	}
}

// WaitRenderRequest blocks the worker until a render request arrives or
// poll is signaled, returning ok=false on poll so the worker can re-check
// its take-slots between renders.
func (h *Hub) WaitRenderRequest() (RenderRequest, bool) {
	select {
	case req := <-h.renderChan:
		return req, true
	case <-h.pollChan:
		return RenderRequest{}, false
	}
}

// SendResponse delivers a completed render's response back to the audio
// thread. The worker only calls this after accepting a request via
// WaitRenderRequest, so the channel is guaranteed to have room.
func (h *Hub) SendResponse(resp RenderResponse) {
	h.audioResponseChan <- resp
}

// Poll wakes a worker blocked in WaitRenderRequest without handing it a
// render request, used to make it re-check take-slots promptly.
func (h *Hub) Poll() {
	select {
	case h.pollChan <- struct{}{}:
	default:
	}
}

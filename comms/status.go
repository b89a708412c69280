package comms

// Status is the processing thread's published state, as observed by the
// audio thread before it decides whether to try a render request.
//
// The source system transitions to a busy-like state only after sending
// the render request, leaving the exact ordering against Ready unclear.
// This implementation collapses that ambiguity: any state in which the
// worker is not ready to accept a new render is reported as NotReady, so
// the audio thread has exactly one value to check before it may try to
// send.
type Status int32

const (
	// Ready means the worker is idle and a render request may be sent.
	Ready Status = iota
	// NotReady covers every state in which a render request would either
	// block or be dropped: compiling, already rendering, or tearing down.
	NotReady
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "Ready"
	case NotReady:
		return "NotReady"
	default:
		return "Unknown"
	}
}

package chardev

import "sync"

// Event is a chardev backend event delivered to a Binding's installed
// event callback. The set below is enumerated by spec.md §3; any other
// integer value is a valid, unrecognized event that passes through
// event() unfiltered.
type Event int

const (
	EventOpened Event = iota
	EventClosed
	EventBreak
	EventMuxIn
	EventMuxOut
)

func (e Event) String() string {
	switch e {
	case EventOpened:
		return "OPENED"
	case EventClosed:
		return "CLOSED"
	case EventBreak:
		return "BREAK"
	case EventMuxIn:
		return "MUX_IN"
	case EventMuxOut:
		return "MUX_OUT"
	default:
		return "UNKNOWN"
	}
}

// IOCondition is a bitmask of readiness conditions, mirroring the
// glib-style G_IO_IN/G_IO_OUT watch conditions the original backends
// poll on.
type IOCondition int

const (
	IOIn IOCondition = 1 << iota
	IOOut
	IOHup
	IOErr
)

// WatchFunc is invoked when a watch added via Watcher.AddWatch becomes
// ready. Returning false removes the watch.
type WatchFunc func(cond IOCondition) bool

// Backend is the minimal capability every chardev backend must
// implement: file, socket, pty, loopback, or Mux.
type Backend interface {
	// Write delegates a guest write. When writeAll is true the
	// backend must not return short of len(p) except on error,
	// mirroring qemu_chr_fe_write's write_all=io_sync parameter.
	Write(p []byte, writeAll bool) (n int, err error)

	// DropGuestInput reports whether guest-originated input and
	// input-derived events should be suppressed for guest bindings of
	// this backend.
	DropGuestInput() bool

	// Open reports the backend-side openness flag (be_open).
	Open() bool

	// UpdateReadHandlers notifies the backend that its bound
	// binding's can_read/read handlers changed, so any event-loop
	// watch can be reconfigured.
	UpdateReadHandlers()
}

// SyncReader is an optional capability: backends that can service
// read_all's synchronous read loop implement it.
type SyncReader interface {
	// ReadSync attempts to fill p. It returns (0, ErrWouldBlock) for
	// EAGAIN, (0, nil) at end of stream, or a negative-equivalent
	// error otherwise.
	ReadSync(p []byte) (n int, err error)
}

// IOCtler is an optional capability for backends that support ioctl.
type IOCtler interface {
	IOCtl(cmd int, arg any) error
}

// Echoer is an optional capability for backends that can toggle local
// echo (ttys).
type Echoer interface {
	SetEcho(echo bool)
}

// Opener is an optional capability for backends whose class exposes a
// front-end-openness setter (chr_set_fe_open).
type Opener interface {
	SetFEOpen(open bool)
}

// Watcher is an optional capability for backends that can register a
// readiness watch on their event-loop context.
type Watcher interface {
	AddWatch(cond IOCondition, fn WatchFunc) (tag int)
}

// InputAccepter is an optional capability for backends that need an
// explicit nudge to resume accepting input after flow control paused
// it.
type InputAccepter interface {
	AcceptInput()
}

// Disconnecter is an optional capability for backends that support an
// explicit disconnect operation.
type Disconnecter interface {
	Disconnect()
}

// MsgFDer is an optional capability for backends that can pass file
// descriptors alongside data (Unix-domain sockets).
type MsgFDer interface {
	GetMsgFDs() []int
	SetMsgFDs(fds []int)
}

// ConnectWaiter is an optional capability for backends with an
// explicit connect handshake to wait out.
type ConnectWaiter interface {
	WaitConnected() error
}

// BackendBase is embedded by concrete Backend implementations to get
// the binding-bookkeeping the data model describes (spec.md §3: "a be
// pointer back to the binding ... a be_open flag") without every
// backend type hand-rolling it.
type BackendBase struct {
	mu     sync.Mutex
	be     *Binding
	beOpen bool
	drop   bool
}

// Bind attaches binding as this backend's sole front-end. Returns
// ErrDeviceInUse if one is already attached.
func (b *BackendBase) Bind(binding *Binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.be != nil {
		return ErrDeviceInUse
	}
	b.be = binding
	return nil
}

// Unbind clears the attached binding. Idempotent.
func (b *BackendBase) Unbind() {
	b.mu.Lock()
	b.be = nil
	b.mu.Unlock()
}

// Bound returns the currently attached binding, or nil.
func (b *BackendBase) Bound() *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.be
}

// Open implements Backend.Open.
func (b *BackendBase) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.beOpen
}

// SetOpen sets the backend-side openness flag, notifying the attached
// binding (if any and if it has an event callback) of OPENED/CLOSED.
func (b *BackendBase) SetOpen(open bool) {
	b.mu.Lock()
	b.beOpen = open
	be := b.be
	b.mu.Unlock()
	if be == nil {
		return
	}
	if open {
		be.Event(EventOpened)
	} else {
		be.Event(EventClosed)
	}
}

// SetDropGuestInput configures DropGuestInput's return value.
func (b *BackendBase) SetDropGuestInput(drop bool) {
	b.mu.Lock()
	b.drop = drop
	b.mu.Unlock()
}

// DropGuestInput implements Backend.DropGuestInput.
func (b *BackendBase) DropGuestInput() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drop
}

// UpdateReadHandlers implements Backend.UpdateReadHandlers as a no-op;
// backends with a real event-loop watch override it.
func (b *BackendBase) UpdateReadHandlers() {}

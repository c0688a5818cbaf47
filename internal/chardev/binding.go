package chardev

import (
	"sync"

	"github.com/tinyrange/ccsync/internal/pacer"
)

// handlers is the quadruple of guest-installed callbacks a Binding can
// carry (spec.md §3: "can_read, read, event, be_change").
type handlers struct {
	canRead  func(maxLen int) int
	read     func(buf []byte)
	event    func(e Event)
	beChange func()
	opaque   any
}

func (h handlers) isEmpty() bool {
	return h.canRead == nil && h.read == nil && h.event == nil && h.beChange == nil && h.opaque == nil
}

// Binding is the per-device connector between one guest device model
// and one backend (spec.md §3, "Chardev Front-End Binding (B)").
type Binding struct {
	ctx *Context

	mu sync.Mutex

	chr Backend
	tag int // slot index when chr is a *Mux, else -1
	mux *Mux

	isGuestDevice bool
	feOpen        bool

	h handlers

	deferredOpenTimer *pacer.Timer
}

// NewBinding creates a detached binding against ctx.
func NewBinding(ctx *Context) *Binding {
	b := &Binding{ctx: ctx, tag: -1, isGuestDevice: true}
	b.deferredOpenTimer = ctx.Clock.NewTimer(func() {
		b.deliverDeferredOpen()
	})
	return b
}

// Init attaches the binding to chr. Fails with ErrDeviceInUse if chr
// is non-Mux and already bound, or Mux and full (spec.md §4.2).
func (b *Binding) Init(chr Backend) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chr != nil {
		return ErrDeviceInUse
	}

	if mux, ok := chr.(*Mux); ok {
		idx, err := mux.attach(b)
		if err != nil {
			return err
		}
		b.tag = idx
		b.mux = mux
	} else if base, ok := chr.(interface{ Bind(*Binding) error }); ok {
		if err := base.Bind(b); err != nil {
			return err
		}
	}

	b.chr = chr
	b.h = handlers{}
	b.feOpen = false
	return nil
}

// Deinit tears down watches and close-signaling, detaches the
// binding, and returns it to Detached. Idempotent after a successful
// run (P6: init followed by deinit leaves be/slot null).
func (b *Binding) Deinit() {
	b.mu.Lock()
	chr := b.chr
	mux := b.mux
	tag := b.tag
	b.mu.Unlock()

	if chr == nil {
		return
	}

	b.deferredOpenTimer.Stop()
	b.setHandlers(handlers{}, false /* setOpen */, false /* reentrant */)

	b.mu.Lock()
	defer b.mu.Unlock()
	if mux != nil {
		mux.detach(tag)
	} else if base, ok := chr.(interface{ Unbind() }); ok {
		base.Unbind()
	}
	b.chr = nil
	b.mux = nil
	b.tag = -1
}

// MarkNonGuestDevice declares this binding a non-guest (e.g. monitor)
// consumer, escaping the guest-input-suppression policy. Asserts no
// read callback is installed.
func (b *Binding) MarkNonGuestDevice() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.h.canRead != nil || b.h.read != nil {
		panic("chardev: MarkNonGuestDevice called with read callbacks installed")
	}
	b.isGuestDevice = false
}

// bound reports the attached backend, or nil.
func (b *Binding) bound() Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chr
}

package chardev

import "math"

// dropShimCanRead is installed in place of a guest-supplied can_read
// when input is suppressed: it reports enough capacity that no
// backend stalls waiting for buffer space, while read is a no-op, so
// all incoming bytes are silently discarded.
func dropShimCanRead(int) int { return math.MaxInt32 }

func dropShimRead([]byte) {}

// SetHandlers installs the guest's (can_read, read, event, be_change)
// quadruple and opaque, optionally setting fe_open on the backend.
// This is the central state machine of spec.md §4.2.
func (b *Binding) SetHandlers(canRead func(int) int, read func([]byte), event func(Event), beChange func(), opaque any, setOpen bool) {
	b.setHandlers(handlers{canRead: canRead, read: read, event: event, beChange: beChange, opaque: opaque}, setOpen, false)
}

func (b *Binding) setHandlers(h handlers, setOpen bool, reentrant bool) {
	b.mu.Lock()

	feOpen := !h.isEmpty()

	installCanRead, installRead := h.canRead, h.read
	if !b.inputAllowedLocked() && !reentrant {
		installCanRead, installRead = dropShimCanRead, dropShimRead
		if h.canRead == nil {
			installCanRead = nil
		}
		if h.read == nil {
			installRead = nil
		}
	}

	b.h = handlers{
		canRead:  installCanRead,
		read:     installRead,
		event:    h.event,
		beChange: h.beChange,
		opaque:   h.opaque,
	}

	chr := b.chr
	mux := b.mux
	async := b.openCloseAsync()
	b.mu.Unlock()

	if chr != nil {
		chr.UpdateReadHandlers()
	}

	if setOpen {
		b.SetOpen(feOpen)
	}

	if feOpen {
		if mux != nil {
			mux.takeFocus(b)
		}
		if !reentrant {
			if !async {
				b.deferredOpenTimer.Reset(b.ctx.Clock.Now())
			} else if chr != nil && chr.Open() {
				b.mu.Lock()
				cb := b.h.event
				b.mu.Unlock()
				if cb != nil {
					cb(EventOpened)
				}
			}
		}
	} else if !reentrant && !async {
		b.deferredOpenTimer.Stop()
	}

	if mux != nil {
		mux.propagateSetHandlers(feOpen)
	}
}

// inputAllowedLocked is inputAllowed for callers already holding b.mu.
func (b *Binding) inputAllowedLocked() bool {
	return b.inputAllowed()
}

// deliverDeferredOpen is deferred_open_timer's fire callback: the sole
// delivery site for an asynchronous OPENED event (spec.md §4.2, §9).
// It bypasses Event's openclose-async filter, since this call is
// itself the deferred half of that filter.
func (b *Binding) deliverDeferredOpen() {
	b.mu.Lock()
	cb := b.h.event
	chr := b.chr
	b.mu.Unlock()
	if cb != nil && chr != nil {
		cb(EventOpened)
	}
}

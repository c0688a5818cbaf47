package chardev

// openCloseAsync reports whether OPENED/CLOSED events for b may be
// delivered inline (spec.md §4.2): true unless (io_sync AND
// b.is_guest_device). When it is false, OPENED goes through the
// deferred-open timer instead. Caller must hold b.mu.
func (b *Binding) openCloseAsync() bool {
	return !(b.ctx.IOSync && b.isGuestDevice)
}

// inputAllowed reports whether input and input-derived events reach b
// (spec.md §4.2): true unless (backend.drop_guest_input AND
// b.is_guest_device). For Mux-bound bindings, the Mux's inner backend
// is consulted. Caller must hold b.mu.
func (b *Binding) inputAllowed() bool {
	if !b.isGuestDevice {
		return true
	}
	chr := b.chr
	if chr == nil {
		return true
	}
	if mux, ok := chr.(*Mux); ok {
		return !mux.DropGuestInput()
	}
	return !chr.DropGuestInput()
}

package chardev

import "sync"

// MaxMux is the fixed capacity of a Mux backend's binding array
// (spec.md glossary: "Mux").
const MaxMux = 4

// Mux is a backend that multiplexes a single underlying channel across
// up to MaxMux bindings, one of which has focus at a time. Slots are
// never reused after a binding detaches: the slot is nulled but
// mux_cnt does not shrink (spec.md §3, "Ownership").
type Mux struct {
	inner Backend

	mu       sync.Mutex
	backends [MaxMux]*Binding
	muxCnt   int
	focus    int

	// inner is, itself, multiplexed through an internal binding when
	// the Mux needs to drive a real connection underneath it (the
	// deferred-open reentry path of spec.md §4.2 step 7). Left nil
	// when the Mux only fans a backend out to several guest devices
	// without itself owning a nested front-end.
	innerBinding *Binding
}

// NewMux wraps inner as a multiplexed backend.
func NewMux(inner Backend) *Mux {
	return &Mux{inner: inner, focus: -1}
}

// SetInnerBinding installs the Binding that represents the Mux's own
// connection to inner, used for the reentrant set_handlers descent.
func (m *Mux) SetInnerBinding(b *Binding) {
	m.mu.Lock()
	m.innerBinding = b
	m.mu.Unlock()
}

func (m *Mux) attach(b *Binding) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.muxCnt >= MaxMux {
		return -1, ErrDeviceInUse
	}
	idx := m.muxCnt
	m.backends[idx] = b
	m.muxCnt++
	return idx, nil
}

func (m *Mux) detach(tag int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tag < 0 || tag >= MaxMux {
		return
	}
	m.backends[tag] = nil
	if m.focus == tag {
		m.focus = -1
	}
}

func (m *Mux) takeFocus(b *Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, slot := range m.backends {
		if slot == b {
			m.focus = i
			return
		}
	}
}

// propagateSetHandlers re-enters set_handlers on the Mux's own inner
// binding, if one is installed, marking the call reentrant so the
// inner descent does not re-trigger deferred-open delivery for the
// same logical event (spec.md §4.2 step 7, §9).
func (m *Mux) propagateSetHandlers(feOpen bool) {
	m.mu.Lock()
	inner := m.innerBinding
	m.mu.Unlock()
	if inner == nil {
		return
	}
	h := handlers{}
	if feOpen {
		h.event = func(Event) {}
	}
	inner.setHandlers(h, false, true)
}

// Write implements Backend by delegating to the wrapped channel.
func (m *Mux) Write(p []byte, writeAll bool) (int, error) {
	return m.inner.Write(p, writeAll)
}

// DropGuestInput implements Backend by consulting the wrapped channel,
// per spec.md §4.2: "For Mux backends, inspect the Mux's inner chr for
// drop_guest_input."
func (m *Mux) DropGuestInput() bool { return m.inner.DropGuestInput() }

// Open implements Backend by consulting the wrapped channel.
func (m *Mux) Open() bool { return m.inner.Open() }

// UpdateReadHandlers implements Backend by delegating to the wrapped
// channel.
func (m *Mux) UpdateReadHandlers() { m.inner.UpdateReadHandlers() }


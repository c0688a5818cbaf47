package chardev

import "testing"

// TestMuxSaturation is P7 and scenario 5: init succeeds exactly
// MaxMux times, the (MaxMux+1)th fails with device-in-use, and the
// Mux's internal count is unchanged after the failure.
func TestMuxSaturation(t *testing.T) {
	mux := NewMux(NewLoopback())

	var bindings []*Binding
	for i := 0; i < MaxMux; i++ {
		b, _ := newTestBinding(false)
		if err := b.Init(mux); err != nil {
			t.Fatalf("init %d: unexpected error: %v", i, err)
		}
		bindings = append(bindings, b)
	}

	countAfterFull := mux.muxCnt

	overflow, _ := newTestBinding(false)
	if err := overflow.Init(mux); err != ErrDeviceInUse {
		t.Fatalf("expected ErrDeviceInUse on overflow, got %v", err)
	}

	if mux.muxCnt != countAfterFull {
		t.Fatalf("mux_cnt changed after a failed init: before=%d after=%d", countAfterFull, mux.muxCnt)
	}
}

// TestMuxOpenDeferred is scenario 3: a Mux-bound guest binding under
// io_sync returns from set_handlers(set_open=true) without delivering
// OPENED; the event arrives on the next virtual-clock tick.
func TestMuxOpenDeferred(t *testing.T) {
	inner := NewLoopback()
	mux := NewMux(inner)

	b, ctx := newTestBinding(true)
	if err := b.Init(mux); err != nil {
		t.Fatal(err)
	}

	opened := false
	b.SetHandlers(nil, nil, func(e Event) {
		if e == EventOpened {
			opened = true
		}
	}, nil, nil, true)

	if opened {
		t.Fatal("OPENED delivered synchronously from set_handlers under io_sync")
	}

	ctx.Clock.Advance(0)
	if !opened {
		t.Fatal("OPENED never delivered after a virtual-clock tick")
	}
}

// TestMuxDetachFreesSlotNotCount: after detaching one of MaxMux
// bindings, the slot is reusable for... no: slots are never reused,
// only nulled (spec.md §3, "Ownership"). A subsequent init on the same
// Mux still fails once mux_cnt has reached MaxMux.
func TestMuxDetachFreesSlotNotCount(t *testing.T) {
	mux := NewMux(NewLoopback())

	var bindings []*Binding
	for i := 0; i < MaxMux; i++ {
		b, _ := newTestBinding(false)
		if err := b.Init(mux); err != nil {
			t.Fatalf("init %d: %v", i, err)
		}
		bindings = append(bindings, b)
	}

	bindings[0].Deinit()

	another, _ := newTestBinding(false)
	if err := another.Init(mux); err != ErrDeviceInUse {
		t.Fatalf("expected ErrDeviceInUse even after a detach freed a slot, got %v", err)
	}
}

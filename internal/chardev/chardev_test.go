package chardev

import (
	"testing"

	"github.com/tinyrange/ccsync/internal/pacer"
)

func newTestBinding(ioSync bool) (*Binding, *Context) {
	ctx := &Context{IOSync: ioSync, Clock: pacer.NewClock()}
	return NewBinding(ctx), ctx
}

// TestRoundTrip is spec.md §8's round-trip property: write_all
// followed by read_all yields the same bytes back when input is
// allowed.
func TestRoundTrip(t *testing.T) {
	b, _ := newTestBinding(false)
	lb := NewLoopback()
	if err := b.Init(lb); err != nil {
		t.Fatal(err)
	}

	want := []byte("hello world")
	if _, err := b.WriteAll(want); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(want))
	n, err := b.ReadAll(got)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(want) {
		t.Fatalf("short read: got %d bytes, want %d", n, len(want))
	}
	if string(got) != string(want) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, want)
	}
}

// TestDeinitClearsBinding is P6: init followed by deinit leaves the
// backend's be pointer null.
func TestDeinitClearsBinding(t *testing.T) {
	b, _ := newTestBinding(false)
	lb := NewLoopback()
	if err := b.Init(lb); err != nil {
		t.Fatal(err)
	}
	b.Deinit()
	if lb.Bound() != nil {
		t.Fatal("loopback still bound after Deinit")
	}
	if b.bound() != nil {
		t.Fatal("binding still holds a backend after Deinit")
	}

	// Deinit is idempotent.
	b.Deinit()
}

// TestInputSuppression is P3: a guest binding whose backend has
// drop_guest_input=true never receives BREAK/MUX_IN/MUX_OUT.
func TestInputSuppression(t *testing.T) {
	b, _ := newTestBinding(false)
	lb := NewLoopback()
	lb.SetDropGuestInput(true)
	if err := b.Init(lb); err != nil {
		t.Fatal(err)
	}

	// The loopback is already open, so SetHandlers delivers OPENED
	// inline; only the input-derived events are recorded.
	delivered := false
	b.SetHandlers(nil, nil, func(e Event) {
		if e == EventBreak || e == EventMuxIn || e == EventMuxOut {
			delivered = true
		}
	}, nil, nil, false)

	b.Event(EventBreak)
	if delivered {
		t.Fatal("BREAK delivered despite drop_guest_input")
	}

	b.Event(EventMuxIn)
	if delivered {
		t.Fatal("MUX_IN delivered despite drop_guest_input")
	}
}

// TestNonGuestDeviceEscapesSuppression: MarkNonGuestDevice makes input
// suppression not apply.
func TestNonGuestDeviceEscapesSuppression(t *testing.T) {
	b, _ := newTestBinding(false)
	lb := NewLoopback()
	lb.SetDropGuestInput(true)
	if err := b.Init(lb); err != nil {
		t.Fatal(err)
	}
	b.MarkNonGuestDevice()

	delivered := false
	b.SetHandlers(nil, nil, func(e Event) {
		if e == EventBreak {
			delivered = true
		}
	}, nil, nil, false)
	b.Event(EventBreak)
	if !delivered {
		t.Fatal("BREAK suppressed for a non-guest-device binding")
	}
}

// TestDeferredOpenUnderIOSync is P4: with io_sync && is_guest_device,
// set_handlers delivers no synchronous OPENED; exactly one deferred
// OPENED fires after the virtual clock advances.
func TestDeferredOpenUnderIOSync(t *testing.T) {
	b, ctx := newTestBinding(true)
	lb := NewLoopback()
	if err := b.Init(lb); err != nil {
		t.Fatal(err)
	}

	opens := 0
	b.SetHandlers(nil, nil, func(e Event) {
		if e == EventOpened {
			opens++
		}
	}, nil, nil, false)

	if opens != 0 {
		t.Fatalf("OPENED delivered synchronously under io_sync: opens=%d", opens)
	}

	ctx.Clock.Advance(0)
	if opens != 1 {
		t.Fatalf("expected exactly one deferred OPENED after the clock ticks, got %d", opens)
	}

	ctx.Clock.Advance(0)
	if opens != 1 {
		t.Fatalf("deferred OPENED re-fired on a later tick: opens=%d", opens)
	}
}

// TestSetOpenIdempotent is P5: repeated identical set_open calls
// perform at most one backend call.
func TestSetOpenIdempotent(t *testing.T) {
	b, _ := newTestBinding(false)
	oc := &openCounter{Loopback: NewLoopback()}
	if err := b.Init(oc); err != nil {
		t.Fatal(err)
	}

	b.SetOpen(true)
	b.SetOpen(true)
	if oc.calls != 1 {
		t.Fatalf("SetOpen called backend %d times, want 1", oc.calls)
	}
}

type openCounter struct {
	*Loopback
	calls int
}

func (o *openCounter) SetFEOpen(open bool) { o.calls++ }

// TestGetDriverTrapsOnBeChange is P8.
func TestGetDriverTrapsOnBeChange(t *testing.T) {
	b, _ := newTestBinding(false)
	lb := NewLoopback()
	if err := b.Init(lb); err != nil {
		t.Fatal(err)
	}
	b.SetHandlers(nil, nil, nil, func() {}, nil, false)

	defer func() {
		if recover() == nil {
			t.Fatal("GetDriver did not panic with be_change installed")
		}
	}()
	b.GetDriver()
}

// TestAddWatchMasksWritableUnderIOSync is P9.
func TestAddWatchMasksWritableUnderIOSync(t *testing.T) {
	b, _ := newTestBinding(true)
	w := &watchingLoopback{Loopback: NewLoopback()}
	if err := b.Init(w); err != nil {
		t.Fatal(err)
	}

	b.AddWatch(IOIn|IOOut, func(IOCondition) bool { return true })
	if w.lastCond&IOOut != 0 {
		t.Fatal("writable bit not masked off under io_sync")
	}
	if w.lastCond&IOIn == 0 {
		t.Fatal("readable bit incorrectly masked off")
	}
}

type watchingLoopback struct {
	*Loopback
	lastCond IOCondition
}

func (w *watchingLoopback) AddWatch(cond IOCondition, fn WatchFunc) int {
	w.lastCond = cond
	return 1
}

package pacer

import (
	"sync"
	"testing"
	"time"
)

// fakeControl records EmulatorControl calls without touching any real
// clock or vCPU state.
type fakeControl struct {
	mu           sync.Mutex
	ticksEnabled bool
	kicks        int
}

func (c *fakeControl) EnableTicks() {
	c.mu.Lock()
	c.ticksEnabled = true
	c.mu.Unlock()
}

func (c *fakeControl) DisableTicks() {
	c.mu.Lock()
	c.ticksEnabled = false
	c.mu.Unlock()
}

func (c *fakeControl) KickAllVCPUs() {
	c.mu.Lock()
	c.kicks++
	c.mu.Unlock()
}

// TestSyncNeverReturnsWhileSyncing is P2: Gate never returns while
// syncing is true. It exercises this by never granting, so Setup's
// first grant cycle never completes, and confirms that Sync, called
// once Setup has enabled pacing (and so set syncing), blocks rather
// than returning.
func TestSyncNeverReturnsWhileSyncing(t *testing.T) {
	transport, _ := NewPipeTransport()
	clock := NewClock()
	control := &fakeControl{}
	p := New(transport, control, clock)

	go p.Setup()
	for !p.Enabled() {
		time.Sleep(time.Millisecond)
	}

	returned := make(chan struct{})
	go func() {
		p.Sync()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Sync returned before any grant was posted")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestEmptyHandshake is scenario 1: the simulator grants h=0
// repeatedly; the virtual clock must never advance, and each
// advance(0) tick of the event loop must provoke exactly one more
// exchange with the simulator.
func TestEmptyHandshake(t *testing.T) {
	transport, sim := NewPipeTransport()
	clock := NewClock()
	control := &fakeControl{}
	p := New(transport, control, clock)

	const rounds = 5
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sim.WaitReady(); err != nil {
			t.Error(err)
			return
		}
		for i := 0; i < rounds; i++ {
			if err := sim.WaitRequest(); err != nil {
				t.Error(err)
				return
			}
			if err := sim.PostGrant(0); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	p.Setup()
	for i := 0; i < rounds-1; i++ {
		clock.Advance(0)
	}

	<-done

	if clock.Now() != 0 {
		t.Fatalf("virtual clock advanced during empty handshake: now=%d", clock.Now())
	}
}

// TestSingleGrant is scenario 2: the simulator grants h=1ms once.
// After resume, the emulator may advance by at most 1ms before
// sync_func fires and a new request is posted.
func TestSingleGrant(t *testing.T) {
	transport, sim := NewPipeTransport()
	clock := NewClock()
	control := &fakeControl{}
	p := New(transport, control, clock)

	const grant = int64(1_000_000)

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		if err := sim.WaitReady(); err != nil {
			t.Error(err)
			return
		}
		if err := sim.WaitRequest(); err != nil {
			t.Error(err)
			return
		}
		if err := sim.PostGrant(grant); err != nil {
			t.Error(err)
			return
		}
		// second exchange, once the horizon is reached.
		if err := sim.WaitRequest(); err != nil {
			t.Error(err)
			return
		}
		_, elapsed := sim.ReadWords()
		if elapsed != grant {
			t.Errorf("expected elapsed=%d at second exchange, got %d", grant, elapsed)
		}
		if err := sim.PostGrant(0); err != nil {
			t.Error(err)
			return
		}
	}()

	p.Setup()

	if p.Enabled() != true {
		t.Fatal("Pacer not enabled after Setup")
	}

	// Advancing by less than the grant must not fire sync_timer.
	clock.Advance(grant - 1)
	p.Sync() // must return immediately: not syncing.

	// Crossing the horizon fires sync_timer, which re-enters syncing
	// and drives the second exchange synchronously within advance().
	clock.Advance(1)

	<-simDone
}

package pacer

import (
	"log/slog"
	"math"
	"os"
	"sync"
)

// noDeadlineValue is LONG_MAX, used as h_request when no timer is
// armed (spec.md §4.1.c step 2, §6: "h_request = LONG_MAX signals
// 'no deadline'").
const noDeadlineValue = int64(math.MaxInt64)

// EmulatorControl is implemented by the embedder (the hypervisor's
// vCPU run loop) so the Pacer can start/stop host-clock ticks and kick
// vCPUs out of guest execution, standing in for cpu_enable_ticks,
// cpu_disable_ticks, and kick_all_vcpus in the original co-simulator
// protocol.
type EmulatorControl interface {
	EnableTicks()
	DisableTicks()
	KickAllVCPUs()
}

// FatalFunc reports an unrecoverable setup or protocol error. Callers
// must not expect it to return control to the Pacer; the default logs
// through slog and exits the process.
type FatalFunc func(msg string, args ...any)

func defaultFatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// Option configures a Pacer at construction time.
type Option func(*Pacer)

// WithFatalFunc overrides the default process-exiting fatal handler,
// primarily so tests can observe a fatal path without killing the
// test binary.
func WithFatalFunc(f FatalFunc) Option {
	return func(p *Pacer) { p.fatal = f }
}

// Pacer gates a hardware emulator's virtual clock against an external
// discrete-event simulator reached over a Transport. It is the Go
// translation of external_sim.c's static state and setup_external_sim/
// external_sim_sync/schedule_next_event/sync_func functions.
type Pacer struct {
	transport Transport
	control   EmulatorControl
	clock     *Clock
	fatal     FatalFunc

	mu      sync.Mutex
	cond    *sync.Cond
	enabled bool
	syncing bool

	t         int64
	syncTimer *Timer
}

// New builds a Pacer. Setup must be called once before Sync is used.
func New(transport Transport, control EmulatorControl, clock *Clock, opts ...Option) *Pacer {
	p := &Pacer{
		transport: transport,
		control:   control,
		clock:     clock,
		fatal:     defaultFatal,
	}
	p.cond = sync.NewCond(&p.mu)
	p.syncTimer = clock.NewTimer(p.syncFunc)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Setup performs the one-shot handshake of spec.md §4.1: mark enabled,
// stop the emulator, open and unlink the transport, post S_ready,
// snapshot t, and run the first grant cycle. Any transport failure is
// fatal (spec.md §4.1, "Failure semantics"); no partial initialization
// survives.
func (p *Pacer) Setup() {
	p.mu.Lock()
	p.enabled = true
	p.syncing = true
	p.mu.Unlock()

	p.control.DisableTicks()
	p.control.KickAllVCPUs()

	if err := p.transport.Open(); err != nil {
		p.fatal("pacer: setup failed to open transport", "err", err)
		return
	}
	if err := p.transport.Unlink(); err != nil {
		p.fatal("pacer: setup failed to unlink transport names", "err", err)
		return
	}
	if err := p.transport.Post(SemReady); err != nil {
		p.fatal("pacer: setup failed to post S_ready", "err", err)
		return
	}

	p.t = p.clock.Now()

	p.scheduleNextEvent()
}

// Enabled reports whether pacing is active. It transitions false→true
// exactly once, in Setup, and never back (I3).
func (p *Pacer) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Sync is the Gate (external_sim_sync): the vCPU execution layer calls
// it on every entry to guest execution. It blocks until syncing is
// false, guaranteeing I1 (no guest instruction executes, and host
// ticks stay frozen, while syncing is true) and P2 (Gate never returns
// while syncing is true).
func (p *Pacer) Sync() {
	p.mu.Lock()
	for p.syncing {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// scheduleNextEvent is the grant cycle (schedule_next_event): sample
// elapsed time, publish the next request with the pending deadline,
// wait for a grant, arm sync_timer at the new horizon, and resume
// emulation. It must only be called while syncing is true.
func (p *Pacer) scheduleNextEvent() {
	now := p.clock.Now()
	elapsed := now - p.t
	p.t = now

	hRequest := noDeadlineValue
	if deadline, ok := p.clock.NextDeadline(); ok {
		hRequest = deadline - now
	}

	p.transport.WriteWords(hRequest, elapsed)
	if err := p.transport.Post(SemRequest); err != nil {
		p.fatal("pacer: failed to post S_request", "err", err)
		return
	}

	if err := p.transport.Wait(SemGrant); err != nil {
		p.fatal("pacer: wait on S_grant failed", "err", err)
		return
	}
	hGranted, _ := p.transport.ReadWords()
	if hGranted > hRequest {
		p.fatal("pacer: simulator granted more than requested", "requested", hRequest, "granted", hGranted)
		return
	}

	// Arm sync_timer before releasing syncing (I2, and spec.md §5's
	// ordering rule: every grant must arm sync_timer before
	// syncing:true→false is signaled).
	p.syncTimer.Reset(p.t + hGranted)

	p.mu.Lock()
	p.syncing = false
	p.mu.Unlock()

	p.control.EnableTicks()
	p.cond.Broadcast()

	slog.Debug("pacer: grant cycle complete", "elapsed", elapsed, "requested", hRequest, "granted", hGranted)
}

// syncFunc is sync_timer's fire callback: stop emulation, then run a
// grant cycle. Net effect: the emulator alternates between running up
// to the granted horizon and exchanging with the simulator.
func (p *Pacer) syncFunc() {
	p.mu.Lock()
	p.syncing = true
	p.mu.Unlock()

	p.control.DisableTicks()
	p.control.KickAllVCPUs()

	p.scheduleNextEvent()
}

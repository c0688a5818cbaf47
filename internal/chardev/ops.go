package chardev

import (
	"fmt"
	"time"
)

const chrReadBufLen = 4096

// Event dispatches e to the installed event callback, subject to the
// openclose-async and input-allowed policies (spec.md §4.2).
func (b *Binding) Event(e Event) {
	b.mu.Lock()
	cb := b.h.event
	if cb == nil || b.chr == nil {
		b.mu.Unlock()
		return
	}
	switch e {
	case EventOpened, EventClosed:
		if !b.openCloseAsync() {
			b.mu.Unlock()
			return
		}
	case EventBreak, EventMuxIn, EventMuxOut:
		if !b.inputAllowed() {
			b.mu.Unlock()
			return
		}
	}
	b.mu.Unlock()
	cb(e)
}

// Write delegates a guest write of len(p) bytes. Unbound, it returns
// len(p) under io_sync ("consumed by void") else 0 ("no sink").
// Bound, write_all is set to io_sync; a short synchronous write is
// reported as fully consumed (spec.md §4.2).
func (b *Binding) Write(p []byte) (int, error) {
	b.mu.Lock()
	chr := b.chr
	ioSync := b.ctx.IOSync
	b.mu.Unlock()

	if chr == nil {
		if ioSync {
			return len(p), nil
		}
		return 0, nil
	}

	n, err := chr.Write(p, ioSync)
	if err != nil {
		return n, err
	}
	if ioSync && n < len(p) {
		return len(p), nil
	}
	return n, nil
}

// WriteAll delegates with write_all forced true regardless of
// io_sync.
func (b *Binding) WriteAll(p []byte) (int, error) {
	b.mu.Lock()
	chr := b.chr
	b.mu.Unlock()
	if chr == nil {
		return 0, nil
	}
	return chr.Write(p, true)
}

// ReadAll fills buf by looping a synchronous read, retrying on
// ErrWouldBlock with a short sleep, stopping at 0 bytes or an error,
// and accumulating until len(buf) is reached. There is no iteration
// cap (spec.md §9, resolved: preserve the newer, uncapped semantics).
func (b *Binding) ReadAll(buf []byte) (int, error) {
	b.mu.Lock()
	chr := b.chr
	allowed := b.inputAllowed()
	b.mu.Unlock()

	if chr == nil || !allowed {
		return 0, nil
	}
	reader, ok := chr.(SyncReader)
	if !ok {
		return 0, nil
	}

	total := 0
	for total < len(buf) {
		n, err := reader.ReadSync(buf[total:])
		if err == ErrWouldBlock {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// IOCtl delegates to the backend's ioctl operation. Fails with
// ErrNotSupported if unbound or the backend has no such operation.
func (b *Binding) IOCtl(cmd int, arg any) error {
	chr := b.bound()
	if chr == nil {
		return ErrNotSupported
	}
	ioctler, ok := chr.(IOCtler)
	if !ok {
		return ErrNotSupported
	}
	return ioctler.IOCtl(cmd, arg)
}

// GetMsgFDs delegates if the backend exposes fd passing; else nil.
func (b *Binding) GetMsgFDs() []int {
	chr := b.bound()
	if chr == nil {
		return nil
	}
	if fder, ok := chr.(MsgFDer); ok {
		return fder.GetMsgFDs()
	}
	return nil
}

// SetMsgFDs delegates if the backend exposes fd passing; otherwise a
// no-op.
func (b *Binding) SetMsgFDs(fds []int) {
	chr := b.bound()
	if chr == nil {
		return
	}
	if fder, ok := chr.(MsgFDer); ok {
		fder.SetMsgFDs(fds)
	}
}

// GetMsgFD is the len-1 convenience form of GetMsgFDs. replay is the
// scenario-6 trap: any call made with replay enabled terminates the
// process after emitting the not-supported diagnostic, since fd
// passing cannot be represented in a replay log (spec.md §7,
// testable scenario 6). It does not return in that case.
func (b *Binding) GetMsgFD(replay bool) (int, error) {
	if replay {
		b.ctx.fatal("chardev: get_msgfd is not supported under replay", "err", ErrReplayUnsupported)
		return -1, ErrReplayUnsupported
	}
	fds := b.GetMsgFDs()
	if len(fds) == 0 {
		return -1, nil
	}
	return fds[0], nil
}

// AcceptInput invokes the backend's accept_input if the bound backend
// has that capability; otherwise it does nothing. No event-loop wake
// is issued in either case.
func (b *Binding) AcceptInput() {
	chr := b.bound()
	if chr == nil {
		return
	}
	if accepter, ok := chr.(InputAccepter); ok {
		accepter.AcceptInput()
	}
}

// Printf formats into a fixed CHR_READ_BUF_LEN buffer and writes it in
// full.
func (b *Binding) Printf(format string, args ...any) (int, error) {
	s := fmt.Sprintf(format, args...)
	if len(s) > chrReadBufLen {
		s = s[:chrReadBufLen]
	}
	return b.WriteAll([]byte(s))
}

// GetDriver returns the bound backend. It panics if the binding has a
// be_change callback installed: hot-swap consumers must not cache the
// driver pointer (P8).
func (b *Binding) GetDriver() Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.h.beChange != nil {
		panic("chardev: GetDriver called on a binding with be_change installed")
	}
	return b.chr
}

// BackendConnected reports whether a backend is bound.
func (b *Binding) BackendConnected() bool {
	return b.bound() != nil
}

// BackendOpen reports the bound backend's openness flag.
func (b *Binding) BackendOpen() bool {
	chr := b.bound()
	if chr == nil {
		return false
	}
	return chr.Open()
}

// SetEcho delegates to the backend's Echoer capability, if any.
func (b *Binding) SetEcho(echo bool) {
	chr := b.bound()
	if chr == nil {
		return
	}
	if echoer, ok := chr.(Echoer); ok {
		echoer.SetEcho(echo)
	}
}

// SetOpen delegates fe_open to the backend's Opener capability, if
// any, and is a no-op when fe_open is unchanged (P5: repeated calls
// with the same value perform at most one backend call).
func (b *Binding) SetOpen(feOpen bool) {
	b.mu.Lock()
	chr := b.chr
	unchanged := b.feOpen == feOpen
	b.feOpen = feOpen
	b.mu.Unlock()

	if chr == nil || unchanged {
		return
	}
	if opener, ok := chr.(Opener); ok {
		opener.SetFEOpen(feOpen)
	}
}

// Disconnect delegates to the backend's Disconnecter capability, if
// any.
func (b *Binding) Disconnect() {
	chr := b.bound()
	if chr == nil {
		return
	}
	if d, ok := chr.(Disconnecter); ok {
		d.Disconnect()
	}
}

// WaitConnected delegates to the backend's ConnectWaiter capability,
// if any; otherwise succeeds immediately.
func (b *Binding) WaitConnected() error {
	chr := b.bound()
	if chr == nil {
		return nil
	}
	if w, ok := chr.(ConnectWaiter); ok {
		return w.WaitConnected()
	}
	return nil
}

// AddWatch attaches a watch for cond on the bound backend. Returns 0
// if unbound, the backend cannot watch, or input is not allowed. When
// io_sync is set, the writable bit is masked off cond (P9: sync-I/O
// does not use write-readiness).
func (b *Binding) AddWatch(cond IOCondition, fn WatchFunc) int {
	b.mu.Lock()
	chr := b.chr
	allowed := b.inputAllowed()
	ioSync := b.ctx.IOSync
	b.mu.Unlock()

	if chr == nil || !allowed {
		return 0
	}
	watcher, ok := chr.(Watcher)
	if !ok {
		return 0
	}
	if ioSync {
		cond &^= IOOut
	}
	return watcher.AddWatch(cond, fn)
}

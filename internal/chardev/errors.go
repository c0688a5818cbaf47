package chardev

import "errors"

var (
	// ErrDeviceInUse is returned by Init when the target backend is
	// non-Mux and already bound, or Mux and full.
	ErrDeviceInUse = errors.New("chardev: device in use")

	// ErrNotSupported is returned by IOCtl when the binding is unbound
	// or the bound backend does not implement ioctl. AddWatch and the
	// msgfd ops report the same cases as 0, nil or -1 instead.
	ErrNotSupported = errors.New("chardev: operation not supported by backend")

	// ErrWouldBlock is the sync-read analogue of EAGAIN: no data is
	// available yet, retry.
	ErrWouldBlock = errors.New("chardev: read would block")

	// ErrReplayUnsupported is the fatal error raised when get_msgfd is
	// called under replay (scenario 6: fd passing cannot be recorded
	// or replayed).
	ErrReplayUnsupported = errors.New("chardev: fd passing is not supported under replay")
)

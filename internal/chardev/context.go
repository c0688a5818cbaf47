// Package chardev implements the character-device front-end (FE) that
// mediates between a guest device model and a chardev backend,
// enforcing synchronous-I/O, guest-input-suppression, and
// deferred-open-event policies so backend-visible events never race
// ahead of the virtual time the pacer package has granted.
package chardev

import (
	"log/slog"
	"os"

	"github.com/tinyrange/ccsync/internal/pacer"
)

// FatalFunc reports an unrecoverable protocol violation, mirroring
// pacer.FatalFunc: a replay-incompatible operation (get_msgfd under
// replay, spec.md §7) has no recoverable return path and must abort
// the process rather than surface as an ordinary error.
type FatalFunc func(msg string, args ...any)

func defaultFatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// Context carries the process-wide tunables a Binding needs and is
// constructed once at embed time, then threaded into every Binding
// (spec.md §9: "pass a context object through construction ... a
// single static reference is acceptable but must be set exactly once
// at startup").
type Context struct {
	// IOSync enables synchronous-I/O mode: writes must complete before
	// returning, and OPENED/CLOSED events passed to Binding.Event for
	// guest devices are dropped; OPENED is delivered asynchronously
	// through the deferred-open timer instead.
	IOSync bool

	// Clock is the virtual clock deferred-open timers are scheduled
	// against, shared with the embedding pacer.Pacer.
	Clock *pacer.Clock

	// Fatal reports an unrecoverable protocol violation (spec.md §7).
	// Defaults to logging through slog and exiting the process; tests
	// override it to observe the fatal path without killing the test
	// binary.
	Fatal FatalFunc
}

func (c *Context) fatal(msg string, args ...any) {
	if c.Fatal != nil {
		c.Fatal(msg, args...)
		return
	}
	defaultFatal(msg, args...)
}

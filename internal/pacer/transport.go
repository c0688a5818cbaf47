package pacer

import "errors"

// ErrUnsupportedPlatform is returned by transport constructors on
// platforms lacking the POSIX shared-memory/semaphore primitives the
// Pacer's wire protocol requires (spec.md §4.1, "Non-availability").
var ErrUnsupportedPlatform = errors.New("pacer: POSIX shared memory/semaphores unsupported on this platform")

// Semaphore names the three one-shot/counting semaphores of spec.md §3.
type Semaphore int

const (
	// SemReady is posted once by the emulator after setup; the
	// simulator waits on it.
	SemReady Semaphore = iota
	// SemGrant is posted by the simulator whenever it has written a
	// new grant; the emulator waits on it.
	SemGrant
	// SemRequest is posted by the emulator whenever it has written a
	// new (elapsed, request) tuple; the simulator waits on it.
	SemRequest
)

// Transport is the minimal IPC surface the Pacer needs: open the
// shared region and semaphores, unlink their names, map the region,
// and post/wait on the semaphores. spec.md §9 calls this out
// explicitly: "factor the IPC transport behind a minimal interface
// ... so a replacement transport can be substituted for testing".
//
// Implementations: a POSIX transport (shm_open/sem_open/mmap via libc,
// Linux only) for production, and an in-process pipe transport for
// tests.
type Transport interface {
	// Open establishes the shared-memory region and the three
	// semaphores, all named from a single identifying parameter
	// (e.g. the parent pid) the way spec.md §6 describes
	// ("/qemu_mem_<parent-pid>", "/qemu_sem_a_<parent-pid>", ...).
	Open() error

	// Unlink removes the kernel object names. Per spec.md §3's
	// lifecycle note, this happens immediately after Open and does
	// not destroy the underlying objects while both processes hold
	// them mapped/open.
	Unlink() error

	// ReadWords returns the current (word0, word1) contents of the
	// two-word shared region.
	ReadWords() (word0, word1 int64)

	// WriteWords stores (word0, word1) into the shared region.
	WriteWords(word0, word1 int64)

	// Post increments the named semaphore.
	Post(sem Semaphore) error

	// Wait blocks until the named semaphore can be decremented, then
	// decrements it. A Wait that returns an error is fatal per
	// spec.md §4.1 ("Failure semantics"): the protocol has no
	// resynchronization primitive.
	Wait(sem Semaphore) error

	// Close releases any transport-local resources (mapped memory,
	// semaphore handles). It does not need to undo Unlink.
	Close() error
}

//go:build !linux

package pacer

// NewPosixTransport is unavailable outside Linux: the pacing core's
// IPC protocol is a Linux-only feature (spec.md §1, §4.1
// "Non-availability"; spec.md's Non-goals explicitly exclude Windows
// support for the pacing core).
func NewPosixTransport(ppid int) (Transport, error) {
	return nil, ErrUnsupportedPlatform
}

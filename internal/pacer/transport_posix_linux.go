//go:build linux

package pacer

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

var hostEndian = binary.NativeEndian

// Shared memory and semaphore object names are derived from the
// parent process id, exactly as spec.md §6 specifies.
const (
	shmNamePrefix  = "/qemu_mem"
	semANamePrefix = "/qemu_sem_a" // S_ready
	semBNamePrefix = "/qemu_sem_b" // S_grant
	semCNamePrefix = "/qemu_sem_c" // S_request

	oRDWR = 0x2
)

var (
	libcOnce sync.Once
	libcErr  error

	libcShmOpen   func(name *byte, oflag int32, mode uint32) int32
	libcShmUnlink func(name *byte) int32
	libcSemOpen   func(name *byte, oflag int32) uintptr
	libcSemUnlink func(name *byte) int32
	libcSemPost   func(sem uintptr) int32
	libcSemWait   func(sem uintptr) int32
)

// loadLibc dlopens libc the same way internal/gowin/window dlopens
// libX11 for clipboard support: purego.Dlopen + purego.RegisterLibFunc,
// no cgo.
func loadLibc() error {
	libcOnce.Do(func() {
		lib, err := purego.Dlopen("libc.so.6", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			libcErr = fmt.Errorf("pacer: dlopen libc: %w", err)
			return
		}

		purego.RegisterLibFunc(&libcShmOpen, lib, "shm_open")
		purego.RegisterLibFunc(&libcShmUnlink, lib, "shm_unlink")
		purego.RegisterLibFunc(&libcSemOpen, lib, "sem_open")
		purego.RegisterLibFunc(&libcSemUnlink, lib, "sem_unlink")
		purego.RegisterLibFunc(&libcSemPost, lib, "sem_post")
		purego.RegisterLibFunc(&libcSemWait, lib, "sem_wait")
	})
	return libcErr
}

func cString(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

// posixTransport implements Transport over POSIX shared memory and
// named semaphores, matching init_external_sim/handshake_sim/run_sim/
// sync_sim in the original external_sim.c.
type posixTransport struct {
	ppid int

	shmFD int32
	mem   []byte

	sems [3]uintptr
}

// NewPosixTransport opens the shared-memory region and semaphores
// created by the parent (simulator) process, named from ppid (the
// parent's pid). On Linux this is the only supported transport for
// talking to a real external co-simulator; spec.md §4.1 treats any
// failure here as fatal at setup.
func NewPosixTransport(ppid int) (Transport, error) {
	if err := loadLibc(); err != nil {
		return nil, err
	}
	return &posixTransport{ppid: ppid, shmFD: -1}, nil
}

func (t *posixTransport) Open() error {
	shmName := fmt.Sprintf("%s_%d", shmNamePrefix, t.ppid)
	fd := libcShmOpen(cString(shmName), oRDWR, 0)
	if fd == -1 {
		return fmt.Errorf("pacer: shm_open %q failed", shmName)
	}
	t.shmFD = fd

	names := [3]string{
		fmt.Sprintf("%s_%d", semANamePrefix, t.ppid),
		fmt.Sprintf("%s_%d", semBNamePrefix, t.ppid),
		fmt.Sprintf("%s_%d", semCNamePrefix, t.ppid),
	}
	for i, name := range names {
		sem := libcSemOpen(cString(name), oRDWR)
		if sem == 0 || sem == uintptr(^uint64(0)) {
			return fmt.Errorf("pacer: sem_open %q failed", name)
		}
		t.sems[i] = sem
	}

	mem, err := unix.Mmap(int(t.shmFD), 0, 2*8, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("pacer: mmap shared region: %w", err)
	}
	t.mem = mem

	return nil
}

func (t *posixTransport) Unlink() error {
	shmName := fmt.Sprintf("%s_%d", shmNamePrefix, t.ppid)
	libcShmUnlink(cString(shmName))

	names := [3]string{
		fmt.Sprintf("%s_%d", semANamePrefix, t.ppid),
		fmt.Sprintf("%s_%d", semBNamePrefix, t.ppid),
		fmt.Sprintf("%s_%d", semCNamePrefix, t.ppid),
	}
	for _, name := range names {
		libcSemUnlink(cString(name))
	}
	return nil
}

func (t *posixTransport) ReadWords() (int64, int64) {
	w0 := int64(hostEndian.Uint64(t.mem[0:8]))
	w1 := int64(hostEndian.Uint64(t.mem[8:16]))
	return w0, w1
}

func (t *posixTransport) WriteWords(word0, word1 int64) {
	hostEndian.PutUint64(t.mem[0:8], uint64(word0))
	hostEndian.PutUint64(t.mem[8:16], uint64(word1))
}

func (t *posixTransport) Post(sem Semaphore) error {
	if libcSemPost(t.sems[sem]) != 0 {
		return fmt.Errorf("pacer: sem_post failed for semaphore %d", sem)
	}
	return nil
}

func (t *posixTransport) Wait(sem Semaphore) error {
	if libcSemWait(t.sems[sem]) != 0 {
		return fmt.Errorf("pacer: sem_wait failed for semaphore %d", sem)
	}
	return nil
}

func (t *posixTransport) Close() error {
	if t.mem != nil {
		_ = unix.Munmap(t.mem)
		t.mem = nil
	}
	if t.shmFD >= 0 {
		_ = unix.Close(int(t.shmFD))
		t.shmFD = -1
	}
	return nil
}

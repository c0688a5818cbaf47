package pacer

import "sync"

// pipeTransport is the in-process substitute for the POSIX transport,
// used by tests and by PipeSimulator to drive the Pacer from Go instead
// of a real external co-simulator process (spec.md §9, "replaceable
// IPC transport").
type pipeTransport struct {
	mu         sync.Mutex
	word0      int64
	word1      int64
	sems       [3]chan struct{}
	unlinked   bool
	unlinkOnce sync.Once
}

// NewPipeTransport returns a Transport implementation and a
// PipeSimulator that plays the role of the external discrete-event
// simulator: the caller of Pacer.Setup/Sync drives the Pacer side
// of the protocol through the returned Transport, while test code
// drives the simulator side through the returned PipeSimulator.
func NewPipeTransport() (Transport, *PipeSimulator) {
	t := &pipeTransport{
		sems: [3]chan struct{}{
			make(chan struct{}, 1<<20),
			make(chan struct{}, 1<<20),
			make(chan struct{}, 1<<20),
		},
	}
	return t, &PipeSimulator{t: t}
}

func (t *pipeTransport) Open() error   { return nil }
func (t *pipeTransport) Unlink() error { t.unlinkOnce.Do(func() { t.unlinked = true }); return nil }

func (t *pipeTransport) ReadWords() (int64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.word0, t.word1
}

func (t *pipeTransport) WriteWords(word0, word1 int64) {
	t.mu.Lock()
	t.word0, t.word1 = word0, word1
	t.mu.Unlock()
}

func (t *pipeTransport) Post(sem Semaphore) error {
	t.sems[sem] <- struct{}{}
	return nil
}

func (t *pipeTransport) Wait(sem Semaphore) error {
	<-t.sems[sem]
	return nil
}

func (t *pipeTransport) Close() error { return nil }

// PipeSimulator drives the simulator side of a pipeTransport from test
// code: it reads/writes the same two shared words and posts/waits on
// the same three semaphores, but from the opposite end of the
// handshake than the Pacer.
type PipeSimulator struct {
	t *pipeTransport
}

// ReadWords reads the current (word0, word1) the Pacer last wrote.
func (s *PipeSimulator) ReadWords() (int64, int64) { return s.t.ReadWords() }

// WriteWords stores a new (word0, word1) pair for the Pacer to read.
func (s *PipeSimulator) WriteWords(word0, word1 int64) { s.t.WriteWords(word0, word1) }

// WaitReady blocks until the Pacer has posted S_ready (end of setup),
// the one-shot handshake that starts the protocol.
func (s *PipeSimulator) WaitReady() error { return s.t.Wait(SemReady) }

// WaitRequest blocks until the Pacer has posted S_request with a new
// (h_request, elapsed) tuple in the shared words.
func (s *PipeSimulator) WaitRequest() error { return s.t.Wait(SemRequest) }

// PostGrant writes a new h_granted into word[0] and posts S_grant,
// the simulator's half of the grant cycle (schedule_next_event/
// sync_sim in the original protocol).
func (s *PipeSimulator) PostGrant(hGranted int64) error {
	_, elapsed := s.t.ReadWords()
	s.t.WriteWords(hGranted, elapsed)
	return s.t.Post(SemGrant)
}

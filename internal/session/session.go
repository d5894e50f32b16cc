// Package session coordinates one PTY-backed child process, its output
// fan-out to attached subscribers, and its idle-expiry lifecycle.
package session

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/catterm/termhost/internal/ptyproc"
)

// Status is a Session's lifecycle state. Transitions are monotonic:
// Active(0) -> Terminated(1), never the reverse.
type Status int32

const (
	StatusActive Status = iota
	StatusTerminated
)

func (s Status) String() string {
	if s == StatusTerminated {
		return "TERMINATED"
	}
	return "ACTIVE"
}

// ErrClosed is returned by operations attempted on a Terminated Session.
var ErrClosed = errors.New("session: terminated")

// Metadata is the descriptive, non-enforced shell configuration snapshot
// captured at session creation time.
type Metadata struct {
	UserID           string
	Title            string
	WorkingDirectory string
	ShellType        string
	Size             ptyproc.Size
}

const (
	readChunkSize   = 1024
	readTimeout     = 50 * time.Millisecond
	pumpIdleSleep   = 10 * time.Millisecond
	subscriberQueue = 256
)

// Session owns one PtyProcess, one lazily-started output pump, and the set
// of subscribers currently attached to its output.
type Session struct {
	id   string
	proc *ptyproc.Process
	meta Metadata
	log  *slog.Logger

	idleTimeout time.Duration

	status       atomic.Int32
	createdAt    int64
	lastActiveAt atomic.Int64
	expiresAt    atomic.Int64

	listenerStarted atomic.Bool

	subMu     sync.Mutex
	subs      map[uint64]chan []byte
	nextSubID uint64
}

// New constructs a Session around an already-spawned PtyProcess. The output
// pump does not start until the first Attach.
func New(id string, proc *ptyproc.Process, meta Metadata, idleTimeout time.Duration, log *slog.Logger) *Session {
	now := time.Now().UnixMilli()
	s := &Session{
		id:          id,
		proc:        proc,
		meta:        meta,
		log:         log,
		idleTimeout: idleTimeout,
		createdAt:   now,
		subs:        make(map[uint64]chan []byte),
	}
	s.lastActiveAt.Store(now)
	s.expiresAt.Store(now + idleTimeout.Milliseconds())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Metadata returns the descriptive shell config snapshot.
func (s *Session) Metadata() Metadata { return s.meta }

// Status returns the current lifecycle state.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// CreatedAt returns the creation time in epoch milliseconds.
func (s *Session) CreatedAt() int64 { return s.createdAt }

// LastActiveAt returns the last-activity time in epoch milliseconds.
func (s *Session) LastActiveAt() int64 { return s.lastActiveAt.Load() }

// ExpiresAt returns the current expiry deadline in epoch milliseconds.
func (s *Session) ExpiresAt() int64 { return s.expiresAt.Load() }

// IsExpired reports whether the session's idle deadline has passed.
func (s *Session) IsExpired() bool {
	return time.Now().UnixMilli() > s.expiresAt.Load()
}

func (s *Session) touch() {
	now := time.Now().UnixMilli()
	s.lastActiveAt.Store(now)
	s.expiresAt.Store(now + s.idleTimeout.Milliseconds())
}

// Attach registers a new subscriber channel and returns its id and the
// channel. It lazily starts the output pump on the very first attach. It
// fails with ErrClosed if the session is already Terminated.
func (s *Session) Attach() (uint64, <-chan []byte, error) {
	if s.Status() == StatusTerminated {
		return 0, nil, ErrClosed
	}

	s.subMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	ch := make(chan []byte, subscriberQueue)
	s.subs[id] = ch
	s.subMu.Unlock()

	if s.listenerStarted.CompareAndSwap(false, true) {
		go s.pump()
	}

	return id, ch, nil
}

// Detach removes a subscriber by id, closing its channel.
func (s *Session) Detach(id uint64) {
	s.subMu.Lock()
	ch, ok := s.subs[id]
	delete(s.subs, id)
	s.subMu.Unlock()

	if ok {
		close(ch)
	}
}

// pump is the single long-running goroutine that reads PTY output in chunks
// and fans it out to every attached subscriber.
func (s *Session) pump() {
	buf := make([]byte, readChunkSize)
	for {
		if !s.proc.IsAlive() {
			s.markTerminated()
			return
		}

		n, err := s.proc.ReadTimeout(buf, readTimeout)
		if n > 0 {
			s.fanOut(lossyUTF8(buf[:n]))
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			// End of stream (EOF, or EIO once the child has exited, or a
			// master already closed by Close()) ends the pump.
			if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) {
				s.markTerminated()
				return
			}
			// Any other read error is logged and retried after the idle
			// sleep; the IsAlive check above still ends the pump on exit.
			s.log.Warn("pty read error, retrying", "session_id", s.id, "error", err)
		}

		time.Sleep(pumpIdleSleep)
	}
}

func (s *Session) fanOut(chunk []byte) {
	s.subMu.Lock()
	snapshot := make(map[uint64]chan []byte, len(s.subs))
	for id, ch := range s.subs {
		snapshot[id] = ch
	}
	s.subMu.Unlock()

	for id, ch := range snapshot {
		select {
		case ch <- chunk:
		default:
			s.log.Warn("subscriber send failed, dropping", "session_id", s.id, "subscriber_id", id)
			s.Detach(id)
		}
	}
}

// markTerminated is invoked by the pump when it observes the child has
// exited on its own (not via Close). It still closes the PtyProcess — a
// no-op on the OS process but necessary to release the PTY master fd — and
// drops subscribers exactly once, sharing the same guard as Close.
func (s *Session) markTerminated() {
	if s.status.CompareAndSwap(int32(StatusActive), int32(StatusTerminated)) {
		s.dropSubscribers()
		_ = s.proc.Close()
	}
}

func (s *Session) dropSubscribers() {
	s.subMu.Lock()
	subs := s.subs
	s.subs = make(map[uint64]chan []byte)
	s.subMu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// WriteInput writes raw bytes to the PTY and refreshes activity timestamps.
func (s *Session) WriteInput(data []byte) error {
	if s.Status() == StatusTerminated {
		return ErrClosed
	}
	if _, err := s.proc.Write(data); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Interrupt sends Ctrl-C (0x03) through the PTY line discipline.
func (s *Session) Interrupt() error {
	return s.WriteInput([]byte{0x03})
}

// Resize changes the PTY window size and refreshes activity timestamps.
func (s *Session) Resize(size ptyproc.Size) error {
	if s.Status() == StatusTerminated {
		return ErrClosed
	}
	if err := s.proc.Resize(size); err != nil {
		return err
	}
	s.meta.Size = size
	s.touch()
	return nil
}

// Close terminates the session exactly once: it kills the PtyProcess and
// drops every subscriber. Subsequent calls are no-ops.
func (s *Session) Close() error {
	if !s.status.CompareAndSwap(int32(StatusActive), int32(StatusTerminated)) {
		return nil
	}
	s.dropSubscribers()
	return s.proc.Close()
}

// lossyUTF8 decodes a raw PTY read the same way the original implementation's
// String::from_utf8_lossy does: valid UTF-8 passes through, invalid byte
// sequences are replaced with U+FFFD. The result always owns its storage, so
// callers may safely reuse the input buffer afterward.
func lossyUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return []byte(strings.ToValidUTF8(string(b), "�"))
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

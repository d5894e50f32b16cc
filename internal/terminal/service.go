// Package terminal exposes the protocol-agnostic TerminalService façade
// that every transport adapter and the HTTP control API consume.
package terminal

import (
	"context"
	"log/slog"
	"time"

	"github.com/catterm/termhost/internal/apierr"
	"github.com/catterm/termhost/internal/audit"
	"github.com/catterm/termhost/internal/ptyproc"
	"github.com/catterm/termhost/internal/registry"
	"github.com/catterm/termhost/internal/session"
)

// CreateOptions captures the caller-supplied parameters for a new session.
type CreateOptions struct {
	UserID           string
	Title            string
	WorkingDirectory string
	ShellType        string
	Argv             []string
	Env              []string
	Size             ptyproc.Size
}

// Info is a read-only snapshot of a Session's control-plane-visible state.
type Info struct {
	ID               string
	UserID           string
	Title            string
	WorkingDirectory string
	ShellType        string
	Status           session.Status
	Size             ptyproc.Size
	CreatedAt        int64
	LastActiveAt     int64
	ExpiresAt        int64
}

// DefaultSweepInterval is the production cadence for RunExpirySweep.
const DefaultSweepInterval = 60 * time.Second

// Service is a thin wrapper around a SessionRegistry plus an audit sink,
// held by shared reference and imposing no ordering beyond what the
// registry and session contracts already guarantee.
type Service struct {
	registry    *registry.Registry
	audit       *audit.Store
	idleTimeout time.Duration
	log         *slog.Logger
}

// New constructs a Service. audit may be nil, in which case lifecycle events
// are silently not recorded (used by tests that don't need persistence).
func New(reg *registry.Registry, store *audit.Store, idleTimeout time.Duration, log *slog.Logger) *Service {
	return &Service{registry: reg, audit: store, idleTimeout: idleTimeout, log: log}
}

func (s *Service) recordEvent(sessionID string, eventType audit.EventType, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(context.Background(), sessionID, eventType, detail, time.Now().UnixMilli()); err != nil {
		s.log.Warn("audit append failed", "session_id", sessionID, "event", eventType, "error", err)
	}
}

// CreateSession spawns a shell and registers a new Session. Spawn failures
// surface as apierr.SpawnFailed and leave no registry state behind.
func (s *Service) CreateSession(opts CreateOptions) (Info, error) {
	proc, err := ptyproc.Open(ptyproc.ShellConfig{
		Argv: opts.Argv,
		Cwd:  opts.WorkingDirectory,
		Env:  opts.Env,
	}, opts.Size)
	if err != nil {
		return Info{}, apierr.Wrap(apierr.SpawnFailed, "failed to spawn shell", err)
	}

	meta := session.Metadata{
		UserID:           opts.UserID,
		Title:            opts.Title,
		WorkingDirectory: opts.WorkingDirectory,
		ShellType:        opts.ShellType,
		Size:             opts.Size,
	}
	sess := s.registry.Create(proc, meta, s.idleTimeout)

	s.recordEvent(sess.ID(), audit.EventCreateSession, opts.ShellType)
	return toInfo(sess), nil
}

// Attach returns a subscriber id and output channel for sessionID.
func (s *Service) Attach(sessionID string) (uint64, <-chan []byte, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return 0, nil, err
	}

	id, ch, err := sess.Attach()
	if err != nil {
		return 0, nil, apierr.Wrap(apierr.Closed, "session is terminated", err)
	}

	s.recordEvent(sessionID, audit.EventAttach, "")
	return id, ch, nil
}

// Detach removes a subscriber previously returned by Attach.
func (s *Service) Detach(sessionID string, subID uint64) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	sess.Detach(subID)
	return nil
}

// WriteInput forwards raw bytes to sessionID's PTY.
func (s *Service) WriteInput(sessionID string, data []byte) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.WriteInput(data); err != nil {
		return toServiceError(err)
	}
	return nil
}

// Resize changes sessionID's PTY window size.
func (s *Service) Resize(sessionID string, size ptyproc.Size) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.Resize(size); err != nil {
		return toServiceError(err)
	}
	s.recordEvent(sessionID, audit.EventResize, "")
	return nil
}

// Interrupt sends Ctrl-C to sessionID.
func (s *Service) Interrupt(sessionID string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.Interrupt(); err != nil {
		return toServiceError(err)
	}
	s.recordEvent(sessionID, audit.EventInterrupt, "")
	return nil
}

// Terminate removes and closes sessionID. A redundant call on an
// already-removed id returns NotFound, never a 500.
func (s *Service) Terminate(sessionID string) error {
	if err := s.registry.Remove(sessionID); err != nil {
		return err
	}
	s.recordEvent(sessionID, audit.EventTerminate, "")
	return nil
}

// Status returns sessionID's current lifecycle state.
func (s *Service) Status(sessionID string) (session.Status, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.Status(), nil
}

// List returns a snapshot of every registered session.
func (s *Service) List() []Info {
	sessions := s.registry.List()
	out := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toInfo(sess))
	}
	return out
}

// RunExpirySweep blocks, closing idle sessions every interval and recording
// an EXPIRY_SWEEP_CLOSE audit event per session it closes, until ctx is
// canceled. Intended to run in its own goroutine for the process lifetime;
// cmd/termhost passes DefaultSweepInterval, tests pass something shorter.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.registry.SweepExpired() {
				s.recordEvent(id, audit.EventExpirySweepClose, "")
			}
		}
	}
}

// ExecuteCommand appends a newline to command and writes it as input. It
// does not wait for command completion.
func (s *Service) ExecuteCommand(sessionID, command string) error {
	return s.WriteInput(sessionID, []byte(command+"\n"))
}

// ExecuteCheck reports whether writing command succeeded, nothing more:
// the write-success-only contract confirmed against the original
// implementation's execute_command_check.
func (s *Service) ExecuteCheck(sessionID, command string) bool {
	return s.ExecuteCommand(sessionID, command) == nil
}

func toInfo(sess *session.Session) Info {
	meta := sess.Metadata()
	return Info{
		ID:               sess.ID(),
		UserID:           meta.UserID,
		Title:            meta.Title,
		WorkingDirectory: meta.WorkingDirectory,
		ShellType:        meta.ShellType,
		Status:           sess.Status(),
		Size:             meta.Size,
		CreatedAt:        sess.CreatedAt(),
		LastActiveAt:     sess.LastActiveAt(),
		ExpiresAt:        sess.ExpiresAt(),
	}
}

func toServiceError(err error) error {
	if err == session.ErrClosed {
		return apierr.Wrap(apierr.Closed, "session is terminated", err)
	}
	return apierr.Wrap(apierr.IoError, "pty operation failed", err)
}

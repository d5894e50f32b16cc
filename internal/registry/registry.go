// Package registry owns the global map of active sessions and provides
// concurrency-safe create/get/remove/list plus an idle-expiry sweep.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catterm/termhost/internal/apierr"
	"github.com/catterm/termhost/internal/ptyproc"
	"github.com/catterm/termhost/internal/session"
)

// Registry is a reader-preferring map of Sessions keyed by UUIDv4. Write
// holders never perform I/O inside the critical section: spawning and
// closing a Session both happen outside the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	log *slog.Logger
}

// New creates an empty Registry.
func New(log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
		log:      log,
	}
}

// Create spawns proc (already opened by the caller) into a new Session
// under a fresh UUIDv4, then inserts it. The PTY spawn itself must already
// have happened before calling Create — this keeps the exclusive critical
// section free of I/O.
func (r *Registry) Create(proc *ptyproc.Process, meta session.Metadata, idleTimeout time.Duration) *session.Session {
	id := uuid.NewString()
	sess := session.New(id, proc, meta, idleTimeout, r.log)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return sess
}

// Get returns the Session for id, or NotFound if none is registered.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "session not found: "+id)
	}
	return sess, nil
}

// Remove extracts and deletes id from the map, then closes the Session
// outside the lock. Returns NotFound if id was already removed.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return apierr.New(apierr.NotFound, "session not found: "+id)
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	return sess.Close()
}

// List returns every currently registered Session.
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*session.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Len returns the number of currently registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepExpired removes and closes every session whose idle timeout has
// elapsed, returning the ids it removed. The caller (terminal.Service) is
// responsible for recording an audit event per removed id; Registry itself
// has no audit dependency.
func (r *Registry) SweepExpired() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var removed []string
	for _, id := range ids {
		sess, err := r.Get(id)
		if err != nil {
			continue
		}
		if sess.IsExpired() {
			r.log.Info("expiring idle session", "session_id", id)
			if err := r.Remove(id); err == nil {
				removed = append(removed, id)
			}
		}
	}
	return removed
}

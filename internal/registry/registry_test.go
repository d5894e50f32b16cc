package registry

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/catterm/termhost/internal/apierr"
	"github.com/catterm/termhost/internal/ptyproc"
	"github.com/catterm/termhost/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func spawnProc(t *testing.T, argv []string) *ptyproc.Process {
	t.Helper()
	proc, err := ptyproc.Open(ptyproc.ShellConfig{Argv: argv}, ptyproc.Size{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("ptyproc.Open: %v", err)
	}
	return proc
}

// TestCreateThenGetReturnsSameSession verifies Create assigns a UUID id and
// Get retrieves the identical Session by that id.
func TestCreateThenGetReturnsSameSession(t *testing.T) {
	r := New(testLogger())
	proc := spawnProc(t, []string{"sleep", "5"})

	sess := r.Create(proc, session.Metadata{}, time.Minute)
	defer r.Remove(sess.ID())

	got, err := r.Get(sess.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Error("expected Get to return the same Session pointer created by Create")
	}
}

// TestGetMissingReturnsNotFound verifies Get on an unknown id returns an
// apierr.NotFound.
func TestGetMissingReturnsNotFound(t *testing.T) {
	r := New(testLogger())

	_, err := r.Get("does-not-exist")
	if apierr.KindOf(err) != apierr.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

// TestRemoveClosesSessionAndDeletesEntry verifies Remove closes the
// underlying Session and a subsequent Get reports NotFound.
func TestRemoveClosesSessionAndDeletesEntry(t *testing.T) {
	r := New(testLogger())
	proc := spawnProc(t, []string{"sleep", "5"})
	sess := r.Create(proc, session.Metadata{}, time.Minute)

	if err := r.Remove(sess.ID()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if sess.Status() != session.StatusTerminated {
		t.Error("expected Session to be Terminated after Remove")
	}

	if _, err := r.Get(sess.ID()); apierr.KindOf(err) != apierr.NotFound {
		t.Errorf("expected NotFound after Remove, got %v", err)
	}
}

// TestRemoveTwiceReturnsNotFoundOnSecondCall verifies double-close at the
// registry level surfaces NotFound, not a panic or duplicate close attempt.
func TestRemoveTwiceReturnsNotFoundOnSecondCall(t *testing.T) {
	r := New(testLogger())
	proc := spawnProc(t, []string{"sleep", "5"})
	sess := r.Create(proc, session.Metadata{}, time.Minute)

	if err := r.Remove(sess.ID()); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if _, err := r.Get(sess.ID()); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound for id after first Remove")
	}
	err := r.Remove(sess.ID())
	if apierr.KindOf(err) != apierr.NotFound {
		t.Errorf("expected NotFound on second Remove, got %v", err)
	}
}

// TestListReturnsAllRegisteredSessions verifies List enumerates every
// currently registered Session.
func TestListReturnsAllRegisteredSessions(t *testing.T) {
	r := New(testLogger())
	s1 := r.Create(spawnProc(t, []string{"sleep", "5"}), session.Metadata{}, time.Minute)
	s2 := r.Create(spawnProc(t, []string{"sleep", "5"}), session.Metadata{}, time.Minute)
	defer r.Remove(s1.ID())
	defer r.Remove(s2.ID())

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
}

// TestSweepExpiredClosesIdleSessions verifies SweepExpired removes a
// session whose idle timeout has already elapsed and reports its id.
func TestSweepExpiredClosesIdleSessions(t *testing.T) {
	r := New(testLogger())
	sess := r.Create(spawnProc(t, []string{"sleep", "5"}), session.Metadata{}, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	removed := r.SweepExpired()

	if len(removed) != 1 || removed[0] != sess.ID() {
		t.Fatalf("expected SweepExpired to report %q removed, got %v", sess.ID(), removed)
	}
	if _, err := r.Get(sess.ID()); apierr.KindOf(err) != apierr.NotFound {
		t.Error("expected SweepExpired to have removed the expired session")
	}
}

// TestSweepExpiredLeavesActiveSessionsAlone verifies a session within its
// idle timeout survives a sweep.
func TestSweepExpiredLeavesActiveSessionsAlone(t *testing.T) {
	r := New(testLogger())
	sess := r.Create(spawnProc(t, []string{"sleep", "5"}), session.Metadata{}, time.Hour)
	defer r.Remove(sess.ID())

	if removed := r.SweepExpired(); len(removed) != 0 {
		t.Fatalf("expected no sessions removed, got %v", removed)
	}
	if _, err := r.Get(sess.ID()); err != nil {
		t.Errorf("expected session to survive sweep, got %v", err)
	}
}

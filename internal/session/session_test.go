package session

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/catterm/termhost/internal/ptyproc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, argv []string, idleTimeout time.Duration) *Session {
	t.Helper()
	proc, err := ptyproc.Open(ptyproc.ShellConfig{Argv: argv}, ptyproc.Size{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("ptyproc.Open: %v", err)
	}
	return New("test-session", proc, Metadata{ShellType: argv[0]}, idleTimeout, testLogger())
}

// TestAttachStartsPumpAndDeliversOutput spawns "echo hello-session", attaches
// a subscriber, and verifies the echoed bytes are fanned out to it.
func TestAttachStartsPumpAndDeliversOutput(t *testing.T) {
	s := newTestSession(t, []string{"echo", "hello-session"}, time.Minute)
	defer s.Close()

	_, ch, err := s.Attach()
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var output strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				goto done
			}
			output.Write(chunk)
			if strings.Contains(output.String(), "hello-session") {
				goto done
			}
		case <-timeout:
			t.Fatal("timed out waiting for output")
		}
	}

done:
	if !strings.Contains(output.String(), "hello-session") {
		t.Errorf("expected output to contain %q, got %q", "hello-session", output.String())
	}
}

// TestSessionTerminatesWhenChildExits verifies that once a short-lived
// child exits, the session transitions to Terminated without an explicit
// Close call.
func TestSessionTerminatesWhenChildExits(t *testing.T) {
	s := newTestSession(t, []string{"sh", "-c", "exit 0"}, time.Minute)
	defer s.Close()

	_, ch, err := s.Attach()
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				goto closed
			}
		case <-deadline:
			t.Fatal("timed out waiting for subscriber channel to close")
		}
	}

closed:
	if s.Status() != StatusTerminated {
		t.Errorf("expected StatusTerminated, got %v", s.Status())
	}
}

// TestWriteInputRefreshesActivityAndFailsAfterClose verifies WriteInput
// updates LastActiveAt/ExpiresAt on success and returns ErrClosed once the
// session has been closed.
func TestWriteInputRefreshesActivityAndFailsAfterClose(t *testing.T) {
	s := newTestSession(t, []string{"cat"}, time.Minute)

	before := s.LastActiveAt()
	time.Sleep(5 * time.Millisecond)

	if err := s.WriteInput([]byte("hello\n")); err != nil {
		t.Fatalf("WriteInput: %v", err)
	}
	if s.LastActiveAt() <= before {
		t.Error("expected LastActiveAt to advance after WriteInput")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.WriteInput([]byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

// TestInterruptSendsCtrlC verifies Interrupt writes the single byte 0x03.
func TestInterruptSendsCtrlC(t *testing.T) {
	s := newTestSession(t, []string{"cat"}, time.Minute)
	defer s.Close()

	if err := s.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
}

// TestResizeUpdatesMetadataSize verifies Resize changes the session's
// recorded size snapshot.
func TestResizeUpdatesMetadataSize(t *testing.T) {
	s := newTestSession(t, []string{"sleep", "5"}, time.Minute)
	defer s.Close()

	if err := s.Resize(ptyproc.Size{Cols: 200, Rows: 60}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if got := s.Metadata().Size; got.Cols != 200 || got.Rows != 60 {
		t.Errorf("expected metadata size 200x60, got %+v", got)
	}
}

// TestCloseIsIdempotent verifies a second Close call returns nil without
// panicking or blocking.
func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t, []string{"cat"}, time.Minute)

	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: expected nil, got %v", err)
	}
}

// TestDetachRemovesSubscriberWithoutAffectingOthers attaches two subscribers,
// detaches one, and verifies the other keeps receiving output.
func TestDetachRemovesSubscriberWithoutAffectingOthers(t *testing.T) {
	s := newTestSession(t, []string{"cat"}, time.Minute)
	defer s.Close()

	id1, ch1, err := s.Attach()
	if err != nil {
		t.Fatalf("Attach 1: %v", err)
	}
	_, ch2, err := s.Attach()
	if err != nil {
		t.Fatalf("Attach 2: %v", err)
	}

	s.Detach(id1)
	if _, ok := <-ch1; ok {
		t.Error("expected detached subscriber's channel to be closed")
	}

	if err := s.WriteInput([]byte("ping\n")); err != nil {
		t.Fatalf("WriteInput: %v", err)
	}

	select {
	case _, ok := <-ch2:
		if !ok {
			t.Error("expected remaining subscriber's channel to stay open")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remaining subscriber to receive output")
	}
}

// TestLossyUTF8PassesValidBytesThroughAndReplacesInvalidOnes verifies
// lossyUTF8 leaves well-formed UTF-8 untouched and substitutes U+FFFD for
// byte sequences that aren't valid UTF-8, matching the original
// implementation's String::from_utf8_lossy contract.
func TestLossyUTF8PassesValidBytesThroughAndReplacesInvalidOnes(t *testing.T) {
	valid := []byte("hello \xe2\x9c\x93 world")
	if got := lossyUTF8(valid); string(got) != string(valid) {
		t.Errorf("expected valid UTF-8 to pass through unchanged, got %q", got)
	}

	invalid := []byte{'h', 'i', ' ', 0xff, 0xfe, ' ', 'x'}
	got := lossyUTF8(invalid)
	if !strings.Contains(string(got), "�") {
		t.Errorf("expected invalid bytes to be replaced with U+FFFD, got %q", got)
	}
	if !strings.HasPrefix(string(got), "hi ") || !strings.HasSuffix(string(got), " x") {
		t.Errorf("expected valid surrounding bytes preserved, got %q", got)
	}
}

// TestIsExpiredReflectsIdleTimeout verifies a session with a near-zero idle
// timeout is reported expired almost immediately.
func TestIsExpiredReflectsIdleTimeout(t *testing.T) {
	s := newTestSession(t, []string{"sleep", "5"}, time.Millisecond)
	defer s.Close()

	time.Sleep(10 * time.Millisecond)
	if !s.IsExpired() {
		t.Error("expected session to be expired")
	}
}

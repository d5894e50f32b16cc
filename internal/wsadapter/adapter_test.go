package wsadapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/catterm/termhost/internal/config"
	"github.com/catterm/termhost/internal/registry"
	"github.com/catterm/termhost/internal/terminal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T) (*Adapter, *terminal.Service) {
	t.Helper()
	reg := registry.New(testLogger())
	svc := terminal.New(reg, nil, time.Hour, testLogger())
	cfg := config.Default()
	return New(svc, cfg, testLogger()), svc
}

func dial(t *testing.T, serverURL, query string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws?%s", serverURL[len("http://"):], query)
	dialCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

// TestImplicitSessionForwardsBytesBothWays checks that connecting without a
// session_id spawns a new shell, and that bytes written to the socket reach
// the PTY while output bytes come back over the socket.
func TestImplicitSessionForwardsBytesBothWays(t *testing.T) {
	a, _ := newTestAdapter(t)
	server := httptest.NewServer(http.HandlerFunc(a.handleWebSocket))
	defer server.Close()

	conn := dial(t, server.URL, "userId=u1&shellType=bash")
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageBinary, []byte("echo hi\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer readCancel()
	msgType, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty output frame")
	}
	if msgType != websocket.MessageText {
		t.Errorf("expected PTY output delivered as a text frame, got %v", msgType)
	}
}

// TestAttachToExistingSessionSurvivesDisconnect checks that a session
// created through the service (not implicitly by the adapter) survives the
// WebSocket connection closing.
func TestAttachToExistingSessionSurvivesDisconnect(t *testing.T) {
	a, svc := newTestAdapter(t)
	info, err := svc.CreateSession(terminal.CreateOptions{
		UserID:    "u1",
		ShellType: "bash",
		Argv:      []string{"bash"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(a.handleWebSocket))
	defer server.Close()

	conn := dial(t, server.URL, "session_id="+info.ID)
	conn.Close(websocket.StatusNormalClosure, "")

	time.Sleep(100 * time.Millisecond)

	if _, err := svc.Status(info.ID); err != nil {
		t.Fatalf("expected attached session to survive disconnect, status err=%v", err)
	}
}

// TestAttachToUnknownSessionReturnsNotFound checks the explicit session_id
// path rejects an id the registry doesn't know about.
func TestAttachToUnknownSessionReturnsNotFound(t *testing.T) {
	a, _ := newTestAdapter(t)
	server := httptest.NewServer(http.HandlerFunc(a.handleWebSocket))
	defer server.Close()

	url := fmt.Sprintf("ws://%s/ws?session_id=does-not-exist", server.URL[len("http://"):])
	dialCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(dialCtx, url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for unknown session")
	}
	if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want %d", resp.StatusCode, http.StatusNotFound)
	}
}

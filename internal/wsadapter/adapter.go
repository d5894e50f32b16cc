// Package wsadapter is the WebSocket transport adapter: one connection is
// one session subscriber, raw frames forwarded opaquely in both directions.
package wsadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/catterm/termhost/internal/config"
	"github.com/catterm/termhost/internal/terminal"
)

// Adapter serves the WebSocket transport on its own listener, sharing the
// terminal.Service with the HTTP control API and the WebTransport adapter.
type Adapter struct {
	svc    *terminal.Service
	cfg    *config.Config
	log    *slog.Logger
	server *http.Server
}

// New constructs an Adapter bound to cfg.WebSocket.Port.
func New(svc *terminal.Service, cfg *config.Config, log *slog.Logger) *Adapter {
	return &Adapter{svc: svc, cfg: cfg, log: log}
}

// Start listens until ctx is canceled, then shuts the listener down.
func (a *Adapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleWebSocket)

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.WebSocket.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("websocket adapter listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (a *Adapter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	implicit := sessionID == ""

	if implicit {
		shellType := q.Get("shellType")
		if shellType == "" {
			shellType = a.cfg.Terminal.DefaultShellType
		}
		shellCfg, ok := a.cfg.GetShellConfig(shellType)
		if !ok {
			shellCfg = a.cfg.GetDefaultShellConfig()
		}
		size := a.cfg.Terminal.DefaultTerminalSize

		info, err := a.svc.CreateSession(terminal.CreateOptions{
			UserID:           q.Get("userId"),
			ShellType:        shellType,
			WorkingDirectory: shellCfg.WorkingDirectory,
			Argv:             shellCfg.Command,
			Env:              shellCfg.EnvSlice(),
			Size:             ptySizeOf(size.Columns, size.Rows),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sessionID = info.ID
	}

	subID, outputCh, err := a.svc.Attach(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		a.log.Warn("websocket accept error", "error", err)
		_ = a.svc.Detach(sessionID, subID)
		return
	}

	c := &client{
		conn:      conn,
		svc:       a.svc,
		log:       a.log,
		sessionID: sessionID,
		subID:     subID,
		implicit:  implicit,
		output:    outputCh,
	}
	c.run(r.Context())
}

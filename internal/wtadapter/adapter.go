// Package wtadapter is the WebTransport-shaped transport adapter: sessions
// are addressed by the session id sent as the first line of the connection's
// first stream (there is no URL path to take it from), output is written to one outgoing stream, input is read
// from every accepted stream. It runs directly over QUIC+TLS rather than
// full HTTP/3 WebTransport framing (see DESIGN.md for why).
package wtadapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quic-go/quic-go"

	"github.com/catterm/termhost/internal/config"
	"github.com/catterm/termhost/internal/terminal"
)

// Adapter serves the WebTransport-shaped transport on its own QUIC listener.
type Adapter struct {
	svc *terminal.Service
	cfg *config.Config
	log *slog.Logger
}

// New constructs an Adapter bound to cfg.WebTransport.Port.
func New(svc *terminal.Service, cfg *config.Config, log *slog.Logger) *Adapter {
	return &Adapter{svc: svc, cfg: cfg, log: log}
}

// Start listens for QUIC connections until ctx is canceled.
func (a *Adapter) Start(ctx context.Context) error {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return fmt.Errorf("wtadapter: build tls identity: %w", err)
	}

	addr := fmt.Sprintf(":%d", a.cfg.WebTransport.Port)
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{})
	if err != nil {
		return fmt.Errorf("wtadapter: listen: %w", err)
	}
	defer ln.Close()

	a.log.Info("webtransport adapter listening", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wtadapter: accept: %w", err)
		}
		go a.handleConnection(ctx, conn)
	}
}

func (a *Adapter) handleConnection(ctx context.Context, conn *quic.Conn) {
	headerStream, err := conn.AcceptStream(ctx)
	if err != nil {
		a.log.Warn("webtransport accept header stream failed", "error", err)
		return
	}

	reader := bufio.NewReader(headerStream)
	sessionID, err := reader.ReadString('\n')
	if err != nil {
		a.log.Warn("webtransport read session id failed", "error", err)
		_ = conn.CloseWithError(0, "invalid session id")
		return
	}
	sessionID = trimNewline(sessionID)

	subID, outputCh, err := a.svc.Attach(sessionID)
	if err != nil {
		a.log.Warn("webtransport attach failed", "session_id", sessionID, "error", err)
		_ = conn.CloseWithError(1, "unknown session")
		return
	}
	defer func() { _ = a.svc.Detach(sessionID, subID) }()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.pumpOutput(connCtx, conn, outputCh)
	go a.pumpInputStream(connCtx, cancel, sessionID, reader)
	a.acceptInputStreams(connCtx, cancel, conn, sessionID)
}

// pumpOutput opens a single outgoing stream and forwards PTY output chunks
// to it until the connection context is canceled.
func (a *Adapter) pumpOutput(ctx context.Context, conn *quic.Conn, output <-chan []byte) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		a.log.Warn("webtransport open output stream failed", "error", err)
		return
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-output:
			if !ok {
				return
			}
			if _, err := stream.Write(chunk); err != nil {
				return
			}
		}
	}
}

// pumpInputStream drains the header stream's remaining bytes (everything
// after the session-id line) as ordinary input.
func (a *Adapter) pumpInputStream(ctx context.Context, cancel context.CancelFunc, sessionID string, reader *bufio.Reader) {
	defer cancel()
	a.forwardInput(ctx, sessionID, reader)
}

// acceptInputStreams accepts every additional bidirectional stream the peer
// opens and forwards each one's bytes as input, exactly as the original
// implementation's accept_bi loop does.
func (a *Adapter) acceptInputStreams(ctx context.Context, cancel context.CancelFunc, conn *quic.Conn, sessionID string) {
	defer cancel()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go a.forwardInput(ctx, sessionID, stream)
	}
}

func (a *Adapter) forwardInput(ctx context.Context, sessionID string, r interface{ Read([]byte) (int, error) }) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(buf)
		if n > 0 {
			if werr := a.svc.WriteInput(sessionID, append([]byte(nil), buf[:n]...)); werr != nil {
				a.log.Warn("webtransport write input failed", "session_id", sessionID, "error", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

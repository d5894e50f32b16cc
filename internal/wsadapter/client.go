package wsadapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/catterm/termhost/internal/ptyproc"
	"github.com/catterm/termhost/internal/terminal"
)

const pingInterval = 30 * time.Second

// client pairs one accepted WebSocket connection with the session
// subscriber it attached as. readPump and writePump are sibling goroutines,
// exactly as the teacher's hub.Client runs them.
type client struct {
	conn      *websocket.Conn
	svc       *terminal.Service
	log       *slog.Logger
	sessionID string
	subID     uint64
	implicit  bool
	output    <-chan []byte
}

func (c *client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.readPump(ctx, cancel)
	}()
	wg.Wait()

	_ = c.svc.Detach(c.sessionID, c.subID)
	if c.implicit {
		if err := c.svc.Terminate(c.sessionID); err != nil {
			c.log.Warn("terminate implicit session on disconnect failed", "session_id", c.sessionID, "error", err)
		}
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if err := c.svc.WriteInput(c.sessionID, data); err != nil {
			c.log.Warn("write input failed", "session_id", c.sessionID, "error", err)
			return
		}
	}
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case chunk, ok := <-c.output:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, chunk); err != nil {
				return
			}
		}
	}
}

func ptySizeOf(cols, rows uint32) ptyproc.Size {
	return ptyproc.Size{Cols: uint16(cols), Rows: uint16(rows)}
}

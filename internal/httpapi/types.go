package httpapi

import (
	"github.com/catterm/termhost/internal/ptyproc"
	"github.com/catterm/termhost/internal/session"
	"github.com/catterm/termhost/internal/terminal"
)

// TerminalSizeJSON is the wire shape of a PTY window size.
type TerminalSizeJSON struct {
	Columns uint32 `json:"columns"`
	Rows    uint32 `json:"rows"`
}

// TerminalSession is the camelCase wire representation of one session's
// control-plane-visible state.
type TerminalSession struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Title            string           `json:"title,omitempty"`
	WorkingDirectory string           `json:"workingDirectory"`
	ShellType        string           `json:"shellType"`
	Status           string           `json:"status"`
	TerminalSize     TerminalSizeJSON `json:"terminalSize"`
	CreatedAt        int64            `json:"createdAt"`
	UpdatedAt        int64            `json:"updatedAt"`
	LastActiveTime   int64            `json:"lastActiveTime"`
	ExpiredAt        int64            `json:"expiredAt"`
}

// TerminalResizeResponse is returned by POST /api/sessions/{id}/resize.
type TerminalResizeResponse struct {
	Status       string           `json:"status"`
	TerminalSize TerminalSizeJSON `json:"terminalSize"`
}

// toTerminalSession converts the façade's Info into the wire representation.
// Status "ERROR" is part of the wire contract but never emitted: the state
// machine (SPEC_FULL.md §4.5) only ever reaches Active or Terminated.
func toTerminalSession(info terminal.Info) TerminalSession {
	status := "ACTIVE"
	if info.Status == session.StatusTerminated {
		status = "TERMINATED"
	}
	return TerminalSession{
		ID:               info.ID,
		UserID:           info.UserID,
		Title:            info.Title,
		WorkingDirectory: info.WorkingDirectory,
		ShellType:        info.ShellType,
		Status:           status,
		TerminalSize:     TerminalSizeJSON{Columns: uint32(info.Size.Cols), Rows: uint32(info.Size.Rows)},
		CreatedAt:        info.CreatedAt,
		UpdatedAt:        info.LastActiveAt,
		LastActiveTime:   info.LastActiveAt,
		ExpiredAt:        info.ExpiresAt,
	}
}

func toPtySize(cols, rows uint32) ptyproc.Size {
	return ptyproc.Size{Cols: uint16(cols), Rows: uint16(rows)}
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/catterm/termhost/internal/apierr"
	"github.com/catterm/termhost/internal/terminal"
)

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		jsonError(w, http.StatusBadRequest, "userId is required")
		return
	}

	shellType := q.Get("shellType")
	if shellType == "" {
		shellType = h.cfg.Terminal.DefaultShellType
	}
	shellCfg, ok := h.cfg.GetShellConfig(shellType)
	if !ok {
		shellCfg = h.cfg.GetDefaultShellConfig()
	}

	workDir := q.Get("workingDirectory")
	if workDir == "" {
		workDir = shellCfg.WorkingDirectory
	}
	if workDir == "" {
		workDir = h.cfg.Terminal.DefaultWorkingDirectory
	}

	size := h.cfg.Terminal.DefaultTerminalSize
	if cols, err := strconv.ParseUint(q.Get("columns"), 10, 32); err == nil {
		size.Columns = uint32(cols)
	}
	if rows, err := strconv.ParseUint(q.Get("rows"), 10, 32); err == nil {
		size.Rows = uint32(rows)
	}

	info, err := h.svc.CreateSession(terminal.CreateOptions{
		UserID:           userID,
		Title:            q.Get("title"),
		WorkingDirectory: workDir,
		ShellType:        shellType,
		Argv:             shellCfg.Command,
		Env:              shellCfg.EnvSlice(),
		Size:             toPtySize(size.Columns, size.Rows),
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, toTerminalSession(info))
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.svc.List()
	out := make([]TerminalSession, 0, len(infos))
	for _, info := range infos {
		out = append(out, toTerminalSession(info))
	}
	jsonResponse(w, http.StatusOK, out)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	infos := h.svc.List()
	for _, info := range infos {
		if info.ID == id {
			jsonResponse(w, http.StatusOK, toTerminalSession(info))
			return
		}
	}
	jsonError(w, http.StatusNotFound, "session not found")
}

func (h *handler) resizeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	cols, err1 := strconv.ParseUint(q.Get("cols"), 10, 32)
	rows, err2 := strconv.ParseUint(q.Get("rows"), 10, 32)
	if err1 != nil || err2 != nil {
		jsonError(w, http.StatusBadRequest, "cols and rows are required and must be numeric")
		return
	}

	if err := h.svc.Resize(id, toPtySize(uint32(cols), uint32(rows))); err != nil {
		writeAPIError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, TerminalResizeResponse{
		Status:       "resized",
		TerminalSize: TerminalSizeJSON{Columns: uint32(cols), Rows: uint32(rows)},
	})
}

func (h *handler) interruptSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Interrupt(id); err != nil {
		writeAPIError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "interrupted"})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Terminate(id); err != nil {
		writeAPIError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "TERMINATED"})
}

func (h *handler) getSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.svc.Status(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": status.String()})
}

func (h *handler) executeCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	command := r.URL.Query().Get("command")
	if command == "" {
		jsonError(w, http.StatusBadRequest, "command is required")
		return
	}

	if err := h.svc.ExecuteCommand(id, command); err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) executeCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	command := r.URL.Query().Get("command")
	if command == "" {
		jsonError(w, http.StatusBadRequest, "command is required")
		return
	}

	jsonResponse(w, http.StatusOK, h.svc.ExecuteCheck(id, command))
}

func writeAPIError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	jsonError(w, apierr.HTTPStatus(kind), err.Error())
}

// Package httpapi implements the HTTP control plane: session CRUD, resize,
// interrupt, and the execute/execute-check shortcuts, all wired to a shared
// *terminal.Service.
package httpapi

import (
	"net/http"

	"github.com/catterm/termhost/internal/config"
	"github.com/catterm/termhost/internal/terminal"
)

type handler struct {
	svc *terminal.Service
	cfg *config.Config
}

// NewRouter builds the control-API http.Handler, wrapped in the CORS and
// JSON content-type middleware the teacher's router also applies.
func NewRouter(svc *terminal.Service, cfg *config.Config) http.Handler {
	h := &handler{svc: svc, cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	mux.HandleFunc("POST /api/sessions/{id}/resize", h.resizeSession)
	mux.HandleFunc("POST /api/sessions/{id}/interrupt", h.interruptSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.deleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/status", h.getSessionStatus)
	mux.HandleFunc("POST /api/sessions/{id}/execute", h.executeCommand)
	mux.HandleFunc("POST /api/sessions/{id}/execute-check", h.executeCheck)

	return jsonMiddleware(corsMiddleware(mux))
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

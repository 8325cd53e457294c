// Package server exposes the command engine over HTTP. Every request
// body is treated as an untrusted command line and goes through the
// same allowlist path the REPL uses.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webterm/internal/engine"
	"webterm/internal/history"
	"webterm/internal/logging"
)

//go:embed webui/index.html
var indexPage []byte

type runResponse struct {
	OK     bool   `json:"ok"`
	Output string `json:"output"`
	Kind   string `json:"kind,omitempty"`
}

type Server struct {
	engine *engine.Engine
	store  *history.Store
	addr   string
	listen string
	slog   *logging.StructuredLogger
}

// New wires the HTTP surface. store may be nil when history persistence
// is disabled.
func New(eng *engine.Engine, store *history.Store, addr string) *Server {
	clean := strings.TrimSpace(addr)
	if clean == "" {
		clean = "127.0.0.1:8321"
	}
	return &Server{
		engine: eng,
		store:  store,
		addr:   clean,
		slog:   logging.ForComponent("http"),
	}
}

// Addr returns the bound address once Run has started listening.
func (s *Server) Addr() string {
	return s.listen
}

func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listen = listener.Addr().String()

	server := &http.Server{
		Addr:    s.listen,
		Handler: s.logRequests(s.Handler()),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("webterm listening at http://%s (root %s)\n", s.listen, s.engine.Root())
	logging.UserLog("web server listening on http://%s", s.listen)
	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler builds the route table without binding a socket, which keeps
// the surface testable with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/run_get", s.handleRunGet)
	mux.HandleFunc("/api/commands", s.handleCommands)
	mux.HandleFunc("/api/history", s.handleHistory)
	return mux
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.slog.Debug("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote":      r.RemoteAddr,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.slog.Warn("request rejected", map[string]interface{}{
		"status": status,
		"method": r.Method,
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
		"reason": message,
	})
	http.Error(w, message, status)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "pong"})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Commands())
}

// handleRun executes a form-posted command line and answers with the
// {"ok","output"} shape. Commands not on the allowlist come back 403;
// other failures stay 200 with ok=false so callers can distinguish
// "rejected outright" from "ran and failed".
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid form payload")
		return
	}
	line := strings.TrimSpace(r.PostFormValue("cmd"))
	if line == "" {
		s.respondError(w, r, http.StatusBadRequest, "cmd is required")
		return
	}
	cwd := strings.TrimSpace(r.PostFormValue("cwd"))

	res, err := s.engine.Run(r.Context(), engine.Request{Raw: line, Cwd: cwd})
	if err != nil {
		status := http.StatusOK
		resp := runResponse{OK: false, Output: err.Error()}
		if ee, ok := engine.AsEngineError(err); ok {
			resp.Kind = string(ee.Kind)
			switch ee.Kind {
			case engine.KindUnknownCommand:
				status = http.StatusForbidden
			case engine.KindPathEscape:
				s.slog.Warn("path escape rejected", map[string]interface{}{
					"remote": r.RemoteAddr,
					"cmd":    line,
				})
			}
		}
		writeJSON(w, status, resp)
		return
	}
	s.record(line, cwd)
	output := res.Stdout
	if res.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += res.Stderr
	}
	writeJSON(w, http.StatusOK, runResponse{OK: true, Output: output})
}

// handleRunGet is the query-string variant, kept for quick probing with
// curl or a browser address bar. Output is plain text.
func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	line := strings.TrimSpace(r.URL.Query().Get("cmd"))
	if line == "" {
		s.respondError(w, r, http.StatusBadRequest, "cmd is required")
		return
	}
	res, err := s.engine.Run(r.Context(), engine.Request{Raw: line, Cwd: strings.TrimSpace(r.URL.Query().Get("cwd"))})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		if ee, ok := engine.AsEngineError(err); ok && ee.Kind == engine.KindUnknownCommand {
			w.WriteHeader(http.StatusForbidden)
		}
		fmt.Fprintf(w, "error: %s\n", err)
		return
	}
	s.record(line, "")
	out := res.Stdout
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"history": []history.Entry{}})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.store.Recent(limit)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to read history")
		return
	}
	type entryPayload struct {
		Line string    `json:"line"`
		Cwd  string    `json:"cwd,omitempty"`
		At   time.Time `json:"at"`
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, entryPayload{Line: e.Line, Cwd: e.Cwd, At: e.At})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": payload})
}

func (s *Server) record(line, cwd string) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(line, cwd); err != nil {
		logging.WarnLog("failed to record history entry: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

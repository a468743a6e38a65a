// Package web provides the GET-only HTTP API and status page for
// hifipowerd. Handlers never touch relay state directly: commands go
// through the controller's queue and wait for the result, bounded by
// the command timeout.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keritech/hifipower/internal/power"
	"github.com/keritech/hifipower/internal/status"
)

// Controller is the command/query surface the HTTP layer needs.
// Satisfied by *power.Controller.
type Controller interface {
	Send(ctx context.Context, cmd power.Command) (power.Result, error)
	State() power.Snapshot
	CountsSnapshot() power.Counts
}

// Server serves the power API over HTTP.
type Server struct {
	httpServer *http.Server
	ctrl       Controller
	tracker    *status.Tracker
	cmdTimeout time.Duration
}

// New creates a Server driving the given controller.
func New(addr string, ctrl Controller, tracker *status.Tracker, cmdTimeout time.Duration) *Server {
	s := &Server{ctrl: ctrl, tracker: tracker, cmdTimeout: cmdTimeout}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/json", s.handleJSON)
	mux.HandleFunc("/power", s.handlePower)
	mux.HandleFunc("/power/", s.handlePower)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut
// down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !checkGet(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, indexData{
		Power:  s.ctrl.State(),
		Counts: s.ctrl.CountsSnapshot(),
		Daemon: s.tracker.Snapshot(),
	})
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	if !checkGet(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(StatusDocument(s.ctrl.State(), s.ctrl.CountsSnapshot(), s.tracker.Snapshot()))
}

// handlePower dispatches everything under /power:
//
//	/power            state query
//	/power/on         global command (also off, toggle)
//	/power/1          single channel state
//	/power/1/on       per-channel command (also off, toggle)
//
// The API is GET-only for compatibility with the existing clients.
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if !checkGet(w, r) {
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/power"), "/")
	if rest == "" {
		s.writePowerState(w, s.ctrl.State(), nil, http.StatusOK)
		return
	}

	if action, ok := parseAction(rest); ok {
		s.command(w, r, power.TargetGlobal, action)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if id <= 0 {
		// Channel ids start at 1. Id 0 in particular must never reach
		// the controller, where it addresses all channels.
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	if len(parts) == 1 {
		snap := s.ctrl.State()
		ch, ok := snap.Channel(id)
		if !ok {
			writeError(w, http.StatusNotFound, "channel not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(formatChannelJSON(ch))
		return
	}

	action, ok := parseAction(parts[1])
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.command(w, r, id, action)
}

// command enqueues an HTTP-origin command and renders its result.
func (s *Server) command(w http.ResponseWriter, r *http.Request, target int, action power.Action) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cmdTimeout)
	defer cancel()

	res, err := s.ctrl.Send(ctx, power.Command{
		Origin: power.OriginHTTP,
		Target: target,
		Action: action,
	})
	switch {
	case errors.Is(err, power.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, "channel not found")
		return
	case errors.Is(err, power.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, "command timed out")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusOK
	if len(res.Failed) > 0 {
		// Partial apply: report what failed alongside the snapshot so
		// the caller can tell which channels actually switched.
		code = http.StatusInternalServerError
	}
	s.writePowerState(w, res.State, res.Failed, code)
}

func (s *Server) writePowerState(w http.ResponseWriter, snap power.Snapshot, failed []power.ChannelFailure, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(formatPowerJSON(snap, failed))
}

func parseAction(s string) (power.Action, bool) {
	switch s {
	case "on":
		return power.ActionOn, true
	case "off":
		return power.ActionOff, true
	case "toggle":
		return power.ActionToggle, true
	}
	return "", false
}

func checkGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

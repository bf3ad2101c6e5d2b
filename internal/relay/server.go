package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ehrlich-b/clawchat/internal/sessionlog"
	"github.com/ehrlich-b/clawchat/internal/watch"
	"github.com/ehrlich-b/clawchat/internal/ws"
)

const (
	maxSendBody    = 1 << 20
	heartbeatEvery = 25 * time.Second
)

// Server exposes a Relay over HTTP for the chat UI.
type Server struct {
	Relay     *Relay
	StaticDir string // served at / when set
	Logger    *slog.Logger

	heartbeat time.Duration
	mux       *http.ServeMux
}

func NewServer(r *Relay, staticDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Relay:     r,
		StaticDir: staticDir,
		Logger:    logger,
		heartbeat: heartbeatEvery,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/messages", s.handleMessages)
	s.mux.HandleFunc("POST /api/send", s.handleSend)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	if s.StaticDir != "" {
		s.mux.Handle("GET /", http.FileServer(http.Dir(s.StaticDir)))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.Relay.hub.Len(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Relay.Conversation(r.Context())
	if errors.Is(err, sessionlog.ErrNoSession) {
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	result, err := s.Relay.SendMessage(r.Context(), req.Text)
	if err != nil {
		code, kind := sendStatus(err)
		writeJSON(w, code, map[string]string{"error": err.Error(), "kind": kind})
		return
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

// sendStatus maps a send failure to an HTTP status and a short kind the UI
// can switch on.
func sendStatus(err error) (int, string) {
	var (
		transport *ws.TransportError
		timeout   *ws.TimeoutError
		handshake *ws.HandshakeError
		rejected  *ws.CallError
	)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &timeout):
		return http.StatusBadGateway, "timeout"
	case errors.As(err, &transport):
		return http.StatusBadGateway, "unreachable"
	case errors.As(err, &handshake):
		return http.StatusUnprocessableEntity, "handshake"
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, "rejected"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// handleEvents streams change notifications as server-sent events until the
// client disconnects or the subscription is dropped.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := s.Relay.Subscribe()
	defer s.Relay.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, watch.Event{Type: watch.EventConnected})
	flusher.Flush()

	ping := time.NewTicker(s.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				s.Logger.Debug("event subscriber dropped")
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev watch.Event) {
	if ev.Type == watch.EventConnected {
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		return
	}
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Package server exposes the event-intake and patch-delivery endpoints over
// two interchangeable transports: an SSE push channel paired with a POST
// intake, and a bidirectional WebSocket. Both share one event processor and
// store; transport choice is purely a delivery concern.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/edoloughlin/nasc/pkg/processor"
	"github.com/edoloughlin/nasc/pkg/protocol"
)

// Server routes inbound event messages through the processor and delivers
// resulting patches to the originating client's channel.
type Server struct {
	proc     *processor.Processor
	hub      *streamHub
	upgrader websocket.Upgrader
	config   *Config
	logger   *slog.Logger
}

// New creates a transport server over the given processor. A nil config
// uses defaults; a partially filled config has its zero fields defaulted.
func New(proc *processor.Processor, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	config.fillDefaults()

	s := &Server{
		proc:   proc,
		config: config,
		logger: config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
	}
	s.hub = newStreamHub(s.logger, config.Metrics)
	return s
}

// Mount registers all endpoints on an existing chi router, so the server
// composes with whatever middleware stack the host application runs.
func (s *Server) Mount(r chi.Router) {
	r.Route(s.config.BasePath, func(r chi.Router) {
		r.Get("/stream", s.handleStream)
		r.Post("/event", s.handleEvent)
		r.Get("/ws", s.handleSocket)
		r.Get("/schema", s.handleSchemaIndex)
		r.Get("/schema/{type}", s.handleSchema)
		r.Get("/manifest", s.handleManifest)
	})
}

// Handler returns a standalone http.Handler with all endpoints mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Mount(r)
	return r
}

// handleEvent is the stateless intake endpoint of the streaming pair: it
// accepts one event envelope, processes it, pushes resulting patches to the
// sender's open push channel and acknowledges immediately. Patches are
// dropped, not queued, when the channel is absent.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev protocol.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed event envelope"})
		return
	}

	patches := s.proc.Process(r.Context(), &ev)
	if len(patches) > 0 && ev.ClientID != "" {
		data, err := protocol.EncodePatches(patches)
		if err != nil {
			s.logger.Error("patch encode failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "patch encoding failed"})
			return
		}
		if !s.hub.Push(ev.ClientID, ev.EventID, data) {
			s.logger.Debug("push channel absent, patches dropped", "client_id", ev.ClientID)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// handleSocket is the bidirectional pairing: one persistent duplex channel
// per client, inbound JSON event envelopes, outbound patch lists pushed
// immediately after processing. Each message is processed to completion
// before the next is read.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("socket upgrade failed", "error", err)
		return
	}
	s.serveSocket(r, conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encode failed", "error", err)
	}
}

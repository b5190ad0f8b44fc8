package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/edoloughlin/nasc/pkg/metrics"
)

// streamHub tracks one open SSE push channel per clientId.
type streamHub struct {
	mu      sync.Mutex
	clients map[string]*streamClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type streamClient struct {
	frames chan streamFrame
	done   chan struct{}
}

type streamFrame struct {
	eventID string
	data    []byte
}

func newStreamHub(logger *slog.Logger, m *metrics.Metrics) *streamHub {
	return &streamHub{
		clients: map[string]*streamClient{},
		logger:  logger,
		metrics: m,
	}
}

// register creates the push channel for a clientId, replacing any previous
// channel for the same id (a reload supersedes its predecessor).
func (h *streamHub) register(clientID string) *streamClient {
	c := &streamClient{
		frames: make(chan streamFrame, 16),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if prev, ok := h.clients[clientID]; ok {
		close(prev.done)
	}
	h.clients[clientID] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
	}
	return c
}

func (h *streamHub) unregister(clientID string, c *streamClient) {
	h.mu.Lock()
	if h.clients[clientID] == c {
		delete(h.clients, clientID)
		// A Push that already fetched this client must not block on a
		// reader that is gone. Superseded clients were closed by register.
		close(c.done)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Dec()
	}
}

// Push delivers one encoded patch list to the client's channel, reporting
// false when no channel is connected. Patches are dropped, never queued
// beyond the channel's small buffer.
func (h *streamHub) Push(clientID, eventID string, data []byte) bool {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	h.mu.Unlock()
	if !ok {
		if h.metrics != nil {
			h.metrics.DroppedPatches.Inc()
		}
		return false
	}
	select {
	case c.frames <- streamFrame{eventID: eventID, data: data}:
		return true
	case <-c.done:
		return false
	default:
		// Buffer full: the reader is stalled. Drop rather than block the
		// event goroutine behind it.
		if h.metrics != nil {
			h.metrics.DroppedPatches.Inc()
		}
		return false
	}
}

// handleStream holds an open response for the duration of the connection,
// emitting "data:" frames for patch lists and periodic comment keep-alives.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = ulid.Make().String()
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Register before the first flush: once the client sees the response
	// headers it may POST events, and those must find the push channel.
	client := s.hub.register(clientID)
	defer s.hub.unregister(clientID, client)

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": connected %s\n\n", clientID)
	flusher.Flush()
	s.logger.Info("stream connected", "client_id", clientID)

	keepalive := time.NewTicker(s.config.KeepAliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case frame := <-client.frames:
			if frame.eventID != "" {
				fmt.Fprintf(w, "id: %s\n", frame.eventID)
			}
			fmt.Fprintf(w, "data: %s\n\n", frame.data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": ping %d\n\n", time.Now().UnixMilli())
			flusher.Flush()

		case <-client.done:
			// Superseded by a newer connection for the same clientId.
			s.logger.Debug("stream superseded", "client_id", clientID)
			return

		case <-r.Context().Done():
			s.logger.Info("stream closed", "client_id", clientID)
			return
		}
	}
}

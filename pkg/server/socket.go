package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

// serveSocket runs the duplex channel's read loop. Malformed envelopes are
// logged and dropped; the channel stays open. Processing failures arrive as
// error patches from the processor, so only transport-level errors end the
// loop.
func (s *Server) serveSocket(r *http.Request, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(s.config.ReadLimit)
	remote := conn.RemoteAddr().String()
	s.logger.Info("socket connected", "remote", remote)

	if s.config.Metrics != nil {
		s.config.Metrics.SocketClients.Inc()
		defer s.config.Metrics.SocketClients.Dec()
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("socket read error", "remote", remote, "error", err)
			} else {
				s.logger.Info("socket closed", "remote", remote)
			}
			return
		}

		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			s.logger.Error("malformed socket envelope", "remote", remote, "error", err)
			continue
		}

		patches := s.proc.Process(r.Context(), ev)
		if len(patches) == 0 {
			continue
		}

		data, err := protocol.EncodePatches(patches)
		if err != nil {
			s.logger.Error("patch encode failed", "error", err)
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Error("socket write error", "remote", remote, "error", err)
			return
		}
	}
}

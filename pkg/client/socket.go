package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

// socketTransport is the fallback pairing: one persistent duplex channel
// carrying JSON event envelopes out and JSON patch lists in.
type socketTransport struct {
	url    string
	dialer *websocket.Dialer
	hook   FrameHook
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newSocketTransport(opts Options) *socketTransport {
	return &socketTransport{
		url:    opts.SocketURL,
		dialer: opts.Dialer,
		hook:   opts.OnFrame,
		logger: opts.Logger.With("transport", "ws"),
	}
}

func (t *socketTransport) kind() Kind {
	return KindSocket
}

func (t *socketTransport) connect(ctx context.Context, cb callbacks) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.logger.Error("socket dial failed", "url", t.url, "error", err)
		cb.onChannelError(false, true)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	cb.onOpen()
	go t.readLoop(conn, cb)
}

func (t *socketTransport) readLoop(conn *websocket.Conn, cb callbacks) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Warn("socket read ended", "error", err)
				cb.onChannelError(true, true)
			}
			return
		}
		if t.hook != nil {
			t.hook(DirectionRecv, KindSocket, msg)
		}
		patches, err := protocol.DecodePatches(msg)
		if err != nil {
			// Malformed frame: dropped, channel stays open.
			t.logger.Error("malformed patch frame dropped", "error", err)
			continue
		}
		cb.onPatches(patches)
	}
}

func (t *socketTransport) send(ev *protocol.Event) error {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if t.hook != nil {
		t.hook(DirectionSend, KindSocket, data)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return fmt.Errorf("socket not connected")
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	return nil
}

func (t *socketTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

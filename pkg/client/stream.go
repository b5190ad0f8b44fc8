package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

// streamTransport is the primary pairing: a long-lived SSE GET for patches
// and a stateless POST per event. Reconnecting after a successful open is
// this channel's own responsibility; pre-open failures and terminal
// responses are reported so the client can decide on fallback.
type streamTransport struct {
	baseURL  string
	basePath string
	clientID string
	http     *http.Client
	hook     FrameHook
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

func newStreamTransport(opts Options) *streamTransport {
	return &streamTransport{
		baseURL:  opts.BaseURL,
		basePath: opts.BasePath,
		clientID: opts.ClientID,
		http:     opts.HTTPClient,
		hook:     opts.OnFrame,
		logger:   opts.Logger.With("transport", "sse"),
	}
}

func (t *streamTransport) kind() Kind {
	return KindStream
}

func (t *streamTransport) connect(ctx context.Context, cb callbacks) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	go t.run(ctx, cb)
}

func (t *streamTransport) run(ctx context.Context, cb callbacks) {
	streamURL := fmt.Sprintf("%s%s/stream?clientId=%s", t.baseURL, t.basePath, url.QueryEscape(t.clientID))
	opened := false

	for {
		if ctx.Err() != nil {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
		if err != nil {
			t.logger.Error("bad stream url", "error", err)
			cb.onChannelError(opened, true)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := t.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("stream connect failed", "error", err)
			cb.onChannelError(opened, false)
			if t.waitRetry(ctx) {
				continue
			}
			return
		}
		if resp.StatusCode != http.StatusOK {
			// A non-stream response will not get better by retrying.
			resp.Body.Close()
			t.logger.Warn("stream rejected", "status", resp.StatusCode)
			cb.onChannelError(opened, true)
			return
		}

		opened = true
		cb.onOpen()
		t.readFrames(resp, cb)
		resp.Body.Close()

		if ctx.Err() != nil {
			return
		}
		// Errors after open are logged only; the stream reconnects itself.
		t.logger.Warn("stream interrupted, reconnecting")
		cb.onChannelError(true, false)
		if !t.waitRetry(ctx) {
			return
		}
	}
}

// readFrames consumes "data:" frames until the stream breaks. Comment
// keep-alives and id lines are skipped; malformed patch JSON drops the
// frame and keeps the channel open.
func (t *streamTransport) readFrames(resp *http.Response, cb callbacks) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) == 0 {
			continue
		}
		if t.hook != nil {
			t.hook(DirectionRecv, KindStream, data)
		}
		patches, err := protocol.DecodePatches(data)
		if err != nil {
			t.logger.Error("malformed patch frame dropped", "error", err)
			continue
		}
		cb.onPatches(patches)
	}
}

func (t *streamTransport) waitRetry(ctx context.Context) bool {
	select {
	case <-time.After(time.Second):
		return true
	case <-ctx.Done():
		return false
	}
}

// send POSTs one event envelope to the intake endpoint. Patches arrive
// asynchronously over the stream, not in the response body.
func (t *streamTransport) send(ev *protocol.Event) error {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if t.hook != nil {
		t.hook(DirectionSend, KindStream, data)
	}

	resp, err := t.http.Post(t.baseURL+t.basePath+"/event", "application/json", strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post event: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *streamTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

package client

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

// stubTransport records calls and exposes its callbacks so tests can drive
// channel lifecycle events deterministically.
type stubTransport struct {
	k        Kind
	cb       callbacks
	connects int
	closes   int
	sent     []*protocol.Event
	openNow  bool
}

func (s *stubTransport) connect(_ context.Context, cb callbacks) {
	s.cb = cb
	s.connects++
	if s.openNow {
		cb.onOpen()
	}
}

func (s *stubTransport) send(ev *protocol.Event) error {
	s.sent = append(s.sent, ev)
	return nil
}

func (s *stubTransport) close() error {
	s.closes++
	return nil
}

func (s *stubTransport) kind() Kind { return s.k }

func newStubbedClient(primary, fallback *stubTransport) *Client {
	c := New(Options{
		BaseURL:  "http://example.test",
		ClientID: "c-test",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	c.newPrimary = func() transport { return primary }
	c.newFallback = func() transport { return fallback }
	return c
}

func TestConnectIsSingleUse(t *testing.T) {
	primary := &stubTransport{k: KindStream, openNow: true}
	c := newStubbedClient(primary, &stubTransport{k: KindSocket})

	if err := c.Connect(context.Background(), nil, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(context.Background(), nil, nil); err != ErrAlreadyConnected {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestFallbackAfterConsecutivePreOpenErrors(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	fallback := &stubTransport{k: KindSocket, openNow: true}
	c := newStubbedClient(primary, fallback)

	opens := 0
	c.Connect(context.Background(), func() { opens++ }, nil)

	// First pre-open error: below threshold, no substitution.
	primary.cb.onChannelError(false, false)
	if c.UsingFallback() {
		t.Fatalf("fallback after one pre-open error")
	}

	// Second consecutive error crosses the threshold.
	primary.cb.onChannelError(false, false)
	if !c.UsingFallback() {
		t.Fatalf("no fallback after threshold errors")
	}
	if fallback.connects != 1 {
		t.Errorf("fallback connects = %d, want 1", fallback.connects)
	}
	if primary.closes != 1 {
		t.Errorf("primary closes = %d, want 1", primary.closes)
	}
	// The fallback open replays the handshake callback.
	if opens != 1 {
		t.Errorf("onOpen fired %d times, want 1 (fallback handshake)", opens)
	}
	if c.State() != StateOpen {
		t.Errorf("state = %v, want open", c.State())
	}
}

func TestFallbackOnHardClose(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	fallback := &stubTransport{k: KindSocket, openNow: true}
	c := newStubbedClient(primary, fallback)
	c.Connect(context.Background(), nil, nil)

	// A hard closure falls back immediately, threshold notwithstanding.
	primary.cb.onChannelError(false, true)
	if !c.UsingFallback() {
		t.Fatalf("no fallback on hard close")
	}
	if fallback.connects != 1 {
		t.Errorf("fallback connects = %d, want 1", fallback.connects)
	}
}

func TestFallbackHappensAtMostOnce(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	fallback := &stubTransport{k: KindSocket, openNow: true}
	c := newStubbedClient(primary, fallback)
	c.Connect(context.Background(), nil, nil)

	primary.cb.onChannelError(false, true)
	if fallback.connects != 1 {
		t.Fatalf("fallback connects = %d, want 1", fallback.connects)
	}

	// Errors on the fallback channel never trigger a second substitution.
	fallback.cb.onChannelError(true, true)
	fallback.cb.onChannelError(false, true)
	if fallback.connects != 1 {
		t.Errorf("fallback connects = %d after post-fallback errors, want 1", fallback.connects)
	}
}

func TestOpenResetsPreOpenErrorCount(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	fallback := &stubTransport{k: KindSocket, openNow: true}
	c := newStubbedClient(primary, fallback)
	c.Connect(context.Background(), nil, nil)

	// error, open, error: the streak is broken, no fallback.
	primary.cb.onChannelError(false, false)
	primary.cb.onOpen()
	primary.cb.onChannelError(false, false)
	if c.UsingFallback() {
		t.Errorf("fallback despite broken error streak")
	}
}

func TestSendStampsIdentifiers(t *testing.T) {
	primary := &stubTransport{k: KindStream, openNow: true}
	c := newStubbedClient(primary, &stubTransport{k: KindSocket})
	c.Connect(context.Background(), nil, nil)

	ev := &protocol.Event{Event: "add_todo", Instance: "TodoList:l1"}
	if err := c.Send(ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(primary.sent) != 1 {
		t.Fatalf("sent = %d events, want 1", len(primary.sent))
	}
	got := primary.sent[0]
	if got.ClientID != "c-test" {
		t.Errorf("ClientID = %q, want c-test", got.ClientID)
	}
	if got.EventID == "" {
		t.Errorf("EventID not stamped")
	}
}

func TestSendWithoutOpenChannelIsNoop(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	c := newStubbedClient(primary, &stubTransport{k: KindSocket})
	c.Connect(context.Background(), nil, nil)

	// Channel never opened; send drops silently.
	if err := c.Send(&protocol.Event{Event: "x", Instance: "T:1"}); err != nil {
		t.Errorf("Send = %v, want nil", err)
	}
	if len(primary.sent) != 0 {
		t.Errorf("sent = %d events, want 0", len(primary.sent))
	}
}

func TestSendRoutesToFallbackAfterSubstitution(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	fallback := &stubTransport{k: KindSocket, openNow: true}
	c := newStubbedClient(primary, fallback)
	c.Connect(context.Background(), nil, nil)
	primary.cb.onChannelError(false, true)

	c.Send(&protocol.Event{Event: "x", Instance: "T:1"})
	if len(primary.sent) != 0 || len(fallback.sent) != 1 {
		t.Errorf("sent primary=%d fallback=%d, want 0/1", len(primary.sent), len(fallback.sent))
	}
}

func TestCloseIsIdempotentAndStopsFallback(t *testing.T) {
	primary := &stubTransport{k: KindStream}
	fallback := &stubTransport{k: KindSocket, openNow: true}
	c := newStubbedClient(primary, fallback)
	c.Connect(context.Background(), nil, nil)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if primary.closes != 1 {
		t.Errorf("primary closes = %d, want 1", primary.closes)
	}

	// A late channel error on a closed client must not resurrect it.
	primary.cb.onChannelError(false, true)
	if c.UsingFallback() || fallback.connects != 0 {
		t.Errorf("closed client fell back: connects=%d", fallback.connects)
	}
}

func TestPatchesNotDeliveredAfterClose(t *testing.T) {
	primary := &stubTransport{k: KindStream, openNow: true}
	delivered := 0
	c := newStubbedClient(primary, &stubTransport{k: KindSocket})
	c.Connect(context.Background(), nil, func([]protocol.Patch) { delivered++ })

	primary.cb.onPatches([]protocol.Patch{protocol.NewErrorPatch("x")})
	c.Close()
	primary.cb.onPatches([]protocol.Patch{protocol.NewErrorPatch("y")})

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
}

func TestInferSocketURL(t *testing.T) {
	if got := inferSocketURL("http://localhost:3000", "/nasc"); got != "ws://localhost:3000/nasc/ws" {
		t.Errorf("http infer = %q", got)
	}
	if got := inferSocketURL("https://app.example.com", "/nasc"); got != "wss://app.example.com/nasc/ws" {
		t.Errorf("https infer = %q", got)
	}
}

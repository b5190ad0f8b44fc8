// Package client connects to a nasc server over the streaming pair (SSE
// push + POST intake) and transparently substitutes the bidirectional
// socket transport, at most once, when the streaming channel fails before
// or instead of opening.
package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

// Kind identifies a transport implementation.
type Kind string

const (
	// KindStream is the SSE push channel plus POST intake.
	KindStream Kind = "sse"
	// KindSocket is the bidirectional WebSocket channel.
	KindSocket Kind = "ws"
)

// Direction is the flow direction of an observed frame.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// FrameHook observes every frame the active transport sends or receives.
// Transports invoke it directly; no global constructors are substituted.
type FrameHook func(dir Direction, kind Kind, data []byte)

// State is the client connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// ErrAlreadyConnected is returned by Connect on a client that already
// connected once. Clients are single-use: create a new one to reconnect.
var ErrAlreadyConnected = errors.New("client: already connected")

// Options configures a Client.
type Options struct {
	// BaseURL is the server's HTTP origin, e.g. "http://localhost:3000".
	BaseURL string

	// BasePath is the server's endpoint prefix (default: "/nasc").
	BasePath string

	// SocketURL overrides the fallback socket URL. Defaults to BaseURL
	// with the scheme swapped to ws(s) plus BasePath + "/ws".
	SocketURL string

	// ClientID identifies this client across reloads. Generated when empty;
	// callers wanting persistence supply the stored value.
	ClientID string

	// FallbackThreshold is the number of consecutive pre-open streaming
	// errors that triggers the socket fallback (default: 2).
	FallbackThreshold int

	// OnFrame observes transport traffic for instrumentation.
	OnFrame FrameHook

	// HTTPClient serves the streaming pair (default: http.DefaultClient).
	HTTPClient *http.Client

	// Dialer dials the fallback socket (default: websocket.DefaultDialer).
	Dialer *websocket.Dialer

	// Logger is the client's logger.
	Logger *slog.Logger
}

func (o *Options) fillDefaults() {
	if o.BasePath == "" {
		o.BasePath = "/nasc"
	}
	if o.ClientID == "" {
		o.ClientID = ulid.Make().String()
	}
	if o.FallbackThreshold == 0 {
		o.FallbackThreshold = 2
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "client")
	}
	if o.SocketURL == "" {
		o.SocketURL = inferSocketURL(o.BaseURL, o.BasePath)
	}
}

func inferSocketURL(baseURL, basePath string) string {
	u := baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + basePath + "/ws"
}

// transport is one channel implementation. connect reports channel-level
// failures through the callbacks rather than its return value so the client
// can count pre-open errors uniformly across implementations.
type transport interface {
	connect(ctx context.Context, cb callbacks)
	send(ev *protocol.Event) error
	close() error
	kind() Kind
}

type callbacks struct {
	onOpen    func()
	onPatches func(patches []protocol.Patch)

	// onChannelError reports a channel-level failure. opened tells whether
	// the channel ever completed its handshake; hard marks a terminal
	// closure that the transport will not retry itself.
	onChannelError func(opened, hard bool)
}

// Client is the dual-transport connection handle. Connect, Send and Close
// keep their signatures across the fallback substitution; after fallback
// they delegate to the socket transport.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	active        transport
	fallbackDone  bool
	usingFallback bool
	preOpenErrs   int
	ctx           context.Context
	onOpen        func()
	onPatches     func([]protocol.Patch)

	// Transport constructors, swappable in tests.
	newPrimary  func() transport
	newFallback func() transport
}

// New creates a client. Connect must be called before Send.
func New(opts Options) *Client {
	opts.fillDefaults()
	c := &Client{
		opts:   opts,
		logger: opts.Logger,
		state:  StateDisconnected,
	}
	c.newPrimary = func() transport {
		return newStreamTransport(c.opts)
	}
	c.newFallback = func() transport {
		return newSocketTransport(c.opts)
	}
	return c
}

// ClientID returns the identifier sent with every event.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UsingFallback reports whether the socket substitution has happened.
func (c *Client) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usingFallback
}

// Connect opens the streaming channel and registers the caller's
// callbacks. onOpen fires on every channel open, including the replayed
// handshake after a fallback substitution, so callers re-send their mount
// events there.
func (c *Client) Connect(ctx context.Context, onOpen func(), onPatches func([]protocol.Patch)) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.ctx = ctx
	c.onOpen = onOpen
	c.onPatches = onPatches
	c.active = c.newPrimary()
	active := c.active
	c.mu.Unlock()

	active.connect(ctx, c.callbacks())
	return nil
}

func (c *Client) callbacks() callbacks {
	return callbacks{
		onOpen:         c.channelOpened,
		onPatches:      c.deliverPatches,
		onChannelError: c.channelError,
	}
}

func (c *Client) channelOpened() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	c.preOpenErrs = 0
	onOpen := c.onOpen
	kind := c.active.kind()
	c.mu.Unlock()

	c.logger.Info("channel open", "transport", string(kind))
	if onOpen != nil {
		onOpen()
	}
}

func (c *Client) deliverPatches(patches []protocol.Patch) {
	c.mu.Lock()
	closed := c.state == StateClosed
	onPatches := c.onPatches
	c.mu.Unlock()
	if closed || onPatches == nil {
		return
	}
	onPatches(patches)
}

// channelError implements the at-most-once fallback. The substitution is
// synchronous with the error that triggers it, so two fallback attempts
// can never race for one client.
func (c *Client) channelError(opened, hard bool) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	if c.fallbackDone {
		// One substitution per connect; later failures are only logged.
		c.mu.Unlock()
		c.logger.Warn("channel error after fallback", "opened", opened, "hard", hard)
		return
	}

	if !opened {
		c.preOpenErrs++
	}
	shouldFallback := (!opened && c.preOpenErrs >= c.opts.FallbackThreshold) || hard
	if !shouldFallback {
		c.mu.Unlock()
		c.logger.Warn("streaming channel error", "opened", opened, "count", c.preOpenErrs)
		return
	}

	c.fallbackDone = true
	c.usingFallback = true
	c.state = StateConnecting
	old := c.active
	c.active = c.newFallback()
	active := c.active
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Warn("falling back to socket transport")
	if old != nil {
		old.close()
	}
	// The registered callbacks replay against the fallback channel; its
	// open triggers a second mount handshake.
	active.connect(ctx, c.callbacks())
}

// Send delivers one event over the active channel, stamping the client and
// event identifiers. Sending with no open channel is a logged no-op.
func (c *Client) Send(ev *protocol.Event) error {
	c.mu.Lock()
	state := c.state
	active := c.active
	c.mu.Unlock()

	if state != StateOpen || active == nil {
		c.logger.Warn("send with no open channel", "event", ev.Event, "instance", ev.Instance)
		return nil
	}

	ev.ClientID = c.opts.ClientID
	if ev.EventID == "" {
		ev.EventID = ulid.Make().String()
	}
	if err := active.send(ev); err != nil {
		c.logger.Error("send failed", "event", ev.Event, "error", err)
		return err
	}
	return nil
}

// Close tears down whichever channel is active. It is idempotent; no
// in-flight send is guaranteed delivered after close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active != nil {
		return active.close()
	}
	return nil
}

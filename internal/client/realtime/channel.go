package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/logging"
)

// Envelope is the wire frame both sockets speak: a type tag plus an
// opaque payload the registered handler decodes.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler consumes the payload of one frame type. Handlers run on the
// channel's read loop, so they must not block.
type Handler func(data json.RawMessage)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Options configures one socket channel. Zero durations fall back to the
// package defaults; tests shrink them.
type Options struct {
	// URL is the websocket endpoint, e.g. wss://host/ws/notifications.
	URL string
	// Name tags log lines, e.g. "chat" or "notifications".
	Name string
	// TokenInPath appends the credential as a path segment instead of a
	// ?token= query parameter. The chat endpoint wants the former.
	TokenInPath bool

	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
}

func (o *Options) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = common.ConnectTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = common.HeartbeatInterval
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = common.ReconnectBase
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = common.ReconnectMax
	}
}

// Channel is one authenticated websocket with automatic heartbeat and
// exponential-backoff reconnection. The app runs two of these: one for
// notification fan-out and one for the chat stream.
type Channel struct {
	opts Options
	log  logging.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	token     string
	gen       int
	reconnect bool
	stop      chan struct{}

	handlers map[string]Handler
	onOpen   func()

	// writeMu serializes frames and pings on the single writer the
	// gorilla connection allows.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

func NewChannel(opts Options, log logging.Logger) *Channel {
	if log == nil {
		log = logging.Discard()
	}
	opts.withDefaults()
	return &Channel{
		opts:     opts,
		log:      log.With("component", "ws", "channel", opts.Name),
		handlers: make(map[string]Handler),
	}
}

// On registers the handler for one frame type. Frames with no handler are
// logged and dropped. Registration is not allowed to race Connect.
func (c *Channel) On(frameType string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[frameType] = fn
}

// OnOpen registers a hook that runs after every successful dial, including
// reconnects. The chat channel uses it to request the dialog list.
func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint with the given credential. Calling it again
// with the same token while the channel is connecting or open is a no-op;
// a different token tears the old connection down and dials fresh.
func (c *Channel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state != StateClosed {
		if c.token == token {
			c.mu.Unlock()
			return nil
		}
		c.teardownLocked()
	}
	c.state = StateConnecting
	c.token = token
	c.reconnect = true
	c.stop = make(chan struct{})
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dial(ctx, token)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateClosed
			c.reconnect = false
		}
		c.mu.Unlock()
		return err
	}
	c.install(gen, conn)
	return nil
}

// Close stops reconnection and drops the connection. Safe to call more
// than once.
func (c *Channel) Close() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Channel) teardownLocked() {
	c.reconnect = false
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed
}

// Send marshals one frame and writes it. It fails with ErrNotConnected
// unless the channel is open; callers fall back to the REST path.
func (c *Channel) Send(frameType string, payload any) error {
	env := Envelope{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s frame: %w", frameType, err)
		}
		env.Data = data
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return fmt.Errorf("%w: %s channel is not open", common.ErrNotConnected, c.opts.Name)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %w", common.ErrNotConnected, err)
	}
	return nil
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if c.opts.TokenInPath {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(token)
	} else {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s channel: %w", c.opts.Name, err)
	}
	return conn, nil
}

// install publishes a freshly dialed connection and starts its read loop
// and heartbeat, unless the generation moved on while dialing.
func (c *Channel) install(gen int, conn *websocket.Conn) {
	pongWait := c.opts.HeartbeatInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	onOpen := c.onOpen
	c.mu.Unlock()

	c.log.Info(context.Background(), "channel open")
	if onOpen != nil {
		onOpen()
	}

	c.wg.Add(2)
	go c.readLoop(gen, conn, pongWait)
	go c.heartbeat(gen, conn)
}

// readLoop drains inbound frames. Any traffic, the pong reply to our ping
// frame included, extends the liveness deadline.
func (c *Channel) readLoop(gen int, conn *websocket.Conn, pongWait time.Duration) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(gen, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.log.Warn(context.Background(), "dropping malformed frame", "size", len(data))
		return
	}
	if env.Type == "pong" {
		return
	}

	c.mu.Lock()
	fn := c.handlers[env.Type]
	c.mu.Unlock()
	if fn == nil {
		c.log.Debug(context.Background(), "no handler for frame", "type", env.Type)
		return
	}
	fn(env.Data)
}

func (c *Channel) heartbeat(gen int, conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()

	for {
		select {
		case <-ticker.C:
		case <-stop:
			return
		}
		c.mu.Lock()
		stale := c.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}
		// the protocol keepalive is a JSON frame, not a ws control ping;
		// the backend answers with a "pong" frame on the read loop
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.ConnectTimeout))
		err := conn.WriteJSON(Envelope{Type: "ping"})
		_ = conn.SetWriteDeadline(time.Time{})
		c.writeMu.Unlock()
		if err != nil {
			_ = conn.Close()
			return
		}
	}
}

// lost runs when the read loop dies. If reconnection is still wanted it
// redials with exponential backoff, doubling from the base delay up to
// the cap, and resets once a dial succeeds.
func (c *Channel) lost(gen int, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if !c.reconnect {
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen = c.gen
	token := c.token
	stop := c.stop
	c.mu.Unlock()

	c.log.Warn(context.Background(), "connection lost, reconnecting", "cause", cause)

	for attempt := 0; ; attempt++ {
		delay := backoffDelay(c.opts.ReconnectBase, c.opts.ReconnectMax, attempt)
		select {
		case <-time.After(delay):
		case <-stop:
			return
		}

		c.mu.Lock()
		if c.gen != gen || !c.reconnect {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(context.Background(), token)
		if err != nil {
			c.log.Warn(context.Background(), "redial failed", "attempt", attempt+1, "delay", delay, "error", err)
			continue
		}
		c.install(gen, conn)
		return
	}
}

// backoffDelay returns base*2^attempt capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

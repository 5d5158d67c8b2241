// Package sensor receives detection records from the external sensor
// process over a persistent WebSocket connection.
//
// Messages are read and decoded on a background goroutine and pushed, as
// whole batches, onto a dispatch.Queue that the tick loop drains. Nothing
// else crosses from the receive goroutine into tick-owned state.
package sensor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/dispatch"
	"github.com/teslashibe/go-follower/pkg/protocol"
)

// writeWait bounds control frame writes (pings, close).
const writeWait = time.Second

// State is the connection lifecycle as reported to OnState subscribers.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of client counters.
type Stats struct {
	SessionID         string `json:"session_id"`
	Endpoint          string `json:"endpoint"`
	State             string `json:"state"`
	Messages          uint64 `json:"messages"`
	Batches           uint64 `json:"batches"`
	Records           uint64 `json:"records"`
	DecodeErrors      uint64 `json:"decode_errors"`
	DroppedAfterClose uint64 `json:"dropped_after_close"`
}

// Client owns one sensor connection at a time. After a disconnect,
// Connect may be called again; after Close, never.
//
// OnError and OnState callbacks run on the receive goroutine (or the
// caller of Connect/Close). They must not touch tick-owned state.
type Client struct {
	cfg   Config
	queue *dispatch.Queue[protocol.Batch]
	log   *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	done      chan struct{} // closed when the receive goroutine exits
	stop      chan struct{} // stops keepalive
	closed    bool
	state     State
	endpoint  string
	sessionID string
	seq       uint64

	writeMu sync.Mutex

	errs   dispatch.Registry[error]
	states dispatch.Registry[State]

	messages     atomic.Uint64
	batches      atomic.Uint64
	records      atomic.Uint64
	decodeErrors atomic.Uint64
	dropped      atomic.Uint64
}

// New creates a client that pushes decoded batches onto queue.
// Zero-valued config fields take their defaults.
func New(cfg Config, queue *dispatch.Queue[protocol.Batch], logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.PingInterval > 0 && cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 3 * cfg.PingInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		cfg:   cfg,
		queue: queue,
		log:   logger,
	}
}

// OnError registers a callback for *ConnectionError and
// *protocol.DecodeError events.
func (c *Client) OnError(fn func(error)) dispatch.Handle {
	return c.errs.Add(fn)
}

// OnState registers a callback for lifecycle transitions.
func (c *Client) OnState(fn func(State)) dispatch.Handle {
	return c.states.Add(fn)
}

// Connect dials the endpoint and starts the receive goroutine. A failed
// dial is returned as *ConnectionError and also emitted to OnError.
// The client does not retry.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	target, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.endpoint = target
	c.state = StateConnecting
	c.mu.Unlock()

	c.states.Notify(StateConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		cerr := &ConnectionError{Endpoint: target, Op: "dial", Err: err}
		c.log.Warn("sensor connect failed", "endpoint", target, "error", err)
		c.setState(StateDisconnected)
		c.errs.Notify(cerr)
		return cerr
	}

	c.mu.Lock()
	if c.closed {
		// Close raced the dial
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.done = make(chan struct{})
	c.stop = make(chan struct{})
	c.sessionID = uuid.NewString()
	done, stop, session := c.done, c.stop, c.sessionID
	c.mu.Unlock()

	conn.SetReadLimit(c.cfg.ReadLimit)
	if c.cfg.PingInterval > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		})
		go c.keepAlive(conn, stop, done)
	}

	c.log.Info("sensor connected", "endpoint", target, "session", session)
	c.setState(StateConnected)

	go c.receive(conn, done, stop)
	return nil
}

// receive reads messages until the connection fails or is closed.
func (c *Client) receive(conn *websocket.Conn, done, stop chan struct{}) {
	defer close(done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.disconnected(conn, stop, err)
			return
		}
		receivedAt := time.Now()
		c.messages.Add(1)

		if c.cfg.PingInterval > 0 {
			conn.SetReadDeadline(receivedAt.Add(c.cfg.PongWait))
		}

		enc := protocol.JSON
		if msgType == websocket.BinaryMessage {
			enc = protocol.CBOR
		}

		records, err := protocol.Decode(data, enc)
		if err != nil {
			c.decodeErrors.Add(1)
			var derr *protocol.DecodeError
			if errors.As(err, &derr) {
				c.log.Warn("dropping malformed sensor message",
					"error", derr.Err, "encoding", enc, "payload", derr.Snippet(120))
			}
			c.errs.Notify(err)
			continue
		}

		c.push(records, receivedAt)
	}
}

// push stamps and enqueues one batch unless the client has been closed.
func (c *Client) push(records []protocol.Record, receivedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.dropped.Add(1)
		return
	}

	c.seq++
	b := protocol.Batch{
		Seq:        c.seq,
		ReceivedAt: receivedAt,
		Records:    records,
	}
	if c.queue == nil || !c.queue.Push(b) {
		c.dropped.Add(1)
		return
	}
	c.batches.Add(1)
	c.records.Add(uint64(len(records)))
}

func (c *Client) disconnected(conn *websocket.Conn, stop chan struct{}, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		close(stop)
	}
	closed := c.closed
	endpoint := c.endpoint
	c.mu.Unlock()

	conn.Close()
	if closed {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Info("sensor closed the connection", "endpoint", endpoint)
	} else {
		c.log.Warn("sensor connection lost", "endpoint", endpoint, "error", err)
		c.errs.Notify(&ConnectionError{Endpoint: endpoint, Op: "read", Err: err})
	}
	c.setState(StateDisconnected)
}

// keepAlive pings the sensor so idle periods (no subjects) do not trip
// the read deadline.
func (c *Client) keepAlive(conn *websocket.Conn, stop, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close releases the connection. It is idempotent, safe before Connect,
// and waits at most CloseTimeout for the receive goroutine. No batch is
// pushed once Close has started.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, done, stop := c.conn, c.done, c.stop
	c.conn = nil
	if conn != nil {
		close(stop)
	}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()

		// Unblocks ReadMessage in the receive goroutine
		conn.Close()

		select {
		case <-done:
		case <-time.After(c.cfg.CloseTimeout):
			c.log.Warn("sensor receive goroutine did not exit in time", "timeout", c.cfg.CloseTimeout)
		}
	}

	c.setState(StateClosed)
	return nil
}

// Connected reports whether a connection is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	session, endpoint, state := c.sessionID, c.endpoint, c.state
	c.mu.Unlock()

	return Stats{
		SessionID:         session,
		Endpoint:          endpoint,
		State:             state.String(),
		Messages:          c.messages.Load(),
		Batches:           c.batches.Load(),
		Records:           c.records.Load(),
		DecodeErrors:      c.decodeErrors.Load(),
		DroppedAfterClose: c.dropped.Load(),
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s || (c.closed && s != StateClosed) {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.states.Notify(s)
}

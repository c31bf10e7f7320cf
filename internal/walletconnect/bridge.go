package walletconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// bridgeFrame is one JSON message to or from the sign-client bridge.
// Outbound frames carry Op; inbound frames carry either a reply (ID set,
// Result or Error) or an async event (Event set).
type bridgeFrame struct {
	ID         uint64                      `json:"id,omitempty"`
	Op         string                      `json:"op,omitempty"`
	Namespaces map[string]Namespace        `json:"namespaces,omitempty"`
	Request    *RequestParams              `json:"request,omitempty"`
	Result     json.RawMessage             `json:"result,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Event      string                      `json:"event,omitempty"`
	ConnectID  uint64                      `json:"connectId,omitempty"`
	Topic      string                      `json:"topic,omitempty"`
	Session    *SessionPayload             `json:"session,omitempty"`
	Updated    map[string]SessionNamespace `json:"updated,omitempty"`
}

// connectReply is the bridge's reply payload to a connect op.
type connectReply struct {
	URI string `json:"uri"`
}

// BridgeClient implements Client against a sign-client bridge sidecar over
// a single websocket. One goroutine owns reads; writes are serialized by a
// mutex since the underlying connection allows one concurrent writer.
type BridgeClient struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan bridgeFrame
	// approvals are keyed by the connect request ID; the bridge tags the
	// eventual approval/rejection event with that ID.
	approvals map[uint64]chan bridgeFrame
	closed    bool

	events chan Event
}

var _ Client = (*BridgeClient)(nil)

// Dial connects to the sign-client bridge at url (ws:// or wss://).
func Dial(ctx context.Context, url string, logger *slog.Logger) (*BridgeClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	c := &BridgeClient{
		conn:      conn,
		logger:    logger,
		pending:   make(map[uint64]chan bridgeFrame),
		approvals: make(map[uint64]chan bridgeFrame),
		events:    make(chan Event, 64),
	}
	go c.readLoop()
	return c, nil
}

// Connect proposes a pairing and returns the URI plus a deferred approval.
func (c *BridgeClient) Connect(ctx context.Context, namespaces map[string]Namespace) (*Pairing, error) {
	id, replyCh, err := c.register()
	if err != nil {
		return nil, err
	}

	approvalCh := make(chan bridgeFrame, 1)
	c.mu.Lock()
	c.approvals[id] = approvalCh
	c.mu.Unlock()

	if err := c.write(bridgeFrame{ID: id, Op: "connect", Namespaces: namespaces}); err != nil {
		c.drop(id)
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	reply, err := c.await(ctx, id, replyCh)
	if err != nil {
		c.dropApproval(id)
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	var cr connectReply
	if err := json.Unmarshal(reply.Result, &cr); err != nil || cr.URI == "" {
		c.dropApproval(id)
		return nil, fmt.Errorf("%w: bridge returned no uri", ErrConnect)
	}

	approval := func(ctx context.Context) (*SessionPayload, error) {
		defer c.dropApproval(id)
		select {
		case frame, ok := <-approvalCh:
			if !ok {
				return nil, ErrClosed
			}
			if frame.Error != "" || frame.Session == nil {
				return nil, fmt.Errorf("%w: %s", ErrRejected, frame.Error)
			}
			return frame.Session, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &Pairing{URI: cr.URI, Approval: approval}, nil
}

// Request performs a JSON-RPC request against an approved session.
func (c *BridgeClient) Request(ctx context.Context, req RequestParams) (json.RawMessage, error) {
	id, replyCh, err := c.register()
	if err != nil {
		return nil, err
	}
	if err := c.write(bridgeFrame{ID: id, Op: "request", Request: &req}); err != nil {
		c.drop(id)
		return nil, fmt.Errorf("%w: %v", ErrRequestError, err)
	}
	reply, err := c.await(ctx, id, replyCh)
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Events returns the inbound notification channel.
func (c *BridgeClient) Events() <-chan Event {
	return c.events
}

// Close tears down the websocket; pending calls fail with ErrClosed.
func (c *BridgeClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *BridgeClient) register() (uint64, chan bridgeFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan bridgeFrame, 1)
	c.pending[id] = ch
	return id, ch, nil
}

func (c *BridgeClient) drop(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *BridgeClient) dropApproval(id uint64) {
	c.mu.Lock()
	delete(c.approvals, id)
	c.mu.Unlock()
}

func (c *BridgeClient) write(frame bridgeFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame)
}

func (c *BridgeClient) await(ctx context.Context, id uint64, ch chan bridgeFrame) (bridgeFrame, error) {
	select {
	case frame, ok := <-ch:
		if !ok {
			return bridgeFrame{}, ErrClosed
		}
		if frame.Error != "" {
			return bridgeFrame{}, fmt.Errorf("%w: %s", ErrRequestError, frame.Error)
		}
		return frame, nil
	case <-ctx.Done():
		c.drop(id)
		return bridgeFrame{}, ctx.Err()
	}
}

// readLoop owns the websocket read side, routing replies to waiters and
// async events onto the notification channel.
func (c *BridgeClient) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		for id, ch := range c.approvals {
			close(ch)
			delete(c.approvals, id)
		}
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		var frame bridgeFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("bridge connection lost", "error", err)
			}
			return
		}

		switch {
		case frame.Event == "approval":
			c.mu.Lock()
			ch := c.approvals[frame.ConnectID]
			c.mu.Unlock()
			if ch != nil {
				ch <- frame
			}
		case frame.Event == string(EventSessionUpdate):
			c.emit(Event{Type: EventSessionUpdate, Topic: frame.Topic, Namespaces: frame.Updated})
		case frame.Event == string(EventSessionDelete):
			c.emit(Event{Type: EventSessionDelete, Topic: frame.Topic})
		case frame.ID != 0:
			c.mu.Lock()
			ch := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- frame
			}
		default:
			c.logger.Debug("unrecognized bridge frame", "event", frame.Event)
		}
	}
}

func (c *BridgeClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// A stalled consumer must not wedge the read loop.
		c.logger.Warn("dropping wallet event, consumer too slow", "type", ev.Type, "topic", ev.Topic)
	}
}

package engineio

import (
	"errors"
	"log"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/wireio/socketio/observable"
)

// WebSocketTransport sends and receives Engine.IO packets as WebSocket text
// or binary frames. Packets sent before the socket finishes dialing are
// buffered and replayed once it is open, so a caller that calls Send
// immediately after Open never loses that packet.
type WebSocketTransport struct {
	dialer *websocket.Dialer
	opts   DialOptions
	events *observable.Observable

	mu     sync.Mutex
	conn   *websocket.Conn
	open   bool
	closed bool
	buffer []Packet
}

// NewWebSocketTransport returns a WebSocket transport for the given dial
// options. dialer defaults to websocket.DefaultDialer when nil.
func NewWebSocketTransport(opts DialOptions, dialer *websocket.Dialer) *WebSocketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{
		dialer: dialer,
		opts:   opts,
		events: observable.New(),
	}
}

func (t *WebSocketTransport) Name() string                   { return TransportWebSocket }
func (t *WebSocketTransport) Events() *observable.Observable { return t.events }

func (t *WebSocketTransport) Open() error {
	go t.dialAndRead()
	return nil
}

func (t *WebSocketTransport) dialAndRead() {
	q := cloneQuery(t.opts.Query)
	q.Set("transport", TransportWebSocket)
	u := *t.opts.URL
	u.RawQuery = EncodeQuery(q)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	conn, _, err := t.dialer.Dial(u.String(), cloneHeader(t.opts.Header))
	if err != nil {
		t.fail(err)
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.open = true
	buffered := t.buffer
	t.buffer = nil
	t.mu.Unlock()

	t.events.Emit(EventWebSocketOpen)
	for _, p := range buffered {
		if err := t.writeOne(p); err != nil {
			t.fail(err)
			return
		}
	}

	t.readLoop()
}

func (t *WebSocketTransport) readLoop() {
	for {
		t.mu.Lock()
		conn := t.conn
		closed := t.closed
		t.mu.Unlock()
		if closed || conn == nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}
		var p Packet
		switch msgType {
		case websocket.TextMessage:
			p, err = DecodeSingleText(data)
		case websocket.BinaryMessage:
			p, err = DecodeSingleBinary(data)
		default:
			continue
		}
		if err != nil {
			t.events.Emit(EventError, err)
			continue
		}
		t.events.Emit(EventMessage, p)
	}
}

// Send writes packets immediately if the socket is open, or buffers them
// for replay on open otherwise.
func (t *WebSocketTransport) Send(packets ...Packet) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if !t.open {
		t.buffer = append(t.buffer, packets...)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	for _, p := range packets {
		if err := t.writeOne(p); err != nil {
			t.fail(err)
			return err
		}
	}
	return nil
}

func (t *WebSocketTransport) writeOne(p Packet) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	msgType := websocket.TextMessage
	if p.Binary {
		msgType = websocket.BinaryMessage
	}
	return conn.WriteMessage(msgType, EncodeSingle(p))
}

// Close closes the underlying WebSocket. When clientInitiated, an Engine.IO
// CLOSE packet is sent first.
func (t *WebSocketTransport) Close(clientInitiated bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()
	if clientInitiated && conn != nil {
		_ = t.writeOne(Packet{Type: Close})
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Pause is unsupported: the WebSocket transport has no write buffer to
// freeze the way the polling transport does.
func (t *WebSocketTransport) Pause() error   { return ErrPauseNotSupported }
func (t *WebSocketTransport) Unpause() error { return nil }

// PendingOutbound returns and clears whatever is still buffered waiting
// for the socket to finish dialing.
func (t *WebSocketTransport) PendingOutbound() []Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := t.buffer
	t.buffer = nil
	return buf
}

func (t *WebSocketTransport) fail(err error) {
	t.mu.Lock()
	already := t.closed
	t.closed = true
	t.mu.Unlock()
	if already {
		return
	}
	log.Println("engineio: websocket:", err.Error())
	if isWebSocketAbrupt(err) {
		t.events.Emit(EventAbruptClose, err)
		return
	}
	t.events.Emit(EventError, err)
}

// isWebSocketAbrupt reports whether err looks like a transient socket
// exception (connection reset, timeout, abnormal close code) as opposed to
// a permanent protocol failure. Transient failures surface as ABRUPT_CLOSE;
// everything else is terminal.
func isWebSocketAbrupt(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code != websocket.CloseNormalClosure
	}
	return false
}

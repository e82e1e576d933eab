package engineio

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/wireio/socketio/observable"
)

// Transport names, used both in configuration and on the wire as the
// "transport" query parameter.
const (
	TransportPolling   = "polling"
	TransportWebSocket = "websocket"
)

// Event names emitted on a Transport's Observable.
const (
	EventOpen         = "open"          // carries the parsed Handshake
	EventMessage      = "message"       // carries a decoded Packet
	EventClose        = "close"         // orderly close
	EventAbruptClose  = "abrupt_close"  // transient network failure, reconnect-eligible
	EventError        = "error"         // terminal error
	EventWebSocketOpen = "ws_conn_open" // the raw WebSocket connection finished its handshake (used by the probe)
)

var (
	// ErrPauseNotSupported is returned by Pause on transports (WebSocket)
	// that don't buffer outgoing writes and so have nothing to pause.
	ErrPauseNotSupported = errors.New("engineio: transport pause unsupported")
	// ErrClosed is returned by Send calls made after Close.
	ErrClosed = errors.New("engineio: transport closed")
)

// Transport is the common interface implemented by the polling and
// WebSocket transports. A Session owns exactly one Transport at a time;
// ownership transfers atomically during an upgrade.
type Transport interface {
	Name() string
	Events() *observable.Observable

	// Open dials the remote endpoint and begins the read loop. It returns
	// once the dial itself has started (not once OPEN has been received);
	// OPEN arrives asynchronously as an EventOpen emission.
	Open() error

	// Send enqueues packets for transmission. Ordering within one Send
	// call, and across calls, is FIFO.
	Send(packets ...Packet) error

	// Close tears the transport down. clientInitiated distinguishes a
	// locally requested close (sends an Engine.IO CLOSE first, where
	// applicable) from one discovered via a peer/network event.
	Close(clientInitiated bool) error

	// Pause freezes outgoing sends until Unpause, draining any write
	// already in flight first. Returns ErrPauseNotSupported on transports
	// with no write buffer to freeze.
	Pause() error
	Unpause() error

	// PendingOutbound removes and returns whatever is still queued for
	// send, in FIFO order. Used by the probe-upgrade protocol to forward
	// a paused transport's buffered packets to its replacement.
	PendingOutbound() []Packet
}

// DialOptions carries everything a Transport needs to construct its
// initial request URL and headers.
type DialOptions struct {
	URL    *url.URL // scheme://host:port<path>, path already set to the engine.io mount point
	Query  url.Values
	Header http.Header
}

func cloneHeader(h http.Header) http.Header {
	h2 := make(http.Header, len(h))
	for k, vv := range h {
		vv2 := make([]string, len(vv))
		copy(vv2, vv)
		h2[k] = vv2
	}
	return h2
}

func cloneQuery(q url.Values) url.Values {
	q2 := make(url.Values, len(q))
	for k, vv := range q {
		vv2 := make([]string, len(vv))
		copy(vv2, vv)
		q2[k] = vv2
	}
	return q2
}

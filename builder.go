package socketio

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Builder is the fluent configurator returned by Of: path/query/header/
// noMultiplex/noReconnect/pollingOnly/webSocketOnly/callFactory/
// webSocketFactory, terminated by Socket().
type Builder struct {
	cfg *Config
	err error
}

// Of begins configuring a connection to rawurl. The URL's path component
// becomes the Socket.IO namespace; the request path defaults to
// "/socket.io/" and can be overridden with Path.
func Of(rawurl string) *Builder {
	cfg, err := newConfig(rawurl)
	return &Builder{cfg: cfg, err: err}
}

// Path overrides the Socket.IO request path (default "/socket.io/").
func (b *Builder) Path(p string) *Builder {
	if b.err == nil {
		b.cfg.Path = p
	}
	return b
}

// EngineIOPath sets Config.EngineIOPath (default "/engine.io/"). A Manager
// dials Path; EngineIOPath is not used in the request URL.
func (b *Builder) EngineIOPath(p string) *Builder {
	if b.err == nil {
		b.cfg.EngineIOPath = p
	}
	return b
}

// Query adds a query-string parameter sent with every request.
func (b *Builder) Query(k, v string) *Builder {
	if b.err == nil {
		b.cfg.Query.Add(k, v)
	}
	return b
}

// Header adds an HTTP header sent with every request (polling) or the
// initial upgrade request (WebSocket).
func (b *Builder) Header(k, v string) *Builder {
	if b.err == nil {
		if b.cfg.Header == nil {
			b.cfg.Header = http.Header{}
		}
		b.cfg.Header.Add(k, v)
	}
	return b
}

// NoMultiplex disables sharing a Manager with other sockets on the same
// (host,path); the resulting Manager is never registered globally.
func (b *Builder) NoMultiplex() *Builder {
	if b.err == nil {
		b.cfg.Multiplex = false
	}
	return b
}

// NoReconnect disables automatic reconnection after an abrupt close.
func (b *Builder) NoReconnect() *Builder {
	if b.err == nil {
		b.cfg.Reconnect = false
	}
	return b
}

// MaxReconnectAttempts sets the attempt ceiling before RECONNECT_FAIL.
func (b *Builder) MaxReconnectAttempts(n int) *Builder {
	if b.err == nil {
		b.cfg.MaxReconnectAttempts = n
	}
	return b
}

// ReconnectDelay sets the base reconnect delay (floored to 100ms).
func (b *Builder) ReconnectDelay(d time.Duration) *Builder {
	if b.err == nil {
		b.cfg.ReconnectDelay = d
	}
	return b
}

// MaxReconnectDelay caps the jittered reconnect delay.
func (b *Builder) MaxReconnectDelay(d time.Duration) *Builder {
	if b.err == nil {
		b.cfg.MaxReconnectDelay = d
	}
	return b
}

// RandomizationFactor sets the backoff jitter factor (clamped to [0,1]).
func (b *Builder) RandomizationFactor(f float64) *Builder {
	if b.err == nil {
		b.cfg.RandomizationFactor = f
	}
	return b
}

// PollingOnly restricts the transport list to polling.
func (b *Builder) PollingOnly() *Builder {
	if b.err == nil {
		b.cfg.Transports = []string{TransportPolling}
	}
	return b
}

// WebSocketOnly restricts the transport list to WebSocket.
func (b *Builder) WebSocketOnly() *Builder {
	if b.err == nil {
		b.cfg.Transports = []string{TransportWebSocket}
	}
	return b
}

// CallFactory overrides the HTTP client used by the polling transport.
func (b *Builder) CallFactory(c *http.Client) *Builder {
	if b.err == nil {
		b.cfg.HTTPClient = c
	}
	return b
}

// WebSocketFactory overrides the dialer used by the WebSocket transport.
func (b *Builder) WebSocketFactory(d *websocket.Dialer) *Builder {
	if b.err == nil {
		b.cfg.Dialer = d
	}
	return b
}

// Socket finalizes configuration and returns the Socket for the
// namespace derived from the URL passed to Of. Socket() clones the
// Builder's Config before handing it to a Manager, so later calls on this
// Builder (there generally are none after Socket, but a misused shared
// Builder is still safe) never mutate a live Manager's view of it.
func (b *Builder) Socket() (*Socket, error) {
	if b.err != nil {
		return nil, b.err
	}
	cfg := b.cfg.clone()
	if cfg.RandomizationFactor < 0 {
		cfg.RandomizationFactor = 0
	} else if cfg.RandomizationFactor > 1 {
		cfg.RandomizationFactor = 1
	}
	if cfg.ReconnectDelay < 100*time.Millisecond {
		cfg.ReconnectDelay = 100 * time.Millisecond
	}
	if len(cfg.Transports) == 0 {
		cfg.Transports = []string{TransportPolling, TransportWebSocket}
	}

	m := getOrCreateManager(cfg)
	return m.socketFor(cfg.Namespace), nil
}

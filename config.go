package socketio

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultEngineIOPath = "/engine.io/"
	defaultSocketIOPath = "/socket.io/"
)

// Config is cloned by value before being handed to a Manager so later
// mutation of a Builder's Config after Socket() has been called cannot
// leak into an already-running session.
type Config struct {
	URL          *url.URL
	Path         string // Socket.IO mount point, default "/socket.io/"
	EngineIOPath string // default "/engine.io/"; the Manager dials Path, not this
	Namespace    string // derived from the user URL's path component
	Query        url.Values
	Header       http.Header

	Multiplex bool
	Reconnect bool

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	RandomizationFactor  float64

	Transports []string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// newConfig parses rawurl and returns a Config with every default applied.
// The URL's path component is interpreted as the Socket.IO namespace, not
// as the request path.
func newConfig(rawurl string) (*Config, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	ns := u.Path
	if ns == "" {
		ns = "/"
	}
	base := *u
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Config{
		URL:                  &base,
		Path:                 defaultSocketIOPath,
		EngineIOPath:         defaultEngineIOPath,
		Namespace:            ns,
		Query:                url.Values{},
		Header:               http.Header{},
		Multiplex:            true,
		Reconnect:            true,
		MaxReconnectAttempts: int(^uint(0) >> 1), // MAX_INT equivalent
		ReconnectDelay:       500 * time.Millisecond,
		MaxReconnectDelay:    10000 * time.Millisecond,
		RandomizationFactor:  0.5,
		Transports:           []string{TransportPolling, TransportWebSocket},
		HTTPClient:           http.DefaultClient,
		Dialer:               websocket.DefaultDialer,
	}, nil
}

// Transport name constants, mirrored from engineio so callers configuring
// transports(...) don't need to import the engineio package directly.
const (
	TransportPolling   = "polling"
	TransportWebSocket = "websocket"
)

// clone returns a deep-enough copy of c: the URL, query, header and
// transport list are all copied so later mutation of the Builder that
// produced c cannot affect a Manager already holding this Config.
func (c *Config) clone() *Config {
	cp := *c
	u := *c.URL
	cp.URL = &u
	cp.Query = cloneQuery(c.Query)
	cp.Header = cloneHeader(c.Header)
	cp.Transports = append([]string(nil), c.Transports...)
	return &cp
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

func cloneHeader(h http.Header) http.Header {
	h2 := make(http.Header, len(h))
	for k, vv := range h {
		vv2 := make([]string, len(vv))
		copy(vv2, vv)
		h2[k] = vv2
	}
	return h2
}

package engineio

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wireio/socketio/observable"
	"github.com/wireio/socketio/worker"
)

// State is the Engine Session state machine: INITIAL -> OPENING -> OPEN ->
// {CLOSED | ABRUPTLY_CLOSED}.
type State int

const (
	StateInitial State = iota
	StateOpening
	StateOpen
	StateClosed
	StateAbruptlyClosed
)

// Session-level event names, in addition to the transport-level ones
// reused from transport.go (EventOpen, EventMessage, EventClose,
// EventAbruptClose, EventError).
const (
	EventPing          = "ping"
	EventPong          = "pong"
	EventUpgrade       = "upgrade"
	EventUpgradeAttempt = "upgrade_attempt"
	EventUpgradeFail   = "upgrade_fail"
)

// ErrPongTimeout is the terminal error raised when no PONG arrives within
// pingInterval+pingTimeout of a PING being sent.
var ErrPongTimeout = errors.New("engineio: didn't receive pong packet in time")

// SessionConfig carries everything a Session needs to dial and re-dial an
// Engine.IO endpoint.
type SessionConfig struct {
	URL        *url.URL
	Query      url.Values
	Header     http.Header
	Transports []string // only the first is dialed; "websocket" here enables the upgrade probe
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Session is the Engine.IO client state machine: it owns the current
// Transport, runs the handshake, schedules ping/pong liveness, and drives
// the probe-upgrade protocol.
type Session struct {
	cfg   SessionConfig
	exec  *worker.Executor
	sched *worker.Scheduler
	events *observable.Observable

	mu               sync.Mutex
	state            State
	transport        Transport
	transportHandles []*observable.Handle
	query            url.Values
	handshake        Handshake
	pingHandle       *worker.Handle
	pingTimeoutHandle *worker.Handle
	probe            *probeState
}

type probeState struct {
	transport Transport
	handles   []*observable.Handle
	gotFirst  bool
}

// NewSession constructs a Session. exec and sched are shared with the
// owning Manager so that all mutation for a session and its transport is
// serialized on one worker.
func NewSession(cfg SessionConfig, exec *worker.Executor, sched *worker.Scheduler) *Session {
	return &Session{
		cfg:    cfg,
		exec:   exec,
		sched:  sched,
		events: observable.New(),
		query:  cloneQuery(cfg.Query),
	}
}

// Events returns the Session's Observable.
func (s *Session) Events() *observable.Observable { return s.events }

// State reports the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open instantiates the first configured transport and dials it.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.state == StateOpening || s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateOpening
	name := s.cfg.Transports[0]
	s.mu.Unlock()

	tr := s.newTransport(name, s.query)
	s.mu.Lock()
	s.transport = tr
	s.mu.Unlock()
	s.subscribeTransport(tr)
	return tr.Open()
}

func (s *Session) newTransport(name string, query url.Values) Transport {
	opts := DialOptions{URL: s.cfg.URL, Query: cloneQuery(query), Header: s.cfg.Header}
	switch name {
	case TransportWebSocket:
		return NewWebSocketTransport(opts, s.cfg.Dialer)
	default:
		return NewPollingTransport(opts, s.cfg.HTTPClient)
	}
}

func (s *Session) subscribeTransport(tr Transport) []*observable.Handle {
	h1 := tr.Events().On(EventOpen, func(args ...interface{}) {
		hs, _ := args[0].(Handshake)
		s.exec.Submit(func() { s.onTransportOpen(hs) })
	})
	h2 := tr.Events().On(EventMessage, func(args ...interface{}) {
		p, _ := args[0].(Packet)
		s.exec.Submit(func() { s.onMessage(p) })
	})
	h3 := tr.Events().On(EventAbruptClose, func(args ...interface{}) {
		s.exec.Submit(func() { s.commonCleanUp(EventAbruptClose, firstErr(args)) })
	})
	h4 := tr.Events().On(EventError, func(args ...interface{}) {
		s.exec.Submit(func() { s.commonCleanUp(EventError, firstErr(args)) })
	})
	handles := []*observable.Handle{h1, h2, h3, h4}
	s.mu.Lock()
	s.transportHandles = handles
	s.mu.Unlock()
	return handles
}

func firstErr(args []interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e, _ := args[0].(error)
	return e
}

func (s *Session) onTransportOpen(hs Handshake) {
	s.mu.Lock()
	s.handshake = hs
	s.state = StateOpen
	s.query.Set("sid", hs.SessionID)
	transports := append([]string(nil), s.cfg.Transports...)
	currentName := s.transport.Name()
	s.mu.Unlock()

	s.events.Emit(EventOpen, hs)
	s.schedulePingCycle()

	if currentName != TransportWebSocket && hs.HasUpgrade(TransportWebSocket) && containsString(transports, TransportWebSocket) {
		s.beginProbe()
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Session) onMessage(p Packet) {
	switch p.Type {
	case Pong:
		s.mu.Lock()
		if s.pingTimeoutHandle != nil {
			s.pingTimeoutHandle.Cancel()
			s.pingTimeoutHandle = nil
		}
		s.mu.Unlock()
		s.events.Emit(EventPong, p)
		s.schedulePingCycle()
	case Noop:
	default:
		s.events.Emit(EventMessage, p)
	}
}

func (s *Session) schedulePingCycle() {
	s.mu.Lock()
	interval := s.handshake.PingInterval
	if s.pingHandle != nil {
		s.pingHandle.Cancel()
	}
	s.mu.Unlock()
	h := s.sched.Schedule(func() { s.exec.Submit(s.onPingFire) }, interval)
	s.mu.Lock()
	s.pingHandle = h
	s.mu.Unlock()
}

func (s *Session) onPingFire() {
	s.mu.Lock()
	tr := s.transport
	interval := s.handshake.PingInterval
	timeout := s.handshake.PingTimeout
	s.mu.Unlock()
	if tr == nil {
		return
	}
	if err := tr.Send(Packet{Type: Ping}); err != nil {
		return
	}
	s.events.Emit(EventPing)
	h := s.sched.Schedule(func() { s.exec.Submit(s.onPingTimeout) }, interval+timeout)
	s.mu.Lock()
	s.pingTimeoutHandle = h
	s.mu.Unlock()
}

func (s *Session) onPingTimeout() {
	s.commonCleanUp(EventError, ErrPongTimeout)
}

// beginProbe constructs an auxiliary WebSocket transport against the same
// session and pings it, per the transport-upgrade probe protocol.
func (s *Session) beginProbe() {
	s.mu.Lock()
	query := cloneQuery(s.query)
	s.mu.Unlock()

	aux := NewWebSocketTransport(DialOptions{URL: s.cfg.URL, Query: query, Header: s.cfg.Header}, s.cfg.Dialer)
	ps := &probeState{transport: aux}

	hOpen := aux.Events().On(EventWebSocketOpen, func(args ...interface{}) {
		s.exec.Submit(func() { s.onProbeOpen(aux) })
	})
	hMsg := aux.Events().On(EventMessage, func(args ...interface{}) {
		p, _ := args[0].(Packet)
		s.exec.Submit(func() { s.onProbeMessage(aux, p) })
	})
	hAbrupt := aux.Events().On(EventAbruptClose, func(args ...interface{}) {
		s.exec.Submit(func() { s.onProbeFail(aux) })
	})
	hErr := aux.Events().On(EventError, func(args ...interface{}) {
		s.exec.Submit(func() { s.onProbeFail(aux) })
	})
	ps.handles = []*observable.Handle{hOpen, hMsg, hAbrupt, hErr}

	s.mu.Lock()
	s.probe = ps
	s.mu.Unlock()

	s.events.Emit(EventUpgradeAttempt)
	_ = aux.Open()
}

func (s *Session) onProbeOpen(aux Transport) {
	if !s.isCurrentProbe(aux) {
		return
	}
	_ = aux.Send(Packet{Type: Ping, Payload: []byte("probe")})
}

func (s *Session) onProbeMessage(aux Transport, p Packet) {
	s.mu.Lock()
	ps := s.probe
	if ps == nil || ps.transport != aux || ps.gotFirst {
		s.mu.Unlock()
		return
	}
	ps.gotFirst = true
	s.mu.Unlock()

	if p.Type == Pong && string(p.Payload) == "probe" {
		s.completeUpgrade(aux)
		return
	}
	s.onProbeFail(aux)
}

func (s *Session) isCurrentProbe(aux Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probe != nil && s.probe.transport == aux
}

func (s *Session) completeUpgrade(aux Transport) {
	s.mu.Lock()
	old := s.transport
	oldHandles := s.transportHandles
	ps := s.probe
	s.mu.Unlock()
	if ps == nil {
		return
	}

	_ = old.Pause() // blocks until any in-flight write drains
	_ = aux.Send(Packet{Type: Upgrade})

	for _, h := range oldHandles {
		h.Remove()
	}
	for _, h := range ps.handles {
		h.Remove()
	}

	pending := old.PendingOutbound()
	if len(pending) > 0 {
		_ = aux.Send(pending...)
	}

	newHandles := s.subscribeTransport(aux)
	s.mu.Lock()
	s.transport = aux
	s.transportHandles = newHandles
	s.probe = nil
	s.mu.Unlock()

	s.events.Emit(EventUpgrade)
	_ = old.Close(false)
}

func (s *Session) onProbeFail(aux Transport) {
	s.mu.Lock()
	ps := s.probe
	if ps == nil || ps.transport != aux {
		s.mu.Unlock()
		return
	}
	old := s.transport
	s.probe = nil
	s.mu.Unlock()

	for _, h := range ps.handles {
		h.Remove()
	}
	_ = aux.Close(true)
	_ = old.Unpause()
	s.events.Emit(EventUpgradeFail)
}

// Close asks the current transport to close in an orderly way and runs
// the common teardown.
func (s *Session) Close() {
	s.exec.Submit(func() {
		s.mu.Lock()
		tr := s.transport
		s.mu.Unlock()
		if tr != nil {
			_ = tr.Close(true)
		}
		s.commonCleanUp(EventClose, nil)
	})
}

// Send submits packets to the current transport.
func (s *Session) Send(packets ...Packet) error {
	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr == nil {
		return ErrClosed
	}
	return tr.Send(packets...)
}

// commonCleanUp cancels the ping timers, drops the sid from the working
// query (so a future Open obtains a fresh session), sets the terminal
// state, and emits event.
func (s *Session) commonCleanUp(event string, err error) {
	s.mu.Lock()
	if s.pingHandle != nil {
		s.pingHandle.Cancel()
		s.pingHandle = nil
	}
	if s.pingTimeoutHandle != nil {
		s.pingTimeoutHandle.Cancel()
		s.pingTimeoutHandle = nil
	}
	s.query.Del("sid")
	if event == EventClose {
		s.state = StateClosed
	} else {
		s.state = StateAbruptlyClosed
	}
	s.mu.Unlock()

	if err != nil {
		s.events.Emit(event, err)
	} else {
		s.events.Emit(event)
	}
}

// Shutdown closes the current transport as a client-initiated close without
// running the common teardown: it changes no session state and emits no
// event. timeout is ignored.
func (s *Session) Shutdown(timeout time.Duration) {
	s.exec.Submit(func() {
		s.mu.Lock()
		tr := s.transport
		s.mu.Unlock()
		if tr != nil {
			_ = tr.Close(true)
		}
	})
}

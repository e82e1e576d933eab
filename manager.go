package socketio

import (
	"sync"

	"github.com/wireio/socketio/engineio"
	"github.com/wireio/socketio/observable"
	"github.com/wireio/socketio/worker"
)

// Manager event names. Sockets subscribe to these on open and unsubscribe
// on close, rather than the Manager indexing sockets by namespace and
// calling them directly, so closing a Socket leaves no dangling listener
// registered on its Manager.
const (
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventError            = "error"
	EventErrorPacket      = "error_packet"
	EventPing             = "ping"
	EventPong             = "pong"
	EventAbruptClose      = "abrupt_close"
	EventClose            = "close"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnectFail    = "reconnect_fail"
	EventUpgrade          = "upgrade"
	EventUpgradeAttempt   = "upgrade_attempt"
	EventUpgradeFail      = "upgrade_fail"
	// eventPacket is internal: every decoded Socket.IO packet, regardless
	// of namespace. Each Socket filters by its own namespace.
	eventPacket = "packet"
)

// Manager owns one Engine.IO session per (host,path) and the registry of
// namespace -> Socket that multiplex onto it.
type Manager struct {
	cfg *Config
	key string

	exec  *worker.Executor
	sched *worker.Scheduler

	session        *engineio.Session
	sessionHandles []*observable.Handle
	decoder        *Decoder

	events *observable.Observable

	mu      sync.Mutex
	sockets map[string]*Socket
	opening bool
	backoff *reconnectBackoff
}

func newManager(cfg *Config) *Manager {
	exec := worker.NewExecutor(64)
	sched := worker.NewScheduler(exec)
	return &Manager{
		cfg:     cfg,
		key:     registryKey(cfg),
		exec:    exec,
		sched:   sched,
		decoder: NewDecoder(),
		events:  observable.New(),
		sockets: make(map[string]*Socket),
		backoff: newReconnectBackoff(cfg),
	}
}

// Events returns the Manager's Observable.
func (m *Manager) Events() *observable.Observable { return m.events }

// socketFor returns the Socket for namespace ns, creating it if absent.
func (m *Manager) socketFor(ns string) *Socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sock, ok := m.sockets[ns]; ok {
		return sock
	}
	sock := newSocket(m, ns)
	m.sockets[ns] = sock
	return sock
}

// removeSocket drops ns from the registry; once the last socket is gone
// the engine session is closed and the Manager deregisters itself.
func (m *Manager) removeSocket(ns string) {
	m.mu.Lock()
	delete(m.sockets, ns)
	empty := len(m.sockets) == 0
	session := m.session
	m.mu.Unlock()
	if !empty {
		return
	}
	if session != nil {
		session.Close()
	}
	removeManager(m.cfg, m)
}

// Open lazily creates and opens the engine session. Safe to call
// concurrently and repeatedly; a session already opening or open is a
// no-op.
func (m *Manager) Open() {
	m.exec.Submit(func() {
		m.mu.Lock()
		if m.opening {
			m.mu.Unlock()
			return
		}
		if m.session != nil && m.session.State() == engineio.StateOpen {
			m.mu.Unlock()
			return
		}
		m.opening = true
		if m.session == nil {
			m.session = m.newSession()
			m.sessionHandles = m.subscribeSession(m.session)
		}
		sess := m.session
		m.mu.Unlock()
		_ = sess.Open()
	})
}

// IsOpen reports whether the underlying engine session is currently OPEN.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	return sess != nil && sess.State() == engineio.StateOpen
}

func (m *Manager) newSession() *engineio.Session {
	u := *m.cfg.URL
	u.Path = m.cfg.Path
	query := cloneQuery(m.cfg.Query)
	query.Set("EIO", "3")
	return engineio.NewSession(engineio.SessionConfig{
		URL:        &u,
		Query:      query,
		Header:     m.cfg.Header,
		Transports: m.cfg.Transports,
		HTTPClient: m.cfg.HTTPClient,
		Dialer:     m.cfg.Dialer,
	}, m.exec, m.sched)
}

func (m *Manager) subscribeSession(s *engineio.Session) []*observable.Handle {
	return []*observable.Handle{
		s.Events().On(engineio.EventOpen, func(args ...interface{}) { m.onSessionOpen() }),
		s.Events().On(engineio.EventMessage, func(args ...interface{}) {
			p, _ := args[0].(engineio.Packet)
			m.onEngineMessage(p)
		}),
		s.Events().On(engineio.EventPing, func(args ...interface{}) { m.events.Emit(EventPing) }),
		s.Events().On(engineio.EventPong, func(args ...interface{}) { m.events.Emit(EventPong) }),
		s.Events().On(engineio.EventAbruptClose, func(args ...interface{}) { m.onSessionAbruptClose(firstErrArg(args)) }),
		s.Events().On(engineio.EventError, func(args ...interface{}) { m.onSessionError(firstErrArg(args)) }),
		s.Events().On(engineio.EventClose, func(args ...interface{}) { m.events.Emit(EventClose) }),
		s.Events().On(engineio.EventUpgrade, func(args ...interface{}) { m.events.Emit(EventUpgrade) }),
		s.Events().On(engineio.EventUpgradeAttempt, func(args ...interface{}) { m.events.Emit(EventUpgradeAttempt) }),
		s.Events().On(engineio.EventUpgradeFail, func(args ...interface{}) { m.events.Emit(EventUpgradeFail) }),
	}
}

func firstErrArg(args []interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e, _ := args[0].(error)
	return e
}

func (m *Manager) onSessionOpen() {
	m.mu.Lock()
	m.opening = false
	m.backoff.reset()
	m.mu.Unlock()
	m.events.Emit(EventConnect)
}

func (m *Manager) onEngineMessage(p engineio.Packet) {
	if p.Type != engineio.Message {
		return
	}
	var pkt *Packet
	var err error
	if p.Binary {
		pkt, err = m.decoder.AddAttachment(p.Payload)
	} else {
		pkt, err = m.decoder.DecodeText(p.Payload)
	}
	if err != nil {
		m.events.Emit(EventError, err)
		return
	}
	if pkt == nil {
		return
	}
	m.events.Emit(eventPacket, *pkt)
}

func (m *Manager) onSessionAbruptClose(err error) {
	m.mu.Lock()
	m.opening = false
	m.mu.Unlock()
	m.events.Emit(EventAbruptClose, err)
	if m.cfg.Reconnect {
		m.scheduleReconnect()
	}
}

func (m *Manager) onSessionError(err error) {
	m.mu.Lock()
	m.opening = false
	m.mu.Unlock()
	m.events.Emit(EventError, err)
}

func (m *Manager) scheduleReconnect() {
	delay, ok := m.backoff.next()
	if !ok {
		m.events.Emit(EventReconnectFail)
		return
	}
	attempt := m.backoff.attemptNumber()
	m.sched.Schedule(func() {
		m.events.Emit(EventReconnectAttempt, attempt, delay)
		m.Open()
	}, delay)
}

// sendPacket encodes p and forwards the primary frame plus any attachments
// as independent Engine.IO MESSAGE packets.
func (m *Manager) sendPacket(p Packet) error {
	primary, atts, err := Encode(p)
	if err != nil {
		return err
	}
	packets := make([]engineio.Packet, 0, 1+len(atts))
	packets = append(packets, engineio.Packet{Type: engineio.Message, Payload: primary})
	for _, a := range atts {
		packets = append(packets, engineio.Packet{Type: engineio.Message, Binary: true, Payload: a})
	}
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return engineio.ErrClosed
	}
	return sess.Send(packets...)
}

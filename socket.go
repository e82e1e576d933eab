package socketio

import (
	"fmt"
	"sync"

	"github.com/wireio/socketio/observable"
)

// Socket public event names, in addition to any application-defined event
// name a server sends in an EVENT/BINARY_EVENT packet.
const (
	OnConnect          = "connect"
	OnDisconnect       = "disconnect"
	OnError            = "error"
	OnErrorPacket      = "error_packet"
	OnPing             = "ping"
	OnPong             = "pong"
	OnAbruptClose      = "abrupt_close"
	OnClose            = "close"
	OnReconnectAttempt = "reconnect_attempt"
	OnReconnectFail    = "reconnect_fail"
	OnUpgrade          = "upgrade"
	OnUpgradeAttempt   = "upgrade_attempt"
	OnUpgradeFail      = "upgrade_fail"
)

// SocketState tracks a Socket's own lifecycle, distinct from the Manager's
// engine-session state: a Socket can be OPENING while the Manager's session
// is already OPEN, if the CONNECT packet for this namespace hasn't arrived
// yet.
type SocketState int

const (
	SocketInitial SocketState = iota
	SocketOpening
	SocketOpen
	SocketClosed
)

// ackCallback is invoked with the args carried by an ACK/BINARY_ACK packet
// whose id matches the one a Socket.Emit call requested.
type ackCallback func(args []interface{})

// Socket is the per-namespace handle returned by Builder.Socket. Its own
// Observable carries both the fixed lifecycle event names above and every
// application event name the server emits. A Socket subscribes directly to
// its Manager's Observable on open and removes every one of those
// registrations on Close, so the Manager's listener counts return to their
// pre-open values once every namespace using it has closed.
type Socket struct {
	manager   *Manager
	namespace string

	events *observable.Observable

	mu             sync.Mutex
	state          SocketState
	managerHandles []*observable.Handle
	nextAckID      int
	acks           map[int]ackCallback
	sendQueue      []Packet
}

func newSocket(m *Manager, ns string) *Socket {
	return &Socket{
		manager:   m,
		namespace: ns,
		events:    observable.New(),
		acks:      make(map[int]ackCallback),
	}
}

// Namespace returns the Socket.IO namespace this Socket multiplexes onto.
func (s *Socket) Namespace() string { return s.namespace }

// State returns the Socket's current lifecycle state.
func (s *Socket) State() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the Socket's own Observable, for registering handlers with
// On/Once directly instead of through the On/Once convenience methods.
func (s *Socket) Events() *observable.Observable { return s.events }

// On registers cb for event, returning a Handle the caller may use to
// deregister it with Off.
func (s *Socket) On(event string, cb observable.Callback) *observable.Handle {
	return s.events.On(event, cb)
}

// Once registers cb to fire at most once for event.
func (s *Socket) Once(event string, cb observable.Callback) *observable.Handle {
	return s.events.Once(event, cb)
}

// Off removes a listener previously returned by On or Once.
func (s *Socket) Off(h *observable.Handle) {
	h.Remove()
}

// Open subscribes this Socket to its Manager and requests a CONNECT for its
// namespace, opening the underlying engine session first if necessary. If
// the Manager's engine session is already open and this Socket is on the
// default namespace, there is no CONNECT round trip to wait for: the socket
// goes straight to OPEN.
func (s *Socket) Open() {
	s.mu.Lock()
	if s.state != SocketInitial && s.state != SocketClosed {
		s.mu.Unlock()
		return
	}
	s.state = SocketOpening
	s.managerHandles = s.subscribeManager()
	s.mu.Unlock()

	s.manager.Open()
	if s.manager.IsOpen() {
		s.onManagerAlreadyOpen()
	}
}

// Connect is an alias for Open, matching the server-facing vocabulary.
func (s *Socket) Connect() { s.Open() }

// onManagerAlreadyOpen runs when this Socket finds its Manager's engine
// session already open, either from Open or from a reconnect. The default
// namespace needs no CONNECT handshake of its own, so it's treated as
// connected immediately; every other namespace still sends CONNECT and
// waits for the server's ack.
func (s *Socket) onManagerAlreadyOpen() {
	if s.namespace == "/" {
		s.onConnectAck()
		return
	}
	s.sendConnect()
}

// sendConnect sends a Socket.IO CONNECT packet for this Socket's namespace.
// There is no reason to send one for the default namespace: the server
// treats the underlying engine session itself as connected to "/".
func (s *Socket) sendConnect() {
	if s.namespace == "/" {
		return
	}
	_ = s.manager.sendPacket(Packet{Type: Connect, Namespace: s.namespace, ID: NoID})
}

func (s *Socket) subscribeManager() []*observable.Handle {
	m := s.manager
	return []*observable.Handle{
		m.Events().On(eventPacket, func(args ...interface{}) {
			p, _ := args[0].(Packet)
			s.onPacket(p)
		}),
		m.Events().On(EventConnect, func(args ...interface{}) { s.onManagerConnect() }),
		m.Events().On(EventAbruptClose, func(args ...interface{}) {
			s.setState(SocketClosed)
			s.events.Emit(OnAbruptClose, firstErrArg(args))
		}),
		m.Events().On(EventError, func(args ...interface{}) { s.events.Emit(OnError, firstErrArg(args)) }),
		m.Events().On(EventClose, func(args ...interface{}) {
			s.setState(SocketClosed)
			s.events.Emit(OnClose)
		}),
		m.Events().On(EventPing, func(args ...interface{}) { s.events.Emit(OnPing) }),
		m.Events().On(EventPong, func(args ...interface{}) { s.events.Emit(OnPong) }),
		m.Events().On(EventReconnectAttempt, func(args ...interface{}) { s.events.Emit(OnReconnectAttempt, args...) }),
		m.Events().On(EventReconnectFail, func(args ...interface{}) { s.events.Emit(OnReconnectFail) }),
		m.Events().On(EventUpgrade, func(args ...interface{}) { s.events.Emit(OnUpgrade) }),
		m.Events().On(EventUpgradeAttempt, func(args ...interface{}) { s.events.Emit(OnUpgradeAttempt) }),
		m.Events().On(EventUpgradeFail, func(args ...interface{}) { s.events.Emit(OnUpgradeFail) }),
	}
}

// onManagerConnect fires when the shared engine session (re)opens; a Socket
// that was already OPENING re-joins its namespace, the same way it would
// from Open.
func (s *Socket) onManagerConnect() {
	s.mu.Lock()
	opening := s.state == SocketOpening
	s.mu.Unlock()
	if opening {
		s.onManagerAlreadyOpen()
	}
}

func (s *Socket) setState(st SocketState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// onPacket dispatches one decoded packet destined for this Socket's
// namespace; packets for other namespaces are ignored.
func (s *Socket) onPacket(p Packet) {
	ns := p.Namespace
	if ns == "" {
		ns = "/"
	}
	if ns != s.namespace {
		return
	}
	switch p.Type {
	case Connect:
		s.onConnectAck()
	case Disconnect:
		s.Close()
	case Error:
		s.events.Emit(OnErrorPacket, p.Data)
	case Event, BinaryEvent:
		s.dispatchEvent(p)
	case Ack, BinaryAck:
		s.dispatchAck(p)
	}
}

func (s *Socket) onConnectAck() {
	s.mu.Lock()
	pending := s.sendQueue
	s.sendQueue = nil
	s.state = SocketOpen
	s.mu.Unlock()
	for _, p := range pending {
		_ = s.manager.sendPacket(p)
	}
	s.events.Emit(OnConnect)
}

func (s *Socket) dispatchEvent(p Packet) {
	arr, ok := p.Data.([]interface{})
	if !ok || len(arr) == 0 {
		return
	}
	name, ok := arr[0].(string)
	if !ok {
		return
	}
	args := arr[1:]
	if p.ID != NoID {
		id := p.ID
		ns := p.Namespace
		args = append(append([]interface{}{}, args...), ackResponder(func(replyArgs ...interface{}) {
			_ = s.manager.sendPacket(Packet{
				Type:      Ack,
				Namespace: ns,
				ID:        id,
				Data:      append([]interface{}{}, replyArgs...),
			})
		}))
	}
	s.events.Emit(name, args...)
}

// ackResponder is the function type passed as the trailing argument to an
// event handler when the server requested an acknowledgement; calling it
// sends the ACK back.
type ackResponder func(args ...interface{})

func (s *Socket) dispatchAck(p Packet) {
	s.mu.Lock()
	cb, ok := s.acks[p.ID]
	if ok {
		delete(s.acks, p.ID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	arr, _ := p.Data.([]interface{})
	cb(arr)
}

// Emit sends an EVENT (or BINARY_EVENT, if any arg contains a []byte leaf)
// packet for name carrying args. If the last element of args is an
// ackCallback-shaped func([]interface{}), it is registered against a fresh
// ack id instead of being serialized. While the Socket has not yet received
// its CONNECT acknowledgement, the packet is queued and flushed once it has.
func (s *Socket) Emit(name string, args ...interface{}) error {
	payload := append([]interface{}{name}, args...)
	id := NoID
	if n := len(args); n > 0 {
		if cb, ok := args[n-1].(func([]interface{})); ok {
			payload = append([]interface{}{name}, args[:n-1]...)
			id = s.registerAck(cb)
		} else if cb, ok := args[n-1].(func(...interface{})); ok {
			payload = append([]interface{}{name}, args[:n-1]...)
			id = s.registerAck(func(a []interface{}) { cb(a...) })
		}
	}
	p := Packet{Type: Event, Namespace: s.namespace, ID: id, Data: payload}
	return s.enqueueOrSend(p)
}

// Send emits the reserved "message" event, mirroring the bare-string send
// convenience most Socket.IO clients provide alongside Emit.
func (s *Socket) Send(args ...interface{}) error {
	return s.Emit("message", args...)
}

func (s *Socket) registerAck(cb ackCallback) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextAckID
	s.nextAckID++
	s.acks[id] = cb
	return id
}

func (s *Socket) enqueueOrSend(p Packet) error {
	s.mu.Lock()
	if s.state != SocketOpen {
		s.sendQueue = append(s.sendQueue, p)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.manager.sendPacket(p)
}

// Close sends DISCONNECT for this namespace if the Socket was OPEN, removes every listener this
// Socket registered on its Manager, and deregisters it from the Manager's
// namespace table. Close is idempotent.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.state == SocketClosed {
		s.mu.Unlock()
		return
	}
	wasOpen := s.state == SocketOpen
	s.state = SocketClosed
	handles := s.managerHandles
	s.managerHandles = nil
	s.mu.Unlock()

	if wasOpen {
		_ = s.manager.sendPacket(Packet{Type: Disconnect, Namespace: s.namespace, ID: NoID})
	}
	for _, h := range handles {
		h.Remove()
	}
	s.manager.removeSocket(s.namespace)
	s.events.Emit(OnDisconnect)
}

// Disconnect is an alias for Close, matching the server-facing vocabulary.
func (s *Socket) Disconnect() { s.Close() }

func (s *Socket) String() string {
	return fmt.Sprintf("socketio.Socket{namespace:%q}", s.namespace)
}

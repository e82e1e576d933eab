package engineio

import (
	"sync"
	"testing"
	"time"

	"github.com/wireio/socketio/observable"
	"github.com/wireio/socketio/worker"
)

// fakeTransport is a minimal in-memory Transport double used to drive
// Session through its state machine without a real network dial.
type fakeTransport struct {
	name   string
	events *observable.Observable

	mu      sync.Mutex
	sent    []Packet
	paused  bool
	closed  bool
	pending []Packet
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name, events: observable.New()}
}

func (f *fakeTransport) Name() string                   { return f.name }
func (f *fakeTransport) Events() *observable.Observable { return f.events }
func (f *fakeTransport) Open() error                    { return nil }

func (f *fakeTransport) Send(packets ...Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, packets...)
	return nil
}

func (f *fakeTransport) Close(clientInitiated bool) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Pause() error   { f.mu.Lock(); f.paused = true; f.mu.Unlock(); return nil }
func (f *fakeTransport) Unpause() error { f.mu.Lock(); f.paused = false; f.mu.Unlock(); return nil }

func (f *fakeTransport) PendingOutbound() []Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pending
	f.pending = nil
	return p
}

func (f *fakeTransport) lastSent() Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return Packet{}
	}
	return f.sent[len(f.sent)-1]
}

func newTestSession(t *testing.T, transports []string) (*Session, *worker.Executor) {
	t.Helper()
	exec := worker.NewExecutor(32)
	sched := worker.NewScheduler(exec)
	s := NewSession(SessionConfig{
		Transports: transports,
	}, exec, sched)
	return s, exec
}

// runOnExecutor submits fn and blocks until it has run, so a test can
// observe session state that onTransportOpen/onMessage/etc. mutate only
// while running on the Session's executor.
func runOnExecutor(exec *worker.Executor, fn func()) {
	done := make(chan struct{})
	exec.Submit(func() {
		fn()
		close(done)
	})
	<-done
}

func TestSessionOnTransportOpenEmitsAndSchedulesPing(t *testing.T) {
	s, exec := newTestSession(t, []string{TransportPolling})
	defer exec.Shutdown(time.Second)
	tr := newFakeTransport(TransportPolling)
	s.transport = tr
	s.subscribeTransport(tr)

	var gotOpen bool
	s.Events().On(EventOpen, func(args ...interface{}) { gotOpen = true })

	hs := Handshake{SessionID: "abc", PingInterval: 20 * time.Millisecond, PingTimeout: 20 * time.Millisecond, Upgrades: nil}
	runOnExecutor(exec, func() { s.onTransportOpen(hs) })

	if !gotOpen {
		t.Fatal("onTransportOpen should emit EventOpen")
	}
	if s.State() != StateOpen {
		t.Fatalf("State() = %v, want StateOpen", s.State())
	}
	if s.query.Get("sid") != "abc" {
		t.Fatalf("query sid = %q, want abc", s.query.Get("sid"))
	}
	s.mu.Lock()
	scheduled := s.pingHandle != nil
	s.mu.Unlock()
	if !scheduled {
		t.Fatal("onTransportOpen should schedule the ping cycle")
	}
}

func TestSessionPongCancelsTimeoutAndReschedules(t *testing.T) {
	s, exec := newTestSession(t, []string{TransportPolling})
	defer exec.Shutdown(time.Second)
	tr := newFakeTransport(TransportPolling)
	s.transport = tr
	s.subscribeTransport(tr)
	s.handshake = Handshake{PingInterval: time.Hour, PingTimeout: time.Hour}

	runOnExecutor(exec, func() { s.onPingFire() })
	if last := tr.lastSent(); last.Type != Ping {
		t.Fatalf("onPingFire should send a PING, got %v", last.Type)
	}
	s.mu.Lock()
	hadTimeout := s.pingTimeoutHandle != nil
	s.mu.Unlock()
	if !hadTimeout {
		t.Fatal("onPingFire should arm the pong-timeout handle")
	}

	var gotPong bool
	s.Events().On(EventPong, func(args ...interface{}) { gotPong = true })
	runOnExecutor(exec, func() { s.onMessage(Packet{Type: Pong}) })

	if !gotPong {
		t.Fatal("a Pong message should emit EventPong")
	}
	s.mu.Lock()
	stillArmed := s.pingTimeoutHandle != nil
	s.mu.Unlock()
	if stillArmed {
		t.Fatal("receiving Pong should cancel the pong-timeout handle")
	}
	s.mu.Lock()
	rescheduled := s.pingHandle != nil
	s.mu.Unlock()
	if !rescheduled {
		t.Fatal("receiving Pong should schedule the next ping")
	}
}

func TestSessionPingTimeoutTriggersAbruptClose(t *testing.T) {
	s, exec := newTestSession(t, []string{TransportPolling})
	defer exec.Shutdown(time.Second)
	tr := newFakeTransport(TransportPolling)
	s.transport = tr
	s.subscribeTransport(tr)

	var gotErr error
	var sawAbrupt bool
	s.Events().On(EventError, func(args ...interface{}) {
		sawAbrupt = true
		if len(args) > 0 {
			gotErr, _ = args[0].(error)
		}
	})

	runOnExecutor(exec, func() { s.onPingTimeout() })

	if !sawAbrupt {
		t.Fatal("onPingTimeout should emit EventError")
	}
	if gotErr != ErrPongTimeout {
		t.Fatalf("error = %v, want ErrPongTimeout", gotErr)
	}
	if s.State() != StateAbruptlyClosed {
		t.Fatalf("State() = %v, want StateAbruptlyClosed", s.State())
	}
}

func TestSessionProbeUpgradeSucceeds(t *testing.T) {
	s, exec := newTestSession(t, []string{TransportPolling, TransportWebSocket})
	defer exec.Shutdown(time.Second)
	old := newFakeTransport(TransportPolling)
	s.transport = old
	s.subscribeTransport(old)

	aux := newFakeTransport(TransportWebSocket)
	ps := &probeState{transport: aux}
	hMsg := aux.Events().On(EventMessage, func(args ...interface{}) {
		p, _ := args[0].(Packet)
		exec.Submit(func() { s.onProbeMessage(aux, p) })
	})
	ps.handles = []*observable.Handle{hMsg}
	s.mu.Lock()
	s.probe = ps
	s.mu.Unlock()

	var gotUpgrade bool
	s.Events().On(EventUpgrade, func(args ...interface{}) { gotUpgrade = true })

	aux.Events().Emit(EventMessage, Packet{Type: Pong, Payload: []byte("probe")})
	time.Sleep(50 * time.Millisecond) // let the executor drain onProbeMessage -> completeUpgrade

	if !gotUpgrade {
		t.Fatal("a matching probe pong should complete the upgrade and emit EventUpgrade")
	}
	s.mu.Lock()
	current := s.transport
	probeCleared := s.probe == nil
	s.mu.Unlock()
	if current != Transport(aux) {
		t.Fatal("Session should adopt the probe transport as current after upgrade")
	}
	if !probeCleared {
		t.Fatal("probe state should be cleared after upgrade completes")
	}
	old.mu.Lock()
	oldPaused := old.paused
	old.mu.Unlock()
	if !oldPaused {
		t.Fatal("the old transport should have been paused during upgrade")
	}
}

func TestSessionProbeFailureUnpausesOldTransport(t *testing.T) {
	s, exec := newTestSession(t, []string{TransportPolling, TransportWebSocket})
	defer exec.Shutdown(time.Second)
	old := newFakeTransport(TransportPolling)
	s.transport = old
	s.subscribeTransport(old)

	aux := newFakeTransport(TransportWebSocket)
	ps := &probeState{transport: aux}
	hFail := aux.Events().On(EventError, func(args ...interface{}) {
		exec.Submit(func() { s.onProbeFail(aux) })
	})
	ps.handles = []*observable.Handle{hFail}
	s.mu.Lock()
	s.probe = ps
	s.mu.Unlock()

	var gotUpgradeFail bool
	s.Events().On(EventUpgradeFail, func(args ...interface{}) { gotUpgradeFail = true })

	aux.Events().Emit(EventError, nil)
	time.Sleep(50 * time.Millisecond)

	if !gotUpgradeFail {
		t.Fatal("a probe error should emit EventUpgradeFail")
	}
	s.mu.Lock()
	probeCleared := s.probe == nil
	current := s.transport
	s.mu.Unlock()
	if !probeCleared {
		t.Fatal("probe state should be cleared after a failed probe")
	}
	if current != Transport(old) {
		t.Fatal("the original transport should remain current after a failed probe")
	}
}

func TestSessionCloseEmitsEventClose(t *testing.T) {
	s, exec := newTestSession(t, []string{TransportPolling})
	tr := newFakeTransport(TransportPolling)
	s.transport = tr
	s.subscribeTransport(tr)

	done := make(chan struct{})
	s.Events().On(EventClose, func(args ...interface{}) { close(done) })

	s.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close should eventually emit EventClose")
	}
	if s.State() != StateClosed {
		t.Fatalf("State() = %v, want StateClosed", s.State())
	}
	exec.Shutdown(time.Second)
}

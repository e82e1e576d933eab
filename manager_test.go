package socketio

import (
	"testing"
	"time"

	"github.com/wireio/socketio/engineio"
)

func TestManagerOnEngineMessageDecodesTextPacket(t *testing.T) {
	m := newTestManager(t)

	var got Packet
	var gotIt bool
	m.Events().On(eventPacket, func(args ...interface{}) {
		got, gotIt = args[0].(Packet)
	})

	m.onEngineMessage(engineio.Packet{Type: engineio.Message, Payload: []byte(`2["greet","hi"]`)})

	if !gotIt {
		t.Fatal("a complete text frame should emit the internal packet event")
	}
	if got.Type != Event {
		t.Fatalf("Type = %v, want Event", got.Type)
	}
	arr, ok := got.Data.([]interface{})
	if !ok || len(arr) != 2 || arr[0] != "greet" || arr[1] != "hi" {
		t.Fatalf("Data = %#v, want [greet hi]", got.Data)
	}
}

func TestManagerOnEngineMessageIgnoresNonMessagePackets(t *testing.T) {
	m := newTestManager(t)
	var called bool
	m.Events().On(eventPacket, func(args ...interface{}) { called = true })

	m.onEngineMessage(engineio.Packet{Type: engineio.Ping})

	if called {
		t.Fatal("a non-MESSAGE engine packet should never produce a socketio packet event")
	}
}

func TestManagerOnEngineMessageEmitsErrorOnBadFrame(t *testing.T) {
	m := newTestManager(t)
	var gotErr bool
	m.Events().On(EventError, func(args ...interface{}) { gotErr = true })

	m.onEngineMessage(engineio.Packet{Type: engineio.Message, Payload: []byte(`9garbage`)})

	if !gotErr {
		t.Fatal("a malformed frame should emit EventError")
	}
}

func TestManagerOnEngineMessageReassemblesBinaryEvent(t *testing.T) {
	m := newTestManager(t)
	var got Packet
	var gotIt bool
	m.Events().On(eventPacket, func(args ...interface{}) {
		got, gotIt = args[0].(Packet)
	})

	m.onEngineMessage(engineio.Packet{
		Type:    engineio.Message,
		Payload: []byte(`51-["upload",{"_placeholder":true,"num":0}]`),
	})
	if gotIt {
		t.Fatal("should not fire until the attachment arrives")
	}
	m.onEngineMessage(engineio.Packet{Type: engineio.Message, Binary: true, Payload: []byte{1, 2, 3}})

	if !gotIt {
		t.Fatal("the packet event should fire once every attachment is in")
	}
	arr, _ := got.Data.([]interface{})
	if len(arr) != 2 {
		t.Fatalf("Data = %#v, want [upload <bytes>]", got.Data)
	}
	b, ok := arr[1].([]byte)
	if !ok || string(b) != "\x01\x02\x03" {
		t.Fatalf("reconstructed attachment = %#v, want [1 2 3]", arr[1])
	}
}

func TestManagerOnSessionOpenResetsBackoffAndEmitsConnect(t *testing.T) {
	m := newTestManager(t)
	m.opening = true
	m.backoff.attempts = 3

	var gotConnect bool
	m.Events().On(EventConnect, func(args ...interface{}) { gotConnect = true })

	m.onSessionOpen()

	if !gotConnect {
		t.Fatal("onSessionOpen should emit EventConnect")
	}
	if m.opening {
		t.Fatal("onSessionOpen should clear the opening flag")
	}
	if m.backoff.attemptNumber() != 0 {
		t.Fatalf("attemptNumber() = %d, want 0 after a successful open", m.backoff.attemptNumber())
	}
}

func TestManagerScheduleReconnectEmitsAttemptThenOpens(t *testing.T) {
	m := newTestManager(t)
	m.cfg.ReconnectDelay = 5 * time.Millisecond
	m.cfg.MaxReconnectDelay = 5 * time.Millisecond
	m.backoff = newReconnectBackoff(m.cfg)
	defer m.sched.Shutdown(time.Second)
	defer m.exec.Shutdown(time.Second)

	done := make(chan struct{})
	m.Events().On(EventReconnectAttempt, func(args ...interface{}) { close(done) })

	m.scheduleReconnect()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduleReconnect should eventually emit EventReconnectAttempt")
	}
}

func TestManagerScheduleReconnectEmitsFailAtExhaustion(t *testing.T) {
	m := newTestManager(t)
	m.cfg.MaxReconnectAttempts = 0
	m.backoff = newReconnectBackoff(m.cfg)

	var gotFail bool
	m.Events().On(EventReconnectFail, func(args ...interface{}) { gotFail = true })

	m.scheduleReconnect()

	if !gotFail {
		t.Fatal("scheduleReconnect should emit EventReconnectFail once attempts are exhausted")
	}
}

func TestManagerRemoveSocketDeregistersWhenEmpty(t *testing.T) {
	resetRegistryForTest()
	defer resetRegistryForTest()

	cfg, err := newConfig("http://example.com/chat")
	if err != nil {
		t.Fatal(err)
	}
	m := getOrCreateManager(cfg)
	m.socketFor("/chat")
	if n := registrySize(); n != 1 {
		t.Fatalf("registrySize() = %d, want 1", n)
	}

	m.removeSocket("/chat")

	if n := registrySize(); n != 0 {
		t.Fatalf("registrySize() = %d, want 0 after the last socket closes", n)
	}
}

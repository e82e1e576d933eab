package engineio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/wireio/socketio/observable"
)

// PollingTransport pipelines a single in-flight GET (the poll channel) and
// a single in-flight POST (the write channel) against an Engine.IO HTTP
// endpoint. Availability flags gate re-entry into each channel so a second
// attempt on a busy channel is silently skipped.
type PollingTransport struct {
	client *http.Client
	opts   DialOptions
	events *observable.Observable

	mu             sync.Mutex
	cond           *sync.Cond
	sendBuf        []Packet
	writeInFlight  bool
	writeAvailable bool
	closed         bool
	sid            string
}

// NewPollingTransport returns a polling transport for the given dial
// options. client defaults to http.DefaultClient when nil.
func NewPollingTransport(opts DialOptions, client *http.Client) *PollingTransport {
	if client == nil {
		client = http.DefaultClient
	}
	t := &PollingTransport{
		client: client,
		opts:   opts,
		events: observable.New(),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *PollingTransport) Name() string                   { return TransportPolling }
func (t *PollingTransport) Events() *observable.Observable { return t.events }

// Open issues the first GET, which is expected to carry the Engine.IO OPEN
// packet and handshake data.
func (t *PollingTransport) Open() error {
	go t.pollLoop()
	return nil
}

func (t *PollingTransport) pollLoop() {
	for {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		packets, err := t.doRead()
		if err != nil {
			t.fail(err)
			return
		}
		for _, p := range packets {
			t.deliver(p)
		}
	}
}

func (t *PollingTransport) deliver(p Packet) {
	if p.Type == Open {
		hs, err := ParseHandshake(p.Payload)
		if err != nil {
			t.events.Emit(EventError, err)
			return
		}
		t.mu.Lock()
		t.sid = hs.SessionID
		t.writeAvailable = true
		t.mu.Unlock()
		t.events.Emit(EventOpen, hs)
		t.attemptWrite()
		return
	}
	t.events.Emit(EventMessage, p)
}

// Send enqueues packets on the write buffer and, if the write channel is
// free, drains the whole buffer as one encoded POST body.
func (t *PollingTransport) Send(packets ...Packet) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.sendBuf = append(t.sendBuf, packets...)
	t.mu.Unlock()
	t.attemptWrite()
	return nil
}

// Flush forces a write cycle by enqueuing a NOOP when the buffer is
// non-empty; it does nothing when the buffer is empty.
func (t *PollingTransport) Flush() error {
	t.mu.Lock()
	empty := len(t.sendBuf) == 0
	t.mu.Unlock()
	if empty {
		return nil
	}
	return t.Send(Packet{Type: Noop})
}

func (t *PollingTransport) attemptWrite() {
	t.mu.Lock()
	if t.closed || !t.writeAvailable || t.writeInFlight || len(t.sendBuf) == 0 {
		t.mu.Unlock()
		return
	}
	packets := t.sendBuf
	t.sendBuf = nil
	t.writeInFlight = true
	t.mu.Unlock()

	go func() {
		err := t.doWrite(packets)
		t.mu.Lock()
		t.writeInFlight = false
		t.cond.Broadcast()
		t.mu.Unlock()
		if err != nil {
			t.fail(err)
			return
		}
		t.attemptWrite()
	}()
}

// Pause waits until no write is in flight, then marks the write channel
// unavailable so no new POST leaves after it returns. It blocks on a
// condition variable rather than spin-waiting on the availability flag.
func (t *PollingTransport) Pause() error {
	t.mu.Lock()
	for t.writeInFlight {
		t.cond.Wait()
	}
	t.writeAvailable = false
	t.mu.Unlock()
	return nil
}

// Unpause restores write availability and flushes any packets that queued
// up while paused.
func (t *PollingTransport) Unpause() error {
	t.mu.Lock()
	t.writeAvailable = true
	t.mu.Unlock()
	t.attemptWrite()
	return nil
}

func (t *PollingTransport) Close(clientInitiated bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	if clientInitiated {
		_ = t.doWrite([]Packet{{Type: Close}})
	}
	return nil
}

// PendingOutbound returns and clears whatever is still queued on the send
// buffer. Callers should Pause first so nothing new is added concurrently.
func (t *PollingTransport) PendingOutbound() []Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := t.sendBuf
	t.sendBuf = nil
	return buf
}

func (t *PollingTransport) buildURL() string {
	t.mu.Lock()
	q := cloneQuery(t.opts.Query)
	sid := t.sid
	t.mu.Unlock()
	q.Set("transport", TransportPolling)
	if sid != "" {
		q.Set("sid", sid)
	}
	u := *t.opts.URL
	u.RawQuery = EncodeQuery(q)
	return u.String()
}

func (t *PollingTransport) doRead() ([]Packet, error) {
	req, err := http.NewRequest(http.MethodGet, t.buildURL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = cloneHeader(t.opts.Header)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engineio: polling GET returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// %v, not %w: a failure mid-body is terminal, never reconnect-eligible.
		return nil, fmt.Errorf("engineio: polling GET body: %v", err)
	}
	if isTextContentType(resp.Header.Get("Content-Type")) {
		return DecodeTextPayload(body)
	}
	return DecodePayload(body)
}

func (t *PollingTransport) doWrite(packets []Packet) error {
	body := EncodePayload(packets)
	contentType := "text/plain; charset=UTF-8"
	for _, p := range packets {
		if p.Binary {
			contentType = "application/octet-stream"
			break
		}
	}
	req, err := http.NewRequest(http.MethodPost, t.buildURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = cloneHeader(t.opts.Header)
	req.Header.Set("Content-Type", contentType)
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("engineio: polling POST returned status %d", resp.StatusCode)
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("engineio: polling POST body: %v", err)
	}
	return nil
}

func isTextContentType(ct string) bool {
	return len(ct) >= 4 && ct[:4] == "text"
}

// fail classifies err and emits the appropriate terminal event: a
// transient network failure is reconnect-eligible (ABRUPT_CLOSE),
// anything else (bad status, body read failure) is terminal (ERROR).
func (t *PollingTransport) fail(err error) {
	t.mu.Lock()
	already := t.closed
	t.closed = true
	t.mu.Unlock()
	if already {
		return
	}
	log.Println("engineio: polling:", err.Error())
	if isTransientNetError(err) {
		t.events.Emit(EventAbruptClose, err)
		return
	}
	t.events.Emit(EventError, err)
}

func isTransientNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || isConnRefused(err)
	}
	return isConnRefused(err)
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isTransientNetError(urlErr.Err)
	}
	return false
}

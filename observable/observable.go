// Package observable implements a reusable named-event fan-out type, shared
// by the engine.io session/transport layer and the socket.io manager/socket
// layer instead of being reimplemented per component.
package observable

import "sync"

// Callback is a user-supplied event handler.
type Callback func(args ...interface{})

type registration struct {
	id uint64
	cb Callback
}

// Handle is returned from On/Once and is the unit of removal. Remove is
// idempotent: calling it twice, or after the owning Observable has already
// removed the registration some other way, is a no-op.
type Handle struct {
	obs   *Observable
	event string
	id    uint64
}

// Remove deregisters the callback this handle was returned for.
func (h *Handle) Remove() {
	if h == nil || h.obs == nil {
		return
	}
	h.obs.removeByID(h.event, h.id)
}

// Observable maps event names to an ordered sequence of callbacks.
type Observable struct {
	mu       sync.Mutex
	handlers map[string][]registration
	nextID   uint64
}

// New returns an empty Observable.
func New() *Observable {
	return &Observable{handlers: make(map[string][]registration)}
}

// On registers cb to be called every time event is emitted, in registration
// order relative to other listeners on the same event.
func (o *Observable) On(event string, cb Callback) *Handle {
	return o.register(event, cb)
}

// Once registers cb to fire at most once: the registration is removed
// before cb runs, so an Emit triggered from within cb for the same event
// does not re-enter it.
func (o *Observable) Once(event string, cb Callback) *Handle {
	h := &Handle{obs: o, event: event}
	wrapped := func(args ...interface{}) {
		h.Remove()
		cb(args...)
	}
	h.id = o.add(event, wrapped)
	return h
}

func (o *Observable) register(event string, cb Callback) *Handle {
	id := o.add(event, cb)
	return &Handle{obs: o, event: event, id: id}
}

func (o *Observable) add(event string, cb Callback) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.handlers[event] = append(o.handlers[event], registration{id: id, cb: cb})
	return id
}

func (o *Observable) removeByID(event string, id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	regs := o.handlers[event]
	for i, r := range regs {
		if r.id == id {
			o.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// RemoveListener removes the registration identified by h, equivalent to
// h.Remove(). It exists so callers that stored a Handle separately from the
// place they registered it still have a symmetrical removal call.
func (o *Observable) RemoveListener(h *Handle) {
	h.Remove()
}

// RemoveAllForEvent drops every listener registered for event.
func (o *Observable) RemoveAllForEvent(event string) {
	o.mu.Lock()
	delete(o.handlers, event)
	o.mu.Unlock()
}

// RemoveAll drops every listener for every event.
func (o *Observable) RemoveAll() {
	o.mu.Lock()
	o.handlers = make(map[string][]registration)
	o.mu.Unlock()
}

// Emit invokes every listener registered for event, in registration order,
// against a snapshot of the listener list taken under lock: a listener
// added or removed from within a callback never affects the emission it
// was added or removed during.
func (o *Observable) Emit(event string, args ...interface{}) {
	o.mu.Lock()
	regs := o.handlers[event]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	o.mu.Unlock()

	for _, r := range snapshot {
		r.cb(args...)
	}
}

// ListenerCount reports how many listeners are currently registered for
// event; used by tests asserting listener cleanup on close.
func (o *Observable) ListenerCount(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handlers[event])
}

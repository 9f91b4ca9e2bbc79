// Package events provides the in-process [pivot.EventBus] used by the command line and the journal.
//
// Listeners are registered by event name. A listener registered under [Scoped]
// receives only the events of one relation.
package events

import (
	"sync"

	"github.com/AraneaDev/eventually/internal/pivot"
)

// Dispatcher delivers events synchronously in registration order.
//
// Registration is safe while dispatching: each dispatch works on a snapshot of the listeners.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]*subscription
}

// subscription gives a listener an identity so it can be removed again.
type subscription struct {
	listen pivot.Listener
}

// NewDispatcher creates an empty [Dispatcher].
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]*subscription)}
}

// Scoped returns the event name that only fires for relation.
func Scoped(name, relation string) string {
	return name + ":" + relation
}

// Listen registers l for the event name.
func (d *Dispatcher) Listen(name string, l pivot.Listener) {
	d.Subscribe(name, l)
}

// Subscribe registers l for the event name and returns a function removing it.
//
// The returned function is idempotent. Other listeners of name are left in place.
func (d *Dispatcher) Subscribe(name string, l pivot.Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}

	sub := &subscription{listen: l}
	d.mu.Lock()
	d.listeners[name] = append(d.listeners[name], sub)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		subs := d.listeners[name]
		for i, s := range subs {
			if s == sub {
				d.listeners[name] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(d.listeners[name]) == 0 {
			delete(d.listeners, name)
		}
	}
}

// Forget removes every listener for name.
func (d *Dispatcher) Forget(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, name)
}

// HasListeners reports whether any listener is registered for name.
func (d *Dispatcher) HasListeners(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name]) > 0
}

// Dispatch implements [pivot.EventBus].
//
// Global listeners of name run before the listeners scoped to payload.Relation.
// Each listener gets its own copy of the payload.
func (d *Dispatcher) Dispatch(name string, payload pivot.Payload, halt bool) pivot.DispatchOutcome {
	for _, l := range d.snapshot(name, payload.Relation) {
		verdict := l(payload.Clone())
		if halt && verdict == pivot.Veto {
			return pivot.DispatchOutcome{Halted: true}
		}
	}
	return pivot.DispatchOutcome{}
}

func (d *Dispatcher) snapshot(name, relation string) []pivot.Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()

	global := d.listeners[name]
	var scoped []*subscription
	if relation != "" {
		scoped = d.listeners[Scoped(name, relation)]
	}

	out := make([]pivot.Listener, 0, len(global)+len(scoped))
	for _, sub := range global {
		out = append(out, sub.listen)
	}
	for _, sub := range scoped {
		out = append(out, sub.listen)
	}
	return out
}

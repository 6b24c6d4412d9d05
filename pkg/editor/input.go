package editor

import "sync"

// EventKind is the kind of a pointer event.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
)

// PointerEvent is a pointer event in container pixels.
type PointerEvent struct {
	Kind EventKind
	X    float64
	Y    float64
}

// Handler receives pointer events.
type Handler func(PointerEvent)

// Source delivers global pointer events. Listen registers h until the
// returned cancel function is called; cancel is safe to call more than once.
type Source interface {
	Listen(h Handler) (cancel func())
}

type listener struct {
	id int
	h  Handler
}

// Dispatcher is a Source fed by the host's event loop.
type Dispatcher struct {
	mu        sync.Mutex
	next      int
	listeners []listener
}

// NewDispatcher creates a dispatcher with no listeners.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Listen implements Source.
func (d *Dispatcher) Listen(h Handler) func() {
	d.mu.Lock()
	d.next++
	id := d.next
	d.listeners = append(d.listeners, listener{id: id, h: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, l := range d.listeners {
				if l.id == id {
					d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch delivers ev to every listener registered at the time of the call.
// Listeners may cancel themselves from inside the handler.
func (d *Dispatcher) Dispatch(ev PointerEvent) {
	d.mu.Lock()
	snapshot := make([]listener, len(d.listeners))
	copy(snapshot, d.listeners)
	d.mu.Unlock()

	for _, l := range snapshot {
		l.h(ev)
	}
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Package events is the synchronous in-process publish/subscribe bus that
// wires markets, clearing conditions, reports and observers together.
//
// Channels are opaque keys. Listeners checked in under a key receive every
// event dispatched to it, in check-in order, on the dispatching goroutine.
// Code outside a listener publishes with Dispatch; listeners publish with
// Post. While the engine is stopped check-ins, check-outs and dispatches
// are silently dropped.
package events

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/efreitasn/auctionsim/internal/domain"
)

// Listener receives the events dispatched on a channel.
type Listener func(ev domain.Event)

// Handle identifies one check-in. The zero Handle is never issued.
type Handle uint64

// Channel is an opaque channel identity. Two channels created with the
// same name are still distinct keys.
type Channel struct {
	name string
}

// NewChannel returns a fresh channel key.
func NewChannel(name string) *Channel {
	return &Channel{name: name}
}

func (c *Channel) String() string {
	return c.name
}

// Global carries game-wide events: day and round boundaries.
var Global = NewChannel("global")

type delivery struct {
	key any
	ev  domain.Event
}

// subscribers keeps one channel's listeners in check-in order with O(1)
// removal by handle.
type subscribers struct {
	order    *list.List
	byHandle map[Handle]*list.Element
}

type entry struct {
	handle   Handle
	listener Listener
}

// Engine is the event bus. The zero value is not usable; call NewEngine.
type Engine struct {
	logger *slog.Logger

	mu         sync.Mutex
	running    bool
	nextHandle Handle
	channels   map[any]*subscribers
	queue      []delivery
	delivering bool
	idle       *sync.Cond // signalled when delivering drops to false
}

// NewEngine creates a stopped engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:   logger.With(slog.String("component", "events")),
		channels: make(map[any]*subscribers),
	}
	e.idle = sync.NewCond(&e.mu)
	return e
}

// Start lets the engine accept check-ins and deliver events.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		e.logger.Debug("event engine started")
	}
	e.running = true
}

// Stop drops every later check-in, check-out and dispatch until the next
// Start. Events queued behind an in-progress delivery are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && len(e.queue) > 0 {
		e.logger.Debug("event engine stopped with pending events", slog.Int("dropped", len(e.queue)))
	}
	e.running = false
	e.queue = nil
	e.idle.Broadcast()
}

// IsRunning reports whether the engine is started.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CheckIn subscribes l to key and returns the handle to check it out with.
// It returns the zero Handle when the engine is stopped.
func (e *Engine) CheckIn(key any, l Listener) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || l == nil {
		return 0
	}
	subs := e.channels[key]
	if subs == nil {
		subs = &subscribers{order: list.New(), byHandle: make(map[Handle]*list.Element)}
		e.channels[key] = subs
	}
	e.nextHandle++
	h := e.nextHandle
	subs.byHandle[h] = subs.order.PushBack(entry{handle: h, listener: l})
	return h
}

// CheckOut removes the listener registered under h. Unknown handles and
// calls on a stopped engine are ignored.
func (e *Engine) CheckOut(key any, h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	subs := e.channels[key]
	if subs == nil {
		return
	}
	if el, ok := subs.byHandle[h]; ok {
		subs.order.Remove(el)
		delete(subs.byHandle, h)
	}
	if subs.order.Len() == 0 {
		delete(e.channels, key)
	}
}

// Listeners returns the number of listeners checked in under key.
func (e *Engine) Listeners(key any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subs := e.channels[key]; subs != nil {
		return subs.order.Len()
	}
	return 0
}

// Dispatch delivers ev to every listener of key in check-in order and
// returns once they have all run, along with anything they posted.
//
// Deliveries never overlap: a Dispatch issued while another goroutine is
// delivering blocks until that delivery finishes, then delivers on its own
// goroutine. Listeners must publish with Post instead; a listener calling
// Dispatch waits on itself forever. Each delivery sees the listener set as
// it was when that delivery began. A panicking listener aborts the
// delivery, drops the queue and re-panics on the dispatching goroutine.
func (e *Engine) Dispatch(key any, ev domain.Event) {
	e.mu.Lock()
	for e.running && e.delivering {
		e.idle.Wait()
	}
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, delivery{key: key, ev: ev})
	e.delivering = true
	e.mu.Unlock()

	e.drain()
}

// Post publishes ev from inside a listener. The event is queued and
// delivered by the in-progress Dispatch right after the current event,
// FIFO, before that Dispatch returns. With no delivery in progress Post
// is Dispatch.
func (e *Engine) Post(key any, ev domain.Event) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	if e.delivering {
		e.queue = append(e.queue, delivery{key: key, ev: ev})
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.Dispatch(key, ev)
}

// drain delivers the queue until it is empty. The caller has set
// delivering.
func (e *Engine) drain() {
	done := false
	defer func() {
		if done {
			return
		}
		e.mu.Lock()
		e.queue = nil
		e.delivering = false
		e.idle.Broadcast()
		e.mu.Unlock()
	}()

	for {
		e.mu.Lock()
		if !e.running || len(e.queue) == 0 {
			e.queue = nil
			e.delivering = false
			e.idle.Broadcast()
			e.mu.Unlock()
			done = true
			return
		}
		d := e.queue[0]
		e.queue[0] = delivery{}
		e.queue = e.queue[1:]
		listeners := e.snapshot(d.key)
		e.mu.Unlock()

		for _, l := range listeners {
			l(d.ev)
		}
	}
}

// snapshot copies the listeners of key. Callers hold e.mu.
func (e *Engine) snapshot(key any) []Listener {
	subs := e.channels[key]
	if subs == nil {
		return nil
	}
	out := make([]Listener, 0, subs.order.Len())
	for el := subs.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(entry).listener)
	}
	return out
}

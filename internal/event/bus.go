package event

import "sync"

// Event pairs a topic with its payload. Payload is nil for topics that carry
// no data (started, normal-exit, killed).
type Event struct {
	Type    Type
	Payload any
}

// Handler receives a dispatched event. Handlers run on the publisher's
// goroutine; they must not block.
type Handler func(Event)

// Bus is a process-wide synchronous publish/subscribe channel. Subscribers
// for a topic are invoked in registration order. Publish never runs handlers
// under the bus lock, so handlers may publish further events.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Type][]subscription
}

type subscription struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]subscription)}
}

// Subscribe registers fn for events of type t and returns a cancel function.
// Cancel is idempotent.
func (b *Bus) Subscribe(t Type, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(t, id) })
	}
}

func (b *Bus) unsubscribe(t Type, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[t]
	for i, s := range list {
		if s.id == id {
			b.subs[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers e synchronously to every subscriber of e.Type, in
// registration order.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	list := b.subs[e.Type]
	fns := make([]Handler, len(list))
	for i, s := range list {
		fns[i] = s.fn
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

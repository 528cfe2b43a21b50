package event

import (
	"reflect"
	"sync"
)

// Bus is a queued event bus. Events emitted while a tick runs are held until
// Flush, which delivers them in emission order after the tick has finished
// mutating state. Handlers may emit; those events are delivered in the same
// Flush after everything queued before them.
type Bus struct {
	mu       sync.Mutex // protects handler registration
	queue    []any
	handlers map[reflect.Type][]func(any)
	all      []func(any)
}

func NewBus() *Bus {
	return &Bus{
		queue:    make([]any, 0, 32),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event for the next Flush.
func Emit[T any](b *Bus, event T) {
	b.queue = append(b.queue, event)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(fn func(any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// pending returns the number of queued, undelivered events.
func (b *Bus) pending() int { return len(b.queue) }

// Flush delivers every queued event to its handlers and empties the queue.
func (b *Bus) Flush() {
	for i := 0; i < len(b.queue); i++ {
		ev := b.queue[i]
		typed, all := b.handlersFor(reflect.TypeOf(ev))
		for _, h := range typed {
			h(ev)
		}
		for _, h := range all {
			h(ev)
		}
	}
	clear(b.queue)
	b.queue = b.queue[:0]
}

func (b *Bus) handlersFor(t reflect.Type) (typed, all []func(any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[t], b.all
}

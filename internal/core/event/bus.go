package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered notification bus. Notifications emitted while a
// frame is being applied land in the back buffer; the output system swaps
// and dispatches them once per tick, so subscribers only ever observe
// fully-applied frames. Emit order is preserved across types.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []any
	back     []any
	handlers map[reflect.Type][]func(any)
	all      []func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]any, 0, 64),
		back:     make([]any, 0, 64),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues a notification into the back buffer.
func Emit[T any](b *Bus, ev T) {
	b.back = append(b.back, ev)
}

// Subscribe registers a typed handler for notifications of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SubscribeAll registers a handler that receives every notification.
func (b *Bus) SubscribeAll(fn func(any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Pending returns how many notifications wait in the back buffer.
func (b *Bus) Pending() int { return len(b.back) }

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers the front buffer in emit order and returns how many
// notifications were delivered.
func (b *Bus) DispatchAll() int {
	for _, ev := range b.front {
		for _, h := range b.handlers[reflect.TypeOf(ev)] {
			h(ev)
		}
		for _, h := range b.all {
			h(ev)
		}
	}
	n := len(b.front)
	b.front = b.front[:0]
	return n
}

// Discard drops everything queued in the back buffer.
func (b *Bus) Discard() {
	b.back = b.back[:0]
}

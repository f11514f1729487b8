package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes events. Handlers own their retry and failure semantics;
// the bus only logs their errors.
type Handler func(ctx context.Context, ev Event) error

// Bus is a buffered in-process fan-out. Publish is non-blocking: when the
// buffer is full the event is dropped and logged, because losing a
// notification must never stall or fail a committed order.
type Bus struct {
	lg *zap.Logger
	ch chan Event

	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates a Bus with the given buffer size.
func NewBus(lg *zap.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		lg: lg,
		ch: make(chan Event, buffer),
	}
}

// Subscribe registers a handler for all events. Must be called before Run.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish enqueues the event, dropping it when the buffer is full.
func (b *Bus) Publish(ev Event) {
	select {
	case b.ch <- ev:
	default:
		b.lg.Warn("Event buffer full, dropping event",
			zap.String("event", ev.EventName()),
		)
	}
}

// Run dispatches events to handlers until the context is cancelled, then
// drains whatever is still buffered. Intended to run under an errgroup.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case ev := <-b.ch:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case ev := <-b.ch:
			b.dispatch(context.Background(), ev)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.lg.Error("Event handler failed",
				zap.String("event", ev.EventName()),
				zap.Error(err),
			)
		}
	}
}

package runtime

import (
	"context"
	"log/slog"
	"sync"

	"livehub/contract"
	"livehub/domain/event"
)

// Bus is the in-process typed publish/subscribe seam between the write path
// and everything reacting to it (sockets, offline buffers, search indexing,
// stats). Publish enqueues and returns; dispatch happens on the bus worker
// goroutine, so a slow sink never stalls a message append.
//
// Best-effort by design: no durability, no retries, no cross-restart
// delivery. When the queue is full the fact is dropped and counted.
type Bus struct {
	log    *slog.Logger
	events chan event.DomainEvent

	mu      sync.RWMutex
	sinks   map[event.Kind][]contract.EventSink
	dropped uint64
}

func NewBus(log *slog.Logger, queueSize int) *Bus {
	return &Bus{
		log:    log,
		events: make(chan event.DomainEvent, queueSize),
		sinks:  make(map[event.Kind][]contract.EventSink),
	}
}

// Subscribe attaches a sink to one event kind. Subscriptions are expected at
// wiring time, before the supervisor starts the bus.
func (b *Bus) Subscribe(kind event.Kind, sink contract.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[kind] = append(b.sinks[kind], sink)
}

// Publish hands a fact to the bus without blocking. Full queue means the
// event is lost; the write path must never wait on notification capacity.
func (b *Bus) Publish(e event.DomainEvent) {
	select {
	case b.events <- e:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		b.log.Warn("Event queue full, dropping", "kind", e.Kind())
	}
}

// Dropped reports how many events were lost to a full queue.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Run drains the queue until the context ends. Runs under the supervisor.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-b.events:
			b.fanout(ctx, evt)
		case <-ctx.Done():
			b.log.Debug("Context done, stopping event dispatch")
			return nil
		}
	}
}

// fanout delivers one event to every sink of its kind. A sink failure or
// panic is logged and contained; the remaining sinks still receive the event.
func (b *Bus) fanout(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	sinks := b.sinks[evt.Kind()]
	b.mu.RUnlock()

	for _, sink := range sinks {
		b.deliver(ctx, sink, evt)
	}
}

func (b *Bus) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Sink panicked", "kind", evt.Kind(), "panic", r)
		}
	}()
	if err := sink.Consume(ctx, evt); err != nil {
		b.log.Warn("Sink rejected event", "kind", evt.Kind(), "error", err)
	}
}

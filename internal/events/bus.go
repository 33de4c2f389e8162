// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/utils/metrics"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event channel full")
)

// DefaultBufferSize is used when NewBus gets a non-positive size.
const DefaultBufferSize = 256

// Bus queues outcome, readiness and connection events and hands them to
// subscribers from a single dispatcher goroutine, in publish order.
// Publish never blocks the query path: a full queue drops the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]*subscription
	closed bool

	queue chan Event
	done  chan struct{}

	collector *metrics.Collector
	logger    *zap.Logger
}

// NewBus creates the bus and starts its dispatcher.
func NewBus(bufferSize int, collector *metrics.Collector, logger *zap.Logger) *Bus {
	b := newBus(bufferSize, collector, logger)
	go b.dispatch()
	return b
}

func newBus(bufferSize int, collector *metrics.Collector, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs:      make(map[EventType][]*subscription),
		queue:     make(chan Event, bufferSize),
		done:      make(chan struct{}),
		collector: collector,
		logger:    logger.Named("event_bus"),
	}
}

// Subscribe registers handler for events of eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	sub := &subscription{
		id:      uuid.NewString(),
		typ:     eventType,
		handler: handler,
		bus:     b,
	}

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", sub.id))
	return sub
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues event for the dispatcher.
func (b *Bus) Publish(event Event) error {
	// RLock держит close(queue) в Shutdown до конца отправки
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- event:
		return nil
	default:
		b.collector.RecordEventDropped()
		b.logger.Warn("Event queue full, dropping event",
			zap.String("event_type", string(event.Type())),
			zap.Int("capacity", cap(b.queue)))
		return ErrBusFull
	}
}

// PublishSync delivers event to the current subscribers on the caller's
// goroutine and returns every handler error.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	return b.deliver(ctx, event)
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		if err := b.deliver(context.Background(), event); err != nil {
			b.logger.Error("Event delivery failed",
				zap.String("event_type", string(event.Type())),
				zap.Error(err))
		}
	}
}

func (b *Bus) deliver(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[event.Type()]...)
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.call(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.typ]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, sub.typ)
	} else {
		b.subs[sub.typ] = subs
	}
}

// Shutdown closes the queue, lets the dispatcher deliver what is already
// queued and waits for it or for ctx. It is safe to call more than once.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
		b.logger.Info("Event bus closing", zap.Int("pending", len(b.queue)))
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timed out", zap.Int("pending", len(b.queue)))
		return ctx.Err()
	}
}

// BusStats is a point-in-time view of the bus.
type BusStats struct {
	BufferSize      int
	PendingEvents   int
	HandlersPerType map[EventType]int
}

func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		BufferSize:      cap(b.queue),
		PendingEvents:   len(b.queue),
		HandlersPerType: make(map[EventType]int, len(b.subs)),
	}
	for typ, subs := range b.subs {
		stats.HandlersPerType[typ] = len(subs)
	}
	return stats
}

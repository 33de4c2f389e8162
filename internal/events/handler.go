// internal/events/handler.go
package events

import (
	"context"
	"fmt"
)

// Handler processes events of one type. Handlers run on the dispatcher
// goroutine, one event at a time, so a slow handler delays the ones after it.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Publisher is the fire-and-forget side of the bus.
type Publisher interface {
	Publish(event Event) error
}

type subscription struct {
	id      string
	typ     EventType
	handler Handler
	bus     *Bus
}

func (s *subscription) Unsubscribe() {
	s.bus.remove(s)
}

// call isolates the dispatcher from a panicking handler.
func (s *subscription) call(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return s.handler.Handle(ctx, event)
}

package events

import (
	"sync"

	"github.com/sourcegraph/log"
)

// Subscriber receives every published event synchronously on the
// publisher's goroutine (spec.md §4.5). Subscribers must not block.
type Subscriber interface {
	Publish(Event)
}

// Bus fans out events to subscribers. Publish is safe for concurrent use by
// many publishers; per-task ordering is preserved because each call to
// Publish for a given task happens-before the next (the worker that owns a
// task publishes its own events sequentially, never concurrently with
// itself — spec.md §5).
type Bus struct {
	logger log.Logger

	mu   sync.RWMutex
	subs []namedSubscriber
}

type namedSubscriber struct {
	name string
	sub  Subscriber
}

func NewBus(logger log.Logger) *Bus {
	return &Bus{logger: logger.Scoped("eventbus", "in-process pub/sub for task/strategy/policy/transport events")}
}

// Subscribe registers a subscriber under a name (used for logging when the
// subscriber panics). Returns an unsubscribe function.
func (b *Bus) Subscribe(name string, sub Subscriber) func() {
	b.mu.Lock()
	b.subs = append(b.subs, namedSubscriber{name: name, sub: sub})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.sub == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every current subscriber. A panicking subscriber is
// logged and skipped for this event; it never reaches other subscribers or
// propagates back to the publisher (spec.md §7).
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]namedSubscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s namedSubscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked, skipping for this event",
				log.String("subscriber", s.name),
				log.String("family", ev.Family()),
				log.String("panic", toString(r)),
			)
		}
	}()
	s.sub.Publish(ev)
}

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-error panic value"
}

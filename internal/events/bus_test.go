package events

import (
	"testing"

	"github.com/sourcegraph/log/logtest"
)

type recordingSubscriber struct {
	received []Event
}

func (r *recordingSubscriber) Publish(ev Event) {
	r.received = append(r.received, ev)
}

type panickingSubscriber struct{}

func (panickingSubscriber) Publish(Event) {
	panic("boom")
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus(logtest.Scoped(t))
	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	bus.Subscribe("a", a)
	bus.Subscribe("b", b)

	bus.Publish(TaskStarted{ID: "t1", Kind: "GitClone"})

	if len(a.received) != 1 || len(b.received) != 1 {
		t.Fatalf("expected both subscribers to receive the event, got a=%d b=%d", len(a.received), len(b.received))
	}
}

func TestBusSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewBus(logtest.Scoped(t))
	bus.Subscribe("panicker", panickingSubscriber{})
	ok := &recordingSubscriber{}
	bus.Subscribe("ok", ok)

	bus.Publish(TaskStarted{ID: "t1", Kind: "GitClone"})

	if len(ok.received) != 1 {
		t.Fatalf("expected the well-behaved subscriber to still receive the event, got %d", len(ok.received))
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(logtest.Scoped(t))
	a := &recordingSubscriber{}
	unsub := bus.Subscribe("a", a)
	unsub()

	bus.Publish(TaskStarted{ID: "t1", Kind: "GitClone"})

	if len(a.received) != 0 {
		t.Fatalf("expected unsubscribed subscriber to receive nothing, got %d", len(a.received))
	}
}

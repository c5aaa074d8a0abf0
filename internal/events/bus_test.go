package events

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := NewBus()
	a := b.Subscribe(4)
	c := b.Subscribe(4)
	b.Publish("call.recorded", 3)
	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Topic != "call.recorded" || ev.Payload != 3 {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(1)
	b.Publish("a", nil)
	b.Publish("b", nil)
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", b.Dropped())
	}
	if ev := <-ch; ev.Topic != "a" {
		t.Fatalf("expected first event kept, got %s", ev.Topic)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish("late", nil)
	b.Close()
	if _, ok := <-b.Subscribe(1); ok {
		t.Fatalf("subscribing after close should yield a closed channel")
	}
}

package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeDashboardCycle})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeDashboardCycle || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if e := <-ch; e.Type != "a" {
		t.Fatalf("first event = %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: "after"})
}

func TestFilterKeepsRequestedTypes(t *testing.T) {
	b := New()
	in, unsub := b.Subscribe(8)
	out := Filter(in, 8, TypeGeneratorExpired)

	b.Publish(Event{Type: TypeDashboardCycle})
	b.Publish(Event{Type: TypeGeneratorExpired, Data: "Barn"})
	unsub()

	var got []Event
	for e := range out {
		got = append(got, e)
	}
	if len(got) != 1 || got[0].Data != "Barn" {
		t.Fatalf("filtered = %+v", got)
	}
}

package events

import (
	"strings"
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	s1 := b.Subscribe(1, false)
	s2 := b.Subscribe(2, true)

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(s1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	b.Unsubscribe(s2)
	b.Unsubscribe(s2) // second call is a no-op
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterScopesEventsToOwner(t *testing.T) {
	b := NewBroadcaster()
	alice := b.Subscribe(1, false)
	bob := b.Subscribe(3, false)
	admin := b.Subscribe(2, true)
	defer b.Unsubscribe(alice)
	defer b.Unsubscribe(bob)
	defer b.Unsubscribe(admin)

	b.Publish(Event{Type: EventCreate, Namespace: "user", Path: "docs/a.txt", OwnerID: 1})

	for name, s := range map[string]*Subscriber{"alice": alice, "admin": admin} {
		select {
		case got := <-s.C:
			if got.Path != "docs/a.txt" || got.Timestamp == 0 {
				t.Errorf("%s: got %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out", name)
		}
	}

	select {
	case got := <-bob.C:
		t.Errorf("bob received another user's event: %+v", got)
	default:
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(1, false)
	defer b.Unsubscribe(s)

	// Fill the channel buffer (64)
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventCreate, Path: "overflow.txt", OwnerID: 1})
	}

	count := 0
	for {
		select {
		case <-s.C:
			count++
		default:
			goto done
		}
	}
done:
	if count != 64 {
		t.Errorf("expected 64 buffered events, got %d", count)
	}
}

func TestMarshalEventOmitsOwner(t *testing.T) {
	data, err := MarshalEvent(Event{Type: EventDelete, Path: "gone.txt", OwnerID: 7, Timestamp: 1234567890})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "7,") || strings.Contains(string(data), "Owner") {
		t.Errorf("owner leaked into JSON: %s", data)
	}
}

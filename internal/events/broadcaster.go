// Package events provides an SSE event broadcaster for file change
// notifications.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Shubham6444/host/internal/metrics"
)

const (
	EventCreate  = "create"
	EventModify  = "modify"
	EventDelete  = "delete"
	EventRename  = "rename"
	EventUpload  = "upload"
	EventArchive = "archive"
)

// Event represents a file change in one namespace.
type Event struct {
	Type      string `json:"type"`
	Namespace string `json:"rootPath"`
	Path      string `json:"path"`
	Size      int64  `json:"size,omitempty"`
	Timestamp int64  `json:"timestamp"`

	// OwnerID is the user whose action produced the event.
	OwnerID int64 `json:"-"`
}

// Subscriber receives events visible to one caller.
type Subscriber struct {
	C      chan Event
	userID int64
	admin  bool
}

func (s *Subscriber) sees(e Event) bool {
	return s.admin || s.userID == e.OwnerID
}

// Broadcaster manages SSE subscribers and publishes events. Regular users
// only receive their own events; admins receive everything.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe adds a new subscriber and returns it.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(userID int64, admin bool) *Subscriber {
	s := &Subscriber{C: make(chan Event, 64), userID: userID, admin: admin}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subscribers[s]; ok {
		delete(b.subscribers, s)
		close(s.C)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
}

// Publish sends an event to every subscriber allowed to see it.
// Non-blocking: drops events for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		if !s.sees(event) {
			continue
		}
		select {
		case s.C <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

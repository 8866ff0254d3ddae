package enrollment

import "sync"

// Event types published by a flow.
const (
	EventState      = "state"
	EventNotice     = "notice"
	EventRegistered = "registered"
	EventCheckedIn  = "checked_in"
	EventClosed     = "closed"
)

// eventBuffer is the per-listener channel size.
const eventBuffer = 32

// Event is a flow update delivered to listeners.
type Event struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// EventBroadcaster fans flow events out to listeners.
type EventBroadcaster struct {
	listeners []chan Event
	closed    bool
	mu        sync.RWMutex
}

// AddListener adds an event listener. Listeners added after Close get a closed channel.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, eventBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners without blocking.
func (b *EventBroadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Close delivers a final event and closes every listener.
func (b *EventBroadcaster) Close(final Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, listener := range b.listeners {
		select {
		case listener <- final:
		default:
		}
		close(listener)
	}
	b.listeners = nil
}

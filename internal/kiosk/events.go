package kiosk

import (
	"sync"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
)

// State is the kiosk runtime state.
type State string

const (
	StateStandby     State = "standby"
	StateDetecting   State = "detecting"
	StateRecognizing State = "recognizing"
	StateConfirming  State = "confirming"
	StateProcessing  State = "processing"
	StateSuccess     State = "success"
	StateError       State = "error"
	StateManual      State = "manual"
)

// eventChannelBuffer bounds each listener channel; slow listeners drop
// events instead of stalling the runtime.
const eventChannelBuffer = 32

// Event is one runtime transition or result, streamed to listeners and
// kept as the last result for the status API.
type Event struct {
	Type         string                `json:"type"`
	State        State                 `json:"state"`
	Message      string                `json:"message,omitempty"`
	EmployeeName string                `json:"employee_name,omitempty"`
	Action       attendance.ActionType `json:"action,omitempty"`
	At           time.Time             `json:"at"`
}

// EventBroadcaster provides listener management and event broadcasting for
// the kiosk runtime. The status API attaches listeners to stream state
// transitions.
type EventBroadcaster struct {
	listeners []chan Event
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, eventChannelBuffer)
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

// SendEvent sends an event to all listeners.
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

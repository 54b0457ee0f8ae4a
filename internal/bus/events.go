// Package bus carries chat events from screens to whatever front-end is
// displaying them.
package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"agrisaarthi/internal/domain"
)

const (
	EventMessageAppended = "message.appended"
	EventScreenState     = "screen.state"
	EventRoleChanged     = "role.changed"
)

// Event is one notification. Which fields are set depends on Type:
// Message for message.appended, State for screen.state, Role for role.changed.
type Event struct {
	Type      string
	ChatID    string
	Message   *domain.Message
	State     string
	Role      domain.Role
	Timestamp time.Time
}

type EventHandler func(Event)

// EventBus is a topic-based pub/sub with a bounded history. Handlers run
// synchronously on the emitting goroutine; a panicking handler is logged and
// skipped.
type EventBus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	nextID     int
	logger     *slog.Logger
	history    []Event
	maxHistory int
}

type namedHandler struct {
	ID      string
	Handler EventHandler
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers:   make(map[string][]namedHandler),
		logger:     logger,
		maxHistory: 1000,
	}
}

// On registers a handler for eventType, or for every type with "*".
// The returned ID unsubscribes it via Off.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eventType + "-" + strconv.Itoa(eb.nextID)
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	if len(eb.history) >= eb.maxHistory {
		eb.history = eb.history[1:]
	}
	eb.history = append(eb.history, event)
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range handlers {
		eb.dispatch(h, event)
	}
}

func (eb *EventBus) dispatch(nh namedHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.ID, "panic", r)
		}
	}()
	nh.Handler(event)
}

// Replay returns recorded events of eventType ("*" for all) for chatID
// ("" for every chat), oldest first.
func (eb *EventBus) Replay(eventType, chatID string) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []Event
	for _, e := range eb.history {
		if eventType != "*" && e.Type != eventType {
			continue
		}
		if chatID != "" && e.ChatID != chatID {
			continue
		}
		result = append(result, e)
	}
	return result
}

func (eb *EventBus) HistoryLen() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.history)
}

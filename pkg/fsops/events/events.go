// Package events carries the engine's event stream: throttled progress,
// conflict prompts, and terminal completion, cancellation, and failure
// notifications, delivered over an in-memory bus.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event type identifiers.
const (
	TypeProgress  = "fsops.progress"
	TypeConflict  = "fsops.conflict"
	TypeComplete  = "fsops.complete"
	TypeCancelled = "fsops.cancelled"
	TypeFailed    = "fsops.error"
)

// Progress is the throttled per-operation counter snapshot.
type Progress struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	Phase       string `json:"phase"`
	CurrentFile string `json:"currentFile"`
	FilesDone   int64  `json:"filesDone"`
	FilesTotal  int64  `json:"filesTotal"`
	BytesDone   int64  `json:"bytesDone"`
	BytesTotal  int64  `json:"bytesTotal"`
}

// Conflict asks the subscriber to resolve a destination collision. The
// operation blocks until resolved or its wait times out.
type Conflict struct {
	OperationID    string    `json:"operationId"`
	Kind           string    `json:"kind"`
	SourcePath     string    `json:"sourcePath"`
	DestPath       string    `json:"destPath"`
	SourceSize     int64     `json:"sourceSize"`
	DestSize       int64     `json:"destSize"`
	SourceModified time.Time `json:"sourceModified"`
	DestModified   time.Time `json:"destModified"`
	SourceIsDir    bool      `json:"sourceIsDir"`
	DestIsDir      bool      `json:"destIsDir"`
	// DestIsNewer reports whether the destination was modified after the
	// source. SizeDifference is source size minus destination size.
	DestIsNewer    bool  `json:"destIsNewer"`
	SizeDifference int64 `json:"sizeDifference"`
}

// Complete is the terminal success event.
type Complete struct {
	OperationID string        `json:"operationId"`
	Kind        string        `json:"kind"`
	FilesDone   int64         `json:"filesDone"`
	BytesDone   int64         `json:"bytesDone"`
	Duration    time.Duration `json:"duration"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// Cancelled is the terminal event for a cancelled operation. FilesDone
// counts the items finished before the stop; RolledBack reports whether
// partial output was removed.
type Cancelled struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	FilesDone   int64  `json:"filesDone"`
	RolledBack  bool   `json:"rolledBack"`
}

// Failed is the terminal failure event. Code matches the error taxonomy.
type Failed struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Path        string `json:"path,omitempty"`
}

// Event is a typed payload with its publication time.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// New wraps a payload in an Event stamped with the current time.
func New(eventType string, data any) Event {
	return Event{Type: eventType, Time: time.Now(), Data: data}
}

// Handler processes a published event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// SubscriptionID identifies a subscription.
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is an in-memory publish/subscribe event bus. Handlers for a type run
// in subscription order; a failing handler is logged and skipped.
type Bus struct {
	mu            sync.RWMutex
	handlers      map[string][]subscription
	subscriptions map[SubscriptionID]string
	nextID        int
	logger        zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers:      make(map[string][]subscription),
		subscriptions: make(map[SubscriptionID]string),
		nextID:        1,
		logger:        logger,
	}
}

// Subscribe registers a handler for events of the given type.
func (bus *Bus) Subscribe(eventType string, handler Handler) SubscriptionID {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	subID := SubscriptionID(fmt.Sprintf("sub_%d", bus.nextID))
	bus.nextID++

	bus.handlers[eventType] = append(bus.handlers[eventType], subscription{
		id:      subID,
		handler: handler,
	})
	bus.subscriptions[subID] = eventType

	bus.logger.Debug().
		Str("event_type", eventType).
		Str("subscription_id", string(subID)).
		Int("total_handlers", len(bus.handlers[eventType])).
		Msg("subscribed to event")

	return subID
}

// Unsubscribe removes a handler using its subscription ID.
func (bus *Bus) Unsubscribe(subscriptionID SubscriptionID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	eventType, exists := bus.subscriptions[subscriptionID]
	if !exists {
		bus.logger.Debug().
			Str("subscription_id", string(subscriptionID)).
			Msg("subscription not found for unsubscribe")
		return
	}
	delete(bus.subscriptions, subscriptionID)

	handlers := bus.handlers[eventType]
	for i, sub := range handlers {
		if sub.id == subscriptionID {
			handlers[i] = handlers[len(handlers)-1]
			bus.handlers[eventType] = handlers[:len(handlers)-1]
			return
		}
	}
}

// Publish delivers an event to all handlers for its type synchronously.
func (bus *Bus) Publish(ctx context.Context, event Event) {
	bus.mu.RLock()
	subscriptions := append([]subscription{}, bus.handlers[event.Type]...)
	bus.mu.RUnlock()

	if len(subscriptions) == 0 {
		bus.logger.Trace().
			Str("event_type", event.Type).
			Msg("no handlers for event")
		return
	}

	for _, sub := range subscriptions {
		if err := sub.handler.Handle(ctx, event); err != nil {
			bus.logger.Warn().
				Str("event_type", event.Type).
				Str("subscription_id", string(sub.id)).
				Err(err).
				Msg("event handler failed")
		}
	}
}

// PublishAsync delivers an event on a separate goroutine.
func (bus *Bus) PublishAsync(ctx context.Context, event Event) {
	go bus.Publish(ctx, event)
}

// Package events provides the in-process event bus connecting the
// candle/strategy pipeline to its consumers (trailing, invalidation,
// watch) and the execution core to its observers (API push, audit log).
package events

import (
	"sync"
	"time"
)

// EventType is a closed set of event names emitted by the strategy and
// execution core. No component publishes a dynamically constructed
// event name.
type EventType string

const (
	// Candle Manager
	EventCandleUpdate EventType = "CANDLE_UPDATE"
	EventCandleClose  EventType = "CANDLE_CLOSE"

	// Strategy Engine
	EventStateUpdate     EventType = "STATE_UPDATE"
	EventBiasFlip        EventType = "BIAS_FLIP"
	EventSupertrendFlip  EventType = "SUPERTREND_FLIP"

	// State Machine
	EventPaused  EventType = "PAUSED"
	EventResumed EventType = "RESUMED"
	EventExitClean   EventType = "EXIT_CLEAN"
	EventExitStopped EventType = "EXIT_STOPPED"

	// Trade Contract
	EventLeverageClamped EventType = "LEVERAGE_CLAMPED"
	EventContractRejected EventType = "CONTRACT_REJECTED"

	// Order Manager
	EventOrderPlaced          EventType = "ORDER_PLACED"
	EventOrderPartiallyFilled EventType = "ORDER_PARTIALLY_FILLED"
	EventOrderFilled          EventType = "ORDER_FILLED"
	EventOrderCancelled       EventType = "ORDER_CANCELLED"
	EventOrderRejected        EventType = "ORDER_REJECTED"

	// Position Tracker
	EventPositionOpened EventType = "POSITION_OPENED"
	EventPositionClosed EventType = "POSITION_CLOSED"
	EventPnLUpdate      EventType = "PNL_UPDATE"

	// Two-Layer SL / Trailing / Invalidation
	EventStrategicSLTriggered EventType = "STRATEGIC_SL_TRIGGERED"
	EventSLTrailed            EventType = "SL_TRAILED"
	EventSwingBreak           EventType = "SWING_BREAK"
	EventInvalidationCritical EventType = "INVALIDATION_CRITICAL"

	// Watch Manager
	EventWatchTriggered EventType = "WATCH_TRIGGERED"
	EventWatchExpired   EventType = "WATCH_EXPIRED"

	// Circuit Breaker
	EventCircuitTripped EventType = "CIRCUIT_TRIPPED"
	EventCircuitReset   EventType = "CIRCUIT_RESET"

	// Generic
	EventError EventType = "ERROR"
)

// Event is a single published occurrence with a free-form payload. The
// payload shape is documented per EventType by the publishing component.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber handles a published event.
type Subscriber func(Event)

// Bus fans published events out to per-type and catch-all subscribers.
// Subscribers run in their own goroutine so a slow consumer never blocks
// the publisher's critical section (see the concurrency model: handlers
// mutating per-symbol state must not yield mid-mutation).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers event to all matching subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

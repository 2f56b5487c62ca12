package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTransactionCreated   EventType = "TRANSACTION_CREATED"
	EventTransactionApproved  EventType = "TRANSACTION_APPROVED"
	EventTransactionRejected  EventType = "TRANSACTION_REJECTED"
	EventTransactionCancelled EventType = "TRANSACTION_CANCELLED"
	EventBalanceAdjusted      EventType = "BALANCE_ADJUSTED"
	EventOrderCreated         EventType = "ORDER_CREATED"
	EventOrderActivated       EventType = "ORDER_ACTIVATED"
	EventOrderMatured         EventType = "ORDER_MATURED"
	EventOrderCompleted       EventType = "ORDER_COMPLETED"
	EventReceiptUploaded      EventType = "RECEIPT_UPLOADED"
	EventReceiptReviewed      EventType = "RECEIPT_REVIEWED"
	EventPlanFinalized        EventType = "PLAN_FINALIZED"
	EventSweepFinished        EventType = "SWEEP_FINISHED"
	EventError                EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTransactionDecided publishes a transaction decision event
func (eb *EventBus) PublishTransactionDecided(eventType EventType, txID, userID, txType string, amount float64) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"transaction_id": txID,
			"user_id":        userID,
			"type":           txType,
			"amount":         amount,
		},
	})
}

// PublishOrderEvent publishes an order lifecycle event
func (eb *EventBus) PublishOrderEvent(eventType EventType, orderID, userID, planID, status string) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"order_id": orderID,
			"user_id":  userID,
			"plan_id":  planID,
			"status":   status,
		},
	})
}

// PublishReceiptEvent publishes a receipt lifecycle event
func (eb *EventBus) PublishReceiptEvent(eventType EventType, receiptID, orderID, userID, decision string) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"receipt_id": receiptID,
			"order_id":   orderID,
			"user_id":    userID,
			"decision":   decision,
		},
	})
}

// PublishPlanFinalized publishes a plan finalization result
func (eb *EventBus) PublishPlanFinalized(planID string, rate float64, succeeded, failed int) {
	eb.Publish(Event{
		Type: EventPlanFinalized,
		Data: map[string]interface{}{
			"plan_id":   planID,
			"rate":      rate,
			"succeeded": succeeded,
			"failed":    failed,
		},
	})
}

// PublishSweepFinished publishes a sweep run summary
func (eb *EventBus) PublishSweepFinished(matured, skipped, failed int) {
	eb.Publish(Event{
		Type: EventSweepFinished,
		Data: map[string]interface{}{
			"matured": matured,
			"skipped": skipped,
			"failed":  failed,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

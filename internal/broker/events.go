package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"btl-backend/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishRegistrationCompleted publishes RegistrationCompleted event
func (ep *EventPublisher) PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error {
	key := fmt.Sprintf("%s-%s", event.Kind, event.OrderID)
	if event.OrderID == "" && len(event.RegistrationIDs) > 0 {
		key = fmt.Sprintf("%s-%s", event.Kind, event.RegistrationIDs[0])
	}
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	key := fmt.Sprintf("%s-%s", event.Kind, event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onRegistrationCompleted func(context.Context, *models.RegistrationCompletedEvent) error
	onPaymentFailed         func(context.Context, *models.PaymentFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnRegistrationCompleted registers a handler for RegistrationCompleted events
func (eh *EventHandler) OnRegistrationCompleted(handler func(context.Context, *models.RegistrationCompletedEvent) error) {
	eh.onRegistrationCompleted = handler
}

// OnPaymentFailed registers a handler for PaymentFailed events
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeRegistrationCompleted:
		if eh.onRegistrationCompleted != nil {
			var event models.RegistrationCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RegistrationCompleted event: %w", err)
			}
			return eh.onRegistrationCompleted(ctx, &event)
		}

	case models.EventTypePaymentFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
			}
			return eh.onPaymentFailed(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}

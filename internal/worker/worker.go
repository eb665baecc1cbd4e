package worker

import (
	"context"
	"log"

	"btl-backend/internal/broker"
	"btl-backend/internal/models"
	"btl-backend/internal/notify"
	"btl-backend/internal/util"

	"go.uber.org/zap"
)

// IntentMarker records that confirmation mail went out for an order.
type IntentMarker interface {
	MarkIntentEmailSent(ctx context.Context, orderID string) error
}

// Templates maps registration kinds to mail provider template keys.
type Templates struct {
	School   string
	Team     string
	Workshop string
}

// EmailWorker consumes registration events and sends confirmation mail.
// It runs after the registration has committed, so a mail failure never
// invalidates a registration; the event stays on the topic for redelivery.
type EmailWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	mailer       notify.Mailer
	store        IntentMarker
	templates    Templates
	logger       *zap.Logger
}

// NewEmailWorker creates a new email worker
func NewEmailWorker(
	consumer *broker.Consumer,
	mailer notify.Mailer,
	store IntentMarker,
	templates Templates,
) *EmailWorker {
	w := &EmailWorker{
		consumer:  consumer,
		mailer:    mailer,
		store:     store,
		templates: templates,
		logger:    util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnRegistrationCompleted(w.handleRegistrationCompleted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *EmailWorker) Start(ctx context.Context) error {
	log.Println("Starting email worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *EmailWorker) Stop() error {
	log.Println("Stopping email worker...")
	return w.consumer.Close()
}

func (w *EmailWorker) templateFor(kind string) string {
	switch kind {
	case models.IntentKindSchool:
		return w.templates.School
	case models.IntentKindTeam:
		return w.templates.Team
	default:
		return w.templates.Workshop
	}
}

func (w *EmailWorker) handleRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error {
	recipients := make([]notify.Recipient, 0, len(event.Recipients))
	for _, r := range event.Recipients {
		recipients = append(recipients, notify.Recipient{
			Email:     r.Email,
			Name:      r.Name,
			MergeData: event.MergeData,
		})
	}
	if len(recipients) == 0 {
		w.logger.Warn("Registration event has no recipients",
			zap.String("kind", event.Kind),
			zap.String("order_id", event.OrderID))
		return nil
	}

	if err := w.mailer.SendTemplate(ctx, w.templateFor(event.Kind), recipients); err != nil {
		util.EmailsFailedTotal.Inc()
		w.logger.Error("Failed to send confirmation email",
			zap.String("kind", event.Kind),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		// returning the error leaves the offset uncommitted so the message
		// is retried
		return err
	}
	util.EmailsSentTotal.Inc()

	if event.OrderID != "" && (event.Kind == models.IntentKindSchool || event.Kind == models.IntentKindTeam) {
		if err := w.store.MarkIntentEmailSent(ctx, event.OrderID); err != nil {
			w.logger.Warn("Failed to flag email sent",
				zap.String("order_id", event.OrderID),
				zap.Error(err))
		}
	}

	w.logger.Info("Confirmation email sent",
		zap.String("kind", event.Kind),
		zap.Strings("registration_ids", event.RegistrationIDs))
	return nil
}

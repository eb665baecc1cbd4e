package service

import (
	"context"
	"time"

	"btl-backend/internal/gateway"
	"btl-backend/internal/models"
)

// DataStore is the durable-store surface the registration services depend on.
// Satisfied by *store.Store.
type DataStore interface {
	AllocateNext(ctx context.Context, kind models.CounterKind, key string) (int, error)
	PeekCurrent(ctx context.Context, kind models.CounterKind, key string) (int, error)
	SetTo(ctx context.Context, kind models.CounterKind, key string, value int) error

	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetIntentByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	MarkIntentFailed(ctx context.Context, orderID, reason string) error
	FinalizeSchoolRegistration(ctx context.Context, orderID, paymentID string, newSchool *models.School, schoolRegID string) error
	FinalizeTeamRegistration(ctx context.Context, orderID, paymentID string, teams []models.Team) error
	UpdateIntentPDF(ctx context.Context, orderID, pdfName, pdfBase64 string) error
	MarkIntentEmailSent(ctx context.Context, orderID string) error

	GetSchoolByRegID(ctx context.Context, schoolRegID string) (*models.School, error)
	GetSchoolByEmail(ctx context.Context, email string) (*models.School, error)
	GetTeamsBySchool(ctx context.Context, schoolRegID string) ([]models.Team, error)
	GetTeamByRegID(ctx context.Context, teamRegID string) (*models.Team, error)
	MaxTeamRegID(ctx context.Context, prefix string) (string, error)

	CreateWorkshopRegistration(ctx context.Context, reg *models.WorkshopRegistration) error
	GetWorkshopByEmail(ctx context.Context, email string) (*models.WorkshopRegistration, error)
	ListWorkshopRegistrations(ctx context.Context) ([]models.WorkshopRegistration, error)
	MarkWorkshopPaid(ctx context.Context, registrationID string) error
	DeleteWorkshopRegistration(ctx context.Context, registrationID string) error

	CreateSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, teamRegID, track string) (*models.Submission, error)
}

// Publisher is the domain-event surface, satisfied by *broker.EventPublisher.
type Publisher interface {
	PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// OrderCreator creates gateway payment orders, satisfied by *gateway.Client.
type OrderCreator interface {
	CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*gateway.Order, error)
}

// Cache is the redis surface for webhook locks and terminal verify responses,
// satisfied by *redisclient.Client. A nil Cache disables both.
type Cache interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID string) error
	CacheVerifyResult(ctx context.Context, orderID string, payload []byte, ttl time.Duration) error
	GetCachedVerifyResult(ctx context.Context, orderID string) ([]byte, error)
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"btl-backend/internal/models"
	"btl-backend/internal/regid"
	"btl-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// WorkshopService handles the direct (non-gateway) paid workshop flow.
type WorkshopService struct {
	store     DataStore
	publisher Publisher
	capLimit  int
	logger    *zap.Logger
}

// NewWorkshopService creates a new workshop service
func NewWorkshopService(store DataStore, publisher Publisher, capLimit int) *WorkshopService {
	return &WorkshopService{
		store:     store,
		publisher: publisher,
		capLimit:  capLimit,
		logger:    util.GetLogger(),
	}
}

// WorkshopRequest is a workshop signup payload.
type WorkshopRequest struct {
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact" binding:"required"`
	Email   string `json:"email" binding:"required"`
	School  string `json:"school" binding:"required"`
}

func (s *WorkshopService) validate(req *WorkshopRequest) error {
	req.Name = strings.ToUpper(strings.TrimSpace(req.Name))
	req.School = strings.ToUpper(strings.TrimSpace(req.School))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, req.Contact)
	req.Contact = digits

	switch {
	case req.Name == "":
		return invalidf("name is required")
	case req.School == "":
		return invalidf("school is required")
	}
	if !phonePattern.MatchString(req.Contact) {
		return invalidf("contact must be a valid 10-digit phone number starting with 6-9")
	}
	if !emailPattern.MatchString(req.Email) {
		return invalidf("invalid email address")
	}
	return nil
}

// Register validates a signup, allocates the next workshop sequence and
// persists the registration. The configured cap bounds total signups.
func (s *WorkshopService) Register(ctx context.Context, req *WorkshopRequest) (string, error) {
	ctx, span := util.StartSpan(ctx, "WorkshopService.Register")
	defer span.End()

	if err := s.validate(req); err != nil {
		return "", err
	}

	existing, err := s.store.GetWorkshopByEmail(ctx, req.Email)
	if err != nil {
		return "", fmt.Errorf("failed to check workshop email: %w", err)
	}
	if existing != nil {
		return "", invalidf("email already registered for the workshop")
	}

	seq, err := s.store.AllocateNext(ctx, models.CounterKindWorkshop, regid.WorkshopPrefix)
	if err != nil {
		return "", err
	}
	if seq > s.capLimit {
		return "", invalidf("maximum registrations (%d) reached for the workshop", s.capLimit)
	}

	registrationID, err := regid.FormatWorkshopID(seq)
	if err != nil {
		return "", err
	}

	reg := &models.WorkshopRegistration{
		RegistrationID: registrationID,
		Name:           req.Name,
		Contact:        req.Contact,
		Email:          req.Email,
		School:         req.School,
	}
	if err := s.store.CreateWorkshopRegistration(ctx, reg); err != nil {
		return "", fmt.Errorf("failed to create workshop registration: %w", err)
	}

	util.RegistrationsTotal.WithLabelValues("workshop").Inc()
	s.logger.Info("Workshop registration created",
		zap.String("registration_id", registrationID),
		zap.String("email", req.Email))

	if s.publisher != nil {
		event := &models.RegistrationCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRegistrationCompleted,
				Timestamp: time.Now(),
			},
			Kind:            "workshop",
			RegistrationIDs: []string{registrationID},
			Recipients:      []models.EmailRecipient{{Email: req.Email, Name: req.Name}},
			MergeData: map[string]string{
				"registration_id": registrationID,
				"name":            req.Name,
				"school":          req.School,
			},
		}
		if err := s.publisher.PublishRegistrationCompleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish RegistrationCompleted event", zap.Error(err))
		}
	}

	return registrationID, nil
}

// CheckEmail reports whether an email is still available.
func (s *WorkshopService) CheckEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return invalidf("email is required")
	}
	existing, err := s.store.GetWorkshopByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check workshop email: %w", err)
	}
	if existing != nil {
		return invalidf("email already registered for the workshop")
	}
	return nil
}

// MarkPaid flips the paid flag on a registration.
func (s *WorkshopService) MarkPaid(ctx context.Context, registrationID string) error {
	return s.store.MarkWorkshopPaid(ctx, registrationID)
}

// Delete removes a registration.
func (s *WorkshopService) Delete(ctx context.Context, registrationID string) error {
	return s.store.DeleteWorkshopRegistration(ctx, registrationID)
}

// List returns all registrations, newest first.
func (s *WorkshopService) List(ctx context.Context) ([]models.WorkshopRegistration, error) {
	return s.store.ListWorkshopRegistrations(ctx)
}

// RemainingSeats reports how many workshop seats are still open. It reads
// the same sequence counter Register caps on, so a deleted registration does
// not reopen its seat.
func (s *WorkshopService) RemainingSeats(ctx context.Context) (int, error) {
	current, err := s.store.PeekCurrent(ctx, models.CounterKindWorkshop, regid.WorkshopPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to read workshop counter: %w", err)
	}
	remaining := s.capLimit - current
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"btl-backend/internal/models"
)

// CreateWorkshopRegistration inserts a workshop signup.
func (s *Store) CreateWorkshopRegistration(ctx context.Context, reg *models.WorkshopRegistration) error {
	const query = `
		INSERT INTO workshop_registrations (registration_id, name, contact, email, school, paid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, reg, query,
		reg.RegistrationID, reg.Name, reg.Contact, strings.ToLower(reg.Email), reg.School, reg.Paid)
}

// GetWorkshopByEmail retrieves a workshop registration by email, or nil.
func (s *Store) GetWorkshopByEmail(ctx context.Context, email string) (*models.WorkshopRegistration, error) {
	var reg models.WorkshopRegistration
	err := s.db.GetContext(ctx, &reg,
		"SELECT * FROM workshop_registrations WHERE email = $1", strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ListWorkshopRegistrations returns all workshop signups, newest first.
func (s *Store) ListWorkshopRegistrations(ctx context.Context) ([]models.WorkshopRegistration, error) {
	var regs []models.WorkshopRegistration
	err := s.db.SelectContext(ctx, &regs,
		"SELECT * FROM workshop_registrations ORDER BY created_at DESC")
	return regs, err
}

// MarkWorkshopPaid flips the paid flag on a workshop registration.
func (s *Store) MarkWorkshopPaid(ctx context.Context, registrationID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE workshop_registrations SET paid = TRUE WHERE registration_id = $1", registrationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkshopRegistration removes a workshop signup.
func (s *Store) DeleteWorkshopRegistration(ctx context.Context, registrationID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM workshop_registrations WHERE registration_id = $1", registrationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

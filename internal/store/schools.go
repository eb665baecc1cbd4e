package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"btl-backend/internal/models"
)

// GetSchoolByRegID retrieves a school by registration ID.
func (s *Store) GetSchoolByRegID(ctx context.Context, schoolRegID string) (*models.School, error) {
	var school models.School
	err := s.db.GetContext(ctx, &school,
		"SELECT * FROM schools WHERE school_reg_id = $1", schoolRegID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("school %s: %w", schoolRegID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

// GetSchoolByEmail retrieves a school by its email, or nil if none exists.
// Used for duplicate-registration checks.
func (s *Store) GetSchoolByEmail(ctx context.Context, email string) (*models.School, error) {
	var school models.School
	err := s.db.GetContext(ctx, &school,
		"SELECT * FROM schools WHERE school_email = $1", strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func insertSchoolTx(ctx context.Context, tx sqlxExecer, school *models.School) error {
	const query = `
		INSERT INTO schools (
			school_reg_id, school_name, principal_name, school_contact, school_email,
			coordinator_name, coordinator_number, coordinator_email,
			school_address, school_website, state, district
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`

	return tx.GetContext(ctx, school, query,
		school.SchoolRegID, school.SchoolName, school.PrincipalName,
		school.SchoolContact, strings.ToLower(school.SchoolEmail),
		school.CoordinatorName, school.CoordinatorNumber,
		strings.ToLower(school.CoordinatorEmail),
		school.SchoolAddress, school.SchoolWebsite, school.State, school.District)
}

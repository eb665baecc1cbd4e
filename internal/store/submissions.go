package store

import (
	"context"
	"database/sql"
	"errors"

	"btl-backend/internal/models"
)

// CreateSubmission records one competition submission. The unique constraint
// on (team_reg_id, track) rejects a second submission for the same track.
func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	const query = `
		INSERT INTO submissions (team_reg_id, track, file_ref, file_link, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, sub, query,
		sub.TeamRegID, sub.Track, sub.FileRef, sub.FileLink, sub.Message)
}

// GetSubmission retrieves a team's submission for a track, or nil.
func (s *Store) GetSubmission(ctx context.Context, teamRegID, track string) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.GetContext(ctx, &sub,
		"SELECT * FROM submissions WHERE team_reg_id = $1 AND track = $2", teamRegID, track)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"

	"btl-backend/internal/models"
)

// sqlxExecer is the subset of sqlx.DB/sqlx.Tx the row helpers need.
type sqlxExecer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// GetTeamsBySchool retrieves all teams registered for a school.
func (s *Store) GetTeamsBySchool(ctx context.Context, schoolRegID string) ([]models.Team, error) {
	var teams []models.Team
	err := s.db.SelectContext(ctx, &teams,
		"SELECT * FROM teams WHERE school_reg_id = $1 ORDER BY team_number", schoolRegID)
	return teams, err
}

// GetTeamByRegID retrieves a team by its registration ID.
func (s *Store) GetTeamByRegID(ctx context.Context, teamRegID string) (*models.Team, error) {
	var team models.Team
	err := s.db.GetContext(ctx, &team,
		"SELECT * FROM teams WHERE team_reg_id = $1", teamRegID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// MaxTeamRegID returns the lexicographically highest team registration ID
// with the given prefix, or "" if none exist. IDs share a fixed width per
// prefix, so lexicographic order matches sequence order.
func (s *Store) MaxTeamRegID(ctx context.Context, prefix string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		"SELECT team_reg_id FROM teams WHERE team_reg_id LIKE $1 || '%' ORDER BY team_reg_id DESC LIMIT 1",
		prefix)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertTeamTx(ctx context.Context, tx sqlxExecer, team *models.Team) error {
	const query = `
		INSERT INTO teams (
			school_reg_id, team_name, team_number, team_size, members,
			event, state, team_reg_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return tx.GetContext(ctx, team, query,
		team.SchoolRegID, team.TeamName, team.TeamNumber, team.TeamSize,
		team.Members, team.Event, team.State, team.TeamRegID)
}

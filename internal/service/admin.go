package service

import (
	"context"
	"fmt"

	"btl-backend/internal/models"
	"btl-backend/internal/regid"
	"btl-backend/internal/util"

	"go.uber.org/zap"
)

// AdminService holds operator-facing maintenance operations.
type AdminService struct {
	store  DataStore
	logger *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store DataStore) *AdminService {
	return &AdminService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ResyncTeamCounter overwrites the (event, state) team counter with the
// highest sequence actually present in the team table, by parsing the ID
// suffix of the highest stored registration ID. Operator recovery only; the
// registration path never resyncs, it allocates atomically.
func (s *AdminService) ResyncTeamCounter(ctx context.Context, eventCode, stateName string) (int, error) {
	if !regid.ValidEventCode(eventCode) {
		return 0, invalidf("invalid event code: %s", eventCode)
	}
	stateCode, err := regid.StateCode(stateName)
	if err != nil {
		return 0, invalidf("%v", err)
	}

	key := stateCode + eventCode
	maxID, err := s.store.MaxTeamRegID(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to scan team registrations: %w", err)
	}

	seq := 0
	if maxID != "" {
		seq, err = regid.ParseSequence(maxID)
		if err != nil {
			return 0, fmt.Errorf("stored team id %s is malformed: %w", maxID, err)
		}
	}

	if err := s.store.SetTo(ctx, models.CounterKindTeam, key, seq); err != nil {
		return 0, err
	}

	s.logger.Info("Team counter resynced",
		zap.String("key", key),
		zap.Int("sequence_value", seq))
	return seq, nil
}

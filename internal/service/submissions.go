package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"btl-backend/internal/models"
	"btl-backend/internal/regid"
	"btl-backend/internal/util"

	"go.uber.org/zap"
)

// eventTracks maps competition event codes to the submission track each
// event accepts.
var eventTracks = map[string]string{
	"ASB": models.TrackVideo,
	"SPL": models.TrackVideo,
	"TDM": models.TrackVideo,
	"INV": models.TrackPDF,
	"CDX": models.TrackText,
}

// SubmissionService records one competition submission per team per track.
// Upload mechanics and file storage live elsewhere; it accepts an already
// stored file reference.
type SubmissionService struct {
	store  DataStore
	logger *zap.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(store DataStore) *SubmissionService {
	return &SubmissionService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// SubmissionRequest is one submission payload. FileRef/FileLink are required
// for file tracks, Message for the text track.
type SubmissionRequest struct {
	TeamRegID string `json:"team_reg_id" binding:"required"`
	FileRef   string `json:"file_ref,omitempty"`
	FileLink  string `json:"file_link,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Submit validates and records a submission. The track is derived from the
// event code embedded in the team registration ID.
func (s *SubmissionService) Submit(ctx context.Context, req *SubmissionRequest) (*models.Submission, error) {
	ctx, span := util.StartSpan(ctx, "SubmissionService.Submit")
	defer span.End()

	teamRegID := strings.ToUpper(strings.TrimSpace(req.TeamRegID))
	eventCode, err := regid.TeamEventCode(teamRegID)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	track := eventTracks[eventCode]

	team, err := s.store.GetTeamByRegID(ctx, teamRegID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up team: %w", err)
	}
	if team == nil {
		return nil, invalidf("no registered team with id %s", teamRegID)
	}

	existing, err := s.store.GetSubmission(ctx, teamRegID, track)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if existing != nil {
		return nil, invalidf("a %s submission has already been made for this team", track)
	}

	sub := &models.Submission{
		TeamRegID: teamRegID,
		Track:     track,
	}
	switch track {
	case models.TrackText:
		if strings.TrimSpace(req.Message) == "" {
			return nil, invalidf("message content is required for a text submission")
		}
		sub.Message = sql.NullString{String: req.Message, Valid: true}
	default:
		if req.FileRef == "" {
			return nil, invalidf("a stored file reference is required for a %s submission", track)
		}
		sub.FileRef = sql.NullString{String: req.FileRef, Valid: true}
		if req.FileLink != "" {
			sub.FileLink = sql.NullString{String: req.FileLink, Valid: true}
		}
	}

	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	util.SubmissionsTotal.WithLabelValues(track).Inc()
	s.logger.Info("Submission recorded",
		zap.String("team_reg_id", teamRegID),
		zap.String("track", track))
	return sub, nil
}

package service

import (
	"context"
	"testing"

	"btl-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTestTeam(store *fakeStore, teamRegID, event string) {
	store.teams = append(store.teams, models.Team{
		SchoolRegID: "APVS001",
		TeamName:    "Rocketeers",
		TeamNumber:  1,
		TeamSize:    2,
		Event:       event,
		State:       "Andhra Pradesh",
		TeamRegID:   teamRegID,
	})
}

func TestSubmitVideoTrack(t *testing.T) {
	store := newFakeStore()
	addTestTeam(store, "APASB001", "ASB")
	svc := NewSubmissionService(store)

	sub, err := svc.Submit(context.Background(), &SubmissionRequest{
		TeamRegID: "apasb001",
		FileRef:   "uploads/asb/clip.mp4",
		FileLink:  "https://files.example/clip.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "APASB001", sub.TeamRegID)
	assert.Equal(t, models.TrackVideo, sub.Track)
	assert.Equal(t, "uploads/asb/clip.mp4", sub.FileRef.String)
	assert.Equal(t, "https://files.example/clip.mp4", sub.FileLink.String)
}

func TestSubmitTextTrack(t *testing.T) {
	store := newFakeStore()
	addTestTeam(store, "APCDX001", "CDX")
	svc := NewSubmissionService(store)
	ctx := context.Background()

	_, err := svc.Submit(ctx, &SubmissionRequest{TeamRegID: "APCDX001"})
	assert.ErrorIs(t, err, ErrValidation)

	sub, err := svc.Submit(ctx, &SubmissionRequest{
		TeamRegID: "APCDX001",
		Message:   "print('hello')",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrackText, sub.Track)
	assert.Equal(t, "print('hello')", sub.Message.String)
}

func TestSubmitPDFTrackRequiresFile(t *testing.T) {
	store := newFakeStore()
	addTestTeam(store, "APINV001", "INV")
	svc := NewSubmissionService(store)

	_, err := svc.Submit(context.Background(), &SubmissionRequest{
		TeamRegID: "APINV001",
		Message:   "a message is not a file",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitUnknownTeam(t *testing.T) {
	svc := NewSubmissionService(newFakeStore())

	_, err := svc.Submit(context.Background(), &SubmissionRequest{
		TeamRegID: "APASB001",
		FileRef:   "uploads/clip.mp4",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitMalformedTeamID(t *testing.T) {
	svc := NewSubmissionService(newFakeStore())
	ctx := context.Background()

	_, err := svc.Submit(ctx, &SubmissionRequest{TeamRegID: "APASB1", FileRef: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Submit(ctx, &SubmissionRequest{TeamRegID: "APZZZ001", FileRef: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	store := newFakeStore()
	addTestTeam(store, "APASB001", "ASB")
	svc := NewSubmissionService(store)
	ctx := context.Background()

	_, err := svc.Submit(ctx, &SubmissionRequest{
		TeamRegID: "APASB001",
		FileRef:   "uploads/first.mp4",
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, &SubmissionRequest{
		TeamRegID: "APASB001",
		FileRef:   "uploads/second.mp4",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "already been made")
}

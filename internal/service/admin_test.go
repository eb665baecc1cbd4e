package service

import (
	"context"
	"testing"

	"btl-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResyncTeamCounter(t *testing.T) {
	store := newFakeStore()
	addTestTeam(store, "APASB004", "ASB")
	addTestTeam(store, "APASB017", "ASB")
	addTestTeam(store, "APSPL003", "SPL") // different event, out of scope

	// counter drifted below the stored maximum
	require.NoError(t, store.SetTo(context.Background(), models.CounterKindTeam, "APASB", 5))

	svc := NewAdminService(store)
	seq, err := svc.ResyncTeamCounter(context.Background(), "ASB", "Andhra Pradesh")
	require.NoError(t, err)
	assert.Equal(t, 17, seq)

	current, err := store.PeekCurrent(context.Background(), models.CounterKindTeam, "APASB")
	require.NoError(t, err)
	assert.Equal(t, 17, current)
}

func TestResyncTeamCounterEmptySeries(t *testing.T) {
	store := newFakeStore()
	svc := NewAdminService(store)

	seq, err := svc.ResyncTeamCounter(context.Background(), "ASB", "Andhra Pradesh")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestResyncTeamCounterValidation(t *testing.T) {
	svc := NewAdminService(newFakeStore())

	_, err := svc.ResyncTeamCounter(context.Background(), "ZZZ", "Andhra Pradesh")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ResyncTeamCounter(context.Background(), "ASB", "Atlantis")
	assert.ErrorIs(t, err, ErrValidation)
}

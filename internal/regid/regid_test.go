package regid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSchoolID(t *testing.T) {
	id, err := FormatSchoolID("AP", "VS", 1)
	require.NoError(t, err)
	assert.Equal(t, "APVS001", id)

	id, err = FormatSchoolID("TS", "HY", 42)
	require.NoError(t, err)
	assert.Equal(t, "TSHY042", id)
}

func TestFormatTeamID(t *testing.T) {
	id, err := FormatTeamID("ASB", "AP", 4)
	require.NoError(t, err)
	assert.Equal(t, "APASB004", id)

	id, err = FormatTeamID("INV", "KA", 999)
	require.NoError(t, err)
	assert.Equal(t, "KAINV999", id)
}

func TestFormatWorkshopID(t *testing.T) {
	id, err := FormatWorkshopID(7)
	require.NoError(t, err)
	assert.Equal(t, "AIW007", id)
}

func TestFormatRejectsInvalidSequence(t *testing.T) {
	_, err := FormatSchoolID("AP", "VS", 0)
	assert.Error(t, err)

	_, err = FormatTeamID("ASB", "AP", -3)
	assert.Error(t, err)
}

func TestFormatRejectsExhaustedSequence(t *testing.T) {
	_, err := FormatSchoolID("AP", "VS", 1000)
	assert.ErrorIs(t, err, ErrSequenceExhausted)

	_, err = FormatTeamID("ASB", "AP", MaxSequence+1)
	assert.ErrorIs(t, err, ErrSequenceExhausted)

	_, err = FormatWorkshopID(5000)
	assert.ErrorIs(t, err, ErrSequenceExhausted)
}

// Every valid sequence produces a distinct ID that parses back to the same
// number.
func TestSequenceRoundTrip(t *testing.T) {
	seen := make(map[string]bool, MaxSequence)
	for seq := 1; seq <= MaxSequence; seq++ {
		id, err := FormatTeamID("ASB", "AP", seq)
		require.NoError(t, err)
		require.Len(t, id, 8)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true

		parsed, err := ParseSequence(id)
		require.NoError(t, err)
		require.Equal(t, seq, parsed)
	}
}

func TestParseSequenceRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "AP", "APASBxyz", "APASB-01", "APASB000"} {
		_, err := ParseSequence(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestTeamEventCode(t *testing.T) {
	code, err := TeamEventCode("APASB004")
	require.NoError(t, err)
	assert.Equal(t, "ASB", code)

	code, err = TeamEventCode("tsinv001")
	require.NoError(t, err)
	assert.Equal(t, "INV", code)

	_, err = TeamEventCode("APASB04")
	assert.Error(t, err)

	_, err = TeamEventCode("APXXX004")
	assert.Error(t, err)
}

func TestStateAndDistrictCodes(t *testing.T) {
	code, err := StateCode("Andhra Pradesh")
	require.NoError(t, err)
	assert.Equal(t, "AP", code)

	_, err = StateCode("Atlantis")
	assert.Error(t, err)

	dc, err := DistrictCode("Andhra Pradesh", "Visakhapatnam")
	require.NoError(t, err)
	assert.Equal(t, "VS", dc)

	_, err = DistrictCode("Andhra Pradesh", "Hyderabad")
	assert.Error(t, err)
}

func TestEventCodes(t *testing.T) {
	for _, code := range []string{"ASB", "SPL", "CDX", "TDM", "INV"} {
		assert.True(t, ValidEventCode(code))
		name, ok := EventName(code)
		assert.True(t, ok)
		assert.NotEmpty(t, name)
	}
	assert.False(t, ValidEventCode("ZZZ"))
}

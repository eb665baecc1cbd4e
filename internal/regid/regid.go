// Package regid formats and parses human-readable registration IDs.
// All functions are pure; sequence allocation happens elsewhere.
package regid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxSequence caps every (kind, key) series. The 3-digit zero-padded suffix
// is a fixed-width contract; allocation beyond it is rejected, never widened.
const MaxSequence = 999

// WorkshopPrefix is the fixed counter key and ID prefix for the workshop series.
const WorkshopPrefix = "AIW"

// ErrSequenceExhausted is returned when a sequence exceeds MaxSequence.
var ErrSequenceExhausted = errors.New("sequence exhausted for this series")

func formatSeq(seq int) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("invalid sequence number %d", seq)
	}
	if seq > MaxSequence {
		return "", fmt.Errorf("sequence %d exceeds %d: %w", seq, MaxSequence, ErrSequenceExhausted)
	}
	return fmt.Sprintf("%03d", seq), nil
}

// FormatSchoolID builds a school registration ID, e.g. AP + VS + 001 -> APVS001.
// Codes must already be resolved; see StateCode and DistrictCode.
func FormatSchoolID(stateCode, districtCode string, seq int) (string, error) {
	if stateCode == "" || districtCode == "" {
		return "", fmt.Errorf("missing state or district code")
	}
	suffix, err := formatSeq(seq)
	if err != nil {
		return "", err
	}
	return stateCode + districtCode + suffix, nil
}

// FormatTeamID builds a team registration ID, e.g. AP + ASB + 004 -> APASB004.
func FormatTeamID(eventCode, stateCode string, seq int) (string, error) {
	if eventCode == "" || stateCode == "" {
		return "", fmt.Errorf("missing event or state code")
	}
	suffix, err := formatSeq(seq)
	if err != nil {
		return "", err
	}
	return stateCode + eventCode + suffix, nil
}

// FormatWorkshopID builds a workshop registration ID, e.g. AIW007.
func FormatWorkshopID(seq int) (string, error) {
	suffix, err := formatSeq(seq)
	if err != nil {
		return "", err
	}
	return WorkshopPrefix + suffix, nil
}

// ParseSequence recovers the numeric sequence from the trailing 3 digits of a
// registration ID. Round-trips with the Format functions.
func ParseSequence(id string) (int, error) {
	if len(id) < 4 {
		return 0, fmt.Errorf("registration id %q too short", id)
	}
	suffix := id[len(id)-3:]
	seq, err := strconv.Atoi(suffix)
	if err != nil || strings.Contains(suffix, "-") {
		return 0, fmt.Errorf("registration id %q has non-numeric suffix", id)
	}
	if seq < 1 {
		return 0, fmt.Errorf("registration id %q has invalid sequence", id)
	}
	return seq, nil
}

// TeamEventCode extracts the event code from a team registration ID
// (2-letter state code, 3-letter event code, 3-digit sequence).
func TeamEventCode(teamRegID string) (string, error) {
	if len(teamRegID) != 8 {
		return "", fmt.Errorf("malformed team registration id %q", teamRegID)
	}
	code := strings.ToUpper(teamRegID[2:5])
	if _, ok := EventName(code); !ok {
		return "", fmt.Errorf("unknown event code %q in team id", code)
	}
	return code, nil
}

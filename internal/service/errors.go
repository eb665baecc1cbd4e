package service

import (
	"errors"
	"fmt"
)

// ErrValidation marks permanent input failures: descriptive, surfaced to the
// caller, never partially applied, and never worth a gateway retry.
var ErrValidation = errors.New("validation failed")

// ErrBadSignature marks a signature check failure. Rejected before any side
// effect runs.
var ErrBadSignature = errors.New("invalid signature")

// ErrBadPayload marks a webhook body that verified but did not parse.
var ErrBadPayload = errors.New("malformed payload")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

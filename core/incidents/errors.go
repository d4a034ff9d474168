package incidents

import (
	"errors"

	"securepatrol/core/validation"
)

const NotGuardMessage = "You must be registered as a guard to report incidents."

var (
	ErrNotGuard         = errors.New("caller has no guard profile")
	ErrSequenceOverflow = errors.New("incident sequence exhausted for year")
)

type ValidationError = validation.Errors

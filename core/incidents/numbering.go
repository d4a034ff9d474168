package incidents

import (
	"fmt"
	"time"
)

const MaxSequence = 999999

// Clock returns the current time.
type Clock func() time.Time

// GenerateIncidentNumber formats INC-<year>-<seq> where seq is currentCount+1
// zero-padded to six digits. Counts past MaxSequence are rejected.
func GenerateIncidentNumber(currentCount int64, now time.Time) (string, error) {
	next := currentCount + 1
	if currentCount < 0 || next > MaxSequence {
		return "", fmt.Errorf("%w: %d", ErrSequenceOverflow, next)
	}
	return fmt.Sprintf("INC-%04d-%06d", now.Year(), next), nil
}

package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueUnavailable means the backing store could not be reached
	ErrQueueUnavailable = errors.New("queue is unavailable")

	// ErrJobNotFound means the job id is unknown or no longer in flight
	ErrJobNotFound = errors.New("job not found")
)

// IsUnavailableError reports whether err wraps ErrQueueUnavailable
func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrQueueUnavailable)
}

func jobNotFound(jobID int64) error {
	return fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
}

package models

import "errors"

// ErrStatusConflict is returned by job stores when a conditional status
// update finds the job no longer in the expected source status. The
// lifecycle manager uses it to detect duplicate starts and transitions
// out of terminal states.
var ErrStatusConflict = errors.New("job status conflict")

// ErrJobNotFound is returned by job stores when no job exists for an id.
var ErrJobNotFound = errors.New("job not found")

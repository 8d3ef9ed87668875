package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSweepInProgress is returned when a manual sweep overlaps a running one
	ErrSweepInProgress = errors.New("expiry sweep already in progress")
)

package importer

import "errors"

var (
	// ErrInvalidRequest rejects an empty or malformed source reference
	// before any job is created.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrResolutionFailure means the source reference could not be
	// enumerated; it is terminal for the whole job.
	ErrResolutionFailure = errors.New("resolution failed")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

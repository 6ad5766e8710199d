package dispatch

import "errors"

var (
	// ErrAlreadyRunning is returned when starting a running pool.
	ErrAlreadyRunning = errors.New("dispatch: pool already running")

	// ErrNotRunning is returned when stopping a stopped pool.
	ErrNotRunning = errors.New("dispatch: pool not running")
)

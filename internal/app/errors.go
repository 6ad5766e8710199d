package app

import "errors"

// Application errors.
var (
	// ErrAlreadyRunning indicates the application is already running.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates the application is not running.
	ErrNotRunning = errors.New("application not running")

	// ErrRootInvalid indicates the watch root is missing, unreadable, or
	// not a directory. Fatal at startup.
	ErrRootInvalid = errors.New("root directory invalid")

	// ErrShutdownTimeout indicates the worker pool did not drain within
	// the shutdown grace period.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

package processor

import "errors"

// Processing errors. The chain wraps step failures with these so callers
// can discriminate with errors.Is.
var (
	// ErrProcessFailed wraps an error returned (or a panic recovered)
	// from a processor's Process call.
	ErrProcessFailed = errors.New("processor: execution failed")
)

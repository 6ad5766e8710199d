package lua

import "errors"

// Errors for Lua plugin hosting.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutorClosed is returned when the plugin's executor has shut down.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrNoPluginTable is returned when a plugin script does not return a table.
	ErrNoPluginTable = errors.New("lua: plugin script must return a table")

	// ErrNoProcessFunc is returned when a plugin table lacks a process function.
	ErrNoProcessFunc = errors.New("lua: plugin table must provide a process function")

	// ErrBadResult is returned when a process call returns something other
	// than a result table.
	ErrBadResult = errors.New("lua: process must return a result table")
)

// Package watch turns raw filesystem notifications into at-most-once
// dispatches of stable files.
//
// A Source wraps fsnotify and watches the root tree recursively. The
// Coordinator consumes its events and runs the per-path state machine:
// unseen, pending (re-polled until size and mtime hold still across the
// stability window), then dispatched to the worker pool with an eagerly
// written cooldown entry suppressing follow-up events. ScanExisting seeds
// the same state machine with files already present at startup.
package watch

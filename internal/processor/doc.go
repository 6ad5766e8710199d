// Package processor defines the capability contract every file processor
// satisfies, along with the data types that cross the contract boundary:
// descriptors, configuration options, the per-run processing context, and
// outcomes.
//
// Both built-in processors and runtime-loaded plugin processors implement
// the same Processor interface; the chain and the watcher never distinguish
// them.
package processor

// Package progress reports operation progress to the user.
//
// A Tracker counts units of work and forwards snapshots to a Callback.
// Three callbacks are provided: Bar (in-place text progress bar),
// Spinner (animated spinner for uncounted work) and Silent. A
// MultiStepTracker aggregates weighted steps into one overall
// percentage for multi-stage operations like the full download,
// convert and author pipeline.
package progress

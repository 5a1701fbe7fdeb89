// Package console provides colorized, stream-routed messaging for
// user-facing output.
//
// Errors and warnings go to standard error; success and informational
// messages go to standard output. Color is applied only when the
// process output supports ANSI escape sequences, decided fresh on
// every call so output redirection mid-process is respected.
//
// # Usage
//
//	console.PrintError("disk full", "ERROR")   // stderr, red
//	console.PrintWarning("video skipped")      // stderr, yellow
//	console.PrintSuccess("done", "OK")         // stdout, green
//	console.PrintInfo("starting")              // stdout, blue
//
// With color, a title renders bold in the severity color followed by
// the message in the same color; without color the output is plain
// "title: message".
//
// # Color Detection
//
// SupportsColor returns false when the primary output stream is not an
// interactive terminal. On Windows it additionally requires TERM to be
// xterm or xterm-256color, or the ANSICON variable to be present. On
// all other platforms an interactive terminal is sufficient.
//
// The package does no locking of its own: callers printing from
// multiple goroutines must serialize if whole-message interleaving
// matters.
package console

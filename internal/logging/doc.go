// Package logger provides leveled logging for dvdmaker pipeline
// components.
//
// Output is formatted with semantic prefixes and colors from the
// internal ui package. Verbosity is controlled by three flags on the
// Logger value:
//
//   - Verbose: shows info messages
//   - Debug: shows everything, including trace detail
//   - Quiet: suppresses everything except errors
//
// # Log Methods
//
//	Logger.Tracef() // Shown only with Debug
//	Logger.Debugf() // Shown only with Debug
//	Logger.Infof()  // Shown with Verbose or Debug
//	Logger.Warnf()  // Suppressed only by Quiet
//	Logger.Errorf() // Always shown
//
// # Usage
//
// Create a logger with the desired verbosity and pass it to the
// services that need it:
//
//	log := logger.Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Processing %d videos", count)
package logger

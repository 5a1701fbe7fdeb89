// Package errors defines sentinel errors shared across dvdmaker
// services.
//
// Services wrap these with fmt.Errorf("...: %w", err) to add context
// while callers match on the sentinel with errors.Is. The groups mirror
// the pipeline stages: tool provisioning, downloading, caching,
// conversion and authoring.
package errors

// Package utils provides shared helpers for the dvdmaker pipeline:
// filename normalization for DVD filesystems, file-based locking for
// concurrent cache access, platform detection with tool download URLs,
// and duration formatting.
package utils

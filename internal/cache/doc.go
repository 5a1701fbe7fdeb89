// Package cache manages the on-disk cache of downloaded and converted
// videos.
//
// The cache lives under the configured cache directory:
//
//	downloads/      cached source downloads
//	converted/      cached DVD-ready conversions
//	metadata/       per-video and per-playlist JSON records
//
// Each of downloads/ and converted/ carries a hidden .in-progress
// staging directory. Files are copied there first, verified, and then
// renamed to their final location, so a crash never leaves a partial
// file where a valid artifact is expected. Mutations additionally hold
// a per-video lock file so concurrent runs serialize their writes.
package cache

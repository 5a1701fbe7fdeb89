package errors

import "errors"

// Tool errors indicate problems locating or provisioning external tools.
var (
	// ErrToolNotFound indicates a required external tool could not be located.
	ErrToolNotFound = errors.New("required tool not found")

	// ErrToolDownloadFailed indicates a tool binary could not be downloaded.
	ErrToolDownloadFailed = errors.New("tool download failed")

	// ErrToolValidationFailed indicates a tool binary failed its version probe.
	ErrToolValidationFailed = errors.New("tool validation failed")

	// ErrUnsupportedPlatform indicates the host platform has no tool builds.
	ErrUnsupportedPlatform = errors.New("platform not supported")

	// ErrInvalidArchive indicates a downloaded archive has an unexpected layout.
	ErrInvalidArchive = errors.New("invalid archive structure")
)

// Download errors indicate failures while fetching playlist content.
var (
	// ErrInvalidPlaylistURL indicates the URL does not contain a playlist ID.
	ErrInvalidPlaylistURL = errors.New("invalid playlist URL")

	// ErrEmptyPlaylist indicates the playlist has no retrievable videos.
	ErrEmptyPlaylist = errors.New("playlist is empty or invalid")

	// ErrDownloadFailed indicates a video download did not complete.
	ErrDownloadFailed = errors.New("video download failed")
)

// Cache errors indicate issues with the on-disk artifact cache.
var (
	// ErrNotCached indicates the requested artifact is not in the cache.
	ErrNotCached = errors.New("artifact not cached")

	// ErrChecksumMismatch indicates a cached file no longer matches its checksum.
	ErrChecksumMismatch = errors.New("cached file checksum mismatch")

	// ErrLockTimeout indicates a file lock could not be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for file lock")

	// ErrLockHeld indicates a lock operation on a lock this process already holds.
	ErrLockHeld = errors.New("lock already held by this instance")

	// ErrLockNotHeld indicates a release of a lock that was never acquired.
	ErrLockNotHeld = errors.New("lock not held by this instance")
)

// Conversion and authoring errors indicate failures producing DVD media.
var (
	// ErrConversionFailed indicates ffmpeg could not produce a DVD-compliant file.
	ErrConversionFailed = errors.New("video conversion failed")

	// ErrAuthoringFailed indicates dvdauthor could not build the DVD structure.
	ErrAuthoringFailed = errors.New("DVD authoring failed")

	// ErrCapacityExceeded indicates the content does not fit on the target disc.
	ErrCapacityExceeded = errors.New("DVD capacity exceeded")

	// ErrInvalidStructure indicates the generated VIDEO_TS layout is incomplete.
	ErrInvalidStructure = errors.New("invalid DVD structure")

	// ErrSpumuxUnavailable indicates menu button overlays cannot be generated.
	ErrSpumuxUnavailable = errors.New("spumux is not available")
)

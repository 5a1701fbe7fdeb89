package models

import (
	"fmt"
	"os"
)

// VideoMetadata describes a single video from a playlist.
type VideoMetadata struct {
	VideoID      string
	Title        string
	Duration     int // seconds
	URL          string
	ThumbnailURL string
	Description  string
}

// Validate checks the metadata for required fields.
func (m VideoMetadata) Validate() error {
	if m.VideoID == "" {
		return fmt.Errorf("video_id cannot be empty")
	}
	if m.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if m.Duration < 0 {
		return fmt.Errorf("duration must be non-negative")
	}
	if m.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	return nil
}

// WatchURL returns the public watch URL for the video.
func (m VideoMetadata) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + m.VideoID
}

// VideoFile is a video on disk together with its metadata and
// integrity information.
type VideoFile struct {
	Metadata VideoMetadata
	FilePath string
	FileSize int64  // bytes
	Checksum string // SHA-256, hex encoded
	Format   string // container format, e.g. "mp4", "webm", "mpg"
}

// Validate checks the file record for required fields.
func (f VideoFile) Validate() error {
	if err := f.Metadata.Validate(); err != nil {
		return err
	}
	if f.FileSize < 0 {
		return fmt.Errorf("file_size must be non-negative")
	}
	if f.Checksum == "" {
		return fmt.Errorf("checksum cannot be empty")
	}
	if f.Format == "" {
		return fmt.Errorf("format cannot be empty")
	}
	return nil
}

// Exists reports whether the file is present on disk.
func (f VideoFile) Exists() bool {
	_, err := os.Stat(f.FilePath)
	return err == nil
}

// SizeMB returns the recorded file size in megabytes.
func (f VideoFile) SizeMB() float64 {
	return float64(f.FileSize) / (1024 * 1024)
}

// IsValidSize reports whether the on-disk size matches the record.
func (f VideoFile) IsValidSize() bool {
	info, err := os.Stat(f.FilePath)
	if err != nil {
		return false
	}
	return info.Size() == f.FileSize
}

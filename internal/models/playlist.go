package models

import (
	"fmt"

	"github.com/dvdmaker/dvdmaker/internal/utils"
)

// VideoStatus tracks a video through the download pipeline.
type VideoStatus string

const (
	StatusAvailable   VideoStatus = "available"
	StatusMissing     VideoStatus = "missing"
	StatusPrivate     VideoStatus = "private"
	StatusFailed      VideoStatus = "failed"
	StatusDownloading VideoStatus = "downloading"
	StatusDownloaded  VideoStatus = "downloaded"
)

// PlaylistMetadata describes a playlist without its videos.
type PlaylistMetadata struct {
	PlaylistID        string
	Title             string
	Description       string
	VideoCount        int
	TotalSizeEstimate int64 // bytes, 0 when unknown
}

// Validate checks the metadata for required fields.
func (m PlaylistMetadata) Validate() error {
	if m.PlaylistID == "" {
		return fmt.Errorf("playlist_id cannot be empty")
	}
	if m.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if m.VideoCount < 0 {
		return fmt.Errorf("video_count must be non-negative")
	}
	if m.TotalSizeEstimate < 0 {
		return fmt.Errorf("total_size_estimate must be non-negative")
	}
	return nil
}

// Playlist is an ordered set of videos with per-video pipeline status.
type Playlist struct {
	Metadata PlaylistMetadata
	Videos   []VideoMetadata // original playlist ordering
	Statuses map[string]VideoStatus
}

// NewPlaylist assembles a playlist and gives every video a default
// available status.
func NewPlaylist(metadata PlaylistMetadata, videos []VideoMetadata) *Playlist {
	statuses := make(map[string]VideoStatus, len(videos))
	for _, v := range videos {
		statuses[v.VideoID] = StatusAvailable
	}
	return &Playlist{Metadata: metadata, Videos: videos, Statuses: statuses}
}

// UpdateStatus sets the status of a video in the playlist.
func (p *Playlist) UpdateStatus(videoID string, status VideoStatus) error {
	for _, v := range p.Videos {
		if v.VideoID == videoID {
			p.Statuses[videoID] = status
			return nil
		}
	}
	return fmt.Errorf("video ID %s not found in playlist", videoID)
}

// AvailableVideos returns the videos that can still be processed, in
// playlist order.
func (p *Playlist) AvailableVideos() []VideoMetadata {
	var out []VideoMetadata
	for _, v := range p.Videos {
		switch p.Statuses[v.VideoID] {
		case StatusAvailable, StatusDownloading, StatusDownloaded:
			out = append(out, v)
		}
	}
	return out
}

// FailedVideos returns the videos that cannot be processed.
func (p *Playlist) FailedVideos() []VideoMetadata {
	var out []VideoMetadata
	for _, v := range p.Videos {
		switch p.Statuses[v.VideoID] {
		case StatusMissing, StatusPrivate, StatusFailed:
			out = append(out, v)
		}
	}
	return out
}

// SuccessRate returns the percentage of videos still available.
func (p *Playlist) SuccessRate() float64 {
	if len(p.Videos) == 0 {
		return 0
	}
	return float64(len(p.AvailableVideos())) / float64(len(p.Videos)) * 100
}

// FitsOnDVD reports whether the size estimate fits the given capacity.
// A playlist with no size estimate is assumed to fit.
func (p *Playlist) FitsOnDVD(capacityGB float64) bool {
	if p.Metadata.TotalSizeEstimate == 0 {
		return true
	}
	return float64(p.Metadata.TotalSizeEstimate) <= capacityGB*1024*1024*1024
}

// TotalDuration returns the summed duration of all videos in seconds.
func (p *Playlist) TotalDuration() int {
	total := 0
	for _, v := range p.Videos {
		total += v.Duration
	}
	return total
}

// TotalDurationHuman returns the total duration as "1h 23m 45s".
func (p *Playlist) TotalDurationHuman() string {
	return utils.FormatDuration(p.TotalDuration())
}

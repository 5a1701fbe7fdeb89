package convert

import (
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
)

// DVDCapacityGB is the capacity of a single-layer DVD.
const DVDCapacityGB = 4.7

// ExcludedVideo records a video left off the DVD for capacity reasons.
type ExcludedVideo struct {
	Metadata models.VideoMetadata
	SizeMB   float64
}

// WatchURL returns the YouTube URL for the excluded video.
func (e ExcludedVideo) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + e.Metadata.VideoID
}

// CapacityResult is the outcome of fitting converted videos onto a DVD.
type CapacityResult struct {
	Included       []ConvertedVideo
	Excluded       []ExcludedVideo
	TotalSizeMB    float64
	ExcludedSizeMB float64
}

// HasExclusions reports whether any videos were dropped.
func (r CapacityResult) HasExclusions() bool {
	return len(r.Excluded) > 0
}

// TotalSizeGB returns the size of the included videos in GB.
func (r CapacityResult) TotalSizeGB() float64 {
	return r.TotalSizeMB / 1024
}

// ExcludedSizeGB returns the size of the excluded videos in GB.
func (r CapacityResult) ExcludedSizeGB() float64 {
	return r.ExcludedSizeMB / 1024
}

// SelectForCapacity walks videos in playlist order and includes each
// one that still fits in the remaining capacity. A video that does not
// fit is excluded without ending the selection, so smaller videos
// later in the playlist are still taken.
func SelectForCapacity(log logger.Logger, videos []ConvertedVideo, capacityGB float64) CapacityResult {
	log.Debugf("Selecting videos for DVD capacity: %.1fGB limit, %d videos to process",
		capacityGB, len(videos))

	capacityMB := capacityGB * 1024
	var result CapacityResult

	for _, video := range videos {
		sizeMB := video.SizeMB()
		if result.TotalSizeMB+sizeMB <= capacityMB {
			result.Included = append(result.Included, video)
			result.TotalSizeMB += sizeMB
			continue
		}
		result.Excluded = append(result.Excluded, ExcludedVideo{
			Metadata: video.Metadata,
			SizeMB:   sizeMB,
		})
		result.ExcludedSizeMB += sizeMB
		log.Debugf("Excluding video %s (%s): %.1fMB would exceed capacity",
			video.Metadata.VideoID, video.Metadata.Title, sizeMB)
	}

	if result.HasExclusions() {
		log.Warnf("DVD capacity filtering complete: %d videos included (%.2fGB), %d videos excluded (%.2fGB)",
			len(result.Included), result.TotalSizeGB(), len(result.Excluded), result.ExcludedSizeGB())
	} else {
		log.Infof("All %d videos fit on DVD (%.2fGB / %.1fGB)",
			len(result.Included), result.TotalSizeGB(), capacityGB)
	}
	return result
}

package convert

import (
	"fmt"
	"testing"

	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
)

func videoOfSize(id string, sizeMB float64) ConvertedVideo {
	return ConvertedVideo{
		Metadata: models.VideoMetadata{VideoID: id, Title: "Video " + id},
		FileSize: int64(sizeMB * 1024 * 1024),
	}
}

func TestSelectForCapacityAllFit(t *testing.T) {
	videos := []ConvertedVideo{
		videoOfSize("aaaaaaaaaa1", 1000),
		videoOfSize("aaaaaaaaaa2", 1000),
	}

	result := SelectForCapacity(logger.Logger{Quiet: true}, videos, 4.7)
	if result.HasExclusions() {
		t.Errorf("unexpected exclusions: %+v", result.Excluded)
	}
	if len(result.Included) != 2 {
		t.Errorf("len(Included) = %d, want 2", len(result.Included))
	}
	if result.TotalSizeMB != 2000 {
		t.Errorf("TotalSizeMB = %.1f, want 2000", result.TotalSizeMB)
	}
}

func TestSelectForCapacityExcludesOverflow(t *testing.T) {
	videos := []ConvertedVideo{
		videoOfSize("aaaaaaaaaa1", 3000),
		videoOfSize("aaaaaaaaaa2", 3000),
		videoOfSize("aaaaaaaaaa3", 1000),
	}

	result := SelectForCapacity(logger.Logger{Quiet: true}, videos, 4.7)
	if len(result.Included) != 2 {
		t.Fatalf("len(Included) = %d, want 2 (first and third)", len(result.Included))
	}
	// Playlist order is preserved; the second video is skipped while
	// the smaller third video still fits.
	if result.Included[0].Metadata.VideoID != "aaaaaaaaaa1" ||
		result.Included[1].Metadata.VideoID != "aaaaaaaaaa3" {
		t.Errorf("included = %s, %s", result.Included[0].Metadata.VideoID,
			result.Included[1].Metadata.VideoID)
	}
	if len(result.Excluded) != 1 || result.Excluded[0].Metadata.VideoID != "aaaaaaaaaa2" {
		t.Errorf("excluded = %+v", result.Excluded)
	}
	if result.ExcludedSizeMB != 3000 {
		t.Errorf("ExcludedSizeMB = %.1f, want 3000", result.ExcludedSizeMB)
	}
}

func TestSelectForCapacityEmptyInput(t *testing.T) {
	result := SelectForCapacity(logger.Logger{Quiet: true}, nil, 4.7)
	if len(result.Included) != 0 || result.HasExclusions() {
		t.Errorf("unexpected result for empty input: %+v", result)
	}
}

func TestExcludedVideoWatchURL(t *testing.T) {
	e := ExcludedVideo{Metadata: models.VideoMetadata{VideoID: "abc123def45"}}
	want := "https://www.youtube.com/watch?v=abc123def45"
	if got := e.WatchURL(); got != want {
		t.Errorf("WatchURL() = %q, want %q", got, want)
	}
}

func TestCapacityResultSizes(t *testing.T) {
	result := CapacityResult{TotalSizeMB: 2048, ExcludedSizeMB: 1024}
	if got := result.TotalSizeGB(); got != 2 {
		t.Errorf("TotalSizeGB() = %v, want 2", got)
	}
	if got := result.ExcludedSizeGB(); got != 1 {
		t.Errorf("ExcludedSizeGB() = %v, want 1", got)
	}
}

func ExampleSelectForCapacity() {
	videos := []ConvertedVideo{
		videoOfSize("aaaaaaaaaa1", 2500),
		videoOfSize("aaaaaaaaaa2", 2500),
	}
	result := SelectForCapacity(logger.Logger{Quiet: true}, videos, 4.7)
	fmt.Println(len(result.Included), len(result.Excluded))
	// Output: 1 1
}

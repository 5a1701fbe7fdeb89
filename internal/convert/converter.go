package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dvdmaker/dvdmaker/internal/cache"
	"github.com/dvdmaker/dvdmaker/internal/config"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
	"github.com/dvdmaker/dvdmaker/internal/progress"
	"github.com/dvdmaker/dvdmaker/internal/tools"
)

// DVD-Video encoding targets.
const (
	ntscResolution = "720x480"
	palResolution  = "720x576"
	ntscFramerate  = "29.97"
	palFramerate   = "25"
	videoCodec     = "mpeg2video"
	audioCodec     = "ac3"
	audioBitrate   = "448k"
	videoBitrate   = "6000k"

	conversionTimeout = 2 * time.Hour
	probeTimeout      = 30 * time.Second
)

// ConvertedVideo is a DVD-ready MPEG-2 file with its menu thumbnail.
type ConvertedVideo struct {
	Metadata      models.VideoMetadata `json:"metadata"`
	VideoFile     string               `json:"video_file"`
	ThumbnailFile string               `json:"thumbnail_file"`
	FileSize      int64                `json:"file_size"`
	Checksum      string               `json:"checksum"`
	Duration      int                  `json:"duration"`
	Resolution    string               `json:"resolution"`
	VideoCodec    string               `json:"video_codec"`
	AudioCodec    string               `json:"audio_codec"`
}

// Exists reports whether the converted file is still on disk.
func (v ConvertedVideo) Exists() bool {
	_, err := os.Stat(v.VideoFile)
	return err == nil
}

// SizeMB returns the converted file size in megabytes.
func (v ConvertedVideo) SizeMB() float64 {
	return float64(v.FileSize) / (1024 * 1024)
}

// probeResult mirrors the parts of ffprobe's JSON output we use.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Converter turns downloaded videos into DVD-compatible MPEG-2 files
// with ffmpeg, caching results and their metadata.
type Converter struct {
	settings config.Settings
	log      logger.Logger
	tools    *tools.Manager
	cache    *cache.Manager
	runner   tools.Runner
	callback progress.Callback

	convertedDir string
	metadataFile string

	// ffmpegCmd resolves the ffmpeg argv prefix; tests substitute it.
	ffmpegCmd func(ctx context.Context) ([]string, error)
}

// NewConverter creates a converter that stores results under the cache
// directory's converted/ tree.
func NewConverter(settings config.Settings, log logger.Logger, toolManager *tools.Manager, cacheManager *cache.Manager, callback progress.Callback) (*Converter, error) {
	convertedDir := filepath.Join(settings.CacheDir, "converted")
	if err := os.MkdirAll(convertedDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create converted cache directory: %w", err)
	}
	if callback == nil {
		callback = progress.Silent{}
	}

	c := &Converter{
		settings:     settings,
		log:          log,
		tools:        toolManager,
		cache:        cacheManager,
		runner:       tools.ExecRunner{Log: log},
		callback:     callback,
		convertedDir: convertedDir,
		metadataFile: filepath.Join(convertedDir, "converted_metadata.json"),
	}
	c.ffmpegCmd = func(ctx context.Context) ([]string, error) {
		return c.tools.ToolCommand(ctx, tools.ToolFFmpeg)
	}
	log.Debugf("Converter initialized with cache dir: %s", convertedDir)
	return c, nil
}

func (c *Converter) loadMetadata() map[string]ConvertedVideo {
	data, err := os.ReadFile(c.metadataFile)
	if err != nil {
		return map[string]ConvertedVideo{}
	}
	metadata := map[string]ConvertedVideo{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		c.log.Warnf("Failed to load converted metadata: %v", err)
		return map[string]ConvertedVideo{}
	}
	return metadata
}

func (c *Converter) saveMetadata(metadata map[string]ConvertedVideo) {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		c.log.Errorf("Failed to encode converted metadata: %v", err)
		return
	}
	if err := os.WriteFile(c.metadataFile, data, 0644); err != nil {
		c.log.Errorf("Failed to save converted metadata: %v", err)
	}
}

// ffprobeCmd derives the ffprobe location from the resolved ffmpeg
// command, so a downloaded ffmpeg uses the ffprobe next to it.
func (c *Converter) ffprobeCmd(ctx context.Context) (string, error) {
	cmd, err := c.ffmpegCmd(ctx)
	if err != nil {
		return "", err
	}
	dir, name := filepath.Split(cmd[0])
	return filepath.Join(dir, strings.Replace(name, "ffmpeg", "ffprobe", 1)), nil
}

// probeVideo inspects a video file with ffprobe.
func (c *Converter) probeVideo(ctx context.Context, videoPath string) (probeResult, error) {
	c.log.Debugf("Getting video info for %s", videoPath)

	var info probeResult
	ffprobe, err := c.ffprobeCmd(ctx)
	if err != nil {
		return info, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	result, err := c.runner.Run(probeCtx, ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	if err != nil {
		return info, fmt.Errorf("%w: failed to analyze video: %v", dvderrors.ErrConversionFailed, err)
	}
	if result.ExitCode != 0 {
		return info, fmt.Errorf("%w: ffprobe failed: %s",
			dvderrors.ErrConversionFailed, strings.TrimSpace(result.Stderr))
	}
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return info, fmt.Errorf("%w: failed to parse ffprobe output: %v", dvderrors.ErrConversionFailed, err)
	}
	return info, nil
}

// dvdFormat returns the target resolution and framerate from the
// configured video format.
func (c *Converter) dvdFormat() (string, string) {
	if strings.ToUpper(c.settings.VideoFormat) == "PAL" {
		c.log.Debugf("Using PAL format: %s at %s fps", palResolution, palFramerate)
		return palResolution, palFramerate
	}
	c.log.Debugf("Using NTSC format: %s at %s fps", ntscResolution, ntscFramerate)
	return ntscResolution, ntscFramerate
}

// conversionArgs builds the ffmpeg arguments for a DVD conversion.
func (c *Converter) conversionArgs(inputPath, outputPath, resolution, framerate string) []string {
	if c.settings.CarDVDCompatibility {
		c.log.Debugf("Using car DVD compatibility encoding settings")
		return []string{
			"-i", inputPath,
			"-c:v", videoCodec,
			"-pix_fmt", "yuv420p",
			"-flags", "+ilme+ildct",
			"-top", "1",
			"-b:v", "3500k",
			"-maxrate", "6000k",
			"-minrate", "3500k",
			"-bufsize", "1835008",
			"-s", resolution,
			"-r", framerate,
			"-aspect", c.settings.AspectRatio,
			"-vf", "yadif=0:-1:0,setsar=32/27",
			"-g", "12",
			"-bf", "0",
			"-c:a", audioCodec,
			"-b:a", "192k",
			"-ac", "2",
			"-ar", "48000",
			"-f", "dvd",
			"-y",
			outputPath,
		}
	}

	isNTSC := strings.Contains(resolution, "480")
	gopSize := "12"
	colorspace := "bt470bg"
	colorTrc := "gamma28"
	if isNTSC {
		gopSize = "15"
		colorspace = "smpte170m"
		colorTrc = "smpte170m"
	}

	return []string{
		"-i", inputPath,
		"-c:v", videoCodec,
		"-pix_fmt", "yuv420p",
		"-b:v", videoBitrate,
		"-s", resolution,
		"-r", framerate,
		"-aspect", c.settings.AspectRatio,
		"-flags", "+ilme+ildct",
		"-top", "1",
		"-g", gopSize,
		"-bf", "2",
		"-flags2", "+bpyramid",
		"-sc_threshold", "40",
		"-colorspace", colorspace,
		"-color_primaries", colorspace,
		"-color_trc", colorTrc,
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-ac", "2",
		"-ar", "48000",
		"-f", "dvd",
		"-muxrate", "10080000",
		"-maxrate", "8000000",
		"-minrate", "0",
		"-bufsize", "1835008",
		"-packetsize", "2048",
		"-muxpreload", "0.2",
		"-y",
		outputPath,
	}
}

// thumbnailArgs builds the ffmpeg arguments for a DVD menu thumbnail.
func thumbnailArgs(inputPath, outputPath string, timestamp int) []string {
	return []string{
		"-i", inputPath,
		"-ss", strconv.Itoa(timestamp),
		"-vframes", "1",
		"-s", "160x120",
		"-y",
		outputPath,
	}
}

func (c *Converter) runFFmpeg(ctx context.Context, operation string, args []string) error {
	cmd, err := c.ffmpegCmd(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", dvderrors.ErrConversionFailed, err)
	}
	argv := append(append([]string{}, cmd[1:]...), args...)

	runCtx, cancel := context.WithTimeout(ctx, conversionTimeout)
	defer cancel()

	result, err := c.runner.Run(runCtx, cmd[0], argv...)
	if err != nil {
		return fmt.Errorf("%w: %s failed: %v", dvderrors.ErrConversionFailed, operation, err)
	}
	if result.ExitCode != 0 {
		c.log.Errorf("%s failed: %s", operation, strings.TrimSpace(result.Stderr))
		return fmt.Errorf("%w: %s failed: %s",
			dvderrors.ErrConversionFailed, operation, strings.TrimSpace(result.Stderr))
	}
	c.log.Debugf("%s completed successfully", operation)
	return nil
}

// IsConverted reports whether a video already has a valid cached
// conversion, verifying the recorded size against the file on disk.
func (c *Converter) IsConverted(videoID string) bool {
	metadata := c.loadMetadata()
	entry, ok := metadata[videoID]
	if !ok {
		c.log.Debugf("Video %s not found in converted cache", videoID)
		return false
	}

	info, err := os.Stat(entry.VideoFile)
	if err != nil {
		c.log.Debugf("Converted file for %s does not exist", videoID)
		return false
	}
	if info.Size() != entry.FileSize {
		c.log.Warnf("Size mismatch for converted %s: expected %d, got %d",
			videoID, entry.FileSize, info.Size())
		return false
	}
	return true
}

// CachedConversion returns the cached conversion for a video, if valid.
func (c *Converter) CachedConversion(videoID string) (ConvertedVideo, bool) {
	if !c.IsConverted(videoID) {
		return ConvertedVideo{}, false
	}
	entry := c.loadMetadata()[videoID]
	return entry, true
}

// ConvertVideo converts a downloaded video to DVD format, producing
// the MPEG-2 file and a menu thumbnail.
func (c *Converter) ConvertVideo(ctx context.Context, videoFile models.VideoFile) (ConvertedVideo, error) {
	videoID := videoFile.Metadata.VideoID
	c.log.Debugf("Starting conversion of video %s", videoID)

	if !c.settings.ForceConvert {
		if converted, ok := c.CachedConversion(videoID); ok {
			c.log.Debugf("Video %s already converted, using cached version", videoID)
			return converted, nil
		}
	}

	if !videoFile.Exists() {
		return ConvertedVideo{}, fmt.Errorf("%w: input video file does not exist: %s",
			dvderrors.ErrConversionFailed, videoFile.FilePath)
	}

	if _, err := c.probeVideo(ctx, videoFile.FilePath); err != nil {
		return ConvertedVideo{}, err
	}
	resolution, framerate := c.dvdFormat()

	outputDir := filepath.Join(c.convertedDir, videoID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return ConvertedVideo{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	convertedPath := filepath.Join(outputDir, videoID+"_dvd.mpg")
	thumbnailPath := filepath.Join(outputDir, videoID+"_thumb.jpg")

	tempVideo := convertedPath + ".tmp"
	tempThumb := thumbnailPath + ".tmp"
	cleanup := func() {
		for _, path := range []string{tempVideo, tempThumb, convertedPath, thumbnailPath} {
			_ = os.Remove(path)
		}
	}

	if err := c.runFFmpeg(ctx, "Converting "+videoID,
		c.conversionArgs(videoFile.FilePath, tempVideo, resolution, framerate)); err != nil {
		cleanup()
		return ConvertedVideo{}, err
	}

	thumbTime := 30
	if half := videoFile.Metadata.Duration / 2; half < thumbTime {
		thumbTime = half
	}
	if err := c.runFFmpeg(ctx, "Generating thumbnail for "+videoID,
		thumbnailArgs(videoFile.FilePath, tempThumb, thumbTime)); err != nil {
		cleanup()
		return ConvertedVideo{}, err
	}

	if err := os.Rename(tempVideo, convertedPath); err != nil {
		cleanup()
		return ConvertedVideo{}, fmt.Errorf("failed to finalize converted file: %w", err)
	}
	if err := os.Rename(tempThumb, thumbnailPath); err != nil {
		cleanup()
		return ConvertedVideo{}, fmt.Errorf("failed to finalize thumbnail: %w", err)
	}

	info, err := os.Stat(convertedPath)
	if err != nil {
		cleanup()
		return ConvertedVideo{}, fmt.Errorf("converted file missing after rename: %w", err)
	}
	checksum, err := cache.ChecksumFile(convertedPath)
	if err != nil {
		cleanup()
		return ConvertedVideo{}, err
	}

	converted := ConvertedVideo{
		Metadata:      videoFile.Metadata,
		VideoFile:     convertedPath,
		ThumbnailFile: thumbnailPath,
		FileSize:      info.Size(),
		Checksum:      checksum,
		Duration:      videoFile.Metadata.Duration,
		Resolution:    resolution,
		VideoCodec:    videoCodec,
		AudioCodec:    audioCodec,
	}

	// Prefer the actual properties of the produced file when ffprobe
	// can read it back.
	if probed, err := c.probeVideo(ctx, convertedPath); err == nil {
		if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			converted.Duration = int(d)
		}
		for _, stream := range probed.Streams {
			switch stream.CodecType {
			case "video":
				converted.Resolution = fmt.Sprintf("%dx%d", stream.Width, stream.Height)
				converted.VideoCodec = stream.CodecName
			case "audio":
				converted.AudioCodec = stream.CodecName
			}
		}
	}

	metadata := c.loadMetadata()
	metadata[videoID] = converted
	c.saveMetadata(metadata)

	c.log.Infof("Successfully converted %s: %.1fMB %s %s/%s",
		videoID, converted.SizeMB(), converted.Resolution,
		converted.VideoCodec, converted.AudioCodec)
	return converted, nil
}

// ConvertVideos converts a batch of videos, continuing past individual
// failures and returning the successful conversions in input order.
func (c *Converter) ConvertVideos(ctx context.Context, videoFiles []models.VideoFile) []ConvertedVideo {
	c.log.Debugf("Starting batch conversion of %d videos", len(videoFiles))

	var converted []ConvertedVideo
	var failed []string

	for i, videoFile := range videoFiles {
		c.callback.Update(progress.Info{
			Current: i,
			Total:   len(videoFiles),
			Message: fmt.Sprintf("Converting videos (%d/%d)", i+1, len(videoFiles)),
		})

		result, err := c.ConvertVideo(ctx, videoFile)
		if err != nil {
			msg := fmt.Sprintf("Failed to convert %s: %v", videoFile.Metadata.VideoID, err)
			c.log.Errorf("%s", msg)
			failed = append(failed, msg)
			continue
		}
		converted = append(converted, result)
		c.log.Debugf("Converted %d/%d: %s", i+1, len(videoFiles), videoFile.Metadata.VideoID)
	}

	c.callback.Complete("Video conversion complete")
	c.log.Infof("Batch conversion complete: %d successful, %d failed", len(converted), len(failed))
	if len(failed) > 0 {
		c.log.Warnf("Some conversions failed: %v", failed)
	}
	return converted
}

// ConversionStats summarizes the converted cache.
type ConversionStats struct {
	TotalVideos   int
	TotalSizeMB   float64
	AverageSizeMB float64
	Formats       map[string]int
}

// Stats reports statistics about converted videos.
func (c *Converter) Stats() ConversionStats {
	metadata := c.loadMetadata()
	stats := ConversionStats{Formats: map[string]int{}}
	if len(metadata) == 0 {
		return stats
	}

	var totalSize int64
	for _, entry := range metadata {
		totalSize += entry.FileSize
		codec := entry.VideoCodec + "/" + entry.AudioCodec
		stats.Formats[codec]++
	}
	stats.TotalVideos = len(metadata)
	stats.TotalSizeMB = float64(totalSize) / (1024 * 1024)
	stats.AverageSizeMB = stats.TotalSizeMB / float64(len(metadata))
	return stats
}

// CleanupCache removes old converted files, keeping the given number
// of most recent entries.
func (c *Converter) CleanupCache(keepRecent int) {
	c.log.Infof("Cleaning up conversion cache, keeping %d recent files", keepRecent)

	metadata := c.loadMetadata()
	if len(metadata) <= keepRecent {
		c.log.Debugf("No cleanup needed")
		return
	}

	ids := make([]string, 0, len(metadata))
	for id := range metadata {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	removeCount := len(ids) - keepRecent
	if keepRecent <= 0 {
		removeCount = len(ids)
	}
	for _, id := range ids[:removeCount] {
		entry := metadata[id]
		_ = os.Remove(entry.VideoFile)
		_ = os.Remove(entry.ThumbnailFile)
		_ = os.Remove(filepath.Dir(entry.VideoFile))
		delete(metadata, id)
		c.log.Debugf("Removed converted video: %s", entry.VideoFile)
	}
	c.saveMetadata(metadata)
}

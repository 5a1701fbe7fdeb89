package download

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
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

// videoDownloadTimeout bounds a single video download.
const videoDownloadTimeout = time.Hour

// playlistIDPatterns match the YouTube playlist URL formats we accept.
var playlistIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]list=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`youtube\.com/playlist\?.*list=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`youtu\.be/.*[?&]list=([a-zA-Z0-9_-]+)`),
}

// Downloader fetches playlist metadata and videos with yt-dlp, storing
// results through the cache manager.
type Downloader struct {
	settings config.Settings
	log      logger.Logger
	cache    *cache.Manager
	tools    *tools.Manager
	runner   tools.Runner

	// ytdlpCmd resolves the yt-dlp argv prefix; tests substitute it.
	ytdlpCmd func(ctx context.Context) ([]string, error)
}

// NewDownloader creates a downloader backed by the given cache and
// tool managers.
func NewDownloader(settings config.Settings, log logger.Logger, cacheManager *cache.Manager, toolManager *tools.Manager) *Downloader {
	log.Debugf("Downloader initialized with cache_dir=%s, rate_limit=%s",
		settings.CacheDir, settings.DownloadRateLimit)
	d := &Downloader{
		settings: settings,
		log:      log,
		cache:    cacheManager,
		tools:    toolManager,
		runner:   tools.ExecRunner{Log: log},
	}
	d.ytdlpCmd = d.ensureYtdlp
	return d
}

// ExtractPlaylistID pulls the playlist ID out of a YouTube URL.
func ExtractPlaylistID(playlistURL string) (string, error) {
	for _, pattern := range playlistIDPatterns {
		if match := pattern.FindStringSubmatch(playlistURL); match != nil {
			return match[1], nil
		}
	}
	return "", fmt.Errorf("%w: %s", dvderrors.ErrInvalidPlaylistURL, playlistURL)
}

// ValidateURL reports whether a URL is a supported YouTube playlist.
func (d *Downloader) ValidateURL(url string) bool {
	_, err := ExtractPlaylistID(url)
	if err != nil {
		d.log.Debugf("URL validation failed: %s", url)
		return false
	}
	d.log.Debugf("URL validation successful: %s", url)
	return true
}

// ensureYtdlp makes sure yt-dlp is usable, downloading it when absent.
func (d *Downloader) ensureYtdlp(ctx context.Context) ([]string, error) {
	if !d.tools.IsAvailableLocally(tools.ToolYtdlp) && !d.settings.UseSystemTools {
		d.log.Infof("yt-dlp not found, downloading...")
		if err := d.tools.DownloadTool(ctx, tools.ToolYtdlp); err != nil {
			return nil, fmt.Errorf("yt-dlp is not available and could not be downloaded: %w", err)
		}
	}
	cmd, err := d.tools.ToolCommand(ctx, tools.ToolYtdlp)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp is not available: %w", err)
	}
	return cmd, nil
}

// runYtdlp runs yt-dlp with the given arguments and returns stdout.
func (d *Downloader) runYtdlp(ctx context.Context, args []string, timeout time.Duration) (string, error) {
	cmd, err := d.ytdlpCmd(ctx)
	if err != nil {
		return "", err
	}
	argv := append(append([]string{}, cmd[1:]...), args...)

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := d.runner.Run(runCtx, cmd[0], argv...)
	if err != nil {
		return "", fmt.Errorf("failed to execute yt-dlp: %w", err)
	}
	if result.ExitCode != 0 {
		stderr := strings.TrimSpace(result.Stderr)
		if stderr == "" {
			stderr = "no error output"
		}
		d.log.Errorf("yt-dlp failed with return code %d: %s", result.ExitCode, stderr)
		return "", fmt.Errorf("%w: yt-dlp exited with code %d: %s",
			dvderrors.ErrDownloadFailed, result.ExitCode, stderr)
	}
	return result.Stdout, nil
}

func (d *Downloader) baseArgs() []string {
	return []string{
		"--no-warnings",
		"--limit-rate", d.settings.DownloadRateLimit,
		"--cache-dir", filepath.Join(d.settings.CacheDir, "yt-dlp-cache"),
	}
}

// ExtractPlaylistMetadata fetches basic playlist information, serving
// it from cache when available.
func (d *Downloader) ExtractPlaylistMetadata(ctx context.Context, playlistURL string, callback progress.Callback) (models.PlaylistMetadata, error) {
	d.log.Debugf("Extracting playlist metadata from: %s", playlistURL)
	tracker := progress.NewTracker(1, callback, "Extracting playlist metadata...")

	playlistID, err := ExtractPlaylistID(playlistURL)
	if err != nil {
		tracker.Error(err.Error())
		return models.PlaylistMetadata{}, err
	}

	if cached, ok := d.cache.CachedPlaylistMetadata(playlistID); ok {
		d.log.Debugf("Using cached playlist metadata for %s", playlistID)
		tracker.Complete("Used cached playlist metadata")
		return cached, nil
	}

	args := append(d.baseArgs(), "--flat-playlist", "--dump-json", playlistURL)
	stdout, err := d.runYtdlp(ctx, args, 0)
	if err != nil {
		tracker.Error(err.Error())
		return models.PlaylistMetadata{}, err
	}

	lines := splitLines(stdout)
	if len(lines) == 0 {
		err := fmt.Errorf("%w: no output from yt-dlp playlist extraction", dvderrors.ErrDownloadFailed)
		tracker.Error(err.Error())
		return models.PlaylistMetadata{}, err
	}

	// The first JSON line describes the playlist itself.
	var playlistData struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &playlistData); err != nil {
		tracker.Error(err.Error())
		return models.PlaylistMetadata{}, fmt.Errorf("failed to parse playlist metadata: %w", err)
	}

	title := playlistData.Title
	if title == "" {
		title = "Playlist " + playlistID
	}
	metadata := models.PlaylistMetadata{
		PlaylistID:  playlistID,
		Title:       title,
		Description: playlistData.Description,
		VideoCount:  len(lines) - 1,
	}

	if err := d.cache.StorePlaylistMetadata(metadata); err != nil {
		d.log.Warnf("Failed to cache playlist metadata: %v", err)
	}

	tracker.Complete("Extracted metadata for playlist: " + metadata.Title)
	d.log.Infof("Successfully extracted playlist metadata: %s (%d videos)",
		metadata.Title, metadata.VideoCount)
	return metadata, nil
}

// ytdlpEntry is one flat-playlist JSON line from yt-dlp.
type ytdlpEntry struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	URL         string  `json:"url"`
	WebpageURL  string  `json:"webpage_url"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description"`
}

// ExtractPlaylistVideos fetches per-video metadata for a playlist in
// playlist order. Unparseable entries are skipped with a warning.
func (d *Downloader) ExtractPlaylistVideos(ctx context.Context, playlistURL string, callback progress.Callback) ([]models.VideoMetadata, error) {
	d.log.Debugf("Extracting video metadata from playlist: %s", playlistURL)
	tracker := progress.NewTracker(1, callback, "Extracting video metadata...")

	args := append(d.baseArgs(), "--flat-playlist", "--dump-json", playlistURL)
	stdout, err := d.runYtdlp(ctx, args, 0)
	if err != nil {
		tracker.Error(err.Error())
		return nil, err
	}

	lines := splitLines(stdout)
	if len(lines) < 2 {
		err := fmt.Errorf("%w: playlist appears to be empty or invalid", dvderrors.ErrEmptyPlaylist)
		tracker.Error(err.Error())
		return nil, err
	}

	var videos []models.VideoMetadata
	for i, line := range lines[1:] {
		var entry ytdlpEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			d.log.Warnf("Failed to parse video metadata line %d: %v", i+1, err)
			continue
		}

		url := entry.URL
		if url == "" {
			url = entry.WebpageURL
		}
		title := entry.Title
		if title == "" {
			title = fmt.Sprintf("Video %d", i+1)
		}
		videos = append(videos, models.VideoMetadata{
			VideoID:      entry.ID,
			Title:        title,
			Duration:     int(entry.Duration),
			URL:          url,
			ThumbnailURL: entry.Thumbnail,
			Description:  entry.Description,
		})
	}

	tracker.Complete(fmt.Sprintf("Extracted metadata for %d videos", len(videos)))
	d.log.Debugf("Successfully extracted %d video metadata entries", len(videos))
	return videos, nil
}

// ExtractFullPlaylist fetches playlist metadata and videos together.
func (d *Downloader) ExtractFullPlaylist(ctx context.Context, playlistURL string, callback progress.Callback) (*models.Playlist, error) {
	d.log.Debugf("Extracting complete playlist: %s", playlistURL)

	metadata, err := d.ExtractPlaylistMetadata(ctx, playlistURL, callback)
	if err != nil {
		return nil, err
	}
	videos, err := d.ExtractPlaylistVideos(ctx, playlistURL, callback)
	if err != nil {
		return nil, err
	}

	if len(videos) != metadata.VideoCount {
		d.log.Debugf("Updating video count: %d -> %d", metadata.VideoCount, len(videos))
		metadata.VideoCount = len(videos)
	}

	playlist := models.NewPlaylist(metadata, videos)
	d.log.Infof("Successfully extracted complete playlist: %s (%d videos)",
		metadata.Title, len(videos))
	return playlist, nil
}

// DownloadVideo downloads a single video into the cache and updates
// its status on the playlist. It reports success rather than
// returning an error so a playlist download can continue past
// individual failures.
func (d *Downloader) DownloadVideo(ctx context.Context, video models.VideoMetadata, playlist *models.Playlist, callback progress.Callback) bool {
	d.log.Infof("Downloading video: %s (%s)", video.Title, video.VideoID)
	tracker := progress.NewTracker(1, callback, "Downloading: "+video.Title)

	_ = playlist.UpdateStatus(video.VideoID, models.StatusDownloading)

	if _, err := d.cache.CachedDownload(video.VideoID); err == nil {
		d.log.Debugf("Video %s found in cache", video.VideoID)
		_ = playlist.UpdateStatus(video.VideoID, models.StatusDownloaded)
		tracker.Complete("Used cached download")
		return true
	}

	cached, err := d.fetchVideo(ctx, video)
	if err != nil {
		d.log.Errorf("Failed to download video %s: %v", video.VideoID, err)
		_ = playlist.UpdateStatus(video.VideoID, models.StatusFailed)
		tracker.Error("Download failed: " + err.Error())
		return false
	}

	_ = playlist.UpdateStatus(video.VideoID, models.StatusDownloaded)
	tracker.Complete("Downloaded: " + video.Title)
	d.log.Infof("Successfully downloaded video: %s (%.1fMB)", video.Title, cached.SizeMB())
	return true
}

func (d *Downloader) fetchVideo(ctx context.Context, video models.VideoMetadata) (models.VideoFile, error) {
	tempDir, err := os.MkdirTemp(d.settings.TempDir, "dvdmaker_download_")
	if err != nil {
		return models.VideoFile{}, fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	args := []string{
		"--format", d.settings.VideoQuality,
		"--output", filepath.Join(tempDir, "%(id)s.%(ext)s"),
		"--limit-rate", d.settings.DownloadRateLimit,
		"--cache-dir", filepath.Join(d.settings.CacheDir, "yt-dlp-cache"),
		"--no-warnings",
		video.URL,
	}
	if _, err := d.runYtdlp(ctx, args, videoDownloadTimeout); err != nil {
		return models.VideoFile{}, err
	}

	matches, err := filepath.Glob(filepath.Join(tempDir, video.VideoID+".*"))
	if err != nil || len(matches) == 0 {
		return models.VideoFile{}, fmt.Errorf("%w: no downloaded file found for %s",
			dvderrors.ErrDownloadFailed, video.VideoID)
	}
	d.log.Debugf("Downloaded file: %s", matches[0])

	return d.cache.StoreDownload(video.VideoID, matches[0], video)
}

// DownloadPlaylist extracts a playlist and downloads every video in
// it, returning the playlist with final per-video statuses.
func (d *Downloader) DownloadPlaylist(ctx context.Context, playlistURL string, callback progress.Callback) (*models.Playlist, error) {
	d.log.Debugf("Starting playlist download: %s", playlistURL)

	playlist, err := d.ExtractFullPlaylist(ctx, playlistURL, callback)
	if err != nil {
		return nil, err
	}

	if !playlist.FitsOnDVD(4.7) {
		d.log.Warnf("Playlist %s may exceed DVD capacity", playlist.Metadata.Title)
	}

	total := len(playlist.Videos)
	successful := 0
	tracker := progress.NewTracker(total, callback, fmt.Sprintf("Downloading %d videos...", total))

	for i, video := range playlist.Videos {
		tracker.Update(0, fmt.Sprintf("Downloading %d/%d: %s", i+1, total, video.Title))

		if d.cache.IsDownloadCached(video.VideoID, "mp4") {
			d.log.Debugf("Video %s already cached, skipping", video.VideoID)
			_ = playlist.UpdateStatus(video.VideoID, models.StatusDownloaded)
			successful++
			tracker.Update(1, "Cached: "+video.Title)
			continue
		}

		if d.DownloadVideo(ctx, video, playlist, nil) {
			successful++
			tracker.Update(1, "Downloaded: "+video.Title)
		} else {
			tracker.Update(1, "Failed: "+video.Title)
		}
	}

	switch {
	case successful == total:
		message := fmt.Sprintf("Downloaded all %d videos successfully", total)
		tracker.Complete(message)
		d.log.Debugf("%s", message)
	case successful > 0:
		message := fmt.Sprintf("Downloaded %d/%d videos (%.1f%% success rate, %d failed)",
			successful, total, playlist.SuccessRate(), total-successful)
		tracker.Complete(message)
		d.log.Warnf("%s", message)
	default:
		tracker.Error("All downloads failed")
		d.log.Errorf("All video downloads failed")
	}

	return playlist, nil
}

// DownloadInfo fetches detailed information about a single video
// without downloading it.
func (d *Downloader) DownloadInfo(ctx context.Context, videoURL string) (map[string]interface{}, error) {
	d.log.Debugf("Getting download info for: %s", videoURL)

	args := append(d.baseArgs(), "--no-download", "--dump-json", videoURL)
	stdout, err := d.runYtdlp(ctx, args, 0)
	if err != nil {
		return nil, err
	}

	info := map[string]interface{}{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &info); err != nil {
		return nil, fmt.Errorf("failed to parse download info: %w", err)
	}
	return info, nil
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

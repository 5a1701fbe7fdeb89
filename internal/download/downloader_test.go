package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvdmaker/dvdmaker/internal/cache"
	"github.com/dvdmaker/dvdmaker/internal/config"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
	"github.com/dvdmaker/dvdmaker/internal/tools"
)

// fakeRunner answers yt-dlp invocations with canned output and can
// drop files into the download directory to simulate a download.
type fakeRunner struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
	onRun    func(args []string)
	calls    [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (tools.CommandResult, error) {
	f.calls = append(f.calls, args)
	if f.onRun != nil {
		f.onRun(args)
	}
	if f.err != nil {
		return tools.CommandResult{}, f.err
	}
	return tools.CommandResult{Stdout: f.stdout, Stderr: f.stderr, ExitCode: f.exitCode}, nil
}

func newTestDownloader(t *testing.T, runner *fakeRunner) *Downloader {
	t.Helper()
	settings := config.DefaultSettings()
	settings.CacheDir = t.TempDir()
	settings.TempDir = t.TempDir()

	log := logger.Logger{Quiet: true}
	cacheManager, err := cache.NewManager(settings, log)
	if err != nil {
		t.Fatalf("cache.NewManager() error = %v", err)
	}

	d := NewDownloader(settings, log, cacheManager, nil)
	d.runner = runner
	d.ytdlpCmd = func(ctx context.Context) ([]string, error) {
		return []string{"yt-dlp"}, nil
	}
	return d
}

const playlistDump = `{"id": "PLtest123", "title": "Family Holidays", "description": "Old tapes"}
{"id": "video000001", "title": "Beach 1994", "duration": 312.0, "url": "https://www.youtube.com/watch?v=video000001"}
{"id": "video000002", "title": "Christmas 1995", "duration": 425.5, "webpage_url": "https://www.youtube.com/watch?v=video000002"}`

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "watch url with list param",
			url:  "https://www.youtube.com/watch?v=abc&list=PLxyz_123-456",
			want: "PLxyz_123-456",
		},
		{
			name: "direct playlist url",
			url:  "https://www.youtube.com/playlist?list=PLabcdef",
			want: "PLabcdef",
		},
		{
			name: "short url with list param",
			url:  "https://youtu.be/abc123?list=PLshort",
			want: "PLshort",
		},
		{
			name:    "plain video url",
			url:     "https://www.youtube.com/watch?v=abc123",
			wantErr: true,
		},
		{
			name:    "unrelated url",
			url:     "https://example.com/playlist",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPlaylistID(tt.url)
			if tt.wantErr {
				if !errors.Is(err, dvderrors.ErrInvalidPlaylistURL) {
					t.Errorf("ExtractPlaylistID() error = %v, want ErrInvalidPlaylistURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractPlaylistID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractPlaylistID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	d := newTestDownloader(t, &fakeRunner{})

	if !d.ValidateURL("https://www.youtube.com/playlist?list=PLabc") {
		t.Error("ValidateURL() = false for valid playlist URL")
	}
	if d.ValidateURL("https://example.com") {
		t.Error("ValidateURL() = true for unrelated URL")
	}
}

func TestExtractPlaylistMetadata(t *testing.T) {
	runner := &fakeRunner{stdout: playlistDump}
	d := newTestDownloader(t, runner)

	meta, err := d.ExtractPlaylistMetadata(context.Background(),
		"https://www.youtube.com/playlist?list=PLtest123", nil)
	if err != nil {
		t.Fatalf("ExtractPlaylistMetadata() error = %v", err)
	}
	if meta.PlaylistID != "PLtest123" {
		t.Errorf("PlaylistID = %q, want PLtest123", meta.PlaylistID)
	}
	if meta.Title != "Family Holidays" {
		t.Errorf("Title = %q, want Family Holidays", meta.Title)
	}
	if meta.VideoCount != 2 {
		t.Errorf("VideoCount = %d, want 2", meta.VideoCount)
	}
}

func TestExtractPlaylistMetadataUsesCache(t *testing.T) {
	runner := &fakeRunner{stdout: playlistDump}
	d := newTestDownloader(t, runner)
	url := "https://www.youtube.com/playlist?list=PLtest123"

	if _, err := d.ExtractPlaylistMetadata(context.Background(), url, nil); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := len(runner.calls)

	meta, err := d.ExtractPlaylistMetadata(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("second ExtractPlaylistMetadata() error = %v", err)
	}
	if len(runner.calls) != callsAfterFirst {
		t.Error("cached extraction should not run yt-dlp again")
	}
	if meta.Title != "Family Holidays" {
		t.Errorf("cached Title = %q", meta.Title)
	}
}

func TestExtractPlaylistMetadataInvalidURL(t *testing.T) {
	d := newTestDownloader(t, &fakeRunner{})
	_, err := d.ExtractPlaylistMetadata(context.Background(), "https://example.com", nil)
	if !errors.Is(err, dvderrors.ErrInvalidPlaylistURL) {
		t.Errorf("error = %v, want ErrInvalidPlaylistURL", err)
	}
}

func TestExtractPlaylistVideos(t *testing.T) {
	runner := &fakeRunner{stdout: playlistDump}
	d := newTestDownloader(t, runner)

	videos, err := d.ExtractPlaylistVideos(context.Background(),
		"https://www.youtube.com/playlist?list=PLtest123", nil)
	if err != nil {
		t.Fatalf("ExtractPlaylistVideos() error = %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("len(videos) = %d, want 2", len(videos))
	}
	if videos[0].VideoID != "video000001" || videos[0].Duration != 312 {
		t.Errorf("first video = %+v", videos[0])
	}
	// webpage_url is the fallback when url is absent.
	if videos[1].URL != "https://www.youtube.com/watch?v=video000002" {
		t.Errorf("second video URL = %q", videos[1].URL)
	}
}

func TestExtractPlaylistVideosSkipsBadLines(t *testing.T) {
	dump := `{"id": "PL1", "title": "P"}
not json at all
{"id": "video000003", "title": "Valid", "duration": 60, "url": "https://www.youtube.com/watch?v=video000003"}`
	d := newTestDownloader(t, &fakeRunner{stdout: dump})

	videos, err := d.ExtractPlaylistVideos(context.Background(),
		"https://www.youtube.com/playlist?list=PL1", nil)
	if err != nil {
		t.Fatalf("ExtractPlaylistVideos() error = %v", err)
	}
	if len(videos) != 1 || videos[0].VideoID != "video000003" {
		t.Errorf("videos = %+v, want single valid entry", videos)
	}
}

func TestExtractPlaylistVideosEmptyPlaylist(t *testing.T) {
	d := newTestDownloader(t, &fakeRunner{stdout: `{"id": "PL1", "title": "Empty"}`})

	_, err := d.ExtractPlaylistVideos(context.Background(),
		"https://www.youtube.com/playlist?list=PL1", nil)
	if !errors.Is(err, dvderrors.ErrEmptyPlaylist) {
		t.Errorf("error = %v, want ErrEmptyPlaylist", err)
	}
}

func TestExtractFullPlaylist(t *testing.T) {
	d := newTestDownloader(t, &fakeRunner{stdout: playlistDump})

	playlist, err := d.ExtractFullPlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=PLtest123", nil)
	if err != nil {
		t.Fatalf("ExtractFullPlaylist() error = %v", err)
	}
	if len(playlist.Videos) != 2 {
		t.Errorf("len(Videos) = %d, want 2", len(playlist.Videos))
	}
	for _, v := range playlist.Videos {
		if playlist.Statuses[v.VideoID] != models.StatusAvailable {
			t.Errorf("status for %s = %s, want available", v.VideoID, playlist.Statuses[v.VideoID])
		}
	}
}

func TestRunYtdlpFailure(t *testing.T) {
	d := newTestDownloader(t, &fakeRunner{stderr: "ERROR: video unavailable", exitCode: 1})

	_, err := d.ExtractPlaylistVideos(context.Background(),
		"https://www.youtube.com/playlist?list=PL1", nil)
	if !errors.Is(err, dvderrors.ErrDownloadFailed) {
		t.Errorf("error = %v, want ErrDownloadFailed", err)
	}
	if err == nil || !strings.Contains(err.Error(), "video unavailable") {
		t.Errorf("error should carry yt-dlp stderr, got %v", err)
	}
}

func TestDownloadVideoStoresInCache(t *testing.T) {
	video := models.VideoMetadata{
		VideoID:  "video000001",
		Title:    "Beach 1994",
		Duration: 312,
		URL:      "https://www.youtube.com/watch?v=video000001",
	}
	playlist := models.NewPlaylist(models.PlaylistMetadata{
		PlaylistID: "PL1", Title: "P", VideoCount: 1,
	}, []models.VideoMetadata{video})

	runner := &fakeRunner{}
	d := newTestDownloader(t, runner)
	runner.onRun = func(args []string) {
		// Simulate yt-dlp writing the output file.
		for i, arg := range args {
			if arg == "--output" && i+1 < len(args) {
				path := strings.Replace(args[i+1], "%(id)s.%(ext)s", video.VideoID+".mp4", 1)
				if err := os.WriteFile(path, []byte("video data"), 0644); err != nil {
					t.Errorf("failed to write fake download: %v", err)
				}
			}
		}
	}

	if !d.DownloadVideo(context.Background(), video, playlist, nil) {
		t.Fatal("DownloadVideo() = false")
	}
	if playlist.Statuses[video.VideoID] != models.StatusDownloaded {
		t.Errorf("status = %s, want downloaded", playlist.Statuses[video.VideoID])
	}
	if _, err := d.cache.CachedDownload(video.VideoID); err != nil {
		t.Errorf("CachedDownload() error = %v after DownloadVideo", err)
	}
}

func TestDownloadVideoFailureMarksFailed(t *testing.T) {
	video := models.VideoMetadata{
		VideoID:  "video000001",
		Title:    "Beach 1994",
		Duration: 312,
		URL:      "https://www.youtube.com/watch?v=video000001",
	}
	playlist := models.NewPlaylist(models.PlaylistMetadata{
		PlaylistID: "PL1", Title: "P", VideoCount: 1,
	}, []models.VideoMetadata{video})

	d := newTestDownloader(t, &fakeRunner{stderr: "network error", exitCode: 1})

	if d.DownloadVideo(context.Background(), video, playlist, nil) {
		t.Error("DownloadVideo() = true for failing yt-dlp")
	}
	if playlist.Statuses[video.VideoID] != models.StatusFailed {
		t.Errorf("status = %s, want failed", playlist.Statuses[video.VideoID])
	}
}

func TestDownloadVideoUsesCachedDownload(t *testing.T) {
	video := models.VideoMetadata{
		VideoID:  "video000001",
		Title:    "Beach 1994",
		Duration: 312,
		URL:      "https://www.youtube.com/watch?v=video000001",
	}
	playlist := models.NewPlaylist(models.PlaylistMetadata{
		PlaylistID: "PL1", Title: "P", VideoCount: 1,
	}, []models.VideoMetadata{video})

	runner := &fakeRunner{}
	d := newTestDownloader(t, runner)

	source := filepath.Join(t.TempDir(), "video000001.mp4")
	if err := os.WriteFile(source, []byte("cached data"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := d.cache.StoreDownload(video.VideoID, source, video); err != nil {
		t.Fatal(err)
	}

	if !d.DownloadVideo(context.Background(), video, playlist, nil) {
		t.Fatal("DownloadVideo() = false for cached video")
	}
	if len(runner.calls) != 0 {
		t.Errorf("yt-dlp ran %d times for a cached video", len(runner.calls))
	}
}

func TestDownloadPlaylist(t *testing.T) {
	runner := &fakeRunner{stdout: playlistDump}
	d := newTestDownloader(t, runner)
	runner.onRun = func(args []string) {
		for i, arg := range args {
			if arg == "--output" && i+1 < len(args) {
				// The URL argument identifies which video is being fetched.
				url := args[len(args)-1]
				id := url[strings.LastIndex(url, "=")+1:]
				path := strings.Replace(args[i+1], "%(id)s.%(ext)s", id+".mp4", 1)
				if err := os.WriteFile(path, []byte(fmt.Sprintf("data for %s", id)), 0644); err != nil {
					t.Errorf("failed to write fake download: %v", err)
				}
			}
		}
	}

	playlist, err := d.DownloadPlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=PLtest123", nil)
	if err != nil {
		t.Fatalf("DownloadPlaylist() error = %v", err)
	}
	for _, v := range playlist.Videos {
		if playlist.Statuses[v.VideoID] != models.StatusDownloaded {
			t.Errorf("status for %s = %s, want downloaded", v.VideoID, playlist.Statuses[v.VideoID])
		}
	}
	if rate := playlist.SuccessRate(); rate != 100 {
		t.Errorf("SuccessRate() = %.1f, want 100", rate)
	}
}

package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvdmaker/dvdmaker/internal/config"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
)

func newTestManager(t *testing.T, mutate func(*config.Settings)) *Manager {
	t.Helper()
	settings := config.DefaultSettings()
	settings.CacheDir = t.TempDir()
	if mutate != nil {
		mutate(&settings)
	}
	m, err := NewManager(settings, logger.Logger{Quiet: true})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
	return path
}

func testMetadata() models.VideoMetadata {
	return models.VideoMetadata{
		VideoID:  "abc123def45",
		Title:    "Test Video",
		Duration: 300,
		URL:      "https://www.youtube.com/watch?v=abc123def45",
	}
}

func TestNewManagerCreatesLayout(t *testing.T) {
	m := newTestManager(t, nil)

	dirs := []string{
		m.downloadsDir,
		m.convertedDir,
		m.metadataDir,
		m.downloadsInProgressDir,
		m.convertedInProgressDir,
	}
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("expected directory %s to exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("expected %s to be a directory", dir)
		}
	}
}

func TestStoreDownloadAndLookup(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "fake video content")

	file, err := m.StoreDownload(meta.VideoID, source, meta)
	if err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}
	if file.FilePath != m.DownloadPath(meta.VideoID, "mp4") {
		t.Errorf("FilePath = %q, want %q", file.FilePath, m.DownloadPath(meta.VideoID, "mp4"))
	}
	if file.FileSize != int64(len("fake video content")) {
		t.Errorf("FileSize = %d, want %d", file.FileSize, len("fake video content"))
	}
	if file.Checksum == "" {
		t.Error("expected non-empty checksum")
	}

	if !m.IsDownloadCached(meta.VideoID, "mp4") {
		t.Error("IsDownloadCached() = false after StoreDownload")
	}

	got, err := m.CachedDownload(meta.VideoID)
	if err != nil {
		t.Fatalf("CachedDownload() error = %v", err)
	}
	if got.Metadata.Title != meta.Title {
		t.Errorf("cached title = %q, want %q", got.Metadata.Title, meta.Title)
	}
	if got.Checksum != file.Checksum {
		t.Errorf("cached checksum = %q, want %q", got.Checksum, file.Checksum)
	}

	// The source file must survive the store.
	if _, err := os.Stat(source); err != nil {
		t.Errorf("source file removed by StoreDownload: %v", err)
	}
}

func TestStoreDownloadMissingSource(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.StoreDownload("abc123def45", "/nonexistent/video.mp4", testMetadata()); err == nil {
		t.Error("expected error for missing source file")
	}
}

func TestCachedDownloadNotCached(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.CachedDownload("missing00000")
	if !errors.Is(err, dvderrors.ErrNotCached) {
		t.Errorf("CachedDownload() error = %v, want ErrNotCached", err)
	}
}

func TestCachedDownloadSizeMismatch(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "original content")

	if _, err := m.StoreDownload(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}

	// Truncate the cached file behind the manager's back.
	if err := os.WriteFile(m.DownloadPath(meta.VideoID, "mp4"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to truncate cached file: %v", err)
	}

	if _, err := m.CachedDownload(meta.VideoID); !errors.Is(err, dvderrors.ErrChecksumMismatch) {
		t.Errorf("CachedDownload() error = %v, want ErrChecksumMismatch", err)
	}
	if m.IsDownloadCached(meta.VideoID, "mp4") {
		t.Error("IsDownloadCached() = true for size-mismatched file")
	}
}

func TestIsDownloadCachedForceDownload(t *testing.T) {
	m := newTestManager(t, func(s *config.Settings) { s.ForceDownload = true })
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "content")

	if _, err := m.StoreDownload(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}
	if m.IsDownloadCached(meta.VideoID, "mp4") {
		t.Error("IsDownloadCached() = true with ForceDownload set")
	}
}

func TestIsDownloadCachedInProgress(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "content")

	if _, err := m.StoreDownload(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}

	staged := filepath.Join(m.downloadsInProgressDir, meta.VideoID+".mp4")
	if err := os.WriteFile(staged, []byte("partial"), 0644); err != nil {
		t.Fatalf("failed to write staged file: %v", err)
	}
	if m.IsDownloadCached(meta.VideoID, "mp4") {
		t.Error("IsDownloadCached() = true while a staged copy exists")
	}
}

func TestIsDownloadCachedLocked(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "content")

	if _, err := m.StoreDownload(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}

	if err := os.WriteFile(m.lockPath("download", meta.VideoID), []byte("1\n1\n"), 0644); err != nil {
		t.Fatalf("failed to write lock file: %v", err)
	}
	if m.IsDownloadCached(meta.VideoID, "mp4") {
		t.Error("IsDownloadCached() = true while a lock file exists")
	}
}

func TestStoreConvertedAndLookup(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mpg", "converted content")

	file, err := m.StoreConverted(meta.VideoID, source, meta)
	if err != nil {
		t.Fatalf("StoreConverted() error = %v", err)
	}
	if file.Format != "mpg" {
		t.Errorf("Format = %q, want mpg", file.Format)
	}
	if !m.IsConvertedCached(meta.VideoID, "mpg") {
		t.Error("IsConvertedCached() = false after StoreConverted")
	}

	got, err := m.CachedConverted(meta.VideoID, "mpg")
	if err != nil {
		t.Fatalf("CachedConverted() error = %v", err)
	}
	if got.FileSize != int64(len("converted content")) {
		t.Errorf("FileSize = %d, want %d", got.FileSize, len("converted content"))
	}
}

func TestIsConvertedCachedForceConvert(t *testing.T) {
	m := newTestManager(t, func(s *config.Settings) { s.ForceConvert = true })
	meta := testMetadata()
	source := writeSource(t, "video.mpg", "converted content")

	if _, err := m.StoreConverted(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreConverted() error = %v", err)
	}
	if m.IsConvertedCached(meta.VideoID, "mpg") {
		t.Error("IsConvertedCached() = true with ForceConvert set")
	}
}

func TestPlaylistMetadataRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	meta := models.PlaylistMetadata{
		PlaylistID: "PLabc123",
		Title:      "Holiday Videos",
		VideoCount: 12,
	}

	if err := m.StorePlaylistMetadata(meta); err != nil {
		t.Fatalf("StorePlaylistMetadata() error = %v", err)
	}
	got, ok := m.CachedPlaylistMetadata("PLabc123")
	if !ok {
		t.Fatal("CachedPlaylistMetadata() ok = false after store")
	}
	if got.Title != meta.Title || got.VideoCount != meta.VideoCount {
		t.Errorf("got %+v, want %+v", got, meta)
	}

	if _, ok := m.CachedPlaylistMetadata("PLmissing"); ok {
		t.Error("CachedPlaylistMetadata() ok = true for unknown playlist")
	}
}

func TestCleanupRemovesOldFiles(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "content")

	if _, err := m.StoreDownload(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	cached := m.DownloadPath(meta.VideoID, "mp4")
	if err := os.Chtimes(cached, old, old); err != nil {
		t.Fatalf("failed to age cached file: %v", err)
	}

	if err := m.Cleanup(24 * time.Hour); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(cached); !os.IsNotExist(err) {
		t.Error("expected aged cache file to be removed")
	}
	if _, err := os.Stat(m.MetadataPath(meta.VideoID)); err != nil {
		t.Errorf("expected fresh metadata file to survive cleanup: %v", err)
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(t, nil)
	meta := testMetadata()
	source := writeSource(t, "video.mp4", "0123456789")

	if _, err := m.StoreDownload(meta.VideoID, source, meta); err != nil {
		t.Fatalf("StoreDownload() error = %v", err)
	}

	stats := m.Stats()
	if stats.DownloadFiles != 1 {
		t.Errorf("DownloadFiles = %d, want 1", stats.DownloadFiles)
	}
	if stats.MetadataFiles != 1 {
		t.Errorf("MetadataFiles = %d, want 1", stats.MetadataFiles)
	}
	if stats.TotalBytes < 10 {
		t.Errorf("TotalBytes = %d, want at least 10", stats.TotalBytes)
	}
}

func TestChecksumFile(t *testing.T) {
	path := writeSource(t, "data.bin", "hello")
	sum, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile() error = %v", err)
	}
	// SHA-256 of "hello".
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if sum != want {
		t.Errorf("ChecksumFile() = %q, want %q", sum, want)
	}
}

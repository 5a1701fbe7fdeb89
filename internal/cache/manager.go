package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dvdmaker/dvdmaker/internal/config"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
	"github.com/dvdmaker/dvdmaker/internal/utils"
)

// lockTimeout bounds how long cache mutations wait on another process.
const lockTimeout = 60 * time.Second

// Manager owns the on-disk artifact cache: downloaded videos, converted
// videos, per-video metadata and playlist metadata. All mutations go
// through an in-progress staging directory and a per-video file lock so
// concurrent runs cannot corrupt each other's artifacts.
type Manager struct {
	settings config.Settings
	log      logger.Logger
	mapper   *utils.FilenameMapper

	downloadsDir           string
	convertedDir           string
	metadataDir            string
	downloadsInProgressDir string
	convertedInProgressDir string
}

// downloadRecord is the JSON metadata stored next to a cached download.
type downloadRecord struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	Duration     int       `json:"duration"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Description  string    `json:"description,omitempty"`
	FileSize     int64     `json:"file_size"`
	Checksum     string    `json:"checksum"`
	Format       string    `json:"format"`
	CachedAt     time.Time `json:"cached_at"`
}

// playlistRecord is the JSON form of cached playlist metadata.
type playlistRecord struct {
	PlaylistID        string    `json:"playlist_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	VideoCount        int       `json:"video_count"`
	TotalSizeEstimate int64     `json:"total_size_estimate"`
	CachedAt          time.Time `json:"cached_at"`
}

// Stats summarizes cache contents.
type Stats struct {
	DownloadFiles  int
	ConvertedFiles int
	MetadataFiles  int
	TotalBytes     int64
}

// NewManager creates the cache directory layout and loads the filename
// mapping.
func NewManager(settings config.Settings, log logger.Logger) (*Manager, error) {
	m := &Manager{
		settings:               settings,
		log:                    log,
		downloadsDir:           filepath.Join(settings.CacheDir, "downloads"),
		convertedDir:           filepath.Join(settings.CacheDir, "converted"),
		metadataDir:            filepath.Join(settings.CacheDir, "metadata"),
		downloadsInProgressDir: filepath.Join(settings.CacheDir, "downloads", ".in-progress"),
		convertedInProgressDir: filepath.Join(settings.CacheDir, "converted", ".in-progress"),
	}

	for _, dir := range []string{
		m.downloadsDir, m.convertedDir, m.metadataDir,
		m.downloadsInProgressDir, m.convertedInProgressDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}

	m.mapper = utils.NewFilenameMapper(filepath.Join(m.metadataDir, "filename_mapping.json"))
	return m, nil
}

// DownloadPath returns the cache location of a downloaded video.
func (m *Manager) DownloadPath(videoID, format string) string {
	return filepath.Join(m.downloadsDir, videoID+"."+format)
}

// ConvertedPath returns the cache location of a converted video.
func (m *Manager) ConvertedPath(videoID, format string) string {
	return filepath.Join(m.convertedDir, videoID+"."+format)
}

// MetadataPath returns the location of a video's metadata record.
func (m *Manager) MetadataPath(videoID string) string {
	return filepath.Join(m.metadataDir, videoID+".json")
}

// PlaylistMetadataPath returns the location of a playlist's metadata
// record.
func (m *Manager) PlaylistMetadataPath(playlistID string) string {
	return filepath.Join(m.metadataDir, "playlist_"+playlistID+".json")
}

func (m *Manager) lockPath(operation, videoID string) string {
	return filepath.Join(m.metadataDir, fmt.Sprintf("%s_%s.lock", operation, videoID))
}

// IsDownloadCached reports whether a valid cached download exists.
// ForceDownload bypasses the cache entirely; files still staged in the
// in-progress directory or under a lock count as absent.
func (m *Manager) IsDownloadCached(videoID, format string) bool {
	if m.settings.ForceDownload {
		m.log.Debugf("Forcing download for %s, ignoring cache", videoID)
		return false
	}

	cachePath := m.DownloadPath(videoID, format)
	info, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	if m.inFlight("download", videoID, filepath.Base(cachePath), m.downloadsInProgressDir) {
		return false
	}

	// Verify size against the metadata record when one exists.
	if rec, err := m.readDownloadRecord(videoID); err == nil && rec.FileSize != 0 {
		if info.Size() != rec.FileSize {
			m.log.Warnf("Download cache size mismatch for %s: expected %d, actual %d",
				videoID, rec.FileSize, info.Size())
			return false
		}
	}

	m.log.Debugf("Valid download cache found for %s", videoID)
	return true
}

// IsConvertedCached reports whether a valid cached conversion exists.
func (m *Manager) IsConvertedCached(videoID, format string) bool {
	if m.settings.ForceConvert {
		m.log.Debugf("Forcing conversion for %s, ignoring cache", videoID)
		return false
	}

	cachePath := m.ConvertedPath(videoID, format)
	if _, err := os.Stat(cachePath); err != nil {
		return false
	}
	if m.inFlight("convert", videoID, filepath.Base(cachePath), m.convertedInProgressDir) {
		return false
	}

	m.log.Debugf("Valid converted cache found for %s", videoID)
	return true
}

func (m *Manager) inFlight(operation, videoID, name, inProgressDir string) bool {
	if _, err := os.Stat(filepath.Join(inProgressDir, name)); err == nil {
		m.log.Debugf("%s for %s is in progress, treating as not cached", operation, videoID)
		return true
	}
	if _, err := os.Stat(m.lockPath(operation, videoID)); err == nil {
		m.log.Debugf("%s for %s is locked, treating as not cached", operation, videoID)
		return true
	}
	return false
}

// StoreDownload moves a downloaded file into the cache atomically and
// records its metadata. The source file is left in place.
func (m *Manager) StoreDownload(videoID, sourcePath string, metadata models.VideoMetadata) (models.VideoFile, error) {
	m.log.Infof("Storing download cache for %s from %s", videoID, sourcePath)

	format := normalizeExt(sourcePath)
	cachePath := m.DownloadPath(videoID, format)

	var file models.VideoFile
	err := m.withVideoLock("download", videoID, func() error {
		size, checksum, err := m.stage(sourcePath, cachePath, m.downloadsInProgressDir)
		if err != nil {
			return err
		}

		rec := downloadRecord{
			VideoID:      metadata.VideoID,
			Title:        metadata.Title,
			Duration:     metadata.Duration,
			URL:          metadata.URL,
			ThumbnailURL: metadata.ThumbnailURL,
			Description:  metadata.Description,
			FileSize:     size,
			Checksum:     checksum,
			Format:       format,
			CachedAt:     time.Now().UTC(),
		}
		if err := writeJSONAtomic(m.MetadataPath(videoID), rec); err != nil {
			return err
		}

		m.log.Debugf("Successfully cached download for %s: %d bytes, checksum %.8s...",
			videoID, size, checksum)
		file = models.VideoFile{
			Metadata: metadata,
			FilePath: cachePath,
			FileSize: size,
			Checksum: checksum,
			Format:   format,
		}
		return nil
	})
	if err != nil {
		return models.VideoFile{}, fmt.Errorf("failed to store download cache for %s: %w", videoID, err)
	}
	return file, nil
}

// StoreConverted moves a converted file into the cache atomically.
func (m *Manager) StoreConverted(videoID, sourcePath string, metadata models.VideoMetadata) (models.VideoFile, error) {
	m.log.Infof("Storing converted cache for %s from %s", videoID, sourcePath)

	format := normalizeExt(sourcePath)
	cachePath := m.ConvertedPath(videoID, format)

	var file models.VideoFile
	err := m.withVideoLock("convert", videoID, func() error {
		size, checksum, err := m.stage(sourcePath, cachePath, m.convertedInProgressDir)
		if err != nil {
			return err
		}

		m.log.Debugf("Successfully cached converted file for %s: %d bytes, checksum %.8s...",
			videoID, size, checksum)
		file = models.VideoFile{
			Metadata: metadata,
			FilePath: cachePath,
			FileSize: size,
			Checksum: checksum,
			Format:   format,
		}
		return nil
	})
	if err != nil {
		return models.VideoFile{}, fmt.Errorf("failed to store converted cache for %s: %w", videoID, err)
	}
	return file, nil
}

// withVideoLock serializes a cache mutation on the per-video lock,
// retrying acquisition with backoff.
func (m *Manager) withVideoLock(operation, videoID string, fn func() error) error {
	lockPath := m.lockPath(operation, videoID)
	return utils.Retry(3, 500*time.Millisecond, func() error {
		return utils.WithLock(lockPath, lockTimeout, fn)
	})
}

// stage copies source into the in-progress directory, verifies the
// copy, then renames it to its final cache location. Returns the file
// size and SHA-256 checksum.
func (m *Manager) stage(sourcePath, cachePath, inProgressDir string) (int64, string, error) {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return 0, "", fmt.Errorf("source file does not exist: %s", sourcePath)
	}

	inProgressPath := filepath.Join(inProgressDir, filepath.Base(cachePath))
	if err := copyFile(sourcePath, inProgressPath); err != nil {
		return 0, "", err
	}

	copied, err := os.Stat(inProgressPath)
	if err != nil || copied.Size() != srcInfo.Size() {
		_ = os.Remove(inProgressPath)
		return 0, "", fmt.Errorf("file copy verification failed for %s", sourcePath)
	}

	if err := os.Rename(inProgressPath, cachePath); err != nil {
		_ = os.Remove(inProgressPath)
		return 0, "", fmt.Errorf("failed to move file into cache: %w", err)
	}

	checksum, err := ChecksumFile(cachePath)
	if err != nil {
		return 0, "", err
	}
	return srcInfo.Size(), checksum, nil
}

// CachedDownload returns the cached download for a video, rebuilt from
// its metadata record. Returns ErrNotCached when absent and
// ErrChecksumMismatch when the file no longer matches its record.
func (m *Manager) CachedDownload(videoID string) (models.VideoFile, error) {
	rec, err := m.readDownloadRecord(videoID)
	if err != nil {
		return models.VideoFile{}, fmt.Errorf("%w: %s", dvderrors.ErrNotCached, videoID)
	}

	file := models.VideoFile{
		Metadata: models.VideoMetadata{
			VideoID:      rec.VideoID,
			Title:        rec.Title,
			Duration:     rec.Duration,
			URL:          rec.URL,
			ThumbnailURL: rec.ThumbnailURL,
			Description:  rec.Description,
		},
		FilePath: m.DownloadPath(videoID, rec.Format),
		FileSize: rec.FileSize,
		Checksum: rec.Checksum,
		Format:   rec.Format,
	}

	if !file.Exists() {
		return models.VideoFile{}, fmt.Errorf("%w: %s", dvderrors.ErrNotCached, videoID)
	}
	if !file.IsValidSize() {
		return models.VideoFile{}, fmt.Errorf("%w: %s", dvderrors.ErrChecksumMismatch, videoID)
	}
	return file, nil
}

// CachedConverted returns the cached conversion for a video, reusing
// the download metadata record for the video details.
func (m *Manager) CachedConverted(videoID, format string) (models.VideoFile, error) {
	cachePath := m.ConvertedPath(videoID, format)
	info, err := os.Stat(cachePath)
	if err != nil {
		return models.VideoFile{}, fmt.Errorf("%w: %s", dvderrors.ErrNotCached, videoID)
	}

	var metadata models.VideoMetadata
	if rec, err := m.readDownloadRecord(videoID); err == nil {
		metadata = models.VideoMetadata{
			VideoID:      rec.VideoID,
			Title:        rec.Title,
			Duration:     rec.Duration,
			URL:          rec.URL,
			ThumbnailURL: rec.ThumbnailURL,
			Description:  rec.Description,
		}
	}

	checksum, err := ChecksumFile(cachePath)
	if err != nil {
		return models.VideoFile{}, err
	}
	return models.VideoFile{
		Metadata: metadata,
		FilePath: cachePath,
		FileSize: info.Size(),
		Checksum: checksum,
		Format:   format,
	}, nil
}

// StorePlaylistMetadata caches playlist metadata.
func (m *Manager) StorePlaylistMetadata(metadata models.PlaylistMetadata) error {
	rec := playlistRecord{
		PlaylistID:        metadata.PlaylistID,
		Title:             metadata.Title,
		Description:       metadata.Description,
		VideoCount:        metadata.VideoCount,
		TotalSizeEstimate: metadata.TotalSizeEstimate,
		CachedAt:          time.Now().UTC(),
	}
	return writeJSONAtomic(m.PlaylistMetadataPath(metadata.PlaylistID), rec)
}

// CachedPlaylistMetadata returns cached playlist metadata if present.
func (m *Manager) CachedPlaylistMetadata(playlistID string) (models.PlaylistMetadata, bool) {
	data, err := os.ReadFile(m.PlaylistMetadataPath(playlistID))
	if err != nil {
		return models.PlaylistMetadata{}, false
	}
	var rec playlistRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		m.log.Warnf("Corrupt playlist metadata cache for %s: %v", playlistID, err)
		return models.PlaylistMetadata{}, false
	}
	return models.PlaylistMetadata{
		PlaylistID:        rec.PlaylistID,
		Title:             rec.Title,
		Description:       rec.Description,
		VideoCount:        rec.VideoCount,
		TotalSizeEstimate: rec.TotalSizeEstimate,
	}, true
}

// NormalizedFilename returns the stable DVD-safe filename for a video.
func (m *Manager) NormalizedFilename(videoID, title string) string {
	return m.mapper.NormalizedFilename(videoID, title)
}

// SaveFilenameMapping persists the filename mapping to disk.
func (m *Manager) SaveFilenameMapping() error {
	return m.mapper.Save()
}

// Cleanup removes cached artifacts older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, dir := range []string{m.downloadsDir, m.convertedDir, m.metadataDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read cache directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
					removed++
				}
			}
		}
	}

	m.log.Infof("Cache cleanup removed %d files older than %s", removed, maxAge)
	return nil
}

// Stats counts cached files and their total size.
func (m *Manager) Stats() Stats {
	var stats Stats
	count := func(dir string, counter *int) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			*counter++
			if info, err := entry.Info(); err == nil {
				stats.TotalBytes += info.Size()
			}
		}
	}
	count(m.downloadsDir, &stats.DownloadFiles)
	count(m.convertedDir, &stats.ConvertedFiles)
	count(m.metadataDir, &stats.MetadataFiles)
	return stats
}

func (m *Manager) readDownloadRecord(videoID string) (downloadRecord, error) {
	var rec downloadRecord
	data, err := os.ReadFile(m.MetadataPath(videoID))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// writeJSONAtomic writes JSON to a temp file in the target directory
// and renames it into place.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ChecksumFile returns the hex SHA-256 digest of a file.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// normalizeExt returns the file extension without its leading dot,
// defaulting to mp4 for extensionless files.
func normalizeExt(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "mp4"
	}
	return ext[1:]
}

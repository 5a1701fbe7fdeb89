package cleanup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvdmaker/dvdmaker/internal/audit"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
)

// Stats summarizes a cleanup operation.
type Stats struct {
	FilesRemoved       int
	DirectoriesRemoved int
	BytesFreed         int64
	Errors             int
}

// TotalItemsRemoved returns the combined file and directory count.
func (s Stats) TotalItemsRemoved() int {
	return s.FilesRemoved + s.DirectoriesRemoved
}

// SizeFreedMB returns the freed space in megabytes.
func (s Stats) SizeFreedMB() float64 {
	return float64(s.BytesFreed) / (1024 * 1024)
}

// SizeFreedGB returns the freed space in gigabytes.
func (s Stats) SizeFreedGB() float64 {
	return float64(s.BytesFreed) / (1024 * 1024 * 1024)
}

func (s Stats) String() string {
	return fmt.Sprintf("files=%d dirs=%d bytes=%d errors=%d",
		s.FilesRemoved, s.DirectoriesRemoved, s.BytesFreed, s.Errors)
}

func (s *Stats) add(other Stats) {
	s.FilesRemoved += other.FilesRemoved
	s.DirectoriesRemoved += other.DirectoriesRemoved
	s.BytesFreed += other.BytesFreed
	s.Errors += other.Errors
}

// Manager removes cached and output data produced by DVD creation
// runs. Hidden entries such as the .in-progress staging directories
// are always preserved.
type Manager struct {
	log       logger.Logger
	journal   *audit.Log
	cacheDir  string
	outputDir string
	tempDir   string
}

// NewManager creates a cleanup manager over the cache, output and
// temp directory trees. tempDir may be empty. journal may be nil to
// disable run journaling.
func NewManager(log logger.Logger, journal *audit.Log, cacheDir, outputDir, tempDir string) *Manager {
	log.Debugf("Cleanup manager initialized with cache_dir=%s, output_dir=%s, temp_dir=%s",
		cacheDir, outputDir, tempDir)
	return &Manager{
		log:       log,
		journal:   journal,
		cacheDir:  cacheDir,
		outputDir: outputDir,
		tempDir:   tempDir,
	}
}

// CleanDownloads removes downloaded video files, preserving hidden
// staging entries and the metadata directory next to them.
func (m *Manager) CleanDownloads(dryRun bool) Stats {
	m.log.Infof("Cleaning downloads cache...")
	var stats Stats

	downloadsDir := filepath.Join(m.cacheDir, "downloads")
	entries, err := os.ReadDir(downloadsDir)
	if err != nil {
		m.log.Infof("Downloads directory does not exist, nothing to clean")
		return stats
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			m.log.Debugf("Skipping hidden item: %s", entry.Name())
			continue
		}
		if !entry.IsDir() {
			m.removeItem(filepath.Join(downloadsDir, entry.Name()), &stats, dryRun, "download file")
		}
	}

	m.log.Infof("Downloads cleanup complete: %d files, %.1fMB freed",
		stats.FilesRemoved, stats.SizeFreedMB())
	return stats
}

// CleanConversions removes converted videos and their per-video
// subdirectories, along with the conversion metadata index.
func (m *Manager) CleanConversions(dryRun bool) Stats {
	m.log.Infof("Cleaning conversions cache...")
	var stats Stats

	convertedDir := filepath.Join(m.cacheDir, "converted")
	entries, err := os.ReadDir(convertedDir)
	if err != nil {
		m.log.Infof("Conversions directory does not exist, nothing to clean")
		return stats
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			m.log.Debugf("Skipping hidden item: %s", entry.Name())
			continue
		}
		path := filepath.Join(convertedDir, entry.Name())
		if !entry.IsDir() {
			m.removeItem(path, &stats, dryRun, "converted file")
			continue
		}

		// Per-video directories hold <id>_dvd.mpg and <id>_thumb.jpg.
		m.log.Debugf("Cleaning converted subdirectory: %s", path)
		subEntries, err := os.ReadDir(path)
		if err != nil {
			m.log.Warnf("Failed to read converted subdirectory %s: %v", path, err)
			stats.Errors++
			continue
		}
		for _, sub := range subEntries {
			if !sub.IsDir() {
				m.removeItem(filepath.Join(path, sub.Name()), &stats, dryRun, "converted file")
			}
		}
		if !dryRun {
			if remaining, err := os.ReadDir(path); err == nil && len(remaining) == 0 {
				if err := os.Remove(path); err == nil {
					stats.DirectoriesRemoved++
					m.log.Debugf("Removed empty converted subdirectory: %s", path)
				} else {
					m.log.Warnf("Failed to remove empty directory %s: %v", path, err)
				}
			}
		}
	}

	m.log.Infof("Conversions cleanup complete: %d files, %d directories, %.1fMB freed",
		stats.FilesRemoved, stats.DirectoriesRemoved, stats.SizeFreedMB())
	return stats
}

// CleanDVDOutput removes authored VIDEO_TS trees from the playlist
// output directories.
func (m *Manager) CleanDVDOutput(dryRun bool) Stats {
	m.log.Infof("Cleaning DVD output directories...")
	var stats Stats

	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		m.log.Infof("Output directory does not exist, nothing to clean")
		return stats
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		videoTS := filepath.Join(m.outputDir, entry.Name(), "VIDEO_TS")
		if _, err := os.Stat(videoTS); err == nil {
			m.removeItem(videoTS, &stats, dryRun, "VIDEO_TS directory")
		}
	}

	m.log.Infof("DVD output cleanup complete: %d directories, %.1fMB freed",
		stats.DirectoriesRemoved, stats.SizeFreedMB())
	return stats
}

// CleanISOs removes ISO images anywhere under the output directory.
func (m *Manager) CleanISOs(dryRun bool) Stats {
	m.log.Infof("Cleaning ISO files...")
	var stats Stats

	if _, err := os.Stat(m.outputDir); err != nil {
		m.log.Infof("Output directory does not exist, nothing to clean")
		return stats
	}
	for _, iso := range m.findISOs() {
		m.removeItem(iso, &stats, dryRun, "ISO file")
	}

	m.log.Infof("ISO cleanup complete: %d files, %.1fMB freed",
		stats.FilesRemoved, stats.SizeFreedMB())
	return stats
}

// CleanTempFiles removes everything under the temp directory.
func (m *Manager) CleanTempFiles(dryRun bool) Stats {
	m.log.Infof("Cleaning temporary files...")
	var stats Stats

	if m.tempDir == "" {
		m.log.Infof("Temp directory not specified")
		return stats
	}
	entries, err := os.ReadDir(m.tempDir)
	if err != nil {
		m.log.Infof("Temp directory does not exist, nothing to clean")
		return stats
	}
	for _, entry := range entries {
		m.removeItem(filepath.Join(m.tempDir, entry.Name()), &stats, dryRun, "temp file/directory")
	}

	m.log.Infof("Temp cleanup complete: %d items, %.1fMB freed",
		stats.TotalItemsRemoved(), stats.SizeFreedMB())
	return stats
}

// CleanAll runs every cleanup, returning per-area stats keyed by area
// name: downloads, conversions, dvd_output, isos, temp.
func (m *Manager) CleanAll(dryRun bool) map[string]Stats {
	m.log.Infof("Starting comprehensive cleanup...")

	results := map[string]Stats{
		"downloads":   m.CleanDownloads(dryRun),
		"conversions": m.CleanConversions(dryRun),
		"dvd_output":  m.CleanDVDOutput(dryRun),
		"isos":        m.CleanISOs(dryRun),
		"temp":        m.CleanTempFiles(dryRun),
	}

	var total Stats
	for _, stats := range results {
		total.add(stats)
	}
	m.log.Infof("Comprehensive cleanup complete: %d files, %d directories, %.1fMB freed, %d errors",
		total.FilesRemoved, total.DirectoriesRemoved, total.SizeFreedMB(), total.Errors)

	if !dryRun {
		m.journal.Record(audit.Entry{
			Operation: "cleanup",
			Count:     total.TotalItemsRemoved(),
			Bytes:     total.BytesFreed,
		})
	}
	return results
}

// Preview lists the paths a cleanup of the given type would remove.
// Types: downloads, conversions, dvd-output, isos, all.
func (m *Manager) Preview(cleanupType string) []string {
	var items []string

	switch cleanupType {
	case "downloads":
		items = append(items, m.visibleFiles(filepath.Join(m.cacheDir, "downloads"))...)
	case "conversions":
		items = append(items, m.visibleFiles(filepath.Join(m.cacheDir, "converted"))...)
	case "dvd-output":
		entries, err := os.ReadDir(m.outputDir)
		if err != nil {
			return items
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			videoTS := filepath.Join(m.outputDir, entry.Name(), "VIDEO_TS")
			if _, err := os.Stat(videoTS); err == nil {
				items = append(items, videoTS)
			}
		}
	case "isos":
		items = append(items, m.findISOs()...)
	case "all":
		for _, subtype := range []string{"downloads", "conversions", "dvd-output", "isos"} {
			items = append(items, m.Preview(subtype)...)
		}
	}
	return items
}

func (m *Manager) visibleFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files
}

func (m *Manager) findISOs() []string {
	var isos []string
	_ = filepath.WalkDir(m.outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".iso") {
			isos = append(isos, path)
		}
		return nil
	})
	return isos
}

// removeItem deletes a file or directory tree and updates the stats.
// Dry runs only measure.
func (m *Manager) removeItem(path string, stats *Stats, dryRun bool, itemType string) {
	info, err := os.Stat(path)
	if err != nil {
		m.log.Warnf("Failed to remove %s %s: %v", itemType, path, err)
		stats.Errors++
		return
	}

	var size int64
	isDir := info.IsDir()
	if isDir {
		size = directorySize(path)
	} else {
		size = info.Size()
	}

	if dryRun {
		m.log.Infof("Would remove %s: %s (%d bytes)", itemType, path, size)
		stats.BytesFreed += size
		return
	}

	m.log.Debugf("Removing %s: %s", itemType, path)
	if isDir {
		if err := os.RemoveAll(path); err != nil {
			m.log.Warnf("Failed to remove %s %s: %v", itemType, path, err)
			stats.Errors++
			return
		}
		stats.DirectoriesRemoved++
	} else {
		if err := os.Remove(path); err != nil {
			m.log.Warnf("Failed to remove %s %s: %v", itemType, path, err)
			stats.Errors++
			return
		}
		stats.FilesRemoved++
	}
	stats.BytesFreed += size
}

// directorySize sums file sizes under a directory; unreadable entries
// are skipped.
func directorySize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

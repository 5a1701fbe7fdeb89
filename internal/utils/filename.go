package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var (
	nonASCIIPattern    = regexp.MustCompile(`[^\x00-\x7F]+`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	controlPattern     = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	unsafeCharsPattern = regexp.MustCompile(`[<>:"/\\|?*]`)
	invalidNamePattern = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f-\x9f]`)
)

// windowsReservedNames are device names that cannot be used as file
// stems on Windows filesystems.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// NormalizeToASCII transliterates Unicode text to its closest ASCII
// equivalent and strips anything that cannot be represented.
func NormalizeToASCII(text string) string {
	if text == "" {
		return ""
	}
	return nonASCIIPattern.ReplaceAllString(unidecode.Unidecode(text), "")
}

// SanitizeFilename makes a filename safe for cross-platform
// filesystems, truncating to maxLength while preserving the extension.
func SanitizeFilename(filename string, maxLength int) string {
	if filename == "" {
		return "untitled"
	}

	s := whitespacePattern.ReplaceAllString(strings.TrimSpace(filename), " ")
	s = controlPattern.ReplaceAllString(s, "")
	s = unsafeCharsPattern.ReplaceAllString(s, "_")
	s = strings.Trim(s, ". ")

	if s == "" || s == "." || s == ".." {
		s = "untitled"
	}

	if len(s) > maxLength {
		ext := filepath.Ext(s)
		name := strings.TrimSuffix(s, ext)
		available := maxLength - len(ext)
		if available > 0 {
			s = strings.TrimRight(name[:available], " ") + ext
		} else {
			s = s[:maxLength]
		}
	}
	return s
}

// NormalizeFilename converts a video title into a filesystem-safe
// ASCII filename with an .mp4 extension.
func NormalizeFilename(title string, maxLength int) string {
	if title == "" {
		return "untitled.mp4"
	}

	// Reserve space for the extension.
	s := SanitizeFilename(NormalizeToASCII(title), maxLength-4)
	if filepath.Ext(s) == "" {
		s += ".mp4"
	}
	return s
}

// GenerateUniqueFilename adds a numeric suffix until the name is not in
// existing.
func GenerateUniqueFilename(base string, existing map[string]bool, maxAttempts int) (string, error) {
	if !existing[base] {
		return base, nil
	}

	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	for i := 1; i <= maxAttempts; i++ {
		candidate := fmt.Sprintf("%s_%d%s", name, i, ext)
		if !existing[candidate] {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique filename after %d attempts", maxAttempts)
}

// IsValidFilename reports whether a filename is usable across
// platforms: no unsafe characters, no Windows reserved device names, no
// leading or trailing dots or spaces, and at most 255 bytes.
func IsValidFilename(filename string) bool {
	if filename == "" {
		return false
	}
	if invalidNamePattern.MatchString(filename) {
		return false
	}
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if windowsReservedNames[strings.ToUpper(stem)] {
		return false
	}
	if strings.HasPrefix(filename, ".") || strings.HasSuffix(filename, ".") || strings.HasSuffix(filename, " ") {
		return false
	}
	return len(filename) <= 255
}

// FilenameMapper persists a mapping from video IDs to normalized
// filenames so repeat runs reuse the same names.
type FilenameMapper struct {
	mappingFile string
	mapping     map[string]string // video ID -> filename
	reverse     map[string]string // filename -> video ID
}

// NewFilenameMapper loads the mapping file if it exists; a corrupted
// file starts the mapping fresh.
func NewFilenameMapper(mappingFile string) *FilenameMapper {
	m := &FilenameMapper{
		mappingFile: mappingFile,
		mapping:     make(map[string]string),
		reverse:     make(map[string]string),
	}

	data, err := os.ReadFile(mappingFile)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m.mapping); err != nil {
		m.mapping = make(map[string]string)
		return m
	}
	for id, name := range m.mapping {
		m.reverse[name] = id
	}
	return m
}

// NormalizedFilename returns the stable normalized filename for a
// video, generating and recording a unique one on first use.
func (m *FilenameMapper) NormalizedFilename(videoID, title string) string {
	if name, ok := m.mapping[videoID]; ok {
		return name
	}

	name := NormalizeFilename(title, 100)
	name = m.ensureUnique(name)

	m.mapping[videoID] = name
	m.reverse[name] = videoID
	return name
}

// VideoID returns the video ID recorded for a normalized filename.
func (m *FilenameMapper) VideoID(filename string) (string, bool) {
	id, ok := m.reverse[filename]
	return id, ok
}

// Save writes the mapping to disk.
func (m *FilenameMapper) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.mappingFile), 0755); err != nil {
		return fmt.Errorf("failed to save filename mapping: %w", err)
	}
	data, err := json.MarshalIndent(m.mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to save filename mapping: %w", err)
	}
	if err := os.WriteFile(m.mappingFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save filename mapping: %w", err)
	}
	return nil
}

func (m *FilenameMapper) ensureUnique(name string) string {
	if _, taken := m.reverse[name]; !taken {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, taken := m.reverse[candidate]; !taken {
			return candidate
		}
	}
}

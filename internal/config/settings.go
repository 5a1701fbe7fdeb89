package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Settings holds the application configuration for the DVD pipeline.
type Settings struct {
	// Directory settings.
	CacheDir  string `toml:"cache_dir"`
	OutputDir string `toml:"output_dir"`
	TempDir   string `toml:"temp_dir"`
	BinDir    string `toml:"bin_dir"`
	LogDir    string `toml:"log_dir"`

	// Download settings.
	DownloadRateLimit string `toml:"download_rate_limit"`
	VideoQuality      string `toml:"video_quality"`

	// Tool settings.
	UseSystemTools bool `toml:"use_system_tools"`
	DownloadTools  bool `toml:"download_tools"`

	// DVD settings.
	MenuTitle           string `toml:"menu_title"`
	GenerateISO         bool   `toml:"generate_iso"`
	VideoFormat         string `toml:"video_format"` // NTSC or PAL
	AspectRatio         string `toml:"aspect_ratio"` // 4:3 or 16:9
	CarDVDCompatibility bool   `toml:"car_dvd_compatibility"`
	Autoplay            bool   `toml:"autoplay"`

	// Cache settings.
	ForceDownload bool `toml:"force_download"`
	ForceConvert  bool `toml:"force_convert"`

	// Console output settings.
	Verbose bool `toml:"verbose"`
	Quiet   bool `toml:"quiet"`
}

// envPrefix is prepended to upper-snake field names for environment
// variable overrides, e.g. DVDMAKER_CACHE_DIR.
const envPrefix = "DVDMAKER_"

// rateLimitPattern matches yt-dlp rate limits like 500K, 1M or 4.2M.
var rateLimitPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[KMG]?$`)

// DefaultSettings returns settings with all defaults applied, rooted
// at the current working directory.
func DefaultSettings() Settings {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Settings{
		CacheDir:          filepath.Join(cwd, "cache"),
		OutputDir:         filepath.Join(cwd, "output"),
		TempDir:           filepath.Join(cwd, "temp"),
		BinDir:            filepath.Join(cwd, "bin"),
		LogDir:            filepath.Join(cwd, "logs"),
		DownloadRateLimit: "1M",
		VideoQuality:      "best",
		DownloadTools:     true,
		VideoFormat:       "NTSC",
		AspectRatio:       "16:9",
	}
}

// DefaultConfigPath returns the default configuration file location,
// honoring XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dvdmaker", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.toml")
	}
	return filepath.Join(home, ".config", "dvdmaker", "config.toml")
}

// Load builds settings in priority order: defaults, then the config
// file (if it exists), then DVDMAKER_* environment variables. An empty
// configPath selects the default location. A missing file is not an
// error; a malformed one is.
func Load(configPath string) (Settings, error) {
	s := DefaultSettings()

	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := LoadTOML(configPath, &s); err != nil {
			return s, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return s, err
	}
	s.normalizeDirs()
	return s, nil
}

// Save writes the settings to a TOML file.
func (s Settings) Save(configPath string) error {
	return SaveTOML(configPath, s)
}

// applyEnv overrides settings from DVDMAKER_* environment variables.
func (s *Settings) applyEnv() {
	envString(&s.CacheDir, "CACHE_DIR")
	envString(&s.OutputDir, "OUTPUT_DIR")
	envString(&s.TempDir, "TEMP_DIR")
	envString(&s.BinDir, "BIN_DIR")
	envString(&s.LogDir, "LOG_DIR")
	envString(&s.DownloadRateLimit, "DOWNLOAD_RATE_LIMIT")
	envString(&s.VideoQuality, "VIDEO_QUALITY")
	envString(&s.MenuTitle, "MENU_TITLE")
	envString(&s.VideoFormat, "VIDEO_FORMAT")
	envString(&s.AspectRatio, "ASPECT_RATIO")
	envBool(&s.CarDVDCompatibility, "CAR_DVD_COMPATIBILITY")
	envBool(&s.Autoplay, "AUTOPLAY")
	envBool(&s.UseSystemTools, "USE_SYSTEM_TOOLS")
	envBool(&s.DownloadTools, "DOWNLOAD_TOOLS")
	envBool(&s.GenerateISO, "GENERATE_ISO")
	envBool(&s.ForceDownload, "FORCE_DOWNLOAD")
	envBool(&s.ForceConvert, "FORCE_CONVERT")
	envBool(&s.Verbose, "VERBOSE")
	envBool(&s.Quiet, "QUIET")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		*dst = v
	}
}

func envBool(dst *bool, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks settings for internal consistency.
func (s Settings) Validate() error {
	if s.Verbose && s.Quiet {
		return fmt.Errorf("cannot enable both verbose and quiet output")
	}
	if !rateLimitPattern.MatchString(s.DownloadRateLimit) {
		return fmt.Errorf("invalid download rate limit %q", s.DownloadRateLimit)
	}
	if s.VideoQuality == "" {
		return fmt.Errorf("video quality cannot be empty")
	}
	switch strings.ToUpper(s.VideoFormat) {
	case "NTSC", "PAL":
	default:
		return fmt.Errorf("invalid video format %q, must be NTSC or PAL", s.VideoFormat)
	}
	switch s.AspectRatio {
	case "4:3", "16:9":
	default:
		return fmt.Errorf("invalid aspect ratio %q, must be 4:3 or 16:9", s.AspectRatio)
	}
	return nil
}

// normalizeDirs expands ~ and makes every directory path absolute.
func (s *Settings) normalizeDirs() {
	for _, dir := range []*string{&s.CacheDir, &s.OutputDir, &s.TempDir, &s.BinDir, &s.LogDir} {
		*dir = normalizePath(*dir)
	}
}

func normalizePath(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	return filepath.Clean(p)
}

// CreateDirectories creates every configured directory, including the
// cache substructure used by the cache manager.
func (s Settings) CreateDirectories() error {
	dirs := []string{
		s.CacheDir,
		s.OutputDir,
		s.TempDir,
		s.BinDir,
		s.LogDir,
		filepath.Join(s.CacheDir, "downloads"),
		filepath.Join(s.CacheDir, "converted"),
		filepath.Join(s.CacheDir, "metadata"),
		filepath.Join(s.CacheDir, "downloads", ".in-progress"),
		filepath.Join(s.CacheDir, "converted", ".in-progress"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

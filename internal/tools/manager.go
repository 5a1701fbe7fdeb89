package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dvdmaker/dvdmaker/internal/config"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/progress"
	"github.com/dvdmaker/dvdmaker/internal/ui"
	"github.com/dvdmaker/dvdmaker/internal/utils"
)

// Tool names recognized by the manager.
const (
	ToolFFmpeg    = "ffmpeg"
	ToolYtdlp     = "yt-dlp"
	ToolDVDAuthor = "dvdauthor"
	ToolMkisofs   = "mkisofs"
)

const (
	versionProbeTimeout = 10 * time.Second
	// yt-dlp can be slow on its first run.
	ytdlpProbeTimeout = 30 * time.Second

	ytdlpReleaseAPI = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
)

// systemOnlyTools must be installed by the user; the manager never
// downloads them.
var systemOnlyTools = map[string]bool{
	ToolDVDAuthor: true,
	ToolMkisofs:   true,
}

// Status describes the availability of a single external tool.
type Status struct {
	AvailableLocally bool
	AvailableSystem  bool
	Functional       bool
	Version          string
	Path             string
}

// Manager locates, validates, downloads and updates the external tools
// the pipeline depends on: ffmpeg, yt-dlp, dvdauthor and mkisofs.
type Manager struct {
	settings config.Settings
	log      logger.Logger
	runner   Runner
	http     *retryablehttp.Client
	callback progress.Callback

	versionsFile string
	lookPath     func(string) (string, error)

	mu          sync.Mutex
	statusCache map[string]Status
}

// NewManager creates a tool manager rooted at the configured bin
// directory. A nil callback disables download progress reporting.
func NewManager(settings config.Settings, log logger.Logger, callback progress.Callback) (*Manager, error) {
	if err := os.MkdirAll(settings.BinDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bin directory: %w", err)
	}
	if callback == nil {
		callback = progress.Silent{}
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 5 * time.Minute
	client.Logger = nil

	return &Manager{
		settings:     settings,
		log:          log,
		runner:       ExecRunner{Log: log},
		http:         client,
		callback:     callback,
		versionsFile: filepath.Join(settings.BinDir, "tool_versions.json"),
		lookPath:     exec.LookPath,
	}, nil
}

// ToolVersions loads the recorded versions of downloaded tools.
func (m *Manager) ToolVersions() map[string]string {
	data, err := os.ReadFile(m.versionsFile)
	if err != nil {
		m.log.Debugf("No tool versions file found, returning empty map")
		return map[string]string{}
	}
	versions := map[string]string{}
	if err := json.Unmarshal(data, &versions); err != nil {
		m.log.Warnf("Failed to parse tool versions file: %v", err)
		return map[string]string{}
	}
	return versions
}

func (m *Manager) saveToolVersions(versions map[string]string) error {
	data, err := json.MarshalIndent(versions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tool versions: %w", err)
	}
	if err := os.WriteFile(m.versionsFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save tool versions: %w", err)
	}
	return nil
}

// ToolPath returns the expected location of a downloadable tool binary.
func (m *Manager) ToolPath(tool string) (string, error) {
	switch tool {
	case ToolFFmpeg, ToolYtdlp:
		return filepath.Join(m.settings.BinDir, tool), nil
	default:
		return "", fmt.Errorf("%w: %s is not a downloadable tool", dvderrors.ErrToolNotFound, tool)
	}
}

// IsAvailableLocally reports whether a tool binary exists in the bin
// directory and is executable.
func (m *Manager) IsAvailableLocally(tool string) bool {
	path, err := m.ToolPath(tool)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// IsAvailableSystem reports whether a tool is on the system PATH.
// mkisofs accepts genisoimage as an equivalent.
func (m *Manager) IsAvailableSystem(tool string) bool {
	if tool == ToolMkisofs {
		if _, err := m.lookPath("mkisofs"); err == nil {
			return true
		}
		_, err := m.lookPath("genisoimage")
		return err == nil
	}
	_, err := m.lookPath(tool)
	return err == nil
}

// probe runs the tool's version command and reports whether the tool
// is functional, along with the extracted version string.
func (m *Manager) probe(ctx context.Context, tool, toolPath string) (bool, string) {
	name := tool
	if toolPath != "" {
		name = toolPath
	}

	var args []string
	timeout := versionProbeTimeout
	switch tool {
	case ToolFFmpeg:
		args = []string{"-version"}
	case ToolYtdlp:
		args = []string{"--version"}
		timeout = ytdlpProbeTimeout
	case ToolDVDAuthor:
		name = "dvdauthor"
		args = []string{"--help"}
	case ToolMkisofs:
		name = "mkisofs"
		args = []string{"--version"}
	default:
		m.log.Errorf("Unknown tool for validation: %s", tool)
		return false, ""
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := m.runner.Run(probeCtx, name, args...)
	if err != nil {
		m.log.Warnf("Tool %s validation failed: %v", tool, err)
		return false, ""
	}

	// mkisofs may be absent while genisoimage provides the same
	// functionality.
	if tool == ToolMkisofs && result.ExitCode != 0 {
		m.log.Debugf("mkisofs version check failed, trying genisoimage")
		fallback, err := m.runner.Run(probeCtx, "genisoimage", "--version")
		if err != nil || fallback.ExitCode != 0 {
			m.log.Warnf("Both mkisofs and genisoimage version checks failed")
			return false, ""
		}
		result = fallback
	}

	// dvdauthor --help exits 1 but is still functional when it
	// produced output.
	if tool == ToolDVDAuthor && result.ExitCode == 1 && (result.Stdout != "" || result.Stderr != "") {
		return true, extractVersion(tool, result.Stdout, result.Stderr)
	}
	if result.ExitCode != 0 {
		m.log.Warnf("Tool %s validation failed: %s", tool, strings.TrimSpace(result.Stderr))
		return false, ""
	}
	return true, extractVersion(tool, result.Stdout, result.Stderr)
}

var mkisofsVersionPattern = regexp.MustCompile(`(?i)(?:mkisofs|genisoimage|version)\s+(\d+\.\d+(?:\.\d+)?)`)

func extractVersion(tool, stdout, stderr string) string {
	switch tool {
	case ToolFFmpeg:
		// "ffmpeg version 4.4.0-0ubuntu1 ..."
		for _, line := range strings.Split(stdout, "\n") {
			if strings.HasPrefix(line, "ffmpeg version") {
				fields := strings.Fields(line)
				if len(fields) >= 3 {
					return fields[2]
				}
			}
		}
	case ToolYtdlp:
		return strings.TrimSpace(stdout)
	case ToolDVDAuthor:
		// "DVDAuthor::dvdauthor, version 0.7.2." appears on stderr.
		output := stderr
		if output == "" {
			output = stdout
		}
		for _, line := range strings.Split(output, "\n") {
			lower := strings.ToLower(line)
			if !strings.Contains(lower, "dvdauthor") || !strings.Contains(lower, "version") {
				continue
			}
			_, after, found := strings.Cut(line, "version")
			if !found {
				return "system"
			}
			fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(after), "."))
			if len(fields) > 0 {
				return strings.TrimSuffix(fields[0], ".")
			}
			return "system"
		}
	case ToolMkisofs:
		for _, line := range strings.Split(stdout, "\n") {
			if match := mkisofsVersionPattern.FindStringSubmatch(line); match != nil {
				return match[1]
			}
		}
		return "system"
	}
	return ""
}

// ToolVersion returns the version of a tool, or an empty string when
// it cannot be determined.
func (m *Manager) ToolVersion(ctx context.Context, tool, toolPath string) string {
	_, version := m.probe(ctx, tool, toolPath)
	return version
}

// CheckTools probes the availability of every required tool. Results
// are cached; pass useCache=false to force a fresh probe.
func (m *Manager) CheckTools(ctx context.Context, useCache bool) map[string]Status {
	m.mu.Lock()
	if useCache && m.statusCache != nil {
		cached := m.statusCache
		m.mu.Unlock()
		m.log.Debugf("Using cached tool status")
		return cached
	}
	m.mu.Unlock()

	m.log.Debugf("Checking tool availability and status")

	required := []string{ToolFFmpeg, ToolYtdlp, ToolDVDAuthor}
	if m.settings.GenerateISO {
		required = append(required, ToolMkisofs)
	}

	statuses := make(map[string]Status, len(required))
	for _, tool := range required {
		var status Status

		if !m.settings.UseSystemTools && !systemOnlyTools[tool] {
			status.AvailableLocally = m.IsAvailableLocally(tool)
			if status.AvailableLocally {
				path, _ := m.ToolPath(tool)
				status.Functional, status.Version = m.probe(ctx, tool, path)
				status.Path = path
			}
		}

		status.AvailableSystem = m.IsAvailableSystem(tool)
		if status.AvailableSystem && !status.Functional {
			status.Functional, status.Version = m.probe(ctx, tool, "")
			if tool == ToolMkisofs {
				if path, err := m.lookPath("mkisofs"); err == nil {
					status.Path = path
				} else if path, err := m.lookPath("genisoimage"); err == nil {
					status.Path = path
				}
			} else if path, err := m.lookPath(tool); err == nil {
				status.Path = path
			}
		}

		m.log.Debugf("Status for %s: %+v", tool, status)
		statuses[tool] = status
	}

	m.mu.Lock()
	m.statusCache = statuses
	m.mu.Unlock()
	return statuses
}

func (m *Manager) invalidateCache() {
	m.mu.Lock()
	m.statusCache = nil
	m.mu.Unlock()
}

// EnsureAvailable verifies every required tool is functional,
// downloading ffmpeg and yt-dlp when permitted. It returns a
// human-readable description for each tool that remains missing.
func (m *Manager) EnsureAvailable(ctx context.Context) (bool, []string) {
	statuses := m.CheckTools(ctx, false)
	var missing []string
	downloaded := false

	for _, tool := range orderedTools(statuses) {
		status := statuses[tool]
		if status.Functional {
			continue
		}

		switch {
		case tool == ToolDVDAuthor:
			instructions := utils.DVDAuthorInstallInstructions()
			missing = append(missing, fmt.Sprintf("%s: %s", tool, instructions))
			m.log.Warnf("dvdauthor not available: %s", instructions)
		case tool == ToolMkisofs:
			missing = append(missing, fmt.Sprintf(
				"%s: Not available. Install with:\n"+
					"  macOS: brew install dvdrtools\n"+
					"  Ubuntu/Debian: sudo apt install genisoimage\n"+
					"  RHEL/CentOS: sudo yum install genisoimage", tool))
			m.log.Warnf("mkisofs/genisoimage not available for ISO creation")
		case m.settings.DownloadTools:
			m.log.Infof("Attempting to download %s", ui.Tool.Sprint(tool))
			if err := m.DownloadTool(ctx, tool); err != nil {
				missing = append(missing, fmt.Sprintf("%s: Download failed - %v", tool, err))
				m.log.Errorf("Failed to download %s: %v", tool, err)
			} else {
				downloaded = true
			}
		default:
			missing = append(missing, fmt.Sprintf("%s: Not available and auto-download disabled", tool))
			m.log.Warnf("%s not available and auto-download disabled", tool)
		}
	}

	if downloaded {
		m.log.Debugf("Rechecking tools after downloads")
		m.invalidateCache()
		statuses = m.CheckTools(ctx, false)
		for _, tool := range orderedTools(statuses) {
			if systemOnlyTools[tool] || statuses[tool].Functional {
				continue
			}
			if !containsPrefix(missing, tool+": Download failed") {
				missing = append(missing, fmt.Sprintf("%s: Downloaded but not functional", tool))
				m.log.Errorf("%s downloaded but validation failed", tool)
			}
		}
	}

	if len(missing) == 0 {
		m.log.Debugf("All required tools are available")
		return true, nil
	}
	m.log.Warnf("Missing tools: %v", missing)
	return false, missing
}

// ToolCommand returns the argv prefix for invoking a tool.
func (m *Manager) ToolCommand(ctx context.Context, tool string) ([]string, error) {
	status, ok := m.CheckTools(ctx, true)[tool]
	if !ok || !status.Functional {
		return nil, fmt.Errorf("%w: %s is not available or functional", dvderrors.ErrToolNotFound, tool)
	}
	if status.Path != "" {
		return []string{status.Path}, nil
	}
	return []string{tool}, nil
}

// DownloadTool downloads, extracts, installs and validates ffmpeg or
// yt-dlp for the current platform.
func (m *Manager) DownloadTool(ctx context.Context, tool string) error {
	m.log.Infof("Starting download of %s", ui.Tool.Sprint(tool))

	if !utils.IsPlatformSupported() {
		return fmt.Errorf("%w: platform not supported for tool downloads", dvderrors.ErrToolDownloadFailed)
	}
	url, err := utils.DownloadURL(tool)
	if err != nil {
		return fmt.Errorf("%w: cannot get download URL for %s: %v", dvderrors.ErrToolDownloadFailed, tool, err)
	}

	tempDir, err := os.MkdirTemp("", "dvdmaker-tool-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	downloadPath := filepath.Join(tempDir, tool+archiveSuffix(url))
	if err := m.DownloadFile(ctx, url, downloadPath); err != nil {
		return err
	}

	binaryPath := downloadPath
	if archiveSuffix(url) != "" {
		extractDir := filepath.Join(tempDir, "extracted")
		if err := os.Mkdir(extractDir, 0755); err != nil {
			return fmt.Errorf("failed to create extraction directory: %w", err)
		}
		if err := ExtractArchive(downloadPath, extractDir); err != nil {
			return err
		}
		binaryPath = findBinary(extractDir, tool)
		if binaryPath == "" {
			return fmt.Errorf("%w: could not find %s binary in extracted files",
				dvderrors.ErrToolDownloadFailed, tool)
		}
	}

	finalPath, err := m.ToolPath(tool)
	if err != nil {
		return err
	}
	if err := copyFile(binaryPath, finalPath); err != nil {
		return fmt.Errorf("failed to install %s: %w", tool, err)
	}
	if err := os.Chmod(finalPath, 0755); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", tool, err)
	}

	functional, version := m.probe(ctx, tool, finalPath)
	if !functional {
		_ = os.Remove(finalPath)
		return fmt.Errorf("%w: downloaded %s failed validation", dvderrors.ErrToolValidationFailed, tool)
	}
	if version == "" {
		version = "downloaded"
	}

	versions := m.ToolVersions()
	versions[tool] = version
	if err := m.saveToolVersions(versions); err != nil {
		m.log.Warnf("Failed to record %s version: %v", tool, err)
	}

	m.invalidateCache()
	m.log.Infof("Successfully downloaded and installed %s %s", tool, version)
	return nil
}

// DownloadFile streams a URL to disk with retries, reporting progress
// through the manager's callback.
func (m *Manager) DownloadFile(ctx context.Context, url, destination string) error {
	m.log.Infof("Downloading %s to %s", url, destination)

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", dvderrors.ErrToolDownloadFailed, err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to download %s: %v", dvderrors.ErrToolDownloadFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("%w: unexpected status %d downloading %s",
			dvderrors.ErrToolDownloadFailed, resp.StatusCode, url)
	}

	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destination, err)
	}

	total := int(resp.ContentLength)
	name := filepath.Base(destination)
	writer := &progressWriter{
		w: out,
		report: func(written int) {
			if total > 0 {
				m.callback.Update(progress.Info{
					Current: written,
					Total:   total,
					Message: "Downloading " + name,
				})
			}
		},
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(destination)
		return fmt.Errorf("%w: failed to download %s: %v", dvderrors.ErrToolDownloadFailed, url, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", destination, err)
	}

	m.log.Infof("Successfully downloaded %s", name)
	return nil
}

type progressWriter struct {
	w       io.Writer
	written int
	report  func(written int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += n
	if p.report != nil {
		p.report(p.written)
	}
	return n, err
}

// archiveSuffix returns the archive extension of a download URL, or
// an empty string for direct binary downloads.
func archiveSuffix(url string) string {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return ".zip"
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return ".tar.gz"
	case strings.HasSuffix(url, ".tar.xz"):
		return ".tar.xz"
	default:
		return ""
	}
}

// findBinary searches an extraction tree for the tool binary.
func findBinary(extractDir, tool string) string {
	var found string
	_ = filepath.WalkDir(extractDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return err
		}
		name := d.Name()
		if name != tool && name != tool+".exe" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode()&0111 != 0 || strings.HasSuffix(strings.ToLower(name), ".exe") {
			found = path
		}
		return nil
	})
	return found
}

// LatestYtdlpVersion queries the GitHub releases API for the newest
// yt-dlp tag.
func (m *Manager) LatestYtdlpVersion(ctx context.Context) (string, error) {
	m.log.Debugf("Checking for latest yt-dlp version from GitHub")

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", ytdlpReleaseAPI, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to check latest yt-dlp version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("unexpected status %d from GitHub releases API", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("failed to parse yt-dlp release response: %w", err)
	}
	version := strings.TrimSpace(release.TagName)
	if version == "" {
		return "", fmt.Errorf("release response carried no tag name")
	}
	m.log.Debugf("Latest yt-dlp version: %s", version)
	return version, nil
}

// IsNewerVersion reports whether latest is strictly newer than
// current. Unparseable versions compare as not newer.
func IsNewerVersion(current, latest string) bool {
	currentParts := parseVersion(current)
	latestParts := parseVersion(latest)
	if len(currentParts) == 0 || len(latestParts) == 0 {
		return false
	}

	for len(currentParts) < len(latestParts) {
		currentParts = append(currentParts, 0)
	}
	for len(latestParts) < len(currentParts) {
		latestParts = append(latestParts, 0)
	}
	for i := range latestParts {
		if latestParts[i] != currentParts[i] {
			return latestParts[i] > currentParts[i]
		}
	}
	return false
}

func parseVersion(version string) []int {
	cleaned := strings.TrimPrefix(version, "v")
	cleaned, _, _ = strings.Cut(cleaned, "-")
	cleaned, _, _ = strings.Cut(cleaned, "+")

	var parts []int
	for _, part := range strings.Split(cleaned, ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}

// CheckAndUpdateYtdlp updates the local yt-dlp when a newer release is
// available, keeping a backup of the previous binary until the new one
// validates.
func (m *Manager) CheckAndUpdateYtdlp(ctx context.Context) error {
	m.log.Infof("Checking for yt-dlp updates...")

	var currentVersion string
	if m.IsAvailableLocally(ToolYtdlp) {
		path, _ := m.ToolPath(ToolYtdlp)
		currentVersion = m.ToolVersion(ctx, ToolYtdlp, path)
	}
	if currentVersion == "" {
		m.log.Infof("yt-dlp not found locally, will download latest version")
		return m.DownloadTool(ctx, ToolYtdlp)
	}

	latest, err := m.LatestYtdlpVersion(ctx)
	if err != nil {
		// Update checks are best effort.
		m.log.Warnf("Could not determine latest yt-dlp version, skipping update: %v", err)
		return nil
	}
	if !IsNewerVersion(currentVersion, latest) {
		m.log.Infof("yt-dlp is already up to date (current: %s)", currentVersion)
		return nil
	}
	m.log.Infof("yt-dlp update available: %s -> %s", currentVersion, latest)

	currentPath, _ := m.ToolPath(ToolYtdlp)
	backupPath := currentPath + ".backup-" + currentVersion
	if err := copyFile(currentPath, backupPath); err != nil {
		m.log.Warnf("Could not back up current yt-dlp: %v", err)
		backupPath = ""
	}

	if err := m.DownloadTool(ctx, ToolYtdlp); err != nil {
		if backupPath != "" {
			if restoreErr := copyFile(backupPath, currentPath); restoreErr == nil {
				_ = os.Remove(backupPath)
				m.log.Infof("Restored previous yt-dlp version after failed update")
			} else {
				m.log.Errorf("Could not restore backup after failed update: %v", restoreErr)
			}
		}
		return fmt.Errorf("failed to update yt-dlp: %w", err)
	}

	if backupPath != "" {
		_ = os.Remove(backupPath)
	}
	m.log.Infof("Successfully updated yt-dlp from %s to %s", currentVersion, latest)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func containsPrefix(items []string, prefix string) bool {
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			return true
		}
	}
	return false
}

// orderedTools returns map keys in a stable order for deterministic
// reporting.
func orderedTools(statuses map[string]Status) []string {
	order := []string{ToolFFmpeg, ToolYtdlp, ToolDVDAuthor, ToolMkisofs}
	var tools []string
	for _, tool := range order {
		if _, ok := statuses[tool]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

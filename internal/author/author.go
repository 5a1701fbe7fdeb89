package author

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dvdmaker/dvdmaker/internal/audit"
	"github.com/dvdmaker/dvdmaker/internal/config"
	"github.com/dvdmaker/dvdmaker/internal/convert"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
	"github.com/dvdmaker/dvdmaker/internal/progress"
	"github.com/dvdmaker/dvdmaker/internal/tools"
	"github.com/dvdmaker/dvdmaker/internal/ui"
	"github.com/dvdmaker/dvdmaker/internal/utils"
)

// Single layer DVD capacity.
const DVDCapacityGB = 4.7

var dvdCapacityGB float64 = DVDCapacityGB

var DVDCapacityBytes = int64(dvdCapacityGB * 1024 * 1024 * 1024)

const (
	authoringTimeout = 1 * time.Hour
	isoTimeout       = 30 * time.Minute
	menuClipTimeout  = 5 * time.Minute

	// menuClipSeconds is the length of the looping menu background
	// clip taken from the start of a chapter video.
	menuClipSeconds = "0.5"
)

// unsafeNamePattern strips characters that cannot appear in directory
// or ISO file names, including whitespace.
var unsafeNamePattern = regexp.MustCompile(`[<>:"/\\|?*\s]`)

// AuthoredDVD is a completed DVD with its VIDEO_TS structure on disk.
type AuthoredDVD struct {
	Structure    models.DVDStructure
	VideoTSDir   string
	ISOFile      string
	CreationTime time.Duration
}

// Exists reports whether the VIDEO_TS directory holds a video manager.
func (d AuthoredDVD) Exists() bool {
	_, err := os.Stat(filepath.Join(d.VideoTSDir, "VIDEO_TS.IFO"))
	return err == nil
}

// HasISO reports whether an ISO image was created and is on disk.
func (d AuthoredDVD) HasISO() bool {
	if d.ISOFile == "" {
		return false
	}
	_, err := os.Stat(d.ISOFile)
	return err == nil
}

// SizeGB returns the structure's total content size in gigabytes.
func (d AuthoredDVD) SizeGB() float64 {
	return d.Structure.SizeGB()
}

// ValidateStructure checks that the authored VIDEO_TS directory holds
// at least one complete title set: a VTS IFO with its BUP backup and
// VOB content.
func (d AuthoredDVD) ValidateStructure() error {
	ifoFiles, err := filepath.Glob(filepath.Join(d.VideoTSDir, "VTS_*_0.IFO"))
	if err != nil || len(ifoFiles) == 0 {
		return fmt.Errorf("%w: no VTS IFO files found", dvderrors.ErrInvalidStructure)
	}
	for _, ifo := range ifoFiles {
		bup := strings.TrimSuffix(ifo, ".IFO") + ".BUP"
		if _, err := os.Stat(bup); err != nil {
			return fmt.Errorf("%w: missing backup file %s", dvderrors.ErrInvalidStructure, filepath.Base(bup))
		}
	}
	vobFiles, err := filepath.Glob(filepath.Join(d.VideoTSDir, "VTS_*_*.VOB"))
	if err != nil || len(vobFiles) == 0 {
		return fmt.Errorf("%w: no VTS VOB files found", dvderrors.ErrInvalidStructure)
	}
	return nil
}

// Author creates DVD structures from converted videos using dvdauthor,
// with optional ISO image generation via mkisofs.
type Author struct {
	settings config.Settings
	log      logger.Logger
	tools    *tools.Manager
	runner   tools.Runner
	callback progress.Callback
	spumux   *Spumux
	journal  *audit.Log

	// Command resolvers; tests substitute these.
	ffmpegCmd    func(ctx context.Context) ([]string, error)
	dvdauthorCmd func(ctx context.Context) ([]string, error)
	mkisofsCmd   func(ctx context.Context) ([]string, error)
}

// NewAuthor creates a DVD author backed by the given tool manager.
func NewAuthor(settings config.Settings, log logger.Logger, toolManager *tools.Manager, callback progress.Callback) *Author {
	if callback == nil {
		callback = progress.Silent{}
	}
	a := &Author{
		settings: settings,
		log:      log,
		tools:    toolManager,
		runner:   tools.ExecRunner{Log: log},
		callback: callback,
		spumux:   NewSpumux(log),
		journal:  audit.Open(settings.LogDir),
	}
	a.ffmpegCmd = func(ctx context.Context) ([]string, error) {
		return a.tools.ToolCommand(ctx, tools.ToolFFmpeg)
	}
	a.dvdauthorCmd = func(ctx context.Context) ([]string, error) {
		return a.tools.ToolCommand(ctx, tools.ToolDVDAuthor)
	}
	a.mkisofsCmd = func(ctx context.Context) ([]string, error) {
		return a.tools.ToolCommand(ctx, tools.ToolMkisofs)
	}
	return a
}

// playlistOutputDir creates an output directory specific to one
// playlist so concurrent runs do not collide.
func (a *Author) playlistOutputDir(baseDir, playlistID string) (string, error) {
	safe := utils.NormalizeToASCII(playlistID)
	safe = unsafeNamePattern.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_.- ")
	if safe == "" {
		safe = "unknown_playlist"
	}

	dir := filepath.Join(baseDir, safe)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create output directory: %v", dvderrors.ErrAuthoringFailed, err)
	}
	a.log.Debugf("Created playlist output directory: %s", dir)
	return dir, nil
}

func (a *Author) reportProgress(step, total int, message string) {
	a.callback.Update(progress.Info{Current: step, Total: total, Message: message})
	a.log.Debugf("DVD authoring progress: %s (%d/%d)", message, step, total)
}

// CreateDVDStructure authors a DVD from converted videos: one title
// whose chapters follow the playlist order, with a DVDStyler-style
// menu. An ISO image is produced when the settings request one. A disc
// over capacity is authored anyway with a warning; burning software
// does its own verification.
func (a *Author) CreateDVDStructure(ctx context.Context, converted []convert.ConvertedVideo, menuTitle, outputDir, playlistID string) (AuthoredDVD, error) {
	if len(converted) == 0 {
		return AuthoredDVD{}, fmt.Errorf("%w: no videos provided for DVD creation", dvderrors.ErrAuthoringFailed)
	}

	playlistDir, err := a.playlistOutputDir(outputDir, playlistID)
	if err != nil {
		return AuthoredDVD{}, err
	}
	a.log.Debugf("Creating DVD structure with %d videos: %q in %s",
		len(converted), menuTitle, playlistDir)
	a.reportProgress(0, 5, "Preparing DVD structure")

	chapters := a.buildChapters(converted)
	var totalSize int64
	for _, video := range converted {
		totalSize += video.FileSize
	}
	structure := models.DVDStructure{
		Chapters:  chapters,
		MenuTitle: utils.NormalizeToASCII(menuTitle),
		TotalSize: totalSize,
	}
	if err := structure.Validate(); err != nil {
		return AuthoredDVD{}, fmt.Errorf("%w: %v", dvderrors.ErrAuthoringFailed, err)
	}
	if !structure.FitsOnDVD(DVDCapacityGB) {
		a.log.Warnf("DVD capacity exceeded: %.2fGB > %.1fGB, continuing anyway",
			structure.SizeGB(), DVDCapacityGB)
	}

	videoTSDir := filepath.Join(playlistDir, "VIDEO_TS")
	audioTSDir := filepath.Join(playlistDir, "AUDIO_TS")
	for _, dir := range []string{videoTSDir, audioTSDir} {
		if err := os.RemoveAll(dir); err != nil {
			return AuthoredDVD{}, fmt.Errorf("%w: failed to clean %s: %v", dvderrors.ErrAuthoringFailed, dir, err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return AuthoredDVD{}, fmt.Errorf("%w: failed to create %s: %v", dvderrors.ErrAuthoringFailed, dir, err)
		}
	}

	a.reportProgress(1, 5, "Creating DVD authoring configuration")
	xmlFile, err := a.createAuthoringXML(ctx, structure, videoTSDir)
	if err != nil {
		return AuthoredDVD{}, err
	}

	a.reportProgress(2, 5, "Running dvdauthor")
	creationTime, err := a.runDVDAuthor(ctx, xmlFile, videoTSDir)
	if err != nil {
		return AuthoredDVD{}, err
	}

	a.reportProgress(3, 5, "Validating DVD structure")
	authored := AuthoredDVD{
		Structure:    structure,
		VideoTSDir:   videoTSDir,
		CreationTime: creationTime,
	}
	if err := authored.ValidateStructure(); err != nil {
		return AuthoredDVD{}, err
	}

	if a.settings.GenerateISO {
		a.reportProgress(4, 5, "Creating ISO image")
		isoFile, err := a.createISO(ctx, playlistDir, menuTitle)
		if err != nil {
			return AuthoredDVD{}, err
		}
		authored.ISOFile = isoFile
	}

	a.reportProgress(5, 5, "DVD creation complete")
	a.callback.Complete("DVD creation complete")
	a.log.Infof("DVD creation completed successfully: %.2fGB, %d chapters",
		authored.SizeGB(), structure.ChapterCount())

	entry := audit.Entry{
		Operation:  "author",
		PlaylistID: playlistID,
		Count:      structure.ChapterCount(),
		Bytes:      structure.TotalSize,
		Duration:   creationTime.Round(time.Millisecond).String(),
	}
	if authored.ISOFile != "" {
		entry.Files = []string{authored.ISOFile}
	}
	a.journal.Record(entry)

	return authored, nil
}

// buildChapters lays the converted videos out as sequential chapters,
// using each video's converted duration for the cumulative offsets.
func (a *Author) buildChapters(converted []convert.ConvertedVideo) []models.DVDChapter {
	a.log.Debugf("Creating DVD chapters from %d videos", len(converted))

	chapters := make([]models.DVDChapter, 0, len(converted))
	currentTime := 0
	for i, video := range converted {
		metadata := video.Metadata
		metadata.Duration = video.Duration

		chapter := models.DVDChapter{
			ChapterNumber: i + 1,
			VideoFile: models.VideoFile{
				Metadata: metadata,
				FilePath: video.VideoFile,
				FileSize: video.FileSize,
				Checksum: video.Checksum,
				Format:   "mpeg2",
			},
			StartTime: currentTime,
		}
		chapters = append(chapters, chapter)
		currentTime += chapter.Duration()

		a.log.Debugf("Created chapter %d: %s (%s, starts at %s)",
			i+1, metadata.Title,
			utils.FormatDuration(chapter.Duration()),
			utils.FormatDuration(chapter.StartTime))
	}
	a.log.Debugf("Created %d chapters with total duration %s",
		len(chapters), utils.FormatDuration(currentTime))
	return chapters
}

// createAuthoringXML renders the menu clips and writes the dvdauthor
// control file next to the VIDEO_TS directory.
func (a *Author) createAuthoringXML(ctx context.Context, structure models.DVDStructure, videoTSDir string) (string, error) {
	a.log.Debugf("Creating dvdauthor XML for %q", structure.MenuTitle)

	parentDir := filepath.Dir(videoTSDir)
	tempMenuDir := filepath.Join(parentDir, "temp_menus")
	if err := os.MkdirAll(tempMenuDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create menu directory: %v", dvderrors.ErrAuthoringFailed, err)
	}

	ordered := structure.ChaptersOrdered()

	vmgmAspect := a.settings.AspectRatio
	if a.settings.CarDVDCompatibility {
		a.log.Debugf("Car DVD compatibility: forcing VMGM aspect ratio from %s to 4:3",
			a.settings.AspectRatio)
		vmgmAspect = "4:3"
	}

	vmgmMenu := filepath.Join(tempMenuDir, "menu0-0.mpg")
	a.createMenuVideo(ctx, ordered[0].VideoFile.FilePath, vmgmMenu, vmgmAspect)
	if a.spumux.IsAvailable() {
		if err := a.spumux.AddButtonOverlay(ctx, vmgmMenu, tempMenuDir); err != nil {
			a.log.Warnf("Button overlay skipped: %v", err)
		}
	}

	chapterMenu := ""
	if len(ordered) > 1 {
		chapterMenu = filepath.Join(tempMenuDir, "menu1-0.mpg")
		a.createMenuVideo(ctx, ordered[1].VideoFile.FilePath, chapterMenu, a.settings.AspectRatio)
	}

	titleVobs := make([]string, 0, len(ordered))
	for _, chapter := range ordered {
		normalized, err := a.normalizeVideoPath(chapter.VideoFile.FilePath)
		if err != nil {
			return "", err
		}
		titleVobs = append(titleVobs, normalized)
	}

	doc := buildAuthoringDoc(a.settings, structure, videoTSDir, vmgmMenu, chapterMenu, titleVobs)
	xmlFile := filepath.Join(parentDir, "dvd_structure.xml")
	if err := writeAuthoringDoc(doc, xmlFile); err != nil {
		return "", fmt.Errorf("%w: %v", dvderrors.ErrAuthoringFailed, err)
	}
	a.log.Debugf("Created dvdauthor XML with menu videos: %s", xmlFile)
	return xmlFile, nil
}

// createMenuVideo renders a short DVD-format clip from the start of a
// chapter video for use as a menu background. Failures fall back to a
// generated black clip; the menu is cosmetic and must not block disc
// creation.
func (a *Author) createMenuVideo(ctx context.Context, sourceVideo, outputPath, aspect string) {
	framerate := "29.97"
	resolution := "720x480"
	if strings.ToUpper(a.settings.VideoFormat) == "PAL" {
		framerate = "25"
		resolution = "720x576"
	}

	args := []string{
		"-i", sourceVideo,
		"-t", menuClipSeconds,
		"-c:v", "mpeg2video",
		"-c:a", "ac3",
		"-b:v", "8000k",
		"-b:a", "192k",
		"-r", framerate,
		"-s", resolution,
		"-aspect", aspect,
		"-f", "dvd",
		"-y",
		outputPath,
	}

	a.log.Debugf("Creating menu video: %s", filepath.Base(outputPath))
	if err := a.runFFmpeg(ctx, args); err != nil {
		a.log.Warnf("Failed to create menu video %s: %v", outputPath, err)
		a.createBlackMenuVideo(ctx, outputPath, aspect)
	}
}

// createBlackMenuVideo generates a silent black clip as the menu
// background of last resort.
func (a *Author) createBlackMenuVideo(ctx context.Context, outputPath, aspect string) {
	args := []string{
		"-f", "lavfi",
		"-i", "color=black:size=720x480:duration=" + menuClipSeconds + ":rate=29.97",
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=48000",
		"-c:v", "mpeg2video",
		"-c:a", "ac3",
		"-b:v", "8000k",
		"-b:a", "192k",
		"-aspect", aspect,
		"-t", menuClipSeconds,
		"-f", "dvd",
		"-y",
		outputPath,
	}
	if err := a.runFFmpeg(ctx, args); err != nil {
		a.log.Errorf("Failed to create fallback menu video: %v", err)
		return
	}
	a.log.Debugf("Created fallback black menu video: %s", filepath.Base(outputPath))
}

func (a *Author) runFFmpeg(ctx context.Context, args []string) error {
	cmd, err := a.ffmpegCmd(ctx)
	if err != nil {
		return err
	}
	argv := append(append([]string{}, cmd[1:]...), args...)

	runCtx, cancel := context.WithTimeout(ctx, menuClipTimeout)
	defer cancel()

	result, err := a.runner.Run(runCtx, cmd[0], argv...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("ffmpeg exited with code %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// normalizeVideoPath copies a chapter video to an ASCII-safe filename
// when needed; dvdauthor mishandles non-ASCII paths on some platforms.
func (a *Author) normalizeVideoPath(videoPath string) (string, error) {
	name := filepath.Base(videoPath)
	asciiName := utils.NormalizeToASCII(name)
	if asciiName == name {
		return videoPath, nil
	}

	normalized := filepath.Join(filepath.Dir(videoPath), asciiName)
	if _, err := os.Stat(normalized); err == nil {
		return normalized, nil
	}
	a.log.Debugf("Copying video for ASCII compatibility: %s", asciiName)
	if err := copyFile(videoPath, normalized); err != nil {
		return "", fmt.Errorf("%w: failed to normalize video path: %v", dvderrors.ErrAuthoringFailed, err)
	}
	return normalized, nil
}

// runDVDAuthor executes dvdauthor against the control file, writing
// the structure into the parent of the VIDEO_TS directory.
func (a *Author) runDVDAuthor(ctx context.Context, xmlFile, videoTSDir string) (time.Duration, error) {
	a.log.Debugf("Running dvdauthor to create DVD structure")

	cmd, err := a.dvdauthorCmd(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: dvdauthor not found: %v\n%s",
			dvderrors.ErrAuthoringFailed, err, utils.DVDAuthorInstallInstructions())
	}
	argv := append(append([]string{}, cmd[1:]...), "-o", filepath.Dir(videoTSDir), "-x", xmlFile)

	runCtx, cancel := context.WithTimeout(ctx, authoringTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.runner.Run(runCtx, cmd[0], argv...)
	if err != nil {
		return 0, fmt.Errorf("%w: dvdauthor execution failed: %v", dvderrors.ErrAuthoringFailed, err)
	}
	if result.ExitCode != 0 {
		a.log.Errorf("dvdauthor failed with exit code %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
		return 0, fmt.Errorf("%w: dvdauthor execution failed: %s",
			dvderrors.ErrAuthoringFailed, strings.TrimSpace(result.Stderr))
	}

	elapsed := time.Since(start)
	a.log.Debugf("dvdauthor completed successfully in %.1fs", elapsed.Seconds())
	return elapsed, nil
}

// isoFilename derives a safe ISO filename from the menu title.
func isoFilename(title string) string {
	clean := utils.NormalizeToASCII(title)
	clean = unsafeNamePattern.ReplaceAllString(clean, "_")
	if len(clean) > 50 {
		clean = clean[:50]
	}
	clean = strings.Trim(clean, "_.- ")
	if clean == "" {
		clean = "dvd"
	}
	return clean + ".iso"
}

// createISO builds an ISO image of the authored disc with mkisofs.
func (a *Author) createISO(ctx context.Context, playlistDir, title string) (string, error) {
	a.log.Debugf("Creating ISO image from VIDEO_TS directory")

	isoFile := filepath.Join(playlistDir, isoFilename(title))
	if err := os.Remove(isoFile); err == nil {
		a.log.Debugf("Removed existing ISO file: %s", isoFile)
	}

	cmd, err := a.mkisofsCmd(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: no ISO creation tool found: %v\n"+
			"  macOS: brew install dvdrtools\n"+
			"  Ubuntu/Debian: sudo apt install genisoimage\n"+
			"  RHEL/CentOS: sudo yum install genisoimage",
			dvderrors.ErrAuthoringFailed, err)
	}
	argv := append(append([]string{}, cmd[1:]...), "-dvd-video", "-o", isoFile, playlistDir)

	runCtx, cancel := context.WithTimeout(ctx, isoTimeout)
	defer cancel()

	result, err := a.runner.Run(runCtx, cmd[0], argv...)
	if err != nil {
		return "", fmt.Errorf("%w: ISO creation failed: %v", dvderrors.ErrAuthoringFailed, err)
	}
	if result.ExitCode != 0 {
		a.log.Errorf("ISO creation failed with exit code %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
		return "", fmt.Errorf("%w: ISO creation failed: %s",
			dvderrors.ErrAuthoringFailed, strings.TrimSpace(result.Stderr))
	}
	a.log.Debugf("ISO creation completed: %s", ui.Path.Sprint(isoFile))
	return isoFile, nil
}

// EstimateCapacity reports the combined size of the converted videos
// and whether they fit on a single layer disc.
func (a *Author) EstimateCapacity(converted []convert.ConvertedVideo) (float64, bool) {
	var totalSize int64
	for _, video := range converted {
		totalSize += video.FileSize
	}
	sizeGB := float64(totalSize) / (1024 * 1024 * 1024)
	fits := sizeGB <= DVDCapacityGB
	a.log.Debugf("DVD capacity estimate: %.2fGB, fits on DVD: %v", sizeGB, fits)
	return sizeGB, fits
}

// SuccessfullyConverted filters out conversions whose files are
// missing or empty, so a partial batch still produces a disc.
func (a *Author) SuccessfullyConverted(converted []convert.ConvertedVideo) []convert.ConvertedVideo {
	successful := make([]convert.ConvertedVideo, 0, len(converted))
	for _, video := range converted {
		if video.Exists() && video.FileSize > 0 {
			successful = append(successful, video)
			a.log.Debugf("Including video: %s", video.Metadata.Title)
		} else {
			a.log.Warnf("Excluding missing/invalid video: %s", video.Metadata.Title)
		}
	}
	a.log.Infof("Found %d/%d successfully converted videos", len(successful), len(converted))
	return successful
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
		os.Remove(dst)
		return err
	}
	return out.Close()
}

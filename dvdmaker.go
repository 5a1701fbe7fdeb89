// Package dvdmaker turns video playlists into playable DVDs.
//
// The pipeline downloads every video in a playlist with yt-dlp,
// converts them to DVD-compliant MPEG-2 with ffmpeg, and authors a
// VIDEO_TS structure (optionally plus an ISO image) with dvdauthor
// and mkisofs. Intermediate artifacts are cached so interrupted runs
// resume where they left off.
//
//	settings := config.DefaultSettings()
//	pipeline, err := dvdmaker.New(settings, nil)
//	if err != nil {
//		return err
//	}
//	result, err := pipeline.CreateDVD(ctx, playlistURL)
package dvdmaker

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvdmaker/dvdmaker/internal/audit"
	"github.com/dvdmaker/dvdmaker/internal/author"
	"github.com/dvdmaker/dvdmaker/internal/cache"
	"github.com/dvdmaker/dvdmaker/internal/cleanup"
	"github.com/dvdmaker/dvdmaker/internal/config"
	"github.com/dvdmaker/dvdmaker/internal/console"
	"github.com/dvdmaker/dvdmaker/internal/convert"
	"github.com/dvdmaker/dvdmaker/internal/download"
	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
	logger "github.com/dvdmaker/dvdmaker/internal/logging"
	"github.com/dvdmaker/dvdmaker/internal/models"
	"github.com/dvdmaker/dvdmaker/internal/progress"
	"github.com/dvdmaker/dvdmaker/internal/tools"
	"github.com/dvdmaker/dvdmaker/internal/ui"
)

// Result summarizes one completed DVD creation run.
type Result struct {
	Playlist  *models.Playlist
	Converted []convert.ConvertedVideo
	Excluded  []convert.ExcludedVideo
	DVD       author.AuthoredDVD
}

// Pipeline wires the download, conversion, authoring and cleanup
// stages together. A Pipeline is safe to reuse for multiple playlists
// but runs one at a time.
type Pipeline struct {
	settings   config.Settings
	log        logger.Logger
	callback   progress.Callback
	cache      *cache.Manager
	tools      *tools.Manager
	downloader *download.Downloader
	converter  *convert.Converter
	author     *author.Author
	cleaner    *cleanup.Manager
}

// New builds a pipeline over the given settings. Verbosity comes from
// the settings' Verbose/Quiet flags. callback may be nil to
// discard progress updates.
func New(settings config.Settings, callback progress.Callback) (*Pipeline, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := settings.CreateDirectories(); err != nil {
		return nil, err
	}
	if callback == nil {
		callback = progress.Silent{}
	}

	log := logger.Logger{Verbose: settings.Verbose, Quiet: settings.Quiet}

	cacheManager, err := cache.NewManager(settings, log)
	if err != nil {
		return nil, fmt.Errorf("initializing cache: %w", err)
	}
	toolManager, err := tools.NewManager(settings, log, callback)
	if err != nil {
		return nil, fmt.Errorf("initializing tool manager: %w", err)
	}
	converter, err := convert.NewConverter(settings, log, toolManager, cacheManager, callback)
	if err != nil {
		return nil, fmt.Errorf("initializing converter: %w", err)
	}

	return &Pipeline{
		settings:   settings,
		log:        log,
		callback:   callback,
		cache:      cacheManager,
		tools:      toolManager,
		downloader: download.NewDownloader(settings, log, cacheManager, toolManager),
		converter:  converter,
		author:     author.NewAuthor(settings, log, toolManager, callback),
		cleaner: cleanup.NewManager(log, audit.Open(settings.LogDir),
			settings.CacheDir, settings.OutputDir, settings.TempDir),
	}, nil
}

// CreateDVD runs the full pipeline for one playlist URL: download,
// convert, capacity selection and authoring. Videos that fail to
// download or convert are skipped; the run fails only when nothing
// usable remains.
func (p *Pipeline) CreateDVD(ctx context.Context, playlistURL string) (Result, error) {
	if !p.downloader.ValidateURL(playlistURL) {
		return Result{}, fmt.Errorf("%w: %s", dvderrors.ErrInvalidPlaylistURL, playlistURL)
	}

	ok, missing := p.tools.EnsureAvailable(ctx)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", dvderrors.ErrToolNotFound, strings.Join(missing, "; "))
	}

	playlist, err := p.downloader.DownloadPlaylist(ctx, playlistURL, p.callback)
	if err != nil {
		return Result{}, err
	}

	var files []models.VideoFile
	for _, video := range playlist.AvailableVideos() {
		file, err := p.cache.CachedDownload(video.VideoID)
		if err != nil {
			p.log.Warnf("Skipping %s: %v", video.VideoID, err)
			continue
		}
		files = append(files, file)
	}
	if len(files) == 0 {
		return Result{Playlist: playlist},
			fmt.Errorf("%w: no videos were downloaded from %s", dvderrors.ErrDownloadFailed, playlistURL)
	}

	converted := p.converter.ConvertVideos(ctx, files)
	usable := p.author.SuccessfullyConverted(converted)
	if len(usable) == 0 {
		return Result{Playlist: playlist},
			fmt.Errorf("%w: no videos survived conversion", dvderrors.ErrConversionFailed)
	}

	selection, err := capacitySelection(p.log, usable)
	if err != nil {
		return Result{Playlist: playlist}, err
	}
	if selection.HasExclusions() && !p.settings.Quiet {
		console.PrintWarning(
			fmt.Sprintf("%d video(s) did not fit on the disc and were left off", len(selection.Excluded)),
			"Capacity")
		for _, excluded := range selection.Excluded {
			p.log.Infof("Left off: %s %s", excluded.Metadata.Title,
				ui.Muted.Sprintf("%.1fMB", excluded.SizeMB))
		}
	}

	menuTitle := p.settings.MenuTitle
	if menuTitle == "" {
		menuTitle = playlist.Metadata.Title
	}

	authored, err := p.author.CreateDVDStructure(ctx, selection.Included, menuTitle,
		p.settings.OutputDir, playlist.Metadata.PlaylistID)
	if err != nil {
		return Result{Playlist: playlist, Converted: selection.Included, Excluded: selection.Excluded}, err
	}

	if !p.settings.Quiet {
		console.PrintSuccess(fmt.Sprintf("DVD ready in %s", authored.VideoTSDir))
	}
	if !p.settings.GenerateISO {
		p.log.Infof("%s Enable generate_iso in the settings to also produce an ISO image",
			ui.Info.Sprint("→"))
	}

	return Result{
		Playlist:  playlist,
		Converted: selection.Included,
		Excluded:  selection.Excluded,
		DVD:       authored,
	}, nil
}

// capacitySelection narrows converted videos to what fits on a single
// layer disc, failing when not even the first video fits.
func capacitySelection(log logger.Logger, usable []convert.ConvertedVideo) (convert.CapacityResult, error) {
	selection := convert.SelectForCapacity(log, usable, author.DVDCapacityGB)
	if len(selection.Included) == 0 {
		return selection, fmt.Errorf("%w: no video fits within %.1fGB",
			dvderrors.ErrCapacityExceeded, author.DVDCapacityGB)
	}
	return selection, nil
}

// Clean removes cached and output artifacts from previous runs,
// returning per-area stats. Hidden staging entries are preserved.
func (p *Pipeline) Clean(dryRun bool) map[string]cleanup.Stats {
	return p.cleaner.CleanAll(dryRun)
}

// CleanPreview lists what a cleanup of the given type would remove.
// Types: downloads, conversions, dvd-output, isos, all.
func (p *Pipeline) CleanPreview(cleanupType string) []string {
	return p.cleaner.Preview(cleanupType)
}

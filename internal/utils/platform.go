package utils

import (
	"fmt"
	"runtime"

	dvderrors "github.com/dvdmaker/dvdmaker/internal/errors"
)

// OperatingSystem is the closed set of platforms the tool manager
// understands.
type OperatingSystem string

const (
	OSLinux   OperatingSystem = "linux"
	OSMacOS   OperatingSystem = "macos"
	OSWindows OperatingSystem = "windows"
	OSUnknown OperatingSystem = "unknown"
)

// Architecture is the closed set of CPU architectures with tool builds.
type Architecture string

const (
	ArchX64     Architecture = "x64"
	ArchARM64   Architecture = "arm64"
	ArchUnknown Architecture = "unknown"
)

// platformKey identifies an (OS, architecture) pair.
type platformKey struct {
	os   OperatingSystem
	arch Architecture
}

var ffmpegURLs = map[platformKey]string{
	{OSLinux, ArchX64}: "https://github.com/BtbN/FFmpeg-Builds/releases/download/" +
		"latest/ffmpeg-master-latest-linux64-gpl.tar.xz",
	{OSMacOS, ArchX64}:   "https://evermeet.cx/ffmpeg/ffmpeg-6.0.zip",
	{OSMacOS, ArchARM64}: "https://evermeet.cx/ffmpeg/ffmpeg-6.0.zip",
}

var ytdlpURLs = map[platformKey]string{
	{OSLinux, ArchX64}:   "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp",
	{OSLinux, ArchARM64}: "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64",
	{OSMacOS, ArchX64}:   "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_macos",
	{OSMacOS, ArchARM64}: "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_macos",
}

// DetectOS maps runtime.GOOS onto the supported OS set.
func DetectOS() OperatingSystem {
	return detectOS(runtime.GOOS)
}

func detectOS(goos string) OperatingSystem {
	switch goos {
	case "linux":
		return OSLinux
	case "darwin":
		return OSMacOS
	case "windows":
		return OSWindows
	default:
		return OSUnknown
	}
}

// DetectArchitecture maps runtime.GOARCH onto the supported
// architecture set.
func DetectArchitecture() Architecture {
	return detectArchitecture(runtime.GOARCH)
}

func detectArchitecture(goarch string) Architecture {
	switch goarch {
	case "amd64":
		return ArchX64
	case "arm64":
		return ArchARM64
	default:
		return ArchUnknown
	}
}

// DownloadURL returns the download URL for a tool on the current
// platform. Supported tools are "ffmpeg" and "yt-dlp".
func DownloadURL(tool string) (string, error) {
	key := platformKey{DetectOS(), DetectArchitecture()}

	var urls map[platformKey]string
	switch tool {
	case "ffmpeg":
		urls = ffmpegURLs
	case "yt-dlp":
		urls = ytdlpURLs
	default:
		return "", fmt.Errorf("unsupported tool: %s", tool)
	}

	url, ok := urls[key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s has no %s build",
			dvderrors.ErrUnsupportedPlatform, key.os, key.arch, tool)
	}
	return url, nil
}

// IsPlatformSupported reports whether both ffmpeg and yt-dlp builds
// exist for the current platform.
func IsPlatformSupported() bool {
	key := platformKey{DetectOS(), DetectArchitecture()}
	_, ffmpegOK := ffmpegURLs[key]
	_, ytdlpOK := ytdlpURLs[key]
	return ffmpegOK && ytdlpOK
}

// DVDAuthorInstallInstructions returns platform-appropriate install
// guidance for dvdauthor, which is never downloaded automatically.
func DVDAuthorInstallInstructions() string {
	switch DetectOS() {
	case OSMacOS:
		return "Install using: brew install dvdauthor"
	case OSLinux:
		return "Install using:\n" +
			"  Ubuntu/Debian: sudo apt install dvdauthor\n" +
			"  RHEL/CentOS: sudo yum install dvdauthor\n" +
			"  Fedora: sudo dnf install dvdauthor"
	case OSWindows:
		return "Windows is not currently supported"
	default:
		return "Unknown platform - manual installation required"
	}
}

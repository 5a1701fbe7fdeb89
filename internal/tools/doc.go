// Package tools manages the external programs the pipeline shells out
// to: ffmpeg, yt-dlp, dvdauthor and mkisofs.
//
// ffmpeg and yt-dlp can be downloaded automatically into the
// configured bin directory; dvdauthor and mkisofs are system-only and
// the manager reports installation instructions when they are missing.
// Probed tool status is cached per manager, and recorded versions
// live in tool_versions.json next to the binaries.
package tools

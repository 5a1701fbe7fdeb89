// Package download fetches YouTube playlists and videos with yt-dlp.
//
// Playlist metadata and per-video metadata come from a single
// flat-playlist JSON dump. Downloaded videos go straight into the
// cache so re-runs skip work that already succeeded, and individual
// download failures mark the video as failed without aborting the
// rest of the playlist.
package download

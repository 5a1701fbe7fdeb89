// Package author builds the final DVD from converted videos using
// dvdauthor.
//
// Each disc carries a single title whose chapters follow the playlist
// order, fronted by a DVDStyler-style menu: a video manager menu with
// a play button and, for multi-chapter discs, a titleset menu with up
// to six chapter buttons. Menu backgrounds are short clips rendered
// from the chapter videos, with a black clip as fallback, and spumux
// embeds the button overlay when it is installed. The authored
// VIDEO_TS structure is validated for complete title sets, and
// mkisofs optionally produces an ISO image.
package author

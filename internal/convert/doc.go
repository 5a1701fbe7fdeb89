// Package convert turns downloaded videos into DVD-compatible MPEG-2
// files with ffmpeg.
//
// Conversions target NTSC (720x480 at 29.97 fps) or PAL (720x576 at
// 25 fps) per the configured video format, mux straight to the DVD
// container format and produce a 160x120 menu thumbnail alongside each
// video. Results are cached under converted/<video-id>/ with a JSON
// metadata index, and SelectForCapacity fits the converted set onto a
// single-layer disc in playlist order.
package convert

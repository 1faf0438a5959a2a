// Package media wraps the ffmpeg invocations the pipeline depends on: audio
// extraction, zoom-effect rendering, and the final audio/video mux. Each
// collaborator builds its argument list separately from execution so the
// command construction can be tested without ffmpeg installed.
package media

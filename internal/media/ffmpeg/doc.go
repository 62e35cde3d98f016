// Package ffmpeg runs the ffmpeg invocations the detector depends on:
// cutting search-window clips, silencedetect over a clip, and streaming
// downscaled grayscale frames for video hashing.
package ffmpeg

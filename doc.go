// Package chime is a media playback controller. It manages a queue of media
// items, drives a streaming pipeline through a single worker goroutine and
// fans playback events out to application observers and reactors.
//
// The pipeline itself is pluggable through the pipeline.Pipeline interface;
// the beepline package provides an audio-only reference implementation.
package chime

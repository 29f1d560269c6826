// Package server exposes transcription sessions over HTTP: media upload,
// credential entry, processing, transcript download and a WebSocket stream
// of session state, along with health, statistics and Prometheus metrics.
package server

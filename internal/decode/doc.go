// Package decode turns media files into per-channel floating-point samples.
//
// Uncompressed PCM WAV files are read in-process with go-audio/wav. Every
// other audio or video container is handed to ffmpeg, which streams raw
// float32 samples back over a pipe. Decoders are tried in registration
// order and the first one that succeeds wins.
package decode

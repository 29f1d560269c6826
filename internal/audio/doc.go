// Package audio holds decoded PCM sample data and converts it to and from the
// canonical 16-bit WAV container sent for transcription.
package audio

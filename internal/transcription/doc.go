// Package transcription sends encoded audio to a remote speech model and
// returns the generated text.
//
// Two backends implement Provider: a REST client for the Gemini
// generateContent API, which receives the WAV container as base64 inline
// data, and an OpenAI Whisper client built on go-openai. Both make exactly
// one request per call. Failures are never retried and an empty transcript
// counts as a failure.
//
// Concurrency is capped by a semaphore shared by all callers of a client,
// and per-client request statistics are available through Stats.
package transcription

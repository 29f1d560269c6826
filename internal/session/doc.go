// Package session tracks user transcription sessions: the selected file,
// a saved credential, and the state of the current attempt.
package session

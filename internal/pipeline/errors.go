package pipeline

import (
	"context"
	"errors"
)

// Outcome labels a run result for metrics
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrDecode):
		return "decode_failure"
	case errors.Is(err, ErrRemote):
		return "remote_failure"
	default:
		return "error"
	}
}

// UserMessage maps an error to the generic text shown to users.
// Details stay in the logs.
func UserMessage(err error) string {
	switch Outcome(err) {
	case "success":
		return ""
	case "cancelled":
		return "Processing was cancelled."
	case "invalid_input":
		return "Please select a valid audio or video file."
	case "missing_credential":
		return "An API key is required to transcribe. Please provide one."
	case "decode_failure":
		return "Could not process the file. Make sure the format is supported."
	case "remote_failure":
		return "Transcription failed. Please try again."
	default:
		return "Something went wrong while processing the file."
	}
}

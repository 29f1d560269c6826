// Package bridge converts binary payloads to and from the base64 text form
// embedded in JSON request bodies.
package bridge

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Encode returns the standard, padded base64 form of data.
// Empty input yields an empty string.
func Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode. A data URI prefix is accepted and ignored.
func Decode(text string) ([]byte, error) {
	text = StripDataURI(text)
	if text == "" {
		return []byte{}, nil
	}

	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return data, nil
}

// DataURI wraps data in a "data:<mime>;base64," URI
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + Encode(data)
}

// StripDataURI removes a leading "data:...," prefix if present
func StripDataURI(text string) string {
	if !strings.HasPrefix(text, "data:") {
		return text
	}

	if idx := strings.IndexByte(text, ','); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

package decode

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Container types that extension lookup gets wrong or misses on minimal systems
var extensionTypes = map[string]string{
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".weba": "audio/webm",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

// DetectMediaType returns the media type of a file from its name and the
// first bytes of its content. The file extension takes priority; content
// sniffing fills in when the extension is unknown.
func DetectMediaType(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mediaType, ok := extensionTypes[ext]; ok {
		return mediaType
	}

	if ext != "" {
		if mediaType := mime.TypeByExtension(ext); mediaType != "" {
			return baseType(mediaType)
		}
	}

	if len(head) == 0 {
		return "application/octet-stream"
	}

	return baseType(http.DetectContentType(head))
}

// IsSupported reports whether mediaType is an audio or video type
func IsSupported(mediaType string) bool {
	mediaType = baseType(mediaType)
	return strings.HasPrefix(mediaType, "audio/") || strings.HasPrefix(mediaType, "video/")
}

// IsWAV reports whether mediaType names a RIFF/WAVE file
func IsWAV(mediaType string) bool {
	switch baseType(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return true
	}
	return false
}

func baseType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

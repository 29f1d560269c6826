package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elian-pro/Transcribir/internal/decode"
	"github.com/elian-pro/Transcribir/internal/pipeline"
	"github.com/elian-pro/Transcribir/internal/session"
)

// sniffLength is how much of an upload is read for content detection
const sniffLength = 512

func (h *HTTPServer) listSessions(c *gin.Context) {
	snapshots := h.sessions.GetAllSessions()
	c.JSON(http.StatusOK, gin.H{
		"total_sessions": len(snapshots),
		"sessions":       snapshots,
	})
}

func (h *HTTPServer) createSession(c *gin.Context) {
	s := h.sessions.CreateSession()
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *HTTPServer) getSession(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *HTTPServer) deleteSession(c *gin.Context) {
	if !h.sessions.RemoveSession(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPServer) uploadFile(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}

	maxBytes := h.config.Upload.MaxBytes
	// Leave room for multipart framing around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectUpload(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("File exceeds the %d byte limit.", maxBytes))
			return
		}
		h.validationError(c, "multipart field 'file' is required")
		return
	}

	if fileHeader.Size > maxBytes {
		h.rejectUpload(c, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Sprintf("File exceeds the %d byte limit.", maxBytes))
		return
	}

	mediaType, err := uploadMediaType(fileHeader)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if !decode.IsSupported(mediaType) {
		err := s.SelectFile(&session.Upload{Name: fileHeader.Filename, MediaType: mediaType})
		if errors.Is(err, session.ErrNeedsReset) {
			h.metrics.RecordUpload(false, 0)
			h.handleError(c, err)
			return
		}
		h.rejectUpload(c, http.StatusUnsupportedMediaType, "invalid_input", pipeline.UserMessage(err))
		return
	}

	if err := os.MkdirAll(h.config.Upload.Dir, 0700); err != nil {
		h.handleError(c, fmt.Errorf("failed to create upload dir: %w", err))
		return
	}

	name := filepath.Base(fileHeader.Filename)
	path := filepath.Join(h.config.Upload.Dir, s.ID+"-"+uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		h.handleError(c, fmt.Errorf("failed to store upload: %w", err))
		return
	}

	upload := &session.Upload{
		Path:      path,
		Name:      name,
		MediaType: mediaType,
		Size:      fileHeader.Size,
	}
	if err := s.SelectFile(upload); err != nil {
		os.Remove(path)
		if errors.Is(err, session.ErrNeedsReset) {
			h.metrics.RecordUpload(false, 0)
		}
		h.handleError(c, err)
		return
	}

	h.metrics.RecordUpload(true, fileHeader.Size)
	h.logger.Info("File selected",
		slog.String("session_id", s.ID),
		slog.String("file", name),
		slog.String("media_type", mediaType),
		slog.Int64("size", fileHeader.Size),
	)

	c.JSON(http.StatusOK, s.Snapshot())
}

// uploadMediaType prefers the declared type when it is audio or video and
// otherwise detects it from the name and content
func uploadMediaType(fileHeader *multipart.FileHeader) (string, error) {
	if declared, _, err := mime.ParseMediaType(fileHeader.Header.Get("Content-Type")); err == nil && decode.IsSupported(declared) {
		return declared, nil
	}

	f, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	return decode.DetectMediaType(fileHeader.Filename, head[:n]), nil
}

func (h *HTTPServer) rejectUpload(c *gin.Context, status int, code, message string) {
	h.metrics.RecordUpload(false, 0)
	c.JSON(status, gin.H{"error": code, "message": message})
}

func (h *HTTPServer) saveCredential(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var payload struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.APIKey) == "" {
		h.validationError(c, "api_key is required")
		return
	}

	s.SaveCredential(strings.TrimSpace(payload.APIKey))
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *HTTPServer) transcribe(c *gin.Context) {
	var payload struct {
		APIKey string `json:"api_key"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			h.validationError(c, "body must be JSON")
			return
		}
	}

	id := c.Param("id")
	origin, err := h.sessions.Process(id, payload.APIKey)
	if err != nil {
		h.handleError(c, err)
		return
	}

	s, ok := h.sessions.GetSession(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"credential_origin": origin,
		"session":           s.Snapshot(),
	})
}

func (h *HTTPServer) resetSession(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}

	s.Reset()
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *HTTPServer) getTranscript(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}

	result, err := s.Transcript()
	if err != nil {
		h.handleError(c, err)
		return
	}

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, result)
		return
	}

	if c.Query("download") != "" {
		c.Header("Content-Disposition", `attachment; filename="transcript.txt"`)
	}
	c.String(http.StatusOK, result.Text)
}

func (h *HTTPServer) lookupSession(c *gin.Context) (*session.Session, bool) {
	s, ok := h.sessions.GetSession(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return nil, false
	}
	return s, true
}

func (h *HTTPServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, session.ErrNoFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_file", "message": "Select a file first."})
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "busy", "message": "Reset the session before starting again."})
	case errors.Is(err, session.ErrNeedsReset):
		c.JSON(http.StatusConflict, gin.H{"error": "needs_reset", "message": "Reset the session first."})
	case errors.Is(err, session.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready", "message": "No transcript is available yet."})
	case errors.Is(err, pipeline.ErrMissingCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_credential", "message": pipeline.UserMessage(err)})
	case errors.Is(err, pipeline.ErrInvalidInput):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "invalid_input", "message": pipeline.UserMessage(err)})
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *HTTPServer) validationError(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": msg})
}

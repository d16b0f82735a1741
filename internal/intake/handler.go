package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/queue"
	"github.com/livebooks-app/backend/pkg/response"
	"github.com/livebooks-app/backend/pkg/storage"
)

// Store is the palestra persistence surface intake needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Palestra, error)
	AppendMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// Uploader streams media payloads into durable object storage.
type Uploader interface {
	MediaBucket() string
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Enqueuer hands transcription work to the background worker.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscriptionPayload) error
}

// Handler accepts uploaded or recorded media and kicks off the pipeline.
type Handler struct {
	store    Store
	uploader Uploader
	enqueuer Enqueuer
	maxBytes int64
	logger   *zap.Logger
}

// NewHandler creates a media intake handler.
func NewHandler(store Store, uploader Uploader, enqueuer Enqueuer, maxBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = storage.DefaultMaxMediaSize
	}
	return &Handler{store: store, uploader: uploader, enqueuer: enqueuer, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /palestras/:id/media (multipart fields: file, usuarioId).
// Validation failures reject synchronously with no side effects; on success
// the response returns as soon as the storage write lands — transcription
// continues out of band through the job queue.
func (h *Handler) Upload(c *gin.Context) {
	palestraID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid palestra id")
		return
	}
	usuarioID, err := uuid.Parse(c.PostForm("usuarioId"))
	if err != nil {
		response.BadRequest(c, "usuarioId required")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !storage.ValidateMediaType(contentType) {
		response.BadRequest(c, "invalid file type: only audio and video files are accepted")
		return
	}
	if header.Size > h.maxBytes {
		response.PayloadTooLarge(c, fmt.Sprintf("file exceeds the %d byte limit", h.maxBytes))
		return
	}
	if header.Size == 0 {
		response.BadRequest(c, "empty file")
		return
	}

	p, err := h.store.GetByID(c.Request.Context(), palestraID)
	if err != nil {
		h.logger.Error("load palestra failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
		response.Internal(c, "failed to load palestra")
		return
	}
	if p == nil {
		response.NotFound(c, "palestra not found")
		return
	}
	if p.UsuarioID != usuarioID {
		response.BadRequest(c, "palestra does not belong to usuarioId")
		return
	}

	key := storage.MediaKey(usuarioID.String(), palestraID.String(), header.Filename, time.Now())
	publicURL, err := h.uploader.Upload(c.Request.Context(), h.uploader.MediaBucket(), key, contentType, file, header.Size)
	if err != nil {
		h.logger.Error("media upload failed", zap.Error(err),
			zap.String("palestra_id", palestraID.String()), zap.String("key", key))
		response.Internal(c, "failed to store media")
		return
	}

	if err := h.store.AppendMediaURL(c.Request.Context(), palestraID, publicURL); err != nil {
		h.logger.Error("append media handle failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
		response.Internal(c, "failed to record media")
		return
	}
	if _, err := h.store.UpdateStatusIf(c.Request.Context(), palestraID,
		models.PalestraStatusAguardando, models.PalestraStatusProcessando); err != nil {
		h.logger.Warn("status advance failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
	}

	if err := h.enqueuer.EnqueueTranscription(c.Request.Context(), queue.TranscriptionPayload{
		PalestraID: palestraID,
		UsuarioID:  usuarioID,
		MediaKey:   key,
	}); err != nil {
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
		response.Internal(c, "failed to schedule transcription")
		return
	}

	h.logger.Info("media intake completed",
		zap.String("palestra_id", palestraID.String()),
		zap.String("key", key),
		zap.Int64("size", header.Size))
	c.JSON(http.StatusOK, gin.H{"success": true, "path": key, "publicUrl": publicURL})
}

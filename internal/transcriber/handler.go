package transcriber

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/queue"
	"github.com/livebooks-app/backend/pkg/response"
)

// TriggerRequest is the body for POST /transcriptions.
type TriggerRequest struct {
	AudioURL   string `json:"audioUrl" binding:"required"`
	PalestraID string `json:"palestraId" binding:"required"`
	Async      bool   `json:"async"`
}

// Executor runs one transcription attempt inline.
type Executor interface {
	Execute(ctx context.Context, payload queue.TranscriptionPayload) (string, error)
}

// Enqueuer schedules a transcription attempt out of band.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscriptionPayload) error
}

// Handler exposes the transcription trigger endpoint in synchronous and
// asynchronous modes.
type Handler struct {
	executor Executor
	enqueuer Enqueuer
	logger   *zap.Logger
}

// NewHandler creates a transcription trigger handler.
func NewHandler(executor Executor, enqueuer Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{executor: executor, enqueuer: enqueuer, logger: logger}
}

// Trigger handles POST /transcriptions. Async mode returns 202 immediately;
// sync mode blocks on the provider call and maps failure classes to status
// codes (400 input, 500 provider/storage, 504 timeout).
func (h *Handler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	palestraID, err := uuid.Parse(req.PalestraID)
	if err != nil {
		response.BadRequest(c, "invalid palestraId")
		return
	}

	payload := queue.TranscriptionPayload{
		PalestraID: palestraID,
		AudioURL:   req.AudioURL,
	}

	if req.Async {
		if err := h.enqueuer.EnqueueTranscription(c.Request.Context(), payload); err != nil {
			h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
			response.Internal(c, "failed to schedule transcription")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"success":    true,
			"status":     models.PalestraStatusProcessando,
			"palestraId": palestraID,
		})
		return
	}

	transcript, err := h.executor.Execute(c.Request.Context(), payload)
	if err != nil {
		h.logger.Error("synchronous transcription failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
		switch {
		case errors.Is(err, ErrTimeout):
			response.GatewayTimeout(c, "transcription timed out; the job may still complete server-side")
		case errors.Is(err, ErrPalestraNotFound):
			response.BadRequest(c, "palestra not found")
		default:
			response.Internal(c, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"transcricao": transcript,
		"palestraId":  palestraID,
		"caracteres":  utf8.RuneCountInString(transcript),
	})
}

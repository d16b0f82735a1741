package livebooks

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/response"
)

// ListStore is the livebook read surface for HTTP listing.
type ListStore interface {
	ListByPalestra(ctx context.Context, palestraID uuid.UUID) ([]models.Livebook, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Livebook, error)
}

// PalestraReader loads palestras for explicit livebook requests.
type PalestraReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Palestra, error)
}

// RequestBody is the body for POST /palestras/:id/livebooks.
type RequestBody struct {
	SummaryType string `json:"summary_type"`
}

// Handler handles livebook HTTP endpoints.
type Handler struct {
	store      ListStore
	palestras  PalestraReader
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewHandler creates a livebooks handler.
func NewHandler(store ListStore, palestras PalestraReader, dispatcher *Dispatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, palestras: palestras, dispatcher: dispatcher, logger: logger}
}

// ListByPalestra handles GET /palestras/:id/livebooks.
func (h *Handler) ListByPalestra(c *gin.Context) {
	palestraID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid palestra id")
		return
	}
	list, err := h.store.ListByPalestra(c.Request.Context(), palestraID)
	if err != nil {
		h.logger.Error("list livebooks failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
		response.Internal(c, "failed to list livebooks")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /livebooks/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid livebook id")
		return
	}
	lb, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get livebook failed", zap.Error(err), zap.String("livebook_id", id.String()))
		response.Internal(c, "failed to load livebook")
		return
	}
	if lb == nil {
		response.NotFound(c, "livebook not found")
		return
	}
	response.OK(c, lb)
}

// Request handles POST /palestras/:id/livebooks: an explicit request for one
// summary variant. Requires the transcript to be present.
func (h *Handler) Request(c *gin.Context) {
	palestraID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid palestra id")
		return
	}
	var body RequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.SummaryType != "" && !models.ValidSummaryType(body.SummaryType) {
		response.BadRequest(c, "invalid summary_type")
		return
	}

	p, err := h.palestras.GetByID(c.Request.Context(), palestraID)
	if err != nil {
		h.logger.Error("load palestra failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
		response.Internal(c, "failed to load palestra")
		return
	}
	if p == nil {
		response.NotFound(c, "palestra not found")
		return
	}

	lb, err := h.dispatcher.Dispatch(c.Request.Context(), p, body.SummaryType)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateDispatch):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrTranscriptNotReady):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("dispatch livebook failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
			response.Internal(c, "failed to request livebook")
		}
		return
	}
	response.Created(c, lb)
}

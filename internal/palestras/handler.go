package palestras

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/response"
)

// Store is the palestra persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, p *models.Palestra) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Palestra, error)
	ListByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]models.Palestra, error)
}

// MediaPresigner produces short-lived download URLs for stored media.
type MediaPresigner interface {
	MediaBucket() string
	PresignExpire() time.Duration
	KeyFromPublicURL(bucket, url string) string
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// CreateRequest is the body for POST /palestras.
type CreateRequest struct {
	UsuarioID    string `json:"usuario_id" binding:"required"`
	Titulo       string `json:"titulo"`
	GeneratorURL string `json:"generator_url"`
	SummaryType  string `json:"summary_type"`
}

// Handler handles palestra HTTP endpoints.
type Handler struct {
	store   Store
	presign MediaPresigner
	logger  *zap.Logger
}

// NewHandler creates a palestras handler. presign may be nil when S3 is not configured.
func NewHandler(store Store, presign MediaPresigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, presign: presign, logger: logger}
}

// Create handles POST /palestras.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	usuarioID, err := uuid.Parse(req.UsuarioID)
	if err != nil {
		response.BadRequest(c, "invalid usuario_id")
		return
	}
	if req.SummaryType != "" && !models.ValidSummaryType(req.SummaryType) {
		response.BadRequest(c, "invalid summary_type")
		return
	}
	p := &models.Palestra{
		UsuarioID:    usuarioID,
		Titulo:       req.Titulo,
		GeneratorURL: req.GeneratorURL,
		SummaryType:  req.SummaryType,
	}
	if err := h.store.Create(c.Request.Context(), p); err != nil {
		h.logger.Error("create palestra failed", zap.Error(err))
		response.Internal(c, "failed to create palestra")
		return
	}
	p.Status = models.PalestraStatusAguardando
	response.Created(c, p)
}

// GetByID handles GET /palestras/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid palestra id")
		return
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get palestra failed", zap.Error(err), zap.String("palestra_id", id.String()))
		response.Internal(c, "failed to load palestra")
		return
	}
	if p == nil {
		response.NotFound(c, "palestra not found")
		return
	}
	response.OK(c, p)
}

// List handles GET /palestras?usuario_id=.
func (h *Handler) List(c *gin.Context) {
	usuarioID, err := uuid.Parse(c.Query("usuario_id"))
	if err != nil {
		response.BadRequest(c, "usuario_id required")
		return
	}
	list, err := h.store.ListByUsuario(c.Request.Context(), usuarioID)
	if err != nil {
		h.logger.Error("list palestras failed", zap.Error(err))
		response.Internal(c, "failed to list palestras")
		return
	}
	response.OK(c, list)
}

// Status handles GET /palestras/:id/status, the endpoint the progress monitor
// polls. The transcript is included once present so a successful poll carries
// the final payload.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid palestra id")
		return
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("status query failed", zap.Error(err), zap.String("palestra_id", id.String()))
		response.Internal(c, "failed to load palestra")
		return
	}
	if p == nil {
		response.NotFound(c, "palestra not found")
		return
	}
	body := gin.H{"palestraId": p.ID, "status": p.Status}
	if p.HasTranscript() {
		body["transcricao"] = p.Transcricao
	}
	response.OK(c, body)
}

// MediaDownloadURL handles GET /palestras/:id/media-url. Presigns the most
// recently ingested media object.
func (h *Handler) MediaDownloadURL(c *gin.Context) {
	if h.presign == nil {
		response.Internal(c, "S3 not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid palestra id")
		return
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil || p == nil {
		response.NotFound(c, "palestra not found")
		return
	}
	if len(p.MediaURLs) == 0 {
		response.NotFound(c, "palestra has no media")
		return
	}
	last := p.MediaURLs[len(p.MediaURLs)-1]
	key := h.presign.KeyFromPublicURL(h.presign.MediaBucket(), last)
	if key == "" {
		response.Internal(c, "media handle does not belong to the media bucket")
		return
	}
	expire := h.presign.PresignExpire()
	url, err := h.presign.GeneratePresignedDownloadURL(c.Request.Context(), h.presign.MediaBucket(), key, expire)
	if err != nil {
		h.logger.Error("presign media download failed", zap.Error(err), zap.String("palestra_id", id.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

package livebooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/response"
)

// CallbackPayload is the body the external generator posts when a livebook
// finishes. Presence of erro short-circuits to the error path.
type CallbackPayload struct {
	PalestraID         string `json:"palestra_id" binding:"required"`
	PDFURL             string `json:"pdf_url"`
	HTMLURL            string `json:"html_url"`
	DocxURL            string `json:"docx_url"`
	SummaryType        string `json:"summary_type"`
	TempoProcessamento int    `json:"tempo_processamento"`
	Erro               string `json:"erro"`
}

// WebhookStore is the livebook persistence surface the receiver needs. The
// receiver is the only writer of livebook terminal state.
type WebhookStore interface {
	FindNonTerminal(ctx context.Context, palestraID uuid.UUID, summaryType string) (*models.Livebook, error)
	FindLatest(ctx context.Context, palestraID uuid.UUID, summaryType string) (*models.Livebook, error)
	MarkConcluido(ctx context.Context, id uuid.UUID, pdfURL, htmlURL, docxURL string, tempoSeconds int) error
	MarkErro(ctx context.Context, id uuid.UUID, detail string) error
}

// PalestraStatusStore advances the parent palestra on successful completion.
type PalestraStatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// StatusPublisher pushes palestra status changes to live subscribers.
type StatusPublisher interface {
	PublishStatus(palestraID uuid.UUID, status string)
}

// WebhookHandler receives completion callbacks from the livebook generator.
type WebhookHandler struct {
	store     WebhookStore
	palestras PalestraStatusStore
	tokens    *TokenService // nil disables token validation
	publisher StatusPublisher
	logger    *zap.Logger
}

// NewWebhookHandler creates a completion webhook handler. tokens and
// publisher may be nil.
func NewWebhookHandler(store WebhookStore, palestras PalestraStatusStore, tokens *TokenService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{store: store, palestras: palestras, tokens: tokens, logger: logger}
}

// SetStatusPublisher wires the realtime status publisher.
func (h *WebhookHandler) SetStatusPublisher(p StatusPublisher) { h.publisher = p }

// LivebookReady handles POST /webhooks/livebook-ready. Duplicate deliveries
// for an already-terminal livebook are acknowledged as no-ops: the generator
// retries its callback and must never see a user-visible failure for that.
func (h *WebhookHandler) LivebookReady(c *gin.Context) {
	if h.tokens != nil {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || h.tokens.Validate(token) != nil {
			response.Unauthorized(c, "invalid webhook token")
			return
		}
	}

	var body CallbackPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	palestraID, err := uuid.Parse(body.PalestraID)
	if err != nil {
		response.BadRequest(c, "invalid palestra_id")
		return
	}
	if body.SummaryType != "" && !models.ValidSummaryType(body.SummaryType) {
		response.BadRequest(c, "invalid summary_type")
		return
	}

	ctx := c.Request.Context()
	lb, err := h.store.FindNonTerminal(ctx, palestraID, body.SummaryType)
	if err != nil {
		h.logger.Error("find livebook failed", zap.Error(err), zap.String("palestra_id", body.PalestraID))
		response.Internal(c, "failed to locate livebook")
		return
	}
	if lb == nil {
		latest, err := h.store.FindLatest(ctx, palestraID, body.SummaryType)
		if err != nil {
			h.logger.Error("find livebook failed", zap.Error(err), zap.String("palestra_id", body.PalestraID))
			response.Internal(c, "failed to locate livebook")
			return
		}
		if latest == nil {
			response.NotFound(c, "no livebook for palestra")
			return
		}
		if models.IsTerminalLivebookStatus(latest.Status) {
			// Duplicate callback for a finished livebook: acknowledge without
			// mutation so the generator's retries never see a failure.
			h.logger.Info("duplicate livebook callback ignored",
				zap.String("livebook_id", latest.ID.String()), zap.String("status", latest.Status))
			c.JSON(http.StatusOK, gin.H{"success": true, "livebook_id": latest.ID, "status": latest.Status})
			return
		}
		// Created between the two reads; treat it as the callback's target.
		lb = latest
	}

	if body.Erro != "" {
		// Error path: record detail, accept no artifacts, leave the parent
		// palestra untouched.
		if err := h.store.MarkErro(ctx, lb.ID, body.Erro); err != nil {
			h.logger.Error("mark livebook erro failed", zap.Error(err), zap.String("livebook_id", lb.ID.String()))
			response.Internal(c, "failed to update livebook")
			return
		}
		h.logger.Info("livebook errored",
			zap.String("livebook_id", lb.ID.String()), zap.String("erro", body.Erro))
		c.JSON(http.StatusOK, gin.H{"success": true, "livebook_id": lb.ID, "status": models.LivebookStatusErro})
		return
	}

	artifacts := models.Livebook{PDFURL: body.PDFURL, HTMLURL: body.HTMLURL, DocxURL: body.DocxURL}
	if !artifacts.HasArtifact() {
		response.BadRequest(c, "at least one artifact URL required")
		return
	}

	if err := h.store.MarkConcluido(ctx, lb.ID, artifacts.PDFURL, artifacts.HTMLURL, artifacts.DocxURL, body.TempoProcessamento); err != nil {
		h.logger.Error("mark livebook concluido failed", zap.Error(err), zap.String("livebook_id", lb.ID.String()))
		response.Internal(c, "failed to update livebook")
		return
	}
	if err := h.palestras.UpdateStatus(ctx, palestraID, models.PalestraStatusConcluido); err != nil {
		h.logger.Error("advance palestra failed", zap.Error(err), zap.String("palestra_id", body.PalestraID))
	} else if h.publisher != nil {
		h.publisher.PublishStatus(palestraID, models.PalestraStatusConcluido)
	}

	h.logger.Info("livebook concluded",
		zap.String("livebook_id", lb.ID.String()),
		zap.Int("tempo_processamento", body.TempoProcessamento))
	c.JSON(http.StatusOK, gin.H{"success": true, "livebook_id": lb.ID, "status": models.LivebookStatusConcluido})
}

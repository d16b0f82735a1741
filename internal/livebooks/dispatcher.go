package livebooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
)

// ErrDuplicateDispatch is returned when a livebook for the (palestra,
// variant) pair is already in flight. Creating a second one would bill the
// external generator twice.
var ErrDuplicateDispatch = errors.New("livebook generation already in flight for this palestra and variant")

// ErrTranscriptNotReady is returned when dispatch is requested before the
// palestra has a transcript.
var ErrTranscriptNotReady = errors.New("palestra has no transcript yet")

// CreatorStore is the livebook persistence surface the dispatcher needs.
type CreatorStore interface {
	Create(ctx context.Context, l *models.Livebook) (bool, error)
}

// GenerationRequest is the one-way notification sent to the external
// livebook generator.
type GenerationRequest struct {
	PalestraID  uuid.UUID `json:"palestra_id"`
	LivebookID  uuid.UUID `json:"livebook_id"`
	UsuarioID   uuid.UUID `json:"usuario_id"`
	SummaryType string    `json:"summary_type"`
	Transcricao string    `json:"transcricao"`
	MediaURLs   []string  `json:"media_urls,omitempty"`
}

// Dispatcher creates livebook records and fires one-way generation
// notifications, detached from whichever request triggered them.
type Dispatcher struct {
	store        CreatorStore
	generatorURL string // default target when the palestra has none
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewDispatcher creates a livebook dispatcher.
func NewDispatcher(store CreatorStore, generatorURL string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:        store,
		generatorURL: generatorURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// Dispatch creates a livebook for the palestra and variant and fires the
// generation notification. At most one livebook per (palestra, variant) may
// be in flight; a concurrent duplicate surfaces as ErrDuplicateDispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, p *models.Palestra, summaryType string) (*models.Livebook, error) {
	if !p.HasTranscript() {
		return nil, ErrTranscriptNotReady
	}
	if summaryType == "" {
		summaryType = p.SummaryType
	}
	if summaryType == "" {
		summaryType = models.SummaryTypeGeralResumido
	}
	if !models.ValidSummaryType(summaryType) {
		return nil, fmt.Errorf("invalid summary_type %q", summaryType)
	}

	target := p.GeneratorURL
	if target == "" {
		target = d.generatorURL
	}
	if target == "" {
		return nil, errors.New("no generator target configured")
	}

	lb := &models.Livebook{
		PalestraID:  p.ID,
		UsuarioID:   p.UsuarioID,
		SummaryType: summaryType,
	}
	created, err := d.store.Create(ctx, lb)
	if err != nil {
		return nil, fmt.Errorf("create livebook: %w", err)
	}
	if !created {
		return nil, ErrDuplicateDispatch
	}

	// Best-effort, not awaited: delivery failure is logged but never rolls
	// back the livebook — the generator may fetch state on its own, and a
	// stalled livebook escalates through the webhook timeout path.
	notification := GenerationRequest{
		PalestraID:  p.ID,
		LivebookID:  lb.ID,
		UsuarioID:   p.UsuarioID,
		SummaryType: summaryType,
		Transcricao: p.Transcricao,
		MediaURLs:   p.MediaURLs,
	}
	go d.notify(target, notification)

	d.logger.Info("livebook dispatched",
		zap.String("livebook_id", lb.ID.String()),
		zap.String("palestra_id", p.ID.String()),
		zap.String("summary_type", summaryType))
	return lb, nil
}

// DispatchAfterTranscription is the transcription worker's hook: dispatch the
// palestra's default variant when a generator target is configured. Duplicate
// dispatch is expected under retries and only logged.
func (d *Dispatcher) DispatchAfterTranscription(ctx context.Context, p *models.Palestra) {
	if p.GeneratorURL == "" && d.generatorURL == "" {
		return
	}
	if _, err := d.Dispatch(ctx, p, p.SummaryType); err != nil {
		if errors.Is(err, ErrDuplicateDispatch) {
			d.logger.Debug("livebook already in flight", zap.String("palestra_id", p.ID.String()))
			return
		}
		d.logger.Error("post-transcription dispatch failed", zap.Error(err), zap.String("palestra_id", p.ID.String()))
	}
}

// notify runs on its own goroutine with its own deadline, independent of the
// originating request's lifecycle.
func (d *Dispatcher) notify(target string, req GenerationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		d.logger.Error("marshal generation request failed", zap.Error(err))
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("create generation request failed", zap.Error(err), zap.String("target", target))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		d.logger.Warn("generation notification delivery failed",
			zap.Error(err), zap.String("livebook_id", req.LivebookID.String()))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("generation notification rejected",
			zap.Int("status", resp.StatusCode), zap.String("livebook_id", req.LivebookID.String()))
		return
	}
	d.logger.Debug("generation notification delivered", zap.String("livebook_id", req.LivebookID.String()))
}

package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/queue"
)

// ErrNoMedia is returned when the job references a missing or empty payload.
// This class of failure is an intake defect, never retried.
var ErrNoMedia = errors.New("media payload missing or empty")

// ErrPalestraNotFound is returned when the job references an unknown palestra.
var ErrPalestraNotFound = errors.New("palestra not found")

// Store is the palestra persistence surface the processor needs. The
// processor owns the status and transcript fields; every invocation re-reads
// current state instead of caching it across jobs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Palestra, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetTranscript(ctx context.Context, id uuid.UUID, transcricao, status string) error
}

// Downloader retrieves stored media payloads.
type Downloader interface {
	MediaBucket() string
	GetObjectStream(ctx context.Context, bucket, key string) (io.ReadCloser, string, int64, error)
}

// Provider converts an audio payload into a transcript.
type Provider interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader, contentType string) (*Result, error)
}

// Dispatcher is invoked once a transcript lands, to kick off livebook
// generation when the palestra has a configured target.
type Dispatcher interface {
	DispatchAfterTranscription(ctx context.Context, p *models.Palestra)
}

// StatusPublisher pushes status change events to live subscribers. Best
// effort; the polled status endpoint stays authoritative.
type StatusPublisher interface {
	PublishStatus(palestraID uuid.UUID, status string)
}

// Processor consumes transcription jobs: download media, call the provider,
// persist the transcript. Failed attempts end in status erro and are never
// retried internally — resubmission is caller-initiated.
type Processor struct {
	store      Store
	downloader Downloader
	provider   Provider
	queue      *queue.Queue
	dispatcher Dispatcher
	publisher  StatusPublisher
	logger     *zap.Logger
}

// NewProcessor creates a transcription processor. dispatcher and publisher
// may be nil.
func NewProcessor(store Store, downloader Downloader, provider Provider, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{store: store, downloader: downloader, provider: provider, queue: q, logger: logger}
}

// SetDispatcher wires the downstream livebook dispatcher.
func (p *Processor) SetDispatcher(d Dispatcher) { p.dispatcher = d }

// SetStatusPublisher wires the realtime status publisher.
func (p *Processor) SetStatusPublisher(s StatusPublisher) { p.publisher = s }

func (p *Processor) setStatus(ctx context.Context, id uuid.UUID, status string) {
	if err := p.store.UpdateStatus(ctx, id, status); err != nil {
		p.logger.Error("status write failed", zap.Error(err),
			zap.String("palestra_id", id.String()), zap.String("status", status))
		return
	}
	if p.publisher != nil {
		p.publisher.PublishStatus(id, status)
	}
}

// Execute runs one transcription attempt and returns the transcript. Shared
// by the queue worker and the synchronous trigger endpoint. Every code path
// ends in a status write: processando on success, erro otherwise.
func (p *Processor) Execute(ctx context.Context, payload queue.TranscriptionPayload) (string, error) {
	pal, err := p.store.GetByID(ctx, payload.PalestraID)
	if err != nil {
		return "", fmt.Errorf("load palestra: %w", err)
	}
	if pal == nil {
		return "", ErrPalestraNotFound
	}
	if !models.CanTransitionPalestra(pal.Status, models.PalestraStatusTranscrevendo) {
		// Stale job for a palestra that already concluded; dragging it back
		// to transcrevendo would regress visible state.
		return "", fmt.Errorf("palestra %s cannot start transcription from status %s", pal.ID, pal.Status)
	}

	p.setStatus(ctx, pal.ID, models.PalestraStatusTranscrevendo)

	body, filename, contentType, err := p.openMedia(ctx, payload)
	if err != nil {
		p.setStatus(ctx, pal.ID, models.PalestraStatusErro)
		return "", err
	}
	defer body.Close()

	result, err := p.provider.Transcribe(ctx, filename, body, contentType)
	if err != nil {
		p.setStatus(ctx, pal.ID, models.PalestraStatusErro)
		return "", err
	}

	// Transcription is an intermediate stage: completion of the pipeline is
	// "a transcript exists", consumed by pollers and the dispatcher. The
	// palestra only reaches concluido through the livebook webhook.
	if err := p.store.SetTranscript(ctx, pal.ID, result.Text, models.PalestraStatusProcessando); err != nil {
		p.setStatus(ctx, pal.ID, models.PalestraStatusErro)
		return "", fmt.Errorf("persist transcript: %w", err)
	}
	if p.publisher != nil {
		p.publisher.PublishStatus(pal.ID, models.PalestraStatusProcessando)
	}

	if p.dispatcher != nil && pal.GeneratorURL != "" {
		pal.Transcricao = result.Text
		pal.Status = models.PalestraStatusProcessando
		p.dispatcher.DispatchAfterTranscription(ctx, pal)
	}

	p.logger.Info("transcript persisted",
		zap.String("palestra_id", pal.ID.String()),
		zap.Int("chars", len(result.Text)))
	return result.Text, nil
}

// openMedia resolves the job's payload source: the media bucket when a key is
// present, otherwise an HTTP fetch of the given URL. A missing or zero-length
// payload is ErrNoMedia.
func (p *Processor) openMedia(ctx context.Context, payload queue.TranscriptionPayload) (io.ReadCloser, string, string, error) {
	if payload.MediaKey != "" {
		body, contentType, size, err := p.downloader.GetObjectStream(ctx, p.downloader.MediaBucket(), payload.MediaKey)
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: %v", ErrNoMedia, err)
		}
		if size == 0 {
			body.Close()
			return nil, "", "", ErrNoMedia
		}
		return body, path.Base(payload.MediaKey), contentType, nil
	}
	if payload.AudioURL == "" {
		return nil, "", "", ErrNoMedia
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.AudioURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrNoMedia, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrNoMedia, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", "", fmt.Errorf("%w: download status %d", ErrNoMedia, resp.StatusCode)
	}
	if resp.ContentLength == 0 {
		resp.Body.Close()
		return nil, "", "", ErrNoMedia
	}
	return resp.Body, path.Base(payload.AudioURL), resp.Header.Get("Content-Type"), nil
}

// Process executes one queued job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscription {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TranscriptionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	_, err := p.Execute(ctx, payload)
	return err
}

// Run starts the worker loop: dequeue, process, dead-letter on failure. Jobs
// are not retried — each provider call bills, so resubmission is explicit.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if dlqErr := p.queue.Fail(ctx, job, err.Error()); dlqErr != nil {
				p.logger.Error("dlq enqueue failed", zap.Error(dlqErr))
			}
		}
	}
}

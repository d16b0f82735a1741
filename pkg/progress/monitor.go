// Package progress implements the client-side polling loop that follows a
// palestra through the pipeline after intake acknowledges the upload.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPipelineFailed is returned when the server reports status erro. The
// caller may resubmit intake to retry.
var ErrPipelineFailed = errors.New("pipeline failed; try submitting the media again")

// ErrTimeout is returned when the attempt budget runs out without a terminal
// status. Deliberately distinct from ErrPipelineFailed: the server-side job
// may still be running, so the right advice is to check back later, not to
// retry immediately.
var ErrTimeout = errors.New("polling budget exhausted; the job may still complete, check back later")

// Phase is the user-visible stage of the three-phase progress model. Upload
// progress is measured by the transfer itself, outside this package.
type Phase string

const (
	PhaseTranscription Phase = "transcription"
	PhaseGeneration    Phase = "generation"
)

// Update is one progress observation delivered to the update handler.
type Update struct {
	Phase   Phase
	Percent int // approximation from elapsed attempts, capped below 100
	Attempt int
	Status  string
}

// Result is a successful pipeline observation.
type Result struct {
	Status      string
	Transcricao string
	Attempts    int
}

type statusData struct {
	PalestraID  string `json:"palestraId"`
	Status      string `json:"status"`
	Transcricao string `json:"transcricao"`
}

type statusEnvelope struct {
	Success bool       `json:"success"`
	Data    statusData `json:"data"`
	Error   string     `json:"error"`
}

// Monitor polls the status endpoint on a fixed interval up to a bounded
// attempt count. It never influences server-side execution: giving up here
// does not cancel the job, and a later Wait observes the eventual outcome.
type Monitor struct {
	baseURL     string
	interval    time.Duration
	maxAttempts int
	httpClient  *http.Client
	onUpdate    func(Update)
	logger      *zap.Logger
}

// New creates a monitor. Defaults: 5s interval, 120 attempts.
func New(baseURL string, interval time.Duration, maxAttempts int, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 120
	}
	return &Monitor{
		baseURL:     baseURL,
		interval:    interval,
		maxAttempts: maxAttempts,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// SetUpdateHandler registers a callback invoked after every non-terminal poll.
func (m *Monitor) SetUpdateHandler(fn func(Update)) { m.onUpdate = fn }

// Wait polls until the palestra reaches a terminal observation or the attempt
// budget runs out. Success is "transcript present and status past
// transcription"; erro surfaces as ErrPipelineFailed; an exhausted budget as
// ErrTimeout after exactly maxAttempts polls.
func (m *Monitor) Wait(ctx context.Context, palestraID uuid.UUID) (*Result, error) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		data, err := m.poll(ctx, palestraID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transient poll failure still consumes an attempt.
			m.logger.Warn("status poll failed", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			switch {
			case data.Status == "erro":
				return nil, ErrPipelineFailed
			case data.Transcricao != "" && (data.Status == "processando" || data.Status == "concluido"):
				return &Result{Status: data.Status, Transcricao: data.Transcricao, Attempts: attempt}, nil
			default:
				m.emit(attempt, data.Status)
			}
		}

		if attempt == m.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.interval):
		}
	}
	return nil, ErrTimeout
}

func (m *Monitor) emit(attempt int, status string) {
	if m.onUpdate == nil {
		return
	}
	// Approximate transcription progress from elapsed attempts; the provider
	// reports no true progress. Capped below 100 until a terminal signal.
	percent := attempt * 95 / m.maxAttempts
	if percent > 95 {
		percent = 95
	}
	phase := PhaseTranscription
	if status == "processando" {
		phase = PhaseGeneration
	}
	m.onUpdate(Update{Phase: phase, Percent: percent, Attempt: attempt, Status: status})
}

func (m *Monitor) poll(ctx context.Context, palestraID uuid.UUID) (*statusData, error) {
	url := fmt.Sprintf("%s/palestras/%s/status", m.baseURL, palestraID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status query returned %d", resp.StatusCode)
	}
	var envelope statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, fmt.Errorf("status query failed: %s", envelope.Error)
	}
	return &envelope.Data, nil
}

package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrTimeout is returned when the provider call exceeds its configured bound.
// It is kept distinct from ProviderError so callers can map it to 504.
var ErrTimeout = errors.New("transcription provider call timed out")

// ProviderError is a non-2xx or malformed response from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("transcription provider error (status %d): %s", e.StatusCode, e.Message)
}

// Result is a completed transcription.
type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Client calls the external speech-to-text provider over HTTPS.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a provider client with a per-call timeout bound.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Transcribe submits the audio payload and returns the transcript. The call
// is bounded by the client's timeout; expiry surfaces as ErrTimeout.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader, contentType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("X-Media-Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	if result.Text == "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "empty transcript in response"}
	}

	c.logger.Info("transcription completed",
		zap.String("language", result.Language),
		zap.Float64("audio_duration", result.Duration),
		zap.Duration("elapsed", time.Since(start)))
	return &result, nil
}

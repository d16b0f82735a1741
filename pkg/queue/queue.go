package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueTranscriptions is the Redis list key for transcription jobs.
	QueueTranscriptions = "worker:transcriptions"
	// QueueDLQ holds jobs that failed processing. Transcription attempts are
	// never retried automatically (each provider call bills), so failed jobs
	// land here for operator inspection only.
	QueueDLQ = "worker:dlq"
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeTranscription JobType = "transcription"
)

// TranscriptionPayload is the payload for transcription jobs. Either MediaKey
// (object in the media bucket) or AudioURL (external fetch) identifies the
// payload to transcribe.
type TranscriptionPayload struct {
	PalestraID uuid.UUID `json:"palestra_id"`
	UsuarioID  uuid.UUID `json:"usuario_id"`
	MediaKey   string    `json:"media_key,omitempty"`
	AudioURL   string    `json:"audio_url,omitempty"`
}

// Job is a generic job envelope.
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	FailedAt   *time.Time      `json:"failed_at,omitempty"`
	FailReason string          `json:"fail_reason,omitempty"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueTranscription enqueues a transcription job.
func (q *Queue) EnqueueTranscription(ctx context.Context, payload TranscriptionPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeTranscription,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueTranscriptions, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued transcription job",
		zap.String("job_id", job.ID),
		zap.String("palestra_id", payload.PalestraID.String()))
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueTranscriptions).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Fail records a failed job in the dead-letter list. The job is not retried.
func (q *Queue) Fail(ctx context.Context, job *Job, reason string) error {
	now := time.Now()
	job.FailedAt = &now
	job.FailReason = reason
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("reason", reason))
	return nil
}

package realtime

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
	channelPrefix  = "palestra:"
	publishTimeout = 5 * time.Second
)

// StatusEvent is the message carried over Redis and delivered to websocket
// subscribers when a palestra's pipeline status changes.
type StatusEvent struct {
	PalestraID uuid.UUID `json:"palestra_id"`
	Status     string    `json:"status"`
	At         int64     `json:"at"`
}

// RedisPubSub bridges palestra status events across instances: the worker
// binary publishes, the server's hub subscribes.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for palestra status events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStatus publishes a status change to the palestra's channel. Best
// effort: failures are logged, the durable record is the source of truth.
func (r *RedisPubSub) PublishStatus(palestraID uuid.UUID, status string) {
	ev := StatusEvent{PalestraID: palestraID, Status: status, At: time.Now().Unix()}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, channelPrefix+palestraID.String(), body).Err(); err != nil {
		r.logger.Warn("publish status event failed",
			zap.Error(err), zap.String("palestra_id", palestraID.String()))
	}
}

// SubscribePalestra subscribes to a palestra's status channel and invokes
// handler for each event. Returns a cancel function.
func (r *RedisPubSub) SubscribePalestra(palestraID uuid.UUID, handler func(StatusEvent)) (cancel func(), err error) {
	channel := channelPrefix + palestraID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				handler(ev)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}

// Package alerts moves committed balance movements to the alert evaluator
// without putting evaluation on the transfer's critical path.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pocketbank/backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("alert queue is full")

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "alert_events_dropped_total",
	Help: "Alert events discarded because the in-process queue was full",
})

// Queue is the hand-off between the ledger and the dispatcher.
type Queue interface {
	Publish(ctx context.Context, event models.AlertEvent) error
	// Next waits for one event. ok is false when nothing arrived before the
	// queue's poll timeout.
	Next(ctx context.Context) (event models.AlertEvent, ok bool, err error)
}

// publishTimeout bounds how long a slow Redis can hold up the transfer response.
const publishTimeout = 250 * time.Millisecond

// RedisQueue is a Redis list shared by every server instance.
type RedisQueue struct {
	client         *redis.Client
	key            string
	timeout        time.Duration
	publishTimeout time.Duration
}

func NewRedisQueue(client *redis.Client, key string, pollTimeout time.Duration) *RedisQueue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, key: key, timeout: pollTimeout, publishTimeout: publishTimeout}
}

func (q *RedisQueue) Publish(ctx context.Context, event models.AlertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.publishTimeout)
	defer cancel()
	if err := q.client.RPush(ctx, q.key, string(data)).Err(); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	return nil
}

func (q *RedisQueue) Next(ctx context.Context) (models.AlertEvent, bool, error) {
	var event models.AlertEvent

	result, err := q.client.BLPop(ctx, q.timeout, q.key).Result()
	if err == redis.Nil {
		return event, false, nil
	}
	if err != nil {
		return event, false, err
	}
	// BLPOP replies with [key, value]
	if len(result) != 2 {
		return event, false, fmt.Errorf("unexpected BLPOP reply of length %d", len(result))
	}
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return event, false, fmt.Errorf("decode alert event: %w", err)
	}
	return event, true, nil
}

// ChannelQueue keeps events in process. Publish never blocks; events are dropped
// when the buffer is full.
type ChannelQueue struct {
	events  chan models.AlertEvent
	timeout time.Duration
}

func NewChannelQueue(buffer int, pollTimeout time.Duration) *ChannelQueue {
	if buffer <= 0 {
		buffer = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &ChannelQueue{events: make(chan models.AlertEvent, buffer), timeout: pollTimeout}
}

func (q *ChannelQueue) Publish(ctx context.Context, event models.AlertEvent) error {
	select {
	case q.events <- event:
		return nil
	default:
		eventsDropped.Inc()
		zap.L().Warn("Alert queue full, dropping event", zap.String("account_id", event.AccountID))
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Next(ctx context.Context) (models.AlertEvent, bool, error) {
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case event := <-q.events:
		return event, true, nil
	case <-timer.C:
		return models.AlertEvent{}, false, nil
	case <-ctx.Done():
		return models.AlertEvent{}, false, ctx.Err()
	}
}

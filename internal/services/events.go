package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types pushed to the presentation layer.
const (
	EventTypeEntry  = "entry"
	EventTypeExit   = "exit"
	EventTypeCredit = "credit"
)

// publishTimeout bounds a single publish. It is detached from the request
// so a caller that has already gone away does not drop the event.
const publishTimeout = 500 * time.Millisecond

// ParkingEvent describes a committed state change. Currency labels Amount
// and Balance for displays.
type ParkingEvent struct {
	Type     string           `json:"type"`
	RFID     string           `json:"rfid"`
	SlotID   int              `json:"slotId,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Balance  *decimal.Decimal `json:"balance,omitempty"`
	Currency string           `json:"currency,omitempty"`
	At       time.Time        `json:"at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event ParkingEvent) error
}

// RedisEventQueue appends events to a capped Redis list. A nil queue or a
// queue without a client drops events.
type RedisEventQueue struct {
	redis    *redis.Client
	key      string
	capacity int64
	currency string
}

func NewRedisEventQueue(client *redis.Client, key string, capacity int64, currency string) *RedisEventQueue {
	return &RedisEventQueue{
		redis:    client,
		key:      key,
		capacity: capacity,
		currency: currency,
	}
}

func (q *RedisEventQueue) Publish(ctx context.Context, event ParkingEvent) error {
	if q == nil || q.redis == nil {
		return nil
	}
	if event.Currency == "" {
		event.Currency = q.currency
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := q.redis.RPush(ctx, q.key, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to queue event: %w", err)
	}
	if err := q.redis.LTrim(ctx, q.key, -q.capacity, -1).Err(); err != nil {
		return fmt.Errorf("failed to trim event queue: %w", err)
	}
	return nil
}

// publish runs after commit. A failure here never changes the decision.
func publish(ctx context.Context, events EventPublisher, event ParkingEvent) {
	if events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := events.Publish(ctx, event); err != nil {
		zap.L().Warn("Failed to publish parking event",
			zap.String("type", event.Type),
			zap.String("rfid", event.RFID),
			zap.Error(err))
	}
}

package api

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Prakash8999/focusboard-pro/domain"
)

// DefaultUpdatesChannel is the Redis channel stream subscribers listen on.
const DefaultUpdatesChannel = "board-updates"

type updateMessage struct {
	UserID string `json:"userId"`
}

// RedisNotifier publishes board-change signals to the updates channel and
// enqueues the change events for downstream consumers. Both deliveries are
// best-effort: the triggering write has already succeeded, so failures are
// logged and swallowed.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	sink    EventSink
	logger  *log.Logger
}

// NewRedisNotifier creates a notifier publishing on channel.
func NewRedisNotifier(client *redis.Client, channel string, sink EventSink, logger *log.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultUpdatesChannel
	}
	return &RedisNotifier{client: client, channel: channel, sink: sink, logger: logger}
}

func (n *RedisNotifier) BoardChanged(ctx context.Context, userID string, events []domain.Event) {
	if n.sink != nil && len(events) > 0 {
		if err := n.sink.EnqueueEvents(ctx, events); err != nil && n.logger != nil {
			n.logger.WithError(err).WithField("user", userID).Error("enqueue change events")
		}
	}
	if n.client == nil {
		return
	}
	payload, err := sonic.Marshal(updateMessage{UserID: userID})
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil && n.logger != nil {
		n.logger.WithError(err).WithField("user", userID).Error("publish board update")
	}
}

package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter shares broadcasts over a pub/sub channel. An alternative to
// the mongo adapter for deployments that already run redis.
type RedisAdapter struct {
	client    *redis.Client
	channel   string
	processID string
	logger    *slog.Logger
}

var _ Adapter = (*RedisAdapter)(nil)

func NewRedisAdapter(ctx context.Context, redisURL, channel, processID string, logger *slog.Logger) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisAdapter{
		client:    client,
		channel:   channel,
		processID: processID,
		logger:    logger.With(slog.String("component", "fanout_redis")),
	}, nil
}

func (a *RedisAdapter) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := a.client.Publish(ctx, a.channel, data).Err(); err != nil {
		return fmt.Errorf("publish broadcast envelope: %w", err)
	}
	return nil
}

func (a *RedisAdapter) Run(ctx context.Context, handler Handler) error {
	sub := a.client.Subscribe(ctx, a.channel)
	defer sub.Close()

	a.logger.Info("Subscribed to broadcast channel", slog.String("channel", a.channel))
	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				a.logger.Warn("Failed to decode broadcast envelope", slog.Any("error", err))
				continue
			}
			if env.Origin == a.processID {
				continue
			}
			handler(env)
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *RedisAdapter) Close(ctx context.Context) error {
	return a.client.Close()
}

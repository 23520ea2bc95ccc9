package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dealership_portal/platform/logger"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to a redis:// or rediss:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// RedisSource reads frames published on a redis channel by other instances.
type RedisSource struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

// NewRedisSource creates a source listening on channel.
func NewRedisSource(client *redis.Client, channel string, log *logger.Logger) *RedisSource {
	return &RedisSource{client: client, channel: channel, log: log}
}

func (s *RedisSource) Name() string { return "redis" }

func (s *RedisSource) Run(ctx context.Context, emit func(Frame)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			f, err := DecodeFrame([]byte(msg.Payload))
			if err != nil {
				s.log.Debug("redis frame skipped", "channel", s.channel, "error", err)
				continue
			}
			emit(f)
		}
	}
}

// PublishFrame sends a frame to every instance listening on channel.
func PublishFrame(ctx context.Context, client *redis.Client, channel string, f Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, raw).Err()
}

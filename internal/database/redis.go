package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds the two redis connections the backend uses: one for
// publishing user notifications and one dedicated to pub/sub subscriptions
// (a subscribed connection cannot issue other commands).
type RedisClients struct {
	Notify *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notifyClient := redis.NewClient(opt)
	if err := notifyClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (notify): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		notifyClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Notify: notifyClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Notify.Close()
	r.PubSub.Close()
}

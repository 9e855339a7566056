// Package notify delivers short-lived user notifications (toasts) over redis
// pub/sub; the websocket hub fans them out to the user's open tabs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sandy-backend/internal/models"
)

// ChannelFor returns the per-user pub/sub channel name.
func ChannelFor(userID uuid.UUID) string {
	return fmt.Sprintf("user_notices:%s", userID.String())
}

type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify publishes a notice. Delivery is fire-and-forget: a user with no
// open tabs simply misses the toast.
func (n *RedisNotifier) Notify(ctx context.Context, userID uuid.UUID, level, message string) {
	data, err := json.Marshal(models.WSMessage{
		Type:    "notice",
		Payload: models.Notice{Level: level, Message: message},
	})
	if err != nil {
		return
	}
	n.client.Publish(ctx, ChannelFor(userID), string(data))
}

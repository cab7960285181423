package redis

import (
	"context"
	"fmt"

	"liveclass-backend/internal/database"
	"liveclass-backend/pkg/push"
)

// Publisher fans notifications out over Redis pub/sub for in-app listeners
type Publisher struct {
	client *database.RedisClient
}

// NewPublisher creates a new Publisher
func NewPublisher(client *database.RedisClient) *Publisher {
	return &Publisher{client: client}
}

// UserChannel is the channel a single user's clients subscribe to
func UserChannel(userID string) string {
	return fmt.Sprintf("notifications:user:%s", userID)
}

// ClassChannel is the channel every member of a class subscribes to
func ClassChannel(classID string) string {
	return fmt.Sprintf("notifications:class:%s", classID)
}

// Publish encodes n and publishes it on channel, returning the receiver count
func (p *Publisher) Publish(ctx context.Context, channel string, n *push.Notification) (int64, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal notification: %w", err)
	}

	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish notification: %w", err)
	}
	return receivers, nil
}

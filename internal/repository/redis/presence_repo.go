package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"liveclass-backend/internal/database"
)

// presenceTTL expires membership of rooms whose finish webhook never arrived
const presenceTTL = 12 * time.Hour

// PresenceRepository tracks which participants are in which room, shared
// across service instances
type PresenceRepository struct {
	client *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func roomMembersKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

// Join marks participantID as present in roomID
func (r *PresenceRepository) Join(ctx context.Context, roomID, participantID string) error {
	key := roomMembersKey(roomID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, participantID)
		pipe.Expire(ctx, key, presenceTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add to room presence: %w", err)
	}
	return nil
}

// Leave removes participantID from roomID
func (r *PresenceRepository) Leave(ctx context.Context, roomID, participantID string) error {
	if err := r.client.SRem(ctx, roomMembersKey(roomID), participantID).Err(); err != nil {
		return fmt.Errorf("failed to remove from room presence: %w", err)
	}
	return nil
}

// Members lists the participants present in roomID
func (r *PresenceRepository) Members(ctx context.Context, roomID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, roomMembersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room presence: %w", err)
	}
	return ids, nil
}

// Clear drops the presence set of a finished room
func (r *PresenceRepository) Clear(ctx context.Context, roomID string) error {
	if err := r.client.Del(ctx, roomMembersKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to clear room presence: %w", err)
	}
	return nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}

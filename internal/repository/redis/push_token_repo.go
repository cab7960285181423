package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"liveclass-backend/internal/database"
	"liveclass-backend/pkg/constants"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/push"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PushTokenRepository handles push notification token storage in Redis
type PushTokenRepository struct {
	client *database.RedisClient
	now    func() time.Time
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *database.RedisClient) *PushTokenRepository {
	return &PushTokenRepository{
		client: client,
		now:    time.Now,
	}
}

func tokenKey(token string) string {
	return fmt.Sprintf("push:token:%s", token)
}

func userTokensKey(userID string) string {
	return fmt.Sprintf("push:user:%s:tokens", userID)
}

// Store stores a push notification token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt == 0 {
		token.CreatedAt = r.now().Unix()
	}

	if err := r.save(ctx, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	key := userTokensKey(token.UserID)
	if err := r.client.SAdd(ctx, key, token.Token).Err(); err != nil {
		return fmt.Errorf("failed to add token to user set: %w", err)
	}
	if err := r.client.Expire(ctx, key, constants.PushTokenExpiry).Err(); err != nil {
		logger.Warn("Failed to set expiration on user tokens set",
			zap.String("user_id", token.UserID),
			zap.Error(err))
	}

	logger.Debug("Push token stored",
		zap.String("token_id", token.ID.String()),
		zap.String("user_id", token.UserID),
		zap.String("token_type", string(token.Type)))

	return nil
}

func (r *PushTokenRepository) save(ctx context.Context, token *push.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return r.client.Set(ctx, tokenKey(token.Token), data, constants.PushTokenExpiry).Err()
}

// GetByToken retrieves a token by its value; nil when unknown
func (r *PushTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*push.Token, error) {
	data, err := r.client.Get(ctx, tokenKey(tokenStr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token push.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// GetByUserID retrieves all tokens for a user, skipping unreadable entries
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID string) ([]*push.Token, error) {
	tokens, err := r.client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	var result []*push.Token
	for _, tokenStr := range tokens {
		token, err := r.GetByToken(ctx, tokenStr)
		if err != nil {
			logger.Warn("Failed to get token",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		if token != nil {
			result = append(result, token)
		}
	}

	return result, nil
}

// DeleteByUserID removes all tokens for a user
func (r *PushTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	key := userTokensKey(userID)
	tokens, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, tokenStr := range tokens {
		keys = append(keys, tokenKey(tokenStr))
	}
	keys = append(keys, key)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}

	logger.Debug("All push tokens deleted for user",
		zap.String("user_id", userID),
		zap.Int("count", len(tokens)))
	return nil
}

// MarkInactive flags a token the provider rejected; unknown tokens are ignored
func (r *PushTokenRepository) MarkInactive(ctx context.Context, tokenStr string) error {
	token, err := r.GetByToken(ctx, tokenStr)
	if err != nil || token == nil {
		return err
	}

	token.Active = false
	if err := r.save(ctx, token); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if err := r.client.SRem(ctx, userTokensKey(token.UserID), token.Token).Err(); err != nil {
		return fmt.Errorf("failed to remove token from user set: %w", err)
	}
	return nil
}

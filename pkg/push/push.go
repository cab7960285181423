package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"liveclass-backend/pkg/logger"
)

// Every push is about a meeting; devices group them under this channel
const (
	meetingCategory = "meeting"
	meetingSound    = "default"
)

// Provider delivers one notification to a batch of device tokens
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult counts deliveries. InvalidTokens lists devices the provider
// reported as gone; they are deactivated after the send.
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification is a meeting announcement. Data carries the meeting
// identifiers the app needs to open the right room.
type Notification struct {
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	Urgent bool              `json:"urgent,omitempty"`
}

// MeetingNotification builds the push for a meeting event of kind. Empty
// identifiers are left out of Data.
func MeetingNotification(title, body, kind, roomID, classID string) *Notification {
	data := map[string]string{"type": kind}
	if roomID != "" {
		data["room_id"] = roomID
	}
	if classID != "" {
		data["class_id"] = classID
	}
	return &Notification{Title: title, Body: body, Data: data, Urgent: true}
}

type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"
	TokenTypeAPNs TokenType = "apns"
	TokenTypeWeb  TokenType = "web"
)

// Token is a device registered by a student or teacher
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
}

// TokenRepository stores device tokens. GetByToken returns nil for an
// unknown token. MarkInactive drops the token from its owner's devices.
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByToken(ctx context.Context, token string) (*Token, error)
	GetByUserID(ctx context.Context, userID string) ([]*Token, error)
	DeleteByUserID(ctx context.Context, userID string) error
	MarkInactive(ctx context.Context, token string) error
}

// Service delivers meeting notifications to the devices of class members
type Service struct {
	provider Provider
	repo     TokenRepository
}

func NewService(provider Provider, repo TokenRepository) *Service {
	return &Service{provider: provider, repo: repo}
}

// RegisterToken activates token for its user. A device that signs in as a
// different user is taken away from the previous one.
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	existing, err := s.repo.GetByToken(ctx, token.Token)
	if err != nil {
		logger.Debug("Push token lookup failed, storing as new", zap.Error(err))
	}
	if existing != nil {
		token.ID = existing.ID
		token.CreatedAt = existing.CreatedAt
		if existing.UserID != token.UserID {
			if err := s.repo.MarkInactive(ctx, token.Token); err != nil {
				return fmt.Errorf("failed to release device from previous user: %w", err)
			}
		}
	}

	token.Active = true
	return s.repo.Store(ctx, token)
}

// UnregisterToken deactivates tokenStr. It reports false when the token is
// unknown or belongs to another user.
func (s *Service) UnregisterToken(ctx context.Context, userID, tokenStr string) (bool, error) {
	token, err := s.repo.GetByToken(ctx, tokenStr)
	if err != nil {
		return false, fmt.Errorf("failed to get token: %w", err)
	}
	if token == nil || token.UserID != userID {
		return false, nil
	}
	return true, s.repo.MarkInactive(ctx, tokenStr)
}

func (s *Service) UnregisterAllTokens(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// SendToUsers delivers notification to every active device of userIDs.
// Users whose tokens cannot be loaded are skipped.
func (s *Service) SendToUsers(ctx context.Context, notification *Notification, userIDs []string) (*SendResult, error) {
	tokens := s.activeTokens(ctx, userIDs)
	if len(tokens) == 0 {
		logger.Debug("No devices to notify", zap.Int("user_count", len(userIDs)))
		return &SendResult{}, nil
	}

	result, err := s.provider.Send(ctx, notification, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}

	logger.Info("Notification sent",
		zap.String("title", notification.Title),
		zap.Int("user_count", len(userIDs)),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount))

	for _, tokenStr := range result.InvalidTokens {
		if err := s.repo.MarkInactive(ctx, tokenStr); err != nil {
			logger.Warn("Failed to deactivate rejected device",
				zap.String("token", maskPushToken(tokenStr)),
				zap.Error(err))
		}
	}
	return result, nil
}

// activeTokens collects the distinct active devices of userIDs
func (s *Service) activeTokens(ctx context.Context, userIDs []string) []string {
	var tokens []string
	for _, userID := range userIDs {
		owned, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			logger.Warn("Failed to get push tokens for user",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		for _, t := range owned {
			if t.Active {
				tokens = append(tokens, t.Token)
			}
		}
	}
	return lo.Uniq(tokens)
}

func maskPushToken(token string) string {
	if len(token) <= 16 {
		return "********"
	}
	return token[:8] + "..." + token[len(token)-8:]
}

// LogProvider logs notifications instead of delivering them. It is used in
// development and when no provider is configured.
type LogProvider struct {
	mu     sync.Mutex
	sent   int
	tokens []string
}

func (p *LogProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	p.mu.Lock()
	p.sent++
	p.tokens = append([]string(nil), tokens...)
	p.mu.Unlock()

	logger.Debug("Push notification not delivered",
		zap.String("title", notification.Title),
		zap.Any("data", notification.Data),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}

// Sent returns how many sends were accepted
func (p *LogProvider) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// LastTokens returns the devices of the most recent send
func (p *LogProvider) LastTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

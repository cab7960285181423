package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"liveclass-backend/pkg/logger"
)

// fcmBatchSize is the most tokens one multicast request may carry
const fcmBatchSize = 500

// multicaster is the part of *messaging.Client the provider calls
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider delivers to Android and web devices through Firebase
type FCMProvider struct {
	client multicaster
}

// FCMConfig names the Firebase project and its service account. The JSON
// content wins over the file path when both are set.
type FCMConfig struct {
	ProjectID       string
	CredentialsPath string
	CredentialsJSON []byte
}

func NewFCMProvider(ctx context.Context, config *FCMConfig) (*FCMProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("FCM config is required")
	}

	var opt option.ClientOption
	switch {
	case len(config.CredentialsJSON) > 0:
		opt = option.WithCredentialsJSON(config.CredentialsJSON)
	case config.CredentialsPath != "":
		opt = option.WithCredentialsFile(config.CredentialsPath)
	default:
		return nil, fmt.Errorf("either CredentialsPath or CredentialsJSON must be provided")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: config.ProjectID}, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	logger.Info("FCM provider initialized", zap.String("project_id", config.ProjectID))
	return &FCMProvider{client: client}, nil
}

// Send multicasts notification in batches. A failed batch counts all of its
// tokens as failures; the send fails only when every batch failed.
func (f *FCMProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}
	if len(tokens) == 0 {
		return result, nil
	}

	batches := lo.Chunk(tokens, fcmBatchSize)
	failedBatches := 0
	for _, batch := range batches {
		response, err := f.client.SendEachForMulticast(ctx, buildMulticast(notification, batch))
		if err != nil {
			failedBatches++
			result.FailureCount += len(batch)
			result.Errors = append(result.Errors, err)
			logger.Warn("FCM batch failed", zap.Int("token_count", len(batch)), zap.Error(err))
			continue
		}

		result.SuccessCount += response.SuccessCount
		result.FailureCount += response.FailureCount
		for i, resp := range response.Responses {
			if resp.Success || resp.Error == nil {
				continue
			}
			result.Errors = append(result.Errors, resp.Error)
			if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
				result.InvalidTokens = append(result.InvalidTokens, batch[i])
				logger.Debug("FCM rejected device",
					zap.String("token", maskPushToken(batch[i])),
					zap.Error(resp.Error))
			}
		}
	}

	if failedBatches == len(batches) {
		return nil, fmt.Errorf("failed to send FCM message: %w", result.Errors[0])
	}
	return result, nil
}

func buildMulticast(notification *Notification, tokens []string) *messaging.MulticastMessage {
	priority := "normal"
	if notification.Urgent {
		priority = "high"
	}
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   notification.Data,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: priority,
			Notification: &messaging.AndroidNotification{
				ChannelID: meetingCategory,
				Sound:     meetingSound,
			},
		},
	}
}

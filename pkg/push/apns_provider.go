package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"liveclass-backend/pkg/logger"
)

// pusher is the part of *apns2.Client the provider calls
type pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsProvider implements Provider interface for Apple Push Notification Service
type APNsProvider struct {
	client   pusher
	bundleID string
}

// APNsConfig contains configuration for APNs provider
type APNsConfig struct {
	// Certificate-based authentication (legacy)
	CertificatePath     string // Path to .p12 certificate file
	CertificatePassword string

	// Token-based authentication (recommended)
	KeyPath string // Path to .p8 private key file
	KeyID   string
	TeamID  string

	BundleID   string
	Production bool
}

// NewAPNsProvider creates a new APNs provider
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("APNs config is required")
	}
	if config.BundleID == "" {
		return nil, fmt.Errorf("BundleID is required")
	}

	var client *apns2.Client
	switch {
	case config.KeyPath != "" && config.KeyID != "" && config.TeamID != "":
		authKey, err := token.AuthKeyFromFile(config.KeyPath)
		if err != nil {
			logger.Error("Failed to load APNs key file",
				zap.Error(err),
				zap.String("key_id", config.KeyID),
				zap.String("team_id", config.TeamID))
			return nil, fmt.Errorf("failed to load APNs key: %w", err)
		}

		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   config.KeyID,
			TeamID:  config.TeamID,
		})

	case config.CertificatePath != "":
		cert, err := certificate.FromP12File(config.CertificatePath, config.CertificatePassword)
		if err != nil {
			logger.Error("Failed to load APNs certificate",
				zap.Error(err),
				zap.String("cert_path", config.CertificatePath))
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		client = apns2.NewClient(cert)

	default:
		return nil, fmt.Errorf("either token-based (KeyPath, KeyID, TeamID) or certificate-based (CertificatePath) authentication must be provided")
	}

	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized",
		zap.String("bundle_id", config.BundleID),
		zap.Bool("production", config.Production))

	return &APNsProvider{client: client, bundleID: config.BundleID}, nil
}

// Send implements Provider interface for APNs, one request per device
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if a.client == nil {
		return nil, fmt.Errorf("APNs client is not initialized")
	}

	result := &SendResult{}
	if len(tokens) == 0 {
		return result, nil
	}

	p := buildPayload(notification)
	priority := apns2.PriorityLow
	if notification.Urgent {
		priority = apns2.PriorityHigh
	}

	for _, deviceToken := range tokens {
		resp, err := a.client.PushWithContext(ctx, &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     p,
			Priority:    priority,
		})
		if err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			logger.Warn("Failed to send APNs notification",
				zap.Error(err),
				zap.String("device_token", maskPushToken(deviceToken)))
			continue
		}

		if resp.StatusCode == http.StatusOK {
			result.SuccessCount++
			continue
		}

		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Errorf("APNs error: %s", resp.Reason))
		if resp.StatusCode == http.StatusGone ||
			resp.Reason == apns2.ReasonUnregistered ||
			resp.Reason == apns2.ReasonBadDeviceToken ||
			resp.Reason == apns2.ReasonDeviceTokenNotForTopic {
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		}

		logger.Warn("APNs notification failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("reason", resp.Reason),
			zap.String("device_token", maskPushToken(deviceToken)))
	}

	logger.Info("APNs batch send completed",
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)),
		zap.String("title", notification.Title))

	return result, nil
}

func buildPayload(notification *Notification) *payload.Payload {
	p := payload.NewPayload().
		AlertTitle(notification.Title).
		AlertBody(notification.Body).
		Sound(meetingSound).
		Category(meetingCategory)

	for key, value := range notification.Data {
		p.Custom(key, value)
	}
	return p
}

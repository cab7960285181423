package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liveclass-backend/pkg/env"
	"liveclass-backend/pkg/logger"
)

// ProviderType represents the type of push notification provider
type ProviderType string

const (
	ProviderTypeLog  ProviderType = "log"
	ProviderTypeFCM  ProviderType = "fcm"
	ProviderTypeAPNs ProviderType = "apns"
)

// NewProvider creates the provider named by providerType. Provider
// credentials are read from the environment.
func NewProvider(ctx context.Context, providerType ProviderType) (Provider, error) {
	logger.Info("Initializing push notification provider",
		zap.String("provider_type", string(providerType)))

	switch providerType {
	case ProviderTypeFCM:
		return newFCMProvider(ctx)
	case ProviderTypeAPNs:
		return newAPNsProvider()
	case ProviderTypeLog:
		return &LogProvider{}, nil
	default:
		logger.Warn("Unknown push provider type, logging notifications only",
			zap.String("provider_type", string(providerType)))
		return &LogProvider{}, nil
	}
}

func newFCMProvider(ctx context.Context) (Provider, error) {
	projectID := env.GetString("FCM_PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("FCM_PROJECT_ID environment variable is required for FCM provider")
	}

	return NewFCMProvider(ctx, &FCMConfig{
		ProjectID:       projectID,
		CredentialsPath: env.GetString("FCM_CREDENTIALS_PATH", ""),
		CredentialsJSON: []byte(env.GetStringFromFile("FCM_CREDENTIALS_JSON", "")),
	})
}

func newAPNsProvider() (Provider, error) {
	bundleID := env.GetString("APNS_BUNDLE_ID", "")
	if bundleID == "" {
		return nil, fmt.Errorf("APNS_BUNDLE_ID environment variable is required for APNs provider")
	}

	return NewAPNsProvider(&APNsConfig{
		BundleID:            bundleID,
		KeyPath:             env.GetString("APNS_KEY_PATH", ""),
		KeyID:               env.GetString("APNS_KEY_ID", ""),
		TeamID:              env.GetString("APNS_TEAM_ID", ""),
		CertificatePath:     env.GetString("APNS_CERT_PATH", ""),
		CertificatePassword: env.GetStringFromFile("APNS_CERT_PASSWORD", ""),
		Production:          env.GetBool("APNS_PRODUCTION", false),
	})
}

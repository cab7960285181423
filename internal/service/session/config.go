package session

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"liveclass-backend/internal/service/activity"
	"liveclass-backend/internal/service/signal"
	"liveclass-backend/internal/service/stream"
	"liveclass-backend/pkg/config"
)

// Config is built once per classroom session and shared by reference with
// every component of that session. It is never stored globally.
type Config struct {
	MaxActiveSlots int           `validate:"min=1"`
	DedupWindow    time.Duration `validate:"gt=0"`
	PersistTimeout time.Duration `validate:"gt=0"`
	JoinWithCamera bool
	JoinWithMic    bool
	ChatTimeFormat string `validate:"required"`
}

// DefaultConfig returns a config with the stock limits and devices off
func DefaultConfig() *Config {
	return &Config{
		MaxActiveSlots: stream.DefaultMaxActiveSlots,
		DedupWindow:    activity.DefaultWindow,
		PersistTimeout: activity.DefaultPersistTimeout,
		ChatTimeFormat: signal.DefaultTimeFormat,
	}
}

// ConfigFrom copies the service-wide session defaults into a new Config
func ConfigFrom(defaults config.SessionConfig) *Config {
	return &Config{
		MaxActiveSlots: defaults.MaxActiveSlots,
		DedupWindow:    defaults.DedupWindow,
		PersistTimeout: defaults.PersistTimeout,
		JoinWithCamera: defaults.JoinWithCamera,
		JoinWithMic:    defaults.JoinWithMic,
		ChatTimeFormat: defaults.ChatTimeFormat,
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	return nil
}

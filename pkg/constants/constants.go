// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a state-feed client may stay silent
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// RedisHealthCheckInterval is how often degraded mode is re-evaluated
	RedisHealthCheckInterval = 10 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days
)

// Meeting constants
const (
	// MaxMeetingDuration caps how long a classroom room may stay open
	MaxMeetingDuration = 12 * time.Hour

	// MeetingStatusActive indicates a meeting is in progress
	MeetingStatusActive = "active"

	// MeetingStatusEnded indicates a meeting has ended
	MeetingStatusEnded = "ended"

	// RoleHost is the participant metadata role of the class teacher
	RoleHost = "host"

	// RoleAttendee is the participant metadata role of a student
	RoleAttendee = "attendee"
)

// Chat constants
const (
	// MaxChatMessageLength is the maximum allowed data-channel chat body
	MaxChatMessageLength = 2000

	// MaxTranscriptLength caps the in-memory chat transcript of one session
	MaxTranscriptLength = 500
)

// Notification texts sent to enrolled students
const (
	MeetingStartedTitle = "Class is live"
	MeetingStartedBody  = "Your teacher started a live class. Join now!"
	MeetingEndedTitle   = "Class ended"
	MeetingEndedBody    = "The live class has ended."
)

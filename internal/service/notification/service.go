package notification

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liveclass-backend/internal/repository/redis"
	"liveclass-backend/pkg/constants"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/push"
)

// Notification kinds carried in the payload "type" field
const (
	KindMeetingStarted = "meeting_started"
	KindMeetingEnded   = "meeting_ended"
	KindDirect         = "direct"
)

// Delivery channels reported to metrics
const (
	channelPush   = "push"
	channelPubSub = "pubsub"
)

// Pusher delivers push notifications to users' devices
type Pusher interface {
	SendToUsers(ctx context.Context, notification *push.Notification, userIDs []string) (*push.SendResult, error)
}

// Publisher fans a notification out to in-app listeners
type Publisher interface {
	Publish(ctx context.Context, channel string, notification *push.Notification) (int64, error)
}

// Roster resolves the members of a class
type Roster interface {
	ListEnrolledStudents(ctx context.Context, classID string) ([]string, error)
}

// Service reaches users outside a room over push and pub/sub
type Service struct {
	pusher    Pusher
	publisher Publisher
	roster    Roster
	metrics   *metrics.Metrics
}

// NewService creates a new notification service. publisher may be nil.
func NewService(pusher Pusher, publisher Publisher, roster Roster, m *metrics.Metrics) *Service {
	return &Service{
		pusher:    pusher,
		publisher: publisher,
		roster:    roster,
		metrics:   m,
	}
}

// Notify sends a direct notification to one user
func (s *Service) Notify(ctx context.Context, title, body, targetID string) error {
	if targetID == "" {
		return fmt.Errorf("target id is required")
	}

	n := push.MeetingNotification(title, body, KindDirect, "", "")
	return multierr.Append(
		s.push(ctx, n, []string{targetID}),
		s.publish(ctx, redis.UserChannel(targetID), n),
	)
}

// NotifyGroup sends a notification to every student enrolled in classID
func (s *Service) NotifyGroup(ctx context.Context, title, body, classID string) error {
	if classID == "" {
		return fmt.Errorf("class id is required")
	}

	students, err := s.roster.ListEnrolledStudents(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to list enrolled students: %w", err)
	}

	n := push.MeetingNotification(title, body, kindFor(title), "", classID)

	var errs error
	if len(students) > 0 {
		errs = multierr.Append(errs, s.push(ctx, n, students))
	}
	errs = multierr.Append(errs, s.publish(ctx, redis.ClassChannel(classID), n))

	logger.Info("Class notified",
		zap.String("class_id", classID),
		zap.String("title", title),
		zap.Int("recipients", len(students)))

	return errs
}

// NotifyMeeting is NotifyGroup with the room the students should join
func (s *Service) NotifyMeeting(ctx context.Context, kind, roomID, classID string) error {
	title, body := textFor(kind)

	students, err := s.roster.ListEnrolledStudents(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to list enrolled students: %w", err)
	}

	n := push.MeetingNotification(title, body, kind, roomID, classID)
	return multierr.Append(
		s.push(ctx, n, students),
		s.publish(ctx, redis.ClassChannel(classID), n),
	)
}

func (s *Service) push(ctx context.Context, n *push.Notification, userIDs []string) error {
	if s.pusher == nil || len(userIDs) == 0 {
		return nil
	}

	result, err := s.pusher.SendToUsers(ctx, n, userIDs)
	if err != nil {
		s.metrics.RecordNotification(channelPush, "failed")
		return fmt.Errorf("failed to push notification: %w", err)
	}

	status := "sent"
	if result.SuccessCount == 0 && result.FailureCount > 0 {
		status = "failed"
	}
	s.metrics.RecordNotification(channelPush, status)
	return nil
}

func (s *Service) publish(ctx context.Context, channel string, n *push.Notification) error {
	if s.publisher == nil {
		return nil
	}

	if _, err := s.publisher.Publish(ctx, channel, n); err != nil {
		s.metrics.RecordNotification(channelPubSub, "failed")
		return err
	}
	s.metrics.RecordNotification(channelPubSub, "sent")
	return nil
}

func kindFor(title string) string {
	switch title {
	case constants.MeetingStartedTitle:
		return KindMeetingStarted
	case constants.MeetingEndedTitle:
		return KindMeetingEnded
	}
	return KindDirect
}

func textFor(kind string) (string, string) {
	if kind == KindMeetingEnded {
		return constants.MeetingEndedTitle, constants.MeetingEndedBody
	}
	return constants.MeetingStartedTitle, constants.MeetingStartedBody
}

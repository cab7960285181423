// Package meeting provisions classroom rooms and issues the tokens used to join them.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/repository/postgres"
	"liveclass-backend/internal/service/notification"
	apperrors "liveclass-backend/pkg/errors"
	"liveclass-backend/pkg/logger"
)

// Rooms manages rooms on the media server
type Rooms interface {
	CreateRoom(ctx context.Context) (string, error)
	ValidateRoom(ctx context.Context, roomID string) (bool, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// Tokens signs join tokens
type Tokens interface {
	IssueToken(roomID string, p domain.Participant) (string, error)
}

// Repository persists meetings
type Repository interface {
	StartMeeting(ctx context.Context, session domain.MeetingSession) error
	EndMeeting(ctx context.Context, hostID, roomID string, endedAt time.Time) error
	GetOpenMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error)
}

// Recorder records lifecycle activity
type Recorder interface {
	Record(actorID, meetingID string, action domain.Action, role domain.Role) bool
}

// Notifier tells enrolled students about meeting changes
type Notifier interface {
	NotifyMeeting(ctx context.Context, kind, roomID, classID string) error
}

// Service handles meeting business logic
type Service struct {
	rooms    Rooms
	tokens   Tokens
	repo     Repository
	recorder Recorder
	notifier Notifier
	now      func() time.Time
}

// NewService creates a new meeting service. notifier may be nil.
func NewService(rooms Rooms, tokens Tokens, repo Repository, recorder Recorder, notifier Notifier) *Service {
	return &Service{
		rooms:    rooms,
		tokens:   tokens,
		repo:     repo,
		recorder: recorder,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateMeetingInput contains meeting creation data
type CreateMeetingInput struct {
	ClassID string
	HostID  string
}

// JoinOutput is what a client needs to connect to a room
type JoinOutput struct {
	RoomID      string             `json:"room_id"`
	Token       string             `json:"token"`
	Participant domain.Participant `json:"participant"`
}

// CreateMeeting opens a room for a class and announces it
func (s *Service) CreateMeeting(ctx context.Context, input *CreateMeetingInput) (*domain.MeetingSession, error) {
	if input.ClassID == "" || input.HostID == "" {
		return nil, apperrors.ValidationError("class and host are required")
	}

	roomID, err := s.rooms.CreateRoom(ctx)
	if err != nil {
		return nil, apperrors.NetworkError("failed to create room", err)
	}

	session := domain.MeetingSession{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		HostID:    input.HostID,
		ClassID:   input.ClassID,
		StartedAt: s.now().UTC(),
	}

	if err := s.repo.StartMeeting(ctx, session); err != nil {
		s.deleteRoom(ctx, roomID)
		return nil, apperrors.PersistenceError(fmt.Errorf("failed to create meeting record: %w", err))
	}

	s.recorder.Record(input.HostID, roomID, domain.ActionStarted, domain.RoleHost)
	s.notify(ctx, notification.KindMeetingStarted, roomID, input.ClassID)

	roomLogger(ctx, roomID).Info("Meeting created",
		zap.String("meeting_id", session.ID),
		zap.String("class_id", input.ClassID))

	return &session, nil
}

// ValidateRoom reports whether roomID is a live room. Stale codes return false.
func (s *Service) ValidateRoom(ctx context.Context, roomID string) (bool, error) {
	live, err := s.rooms.ValidateRoom(ctx, roomID)
	if err != nil {
		return false, apperrors.NetworkError("failed to validate room", err)
	}
	return live, nil
}

// IssueToken lets p join roomID. The host role is granted only to the
// meeting's host, whatever the caller claims.
func (s *Service) IssueToken(ctx context.Context, roomID string, p domain.Participant) (*JoinOutput, error) {
	session, err := s.openMeeting(ctx, roomID)
	if err != nil {
		return nil, err
	}

	live, err := s.ValidateRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, apperrors.StaleRoomError(roomID)
	}

	p.Role = domain.RoleAttendee
	if p.ID == session.HostID {
		p.Role = domain.RoleHost
	}

	token, err := s.tokens.IssueToken(roomID, p)
	if err != nil {
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, "failed to issue token", http.StatusInternalServerError, err)
	}

	return &JoinOutput{RoomID: roomID, Token: token, Participant: p}, nil
}

// EndMeeting closes the meeting held in roomID. Only its host may end it.
// Deleting the media room and notifying students are best effort.
func (s *Service) EndMeeting(ctx context.Context, roomID, userID string) (*domain.MeetingSession, error) {
	session, err := s.openMeeting(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session.HostID != userID {
		return nil, apperrors.ForbiddenError("only the host can end the meeting")
	}

	endedAt := s.now().UTC()
	if err := s.repo.EndMeeting(ctx, session.HostID, roomID, endedAt); err != nil {
		return nil, apperrors.PersistenceError(fmt.Errorf("failed to end meeting: %w", err))
	}
	session.EndedAt = &endedAt

	s.recorder.Record(userID, roomID, domain.ActionEnded, domain.RoleHost)
	s.deleteRoom(ctx, roomID)
	s.notify(ctx, notification.KindMeetingEnded, roomID, session.ClassID)

	roomLogger(ctx, roomID).Info("Meeting ended",
		zap.String("meeting_id", session.ID),
		zap.Duration("duration", endedAt.Sub(session.StartedAt)))

	return session, nil
}

// GetMeeting returns the open meeting held in roomID
func (s *Service) GetMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error) {
	return s.openMeeting(ctx, roomID)
}

func (s *Service) openMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error) {
	session, err := s.repo.GetOpenMeeting(ctx, roomID)
	if err != nil {
		if errors.Is(err, postgres.ErrMeetingNotFound) {
			return nil, apperrors.StaleRoomError(roomID)
		}
		return nil, apperrors.PersistenceError(err)
	}
	return session, nil
}

func (s *Service) deleteRoom(ctx context.Context, roomID string) {
	if err := s.rooms.DeleteRoom(ctx, roomID); err != nil {
		roomLogger(ctx, roomID).Warn("Failed to delete room", zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, kind, roomID, classID string) {
	if s.notifier == nil || classID == "" {
		return
	}
	if err := s.notifier.NotifyMeeting(ctx, kind, roomID, classID); err != nil {
		roomLogger(ctx, roomID).Warn("Failed to notify class",
			zap.String("kind", kind),
			zap.String("class_id", classID),
			zap.Error(err))
	}
}

func roomLogger(ctx context.Context, roomID string) *zap.Logger {
	return logger.FromContext(logger.WithRoomID(ctx, roomID))
}

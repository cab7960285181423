package meeting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/repository/postgres"
	"liveclass-backend/internal/service/notification"
	apperrors "liveclass-backend/pkg/errors"
)

// MockRooms is a mock implementation of Rooms
type MockRooms struct {
	mock.Mock
}

func (m *MockRooms) CreateRoom(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockRooms) ValidateRoom(ctx context.Context, roomID string) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRooms) DeleteRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// MockTokens is a mock implementation of Tokens
type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) IssueToken(roomID string, p domain.Participant) (string, error) {
	args := m.Called(roomID, p)
	return args.String(0), args.Error(1)
}

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) StartMeeting(ctx context.Context, session domain.MeetingSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockRepository) EndMeeting(ctx context.Context, hostID, roomID string, endedAt time.Time) error {
	args := m.Called(ctx, hostID, roomID, endedAt)
	return args.Error(0)
}

func (m *MockRepository) GetOpenMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MeetingSession), args.Error(1)
}

// MockRecorder is a mock implementation of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(actorID, meetingID string, action domain.Action, role domain.Role) bool {
	args := m.Called(actorID, meetingID, action, role)
	return args.Bool(0)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyMeeting(ctx context.Context, kind, roomID, classID string) error {
	args := m.Called(ctx, kind, roomID, classID)
	return args.Error(0)
}

var t0 = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	rooms    *MockRooms
	tokens   *MockTokens
	repo     *MockRepository
	recorder *MockRecorder
	notifier *MockNotifier
}

func newFixture() *fixture {
	f := &fixture{
		rooms:    new(MockRooms),
		tokens:   new(MockTokens),
		repo:     new(MockRepository),
		recorder: new(MockRecorder),
		notifier: new(MockNotifier),
	}
	f.svc = NewService(f.rooms, f.tokens, f.repo, f.recorder, f.notifier)
	f.svc.now = func() time.Time { return t0 }
	return f
}

func openMeeting() *domain.MeetingSession {
	return &domain.MeetingSession{
		ID:        "sess-1",
		RoomID:    "MATH101ABC",
		HostID:    "teacher-1",
		ClassID:   "class-7",
		StartedAt: t0,
	}
}

func TestCreateMeeting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.rooms.On("CreateRoom", ctx).Return("MATH101ABC", nil)
	f.repo.On("StartMeeting", ctx, mock.MatchedBy(func(s domain.MeetingSession) bool {
		return s.RoomID == "MATH101ABC" && s.HostID == "teacher-1" && s.ClassID == "class-7" && s.StartedAt.Equal(t0)
	})).Return(nil)
	f.recorder.On("Record", "teacher-1", "MATH101ABC", domain.ActionStarted, domain.RoleHost).Return(true)
	f.notifier.On("NotifyMeeting", ctx, notification.KindMeetingStarted, "MATH101ABC", "class-7").Return(nil)

	session, err := f.svc.CreateMeeting(ctx, &CreateMeetingInput{ClassID: "class-7", HostID: "teacher-1"})

	require.NoError(t, err)
	assert.Equal(t, "MATH101ABC", session.RoomID)
	assert.NotEmpty(t, session.ID)
	f.rooms.AssertExpectations(t)
	f.repo.AssertExpectations(t)
	f.recorder.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestCreateMeeting_RoomFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.rooms.On("CreateRoom", ctx).Return("", assert.AnError)

	_, err := f.svc.CreateMeeting(ctx, &CreateMeetingInput{ClassID: "class-7", HostID: "teacher-1"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNetwork))
	f.repo.AssertNotCalled(t, "StartMeeting", mock.Anything, mock.Anything)
}

func TestCreateMeeting_PersistenceFailureDeletesRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.rooms.On("CreateRoom", ctx).Return("MATH101ABC", nil)
	f.repo.On("StartMeeting", ctx, mock.Anything).Return(assert.AnError)
	f.rooms.On("DeleteRoom", ctx, "MATH101ABC").Return(nil)

	_, err := f.svc.CreateMeeting(ctx, &CreateMeetingInput{ClassID: "class-7", HostID: "teacher-1"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistence))
	f.rooms.AssertExpectations(t)
	f.recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateMeeting_NotifyFailureIsLogged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.rooms.On("CreateRoom", ctx).Return("MATH101ABC", nil)
	f.repo.On("StartMeeting", ctx, mock.Anything).Return(nil)
	f.recorder.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true)
	f.notifier.On("NotifyMeeting", ctx, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := f.svc.CreateMeeting(ctx, &CreateMeetingInput{ClassID: "class-7", HostID: "teacher-1"})

	assert.NoError(t, err)
}

func TestCreateMeeting_RequiresClassAndHost(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateMeeting(context.Background(), &CreateMeetingInput{HostID: "teacher-1"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	f.rooms.AssertNotCalled(t, "CreateRoom", mock.Anything)
}

func TestIssueToken_RoleFromMeeting(t *testing.T) {
	tests := []struct {
		name     string
		caller   domain.Participant
		wantRole domain.Role
	}{
		{"host", domain.Participant{ID: "teacher-1", Name: "Ms. Frizzle"}, domain.RoleHost},
		{"student claiming host", domain.Participant{ID: "student-1", Name: "Arnold", Role: domain.RoleHost}, domain.RoleAttendee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.repo.On("GetOpenMeeting", ctx, "MATH101ABC").Return(openMeeting(), nil)
			f.rooms.On("ValidateRoom", ctx, "MATH101ABC").Return(true, nil)
			f.tokens.On("IssueToken", "MATH101ABC", mock.MatchedBy(func(p domain.Participant) bool {
				return p.ID == tt.caller.ID && p.Role == tt.wantRole
			})).Return("signed", nil)

			out, err := f.svc.IssueToken(ctx, "MATH101ABC", tt.caller)

			require.NoError(t, err)
			assert.Equal(t, "signed", out.Token)
			assert.Equal(t, tt.wantRole, out.Participant.Role)
		})
	}
}

func TestIssueToken_StaleRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.On("GetOpenMeeting", ctx, "EXPIRED123").Return(nil, postgres.ErrMeetingNotFound)

	_, err := f.svc.IssueToken(ctx, "EXPIRED123", domain.Participant{ID: "student-1"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStaleRoom))
	f.tokens.AssertNotCalled(t, "IssueToken", mock.Anything, mock.Anything)
}

func TestIssueToken_RoomGoneFromMediaServer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.On("GetOpenMeeting", ctx, "MATH101ABC").Return(openMeeting(), nil)
	f.rooms.On("ValidateRoom", ctx, "MATH101ABC").Return(false, nil)

	_, err := f.svc.IssueToken(ctx, "MATH101ABC", domain.Participant{ID: "student-1"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStaleRoom))
}

func TestValidateRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.rooms.On("ValidateRoom", ctx, "MATH101ABC").Return(true, nil)
	f.rooms.On("ValidateRoom", ctx, "BROKEN").Return(false, assert.AnError)

	live, err := f.svc.ValidateRoom(ctx, "MATH101ABC")
	require.NoError(t, err)
	assert.True(t, live)

	_, err = f.svc.ValidateRoom(ctx, "BROKEN")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNetwork))
}

func TestEndMeeting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.On("GetOpenMeeting", ctx, "MATH101ABC").Return(openMeeting(), nil)
	f.repo.On("EndMeeting", ctx, "teacher-1", "MATH101ABC", t0).Return(nil)
	f.recorder.On("Record", "teacher-1", "MATH101ABC", domain.ActionEnded, domain.RoleHost).Return(true)
	f.rooms.On("DeleteRoom", ctx, "MATH101ABC").Return(assert.AnError)
	f.notifier.On("NotifyMeeting", ctx, notification.KindMeetingEnded, "MATH101ABC", "class-7").Return(nil)

	session, err := f.svc.EndMeeting(ctx, "MATH101ABC", "teacher-1")

	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
	assert.True(t, session.EndedAt.Equal(t0))
	f.repo.AssertExpectations(t)
	f.rooms.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestEndMeeting_OnlyHost(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.On("GetOpenMeeting", ctx, "MATH101ABC").Return(openMeeting(), nil)

	_, err := f.svc.EndMeeting(ctx, "MATH101ABC", "student-1")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
	f.repo.AssertNotCalled(t, "EndMeeting", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.rooms.AssertNotCalled(t, "DeleteRoom", mock.Anything, mock.Anything)
}

// Package session drives one participant's view of a live classroom: room
// creation and validation, joining, the inbound SDK event stream and leaving.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/media"
	"liveclass-backend/internal/service/activity"
	"liveclass-backend/internal/service/capability"
	"liveclass-backend/internal/service/signal"
	"liveclass-backend/internal/service/stream"
	"liveclass-backend/pkg/constants"
	"liveclass-backend/pkg/errors"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/observable"
)

// RoomProvider creates and checks media rooms
type RoomProvider interface {
	CreateRoom(ctx context.Context) (string, error)
	ValidateRoom(ctx context.Context, roomID string) (bool, error)
}

// SessionStore persists meeting start and end
type SessionStore interface {
	StartMeeting(ctx context.Context, session domain.MeetingSession) error
	EndMeeting(ctx context.Context, hostID, roomID string, endedAt time.Time) error
}

// Notifier reaches users outside the room
type Notifier interface {
	Notify(ctx context.Context, title, body, targetID string) error
	NotifyGroup(ctx context.Context, title, body, classID string) error
}

// Deps are the collaborators of a Manager. Connector is required.
type Deps struct {
	Rooms     RoomProvider
	Connector media.Connector
	Sessions  SessionStore
	Activity  activity.Store
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Clock     func() time.Time
}

// Snapshot is the observable state the UI renders
type Snapshot struct {
	State        domain.SessionState                    `json:"state"`
	Session      *domain.MeetingSession                 `json:"session,omitempty"`
	Self         domain.Participant                     `json:"self"`
	Slots        stream.View                            `json:"slots"`
	Capabilities map[domain.Capability]capability.State `json:"capabilities"`
	Transcript   []domain.ChatMessage                   `json:"transcript"`
	RaisedHands  []signal.RaisedHand                    `json:"raised_hands"`
	HostLeft     bool                                   `json:"host_left"`
	LastError    *errors.AppError                       `json:"last_error,omitempty"`
}

// Manager owns the state of one local classroom session. All SDK callbacks
// are funneled through HandleEvent, which holds mu for the whole mutation.
type Manager struct {
	cfg      *Config
	deps     Deps
	now      func() time.Time
	recorder *activity.Recorder
	caps     *capability.Machine
	chat     *signal.Channel
	updates  *observable.Broadcaster[Snapshot]

	mu       sync.Mutex
	state    domain.SessionState
	session  *domain.MeetingSession
	self     domain.Participant
	client   media.Client
	router   *stream.Router
	hostLeft bool
	lastErr  *errors.AppError
	// joining reserves the connection while Connect runs
	joining bool
	// leaving admits one teardown; later leaves return at once
	leaving bool

	background conc.WaitGroup
}

// NewManager validates cfg and builds an idle manager
func NewManager(cfg *Config, deps Deps) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Connector == nil {
		return nil, fmt.Errorf("session manager requires a media connector")
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{
		cfg:  cfg,
		deps: deps,
		now:  now,
		recorder: activity.NewRecorder(deps.Activity, cfg.DedupWindow,
			activity.WithClock(now),
			activity.WithPersistTimeout(cfg.PersistTimeout),
			activity.WithMetrics(deps.Metrics)),
		caps:    capability.NewMachine(nil, deps.Metrics),
		chat:    signal.NewChannel(nil, cfg.ChatTimeFormat, deps.Metrics),
		updates: observable.NewBroadcaster[Snapshot](),
		state:   domain.SessionIdle,
		router:  stream.NewRouter(cfg.MaxActiveSlots, deps.Metrics),
	}, nil
}

// CreateRoom asks the room provider for a new room. On failure the manager
// returns to Idle and the error is a NetworkError.
func (m *Manager) CreateRoom(ctx context.Context) (string, error) {
	if err := m.begin(domain.SessionCreating); err != nil {
		return "", err
	}
	if m.deps.Rooms == nil {
		return "", m.fail(errors.NetworkError("Could not create the meeting room", fmt.Errorf("no room provider")))
	}

	roomID, err := m.deps.Rooms.CreateRoom(ctx)
	if err != nil {
		return "", m.fail(errors.NetworkError("Could not create the meeting room", err))
	}

	m.mu.Lock()
	m.session = &domain.MeetingSession{RoomID: roomID}
	m.mu.Unlock()
	m.publish()

	logger.Info("Meeting room created", zap.String("room_id", roomID))
	return roomID, nil
}

// ValidateRoom checks that code names a live room. A stale code is not an
// error: it returns false and the manager goes back to Idle.
func (m *Manager) ValidateRoom(ctx context.Context, code string) (bool, error) {
	if err := m.begin(domain.SessionValidating); err != nil {
		return false, err
	}
	if m.deps.Rooms == nil {
		return false, m.fail(errors.NetworkError("Could not check the meeting room", fmt.Errorf("no room provider")))
	}

	ok, err := m.deps.Rooms.ValidateRoom(ctx, code)
	if err != nil {
		return false, m.fail(errors.NetworkError("Could not check the meeting room", err))
	}
	if !ok {
		m.mu.Lock()
		m.state = domain.SessionIdle
		m.session = nil
		m.lastErr = errors.StaleRoomError(code)
		m.mu.Unlock()
		m.publish()

		logger.Info("Meeting room is no longer active", zap.String("room_id", code))
		return false, nil
	}

	m.mu.Lock()
	m.session = &domain.MeetingSession{RoomID: code}
	m.mu.Unlock()
	m.publish()
	return true, nil
}

// begin moves Idle to a transient state. A checked code may be checked again.
func (m *Manager) begin(next domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	revalidate := next == domain.SessionValidating && m.state == domain.SessionValidating
	if m.joining || (m.state != domain.SessionIdle && !revalidate) {
		return errors.InvalidStateError(fmt.Sprintf("cannot start %s while %s", next, m.state))
	}
	m.state = next
	m.lastErr = nil
	return nil
}

// fail returns to Idle and records err for the UI
func (m *Manager) fail(err *errors.AppError) error {
	m.mu.Lock()
	m.state = domain.SessionIdle
	m.session = nil
	m.lastErr = err
	m.mu.Unlock()
	m.publish()

	logger.Warn("Session setup failed", zap.Error(err))
	return err
}

// StartSession records the host's start of a meeting and notifies the class.
// Persistence and notification run in the background; their failures are logged.
func (m *Manager) StartSession(ctx context.Context, sessionID, hostID, roomID, classID string) error {
	if sessionID == "" || hostID == "" || roomID == "" {
		return errors.ValidationError("session id, host id and room id are required")
	}

	m.mu.Lock()
	if m.session == nil || m.session.RoomID != roomID {
		m.session = &domain.MeetingSession{RoomID: roomID}
	}
	m.session.ID = sessionID
	m.session.HostID = hostID
	m.session.ClassID = classID
	m.session.StartedAt = m.now()
	started := *m.session
	m.mu.Unlock()
	m.publish()

	if m.deps.Sessions != nil {
		m.goBackground(ctx, "persist meeting start", func(ctx context.Context) error {
			return m.deps.Sessions.StartMeeting(ctx, started)
		})
	}
	m.recorder.Record(hostID, roomID, domain.ActionStarted, domain.RoleHost)
	if m.deps.Notifier != nil && classID != "" {
		m.goBackground(ctx, "notify class", func(ctx context.Context) error {
			return m.deps.Notifier.NotifyGroup(ctx, constants.MeetingStartedTitle, constants.MeetingStartedBody, classID)
		})
	}

	return nil
}

// JoinRoom connects to roomID as self, starts the event pump and joins.
// joined is recorded now and again when the SDK confirms.
func (m *Manager) JoinRoom(ctx context.Context, roomID string, self domain.Participant) error {
	if roomID == "" || self.ID == "" {
		return errors.ValidationError("room id and participant id are required")
	}
	self.Local = true

	m.mu.Lock()
	if m.joining || m.client != nil || m.state == domain.SessionActive || m.state == domain.SessionEnded {
		state := m.state
		m.mu.Unlock()
		return errors.InvalidStateError(fmt.Sprintf("cannot join while %s", state))
	}
	m.joining = true
	m.mu.Unlock()

	client, err := m.deps.Connector.Connect(ctx, roomID, self)
	if err != nil {
		m.mu.Lock()
		m.joining = false
		m.mu.Unlock()
		return m.fail(errors.NetworkError("Could not connect to the meeting", err))
	}

	m.mu.Lock()
	m.joining = false
	m.client = client
	m.self = self
	if m.session == nil || m.session.RoomID != roomID {
		m.session = &domain.MeetingSession{RoomID: roomID}
	}
	if self.IsHost() && m.session.HostID == "" {
		m.session.HostID = self.ID
	}
	m.state = domain.SessionActive
	m.hostLeft = false
	m.lastErr = nil
	m.caps.SetDevice(client)
	m.chat.SetSender(client)
	m.router.AddParticipant(self)
	m.session.Observe(m.router.ParticipantCount())
	m.mu.Unlock()

	go m.pump(client)

	if err := client.Join(ctx); err != nil {
		return m.abandonJoin(ctx, client, errors.NetworkError("Could not join the meeting", err))
	}

	m.recorder.Record(self.ID, roomID, domain.ActionJoined, self.Role)
	m.publish()

	logger.Info("Joined meeting room",
		zap.String("room_id", roomID),
		zap.String("participant_id", self.ID),
		zap.String("role", string(self.Role)))
	return nil
}

// abandonJoin undoes a join the SDK refused. Nothing was joined, so no
// activity is recorded and the meeting itself is left untouched; the manager
// is Idle again and the join may be retried.
func (m *Manager) abandonJoin(ctx context.Context, client media.Client, appErr *errors.AppError) error {
	if err := client.Leave(ctx); err != nil {
		logger.Debug("Leave after failed join", zap.Error(err))
	}

	m.mu.Lock()
	if m.client == client {
		m.client = nil
		m.self = domain.Participant{}
		m.teardownLocked()
		m.state = domain.SessionIdle
		m.lastErr = appErr
	}
	m.mu.Unlock()
	m.publish()

	logger.Warn("Session setup failed", zap.Error(appErr))
	return appErr
}

// pump forwards the events of client until the SDK closes the channel.
// Events from a client that is no longer current are dropped.
func (m *Manager) pump(client media.Client) {
	for ev := range client.Events() {
		if !m.current(client) {
			if e, ok := ev.(domain.StreamEnabled); ok && e.Stream != nil {
				e.Stream.Release()
			}
			continue
		}
		m.HandleEvent(ev)
	}
}

func (m *Manager) current(client media.Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client == client
}

// HandleEvent applies one SDK event. The pump calls it for every event; tests
// call it directly with synthetic sequences.
func (m *Manager) HandleEvent(ev domain.Event) {
	var after []func()

	m.mu.Lock()
	if m.state == domain.SessionEnded {
		// late callbacks after teardown; handles are not adopted
		if e, ok := ev.(domain.StreamEnabled); ok && e.Stream != nil {
			e.Stream.Release()
		}
		m.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case domain.MeetingJoined:
		after = m.onMeetingJoined()

	case domain.MeetingLeft:
		if m.state == domain.SessionActive {
			m.state = domain.SessionEnded
			m.teardownLocked()
		}

	case domain.ParticipantJoined:
		m.router.AddParticipant(e.Participant)
		if m.session != nil {
			m.session.Observe(m.router.ParticipantCount())
		}

	case domain.ParticipantLeft:
		after = m.onParticipantLeft(e.Participant)

	case domain.StreamEnabled:
		accepted := m.router.StreamEnabled(e.Participant, e.Stream)
		if m.isSelf(e.Participant.ID) && e.Stream != nil {
			m.caps.Confirm(domain.CapabilityFor(e.Stream.Kind()), accepted)
			if !accepted {
				m.lastErr = errors.DeviceError(media.DeviceMessage(domain.CapabilityScreenShare),
					fmt.Errorf("screen share already in progress"))
			}
		}

	case domain.StreamDisabled:
		m.router.StreamDisabled(e.Participant, e.Kind)
		if m.isSelf(e.Participant.ID) {
			m.caps.Confirm(domain.CapabilityFor(e.Kind), false)
		}

	case domain.SpeakerChanged:
		m.router.SpeakerChanged(e.ParticipantID)

	case domain.ChatReceived:
		// protocol errors are logged and counted by the channel
		_, _ = m.chat.Receive(e, m.router)

	case domain.SDKError:
		if appErr, ok := m.caps.DeviceFailed(e.Code, e.Message); ok {
			m.lastErr = appErr
		} else {
			logger.Error("Media SDK error",
				zap.Int("code", e.Code),
				zap.String("message", e.Message))
		}

	case domain.RoomFinished:
		if m.state == domain.SessionActive {
			m.state = domain.SessionEnded
			m.hostLeft = !m.self.IsHost()
			m.teardownLocked()
		}

	case domain.RoomStarted:

	default:
		logger.Warn("Unhandled session event", zap.String("event", ev.EventName()))
	}
	m.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	m.publish()
}

// onMeetingJoined runs with mu held
func (m *Manager) onMeetingJoined() []func() {
	if m.state != domain.SessionActive || m.session == nil {
		return nil
	}
	m.recorder.Record(m.self.ID, m.session.RoomID, domain.ActionJoined, m.self.Role)

	var after []func()
	if m.cfg.JoinWithCamera {
		after = append(after, func() { m.toggleQuietly(domain.CapabilityCamera) })
	}
	if m.cfg.JoinWithMic {
		after = append(after, func() { m.toggleQuietly(domain.CapabilityMicrophone) })
	}
	return after
}

// onParticipantLeft runs with mu held
func (m *Manager) onParticipantLeft(p domain.Participant) []func() {
	m.router.RemoveParticipant(p.ID)
	m.chat.LowerHand(p.ID)

	if !p.IsHost() || m.self.IsHost() || m.isSelf(p.ID) || m.state != domain.SessionActive {
		return nil
	}

	logger.Info("Host left the meeting, ending session",
		zap.String("host_id", p.ID),
		zap.String("participant_id", m.self.ID))
	m.hostLeft = true
	selfID := m.self.ID
	// off the pump goroutine, the SDK may deliver MeetingLeft while Leave runs
	return []func(){func() {
		m.background.Go(func() {
			if err := m.leave(context.Background(), selfID, "host left"); err != nil {
				logger.Warn("Leave after host exit", zap.Error(err))
			}
		})
	}}
}

func (m *Manager) toggleQuietly(c domain.Capability) {
	if m.caps.State(c) != capability.Inactive {
		return
	}
	if _, err := m.Toggle(context.Background(), c); err != nil {
		logger.Warn("Could not enable device on join",
			zap.String("capability", string(c)),
			zap.Error(err))
	}
}

func (m *Manager) isSelf(id string) bool {
	return m.self.ID != "" && m.self.ID == id
}

// Toggle flips a local capability. Starting the camera or a screen share also
// tells peers to show a loading indicator.
func (m *Manager) Toggle(ctx context.Context, c domain.Capability) (capability.State, error) {
	before := m.caps.State(c)
	state, err := m.caps.Toggle(ctx, c)
	if err != nil {
		if appErr := errors.GetAppError(err); appErr.Code == errors.ErrCodeDevice {
			m.mu.Lock()
			m.lastErr = appErr
			m.mu.Unlock()
		}
		m.publish()
		return state, err
	}

	if before == capability.Inactive && state == capability.PendingEnable {
		var signalErr error
		switch c {
		case domain.CapabilityCamera:
			signalErr = m.chat.SignalWebcamLoading(ctx)
		case domain.CapabilityScreenShare:
			signalErr = m.chat.SignalShareLoading(ctx)
		}
		if signalErr != nil {
			logger.Debug("Loading signal not sent", zap.Error(signalErr))
		}
	}

	m.publish()
	return state, nil
}

func (m *Manager) ToggleCamera(ctx context.Context) (capability.State, error) {
	return m.Toggle(ctx, domain.CapabilityCamera)
}

func (m *Manager) ToggleMic(ctx context.Context) (capability.State, error) {
	return m.Toggle(ctx, domain.CapabilityMicrophone)
}

func (m *Manager) ToggleScreenShare(ctx context.Context) (capability.State, error) {
	return m.Toggle(ctx, domain.CapabilityScreenShare)
}

// SendChat sends a chat message to the room
func (m *Manager) SendChat(ctx context.Context, body string) error {
	return m.chat.SendChat(ctx, body)
}

// RaiseHand signals the host
func (m *Manager) RaiseHand(ctx context.Context) error {
	return m.chat.RaiseHand(ctx)
}

// LeaveSession leaves the room. Every step is attempted even when an earlier
// one fails; for the host this also ends the meeting for everyone. The
// returned error aggregates the failed steps and the state is always Ended.
func (m *Manager) LeaveSession(ctx context.Context, participantID string) error {
	return m.leave(ctx, participantID, "leave")
}

// Abort runs the leave teardown for an abnormal exit such as navigating away
func (m *Manager) Abort(ctx context.Context, reason string) error {
	m.mu.Lock()
	selfID := m.self.ID
	m.mu.Unlock()

	logger.Warn("Session aborted", zap.String("reason", reason), zap.String("participant_id", selfID))
	return m.leave(ctx, selfID, reason)
}

func (m *Manager) leave(ctx context.Context, participantID, reason string) error {
	m.mu.Lock()
	if m.leaving || (m.state == domain.SessionEnded && m.client == nil) {
		m.mu.Unlock()
		return nil
	}
	m.leaving = true
	client := m.client
	m.client = nil
	self := m.self
	if participantID == "" {
		participantID = self.ID
	}
	var session domain.MeetingSession
	if m.session != nil {
		session = *m.session
	}
	isHost := self.IsHost() && participantID == self.ID
	m.mu.Unlock()

	var errs error

	if client != nil {
		if err := client.Leave(ctx); err != nil {
			errs = multierr.Append(errs, errors.NetworkError("Could not leave the meeting cleanly", err))
		}
	}

	if session.RoomID != "" && participantID != "" {
		m.recorder.Record(participantID, session.RoomID, domain.ActionLeft, self.Role)
	}

	endedAt := m.now()
	if isHost && session.RoomID != "" {
		if m.deps.Sessions != nil {
			persistCtx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
			if err := m.deps.Sessions.EndMeeting(persistCtx, participantID, session.RoomID, endedAt); err != nil {
				errs = multierr.Append(errs, errors.PersistenceError(err))
			}
			cancel()
		}

		m.recorder.Record(participantID, session.RoomID, domain.ActionEnded, domain.RoleHost)

		if m.deps.Notifier != nil && session.ClassID != "" {
			notifyCtx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
			if err := m.deps.Notifier.NotifyGroup(notifyCtx, constants.MeetingEndedTitle, constants.MeetingEndedBody, session.ClassID); err != nil {
				errs = multierr.Append(errs, errors.NetworkError("Could not notify the class", err))
			}
			cancel()
		}
	}

	m.mu.Lock()
	m.teardownLocked()
	m.state = domain.SessionEnded
	m.leaving = false
	if isHost && m.session != nil {
		m.session.EndedAt = &endedAt
	}
	m.mu.Unlock()
	m.publish()

	if errs != nil {
		logger.Warn("Leave completed with errors",
			zap.String("participant_id", participantID),
			zap.String("reason", reason),
			zap.Error(errs))
	} else {
		logger.Info("Left meeting",
			zap.String("participant_id", participantID),
			zap.String("reason", reason))
	}
	return errs
}

// teardownLocked releases every stream handle and resets local controls.
// It does not wait for any SDK callback.
func (m *Manager) teardownLocked() {
	m.router.Teardown()
	m.caps.Reset()
	m.caps.SetDevice(nil)
	m.chat.SetSender(nil)
}

func (m *Manager) goBackground(ctx context.Context, what string, fn func(ctx context.Context) error) {
	// detached from the caller so the write outlives the request
	base := context.WithoutCancel(ctx)
	m.background.Go(func() {
		ctx, cancel := context.WithTimeout(base, m.cfg.PersistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("Background step failed", zap.String("step", what), zap.Error(err))
		}
	})
}

// Wait blocks until background persistence and notifications have finished
func (m *Manager) Wait() {
	m.background.Wait()
	m.recorder.Wait()
}

// State returns the lifecycle state
func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot copies the observable state
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        m.state,
		Self:         m.self,
		Slots:        m.router.Snapshot(),
		Capabilities: m.caps.Snapshot(),
		Transcript:   m.chat.Transcript(),
		RaisedHands:  m.chat.RaisedHands(),
		HostLeft:     m.hostLeft,
		LastError:    m.lastErr,
	}
	if m.session != nil {
		session := *m.session
		snap.Session = &session
	}
	return snap
}

// Subscribe streams snapshots after every change. Call cancel when done.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	return m.updates.Subscribe()
}

func (m *Manager) publish() {
	m.updates.Publish(m.Snapshot())
}

// Router exposes the display slots for read-only inspection
func (m *Manager) Router() *stream.Router {
	return m.router
}

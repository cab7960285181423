// Package monitor keeps a server-side projection of every live room, fed by
// media server webhooks.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/media/livekit"
	"liveclass-backend/internal/service/activity"
	"liveclass-backend/internal/service/stream"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/observable"
)

// Store persists the participant high-water mark of a meeting
type Store interface {
	UpdateHighWaterMark(ctx context.Context, roomID string, count int) error
}

// Presence mirrors room membership for other service instances
type Presence interface {
	Join(ctx context.Context, roomID, participantID string) error
	Leave(ctx context.Context, roomID, participantID string) error
	Clear(ctx context.Context, roomID string) error
}

// Config holds monitor settings
type Config struct {
	MaxActiveSlots int
	// DedupWindow is how long a webhook id is remembered
	DedupWindow    time.Duration
	PersistTimeout time.Duration
}

// RoomView is the published state of one room
type RoomView struct {
	RoomID        string      `json:"room_id"`
	HostID        string      `json:"host_id,omitempty"`
	Slots         stream.View `json:"slots"`
	Participants  int         `json:"participants"`
	HighWaterMark int         `json:"high_water_mark"`
	Finished      bool        `json:"finished"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type room struct {
	id        string
	hostID    string
	router    *stream.Router
	highWater int
	updatedAt time.Time
	feed      *observable.Broadcaster[RoomView]
}

// Monitor projects webhook events onto per-room stream routers and records
// attendance. Redelivered webhooks are dropped by id; the recorder's dedup
// absorbs the same fact arriving under different ids.
type Monitor struct {
	cfg      Config
	store    Store
	presence Presence
	recorder *activity.Recorder
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	rooms map[string]*room
	seen  map[string]time.Time

	background conc.WaitGroup
}

// New creates a Monitor. presence may be nil.
func New(cfg Config, store Store, presence Presence, recorder *activity.Recorder, m *metrics.Metrics) *Monitor {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = activity.DefaultWindow
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = activity.DefaultPersistTimeout
	}
	return &Monitor{
		cfg:      cfg,
		store:    store,
		presence: presence,
		recorder: recorder,
		metrics:  m,
		now:      time.Now,
		rooms:    make(map[string]*room),
		seen:     make(map[string]time.Time),
	}
}

// Handle applies a verified webhook. It reports false for a redelivery.
func (m *Monitor) Handle(n *livekit.Notification) bool {
	if n == nil || n.RoomID == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)
	if n.ID != "" {
		if _, dup := m.seen[n.ID]; dup {
			logger.Debug("Duplicate webhook dropped",
				zap.String("webhook_id", n.ID),
				zap.String("event", n.Name))
			return false
		}
		m.seen[n.ID] = now
	}

	r := m.roomLocked(n.RoomID)
	for _, ev := range n.Events {
		m.apply(r, ev)
	}
	r.updatedAt = n.At
	if r.updatedAt.IsZero() {
		r.updatedAt = now
	}

	if _, finished := lo.Find(n.Events, func(ev domain.Event) bool {
		_, ok := ev.(domain.RoomFinished)
		return ok
	}); finished {
		m.finishLocked(r)
		return true
	}

	r.feed.Publish(m.viewLocked(r, false))
	return true
}

func (m *Monitor) apply(r *room, ev domain.Event) {
	switch e := ev.(type) {
	case domain.RoomStarted:
		logger.Info("Room started", zap.String("room_id", r.id))

	case domain.ParticipantJoined:
		p := e.Participant
		if p.IsHost() {
			r.hostID = p.ID
		}
		r.router.AddParticipant(p)
		m.recorder.Record(p.ID, r.id, domain.ActionJoined, p.Role)
		m.observe(r)
		m.mirror("join", func(ctx context.Context) error {
			return m.presence.Join(ctx, r.id, p.ID)
		})

	case domain.ParticipantLeft:
		p := e.Participant
		r.router.RemoveParticipant(p.ID)
		m.recorder.Record(p.ID, r.id, domain.ActionLeft, p.Role)
		m.mirror("leave", func(ctx context.Context) error {
			return m.presence.Leave(ctx, r.id, p.ID)
		})

	case domain.StreamEnabled:
		r.router.StreamEnabled(e.Participant, e.Stream)
		m.observe(r)

	case domain.StreamDisabled:
		r.router.StreamDisabled(e.Participant, e.Kind)
	}
}

// observe raises the high-water mark and persists a new maximum
func (m *Monitor) observe(r *room) {
	count := r.router.ParticipantCount()
	if count <= r.highWater {
		return
	}
	r.highWater = count

	roomID := r.id
	m.goBackground("high_water_mark", func(ctx context.Context) error {
		return m.store.UpdateHighWaterMark(ctx, roomID, count)
	})
}

func (m *Monitor) finishLocked(r *room) {
	if r.hostID != "" {
		m.recorder.Record(r.hostID, r.id, domain.ActionEnded, domain.RoleHost)
	}
	r.router.Teardown()
	r.feed.Publish(m.viewLocked(r, true))
	r.feed.Close()
	delete(m.rooms, r.id)
	m.metrics.SetActiveRooms(len(m.rooms))

	roomID := r.id
	m.mirror("clear", func(ctx context.Context) error {
		return m.presence.Clear(ctx, roomID)
	})

	logger.Info("Room finished",
		zap.String("room_id", r.id),
		zap.Int("high_water_mark", r.highWater))
}

func (m *Monitor) mirror(what string, fn func(ctx context.Context) error) {
	if m.presence == nil {
		return
	}
	m.goBackground("presence_"+what, fn)
}

func (m *Monitor) goBackground(what string, fn func(ctx context.Context) error) {
	m.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PersistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("Background step failed", zap.String("step", what), zap.Error(err))
		}
	})
}

func (m *Monitor) roomLocked(roomID string) *room {
	if r, ok := m.rooms[roomID]; ok {
		return r
	}
	r := &room{
		id:     roomID,
		router: stream.NewRouter(m.cfg.MaxActiveSlots, m.metrics),
		feed:   observable.NewBroadcaster[RoomView](),
	}
	m.rooms[roomID] = r
	m.metrics.SetActiveRooms(len(m.rooms))
	return r
}

func (m *Monitor) viewLocked(r *room, finished bool) RoomView {
	return RoomView{
		RoomID:        r.id,
		HostID:        r.hostID,
		Slots:         r.router.Snapshot(),
		Participants:  r.router.ParticipantCount(),
		HighWaterMark: r.highWater,
		Finished:      finished,
		UpdatedAt:     r.updatedAt,
	}
}

func (m *Monitor) prune(now time.Time) {
	for id, at := range m.seen {
		if now.Sub(at) > m.cfg.DedupWindow {
			delete(m.seen, id)
		}
	}
}

// View returns the current state of roomID
func (m *Monitor) View(roomID string) (RoomView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return RoomView{}, false
	}
	return m.viewLocked(r, false), true
}

// Subscribe streams views of roomID, starting with the current one. The
// channel closes when the room finishes or cancel is called.
func (m *Monitor) Subscribe(roomID string) (<-chan RoomView, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.roomLocked(roomID)
	ch, cancel := r.feed.Subscribe()
	r.feed.Publish(m.viewLocked(r, false))
	return ch, cancel
}

// Rooms returns the ids of the rooms being tracked
func (m *Monitor) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.rooms)
}

// Wait blocks until background writes have finished
func (m *Monitor) Wait() {
	m.background.Wait()
	m.recorder.Wait()
}

// Close finishes every feed and waits for background writes
func (m *Monitor) Close() {
	m.mu.Lock()
	for id, r := range m.rooms {
		r.router.Teardown()
		r.feed.Close()
		delete(m.rooms, id)
	}
	m.metrics.SetActiveRooms(0)
	m.mu.Unlock()

	m.Wait()
}

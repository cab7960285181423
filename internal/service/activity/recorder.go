// Package activity records meeting lifecycle events at most once per dedup window.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
)

const (
	DefaultWindow         = 10 * time.Second
	DefaultPersistTimeout = 5 * time.Second
)

// Store persists activity entries and attendance
type Store interface {
	LogActivity(ctx context.Context, entry domain.ActivityLogEntry) error
	RecordAttendance(ctx context.Context, studentID, meetingID string) error
}

type dedupKey struct {
	actorID   string
	meetingID string
	action    domain.Action
}

// Recorder drops repeated (actor, meeting, action) requests inside the window
// and persists the rest in the background. Write failures are logged only.
type Recorder struct {
	store          Store
	window         time.Duration
	persistTimeout time.Duration
	now            func() time.Time
	metrics        *metrics.Metrics

	mu   sync.Mutex
	last map[dedupKey]time.Time

	inflight conc.WaitGroup
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithPersistTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.persistTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder creates a recorder; a non-positive window uses DefaultWindow
func NewRecorder(store Store, window time.Duration, opts ...Option) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}
	r := &Recorder{
		store:          store,
		window:         window,
		persistTimeout: DefaultPersistTimeout,
		now:            time.Now,
		last:           make(map[dedupKey]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record logs action for actor in meeting. It returns false when an identical
// request was accepted less than one window ago.
func (r *Recorder) Record(actorID, meetingID string, action domain.Action, role domain.Role) bool {
	key := dedupKey{actorID: actorID, meetingID: meetingID, action: action}

	r.mu.Lock()
	now := r.now()
	if last, ok := r.last[key]; ok && now.Sub(last) < r.window {
		r.mu.Unlock()
		r.metrics.RecordActivity(string(action), metrics.ResultDeduplicated)
		logger.Debug("Activity already recorded",
			zap.String("actor_id", actorID),
			zap.String("meeting_id", meetingID),
			zap.String("action", string(action)))
		return false
	}
	r.prune(now)
	r.last[key] = now
	r.mu.Unlock()

	entry := domain.ActivityLogEntry{
		ID:        uuid.New(),
		ActorID:   actorID,
		MeetingID: meetingID,
		Action:    action,
		Role:      role,
		Timestamp: now,
	}
	r.inflight.Go(func() { r.persist(entry) })
	return true
}

// prune drops keys older than the window; r.mu must be held
func (r *Recorder) prune(now time.Time) {
	for k, t := range r.last {
		if now.Sub(t) >= r.window {
			delete(r.last, k)
		}
	}
}

func (r *Recorder) persist(entry domain.ActivityLogEntry) {
	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
	defer cancel()

	log := logger.With(
		zap.String("actor_id", entry.ActorID),
		zap.String("meeting_id", entry.MeetingID),
		zap.String("action", string(entry.Action)))

	if err := r.store.LogActivity(ctx, entry); err != nil {
		r.metrics.RecordActivity(string(entry.Action), metrics.ResultFailed)
		log.Warn("Failed to persist activity", zap.Error(err))
	} else {
		r.metrics.RecordActivity(string(entry.Action), metrics.ResultPersisted)
	}

	if entry.Action == domain.ActionJoined && entry.Role == domain.RoleAttendee {
		if err := r.store.RecordAttendance(ctx, entry.ActorID, entry.MeetingID); err != nil {
			log.Warn("Failed to record attendance", zap.Error(err))
		}
	}
}

// Wait blocks until every accepted entry has been written or has failed
func (r *Recorder) Wait() {
	r.inflight.Wait()
}

// Len returns the number of keys currently held for dedup
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}

// Package stream projects remote media streams onto the classroom display slots.
package stream

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
)

// DefaultMaxActiveSlots is the visible grid capacity besides the main slot
const DefaultMaxActiveSlots = 5

// Pool names a slot location
type Pool string

const (
	PoolNone     Pool = ""
	PoolMain     Pool = "main"
	PoolActive   Pool = "active"
	PoolInactive Pool = "inactive"
)

// Slot is a display position. A nil Video renders the avatar fallback.
type Slot struct {
	Participant domain.Participant
	Video       domain.StreamHandle
	Loading     bool
}

// Router owns pool membership and every stream handle it is given.
// It is not safe for concurrent use; callers serialize access.
//
// The host only ever occupies the main slot. Every other participant is in
// exactly one of the active pool (at most maxActive members, oldest first)
// or the inactive pool.
type Router struct {
	maxActive int
	metrics   *metrics.Metrics

	main     *Slot
	active   []string
	inactive []string
	slots    map[string]*Slot

	audio map[string]domain.StreamHandle

	screen      domain.StreamHandle
	screenOwner string
}

// NewRouter creates an empty router; maxActive below 1 uses DefaultMaxActiveSlots
func NewRouter(maxActive int, m *metrics.Metrics) *Router {
	if maxActive < 1 {
		maxActive = DefaultMaxActiveSlots
	}
	return &Router{
		maxActive: maxActive,
		metrics:   m,
		slots:     make(map[string]*Slot),
		audio:     make(map[string]domain.StreamHandle),
	}
}

// AddParticipant places p without a stream; already placed participants
// only get their details refreshed
func (r *Router) AddParticipant(p domain.Participant) {
	r.slotFor(p)
}

// slotFor returns the slot of p, placing it on first sight
func (r *Router) slotFor(p domain.Participant) *Slot {
	if p.IsHost() {
		if r.main != nil && r.main.Participant.ID == p.ID {
			r.main.Participant = p
			return r.main
		}
		// a participant promoted to host brings its slot out of the pools
		slot, ok := r.slots[p.ID]
		if ok {
			r.vacate(p.ID)
		} else {
			slot = &Slot{}
		}
		// the previous host stays in the room as an attendee
		if prev := r.main; prev != nil {
			prev.Participant.Role = domain.RoleAttendee
			r.slots[prev.Participant.ID] = prev
			r.place(prev.Participant.ID)
		}
		slot.Participant = p
		r.main = slot
		return slot
	}

	if slot, ok := r.slots[p.ID]; ok {
		slot.Participant = p
		return slot
	}
	if r.main != nil && r.main.Participant.ID == p.ID {
		// demoted host
		slot := r.main
		r.main = nil
		slot.Participant = p
		r.slots[p.ID] = slot
		r.place(p.ID)
		return slot
	}

	slot := &Slot{Participant: p}
	r.slots[p.ID] = slot
	r.place(p.ID)
	return slot
}

// place appends id to the active pool when it has room, else to the inactive pool
func (r *Router) place(id string) {
	if len(r.active) < r.maxActive {
		r.active = append(r.active, id)
		return
	}
	r.inactive = append(r.inactive, id)
}

// StreamEnabled takes ownership of h. It returns false when the stream was
// refused (a second simultaneous screen share); the refused handle is released.
func (r *Router) StreamEnabled(p domain.Participant, h domain.StreamHandle) bool {
	if h == nil {
		return false
	}

	switch h.Kind() {
	case domain.StreamVideo:
		slot := r.slotFor(p)
		if slot.Video != nil && slot.Video != h {
			release(slot.Video)
		}
		slot.Video = h
		slot.Loading = false

	case domain.StreamAudio:
		r.slotFor(p)
		if prev, ok := r.audio[p.ID]; ok && prev != h {
			release(prev)
		}
		r.audio[p.ID] = h

	case domain.StreamScreen:
		r.slotFor(p)
		if r.screen != nil && r.screenOwner != p.ID {
			logger.Warn("Screen share refused, another participant is sharing",
				zap.String("participant_id", p.ID),
				zap.String("owner_id", r.screenOwner))
			release(h)
			return false
		}
		if r.screen != nil && r.screen != h {
			release(r.screen)
		}
		r.screen = h
		r.screenOwner = p.ID
		if slot := r.lookup(p.ID); slot != nil {
			slot.Loading = false
		}
	}

	return true
}

// StreamDisabled clears the stream of kind owned by p. Video slots are kept
// with a nil handle.
func (r *Router) StreamDisabled(p domain.Participant, kind domain.StreamKind) {
	switch kind {
	case domain.StreamVideo:
		slot := r.lookup(p.ID)
		if slot == nil {
			return
		}
		release(slot.Video)
		slot.Video = nil
		slot.Loading = false

	case domain.StreamAudio:
		if h, ok := r.audio[p.ID]; ok {
			release(h)
			delete(r.audio, p.ID)
		}

	case domain.StreamScreen:
		if r.screenOwner == p.ID {
			r.clearScreen()
		}
	}
}

// SpeakerChanged promotes id from the inactive pool. When the active pool is
// full its oldest member is moved to the inactive pool first. It reports
// whether id was promoted.
func (r *Router) SpeakerChanged(id string) bool {
	idx := lo.IndexOf(r.inactive, id)
	if idx < 0 {
		return false
	}

	r.inactive = append(r.inactive[:idx], r.inactive[idx+1:]...)

	mode := "direct"
	if len(r.active) >= r.maxActive {
		evicted := r.active[0]
		r.active = r.active[1:]
		r.inactive = append(r.inactive, evicted)
		mode = "evict"
		logger.Debug("Evicted active participant",
			zap.String("participant_id", evicted),
			zap.String("speaker_id", id))
	}
	r.active = append(r.active, id)
	r.metrics.RecordSpeakerRotation(mode)

	return true
}

// RemoveParticipant drops id from every slot and releases its handles.
// A freed active seat goes to the longest-waiting inactive participant.
func (r *Router) RemoveParticipant(id string) {
	if h, ok := r.audio[id]; ok {
		release(h)
		delete(r.audio, id)
	}
	if r.screenOwner == id {
		r.clearScreen()
	}

	if r.main != nil && r.main.Participant.ID == id {
		release(r.main.Video)
		r.main = nil
		return
	}

	slot, ok := r.slots[id]
	if !ok {
		return
	}
	release(slot.Video)
	r.vacate(id)
}

// vacate detaches id; a freed active seat goes to the longest-waiting
// inactive participant
func (r *Router) vacate(id string) {
	if r.detach(id) != PoolActive {
		return
	}
	if len(r.inactive) > 0 && len(r.active) < r.maxActive {
		next := r.inactive[0]
		r.inactive = r.inactive[1:]
		r.active = append(r.active, next)
	}
}

// detach removes id from the pools without releasing anything
func (r *Router) detach(id string) Pool {
	if _, ok := r.slots[id]; !ok {
		return PoolNone
	}
	delete(r.slots, id)

	if idx := lo.IndexOf(r.active, id); idx >= 0 {
		r.active = append(r.active[:idx], r.active[idx+1:]...)
		return PoolActive
	}
	if idx := lo.IndexOf(r.inactive, id); idx >= 0 {
		r.inactive = append(r.inactive[:idx], r.inactive[idx+1:]...)
		return PoolInactive
	}
	return PoolNone
}

// SetLoading flags the slot of id while its camera or share is starting
func (r *Router) SetLoading(id string, loading bool) bool {
	slot := r.lookup(id)
	if slot == nil {
		return false
	}
	slot.Loading = loading
	return true
}

// Teardown releases every held handle and empties the router
func (r *Router) Teardown() {
	if r.main != nil {
		release(r.main.Video)
	}
	for _, slot := range r.slots {
		release(slot.Video)
	}
	for _, h := range r.audio {
		release(h)
	}
	release(r.screen)

	r.main = nil
	r.active = nil
	r.inactive = nil
	r.slots = make(map[string]*Slot)
	r.audio = make(map[string]domain.StreamHandle)
	r.screen = nil
	r.screenOwner = ""
}

func (r *Router) clearScreen() {
	release(r.screen)
	r.screen = nil
	r.screenOwner = ""
}

func (r *Router) lookup(id string) *Slot {
	if r.main != nil && r.main.Participant.ID == id {
		return r.main
	}
	return r.slots[id]
}

// Location reports which pool holds id
func (r *Router) Location(id string) Pool {
	if r.main != nil && r.main.Participant.ID == id {
		return PoolMain
	}
	if _, ok := r.slots[id]; !ok {
		return PoolNone
	}
	if lo.Contains(r.active, id) {
		return PoolActive
	}
	return PoolInactive
}

// Slot returns a copy of the slot holding id
func (r *Router) Slot(id string) (Slot, bool) {
	slot := r.lookup(id)
	if slot == nil {
		return Slot{}, false
	}
	return *slot, true
}

// Audio returns the audio handle of id
func (r *Router) Audio(id string) (domain.StreamHandle, bool) {
	h, ok := r.audio[id]
	return h, ok
}

// ScreenOwner returns the id of the participant sharing a screen, or ""
func (r *Router) ScreenOwner() string {
	return r.screenOwner
}

// ParticipantCount counts everyone holding a slot
func (r *Router) ParticipantCount() int {
	n := len(r.slots)
	if r.main != nil {
		n++
	}
	return n
}

func (r *Router) MaxActive() int {
	return r.maxActive
}

// SlotView is the serializable form of a Slot
type SlotView struct {
	ParticipantID string      `json:"participant_id"`
	Name          string      `json:"name"`
	Role          domain.Role `json:"role"`
	ProfileImage  string      `json:"profile_image,omitempty"`
	StreamID      string      `json:"stream_id,omitempty"`
	HasVideo      bool        `json:"has_video"`
	HasAudio      bool        `json:"has_audio"`
	Loading       bool        `json:"loading"`
}

// View is a point-in-time copy of the display slots
type View struct {
	Main        *SlotView  `json:"main,omitempty"`
	Active      []SlotView `json:"active"`
	Inactive    []SlotView `json:"inactive"`
	ScreenOwner string     `json:"screen_owner,omitempty"`
	ScreenID    string     `json:"screen_id,omitempty"`
}

// Snapshot copies the slots in pool order
func (r *Router) Snapshot() View {
	view := View{
		Active:      lo.Map(r.active, func(id string, _ int) SlotView { return r.view(r.slots[id]) }),
		Inactive:    lo.Map(r.inactive, func(id string, _ int) SlotView { return r.view(r.slots[id]) }),
		ScreenOwner: r.screenOwner,
	}
	if r.main != nil {
		main := r.view(r.main)
		view.Main = &main
	}
	if r.screen != nil {
		view.ScreenID = r.screen.ID()
	}
	return view
}

func (r *Router) view(slot *Slot) SlotView {
	v := SlotView{
		ParticipantID: slot.Participant.ID,
		Name:          slot.Participant.Name,
		Role:          slot.Participant.Role,
		ProfileImage:  slot.Participant.ProfileImage,
		HasVideo:      slot.Video != nil,
		Loading:       slot.Loading,
	}
	if slot.Video != nil {
		v.StreamID = slot.Video.ID()
	}
	_, v.HasAudio = r.audio[slot.Participant.ID]
	return v
}

func release(h domain.StreamHandle) {
	if h != nil {
		h.Release()
	}
}

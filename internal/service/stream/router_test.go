package stream

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass-backend/internal/domain"
)

type fakeHandle struct {
	id       string
	kind     domain.StreamKind
	released int
}

func (h *fakeHandle) ID() string               { return h.id }
func (h *fakeHandle) Kind() domain.StreamKind { return h.kind }
func (h *fakeHandle) Release()                 { h.released++ }

func video(id string) *fakeHandle  { return &fakeHandle{id: "v-" + id, kind: domain.StreamVideo} }
func audio(id string) *fakeHandle  { return &fakeHandle{id: "a-" + id, kind: domain.StreamAudio} }
func screen(id string) *fakeHandle { return &fakeHandle{id: "s-" + id, kind: domain.StreamScreen} }

func attendee(id string) domain.Participant {
	return domain.Participant{ID: id, Name: "Student " + id, Role: domain.RoleAttendee}
}

func host(id string) domain.Participant {
	return domain.Participant{ID: id, Name: "Teacher " + id, Role: domain.RoleHost}
}

// assertInvariants checks pool bounds and that no id holds two slots
func assertInvariants(t *testing.T, r *Router) {
	t.Helper()
	require.LessOrEqual(t, len(r.active), r.maxActive)

	seen := make(map[string]Pool)
	mark := func(id string, pool Pool) {
		prev, dup := seen[id]
		require.False(t, dup, "participant %s in both %s and %s", id, prev, pool)
		seen[id] = pool
	}
	if r.main != nil {
		mark(r.main.Participant.ID, PoolMain)
	}
	for _, id := range r.active {
		mark(id, PoolActive)
	}
	for _, id := range r.inactive {
		mark(id, PoolInactive)
	}
	require.Equal(t, len(r.slots), len(r.active)+len(r.inactive))
}

func TestRouter_SixthAttendeeGoesInactiveThenRotates(t *testing.T) {
	r := NewRouter(5, nil)
	for i := 1; i <= 6; i++ {
		r.StreamEnabled(attendee(fmt.Sprint(i)), video(fmt.Sprint(i)))
		assertInvariants(t, r)
	}

	assert.Equal(t, PoolInactive, r.Location("6"))
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, r.active)

	promoted := r.SpeakerChanged("6")

	assert.True(t, promoted)
	assert.Equal(t, PoolActive, r.Location("6"))
	assert.Len(t, r.active, 5)
	assert.Equal(t, []string{"1"}, r.inactive)
	assertInvariants(t, r)
}

func TestRouter_EvictionIsFIFO(t *testing.T) {
	r := NewRouter(2, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		r.AddParticipant(attendee(id))
	}
	require.Equal(t, []string{"a", "b"}, r.active)
	require.Equal(t, []string{"c", "d"}, r.inactive)

	r.SpeakerChanged("c")
	assert.Equal(t, []string{"b", "c"}, r.active)
	assert.Equal(t, []string{"d", "a"}, r.inactive)

	r.SpeakerChanged("a")
	assert.Equal(t, []string{"c", "a"}, r.active)
	assert.Equal(t, []string{"d", "b"}, r.inactive)
}

func TestRouter_SpeakerChangedDirectPromotion(t *testing.T) {
	r := NewRouter(3, nil)
	r.active = []string{"a"}
	r.inactive = []string{"b"}
	r.slots["a"] = &Slot{Participant: attendee("a")}
	r.slots["b"] = &Slot{Participant: attendee("b")}

	assert.True(t, r.SpeakerChanged("b"))
	assert.Equal(t, []string{"a", "b"}, r.active)
	assert.Empty(t, r.inactive)
}

func TestRouter_SpeakerChangedIgnoresActiveUnknownAndHost(t *testing.T) {
	r := NewRouter(1, nil)
	r.StreamEnabled(host("t"), video("t"))
	r.AddParticipant(attendee("a"))
	r.AddParticipant(attendee("b"))

	assert.False(t, r.SpeakerChanged("a"))
	assert.False(t, r.SpeakerChanged("ghost"))
	assert.False(t, r.SpeakerChanged("t"))

	assert.Equal(t, PoolMain, r.Location("t"))
	assert.Equal(t, []string{"a"}, r.active)
	assert.Equal(t, []string{"b"}, r.inactive)
}

func TestRouter_HostVideoReplacesMainSlot(t *testing.T) {
	r := NewRouter(5, nil)
	first := video("t1")
	second := video("t2")

	r.StreamEnabled(host("t"), first)
	r.StreamEnabled(host("t"), second)

	slot, ok := r.Slot("t")
	require.True(t, ok)
	assert.Same(t, second, slot.Video)
	assert.Equal(t, 1, first.released)
	assert.Equal(t, 0, second.released)
	assert.Empty(t, r.active)
	assert.Empty(t, r.inactive)
}

func TestRouter_AttendeeVideoUpdatesExistingSlot(t *testing.T) {
	r := NewRouter(1, nil)
	r.AddParticipant(attendee("a"))
	r.AddParticipant(attendee("b"))
	old := video("b1")
	r.StreamEnabled(attendee("b"), old)

	fresh := video("b2")
	r.StreamEnabled(attendee("b"), fresh)

	assert.Equal(t, PoolInactive, r.Location("b"))
	slot, _ := r.Slot("b")
	assert.Same(t, fresh, slot.Video)
	assert.Equal(t, 1, old.released)
}

func TestRouter_StreamDisabledKeepsSlot(t *testing.T) {
	r := NewRouter(5, nil)
	h := video("a")
	r.StreamEnabled(attendee("a"), h)

	r.StreamDisabled(attendee("a"), domain.StreamVideo)

	assert.Equal(t, PoolActive, r.Location("a"))
	slot, ok := r.Slot("a")
	require.True(t, ok)
	assert.Nil(t, slot.Video)
	assert.Equal(t, 1, h.released)

	view := r.Snapshot()
	require.Len(t, view.Active, 1)
	assert.False(t, view.Active[0].HasVideo)
}

func TestRouter_AudioMapIsIndependent(t *testing.T) {
	r := NewRouter(1, nil)
	r.AddParticipant(attendee("a"))
	ha := audio("b")
	r.StreamEnabled(attendee("b"), ha)

	got, ok := r.Audio("b")
	require.True(t, ok)
	assert.Same(t, ha, got)
	assert.Equal(t, PoolInactive, r.Location("b"))

	r.StreamDisabled(attendee("b"), domain.StreamAudio)
	_, ok = r.Audio("b")
	assert.False(t, ok)
	assert.Equal(t, 1, ha.released)
}

func TestRouter_ScreenShareFirstSharerWins(t *testing.T) {
	r := NewRouter(5, nil)
	first := screen("a")
	second := screen("b")

	assert.True(t, r.StreamEnabled(attendee("a"), first))
	assert.False(t, r.StreamEnabled(attendee("b"), second))

	assert.Equal(t, "a", r.ScreenOwner())
	assert.Equal(t, 1, second.released)
	assert.Equal(t, 0, first.released)

	r.StreamDisabled(attendee("b"), domain.StreamScreen)
	assert.Equal(t, "a", r.ScreenOwner())

	r.StreamDisabled(attendee("a"), domain.StreamScreen)
	assert.Equal(t, "", r.ScreenOwner())
	assert.Equal(t, 1, first.released)

	assert.True(t, r.StreamEnabled(attendee("b"), screen("b2")))
	assert.Equal(t, "b", r.ScreenOwner())
}

func TestRouter_RemoveParticipantReleasesAndBackfills(t *testing.T) {
	r := NewRouter(2, nil)
	va, aa, sa := video("a"), audio("a"), screen("a")
	r.StreamEnabled(attendee("a"), va)
	r.StreamEnabled(attendee("a"), aa)
	r.StreamEnabled(attendee("a"), sa)
	r.AddParticipant(attendee("b"))
	r.AddParticipant(attendee("c"))
	r.AddParticipant(attendee("d"))

	r.RemoveParticipant("a")

	assert.Equal(t, PoolNone, r.Location("a"))
	assert.Equal(t, 1, va.released)
	assert.Equal(t, 1, aa.released)
	assert.Equal(t, 1, sa.released)
	assert.Equal(t, []string{"b", "c"}, r.active)
	assert.Equal(t, []string{"d"}, r.inactive)
	assertInvariants(t, r)
}

func TestRouter_RemoveHostClearsMain(t *testing.T) {
	r := NewRouter(2, nil)
	h := video("t")
	r.StreamEnabled(host("t"), h)

	r.RemoveParticipant("t")

	assert.Equal(t, PoolNone, r.Location("t"))
	assert.Nil(t, r.Snapshot().Main)
	assert.Equal(t, 1, h.released)
}

func TestRouter_PromotedToHostLeavesPools(t *testing.T) {
	r := NewRouter(2, nil)
	h := video("a")
	r.StreamEnabled(attendee("a"), h)

	r.AddParticipant(host("a"))

	assert.Equal(t, PoolMain, r.Location("a"))
	slot, _ := r.Slot("a")
	assert.Same(t, h, slot.Video)
	assert.Equal(t, 0, h.released)
	assertInvariants(t, r)
}

func TestRouter_PromotedToHostBackfillsActiveSeat(t *testing.T) {
	r := NewRouter(2, nil)
	r.AddParticipant(attendee("a"))
	r.AddParticipant(attendee("b"))
	r.AddParticipant(attendee("c"))

	r.AddParticipant(host("a"))

	assert.Equal(t, PoolMain, r.Location("a"))
	assert.Equal(t, []string{"b", "c"}, r.active)
	assert.Empty(t, r.inactive)
	assertInvariants(t, r)
}

func TestRouter_NewHostMovesPreviousHostToPools(t *testing.T) {
	r := NewRouter(2, nil)
	tv, ta := video("t"), audio("t")
	r.StreamEnabled(host("t"), tv)
	r.StreamEnabled(host("t"), ta)
	r.AddParticipant(attendee("a"))
	r.AddParticipant(attendee("b"))

	r.AddParticipant(host("u"))

	assert.Equal(t, PoolMain, r.Location("u"))
	assert.Equal(t, PoolInactive, r.Location("t"))
	slot, ok := r.Slot("t")
	require.True(t, ok)
	assert.Same(t, tv, slot.Video)
	assert.Equal(t, domain.RoleAttendee, slot.Participant.Role)
	assert.Equal(t, 0, tv.released)
	assert.Equal(t, 0, ta.released)
	assertInvariants(t, r)

	r.RemoveParticipant("t")

	assert.Equal(t, 1, tv.released)
	assert.Equal(t, 1, ta.released)
	_, ok = r.Audio("t")
	assert.False(t, ok)
	assertInvariants(t, r)
}

func TestRouter_SetLoading(t *testing.T) {
	r := NewRouter(2, nil)
	r.AddParticipant(attendee("a"))

	assert.True(t, r.SetLoading("a", true))
	assert.False(t, r.SetLoading("ghost", true))
	slot, _ := r.Slot("a")
	assert.True(t, slot.Loading)

	r.StreamEnabled(attendee("a"), video("a"))
	slot, _ = r.Slot("a")
	assert.False(t, slot.Loading)
}

func TestRouter_TeardownReleasesEveryHandleOnce(t *testing.T) {
	r := NewRouter(2, nil)
	handles := []*fakeHandle{video("t"), video("a"), video("b"), video("c"), audio("a"), audio("t"), screen("b")}
	r.StreamEnabled(host("t"), handles[0])
	r.StreamEnabled(attendee("a"), handles[1])
	r.StreamEnabled(attendee("b"), handles[2])
	r.StreamEnabled(attendee("c"), handles[3])
	r.StreamEnabled(attendee("a"), handles[4])
	r.StreamEnabled(host("t"), handles[5])
	r.StreamEnabled(attendee("b"), handles[6])

	r.Teardown()
	r.Teardown()

	for _, h := range handles {
		assert.Equal(t, 1, h.released, "handle %s", h.id)
	}
	assert.Equal(t, 0, r.ParticipantCount())
	assert.Equal(t, View{Active: []SlotView{}, Inactive: []SlotView{}}, r.Snapshot())
}

func TestRouter_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRouter(3, nil)
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	for step := 0; step < 2000; step++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(7) {
		case 0:
			r.AddParticipant(attendee(id))
		case 1:
			r.StreamEnabled(attendee(id), video(id))
		case 2:
			r.StreamDisabled(attendee(id), domain.StreamVideo)
		case 3:
			r.SpeakerChanged(id)
		case 4:
			r.RemoveParticipant(id)
		case 5:
			r.StreamEnabled(host("t"), video("t"))
		case 6:
			r.AddParticipant(host(id))
		}
		assertInvariants(t, r)
	}
}

func TestNewRouter_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMaxActiveSlots, NewRouter(0, nil).MaxActive())
}

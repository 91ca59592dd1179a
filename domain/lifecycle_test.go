package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/domaincore/domain/stw"
)

func testConfig(maxDomains int) Config {
	return Config{
		MaxDomains:         maxDomains,
		InitMinorHeapWords: 4096,
	}
}

func TestSpawnAssignsDistinctUniqueIDs(t *testing.T) {
	rt, main, err := NewRuntime(testConfig(4))
	require.NoError(t, err)
	defer rt.Shutdown()

	assert.EqualValues(t, 0, main.SelfUniqueID(), "the bootstrap domain owns unique_id 0")

	seen := map[int64]bool{main.SelfUniqueID(): true}
	var spawned []*Spawned
	for i := 0; i < 3; i++ {
		sp, err := Spawn(rt, main, func(h *Handle) (any, error) {
			return h.SelfUniqueID(), nil
		})
		require.NoError(t, err)
		spawned = append(spawned, sp)
	}

	for _, sp := range spawned {
		select {
		case <-sp.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("domain never finished")
		}
		o := sp.Outcome()
		require.NoError(t, o.Err)
		uid := o.Value.(int64)
		assert.False(t, seen[uid], "unique_id %d reused while still distinct", uid)
		seen[uid] = true
		assert.NotZero(t, uid, "only the bootstrap domain may hold unique_id 0")
	}
}

func TestSpawnFailsWhenRegistryFull(t *testing.T) {
	rt, main, err := NewRuntime(testConfig(2))
	require.NoError(t, err)
	defer rt.Shutdown()

	block := make(chan struct{})
	sp, err := Spawn(rt, main, func(h *Handle) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	_, err = Spawn(rt, main, func(h *Handle) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrNoFreeSlot)

	close(block)
	select {
	case <-sp.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("domain never finished")
	}
}

func TestTerminatedSlotIsReusableAndStatsPersist(t *testing.T) {
	rt, main, err := NewRuntime(testConfig(2))
	require.NoError(t, err)
	defer rt.Shutdown()

	sp1, err := Spawn(rt, main, func(h *Handle) (any, error) {
		h.AllocStats() // exercise the read path; slot itself starts zeroed
		return h.SelfIndex(), nil
	})
	require.NoError(t, err)
	<-sp1.Done()
	idx := sp1.Outcome().Value.(int)

	// Bump the persistent counters directly through the slot the way a
	// real GC integration would, to prove reuse doesn't zero them.
	slot := rt.Registry.Slot(idx)
	slot.State().Stats.MinorWordsAllocated.Add(42)

	// Done() closes as soon as the callback returns, slightly before the
	// terminate loop actually frees the slot, so retry until it does.
	var sp2 *Spawned
	require.Eventually(t, func() bool {
		var spawnErr error
		sp2, spawnErr = Spawn(rt, main, func(h *Handle) (any, error) {
			return h.SelfIndex(), nil
		})
		return spawnErr == nil
	}, 2*time.Second, 5*time.Millisecond, "terminated slot never became free")
	<-sp2.Done()
	idx2 := sp2.Outcome().Value.(int)
	require.Equal(t, idx, idx2, "with MaxDomains=2 and one slot already occupied by main, the freed slot must be reused")

	assert.EqualValues(t, 42, rt.Registry.Slot(idx2).State().Stats.MinorWordsAllocated.Load(),
		"AllocStats must persist across slot reuse")
}

func TestSpawnRecoversCallbackPanic(t *testing.T) {
	rt, main, err := NewRuntime(testConfig(2))
	require.NoError(t, err)
	defer rt.Shutdown()

	sp, err := Spawn(rt, main, func(h *Handle) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	select {
	case <-sp.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("domain never finished")
	}
	o := sp.Outcome()
	require.Error(t, o.Err)
	assert.Contains(t, o.Err.Error(), "boom")
}

func TestHandlePendingInterruptDrainsStwOnFollower(t *testing.T) {
	rt, main, err := NewRuntime(testConfig(3))
	require.NoError(t, err)
	defer rt.Shutdown()

	started := make(chan struct{})
	release := make(chan struct{})
	sp, err := Spawn(rt, main, func(h *Handle) (any, error) {
		close(started)
		for {
			h.CPURelax()
			select {
			case <-release:
				return nil, nil
			default:
			}
		}
	})
	require.NoError(t, err)
	<-started

	var sawParticipants int
	cb := func(self stw.Participant, data any, all []stw.Participant) {
		sawParticipants = len(all)
	}
	require.Eventually(t, func() bool {
		return main.TryRunOnAllDomains(true, cb, nil, nil, nil)
	}, 2*time.Second, 5*time.Millisecond, "leader must eventually claim the section")
	assert.Equal(t, 2, sawParticipants, "both the bootstrap domain and the spawned follower must be in the snapshot")

	close(release)
	select {
	case <-sp.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("follower never terminated")
	}
}

func TestResizeMinorHeapReservationGrowsReservation(t *testing.T) {
	rt, main, err := NewRuntime(testConfig(2))
	require.NoError(t, err)
	defer rt.Shutdown()

	require.NoError(t, main.ResizeMinorHeapReservation(8192))
	assert.Equal(t, 8192, rt.MinorHeap.MaxWords())
}

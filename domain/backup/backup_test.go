package backup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/domaincore/domain/interrupt"
)

func TestWorkerServicesPokeOnlyWhileBlocking(t *testing.T) {
	in := interrupt.New()
	var activations atomic.Int32
	w := New(0, in, func(ctx context.Context) {
		activations.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// A poke while the worker is still INIT/ENTERING_MANAGED must not be
	// serviced by the backup thread; the mutator itself owns that poke.
	in.Send()
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, activations.Load())
	in.SetHandled()

	w.SetState(InBlocking)
	require.Eventually(t, func() bool { return w.State() == InBlocking }, time.Second, time.Millisecond)

	in.Send()
	require.Eventually(t, func() bool { return activations.Load() == 1 }, time.Second, time.Millisecond)

	w.SetState(Terminate)
	select {
	case <-w.Reaped():
	case <-time.After(time.Second):
		t.Fatal("worker did not reap after Terminate")
	}
	assert.Equal(t, Init, w.State(), "Run must publish Init on exit")
}

func TestWorkerExitsOnContextCancel(t *testing.T) {
	in := interrupt.New()
	w := New(1, in, func(ctx context.Context) {})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	cancel()

	select {
	case <-w.Reaped():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after context cancellation")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", Init.String())
	assert.Equal(t, "ENTERING_MANAGED", EnteringManaged.String())
	assert.Equal(t, "IN_BLOCKING", InBlocking.String())
	assert.Equal(t, "TERMINATE", Terminate.String())
}

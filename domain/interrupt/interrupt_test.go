package interrupt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSetsPendingAndWritesWord(t *testing.T) {
	i := New()
	var word uintptr
	i.PublishWord(&word)

	require.False(t, i.HasPending())
	i.Send()
	assert.True(t, i.HasPending())
	assert.Equal(t, Max, word, "Send must write the sentinel through the published word")
}

func TestSetHandledClearsPending(t *testing.T) {
	i := New()
	i.Send()
	require.True(t, i.HasPending())
	i.SetHandled()
	assert.False(t, i.HasPending())
}

func TestWaitPendingReturnsOnceSent(t *testing.T) {
	i := New()
	done := make(chan struct{})
	go func() {
		i.WaitPending(nil)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("WaitPending returned before Send")
	default:
	}

	i.Send()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitPending did not observe Send")
	}
}

func TestWaitPendingRespectsStopChannel(t *testing.T) {
	i := New()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		i.WaitPending(stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitPending did not honor stop channel")
	}
}

func TestNudgeDoesNotSetPending(t *testing.T) {
	i := New()
	i.Nudge()
	assert.False(t, i.HasPending(), "Nudge must not flip the STW pending flag")
}

func TestRunningAndTerminatingFlags(t *testing.T) {
	i := New()
	assert.False(t, i.Running())
	i.SetRunning(true)
	assert.True(t, i.Running())

	assert.False(t, i.Terminating())
	i.SetTerminating(true)
	assert.True(t, i.Terminating())
}

func TestSendWithNoPublishedWordDoesNotPanic(t *testing.T) {
	i := New()
	assert.NotPanics(t, func() { i.Send() })
	assert.True(t, i.HasPending())
}

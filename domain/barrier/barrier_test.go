package barrier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierReleasesAllArrivers(t *testing.T) {
	const n = 8
	b := New()
	b.Reset(n)

	var arrived atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.Arrive()
			arrived.Add(1)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not release all arrivers")
	}
	require.EqualValues(t, n, arrived.Load())
}

func TestBarrierCanBeReusedAcrossRounds(t *testing.T) {
	const n = 4
	b := New()

	for round := 0; round < 3; round++ {
		b.Reset(n)
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				b.Arrive()
			}()
		}
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: barrier did not release all arrivers", round)
		}
	}
}

func TestBarrierSingleParticipantDoesNotBlock(t *testing.T) {
	b := New()
	b.Reset(1)
	done := make(chan struct{})
	go func() {
		b.Arrive()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("single-participant barrier blocked")
	}
}

func TestExitCounterDecrement(t *testing.T) {
	var e ExitCounter
	e.Reset(3)

	assert.False(t, e.Decrement())
	assert.False(t, e.Decrement())
	assert.True(t, e.Decrement(), "third decrement should report hitting zero")
	assert.EqualValues(t, 0, e.Remaining())
}

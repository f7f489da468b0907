package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SingleCallerIsLeader(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	v, leader, err := g.Do(context.Background(), "k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.True(t, leader)
	require.Equal(t, 7, v)
	require.Zero(t, g.InFlight())
}

func TestDo_CoalescesConcurrentCallers(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var runs atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{})

	fn := func() (int, error) {
		if runs.Add(1) == 1 {
			close(entered)
		}
		<-release
		return 42, nil
	}

	const callers = 8
	var leaders atomic.Int32
	var wg sync.WaitGroup
	wg.Add(callers)

	// leader first, so followers find the call in flight
	go func() {
		defer wg.Done()
		v, leader, err := g.Do(context.Background(), "k", fn)
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
		if leader {
			leaders.Add(1)
		}
	}()
	<-entered
	for i := 1; i < callers; i++ {
		go func() {
			defer wg.Done()
			v, leader, err := g.Do(context.Background(), "k", fn)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
			if leader {
				leaders.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond) // let followers block on the call
	close(release)
	wg.Wait()

	// A follower that arrived after the call finished leads a call of its own.
	require.Equal(t, runs.Load(), leaders.Load())
	require.Less(t, runs.Load(), int32(callers))
	require.Zero(t, g.InFlight())
}

func TestDo_FollowerCancel(t *testing.T) {
	t.Parallel()

	var g Group[int, string]
	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = g.Do(context.Background(), 1, func() (string, error) {
			close(entered)
			<-release
			return "late", nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, leader, err := g.Do(ctx, 1, func() (string, error) { return "never", nil })
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, leader)

	close(release)
	<-done
}

func TestDo_ErrorAndPanicReleaseKey(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	boom := errors.New("boom")
	_, _, err := g.Do(context.Background(), "k", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	require.Panics(t, func() {
		_, _, _ = g.Do(context.Background(), "k", func() (int, error) { panic("fn") })
	})
	require.Zero(t, g.InFlight())

	v, leader, err := g.Do(context.Background(), "k", func() (int, error) { return 1, nil })
	require.NoError(t, err)
	require.True(t, leader)
	require.Equal(t, 1, v)
}

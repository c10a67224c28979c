package loop_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/turingtrial/internal/loop"
	"github.com/myrjola/turingtrial/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(0, testhelpers.NewLogger(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

func TestLoop_appliesEventsInPostOrder(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	var got []int
	for i := range 100 {
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	var snapshot []int
	require.NoError(t, l.Call(context.Background(), func() { snapshot = append(snapshot, got...) }))

	require.Len(t, snapshot, 100)
	for i, v := range snapshot {
		require.Equal(t, i, v)
	}
}

func TestLoop_serializesConcurrentPosters(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	counter := 0
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				assert.NoError(t, l.Post(func() { counter++ }))
			}
		}()
	}
	wg.Wait()

	var got int
	require.NoError(t, l.Call(context.Background(), func() { got = counter }))
	require.Equal(t, 1000, got)
}

func TestLoop_Go(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	applied := make(chan string, 1)
	l.Go(context.Background(), func() func() {
		result := "loaded"
		return func() { applied <- result }
	})

	select {
	case got := <-applied:
		require.Equal(t, "loaded", got)
	case <-time.After(time.Second):
		t.Fatal("worker result was not applied")
	}
}

func TestLoop_recoversFromPanics(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	require.NoError(t, l.Post(func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	require.True(t, ran)
}

func TestLoop_Stop(t *testing.T) {
	t.Parallel()
	l := startLoop(t)

	l.Stop()
	l.Stop()
	require.ErrorIs(t, l.Post(func() {}), loop.ErrStopped)
	require.ErrorIs(t, l.Call(context.Background(), func() {}), loop.ErrStopped)
}

func TestLoop_contextCancelStops(t *testing.T) {
	t.Parallel()
	l := loop.New(1, testhelpers.NewLogger(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	require.ErrorIs(t, l.Post(func() {}), loop.ErrStopped)
}

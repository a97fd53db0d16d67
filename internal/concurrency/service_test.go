package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, capacity int) *Service {
	t.Helper()
	s, err := NewService("test", control.ServiceConfig{Capacity: capacity, Period: 5 * time.Millisecond},
		WithLogger(logger.Discard()))
	require.NoError(t, err)
	return s
}

func stopAndWait(t *testing.T, s *Service) {
	t.Helper()
	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceRunsJobsInOrder(t *testing.T) {
	s := newTestService(t, 128)
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	const n = 1000
	var got []int
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		require.NoError(t, PerformWith(s, func(v int) {
			got = append(got, v)
			if v == n-1 {
				close(done)
			}
		}, i))
	}
	<-done
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestServiceJobsNeverOverlap(t *testing.T) {
	s := newTestService(t, 64)
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	var inside, overlaps atomic.Int32
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Perform(func() {
					if inside.Add(1) != 1 {
						overlaps.Add(1)
					}
					inside.Add(-1)
				})
			}
		}()
	}
	wg.Wait()
	flushed := make(chan struct{})
	require.NoError(t, s.Perform(func() { close(flushed) }))
	<-flushed
	assert.Zero(t, overlaps.Load())
	assert.Eventually(t, func() bool { return s.Stats().Executed == 1601 }, time.Second, time.Millisecond)
}

func TestServiceBackpressureBlocksProducer(t *testing.T) {
	s := newTestService(t, 1)
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	release := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, s.Perform(func() { close(running); <-release }))
	<-running
	require.NoError(t, s.Perform(func() {})) // fills the single slot

	posted := make(chan struct{})
	go func() {
		_ = s.Perform(func() {})
		close(posted)
	}()
	select {
	case <-posted:
		t.Fatal("producer was not blocked by a full queue")
	case <-time.After(30 * time.Millisecond):
	}
	assert.False(t, s.TryPerform(func() {}))
	close(release)
	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("producer stayed blocked after the queue drained")
	}
}

func TestServiceIdleFiresWithoutJobs(t *testing.T) {
	s := newTestService(t, 8)
	var ticks atomic.Int32
	s.OnIdle(func() { ticks.Add(1) })
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestServiceIdleCallbacksKeepRegistrationOrder(t *testing.T) {
	s := newTestService(t, 8)
	calls := make(chan int, 64)
	for i := 0; i < 3; i++ {
		s.OnIdle(func() {
			select {
			case calls <- i:
			default:
			}
		})
	}
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.OnIdle(func() {})
		}()
	}
	wg.Wait()
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	for want := 0; want < 3; want++ {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("idle callback did not fire")
		}
	}
}

func TestServiceSurvivesPanics(t *testing.T) {
	s := newTestService(t, 8)
	s.OnIdle(func() { panic("idle boom") })
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	require.NoError(t, s.Perform(func() { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, s.Perform(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job after panic never ran")
	}
	assert.GreaterOrEqual(t, s.Stats().Panics, uint64(1))
}

func TestServiceDrainsOnStop(t *testing.T) {
	s := newTestService(t, 64)
	gate := make(chan struct{})
	var count atomic.Int32
	require.NoError(t, s.Start())
	require.NoError(t, s.Perform(func() { <-gate }))
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Perform(func() { count.Add(1) }))
	}
	s.Stop()
	close(gate)
	<-s.Done()
	assert.EqualValues(t, 50, count.Load())
}

func TestServicePerformAfterStop(t *testing.T) {
	s := newTestService(t, 8)
	require.NoError(t, s.Start())
	stopAndWait(t, s)

	assert.ErrorIs(t, s.Perform(func() {}), api.ErrServiceStopped)
	assert.False(t, s.TryPerform(func() {}))
	assert.ErrorIs(t, s.Perform(nil), api.ErrInvalidArgument)
}

func TestServiceStartStopLifecycle(t *testing.T) {
	s := newTestService(t, 8)
	// stopping a never-started service still runs what was queued
	var ran atomic.Bool
	require.NoError(t, s.Perform(func() { ran.Store(true) }))
	s.Stop()
	s.Stop()
	<-s.Done()
	assert.True(t, ran.Load())
	assert.ErrorIs(t, s.Start(), api.ErrAlreadyStarted)

	s2 := newTestService(t, 8)
	require.NoError(t, s2.Start())
	assert.ErrorIs(t, s2.Start(), api.ErrAlreadyStarted)
	// Stop from inside a job must not deadlock
	require.NoError(t, s2.Perform(s2.Stop))
	s2.Wait()
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := NewService("bad", control.ServiceConfig{Capacity: -1, Period: time.Millisecond})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	s, err := NewService("defaults", control.ServiceConfig{})
	require.NoError(t, err)
	assert.Equal(t, control.DefaultCapacity, s.Cap())
	assert.Equal(t, "defaults", s.Name())
}

func TestPerformWithCapturesParam(t *testing.T) {
	s := newTestService(t, 8)
	require.NoError(t, s.Start())
	defer stopAndWait(t, s)

	ch := make(chan string, 1)
	v := "first"
	require.NoError(t, PerformWith(s, func(p string) { ch <- p }, v))
	v = "second"
	assert.Equal(t, "first", <-ch)
	assert.ErrorIs(t, PerformWith[int](s, nil, 1), api.ErrInvalidArgument)
}

func TestServiceRunsEveryAcceptedJobAcrossStop(t *testing.T) {
	for round := 0; round < 100; round++ {
		s, err := NewService("race", control.ServiceConfig{Capacity: 4, Period: time.Millisecond},
			WithLogger(logger.Discard()))
		require.NoError(t, err)
		require.NoError(t, s.Start())

		var accepted, ran atomic.Int64
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			for i := 0; ; i++ {
				if err := s.Perform(func() { ran.Add(1) }); err != nil {
					assert.ErrorIs(t, err, api.ErrServiceStopped)
					return
				}
				accepted.Add(1)
				// lands around the drain deadline of ten periods
				time.Sleep(time.Duration(i%4) * 3 * time.Millisecond)
			}
		}()
		time.Sleep(time.Duration(round%5) * time.Millisecond)
		s.Stop()
		<-s.Done()
		<-finished
		require.Equal(t, accepted.Load(), ran.Load(), "round %d", round)
	}
}

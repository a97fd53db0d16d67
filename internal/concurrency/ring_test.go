package concurrency

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingCapacityRounding(t *testing.T) {
	assert.Equal(t, 1, NewRing[int](0).Cap())
	assert.Equal(t, 8, NewRing[int](5).Cap())
	assert.Equal(t, 16, NewRing[int](16).Cap())
}

func TestRingFullAndEmpty(t *testing.T) {
	r := NewRing[int](2)
	_, ok := r.Dequeue()
	assert.False(t, ok)

	assert.True(t, r.Enqueue(1))
	assert.True(t, r.Enqueue(2))
	assert.False(t, r.Enqueue(3))
	assert.Equal(t, 2, r.Len())

	v, ok := r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, r.Enqueue(3))
}

func TestRingSPSCOrder(t *testing.T) {
	r := NewRing[int](64)
	const n = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if r.Enqueue(i) {
				i++
				continue
			}
			runtime.Gosched()
		}
	}()
	for want := 0; want < n; {
		v, ok := r.Dequeue()
		if !ok {
			runtime.Gosched()
			continue
		}
		require.Equal(t, want, v)
		want++
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}

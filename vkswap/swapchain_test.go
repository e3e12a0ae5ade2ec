package vkswap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestNative builds a Native with bare image slots, bypassing the
// Vulkan-backed constructor, to exercise the acquire/wait/release state
// machine (spec §3, §8 property 2) without a real device.
func newTestNative(count int) *Native {
	n := &Native{images: make([]Image, count)}
	n.cond = sync.NewCond(&n.mu)
	return n
}

func TestAcquireWaitReleaseCycle(t *testing.T) {
	n := newTestNative(3)

	idx, err := n.Acquire()
	require.NoError(t, err)
	assert.Equal(t, StateAcquired, n.images[idx].State)

	require.NoError(t, n.Wait(idx))
	assert.Equal(t, StateWaited, n.images[idx].State)

	n.Release(idx)
	assert.Equal(t, StateFree, n.images[idx].State)
}

func TestAtMostOneOutstandingAcquirePerImage(t *testing.T) {
	n := newTestNative(2)

	first, err := n.Acquire()
	require.NoError(t, err)
	second, err := n.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Every image is now Acquired; a third Acquire must block until one
	// is released. Run it on a goroutine and release after a short delay.
	done := make(chan int, 1)
	go func() {
		idx, err := n.Acquire()
		require.NoError(t, err)
		done <- idx
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Acquire returned before any image was released")
	default:
	}

	n.Release(first)
	select {
	case idx := <-done:
		assert.Equal(t, first, idx)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
}

func TestOnlyOneWaitedAtATime(t *testing.T) {
	n := newTestNative(2)
	a, _ := n.Acquire()
	b, _ := n.Acquire()

	require.NoError(t, n.Wait(a))
	err := n.Wait(b)
	assert.Error(t, err)
}

func TestReleaseIsIdempotent(t *testing.T) {
	n := newTestNative(1)
	idx, _ := n.Acquire()
	n.Release(idx)
	n.Release(idx) // must not panic or corrupt state
	assert.Equal(t, StateFree, n.images[idx].State)
}

func TestRefCountDrivesGC(t *testing.T) {
	n := newTestNative(1)
	n.refCount = 1

	n.Retain()
	assert.False(t, n.ReleaseRef())
	assert.True(t, n.ReleaseRef())
}

func TestUsageTableAlwaysAddsSampled(t *testing.T) {
	usage := vkUsageTable(UsageColor)
	// SAMPLED bit (0x4) must always be present per spec §4.4.
	assert.NotZero(t, usage&4)
}

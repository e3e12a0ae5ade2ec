package vktarget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCreateImagesRequiresReady(t *testing.T) {
	m := NewMock()
	m.SetReady(false)

	err := m.CreateImages(800, 600, 0, 0, 0, 0)
	assert.Error(t, err)
	assert.False(t, m.HasImages())
}

func TestMockAcquirePresentHappyPath(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.InitPostVulkan(800, 600))
	require.NoError(t, m.CreateImages(800, 600, 0, 0, 0, 0))

	idx, err := m.Acquire(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	require.NoError(t, m.Present(nil, idx, nil, 0, 0))
}

func TestMockForceOutOfDateRecoversOnNextCreateImages(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.CreateImages(800, 600, 0, 0, 0, 0))
	m.ForceOutOfDate()

	err := m.Present(nil, 0, nil, 0, 0)
	require.Error(t, err)
	assert.False(t, m.HasImages())

	// Scenario 4: next frame must force rebuild and continue.
	require.NoError(t, m.CreateImages(800, 600, 0, 0, 0, 0))
	assert.True(t, m.HasImages())
}

func TestTimingRingFindsRecentFrame(t *testing.T) {
	ring := NewTimingRing(3)
	ring.Begin(1)
	ring.Begin(2)
	f, ok := ring.Find(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), f.FrameID)

	_, ok = ring.Find(99)
	assert.False(t, ok)
}

func TestTimingRingWrapsAfterDepth(t *testing.T) {
	ring := NewTimingRing(2)
	ring.Begin(1)
	ring.Begin(2)
	ring.Begin(3)

	_, ok := ring.Find(1)
	assert.False(t, ok, "frame 1 should have been evicted by the ring")
	_, ok = ring.Find(3)
	assert.True(t, ok)
}

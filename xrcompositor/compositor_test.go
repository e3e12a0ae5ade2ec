package xrcompositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieselvk/xrcompositor/xrpacer"
	"github.com/dieselvk/xrcompositor/xrpose"
)

// newTestCompositor builds a Compositor whose bundle/pool stay nil: every
// test below only exercises state-machine, pacing, and layer-slot logic
// that never touches a real Vulkan device, matching the rest of this
// module's no-device test style (vkrender_test.go, vkswap's
// newTestNative).
func newTestCompositor() *Compositor {
	c := New(nil, nil, xrpacer.NewFakePacer(int64(1e7), int64(1e6)))
	return c
}

func TestBeginSessionTransitionsToReady(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	assert.Equal(t, StateReady, c.State())

	ev, ok := c.PollEvents()
	require.True(t, ok)
	assert.Equal(t, StateReady, ev.State)

	_, ok = c.PollEvents()
	assert.False(t, ok, "poll_events must report each transition at most once")
}

func TestBeginSessionTwiceIsAnError(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	assert.Error(t, c.BeginSession(0))
}

func TestSetVisibleIsOneWayPerEdge(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	_, _ = c.PollEvents() // drain Ready

	c.SetVisible(true, false)
	assert.Equal(t, StateVisible, c.State())
	ev, ok := c.PollEvents()
	require.True(t, ok)
	assert.Equal(t, StateVisible, ev.State)

	c.SetVisible(true, true)
	assert.Equal(t, StateFocused, c.State())
}

func TestPredictFrameFillsWaitedSlot(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))

	slot, pred, err := c.PredictFrame(1000)
	require.NoError(t, err)
	assert.True(t, slot.Valid())
	assert.Equal(t, pred.FrameID, slot.ID)
	assert.GreaterOrEqual(t, slot.DesiredPresentTimeNs, slot.WakeUpTimeNs+slot.PresentSlopNs)
}

func TestPredictFrameBeforeBeginSessionFails(t *testing.T) {
	c := newTestCompositor()
	_, _, err := c.PredictFrame(0)
	assert.Error(t, err)
}

func TestPredictIsIdempotentUntilWakeMark(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))

	first, _, err := c.PredictFrame(1000)
	require.NoError(t, err)
	second, _, err := c.PredictFrame(1500)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "predict must be idempotent until a matching mark_point(Wake)")

	require.NoError(t, c.MarkFrame(first.ID, 1600))
	third, _, err := c.PredictFrame(2000)
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, third.ID, "frame_id must be monotonic across predict cycles")
}

func TestBeginFrameRequiresMatchingWaitedSlot(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)

	assert.Error(t, c.BeginFrame(slot.ID+1))
	assert.NoError(t, c.BeginFrame(slot.ID))
}

func TestDiscardFrameClearsWaitedAndPending(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)
	require.NoError(t, c.BeginFrame(slot.ID))

	require.NoError(t, c.DiscardFrame(slot.ID, nil))
	assert.False(t, c.waited.Valid())
	assert.False(t, c.pendingValid)
}

func TestLayerCommitDerivesFastPathForSingleProjectionLayer(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)
	require.NoError(t, c.BeginFrame(slot.ID))

	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	layer := CommittedLayer{Type: LayerStereoProjection, Refs: []LayerRef{{SwapchainIndex: 0}}}
	require.NoError(t, c.AddLayer(slot.ID, poses, [2]Fov{}, layer))

	require.NoError(t, c.LayerCommit(slot.ID, nil))

	committed, frameID, visible, ok := c.CommittedSnapshot()
	require.True(t, ok)
	assert.Equal(t, slot.ID, frameID)
	assert.True(t, committed.OneProjectionFastPath)
	assert.False(t, visible, "a client still in Ready state is not Visible")
	assert.True(t, c.rendering.Valid())
	assert.False(t, c.waited.Valid(), "commit must clear waited per spec §3")
}

func TestLayerCommitFastPathFalseForMultipleLayers(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)
	require.NoError(t, c.BeginFrame(slot.ID))

	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	require.NoError(t, c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerStereoProjection, Refs: []LayerRef{{SwapchainIndex: 0}}}))
	require.NoError(t, c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerQuad, Refs: []LayerRef{{SwapchainIndex: 1}}}))

	require.NoError(t, c.LayerCommit(slot.ID, nil))
	committed, _, _, _ := c.CommittedSnapshot()
	assert.False(t, committed.OneProjectionFastPath)
	assert.Len(t, committed.Layers, 2)
}

func TestAddLayerRejectsMoreThanMaxLayers(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)
	require.NoError(t, c.BeginFrame(slot.ID))

	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	for i := 0; i < MaxLayers; i++ {
		require.NoError(t, c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerQuad, Refs: []LayerRef{{SwapchainIndex: 0}}}))
	}
	err := c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerQuad, Refs: []LayerRef{{SwapchainIndex: 0}}})
	assert.Error(t, err)
}

func TestAddLayerRejectsZeroOrTooManyRefs(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)
	require.NoError(t, c.BeginFrame(slot.ID))

	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	assert.Error(t, c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerQuad}))
	assert.Error(t, c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerQuad, Refs: make([]LayerRef, 5)}))
}

func TestCommittedSnapshotFalseBeforeFirstCommit(t *testing.T) {
	c := newTestCompositor()
	_, _, _, ok := c.CommittedSnapshot()
	assert.False(t, ok)
}

func TestFinishRenderClearsRenderingSlot(t *testing.T) {
	c := newTestCompositor()
	require.NoError(t, c.BeginSession(0))
	slot, _, _ := c.PredictFrame(0)
	require.NoError(t, c.BeginFrame(slot.ID))
	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	require.NoError(t, c.AddLayer(slot.ID, poses, [2]Fov{}, CommittedLayer{Type: LayerStereoProjection, Refs: []LayerRef{{SwapchainIndex: 0}}}))
	require.NoError(t, c.LayerCommit(slot.ID, nil))

	c.FinishRender(slot.ID, 5000)
	assert.False(t, c.rendering.Valid())
}

func TestGCExposesGarbageQueue(t *testing.T) {
	c := newTestCompositor()
	assert.Equal(t, 0, c.GC().Pending())
}

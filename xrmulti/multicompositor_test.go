package xrmulti

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieselvk/xrcompositor/xrcompositor"
	"github.com/dieselvk/xrcompositor/xrpacer"
	"github.com/dieselvk/xrcompositor/xrpose"
)

// recordingDriver implements FrameDriver and records every invocation, for
// asserting on what the multi-compositor actually merged and committed.
type recordingDriver struct {
	calls []xrcompositor.LayerSlot
}

func (d *recordingDriver) RenderFrame(frame xrcompositor.LayerSlot, frameID int64, desiredPresentNs int64) error {
	d.calls = append(d.calls, frame)
	return nil
}

func newTestMulti(driver FrameDriver) *MultiCompositor {
	native := xrcompositor.New(nil, nil, xrpacer.NewFakePacer(int64(1e7), int64(1e6)))
	return New(nil, nil, native, func() xrpacer.Pacer {
		return xrpacer.NewFakePacer(int64(1e7), int64(1e6))
	}, driver)
}

// commitQuad drives a client compositor through begin_session ->
// visible -> predict -> begin -> add a quad layer referencing
// swapchainIndex -> commit, returning the committed frame id.
func commitQuad(t *testing.T, comp *xrcompositor.Compositor, swapchainIndex int) int64 {
	t.Helper()
	require.NoError(t, comp.BeginSession(0))
	comp.SetVisible(true, false)
	slot, _, err := comp.PredictFrame(0)
	require.NoError(t, err)
	require.NoError(t, comp.BeginFrame(slot.ID))
	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	layer := xrcompositor.CommittedLayer{Type: xrcompositor.LayerQuad, Refs: []xrcompositor.LayerRef{{SwapchainIndex: swapchainIndex}}}
	require.NoError(t, comp.AddLayer(slot.ID, poses, [2]xrcompositor.Fov{}, layer))
	require.NoError(t, comp.LayerCommit(slot.ID, nil))
	return slot.ID
}

func TestRegisterClientAssignsStableZOrder(t *testing.T) {
	mc := newTestMulti(nil)
	a := mc.RegisterClient()
	b := mc.RegisterClient()
	clients := mc.Clients()
	require.Len(t, clients, 2)
	assert.Equal(t, a.ID, clients[0].ID)
	assert.Equal(t, b.ID, clients[1].ID)
}

func TestUnregisterClientDropsItFromMerge(t *testing.T) {
	mc := newTestMulti(nil)
	a := mc.RegisterClient()
	b := mc.RegisterClient()
	commitQuad(t, a.Comp, 0)
	commitQuad(t, b.Comp, 1)

	mc.UnregisterClient(a.ID)
	merged := mc.mergeSnapshot()
	assert.Len(t, merged, 1, "only the remaining client's layer should merge")
}

func TestInvisibleClientContributesNoLayers(t *testing.T) {
	mc := newTestMulti(nil)
	ch := mc.RegisterClient()
	require.NoError(t, ch.Comp.BeginSession(0))
	// Never SetVisible(true, ...): stays in Ready, so CommittedSnapshot's
	// visible flag is false even after a commit.
	slot, _, err := ch.Comp.PredictFrame(0)
	require.NoError(t, err)
	require.NoError(t, ch.Comp.BeginFrame(slot.ID))
	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	layer := xrcompositor.CommittedLayer{Type: xrcompositor.LayerQuad, Refs: []xrcompositor.LayerRef{{SwapchainIndex: 0}}}
	require.NoError(t, ch.Comp.AddLayer(slot.ID, poses, [2]xrcompositor.Fov{}, layer))
	require.NoError(t, ch.Comp.LayerCommit(slot.ID, nil))

	merged := mc.mergeSnapshot()
	assert.Empty(t, merged)
}

func TestRunOnceMergesVisibleClientsInZOrder(t *testing.T) {
	driver := &recordingDriver{}
	mc := newTestMulti(driver)
	a := mc.RegisterClient()
	b := mc.RegisterClient()
	commitQuad(t, a.Comp, 0)
	commitQuad(t, b.Comp, 1)

	result, err := mc.RunOnce(0, [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}, [2]Fov{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.LayerCount)
	require.Len(t, driver.calls, 1)
	require.Len(t, driver.calls[0].Layers, 2)
	assert.Equal(t, 0, driver.calls[0].Layers[0].Refs[0].SwapchainIndex)
	assert.Equal(t, 1, driver.calls[0].Layers[1].Refs[0].SwapchainIndex)
}

func TestRunOnceFastPathForSingleProjectionLayer(t *testing.T) {
	driver := &recordingDriver{}
	mc := newTestMulti(driver)
	a := mc.RegisterClient()
	require.NoError(t, a.Comp.BeginSession(0))
	a.Comp.SetVisible(true, false)
	slot, _, err := a.Comp.PredictFrame(0)
	require.NoError(t, err)
	require.NoError(t, a.Comp.BeginFrame(slot.ID))
	poses := [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}
	layer := xrcompositor.CommittedLayer{Type: xrcompositor.LayerStereoProjection, Refs: []xrcompositor.LayerRef{{SwapchainIndex: 0}}}
	require.NoError(t, a.Comp.AddLayer(slot.ID, poses, [2]xrcompositor.Fov{}, layer))
	require.NoError(t, a.Comp.LayerCommit(slot.ID, nil))

	result, err := mc.RunOnce(1000, [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}, [2]Fov{})
	require.NoError(t, err)
	assert.True(t, result.UsedFastPath)
}

func TestWarmStartIsOneShot(t *testing.T) {
	driver := &recordingDriver{}
	mc := newTestMulti(driver)
	require.NoError(t, mc.WarmStart(0))
	require.NoError(t, mc.WarmStart(1))
	assert.Len(t, driver.calls, 1, "WarmStart must be a one-shot no-op after the first call")
	assert.Empty(t, driver.calls[0].Layers)
}

func TestRenderThreadStartStop(t *testing.T) {
	driver := &recordingDriver{}
	mc := newTestMulti(driver)
	var ticks int
	clock := func() int64 { ticks++; return int64(ticks) * int64(time.Millisecond) }
	poseSource := func() ([2]xrpose.Pose, [2]Fov) {
		return [2]xrpose.Pose{xrpose.Identity(), xrpose.Identity()}, [2]Fov{}
	}

	mc.StartRenderThread(clock, poseSource, 5*time.Millisecond, nil)
	time.Sleep(30 * time.Millisecond)
	mc.StopRenderThread()

	assert.NotEmpty(t, driver.calls, "render thread should have driven at least one frame")
}

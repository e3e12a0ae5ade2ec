package xrcompositor

import (
	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/xrpose"
)

// LayerBeginArgs carries the per-frame view poses/fovs a client supplies
// once per frame before adding individual layers (spec §6 "layer_begin").
type LayerBeginArgs struct {
	Poses [2]xrpose.Pose
	Fovs  [2]Fov
}

// AddLayer appends one layer to the frame's accumulating Slot, per spec
// §6 "layer_begin/add_*: frame_id, per-layer args -- Accumulates into
// Slot." Layers beyond MaxLayers are rejected rather than silently
// dropped (the spec's invariant is layers[<=16], not "first 16 win").
func (c *Compositor) AddLayer(frameID int64, poses [2]xrpose.Pose, fovs [2]Fov, layer CommittedLayer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pendingValid || c.pendingFrameID != frameID {
		return vklib.NewError(vklib.KindVulkan, "AddLayer: frame_id does not match the begun frame")
	}
	if len(c.pending.Layers) >= MaxLayers {
		return vklib.NewError(vklib.KindVulkan, "AddLayer: layer slot full (max 16)")
	}
	if len(layer.Refs) < 1 || len(layer.Refs) > 4 {
		return vklib.NewError(vklib.KindVulkan, "AddLayer: layer must reference 1..4 swapchains")
	}

	c.pending.Poses = poses
	c.pending.Fovs = fovs
	c.pending.Layers = append(c.pending.Layers, layer)
	return nil
}

// LayerCommit implements spec §4.8/§6's layer_commit: it takes ownership
// of syncHandle (closing it exactly once, on every path per spec §4.8),
// derives one_projection_fast_path purely from the accumulated layer set
// (spec §4.7), moves Waited -> Rendering (clearing Waited, per spec §3),
// and publishes the committed snapshot for the multi-compositor's next
// merge.
func (c *Compositor) LayerCommit(frameID int64, syncHandle *vklib.SemaphoreHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if syncHandle != nil {
		defer syncHandle.Close()
	}

	if !c.pendingValid || c.pendingFrameID != frameID {
		return vklib.NewError(vklib.KindVulkan, "LayerCommit: frame_id does not match the begun frame")
	}
	if !c.waited.Valid() || c.waited.ID != frameID {
		return vklib.NewError(vklib.KindVulkan, "LayerCommit: frame_id not the current waited slot")
	}

	slot := c.pending
	slot.OneProjectionFastPath = deriveFastPath(slot.Layers)

	c.committed = slot
	c.committedFrameID = frameID
	c.haveCommitted = true

	c.rendering = c.waited
	c.waited = invalidSlot()

	c.pendingValid = false
	c.pending = LayerSlot{}
	return nil
}

// FinishRender clears the Rendering slot once the renderer has produced
// the frame, per spec §3 "end of render clears rendering".
func (c *Compositor) FinishRender(frameID int64, actualPresentNs int64) {
	c.mu.Lock()
	if c.rendering.Valid() && c.rendering.ID == frameID {
		c.rendering = invalidSlot()
	}
	c.mu.Unlock()
	c.pacer.InfoPresent(frameID, actualPresentNs)
}

// CommittedSnapshot returns the last committed LayerSlot, its frame id,
// and whether the client should currently contribute layers at all
// (spec §4.9 "invisible clients contribute no layers"; a client is
// visible once it has reached StateVisible or StateFocused). A client
// that has never committed returns ok=false, and the multi-compositor's
// merge skips it entirely rather than contributing stale zero-value
// layers.
func (c *Compositor) CommittedSnapshot() (slot LayerSlot, frameID int64, visible bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveCommitted {
		return LayerSlot{}, 0, false, false
	}
	st := c.tracker.get()
	visible = st == StateVisible || st == StateFocused
	return c.committed, c.committedFrameID, visible, true
}

package xrcompositor

import (
	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/xrpacer"
)

// PredictFrame fills the Waited slot from the pacer's prediction, per
// spec §3 "predict fills waited". Returns the slot so the caller can
// relay {frame_id, wake_ns, gpu_ns, display_ns, period_ns} to the client
// above the compositor contract (spec §6 predict_frame).
func (c *Compositor) PredictFrame(nowNs int64) (FrameSlot, xrpacer.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracker.get() == StateUninitialized {
		return FrameSlot{}, xrpacer.Prediction{}, vklib.NewError(vklib.KindVulkan, "PredictFrame before BeginSession")
	}

	p := c.pacer.Predict(nowNs)
	c.waited = FrameSlot{
		ID:                     p.FrameID,
		DesiredPresentTimeNs:   p.DesiredPresentNs,
		PredictedDisplayTimeNs: p.PredictedDisplayNs,
		PresentSlopNs:          p.SlopNs,
		WakeUpTimeNs:           p.WakeNs,
	}
	return c.waited, p, nil
}

// MarkFrame records the client's Woke mark_point against the pacer, per
// spec §6 "mark_frame: frame_id, point in {Woke}, when_ns".
func (c *Compositor) MarkFrame(frameID int64, whenNs int64) error {
	c.mu.Lock()
	waited := c.waited
	c.mu.Unlock()

	if !waited.Valid() || waited.ID != frameID {
		return vklib.NewError(vklib.KindVulkan, "MarkFrame: frame_id not the current waited slot")
	}
	c.pacer.MarkPoint(xrpacer.PointWake, frameID, whenNs)
	return nil
}

// BeginFrame is spec §4.8's begin_frame: it has no state of its own
// beyond the precondition check (frameID must be the current waited
// slot) — command-buffer recording is the renderer's job, invoked once
// the client commits layers.
func (c *Compositor) BeginFrame(frameID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.waited.Valid() || c.waited.ID != frameID {
		return vklib.NewError(vklib.KindVulkan, "BeginFrame: frame_id not the current waited slot")
	}
	c.pendingFrameID = frameID
	c.pendingValid = true
	c.pending = LayerSlot{}
	return nil
}

// DiscardFrame abandons the current frame without committing layers, per
// spec §4.8 "discard_frame". syncHandle may be nil; if supplied (a
// client acquired a swapchain image for this frame and is bailing before
// commit) it is closed here, per spec §4.8 "on discard paths the handle
// is still consumed and closed."
func (c *Compositor) DiscardFrame(frameID int64, syncHandle *vklib.SemaphoreHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.waited.Valid() || c.waited.ID != frameID {
		if syncHandle != nil {
			syncHandle.Close()
		}
		return vklib.NewError(vklib.KindVulkan, "DiscardFrame: frame_id not the current waited slot")
	}

	c.waited = invalidSlot()
	c.pendingValid = false
	c.pending = LayerSlot{}

	if syncHandle != nil {
		syncHandle.Close()
	}
	return nil
}

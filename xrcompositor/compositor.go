package xrcompositor

import (
	"sync"

	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/vkswap"
	"github.com/dieselvk/xrcompositor/xrpacer"
)

// Compositor is the base per-client compositor contract spec §4.8
// describes: session lifecycle, frame pacing predict/mark/begin/discard,
// layer slot accumulation, and a swapchain factory. MultiCompositor
// (xrmulti) owns N of these and fans them into one native compositor.
type Compositor struct {
	mu sync.Mutex

	bundle *vklib.Bundle
	pool   *vklib.CmdPool
	pacer  xrpacer.Pacer
	gc     *vkswap.GarbageQueue

	tracker stateTracker

	waited    FrameSlot
	rendering FrameSlot

	pendingFrameID int64
	pendingValid   bool
	pending        LayerSlot

	committedFrameID int64
	committed        LayerSlot
	haveCommitted    bool

	swapchains []*vkswap.Native
}

// New builds a Compositor bound to one VkBundle/CmdPool/Pacer. The pacer
// is typically an xrpacer.FakePacer unless the Target supplies a real
// vblank-driven one, per spec §4.8.
func New(b *vklib.Bundle, pool *vklib.CmdPool, pacer xrpacer.Pacer) *Compositor {
	c := &Compositor{
		bundle: b,
		pool:   pool,
		pacer:  pacer,
		gc:     vkswap.NewGarbageQueue(),
	}
	c.waited = invalidSlot()
	c.rendering = invalidSlot()
	return c
}

// BeginSession transitions Uninitialized -> Ready, per spec §4.8's state
// diagram. viewType is opaque to the core (an OpenXR view-configuration
// enum owned by the IPC layer above this module, per spec §1 Non-goals).
func (c *Compositor) BeginSession(viewType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker.get() != StateUninitialized {
		return vklib.NewError(vklib.KindVulkan, "BeginSession called twice")
	}
	c.tracker.transitionTo(StateReady)
	return nil
}

// EndSession is a checkpoint per spec §5 "Cancellation": it drains
// in-flight frames, waits for the device to go idle, and resets to
// Uninitialized so a subsequent BeginSession is valid.
func (c *Compositor) EndSession() error {
	c.mu.Lock()
	c.waited = invalidSlot()
	c.rendering = invalidSlot()
	c.pendingValid = false
	c.mu.Unlock()

	if err := c.bundle.WaitIdle(); err != nil {
		return err
	}

	c.mu.Lock()
	c.tracker.transitionTo(StateUninitialized)
	c.mu.Unlock()
	return nil
}

// State returns the compositor's current session state.
func (c *Compositor) State() State {
	return c.tracker.get()
}

// SetVisible drives the Visible/Focused edge of the state machine from
// outside (e.g. the multi-compositor's z-order/focus policy): focused
// selects Focused, else visible selects Visible, else Prepared. The chosen
// state is set whatever the current one is, so a Focused client can drop
// back to Visible or Prepared; only the Prepared case is skipped while the
// session is Uninitialized.
func (c *Compositor) SetVisible(visible, focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case focused:
		c.tracker.transitionTo(StateFocused)
	case visible:
		c.tracker.transitionTo(StateVisible)
	default:
		if c.tracker.get() == StateUninitialized {
			return
		}
		c.tracker.transitionTo(StatePrepared)
	}
}

// PollEvents reports at most one queued state transition per call, per
// spec §4.8 "poll_events reports state transitions at most once each."
func (c *Compositor) PollEvents() (Event, bool) {
	return c.tracker.poll()
}

// GC exposes the compositor's deferred-destruction queue so a caller
// (typically the multi-compositor, post-commit) can call Collect at a
// safe point, per spec §4.4.
func (c *Compositor) GC() *vkswap.GarbageQueue { return c.gc }

// Package xrmulti implements spec §4.9's MultiCompositor: it fans N
// per-client xrcompositor.Compositor instances into one native
// compositor, merging their committed layer slots at a stable z-order on
// a single render thread. Grounded on spec §4.9 and original_source
// comp_multi_interface.h.
package xrmulti

import (
	"sync"
	"time"

	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/xrcompositor"
	"github.com/dieselvk/xrcompositor/xrpacer"
	"github.com/dieselvk/xrcompositor/xrpose"
)

// Fov mirrors xrcompositor.Fov, kept as a type alias so callers across
// both packages can pass the same value without a conversion.
type Fov = xrcompositor.Fov

// FrameDriver is the collaborator that actually drives pixels once the
// native compositor has a freshly committed, merged layer slot — in the
// full stack, an adapter around vkrender.Renderer.RenderFrame. Kept as
// an interface here so xrmulti never imports vkrender (the dependency
// runs the other way: cmd/xrcompd wires a concrete driver into this
// package), per spec §4.9 "invokes Renderer."
type FrameDriver interface {
	RenderFrame(frame xrcompositor.LayerSlot, frameID int64, desiredPresentNs int64) error
}

// ClientHandle is one registered client compositor, ordered by
// registration (spec §4.9 "client z-order is stable by registration
// order").
type ClientHandle struct {
	ID   int
	Comp *xrcompositor.Compositor
}

// MultiCompositor owns the native compositor (the sole GPU submitter), N
// client proxies each with its own pacer, and a single render thread.
type MultiCompositor struct {
	mu sync.Mutex

	bundle *vklib.Bundle
	pool   *vklib.CmdPool
	native *xrcompositor.Compositor

	pacerFactory func() xrpacer.Pacer
	driver       FrameDriver

	clients      []*ClientHandle
	nextClientID int

	warmStarted bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a MultiCompositor around a native compositor (constructed by
// the caller with its own pacer, typically a real vblank-driven one
// rather than a FakePacer, per spec §4.8's "Frame pacing uses a
// fake-pacer... unless the Target supplies a real one"). pacerFactory
// mints one pacer instance per registered client (spec §4.9 "one factory,
// N instances").
func New(b *vklib.Bundle, pool *vklib.CmdPool, native *xrcompositor.Compositor, pacerFactory func() xrpacer.Pacer, driver FrameDriver) *MultiCompositor {
	return &MultiCompositor{
		bundle:       b,
		pool:         pool,
		native:       native,
		pacerFactory: pacerFactory,
		driver:       driver,
	}
}

// RegisterClient adds a new client compositor proxy at the end of the
// z-order, per spec §4.9's stable-registration-order merge rule.
func (mc *MultiCompositor) RegisterClient() *ClientHandle {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.nextClientID++
	ch := &ClientHandle{
		ID:   mc.nextClientID,
		Comp: xrcompositor.New(mc.bundle, mc.pool, mc.pacerFactory()),
	}
	mc.clients = append(mc.clients, ch)
	return ch
}

// UnregisterClient drops a client's slot atomically between merges (spec
// §5 "A client destruction concurrent with commit is resolved by
// dropping the client's slot atomically between merges"): mergeSnapshot
// always works from a point-in-time copy of mc.clients taken under mc.mu,
// so a removal here can never race a merge into a torn state.
func (mc *MultiCompositor) UnregisterClient(id int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for i, ch := range mc.clients {
		if ch.ID == id {
			mc.clients = append(mc.clients[:i:i], mc.clients[i+1:]...)
			return
		}
	}
}

// Clients returns a snapshot of the currently registered client handles
// in z-order.
func (mc *MultiCompositor) Clients() []*ClientHandle {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([]*ClientHandle, len(mc.clients))
	copy(out, mc.clients)
	return out
}

// mergeSnapshot collects every visible, previously-committed client's
// layer list in stable z-order, per spec §4.9 "invisible clients
// contribute no layers" and spec §5 "a client that misses a frame
// contributes its last-committed slot (no torn update)" — CommittedSnapshot
// always returns the most recent commit regardless of whether a new one
// landed this cycle.
func (mc *MultiCompositor) mergeSnapshot() []xrcompositor.CommittedLayer {
	clients := mc.Clients()

	var merged []xrcompositor.CommittedLayer
	for _, ch := range clients {
		slot, _, visible, ok := ch.Comp.CommittedSnapshot()
		if !ok || !visible {
			continue
		}
		merged = append(merged, slot.Layers...)
	}
	return merged
}

// FrameResult reports what RunOnce did, mirroring vkrender.FrameResult's
// shape for callers that want to log/aggregate across both layers.
type FrameResult struct {
	FrameID      int64
	LayerCount   int
	UsedFastPath bool
}

// RunOnce drives exactly one native-compositor frame: predict -> wake ->
// begin -> merge all visible clients' committed layers -> commit -> gc
// collect -> invoke the FrameDriver -> finish. headPoses/headFovs are the
// shared HMD view poses/fovs for this frame, supplied by the pose-source
// collaborator the core treats as external (spec §1 Non-goals).
func (mc *MultiCompositor) RunOnce(nowNs int64, headPoses [2]xrpose.Pose, headFovs [2]Fov) (FrameResult, error) {
	var result FrameResult

	slot, _, err := mc.native.PredictFrame(nowNs)
	if err != nil {
		return result, err
	}
	result.FrameID = slot.ID

	mc.native.MarkFrame(slot.ID, nowNs)
	if err := mc.native.BeginFrame(slot.ID); err != nil {
		return result, err
	}

	layers := mc.mergeSnapshot()
	for _, l := range layers {
		if err := mc.native.AddLayer(slot.ID, headPoses, headFovs, l); err != nil {
			return result, err
		}
	}
	result.LayerCount = len(layers)

	if err := mc.native.LayerCommit(slot.ID, nil); err != nil {
		return result, err
	}
	mc.native.GC().Collect()

	committed, frameID, _, ok := mc.native.CommittedSnapshot()
	if ok {
		result.UsedFastPath = committed.OneProjectionFastPath
	}

	if mc.driver != nil {
		if err := mc.driver.RenderFrame(committed, frameID, slot.DesiredPresentTimeNs); err != nil {
			return result, err
		}
	}

	mc.native.FinishRender(slot.ID, nowNs)
	return result, nil
}

// WarmStart performs a first submit with no client layers so the Target
// can initialize its swapchain ahead of client arrival, per spec §4.9 and
// original_source comp_multi_interface.h's early native-compositor kick.
// It is a one-shot no-op commit: calling it again after the first real
// frame is a no-op.
func (mc *MultiCompositor) WarmStart(nowNs int64) error {
	mc.mu.Lock()
	if mc.warmStarted {
		mc.mu.Unlock()
		return nil
	}
	mc.warmStarted = true
	mc.mu.Unlock()

	identity := xrpose.Identity()
	_, err := mc.RunOnce(nowNs, [2]xrpose.Pose{identity, identity}, [2]Fov{})
	return err
}

// StartRenderThread spawns the single render/compose thread spec §4.9
// names: it calls RunOnce once per tick until Stop is called. clock and
// poseSource are external collaborators (wall clock and pose source,
// spec §1 Non-goals); tick is the native compositor's nominal frame
// period, used only as the thread's polling granularity (the actual
// pacing decision is the pacer's, via PredictFrame inside RunOnce).
func (mc *MultiCompositor) StartRenderThread(clock func() int64, poseSource func() ([2]xrpose.Pose, [2]Fov), tick time.Duration, onError func(error)) {
	mc.mu.Lock()
	if mc.stopCh != nil {
		mc.mu.Unlock()
		return
	}
	mc.stopCh = make(chan struct{})
	mc.doneCh = make(chan struct{})
	stopCh := mc.stopCh
	doneCh := mc.doneCh
	mc.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				poses, fovs := poseSource()
				if _, err := mc.RunOnce(clock(), poses, fovs); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}

// StopRenderThread signals the render thread to exit and waits for it to
// do so. Safe to call even if the thread was never started.
func (mc *MultiCompositor) StopRenderThread() {
	mc.mu.Lock()
	stopCh := mc.stopCh
	doneCh := mc.doneCh
	mc.stopCh = nil
	mc.doneCh = nil
	mc.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

package xrcompositor

import "github.com/dieselvk/xrcompositor/xrpose"

// invalidID is the sentinel for spec §3's "id == -1 means invalid".
const invalidID int64 = -1

// FrameSlot is spec §3's frame slot: {id, desired_present_time_ns,
// predicted_display_time_ns, present_slop_ns, wake_up_time_ns}. Two of
// these are held per compositor under the roles Waited and Rendering; at
// most one per role is ever non-invalid.
type FrameSlot struct {
	ID                     int64
	DesiredPresentTimeNs   int64
	PredictedDisplayTimeNs int64
	PresentSlopNs          int64
	WakeUpTimeNs           int64
}

// invalidSlot returns a FrameSlot with ID == -1 ("invalid"), per spec §3.
func invalidSlot() FrameSlot { return FrameSlot{ID: invalidID} }

// Valid reports whether this slot holds a real (non-invalid) frame.
func (f FrameSlot) Valid() bool { return f.ID != invalidID }

// MaxLayers is spec §3's layer-slot cap ("layers[<=16]").
const MaxLayers = 16

// LayerRef names one client swapchain a layer samples from by index, per
// spec §3 "references to 1..4 client swapchains by index".
type LayerRef struct {
	SwapchainIndex int
	ImageIndex     int
}

// LayerKind mirrors spec §3's layer type enumeration.
type LayerKind int

const (
	LayerQuad LayerKind = iota
	LayerCylinder
	LayerEquirect1
	LayerEquirect2
	LayerCube
	LayerStereoProjection
	LayerStereoProjectionDepth
)

// LayerFlags are the per-layer boolean flags spec §3 lists.
type LayerFlags struct {
	EyeVisibility       [2]bool
	UnpremultipliedAlpha bool
	ViewSpace           bool
	FlipY               bool
}

// SubImageRect is one view's source rectangle within a referenced
// swapchain image.
type SubImageRect struct {
	X, Y, W, H int
}

// CommittedLayer is one entry of a frame's accepted layer list (spec §3
// "Layer slot").
type CommittedLayer struct {
	Type    LayerKind
	Pose    xrpose.Pose
	SubView [2]SubImageRect
	Flags   LayerFlags
	Refs    []LayerRef // 1..4 client swapchains by index
}

// LayerSlot is spec §3's full per-frame layer slot: the accepted layer
// list plus the two view poses/fovs and the fast-path flag the
// compositor derives purely from the layer set (spec §4.7/§4.8).
type LayerSlot struct {
	Layers                  []CommittedLayer
	Poses                   [2]xrpose.Pose
	Fovs                    [2]Fov
	OneProjectionFastPath   bool
}

// Fov is a field of view in the four half-angle-tangent convention spec
// §4.6/§4.7's projection math consumes (kept local to avoid an import
// cycle with vkrender; vkrender.Fov has the identical shape).
type Fov struct {
	AngleLeft, AngleRight, AngleUp, AngleDown float32
}

// deriveFastPath implements spec §4.7/§4.8's rule: a commit is eligible
// for the fast path purely from its layer set — exactly one layer, of
// type stereo-projection (with or without depth).
func deriveFastPath(layers []CommittedLayer) bool {
	if len(layers) != 1 {
		return false
	}
	t := layers[0].Type
	return t == LayerStereoProjection || t == LayerStereoProjectionDepth
}

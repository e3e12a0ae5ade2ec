package vkrender

import (
	lin "github.com/xlab/linmath"

	"github.com/dieselvk/xrcompositor/xrpose"
)

// LayerType distinguishes the projection used when compositing a layer,
// per spec §4.6 step 3.
type LayerType int

const (
	LayerQuad LayerType = iota
	LayerCylinder
	LayerProjection
	LayerEquirect1
	LayerEquirect2
	LayerCube
)

// Layer is one entry of a client's committed Slot (spec §4.8), reduced to
// what LayerRenderer needs to pick a pipeline and a transform.
type Layer struct {
	Type                LayerType
	Pose                xrpose.Pose
	ViewSpace           bool // transform with vp_eye instead of vp_world
	UnpremultipliedAlpha bool
	SrcView              [2]SourceView // per-eye source image/sampler
}

// SourceView names the swapchain image and sampler a layer's quad samples
// from for one eye.
type SourceView struct {
	ImageIndex int
	HasImage   bool
}

// EyeViews carries the per-eye pose and FOV LayerRenderer needs to build
// vp_world/vp_eye/vp_inv for one frame (spec §4.6 step 2).
type EyeViews struct {
	WorldPose xrpose.Pose // the HMD/head pose in world space
	Eye       [2]struct {
		Pose xrpose.Pose
		Fov  Fov
	}
	Near, Far float32
}

// eyeMatrices is the per-eye result of step 2: the three matrices every
// layer in that eye's pass is transformed by.
type eyeMatrices struct {
	vpWorld lin.Mat4x4
	vpEye   lin.Mat4x4
	vpInv   lin.Mat4x4
}

func computeEyeMatrices(views EyeViews, eye int) eyeMatrices {
	proj := PerspectiveFromFov(views.Eye[eye].Fov, views.Near, views.Far)
	vWorld := ViewFromPose(views.WorldPose)
	vEye := ViewFromPose(views.Eye[eye].Pose)

	vpWorld := MulMat4x4(vWorld, proj)
	vpEye := MulMat4x4(vEye, proj)
	vpInv := InvertMat4x4(vpWorld)

	return eyeMatrices{vpWorld: vpWorld, vpEye: vpEye, vpInv: vpInv}
}

// TransformFor picks vp_world, vp_eye, or vp_inv for a layer per spec
// §4.6 step 3.
func (m eyeMatrices) TransformFor(l Layer) lin.Mat4x4 {
	switch l.Type {
	case LayerEquirect1, LayerEquirect2, LayerCube:
		return m.vpInv
	default:
		if l.ViewSpace {
			return m.vpEye
		}
		return m.vpWorld
	}
}

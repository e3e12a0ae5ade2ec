package vkrender

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dieselvk/xrcompositor/xrpose"
)

func TestOneProjectionFastPathDetection(t *testing.T) {
	assert.True(t, oneProjectionFastPath([]Layer{{Type: LayerProjection}}))
	assert.False(t, oneProjectionFastPath([]Layer{{Type: LayerQuad}}))
	assert.False(t, oneProjectionFastPath([]Layer{{Type: LayerProjection}, {Type: LayerQuad}}))
	assert.False(t, oneProjectionFastPath(nil))
}

func TestPerspectiveFromFovIsSymmetricForEqualAngles(t *testing.T) {
	fov := Fov{AngleLeft: -0.7, AngleRight: 0.7, AngleUp: 0.7, AngleDown: -0.7}
	m := PerspectiveFromFov(fov, 0.05, 100)
	assert.InDelta(t, m[0][0], -m[1][1], 1e-4, "symmetric fov should give |m00| == |m11|")
}

func TestInvertMat4x4RoundTripsIdentity(t *testing.T) {
	world := ViewFromPose(xrpose.Identity())
	inv := InvertMat4x4(world)
	product := MulMat4x4(world, inv)

	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			want := float32(0)
			if c == r {
				want = 1
			}
			assert.InDelta(t, want, product[c][r], 1e-3)
		}
	}
}

func TestEyeMatricesPicksTransformByLayerType(t *testing.T) {
	views := EyeViews{Near: 0.05, Far: 100}
	views.Eye[0].Fov = Fov{AngleLeft: -0.7, AngleRight: 0.7, AngleUp: 0.7, AngleDown: -0.7}
	m := computeEyeMatrices(views, 0)

	quad := Layer{Type: LayerQuad}
	equirect := Layer{Type: LayerEquirect1}
	viewSpace := Layer{Type: LayerQuad, ViewSpace: true}

	assert.Equal(t, m.vpWorld, m.TransformFor(quad))
	assert.Equal(t, m.vpInv, m.TransformFor(equirect))
	assert.Equal(t, m.vpEye, m.TransformFor(viewSpace))
}

func TestVertexRotationIdentityForNone(t *testing.T) {
	m := VertexRotation(RotateNone)
	assert.Equal(t, float32(1), m[0][0])
	assert.Equal(t, float32(1), m[1][1])
}

func TestCeilDivUint32RoundsUp(t *testing.T) {
	assert.Equal(t, uint32(1), ceilDivUint32(1, 8))
	assert.Equal(t, uint32(1), ceilDivUint32(8, 8))
	assert.Equal(t, uint32(2), ceilDivUint32(9, 8))
	assert.Equal(t, uint32(240), ceilDivUint32(1920, 8))
}

func TestMaxUint32(t *testing.T) {
	assert.Equal(t, uint32(1920), maxUint32(1832, 1920))
	assert.Equal(t, uint32(1832), maxUint32(1832, 1000))
}

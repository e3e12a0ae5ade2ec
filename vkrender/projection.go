// Package vkrender implements the graphics-path layer compositor (spec
// §4.6 LayerRenderer) and the per-frame orchestrator that drives it and
// the distortion pass (spec §4.7 Renderer), grounded on the teacher's
// pipeline.go/renderpass.go construction idiom and math.go's
// GL-to-Vulkan projection fixup.
package vkrender

import (
	"math"

	"cogentcore.org/core/math32"
	lin "github.com/xlab/linmath"

	"github.com/dieselvk/xrcompositor/xrpose"
)

// Fov is a single eye's tangent-style field of view, matching the
// OpenXR convention of four independent half-angles rather than a
// symmetric fovy/aspect pair.
type Fov struct {
	AngleLeft, AngleRight float32
	AngleUp, AngleDown    float32
}

// PerspectiveFromFov builds a Vulkan-convention (Y-down, [0,1] depth)
// projection matrix from an asymmetric FOV, near and far planes.
// Grounded on the teacher's VulkanProjectionMat in math.go, generalized
// from linmath's symmetric Perspective to the four-half-angle form
// OpenXR view poses carry (spec §4.6 step 2).
func PerspectiveFromFov(fov Fov, near, far float32) lin.Mat4x4 {
	tanLeft := tan(fov.AngleLeft)
	tanRight := tan(fov.AngleRight)
	tanUp := tan(fov.AngleUp)
	tanDown := tan(fov.AngleDown)

	tanWidth := tanRight - tanLeft
	tanHeight := tanUp - tanDown

	var m lin.Mat4x4
	m.Fill(0)
	m[0][0] = 2 / tanWidth
	m[1][1] = 2 / tanHeight
	m[2][0] = (tanRight + tanLeft) / tanWidth
	m[2][1] = (tanUp + tanDown) / tanHeight
	m[2][2] = far / (near - far)
	m[2][3] = -1
	m[3][2] = (far * near) / (near - far)

	// Vulkan clip-space fixup: flip Y, matching VulkanProjectionMat's
	// ScaleAniso(1, -1, 1) step, since the half-angle formula above
	// already produced a right-handed GL-style clip volume.
	m[1][1] = -m[1][1]
	return m
}

// tan uses the standard library directly: trigonometry has no ecosystem
// replacement among the pack's dependencies, so this is the one place
// vkrender reaches for "math" rather than a third-party library.
func tan(radians float32) float32 {
	return float32(math.Tan(float64(radians)))
}

// ViewFromPose builds the view matrix (world-to-eye) for a camera at the
// given pose, i.e. the inverse of the pose's rigid transform expressed as
// a matrix. Computed directly from xrpose.Pose's quaternion/position
// rather than routing through linmath's lookAt, since the source is
// already a rigid transform and not an eye/center/up triple.
func ViewFromPose(p xrpose.Pose) lin.Mat4x4 {
	inv := p.Inverse()
	r := quatToMat3(inv.Orientation)

	var m lin.Mat4x4
	m.Fill(0)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m[col][row] = r[col][row]
		}
	}
	m[3][0] = inv.Position.X
	m[3][1] = inv.Position.Y
	m[3][2] = inv.Position.Z
	m[3][3] = 1
	return m
}

// quatToMat3 expands a unit quaternion into a column-major 3x3 rotation
// matrix using the standard algebraic expansion (no trig, no library
// dependency beyond the quaternion's public fields).
func quatToMat3(q math32.Quat) [3][3]float32 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return [3][3]float32{
		{1 - 2*(yy+zz), 2 * (xy + wz), 2 * (xz - wy)},
		{2 * (xy - wz), 1 - 2*(xx+zz), 2 * (yz + wx)},
		{2 * (xz + wy), 2 * (yz - wx), 1 - 2*(xx+yy)},
	}
}

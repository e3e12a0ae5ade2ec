package vkrender

import lin "github.com/xlab/linmath"

// SurfaceRotation is the pre-rotation a target's present surface reports,
// per spec §4.7 "incorporates a 90° clockwise pre-rotation when the
// target reports a rotated surface" — the same concern Android/Quark
// window-system backends surface as VK_SURFACE_TRANSFORM bits, kept here
// as a plain enum since window-system backends are out of this module's
// scope (spec §1) and only the compensating matrix lives here.
type SurfaceRotation int

const (
	RotateNone SurfaceRotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// VertexRotation returns the 2D rotation to fold into the mesh distortion
// pass's per-view UBO `vertex_rot` field (spec §4.7 "Graphics distortion
// (mesh)... Record: update the two per-view UBOs with
// {vertex_rot, post_transform}").
func VertexRotation(r SurfaceRotation) lin.Mat4x4 {
	var m lin.Mat4x4
	m.Fill(0)
	m[3][3] = 1
	switch r {
	case RotateNone:
		m[0][0], m[1][1] = 1, 1
	case Rotate90:
		m[0][1], m[1][0] = 1, -1
	case Rotate180:
		m[0][0], m[1][1] = -1, -1
	case Rotate270:
		m[0][1], m[1][0] = -1, 1
	}
	m[2][2] = 1
	return m
}

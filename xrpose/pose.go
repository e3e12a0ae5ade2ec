// Package xrpose provides the pose (position + orientation) algebra the
// compositor core needs to compose client view poses, world poses, and the
// chaperone transform. Per spec §1 Non-goals, "math primitives (quaternion,
// matrix, FOV → projection)" are an external collaborator's job; this
// package consumes cogentcore.org/core/math32's Quat/Vector3 rather than
// reimplementing quaternion algebra, and only adds the domain-specific
// composition spec §8 property 1 and the GLOSSARY's Chaperone describe.
package xrpose

import "cogentcore.org/core/math32"

// Pose is a rigid transform: orientation then translation, matching the
// pose records referenced throughout spec §3/§4 (frame slot poses, layer
// poses, chaperone).
type Pose struct {
	Orientation math32.Quat
	Position    math32.Vector3
}

// Identity returns the pose with no rotation and no translation.
func Identity() Pose {
	return Pose{Orientation: math32.Quat{W: 1}, Position: math32.Vector3{}}
}

// conjugate returns q's conjugate (inverse for a unit quaternion), computed
// directly from its public X/Y/Z/W fields since math32 exposes the
// quaternion as a plain struct rather than a method for this.
func conjugate(q math32.Quat) math32.Quat {
	return math32.Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// rotate applies quaternion q to vector v via q * (v,0) * conj(q), expanded
// algebraically (Rodrigues' rotation formula in quaternion form) rather than
// going through a 4x4 matrix, since Pose only ever needs to rotate points.
func rotate(q math32.Quat, v math32.Vector3) math32.Vector3 {
	qv := math32.Vec3(q.X, q.Y, q.Z)
	uv := qv.Cross(v)
	uuv := qv.Cross(uv)
	uv = uv.MulScalar(2 * q.W)
	uuv = uuv.MulScalar(2)
	return v.Add(uv).Add(uuv)
}

// Compose returns the pose that results from applying b in a's frame: first
// b, then a (a ∘ b). This is the "pose composition" spec §3/§8 exercises
// (client view pose ∘ world pose, chaperone ∘ raw tracker pose, etc.)
func Compose(a, b Pose) Pose {
	var out Pose
	out.Orientation.MulQuats(a.Orientation, b.Orientation)
	out.Position = a.Position.Add(rotate(a.Orientation, b.Position))
	return out
}

// Inverse returns p^-1 such that Compose(p, p.Inverse()) and
// Compose(p.Inverse(), p) both reduce to (approximately) Identity — the
// property spec §8 property 1 and scenario 5 test directly.
func (p Pose) Inverse() Pose {
	invOrientation := conjugate(p.Orientation)
	invOrientation.Normalize()
	return Pose{
		Orientation: invOrientation,
		Position:    rotate(invOrientation, p.Position).Negate(),
	}
}

// TranslationNorm returns the Euclidean norm of p's translation component,
// used directly by the property-1 test ("translation of norm < 1e-3").
func (p Pose) TranslationNorm() float32 {
	return p.Position.Length()
}

// RotationCosHalfAngle returns |cos(theta/2)| for p's rotation, i.e. |W| of
// the (assumed-normalized) orientation quaternion — the quantity spec §8
// property 1 requires to exceed 0.999 for an identity-equivalent rotation.
func (p Pose) RotationCosHalfAngle() float32 {
	w := p.Orientation.W
	if w < 0 {
		return -w
	}
	return w
}

// Chaperone is the world-to-playspace transform (GLOSSARY: "translation +
// yaw") loaded from an OpenVR-style runtime config and applied once at pose
// ingest, per SPEC_FULL §4's supplemented-feature note. Device drivers and
// the config loader itself remain out of scope (spec §1); this type only
// captures the resolved transform and its single application point.
type Chaperone struct {
	YawRadians  float32
	Translation math32.Vector3
}

// Transform returns the pose to use as the ingest-time composition
// chaperone ∘ raw, rotating raw's position/orientation by YawRadians around
// the vertical (Y) axis and then adding Translation.
func (c Chaperone) Transform(raw Pose) Pose {
	yawQuat := math32.Quat{}
	yawQuat.SetFromAxisAngle(math32.Vec3(0, 1, 0), c.YawRadians)
	chaperonePose := Pose{Orientation: yawQuat, Position: c.Translation}
	return Compose(chaperonePose, raw)
}

package xrpose

import (
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
)

func randomish(i int) Pose {
	angle := float32(i) * 0.37
	q := math32.Quat{}
	q.SetFromAxisAngle(math32.Vec3(0.2, 0.8, 0.1).Normal(), angle)
	return Pose{
		Orientation: q,
		Position:    math32.Vec3(float32(i)*0.1, float32(i)*-0.2, float32(i)*0.05),
	}
}

func TestInverseIsIdentityBothSides(t *testing.T) {
	for i := 0; i < 8; i++ {
		p := randomish(i)
		inv := p.Inverse()

		left := Compose(p, inv)
		right := Compose(inv, p)

		assert.Less(t, left.TranslationNorm(), float32(1e-3))
		assert.Less(t, right.TranslationNorm(), float32(1e-3))
		assert.Greater(t, left.RotationCosHalfAngle(), float32(0.999))
		assert.Greater(t, right.RotationCosHalfAngle(), float32(0.999))
	}
}

func TestIdentityComposeIsNoop(t *testing.T) {
	p := randomish(3)
	id := Identity()
	got := Compose(id, p)
	assert.InDelta(t, p.Position.X, got.Position.X, 1e-5)
	assert.InDelta(t, p.Position.Y, got.Position.Y, 1e-5)
	assert.InDelta(t, p.Position.Z, got.Position.Z, 1e-5)
}

func TestChaperoneYawRotatesPosition(t *testing.T) {
	c := Chaperone{YawRadians: float32(math.Pi / 2), Translation: math32.Vec3(1, 0, 0)}
	raw := Pose{Orientation: math32.Quat{W: 1}, Position: math32.Vec3(1, 0, 0)}

	out := c.Transform(raw)

	// A 90-degree yaw about Y maps +X to -Z, then the translation adds 1 on X.
	assert.InDelta(t, 1.0, float64(out.Position.X), 1e-3)
	assert.InDelta(t, -1.0, float64(out.Position.Z), 1e-3)
}

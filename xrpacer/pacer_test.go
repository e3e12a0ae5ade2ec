package xrpacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredictIsIdempotentUntilWakeMark(t *testing.T) {
	p := NewFakePacer(int64(1e7), int64(1e6))

	first := p.Predict(0)
	second := p.Predict(500)
	assert.Equal(t, first.FrameID, second.FrameID)

	p.MarkPoint(PointWake, first.FrameID, 600)
	third := p.Predict(1000)
	assert.Equal(t, first.FrameID+1, third.FrameID)
}

func TestFrameIDsAreMonotonic(t *testing.T) {
	p := NewFakePacer(int64(1e7), int64(1e6))
	var ids []int64
	for i := 0; i < 5; i++ {
		pred := p.Predict(int64(i) * 1e7)
		ids = append(ids, pred.FrameID)
		p.MarkPoint(PointWake, pred.FrameID, int64(i)*1e7+1)
	}
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, ids[i-1]+1, ids[i])
	}
}

func TestDesiredPresentRespectsSlop(t *testing.T) {
	p := NewFakePacer(int64(1e7), int64(2e6))
	pred := p.Predict(0)
	assert.GreaterOrEqual(t, pred.DesiredPresentNs, pred.WakeNs+pred.SlopNs)
}

func TestMissedFrameShrinksPeriodWithoutCascading(t *testing.T) {
	p := NewFakePacer(int64(1e7), int64(1e6))
	pred := p.Predict(0)
	p.MarkPoint(PointWake, pred.FrameID, 1)

	// Present later than desired: a miss.
	p.InfoPresent(pred.FrameID, pred.DesiredPresentNs+int64(5e6))
	afterFirstMiss := p.predicted

	next := p.Predict(pred.DesiredPresentNs)
	p.MarkPoint(PointWake, next.FrameID, next.WakeNs+1)
	p.InfoPresent(next.FrameID, next.DesiredPresentNs+int64(5e6))
	afterSecondMiss := p.predicted

	// The shrink from one miss to the next must not compound below one
	// period below the floor already reached (no cascading drift).
	assert.GreaterOrEqual(t, afterSecondMiss, afterFirstMiss-p.periodNs)
}

func TestPresentOnTimeRestoresFullPeriod(t *testing.T) {
	p := NewFakePacer(int64(1e7), int64(1e6))
	pred := p.Predict(0)
	p.MarkPoint(PointWake, pred.FrameID, 1)
	p.InfoPresent(pred.FrameID, pred.DesiredPresentNs+int64(5e6))
	assert.Less(t, p.predicted, p.periodNs)

	next := p.Predict(pred.DesiredPresentNs)
	p.MarkPoint(PointWake, next.FrameID, next.WakeNs+1)
	p.InfoPresent(next.FrameID, next.DesiredPresentNs-1)
	assert.Equal(t, p.periodNs, p.predicted)
}

var _ Pacer = (*FakePacer)(nil)

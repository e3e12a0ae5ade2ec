// Package xrpacer defines the frame-pacing contract spec §4.10 describes:
// predict/mark_point/info_present against a per-instance clock. The core
// consumes a Pacer rather than owning one concrete scheduling policy — a
// real Target-supplied pacer (vblank-driven) and this package's FakePacer
// (clock-driven) are both valid implementations of the same contract, per
// spec §4.8 "Frame pacing uses a fake-pacer (clock-based) unless the
// Target supplies a real one". Grounded on spec §4.10's contract table
// directly; the teacher's instance.go current_frame ring-index rotation is
// the closest ancestor for the monotonic frame-id bookkeeping, since no
// single teacher file implements frame pacing on its own.
package xrpacer

import "sync"

// PointKind is the phase a mark_point call reports, per spec §4.10.
type PointKind int

const (
	PointWake PointKind = iota
	PointBegin
	PointSubmit
	PointGpuDone
	PointPresent
)

// Prediction is predict's return value: the next frame's id and schedule.
type Prediction struct {
	FrameID            int64
	WakeNs             int64
	DesiredPresentNs   int64
	SlopNs             int64
	PredictedDisplayNs int64
	PredictedPeriodNs  int64
	MinPeriodNs        int64
}

// Pacer is the contract spec §4.10 lists: predict is idempotent until a
// matching mark_point(Wake) arrives, frame_id is monotonic, and
// desired_present_ns >= wake_ns + slop_ns. info_present feeds back
// actual present times for back-pressure.
type Pacer interface {
	// Predict computes the next frame's schedule given the current clock
	// reading. Repeated calls before the matching mark_point(Wake) return
	// the same Prediction (idempotent), per spec §4.10.
	Predict(nowNs int64) Prediction

	// MarkPoint records a phase timestamp for frameID.
	MarkPoint(kind PointKind, frameID int64, whenNs int64)

	// InfoPresent reports the actual present time observed for frameID,
	// used for back-pressure (e.g. shrinking the next predicted period).
	InfoPresent(frameID int64, actualPresentNs int64)
}

// FakePacer is a clock-driven Pacer: it has no vblank source of its own
// and instead derives a fixed period from the caller-supplied
// periodNs, growing the predicted period back toward that fixed value
// after a missed frame. Grounded on spec §4.10's contract plus the
// "reduces the next predicted period by at most one period (no
// cascading drift)" rule.
type FakePacer struct {
	mu sync.Mutex

	periodNs  int64
	slopNs    int64
	nextID    int64
	predicted int64 // current predicted period, may shrink after a miss

	pending      bool // predict() has been called without a matching Wake mark
	pendingFrame int64

	lastPresentNs  int64
	lastDesiredNs  int64
	missedLastTime bool
}

// NewFakePacer returns a FakePacer targeting periodNs between frames with
// slopNs of headroom before the desired present time.
func NewFakePacer(periodNs, slopNs int64) *FakePacer {
	if periodNs <= 0 {
		periodNs = int64(1e9 / 90)
	}
	return &FakePacer{periodNs: periodNs, slopNs: slopNs, predicted: periodNs}
}

// Predict implements the idempotent-until-Wake contract: a second call
// before mark_point(Wake) for the pending frame returns the same
// Prediction rather than minting a new frame id, per spec §4.10.
func (p *FakePacer) Predict(nowNs int64) Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending {
		return p.predictionLocked(p.pendingFrame, nowNs)
	}

	p.nextID++
	p.pending = true
	p.pendingFrame = p.nextID
	return p.predictionLocked(p.nextID, nowNs)
}

func (p *FakePacer) predictionLocked(frameID, nowNs int64) Prediction {
	period := p.predicted
	wake := nowNs
	desired := wake + period
	// spec §4.10: desired_present_ns >= wake_ns + slop_ns.
	if desired < wake+p.slopNs {
		desired = wake + p.slopNs
	}
	p.lastDesiredNs = desired
	return Prediction{
		FrameID:            frameID,
		WakeNs:             wake,
		DesiredPresentNs:   desired,
		SlopNs:             p.slopNs,
		PredictedDisplayNs: desired,
		PredictedPeriodNs:  period,
		MinPeriodNs:        p.periodNs,
	}
}

// MarkPoint clears the pending-predict flag on a matching Wake mark so the
// next Predict call mints a fresh frame id.
func (p *FakePacer) MarkPoint(kind PointKind, frameID int64, whenNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == PointWake && p.pending && frameID == p.pendingFrame {
		p.pending = false
	}
}

// InfoPresent implements the "reduces the next predicted period by at
// most one period" back-pressure rule: a frame observed to present later
// than its desired time shrinks the predicted period by at most periodNs,
// never compounding across consecutive misses (no cascading drift).
func (p *FakePacer) InfoPresent(frameID int64, actualPresentNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	missed := p.lastDesiredNs != 0 && actualPresentNs > p.lastDesiredNs
	if missed && !p.missedLastTime {
		shrink := p.predicted - p.periodNs
		if shrink < p.periodNs/2 {
			shrink = p.periodNs / 2
		}
		p.predicted = shrink
	} else if !missed {
		p.predicted = p.periodNs
	}
	p.missedLastTime = missed
	p.lastPresentNs = actualPresentNs
}

var _ Pacer = (*FakePacer)(nil)

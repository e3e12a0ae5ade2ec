package vkres

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDistortionImagesCoversWholeGrid(t *testing.T) {
	calls := 0
	fn := func(eye Eye, u, v float32) (r, g, b UV) {
		calls++
		return UV{u, v}, UV{u, v}, UV{u, v}
	}
	imgs := GenerateDistortionImages(fn, false)

	assert.Equal(t, DistortionGrid*DistortionGrid*2, calls)
	assert.Len(t, imgs.Pixels[EyeLeft][ChannelR], DistortionGrid*DistortionGrid)
	assert.Equal(t, float32(1), imgs.Pixels[EyeRight][ChannelB][DistortionGrid*DistortionGrid-1].U)
}

func TestConvertTimestampsAppliesPeriodAndCalibration(t *testing.T) {
	start, end := ConvertTimestamps(0, 1000, 64, 2.0, CalibrationOffsetNs(500))
	assert.Equal(t, int64(500), start)
	assert.Equal(t, int64(2500), end)
}

func TestConvertTimestampsMasksInvalidBits(t *testing.T) {
	// With only 8 valid bits, a tick count above 255 must wrap.
	start, _ := ConvertTimestamps(256, 0, 8, 1.0, 0)
	assert.Equal(t, int64(0), start)
}

func TestFloat32sToBytesRoundTripsViaSliceUint32(t *testing.T) {
	vs := []float32{1, -2.5, 0, 3.14159}
	b := float32sToBytes(vs)
	assert.Len(t, b, 16)

	words := sliceUint32(b)
	assert.Len(t, words, 4)
	for i, v := range vs {
		assert.Equal(t, math.Float32bits(v), words[i])
	}
}

func TestSliceUint32PanicsOnMisalignedLength(t *testing.T) {
	assert.Panics(t, func() { sliceUint32([]byte{1, 2, 3}) })
}

package xrcalib

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieselvk/xrcompositor/vklib"
)

func sampleCalibration() Calibration {
	return Calibration{
		Cameras: [2]Camera{
			{
				Model:      ModelPinholeRadtan5,
				Intrinsics: Intrinsics{FX: 600.125, FY: 600.25, CX: 320.5, CY: 240.5},
				Distortion: Distortion{K1: -0.01, K2: 0.002, P1: 0.0001, P2: -0.0002, K3: 0.00003},
				Resolution: Resolution{Width: 640, Height: 480},
			},
			{
				Model:      ModelFisheyeEquidistant4,
				Intrinsics: Intrinsics{FX: 601.0, FY: 601.5, CX: 321.0, CY: 241.0},
				Distortion: Distortion{K1: 0.1, K2: -0.2, P1: 0.3, P2: -0.4},
				Resolution: Resolution{Width: 640, Height: 480},
			},
		},
		Extrinsics: StereoExtrinsics{
			Rotation:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Translation: [3]float64{0.064, 0, 0},
			Essential:   [9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9},
			Fundamental: [9]float64{9, 8, 7, 6, 5, 4, 3, 2, 1},
		},
	}
}

func TestJSONRoundTripIsExact(t *testing.T) {
	c := sampleCalibration()

	data, err := c.MarshalJSON()
	require.NoError(t, err)

	got, err := ParseJSON(data)
	require.NoError(t, err)

	assert.Equal(t, c.Cameras[0].Resolution, got.Cameras[0].Resolution)
	assert.InDelta(t, c.Cameras[0].Intrinsics.FX, got.Cameras[0].Intrinsics.FX, 1e-12)
	assert.InDelta(t, c.Cameras[1].Distortion.P2, got.Cameras[1].Distortion.P2, 1e-12)
	assert.InDelta(t, c.Extrinsics.Essential[8], got.Extrinsics.Essential[8], 1e-12)
	assert.Equal(t, ModelFisheyeEquidistant4, got.Cameras[1].Model)
}

func TestJSONUnknownVersionIsSchemaMismatch(t *testing.T) {
	_, err := ParseJSON([]byte(`{"metadata":{"version":99},"cameras":[]}`))
	require.Error(t, err)
	var ve *vklib.Error
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, vklib.KindSchemaMismatch, ve.Kind)
}

func TestLegacyRoundTripIsBitExact(t *testing.T) {
	c := sampleCalibration()

	got, err := roundTripLegacy(c, LegacyOptions{})
	require.NoError(t, err)

	assert.True(t, bitExact(c.Extrinsics.Rotation[:], got.Extrinsics.Rotation[:]))
	assert.True(t, bitExact(c.Extrinsics.Translation[:], got.Extrinsics.Translation[:]))
	assert.True(t, bitExact(c.Extrinsics.Essential[:], got.Extrinsics.Essential[:]))
	assert.True(t, bitExact(c.Extrinsics.Fundamental[:], got.Extrinsics.Fundamental[:]))
}

func TestLegacyTransposedMatrixRejectedByDefault(t *testing.T) {
	c := sampleCalibration()
	c.Extrinsics.Translation = [3]float64{1, 2, 3}

	// Simulate a producer that wrote translation as 1x3 instead of 3x1:
	// readMatrix would see cols/rows swapped relative to what ReadLegacy
	// expects, which is rejected unless AllowTransposeFallback is set.
	_, err := readMatrixForTest(t, c)
	require.Error(t, err)
}

// readMatrixForTest writes a single transposed matrix and exercises
// readMatrix directly with the opposite expected shape, matching the
// fallback scenario spec §9's open question calls out.
func readMatrixForTest(t *testing.T, c Calibration) ([]float64, error) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, writeMatrix(&buf, 8, c.Extrinsics.Translation[:], 1, 3))
	return readMatrix(&buf, 3, 1, LegacyOptions{AllowTransposeFallback: false}, "translation")
}

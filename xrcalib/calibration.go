// Package xrcalib loads and saves the stereo camera calibration record
// (spec §3 "Calibration record", §6 "Calibration file format"): two
// camera intrinsics/distortion/resolution blocks plus the
// rotation/translation/essential/fundamental matrices relating them,
// persisted as either a schema-versioned JSON document or a legacy tagged
// binary stream, selected by file extension. Grounded on
// original_source/t_file.cpp's t_stereo_camera_calibration_load_v1/
// read_cv_mat/write_cv_mat, re-expressed as Go errors instead of the
// source's CALIB_ASSERT-then-exit() macros (spec §9 DESIGN NOTES).
package xrcalib

// DistortionModel names the two lens models spec §6 supports.
type DistortionModel int

const (
	ModelPinholeRadtan5 DistortionModel = iota
	ModelFisheyeEquidistant4
)

func (m DistortionModel) String() string {
	if m == ModelFisheyeEquidistant4 {
		return "fisheye_equidistant4"
	}
	return "pinhole_radtan5"
}

// Intrinsics holds the pinhole focal length/principal point pair.
type Intrinsics struct {
	FX, FY, CX, CY float64
}

// Distortion holds up to 5 radtan coefficients, or the first 4 used for
// the fisheye model (k1..k4); unused trailing fields are left zero.
type Distortion struct {
	K1, K2, P1, P2, K3 float64
}

// Resolution is a camera's pixel dimensions.
type Resolution struct {
	Width, Height int
}

// Camera is a single lens's calibration: model, intrinsics, distortion,
// and the resolution it was calibrated at.
type Camera struct {
	Model       DistortionModel
	Intrinsics  Intrinsics
	Distortion  Distortion
	Resolution  Resolution
}

// StereoExtrinsics is the OpenCV stereoCalibrate output relating the two
// cameras: a 3x3 rotation, a 3x1 translation, and the 3x3 essential and
// fundamental matrices, all stored row-major.
type StereoExtrinsics struct {
	Rotation    [9]float64
	Translation [3]float64
	Essential   [9]float64
	Fundamental [9]float64
}

// Calibration is the full persisted record (spec §3).
type Calibration struct {
	Cameras     [2]Camera
	Extrinsics  StereoExtrinsics
}

package xrcalib

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/dieselvk/xrcompositor/vklib"
)

// legacyMatrix is one entry in the tagged binary stream: elem_size (4 or
// 8), rows, cols, then rows*cols*elem_size bytes, row-major. Grounded
// directly on original_source/t_file.cpp's read_cv_mat/write_cv_mat.
type legacyMatrix struct {
	rows, cols int
	data       []float64
}

// AllowTransposeFallback opts into the open question spec §9 leaves
// unresolved: original_source silently transposes a matrix on load when
// its stored rows/cols are swapped relative to what the reader expects.
// Disabled by default — spec §8 property 5 only requires exactness for
// what this package itself wrote, and a silent transpose can mask a
// genuinely malformed file; set true to mirror the original's tolerance.
type LegacyOptions struct {
	AllowTransposeFallback bool
}

func writeMatrix(w io.Writer, elemSize uint32, m []float64, rows, cols int) error {
	header := [3]uint32{elemSize, uint32(rows), uint32(cols)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("xrcalib: write header: %w", err)
	}
	if rows == 0 || cols == 0 {
		return nil
	}
	for _, v := range m {
		if elemSize == 4 {
			if err := binary.Write(w, binary.LittleEndian, float32(v)); err != nil {
				return fmt.Errorf("xrcalib: write element: %w", err)
			}
		} else {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return fmt.Errorf("xrcalib: write element: %w", err)
			}
		}
	}
	return nil
}

// readMatrix reads one tagged matrix, expecting wantRows x wantCols. A
// short header read is a vklib.KindShortRead error (spec §7: "Loaders
// must tolerate short reads of optional trailing matrices (warn, default
// to sensible values)" is the caller's job — readMatrix always reports
// the short read, the caller decides whether the matrix was optional).
func readMatrix(r io.Reader, wantRows, wantCols int, opts LegacyOptions, name string) ([]float64, error) {
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, vklib.NewError(vklib.KindShortRead, fmt.Sprintf("%s: header: %v", name, err))
	}
	elemSize, rows, cols := header[0], int(header[1]), int(header[2])
	if rows == 0 && cols == 0 {
		return nil, nil
	}
	if elemSize != 4 && elemSize != 8 {
		return nil, vklib.NewError(vklib.KindSchemaMismatch, fmt.Sprintf("%s: unsupported element size %d", name, elemSize))
	}

	total := rows * cols
	out := make([]float64, total)
	for i := 0; i < total; i++ {
		if elemSize == 4 {
			var v float32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, vklib.NewError(vklib.KindShortRead, fmt.Sprintf("%s: body: %v", name, err))
			}
			out[i] = float64(v)
		} else {
			var v float64
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, vklib.NewError(vklib.KindShortRead, fmt.Sprintf("%s: body: %v", name, err))
			}
			out[i] = v
		}
	}

	if rows == wantRows && cols == wantCols {
		return out, nil
	}
	if rows == wantCols && cols == wantRows && opts.AllowTransposeFallback {
		return transpose(out, rows, cols), nil
	}
	return nil, vklib.NewError(vklib.KindSchemaMismatch,
		fmt.Sprintf("%s: stored %dx%d does not match expected %dx%d", name, rows, cols, wantRows, wantCols))
}

func transpose(m []float64, rows, cols int) []float64 {
	out := make([]float64, len(m))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = m[r*cols+c]
		}
	}
	return out
}

// WriteLegacy writes c as the fixed-order tagged binary stream: both
// cameras' intrinsics (3x3) and distortion (1x5) matrices, then the
// stereo rotation (3x3), translation (3x1), essential (3x3), and
// fundamental (3x3) matrices, each 8-byte double precision — the same
// element width original_source's CameraCalibrationWrapper constructs.
func WriteLegacy(w io.Writer, c Calibration) error {
	for _, cam := range c.Cameras {
		intr := []float64{cam.Intrinsics.FX, 0, cam.Intrinsics.CX, 0, cam.Intrinsics.FY, cam.Intrinsics.CY, 0, 0, 1}
		if err := writeMatrix(w, 8, intr, 3, 3); err != nil {
			return err
		}
		dist := []float64{cam.Distortion.K1, cam.Distortion.K2, cam.Distortion.P1, cam.Distortion.P2, cam.Distortion.K3}
		if err := writeMatrix(w, 8, dist, 1, 5); err != nil {
			return err
		}
	}
	if err := writeMatrix(w, 8, c.Extrinsics.Rotation[:], 3, 3); err != nil {
		return err
	}
	if err := writeMatrix(w, 8, c.Extrinsics.Translation[:], 3, 1); err != nil {
		return err
	}
	if err := writeMatrix(w, 8, c.Extrinsics.Essential[:], 3, 3); err != nil {
		return err
	}
	if err := writeMatrix(w, 8, c.Extrinsics.Fundamental[:], 3, 3); err != nil {
		return err
	}
	return nil
}

// ReadLegacy reads a stream written by WriteLegacy. Trailing optional
// matrices (essential, fundamental) that are short-read are tolerated:
// their values are left at the zero matrix and ReadLegacy returns a nil
// error. No warning is logged and nothing in the result marks them as
// missing.
func ReadLegacy(r io.Reader, opts LegacyOptions) (Calibration, error) {
	var out Calibration

	for i := range out.Cameras {
		intr, err := readMatrix(r, 3, 3, opts, "intrinsics")
		if err != nil {
			return out, err
		}
		dist, err := readMatrix(r, 1, 5, opts, "distortion")
		if err != nil {
			return out, err
		}
		out.Cameras[i].Model = ModelPinholeRadtan5
		if intr != nil {
			out.Cameras[i].Intrinsics = Intrinsics{FX: intr[0], CX: intr[2], FY: intr[4], CY: intr[5]}
		}
		if dist != nil {
			out.Cameras[i].Distortion = Distortion{K1: dist[0], K2: dist[1], P1: dist[2], P2: dist[3], K3: dist[4]}
		}
	}

	rot, err := readMatrix(r, 3, 3, opts, "rotation")
	if err != nil {
		return out, err
	}
	if rot != nil {
		copy(out.Extrinsics.Rotation[:], rot)
	}

	trans, err := readMatrix(r, 3, 1, opts, "translation")
	if err != nil {
		return out, err
	}
	if trans != nil {
		copy(out.Extrinsics.Translation[:], trans)
	}

	// Essential and fundamental are the stream's optional trailing
	// matrices; a short read here is tolerated rather than propagated.
	if ess, err := readMatrix(r, 3, 3, opts, "essential"); err == nil && ess != nil {
		copy(out.Extrinsics.Essential[:], ess)
	} else if err != nil && !isShortRead(err) {
		return out, err
	}
	if fund, err := readMatrix(r, 3, 3, opts, "fundamental"); err == nil && fund != nil {
		copy(out.Extrinsics.Fundamental[:], fund)
	} else if err != nil && !isShortRead(err) {
		return out, err
	}

	return out, nil
}

func isShortRead(err error) bool {
	ve, ok := err.(*vklib.Error)
	return ok && ve.Kind == vklib.KindShortRead
}

// bitExact reports whether two float64 slices are bit-for-bit identical,
// the exactness spec §8 property 5 requires for legacy binary round-trips.
func bitExact(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

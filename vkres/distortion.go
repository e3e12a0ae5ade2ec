package vkres

// DistortionGrid is the resolution spec §4.3/§6 fixes for the precomputed
// distortion images: "a 128x128 regular grid per (channel, eye)".
const DistortionGrid = 128

// Eye indexes the stereo pair.
type Eye int

const (
	EyeLeft Eye = iota
	EyeRight
)

// Channel indexes the three color channels the distortion mesh/compute
// path samples separately (chromatic-aberration correction).
type Channel int

const (
	ChannelR Channel = iota
	ChannelG
	ChannelB
)

// UV is a tangent-angle pair, the R32G32_SFLOAT texel payload spec §6
// describes for the distortion images.
type UV struct {
	U, V float32
}

// DistortionFunc matches the device's compute_distortion(view, u, v)
// callback spec §4.3 samples on a regular grid: given a view and a
// normalized [0,1] grid coordinate, returns the tangent-angle UV for each
// of the three color channels.
type DistortionFunc func(eye Eye, u, v float32) (r, g, b UV)

// DistortionImages holds the 6 generated images (3 channels x 2 eyes) as
// plain pixel grids. No vk.Image is built from them: createMeshGeometry
// copies them into the mesh vertices' UVs, and the compute path's six
// distortion bindings point at the mock image.
type DistortionImages struct {
	PreRotated bool
	// Pixels[eye][channel] is a DistortionGrid x DistortionGrid row-major
	// grid of UV texels.
	Pixels [2][3][]UV
}

// GenerateDistortionImages samples fn across a DistortionGrid x
// DistortionGrid regular grid for both eyes, per spec §4.3. When
// preRotated is true, grid coordinates are rotated 90 degrees before
// sampling, compensating for a display mounted rotated relative to the
// rendered image (SPEC_FULL §4 supplemented feature, grounded on
// original_source's pre-rotation handling in comp_layer_renderer.c).
func GenerateDistortionImages(fn DistortionFunc, preRotated bool) DistortionImages {
	out := DistortionImages{PreRotated: preRotated}
	for eye := EyeLeft; eye <= EyeRight; eye++ {
		for c := 0; c < 3; c++ {
			out.Pixels[eye][c] = make([]UV, DistortionGrid*DistortionGrid)
		}
		for row := 0; row < DistortionGrid; row++ {
			for col := 0; col < DistortionGrid; col++ {
				u := float32(col) / float32(DistortionGrid-1)
				v := float32(row) / float32(DistortionGrid-1)
				if preRotated {
					u, v = v, 1-u
				}
				r, g, b := fn(eye, u, v)
				idx := row*DistortionGrid + col
				out.Pixels[eye][0][idx] = r
				out.Pixels[eye][1][idx] = g
				out.Pixels[eye][2][idx] = b
			}
		}
	}
	return out
}

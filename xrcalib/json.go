package xrcalib

import (
	"fmt"

	"github.com/dieselvk/xrcompositor/jsonx"
	"github.com/dieselvk/xrcompositor/vklib"
)

// SchemaVersion is the only version this package writes and the only one
// it accepts on read, per spec §6's `{"metadata": {"version": 2}}` block.
const SchemaVersion = 2

func modelFromString(s string) (DistortionModel, bool) {
	switch s {
	case "pinhole_radtan5":
		return ModelPinholeRadtan5, true
	case "fisheye_equidistant4":
		return ModelFisheyeEquidistant4, true
	default:
		return 0, false
	}
}

// MarshalJSON renders c as the schema-versioned document spec §6 defines,
// built through jsonx.Builder rather than encoding/json struct tags so the
// exact field layout (nested distortion object with model-dependent key
// set) matches the spec's document shape.
func (c Calibration) MarshalJSON() ([]byte, error) {
	b := jsonx.NewBuilder()
	b.Object().
		Key("metadata").Object().Key("version").Value(SchemaVersion).End().
		Key("cameras").Array()
	for _, cam := range c.Cameras {
		b.Object().
			Key("model").Value(cam.Model.String()).
			Key("intrinsics").Object().
			Key("fx").Value(cam.Intrinsics.FX).
			Key("fy").Value(cam.Intrinsics.FY).
			Key("cx").Value(cam.Intrinsics.CX).
			Key("cy").Value(cam.Intrinsics.CY).
			End().
			Key("distortion").Object().
			Key("k1").Value(cam.Distortion.K1).
			Key("k2").Value(cam.Distortion.K2)
		if cam.Model == ModelFisheyeEquidistant4 {
			b.Key("k3").Value(cam.Distortion.P1).Key("k4").Value(cam.Distortion.P2)
		} else {
			b.Key("p1").Value(cam.Distortion.P1).
				Key("p2").Value(cam.Distortion.P2).
				Key("k3").Value(cam.Distortion.K3)
		}
		b.End().
			Key("resolution").Object().
			Key("width").Value(cam.Resolution.Width).
			Key("height").Value(cam.Resolution.Height).
			End().
			End()
	}
	b.End().
		Key("opencv_stereo_calibrate").Object().
		Key("rotation").Array()
	for _, v := range c.Extrinsics.Rotation {
		b.Value(v)
	}
	b.End().Key("translation").Array()
	for _, v := range c.Extrinsics.Translation {
		b.Value(v)
	}
	b.End().Key("essential").Array()
	for _, v := range c.Extrinsics.Essential {
		b.Value(v)
	}
	b.End().Key("fundamental").Array()
	for _, v := range c.Extrinsics.Fundamental {
		b.Value(v)
	}
	b.End().End().End()

	node, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("xrcalib: build json: %w", err)
	}
	return []byte(node.String()), nil
}

// ParseJSON decodes a schema-versioned calibration document, returning a
// SchemaMismatch error (never a guessed value) on an unrecognized version
// or model name, and a ShortRead error when a required array is the wrong
// length, per spec §6/§7.
func ParseJSON(data []byte) (Calibration, error) {
	var out Calibration

	root, err := jsonx.Parse(data)
	if err != nil {
		return out, vklib.NewError(vklib.KindSchemaMismatch, err.Error())
	}

	version := root.Field("metadata").Field("version").AsInt(-1)
	if version != SchemaVersion {
		return out, vklib.NewError(vklib.KindSchemaMismatch,
			fmt.Sprintf("unsupported calibration schema version %d", version))
	}

	cameras := root.Field("cameras")
	if cameras.Len() != 2 {
		return out, vklib.NewError(vklib.KindShortRead,
			fmt.Sprintf("expected 2 cameras, found %d", cameras.Len()))
	}

	for i := 0; i < 2; i++ {
		camNode := cameras.Index(i)
		model, ok := modelFromString(camNode.Field("model").AsString(""))
		if !ok {
			return out, vklib.NewError(vklib.KindSchemaMismatch, "unknown camera model")
		}
		intr := camNode.Field("intrinsics")
		dist := camNode.Field("distortion")
		res := camNode.Field("resolution")

		cam := Camera{
			Model: model,
			Intrinsics: Intrinsics{
				FX: intr.Field("fx").AsFloat64(0),
				FY: intr.Field("fy").AsFloat64(0),
				CX: intr.Field("cx").AsFloat64(0),
				CY: intr.Field("cy").AsFloat64(0),
			},
			Resolution: Resolution{
				Width:  res.Field("width").AsInt(0),
				Height: res.Field("height").AsInt(0),
			},
		}
		if model == ModelFisheyeEquidistant4 {
			cam.Distortion = Distortion{
				K1: dist.Field("k1").AsFloat64(0),
				K2: dist.Field("k2").AsFloat64(0),
				P1: dist.Field("k3").AsFloat64(0),
				P2: dist.Field("k4").AsFloat64(0),
			}
		} else {
			cam.Distortion = Distortion{
				K1: dist.Field("k1").AsFloat64(0),
				K2: dist.Field("k2").AsFloat64(0),
				P1: dist.Field("p1").AsFloat64(0),
				P2: dist.Field("p2").AsFloat64(0),
				K3: dist.Field("k3").AsFloat64(0),
			}
		}
		out.Cameras[i] = cam
	}

	stereo := root.Field("opencv_stereo_calibrate")
	if err := fillVec(stereo.Field("rotation"), out.Extrinsics.Rotation[:]); err != nil {
		return out, err
	}
	if err := fillVec(stereo.Field("translation"), out.Extrinsics.Translation[:]); err != nil {
		return out, err
	}
	if err := fillVec(stereo.Field("essential"), out.Extrinsics.Essential[:]); err != nil {
		return out, err
	}
	if err := fillVec(stereo.Field("fundamental"), out.Extrinsics.Fundamental[:]); err != nil {
		return out, err
	}
	return out, nil
}

func fillVec(node jsonx.Node, dst []float64) error {
	if node.Len() != len(dst) {
		return vklib.NewError(vklib.KindShortRead,
			fmt.Sprintf("expected %d elements, found %d", len(dst), node.Len()))
	}
	for i := range dst {
		dst[i] = node.Index(i).AsFloat64(0)
	}
	return nil
}

package xrcalib

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a calibration from path, dispatching on extension per
// spec §6: ".json" uses the schema-versioned document, anything else uses
// the legacy tagged binary stream.
func LoadFile(path string, opts LegacyOptions) (Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return Calibration{}, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := io.ReadAll(f)
		if err != nil {
			return Calibration{}, err
		}
		return ParseJSON(data)
	}
	return ReadLegacy(f, opts)
}

// SaveFile writes c to path, dispatching on extension the same way
// LoadFile reads it.
func SaveFile(path string, c Calibration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := c.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	}
	return WriteLegacy(f, c)
}

// roundTripLegacy is a convenience used by tests: write c to an in-memory
// buffer, then read it back.
func roundTripLegacy(c Calibration, opts LegacyOptions) (Calibration, error) {
	var buf bytes.Buffer
	if err := WriteLegacy(&buf, c); err != nil {
		return Calibration{}, err
	}
	return ReadLegacy(&buf, opts)
}

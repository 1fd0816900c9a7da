// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package nd2convert

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/nd2"
)

// Synthesises a 2 channel, 2x2 pixel, 2 timepoint acquisition
func makeTestSpec() nd2.FileSpec {
	return nd2.FileSpec{
		Attributes: map[string]interface{}{
			"uiWidth":          uint32(2),
			"uiHeight":         uint32(2),
			"uiComp":           uint32(2),
			"uiBpcSignificant": uint32(12),
			"uiSequenceCount":  uint32(2),
		},
		Calibration: map[string]interface{}{
			"dCalibration": 0.325,
			"Objective":    "Plan Apo 20x",
		},
		Experiment: map[string]interface{}{
			"uiLoopCountT":  uint32(2),
			"uiLoopCountZ":  uint32(1),
			"uiLoopCountXY": uint32(1),
		},
		TextInfo: map[string]interface{}{
			"TextInfoItem_6": "Scanner: Galvano\nDetector: GaAsP\nGain: 45\nEmission Range: 500-550\nLaser 488 nm: on\n  Power: 2.5\nZoom: 1.0",
		},
		PictureMeta: map[string]interface{}{
			"sPicturePlanes": map[string]interface{}{
				"uiCount": uint32(2),
				"Plane_0": map[string]interface{}{"sDescription": "DAPI"},
				"Plane_1": map[string]interface{}{"sDescription": "GFP"},
			},
		},
		Frames: []nd2.FrameSpec{
			{TimestampMs: 0, Samples: []uint16{100, 200, 101, 201, 102, 202, 103, 203}},
			{TimestampMs: 1000, Samples: []uint16{110, 210, 111, 211, 112, 212, 113, 213}},
		},
	}
}

func openTestFile(t *testing.T, spec nd2.FileSpec) *nd2.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "220601AK35_test_001.nd2")
	if err := nd2.WriteFile(path, spec); err != nil {
		t.Fatalf("failed to write test container: %v", err)
	}
	f, err := nd2.Open(path)
	if err != nil {
		t.Fatalf("failed to open test container: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExtractMetadata(t *testing.T) {
	f := openTestFile(t, makeTestSpec())

	meta, err := ExtractMetadata(f)
	if err != nil {
		t.Fatalf("ExtractMetadata failed: %v", err)
	}

	if meta.Width != 2 || meta.Height != 2 || meta.ChannelCount != 2 || meta.TimeCount != 2 {
		t.Errorf("dimensions wrong: %+v", meta)
	}
	if meta.PixelSizeUm != 0.325 {
		t.Errorf("pixel size: got %v", meta.PixelSizeUm)
	}
	if meta.Objective != "Plan Apo 20x" {
		t.Errorf("objective: got %v", meta.Objective)
	}
	if meta.BitsPerSampleSignificant != 12 {
		t.Errorf("bit depth: got %v", meta.BitsPerSampleSignificant)
	}
	if len(meta.Channels) != 2 || meta.Channels[0].Name != "DAPI" || meta.Channels[1].Name != "GFP" {
		t.Errorf("channels: got %+v", meta.Channels)
	}
	if len(meta.Frames) != 2 || meta.Frames[1].Time != 1 {
		t.Errorf("frames: got %+v", meta.Frames)
	}
	if meta.Extra["ImageCalibrationLV|0|SLxCalibration|Objective"] != "Plan Apo 20x" {
		t.Errorf("extra metadata missing objective")
	}
}

func TestExtractMetadataMissingCalibration(t *testing.T) {
	spec := makeTestSpec()
	delete(spec.Calibration, "dCalibration")
	f := openTestFile(t, spec)

	_, err := ExtractMetadata(f)
	if !importerror.IsKind(err, importerror.KindMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if !strings.Contains(err.Error(), "dCalibration") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestExtractMetadataUnnamedChannel(t *testing.T) {
	spec := makeTestSpec()
	spec.PictureMeta = map[string]interface{}{
		"sPicturePlanes": map[string]interface{}{
			"uiCount": uint32(2),
			"Plane_0": map[string]interface{}{"sDescription": "DAPI"},
		},
	}
	f := openTestFile(t, spec)

	meta, err := ExtractMetadata(f)
	if err != nil {
		t.Fatalf("ExtractMetadata failed: %v", err)
	}
	if meta.Channels[1].Name != "channel01" {
		t.Errorf("unnamed channel should get a generated name, got %v", meta.Channels[1].Name)
	}
}

func TestSplitFrameIndex(t *testing.T) {
	// 3D numbering: index = z + pos*Z + t*P*Z
	sizes := nd2.Sizes{X: 2, Y: 2, C: 1, Z: 3, T: 2, P: 2}
	p, tp, z := splitFrameIndex(sizes, 2+1*3+1*2*3)
	if p != 1 || tp != 1 || z != 2 {
		t.Errorf("3D split: got p=%v t=%v z=%v", p, tp, z)
	}

	// 2D numbering: index = pos + t*P
	sizes2D := nd2.Sizes{X: 2, Y: 2, C: 1, Z: 1, T: 3, P: 2}
	p, tp, z = splitFrameIndex(sizes2D, 1+2*2)
	if p != 1 || tp != 2 || z != 0 {
		t.Errorf("2D split: got p=%v t=%v z=%v", p, tp, z)
	}
}

func TestParseLaserInfo(t *testing.T) {
	raw := "Scanner: Galvano\nDetector: GaAsP\nGain: 45\nLine Averaging: 2\nEmission Range: 500-550\nLaser 488 nm: on\n  Power: 2.5\nZoom: 1.0\nLaser 561 nm: on\n  Power: 5.0\nZoom: 1.0"

	lasers := ParseLaserInfo(raw)
	if len(lasers) != 2 {
		t.Fatalf("expected 2 lasers, got %v", len(lasers))
	}

	first := lasers[0]
	if first.Wavelength != "Laser 488 nm" || first.Detector != "GaAsP" || first.Power != "2.5" || first.LineAveraging != "2" {
		t.Errorf("first laser: got %+v", first)
	}

	// Settings reset between lasers, second one only carries what was set
	// after the first Zoom line
	second := lasers[1]
	if second.Wavelength != "Laser 561 nm" || second.Power != "5.0" || second.Detector != "Unknown" {
		t.Errorf("second laser: got %+v", second)
	}
}

func TestParseLaserInfoEmpty(t *testing.T) {
	if lasers := ParseLaserInfo(""); len(lasers) != 0 {
		t.Errorf("empty info should give no lasers, got %v", len(lasers))
	}
}

func TestDescriptionHTML(t *testing.T) {
	f := openTestFile(t, makeTestSpec())
	meta, err := ExtractMetadata(f)
	if err != nil {
		t.Fatalf("ExtractMetadata failed: %v", err)
	}

	html := DescriptionHTML(meta)
	for _, want := range []string{"<table border='1'>", "Plan Apo 20x", "Laser 488 nm", "DAPI, GFP", "2x2"} {
		if !strings.Contains(html, want) {
			t.Errorf("description missing %q", want)
		}
	}
}

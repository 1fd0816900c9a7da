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
	"bytes"
	"testing"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
	"github.com/nd2openbis/core/core/nd2"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

func TestScalePlane(t *testing.T) {
	// 12 bit data spanning the full range
	samples := []uint16{0, 2048, 4095, 5000}
	img := scalePlane(samples, 2, 2, convertModels.DisplayRange{Black: 0, White: 4095})

	exp := []uint8{0, 127, 255, 255}
	for i, want := range exp {
		if img.Pix[i] != want {
			t.Errorf("pixel %v: got %v, want %v", i, img.Pix[i], want)
		}
	}
}

func TestScalePlaneBlackPoint(t *testing.T) {
	// Values at or below black clamp to 0, at or above white to 255
	samples := []uint16{99, 100, 600, 1100, 1101, 0}
	img := scalePlane(samples, 3, 2, convertModels.DisplayRange{Black: 100, White: 1100})

	exp := []uint8{0, 0, 127, 255, 255, 0}
	for i, want := range exp {
		if img.Pix[i] != want {
			t.Errorf("pixel %v: got %v, want %v", i, img.Pix[i], want)
		}
	}
}

func TestValidateSettings(t *testing.T) {
	err := ValidateSettings(convertModels.RenderSettings{
		Ranges: []convertModels.DisplayRange{{Black: 0, White: 4095}, {Black: 500, White: 500}},
	}, 2)
	if !importerror.IsKind(err, importerror.KindRender) {
		t.Errorf("expected render error for black >= white, got %v", err)
	}

	err = ValidateSettings(convertModels.RenderSettings{}, 3)
	if err != nil {
		t.Errorf("default full ranges should validate: %v", err)
	}
}

func renderTestFile(t *testing.T, spec nd2.FileSpec, settings convertModels.RenderSettings) convertModels.OutputData {
	t.Helper()
	f := openTestFile(t, spec)
	meta, err := ExtractMetadata(f)
	if err != nil {
		t.Fatalf("ExtractMetadata failed: %v", err)
	}
	data, err := Render(f, &meta, settings, &logger.NullLogger{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return data
}

func TestRender2D(t *testing.T) {
	// Range 0..255 makes the 8 bit output equal the raw values
	settings := convertModels.RenderSettings{
		Ranges:    []convertModels.DisplayRange{{Black: 0, White: 255}, {Black: 0, White: 255}},
		Composite: true,
	}
	data := renderTestFile(t, makeTestSpec(), settings)

	// 2 timepoints x 2 channels
	if len(data.Planes) != 4 {
		t.Fatalf("expected 4 planes, got %v", len(data.Planes))
	}

	first := data.Planes[0]
	if first.Time != 0 || first.Channel != 0 {
		t.Errorf("first plane: %+v", first)
	}
	if !bytes.Equal(first.Gray.Pix, []byte{100, 101, 102, 103}) {
		t.Errorf("first plane pixels: got %v", first.Gray.Pix)
	}

	// First and last timepoint planes carry the raw TIFF intermediate
	for _, plane := range data.Planes {
		if plane.Raw16 == nil {
			t.Errorf("plane t=%v c=%v missing raw intermediate", plane.Time, plane.Channel)
		}
	}

	// Timestamps got filled in while reading
	if data.Meta.Frames[1].TimestampMs != 1000 {
		t.Errorf("timestamp: got %v", data.Meta.Frames[1].TimestampMs)
	}

	if len(data.Composites) != 2 {
		t.Errorf("expected 2 composites, got %v", len(data.Composites))
	}
	if len(data.Montages) != 2 {
		t.Errorf("expected 2 channel montages, got %v", len(data.Montages))
	}
}

func TestRenderCompositePureRed(t *testing.T) {
	// Channel 0 saturates (raw values all above white), channel 1 goes to
	// black (raw values all below black), so the merge is pure red
	settings := convertModels.RenderSettings{
		Ranges: []convertModels.DisplayRange{
			{Black: 0, White: 50},
			{Black: 60000, White: 60001},
		},
		Composite: true,
	}
	data := renderTestFile(t, makeTestSpec(), settings)

	if len(data.Composites) == 0 {
		t.Fatal("no composites rendered")
	}

	img := data.Composites[0].RGBA
	for i := 0; i < 4; i++ {
		r, g, b, a := img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3]
		if r != 255 || g != 0 || b != 0 || a != 255 {
			t.Errorf("pixel %v: got rgba(%v,%v,%v,%v), want pure red", i, r, g, b, a)
		}
	}
}

func TestRenderDeterminism(t *testing.T) {
	settings := convertModels.RenderSettings{
		Ranges:    []convertModels.DisplayRange{{Black: 0, White: 4095}, {Black: 0, White: 4095}},
		Composite: true,
	}

	first := renderTestFile(t, makeTestSpec(), settings)
	second := renderTestFile(t, makeTestSpec(), settings)

	if len(first.Planes) != len(second.Planes) {
		t.Fatalf("plane counts differ: %v vs %v", len(first.Planes), len(second.Planes))
	}
	for i := range first.Planes {
		if !bytes.Equal(first.Planes[i].Gray.Pix, second.Planes[i].Gray.Pix) {
			t.Errorf("plane %v differs between renders", i)
		}
	}
	for i := range first.Composites {
		if !bytes.Equal(first.Composites[i].RGBA.Pix, second.Composites[i].RGBA.Pix) {
			t.Errorf("composite %v differs between renders", i)
		}
	}
}

func make3DSpec() nd2.FileSpec {
	spec := makeTestSpec()
	spec.Attributes["uiComp"] = uint32(1)
	spec.Attributes["uiSequenceCount"] = uint32(2)
	spec.Experiment["uiLoopCountT"] = uint32(1)
	spec.Experiment["uiLoopCountZ"] = uint32(2)
	spec.PictureMeta = map[string]interface{}{
		"sPicturePlanes": map[string]interface{}{
			"uiCount": uint32(1),
			"Plane_0": map[string]interface{}{"sDescription": "DAPI"},
		},
	}
	spec.Frames = []nd2.FrameSpec{
		{TimestampMs: 0, Samples: []uint16{10, 20, 30, 40}},
		{TimestampMs: 10, Samples: []uint16{40, 10, 20, 35}},
	}
	return spec
}

func TestRender3DProjection(t *testing.T) {
	settings := convertModels.RenderSettings{
		Ranges: []convertModels.DisplayRange{{Black: 0, White: 255}},
		ThreeD: true,
	}
	data := renderTestFile(t, make3DSpec(), settings)

	// Default 3D keeps only the projection
	if len(data.Planes) != 1 {
		t.Fatalf("expected 1 projected plane, got %v", len(data.Planes))
	}

	plane := data.Planes[0]
	if !plane.Projected {
		t.Errorf("plane should be marked projected")
	}
	if !bytes.Equal(plane.Gray.Pix, []byte{40, 20, 30, 40}) {
		t.Errorf("max projection pixels: got %v", plane.Gray.Pix)
	}
	if plane.Raw16 == nil {
		t.Errorf("projection should carry the raw intermediate")
	}
}

func TestRender3DZStack(t *testing.T) {
	settings := convertModels.RenderSettings{
		Ranges: []convertModels.DisplayRange{{Black: 0, White: 255}},
		ThreeD: true,
		ZStack: true,
	}
	data := renderTestFile(t, make3DSpec(), settings)

	// Two slices plus the projection
	if len(data.Planes) != 3 {
		t.Fatalf("expected 3 planes, got %v", len(data.Planes))
	}

	sliceCount := 0
	projectionCount := 0
	for _, plane := range data.Planes {
		if plane.Projected {
			projectionCount++
		} else {
			sliceCount++
		}
	}
	if sliceCount != 2 || projectionCount != 1 {
		t.Errorf("got %v slices, %v projections", sliceCount, projectionCount)
	}
}

func TestRenderMontage(t *testing.T) {
	settings := convertModels.RenderSettings{
		Ranges: []convertModels.DisplayRange{{Black: 0, White: 255}, {Black: 0, White: 255}},
	}
	data := renderTestFile(t, makeTestSpec(), settings)

	if len(data.Montages) != 2 {
		t.Fatalf("expected 2 montages, got %v", len(data.Montages))
	}

	// Rows = timepoints (first, last), columns = positions: 1 position, so
	// the montage is 2 wide, 4 tall
	montage := data.Montages[0]
	if montage.ChannelName != "DAPI" {
		t.Errorf("montage channel: got %v", montage.ChannelName)
	}
	bounds := montage.Gray16.Bounds()
	if bounds.Dx() != 2 || bounds.Dy() != 4 {
		t.Errorf("montage size: got %vx%v", bounds.Dx(), bounds.Dy())
	}

	// Row 0 is timepoint 0, row 1 is the last timepoint
	if v := montage.Gray16.Gray16At(0, 0).Y; v != 100 {
		t.Errorf("montage t0 pixel: got %v", v)
	}
	if v := montage.Gray16.Gray16At(0, 2).Y; v != 110 {
		t.Errorf("montage t1 pixel: got %v", v)
	}
}

func TestRenderBadRange(t *testing.T) {
	f := openTestFile(t, makeTestSpec())
	meta, err := ExtractMetadata(f)
	if err != nil {
		t.Fatalf("ExtractMetadata failed: %v", err)
	}

	_, err = Render(f, &meta, convertModels.RenderSettings{
		Ranges: []convertModels.DisplayRange{{Black: 500, White: 100}},
	}, &logger.NullLogger{})
	if !importerror.IsKind(err, importerror.KindRender) {
		t.Errorf("expected render error, got %v", err)
	}
}

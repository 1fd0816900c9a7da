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

package dataConverter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nd2openbis/core/api/config"
	"github.com/nd2openbis/core/core/fileaccess"
	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
	"github.com/nd2openbis/core/core/nd2"
	"github.com/nd2openbis/core/core/openbis"
	"github.com/nd2openbis/core/core/timestamper"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
	"github.com/nd2openbis/core/data-import/output"
)

func makeTestSpec() nd2.FileSpec {
	return nd2.FileSpec{
		Attributes: map[string]interface{}{
			"uiWidth":         uint32(2),
			"uiHeight":        uint32(2),
			"uiComp":          uint32(2),
			"uiSequenceCount": uint32(2),
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

func writeSourceFile(t *testing.T, name string) string {
	t.Helper()
	sourcePath := filepath.Join(t.TempDir(), name)
	if err := nd2.WriteFile(sourcePath, makeTestSpec()); err != nil {
		t.Fatalf("failed to write test container: %v", err)
	}
	return sourcePath
}

func makeRenderOnlyContext() *ImportContext {
	return &ImportContext{
		Config: config.APIConfig{
			ChannelRanges: []config.ChannelRange{{Black: 0, White: 4095}, {Black: 0, White: 4095}},
			Composite:     true,
			WorkerCount:   1,
		},
		DestFS:      fileaccess.MakeMemoryAccess(),
		DestRoot:    "dest",
		TimeStamper: &timestamper.MockTimeNowStamper{QueuedTimeStamps: []int64{1756684800, 1756684801}},
	}
}

func TestConvertRenderOnly(t *testing.T) {
	ctx := makeRenderOnlyContext()
	sourcePath := writeSourceFile(t, "250301AK35_WNT_001.nd2")

	result, err := ConvertAndImport(ctx, sourcePath, &logger.NullLogger{})
	if err != nil {
		t.Fatalf("ConvertAndImport failed: %v", err)
	}

	if result.FileMeta.Prefix() != "250301AK35" {
		t.Errorf("prefix: got %v", result.FileMeta.Prefix())
	}
	if len(result.SourceHash) != 64 {
		t.Errorf("source hash: got %v", result.SourceHash)
	}
	if len(result.StepPermId) != 0 || len(result.DatasetCode) != 0 {
		t.Errorf("render-only run should not register: %+v", result)
	}

	// 2 timepoints x 2 channels of planes, plus composites and montages
	if len(result.Written.PlanePNGs) != 4 || len(result.Written.Composites) != 2 || len(result.Written.Montages) != 2 {
		t.Errorf("written counts wrong: %+v", result.Written)
	}

	exists, err := ctx.DestFS.ObjectExists(ctx.DestRoot, "250301AK35/250301AK35_p0001/250301AK35_p0001_t00001_z001_w00.png")
	if err != nil || !exists {
		t.Errorf("expected first plane PNG to exist")
	}
}

func TestConvertFallbackNaming(t *testing.T) {
	ctx := makeRenderOnlyContext()
	sourcePath := writeSourceFile(t, "my experiment.nd2")

	result, err := ConvertAndImport(ctx, sourcePath, &logger.NullLogger{})
	if err != nil {
		t.Fatalf("ConvertAndImport failed: %v", err)
	}

	// 1756684800 = 2025-09-01 UTC
	if result.FileMeta.DateCode != "250901" || result.FileMeta.Initials != "XX" {
		t.Errorf("fallback meta: got %+v", result.FileMeta)
	}
	if result.FileMeta.Description != "my experiment" {
		t.Errorf("fallback description: got %v", result.FileMeta.Description)
	}
}

func TestConvertBadFile(t *testing.T) {
	ctx := makeRenderOnlyContext()

	sourcePath := filepath.Join(t.TempDir(), "250301AK35_WNT_001.nd2")
	if err := os.WriteFile(sourcePath, []byte("not a container"), 0666); err != nil {
		t.Fatal(err)
	}

	_, err := ConvertAndImport(ctx, sourcePath, &logger.NullLogger{})
	if !importerror.IsKind(err, importerror.KindFormat) {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestConvertBadRange(t *testing.T) {
	ctx := makeRenderOnlyContext()
	ctx.Config.ChannelRanges = []config.ChannelRange{{Black: 4095, White: 0}}
	sourcePath := writeSourceFile(t, "250301AK35_WNT_001.nd2")

	_, err := ConvertAndImport(ctx, sourcePath, &logger.NullLogger{})
	if !importerror.IsKind(err, importerror.KindRender) {
		t.Errorf("expected render error, got %v", err)
	}
}

// Minimal OpenBIS stand-in for the upload leg
func makeFakeOpenBIS(t *testing.T) (*httptest.Server, *int) {
	uploadCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "session_workspace_file_upload") {
			uploadCount++
			w.Write([]byte("{}"))
			return
		}

		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		respond := func(result interface{}) {
			json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
		}

		switch req.Method {
		case "login":
			respond("token-1")
		case "createSamples":
			respond([]map[string]interface{}{{"permId": "STEP-1"}})
		case "createUploadedDataSet":
			respond(map[string]interface{}{"permId": "DS-1"})
		default:
			respond(map[string]interface{}{})
		}
	}))
	return server, &uploadCount
}

func TestConvertWithUpload(t *testing.T) {
	server, uploadCount := makeFakeOpenBIS(t)
	defer server.Close()

	bis := openbis.NewClient(server.URL, &logger.NullLogger{})
	if err := bis.Login("importer", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	ctx := makeRenderOnlyContext()
	ctx.Bis = bis
	ctx.ExperimentIdent = "/IMAGING/WNT/SCREEN1"

	sourcePath := writeSourceFile(t, "250301AK35_WNT_001.nd2")
	result, err := ConvertAndImport(ctx, sourcePath, &logger.NullLogger{})
	if err != nil {
		t.Fatalf("ConvertAndImport failed: %v", err)
	}

	if result.StepPermId != "STEP-1" || result.DatasetCode != "DS-1" {
		t.Errorf("registration: got %+v", result)
	}

	// Metadata CSV + 2 montages + summary
	if *uploadCount != 4 {
		t.Errorf("expected 4 uploads, got %v", *uploadCount)
	}
}

func TestMakeRenderSettings(t *testing.T) {
	cfg := config.APIConfig{
		ChannelRanges: []config.ChannelRange{{Black: 100, White: 4095}},
	}

	settings := makeRenderSettings(cfg, nd2.Sizes{X: 2, Y: 2, C: 2, Z: 3, T: 1, P: 1})

	// Every channel gets a range, unconfigured ones the full sensor range
	if len(settings.Ranges) != 2 {
		t.Fatalf("expected a range per channel, got %v", settings.Ranges)
	}
	if settings.Ranges[0] != (convertModels.DisplayRange{Black: 100, White: 4095}) {
		t.Errorf("configured range: got %+v", settings.Ranges[0])
	}
	if settings.Ranges[1] != (convertModels.DisplayRange{Black: 0, White: 65535}) {
		t.Errorf("default range: got %+v", settings.Ranges[1])
	}

	// Auto mode goes 3D for a z-stack
	if !settings.ThreeD {
		t.Errorf("expected 3D for z-stack in auto mode")
	}
	if makeRenderSettings(cfg, nd2.Sizes{C: 1, Z: 1}).ThreeD {
		t.Errorf("expected 2D for single z in auto mode")
	}
}

func TestMakeResultsHTML(t *testing.T) {
	meta := convertModels.AcquisitionMetadata{
		ChannelCount:  2,
		PositionCount: 1,
		TimeCount:     1,
		Channels:      []convertModels.ChannelInfo{{Index: 0, Name: "DAPI"}, {Index: 1, Name: "GFP"}},
	}
	settings := convertModels.RenderSettings{Ranges: []convertModels.DisplayRange{{Black: 0, White: 4095}}}
	written := &output.WrittenFiles{
		DatasetDir: "250301AK35",
		PlanePNGs:  []string{"250301AK35/250301AK35_p0001/250301AK35_p0001_t00001_z001_w00.png"},
		Montages:   []string{"250301AK35/DAPI.png"},
	}

	got := makeResultsHTML(meta, settings, written)
	for _, want := range []string{
		"Output folder: 250301AK35",
		"<tr><td>DAPI</td><td>0</td><td>4095</td></tr>",
		// Unconfigured channels fall back to the full sensor range
		"<tr><td>GFP</td><td>0</td><td>65535</td></tr>",
		"<li>DAPI.png</li>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("results html missing %v, got:\n%v", want, got)
		}
	}
}

func TestMakeStepCode(t *testing.T) {
	if code := makeStepCode("250301ak35_wnt/esc 001"); code != "250301AK35_WNT_ESC 001" {
		t.Errorf("step code: got %v", code)
	}
}

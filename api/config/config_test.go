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

package config

import (
	"os"
	"testing"
)

const testConfigJson = `{
    "OpenBISHost": "https://openbis.example.com",
    "OpenBISUser": "importer",
    "TargetSpace": "IMAGING",
    "TargetProject": "WNT",
    "TargetExperiment": "SCREEN1",
    "DestinationPath": "/data/out",
    "ChannelRanges": [{"Black": 100, "White": 3000}],
    "Composite": true,
    "Mode": "2d",
    "WorkerCount": 2
}`

func TestBuildConfig(t *testing.T) {
	cfg, err := buildConfig([]byte(testConfigJson))
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if cfg.OpenBISHost != "https://openbis.example.com" {
		t.Errorf("OpenBISHost: got %v", cfg.OpenBISHost)
	}
	if !cfg.Composite || cfg.Mode != Mode2D || cfg.WorkerCount != 2 {
		t.Errorf("render settings wrong: %+v", cfg)
	}

	r := cfg.RangeForChannel(0)
	if r.Black != 100 || r.White != 3000 {
		t.Errorf("channel 0 range: got %+v", r)
	}

	// Unconfigured channel falls back to full range
	r = cfg.RangeForChannel(5)
	if r.Black != 0 || r.White != 65535 {
		t.Errorf("fallback range: got %+v", r)
	}
}

func TestBuildConfigEnvOverride(t *testing.T) {
	os.Setenv("ND2BIS_CONFIG_OpenBISPassword", "secret!")
	os.Setenv("ND2BIS_CONFIG_AllowReimport", "true")
	os.Setenv("ND2BIS_CONFIG_WorkerCount", "8")
	defer func() {
		os.Unsetenv("ND2BIS_CONFIG_OpenBISPassword")
		os.Unsetenv("ND2BIS_CONFIG_AllowReimport")
		os.Unsetenv("ND2BIS_CONFIG_WorkerCount")
	}()

	cfg, err := buildConfig([]byte(testConfigJson))
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if cfg.OpenBISPassword != "secret!" {
		t.Errorf("password override missing")
	}
	if !cfg.AllowReimport {
		t.Errorf("bool override missing")
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("int override missing, got %v", cfg.WorkerCount)
	}
}

func TestBuildConfigDefaults(t *testing.T) {
	cfg, err := buildConfig([]byte(`{"Mode": "sideways"}`))
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if cfg.WorkerCount != 4 {
		t.Errorf("default worker count: got %v", cfg.WorkerCount)
	}
	if cfg.Mode != ModeAuto {
		t.Errorf("bad mode should fall back to auto, got %v", cfg.Mode)
	}
}

func TestBuildConfigBadJson(t *testing.T) {
	_, err := buildConfig([]byte("{not json"))
	if err == nil {
		t.Errorf("expected error for bad json")
	}
}

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

// Importer configuration as read from strings/JSON and some constants defined here also
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/nd2openbis/core/core/logger"
)

// ChannelRange - display range for one channel, pixels at or below Black
// render as 0, at or above White as 255
type ChannelRange struct {
	Black uint16
	White uint16
}

// Render modes
const ModeAuto = ""
const Mode2D = "2d"
const Mode3D = "3d"

// APIConfig combines env vars and config JSON values
type APIConfig struct {
	// OpenBIS connection
	OpenBISHost     string
	OpenBISUser     string
	OpenBISPassword string

	// Where registered data lands in OpenBIS
	TargetSpace      string
	TargetProject    string
	TargetExperiment string

	// Where rendered output is written. If DestinationBucket is set the
	// destination is S3, otherwise DestinationPath on the local file system
	DestinationPath   string
	DestinationBucket string

	// Rendering
	ChannelRanges []ChannelRange // index = channel, missing channels get the full range
	Composite     bool
	Mode          string // "", "2d" or "3d" - empty picks per file from dimensions
	ZStack        bool   // 3D only: keep per slice images instead of just the projection
	Overwrite     bool

	// Import behaviour
	WorkerCount   int32
	AllowReimport bool
	SkipUpload    bool // Render only, no OpenBIS registration

	EnvironmentName string

	LogLevel logger.LogLevel // Can be changed at runtime, but if importer restarts, it goes back to configured value

	// Mongo connection for the registration ledger. Empty = local mongo
	MongoSecret string

	SentryEndpoint string
}

func NewConfigFromFile(configFilePath string) (APIConfig, error) {
	var cfg APIConfig

	customConfig, err := os.ReadFile(configFilePath)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file at %s", configFilePath)
	}
	return buildConfig(customConfig)
}

func buildConfig(configJson []byte) (APIConfig, error) {
	var cfg APIConfig

	err := json.Unmarshal(configJson, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse custom config: %v", err)
	}

	// Override Config with any values explicitly set in Env Vars (ND2BIS_CONFIG_*)
	// NOTE: For []string slices, pass in a comma-separated string to the corresponding ND2BIS_CONFIG_ var
	reflection := reflect.ValueOf(&cfg).Elem()
	for i := 0; i < reflection.NumField(); i++ {
		fieldName := reflection.Type().Field(i).Name
		field := reflection.Field(i)
		if val, present := os.LookupEnv(fmt.Sprintf("ND2BIS_CONFIG_%s", fieldName)); present {
			switch field.Kind() {
			case reflect.String:
				field.SetString(val)
			case reflect.Bool:
				field.SetBool(val == "true" || val == "1")
			case reflect.Slice:
				if field.Type().Elem().Kind() == reflect.String {
					slicedVal := strings.Split(val, ",")
					field.Set(reflect.ValueOf(slicedVal))
				}

			case reflect.Int32:
				i, err := strconv.Atoi(val)
				if err != nil {
					fmt.Printf("Could not cast value ND2BIS_CONFIG_%s=%s to Int", fieldName, val)
					continue
				}
				field.SetInt(int64(i))
			}
		}
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *APIConfig) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if len(cfg.Mode) > 0 && cfg.Mode != Mode2D && cfg.Mode != Mode3D {
		fmt.Printf("Unrecognised render mode \"%v\", using per-file auto\n", cfg.Mode)
		cfg.Mode = ModeAuto
	}
}

// RangeForChannel - configured range for the given channel index, or the full
// sensor range if none was configured
func (cfg APIConfig) RangeForChannel(channelIdx int) ChannelRange {
	if channelIdx >= 0 && channelIdx < len(cfg.ChannelRanges) {
		return cfg.ChannelRanges[channelIdx]
	}
	return ChannelRange{Black: 0, White: 65535}
}

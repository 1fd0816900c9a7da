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

package output

import (
	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

// SummaryFileData - dataset summary JSON written alongside the images, the
// quick answer to "what is in this folder" without opening the source file
type SummaryFileData struct {
	SourceFile string `json:"sourceFile"`
	SourceHash string `json:"sourceHash"`
	Prefix     string `json:"prefix"`

	DateCode string `json:"dateCode"`
	Initials string `json:"initials"`

	Width  int `json:"width"`
	Height int `json:"height"`

	Channels      []string `json:"channels"`
	TimeCount     int      `json:"timeCount"`
	PositionCount int      `json:"positionCount"`
	ZCount        int      `json:"zCount"`

	PixelSizeUm float64 `json:"pixelSizeUm"`
	Objective   string  `json:"objective"`

	PlaneImageCount     int `json:"planeImageCount"`
	CompositeImageCount int `json:"compositeImageCount"`

	CreationUnixTimeSec int64 `json:"creationUnixTimeSec"`
}

func makeSummaryFileContent(data convertModels.OutputData, written *WrittenFiles, creationUnixTimeSec int64) SummaryFileData {
	channels := []string{}
	for _, ch := range data.Meta.Channels {
		channels = append(channels, ch.Name)
	}

	return SummaryFileData{
		SourceFile:          data.Meta.SourceFile,
		SourceHash:          data.SourceHash,
		Prefix:              data.FileMeta.Prefix(),
		DateCode:            data.FileMeta.DateCode,
		Initials:            data.FileMeta.Initials,
		Width:               data.Meta.Width,
		Height:              data.Meta.Height,
		Channels:            channels,
		TimeCount:           data.Meta.TimeCount,
		PositionCount:       data.Meta.PositionCount,
		ZCount:              data.Meta.ZCount,
		PixelSizeUm:         data.Meta.PixelSizeUm,
		Objective:           data.Meta.Objective,
		PlaneImageCount:     len(written.PlanePNGs),
		CompositeImageCount: len(written.Composites),
		CreationUnixTimeSec: creationUnixTimeSec,
	}
}

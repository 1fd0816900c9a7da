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

// Converting code needs to store everything in these intermediate models,
// which are then understood by the output code that writes the rendered
// images and metadata files
package convertModels

import (
	"fmt"
	"image"
	"sort"

	"github.com/nd2openbis/core/core/nd2filename"
)

// ChannelInfo - one optical configuration of the acquisition
type ChannelInfo struct {
	Index int
	Name  string // eg "DAPI", "GFP"
}

// FrameInfo - acquisition timing for one stored frame
type FrameInfo struct {
	Position    int
	Time        int
	Z           int
	TimestampMs float64
}

// AcquisitionMetadata - everything extracted from a container that rendering,
// file output and the OpenBIS upload need
type AcquisitionMetadata struct {
	SourceFile string
	Version    string

	Width  int
	Height int

	ChannelCount  int
	ZCount        int
	TimeCount     int
	PositionCount int

	BitsPerSampleSignificant int

	PixelSizeUm float64
	Objective   string

	Channels []ChannelInfo
	Frames   []FrameInfo

	// Flattened raw metadata rows that go to the CSV/description verbatim
	Extra map[string]string
}

// Is3D - true if the acquisition has a z dimension
func (m AcquisitionMetadata) Is3D() bool {
	return m.ZCount > 1
}

// ChannelName - name for a channel index, falling back to a generated one
func (m AcquisitionMetadata) ChannelName(channelIdx int) string {
	for _, ch := range m.Channels {
		if ch.Index == channelIdx {
			return ch.Name
		}
	}
	return fmt.Sprintf("channel%02d", channelIdx)
}

// SortedExtraKeys - for deterministic CSV/description output
func (m AcquisitionMetadata) SortedExtraKeys() []string {
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DisplayRange - black/white points for scaling one channel to 8 bit
type DisplayRange struct {
	Black uint16
	White uint16
}

// RenderSettings - how frames get turned into images
type RenderSettings struct {
	Ranges    []DisplayRange // index = channel, missing channels span the full range
	Composite bool
	ThreeD    bool
	ZStack    bool // 3D only: also keep per slice images, not just the projection
}

// RangeForChannel - range for a channel, full range if not configured
func (s RenderSettings) RangeForChannel(channelIdx int) DisplayRange {
	if channelIdx >= 0 && channelIdx < len(s.Ranges) {
		return s.Ranges[channelIdx]
	}
	return DisplayRange{Black: 0, White: 65535}
}

// RenderedPlane - one channel of one frame scaled to 8 bit. Raw16 carries the
// unscaled pixels for planes that also get written as TIFF intermediates,
// nil for the rest.
type RenderedPlane struct {
	Position int
	Time     int
	Z        int
	Channel  int

	// True for a max-intensity projection over z (Z is 0 in that case)
	Projected bool

	Gray  *image.Gray
	Raw16 *image.Gray16
}

// CompositeImage - all channels of one frame merged into RGB
type CompositeImage struct {
	Position int
	Time     int
	Z        int

	// True if the merge was done over max-intensity projections
	Projected bool

	RGBA *image.RGBA
}

// ChannelMontage - overview image for one channel: a grid with timepoints as
// rows and stage positions as columns, taken at the middle z plane, kept at
// 16 bit
type ChannelMontage struct {
	ChannelName string
	Gray16      *image.Gray16
}

// OutputData - the return of the conversion, passed to output and upload
type OutputData struct {
	Meta       AcquisitionMetadata
	FileMeta   nd2filename.FileNameMeta
	SourceHash string
	Settings   RenderSettings

	Planes     []RenderedPlane
	Composites []CompositeImage
	Montages   []ChannelMontage
}

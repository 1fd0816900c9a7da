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

// Turns an open ND2 container into the intermediate models: metadata
// extraction here, image rendering in renderer.go
package nd2convert

import (
	"fmt"
	"path/filepath"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/nd2"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

// Metadata keys as the acquisition software writes them
const calibrationKey = "ImageCalibrationLV|0|SLxCalibration|dCalibration"
const objectiveKey = "ImageCalibrationLV|0|SLxCalibration|Objective"
const laserInfoKey = "ImageTextInfoLV|SLxImageTextInfo|TextInfoItem_6"

func channelNameKey(channelIdx int) string {
	return fmt.Sprintf("ImageMetadataSeqLV|0|SLxPictureMetadata|sPicturePlanes|Plane_%d|sDescription", channelIdx)
}

// ExtractMetadata - pulls everything downstream stages need out of the
// container metadata. The pixel calibration is mandatory: without it the
// rendered images can't be related back to physical dimensions, so we stop
// the import rather than register a dataset missing it.
func ExtractMetadata(f *nd2.File) (convertModels.AcquisitionMetadata, error) {
	sizes := f.Sizes()

	meta := convertModels.AcquisitionMetadata{
		SourceFile:    filepath.Base(f.Path()),
		Version:       f.Version(),
		Width:         sizes.X,
		Height:        sizes.Y,
		ChannelCount:  sizes.C,
		ZCount:        sizes.Z,
		TimeCount:     sizes.T,
		PositionCount: sizes.P,
		Extra:         map[string]string{},
	}

	pixelSize, ok := f.MetaFloat(calibrationKey)
	if !ok || pixelSize <= 0 {
		return meta, importerror.NewMissingField("dCalibration")
	}
	meta.PixelSizeUm = pixelSize

	meta.Objective, _ = f.MetaString(objectiveKey)

	meta.BitsPerSampleSignificant = 16
	if bpc, ok := f.MetaInt("ImageAttributesLV|SLxImageAttributes|uiBpcSignificant"); ok && bpc > 0 {
		meta.BitsPerSampleSignificant = bpc
	}

	for c := 0; c < sizes.C; c++ {
		name, ok := f.MetaString(channelNameKey(c))
		if !ok || len(name) == 0 {
			name = fmt.Sprintf("channel%02d", c)
		}
		meta.Channels = append(meta.Channels, convertModels.ChannelInfo{Index: c, Name: name})
	}

	// One entry per stored frame, in sequence order. Timestamps get filled
	// in as the renderer reads the frames.
	for seqIdx := 0; seqIdx < sizes.FrameCount(); seqIdx++ {
		p, t, z := splitFrameIndex(sizes, seqIdx)
		meta.Frames = append(meta.Frames, convertModels.FrameInfo{Position: p, Time: t, Z: z})
	}

	for k, v := range f.Metadata() {
		meta.Extra[k] = fmt.Sprintf("%v", v)
	}

	return meta, nil
}

// splitFrameIndex - inverse of the frame numbering: sequence index back to
// (position, timepoint, z)
func splitFrameIndex(sizes nd2.Sizes, seqIdx int) (int, int, int) {
	if sizes.Is2D() {
		return seqIdx % sizes.P, seqIdx / sizes.P, 0
	}
	z := seqIdx % sizes.Z
	p := (seqIdx / sizes.Z) % sizes.P
	t := seqIdx / (sizes.Z * sizes.P)
	return p, t, z
}

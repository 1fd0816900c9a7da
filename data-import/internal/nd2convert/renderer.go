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
	"image"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
	"github.com/nd2openbis/core/core/nd2"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

// Channel to colour mapping for composites, by channel index ascending.
// Wraps around past 6 channels.
var compositePalette = []struct{ r, g, b bool }{
	{true, false, false},  // red
	{false, true, false},  // green
	{false, false, true},  // blue
	{true, false, true},   // magenta
	{true, true, false},   // yellow
	{false, true, true},   // cyan
}

// ValidateSettings - checks every channel's display range before any frame is
// read, so a bad range fails the file up front instead of partway through
func ValidateSettings(settings convertModels.RenderSettings, channelCount int) error {
	for c := 0; c < channelCount; c++ {
		r := settings.RangeForChannel(c)
		if r.Black >= r.White {
			return importerror.NewRender("channel %v display range invalid: black %v must be below white %v", c, r.Black, r.White)
		}
	}
	return nil
}

// Render - reads every frame of the container and produces the 8 bit planes,
// composites and channel montages per the settings. Also fills in the frame
// timestamps on the metadata as a side effect of reading.
//
// 3D handling: by default each (position, timepoint) collapses to one
// max-intensity projection per channel. With ZStack set the individual
// slices are kept as well. Projection happens on the raw 16 bit values,
// scaling to 8 bit comes after.
func Render(f *nd2.File, meta *convertModels.AcquisitionMetadata, settings convertModels.RenderSettings, jobLog logger.ILogger) (convertModels.OutputData, error) {
	data := convertModels.OutputData{Settings: settings}

	err := ValidateSettings(settings, meta.ChannelCount)
	if err != nil {
		return data, err
	}

	sizes := f.Sizes()
	threeD := settings.ThreeD && sizes.Z > 1

	middleZ := 0
	if sizes.Z > 1 {
		middleZ = sizes.Z / 2
	}

	// Montage cells: [channel][timeRow][position], raw pixels at middle z
	montageTimes := montageTimeRows(sizes.T)
	montageCells := make([][][][]uint16, sizes.C)
	for c := range montageCells {
		montageCells[c] = make([][][]uint16, len(montageTimes))
		for row := range montageCells[c] {
			montageCells[c][row] = make([][]uint16, sizes.P)
		}
	}

	for t := 0; t < sizes.T; t++ {
		for p := 0; p < sizes.P; p++ {
			// Raw planes for this position+timepoint: [z][channel]
			zPlanes := make([][][]uint16, sizes.Z)

			for z := 0; z < sizes.Z; z++ {
				seqIdx := f.FrameIndex(p, t, z)
				frame, err := f.Frame(seqIdx)
				if err != nil {
					return data, err
				}
				zPlanes[z] = frame.Planes
				meta.Frames[seqIdx].TimestampMs = frame.TimestampMs

				if row, isMontageRow := montageRowForTime(montageTimes, t); isMontageRow && z == middleZ {
					for c := 0; c < sizes.C; c++ {
						montageCells[c][row][p] = frame.Planes[c]
					}
				}
			}

			keepSlices := !threeD || settings.ZStack
			if keepSlices {
				for z := 0; z < sizes.Z; z++ {
					for c := 0; c < sizes.C; c++ {
						plane := convertModels.RenderedPlane{
							Position: p,
							Time:     t,
							Z:        z,
							Channel:  c,
							Gray:     scalePlane(zPlanes[z][c], sizes.X, sizes.Y, settings.RangeForChannel(c)),
						}
						// Middle z of the first and last timepoints also
						// goes out as a 16 bit TIFF intermediate
						if z == middleZ && (t == 0 || t == sizes.T-1) {
							plane.Raw16 = rawPlane(zPlanes[z][c], sizes.X, sizes.Y)
						}
						data.Planes = append(data.Planes, plane)
					}
				}
			}

			if threeD {
				projected := make([]*image.Gray, sizes.C)
				for c := 0; c < sizes.C; c++ {
					rawProjection := maxProject(zPlanes, c)
					plane := convertModels.RenderedPlane{
						Position:  p,
						Time:      t,
						Channel:   c,
						Projected: true,
						Gray:      scalePlane(rawProjection, sizes.X, sizes.Y, settings.RangeForChannel(c)),
					}
					if t == 0 || t == sizes.T-1 {
						plane.Raw16 = rawPlane(rawProjection, sizes.X, sizes.Y)
					}
					projected[c] = plane.Gray
					data.Planes = append(data.Planes, plane)
				}

				if settings.Composite {
					data.Composites = append(data.Composites, convertModels.CompositeImage{
						Position:  p,
						Time:      t,
						Projected: true,
						RGBA:      mergeChannels(projected, sizes.X, sizes.Y),
					})
				}
			}

			if settings.Composite && keepSlices {
				for z := 0; z < sizes.Z; z++ {
					scaled := make([]*image.Gray, sizes.C)
					for c := 0; c < sizes.C; c++ {
						scaled[c] = scalePlane(zPlanes[z][c], sizes.X, sizes.Y, settings.RangeForChannel(c))
					}
					data.Composites = append(data.Composites, convertModels.CompositeImage{
						Position: p,
						Time:     t,
						Z:        z,
						RGBA:     mergeChannels(scaled, sizes.X, sizes.Y),
					})
				}
			}
		}
	}

	for c := 0; c < sizes.C; c++ {
		data.Montages = append(data.Montages, convertModels.ChannelMontage{
			ChannelName: meta.ChannelName(c),
			Gray16:      buildMontage(montageCells[c], sizes.X, sizes.Y),
		})
	}

	jobLog.Infof("Rendered %v planes, %v composites, %v montages from %v", len(data.Planes), len(data.Composites), len(data.Montages), meta.SourceFile)

	data.Meta = *meta
	return data, nil
}

// montageTimeRows - which timepoints become montage rows: first and last,
// or just the one if the acquisition has a single timepoint
func montageTimeRows(timeCount int) []int {
	if timeCount <= 1 {
		return []int{0}
	}
	return []int{0, timeCount - 1}
}

func montageRowForTime(montageTimes []int, t int) (int, bool) {
	for row, rowTime := range montageTimes {
		if rowTime == t {
			return row, true
		}
	}
	return 0, false
}

// scalePlane - linear scale from [black, white] to [0, 255] with clamping
func scalePlane(samples []uint16, width int, height int, r convertModels.DisplayRange) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	span := uint32(r.White - r.Black)

	for i, v := range samples {
		if v <= r.Black {
			img.Pix[i] = 0
		} else if v >= r.White {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = uint8(uint32(v-r.Black) * 255 / span)
		}
	}
	return img
}

// rawPlane - 16 bit image from raw samples (Gray16 stores big-endian)
func rawPlane(samples []uint16, width int, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i, v := range samples {
		img.Pix[i*2] = uint8(v >> 8)
		img.Pix[i*2+1] = uint8(v)
	}
	return img
}

// maxProject - max-intensity projection of one channel over z
func maxProject(zPlanes [][][]uint16, channel int) []uint16 {
	result := make([]uint16, len(zPlanes[0][channel]))
	for _, planes := range zPlanes {
		for i, v := range planes[channel] {
			if v > result[i] {
				result[i] = v
			}
		}
	}
	return result
}

// mergeChannels - additive colour merge of the scaled channel planes, channel
// index picking the colour from the palette. Sums clamp at 255.
func mergeChannels(planes []*image.Gray, width int, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for c, plane := range planes {
		colour := compositePalette[c%len(compositePalette)]
		for i := 0; i < width*height; i++ {
			v := plane.Pix[i]
			base := i * 4
			if colour.r {
				img.Pix[base] = addClamp(img.Pix[base], v)
			}
			if colour.g {
				img.Pix[base+1] = addClamp(img.Pix[base+1], v)
			}
			if colour.b {
				img.Pix[base+2] = addClamp(img.Pix[base+2], v)
			}
		}
	}

	// Fully opaque
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+3] = 255
	}

	return img
}

func addClamp(a uint8, b uint8) uint8 {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}

// buildMontage - grid of raw middle-z planes, rows = timepoints, columns =
// positions. Cells a position never produced stay black.
func buildMontage(cells [][][]uint16, cellWidth int, cellHeight int) *image.Gray16 {
	rows := len(cells)
	cols := 0
	if rows > 0 {
		cols = len(cells[0])
	}

	img := image.NewGray16(image.Rect(0, 0, cols*cellWidth, rows*cellHeight))

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			samples := cells[row][col]
			if samples == nil {
				continue
			}
			for y := 0; y < cellHeight; y++ {
				for x := 0; x < cellWidth; x++ {
					v := samples[y*cellWidth+x]
					offset := img.PixOffset(col*cellWidth+x, row*cellHeight+y)
					img.Pix[offset] = uint8(v >> 8)
					img.Pix[offset+1] = uint8(v)
				}
			}
		}
	}

	return img
}

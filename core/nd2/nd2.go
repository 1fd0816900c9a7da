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

// Reader for Nikon ND2 microscope containers. There is no Go decoder for
// this format so the container layer lives here: chunk directory, variant
// metadata and raw 16-bit frame data. Frames are read lazily, one chunk per
// request, so a multi-gigabyte acquisition never sits in memory whole.
package nd2

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/nd2openbis/core/core/importerror"
)

// Sizes - axis sizes of an acquisition. Axes that the experiment didn't loop
// over are 1, never 0.
type Sizes struct {
	X int // image width in pixels
	Y int // image height in pixels
	C int // channels (components per pixel in frame data)
	Z int // z-stack planes
	T int // timepoints
	P int // stage positions
}

// FrameCount - total number of frame chunks implied by the loop sizes
func (s Sizes) FrameCount() int {
	return s.T * s.P * s.Z
}

// Is2D - a sample with a single z-plane is treated as 2D throughout the
// pipeline, matching how the acquisition software numbers its frames
func (s Sizes) Is2D() bool {
	return s.Z <= 1
}

// Frame - one frame chunk: acquisition timestamp plus one 16-bit plane per
// channel
type Frame struct {
	TimestampMs float64
	Planes      [][]uint16
}

// File - an open ND2 container
type File struct {
	path    string
	f       *os.File
	chunks  map[string]chunkRef
	version string
	meta    map[string]interface{}
	sizes   Sizes
}

// Metadata chunk keys. These follow the vendor SDK naming that other ND2
// tooling (and our operators' existing scripts) expect to see.
const (
	attributesChunk  = "ImageAttributesLV!"
	calibrationChunk = "ImageCalibrationLV|0!"
	experimentChunk  = "ImageMetadataLV!"
	textInfoChunk    = "ImageTextInfoLV!"
	pictureMetaChunk = "ImageMetadataSeqLV|0!"
)

// Open - opens and validates an ND2 container, reading all metadata chunks
// but no frame data
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, importerror.Wrap(importerror.KindFormat, err, "failed to open \"%v\"", path)
	}

	version, err := verifySignature(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	chunks, err := readChunkMap(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	result := &File{
		path:    path,
		f:       f,
		chunks:  chunks,
		version: version,
		meta:    map[string]interface{}{},
	}

	// Decode every metadata chunk up front, they're small. Frame chunks
	// (ImageDataSeq|N!) stay on disk until asked for.
	for name := range chunks {
		if !strings.Contains(name, "LV") {
			continue
		}
		data, err := result.readChunk(name)
		if err != nil {
			f.Close()
			return nil, err
		}

		topName, topValue, _, err := parseVariantEntry(data)
		if err != nil {
			f.Close()
			return nil, err
		}

		// Key prefix is the chunk name without its "!" terminator
		prefix := strings.TrimSuffix(name, "!")
		flattenVariant(prefix+"|"+topName, topValue, result.meta)
	}

	err = result.deriveSizes()
	if err != nil {
		f.Close()
		return nil, err
	}

	return result, nil
}

func (f *File) Close() error {
	return f.f.Close()
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Version() string {
	return f.version
}

func (f *File) Sizes() Sizes {
	return f.sizes
}

// Metadata - the flattened metadata tree, keys are "|" separated paths
func (f *File) Metadata() map[string]interface{} {
	return f.meta
}

// MetaInt - integer metadata lookup, accepting any of the variant int types
func (f *File) MetaInt(key string) (int, bool) {
	v, ok := f.meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return int(n), true
	case uint32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	}
	return 0, false
}

// MetaFloat - float metadata lookup
func (f *File) MetaFloat(key string) (float64, bool) {
	v, ok := f.meta[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

// MetaString - string metadata lookup
func (f *File) MetaString(key string) (string, bool) {
	v, ok := f.meta[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// deriveSizes - pulls the axis sizes out of the attribute and experiment
// metadata. Width/height/components are mandatory, loop counts default to 1.
func (f *File) deriveSizes() error {
	var ok bool
	f.sizes.X, ok = f.MetaInt("ImageAttributesLV|SLxImageAttributes|uiWidth")
	if !ok || f.sizes.X <= 0 {
		return importerror.NewFormat("container missing image width attribute")
	}
	f.sizes.Y, ok = f.MetaInt("ImageAttributesLV|SLxImageAttributes|uiHeight")
	if !ok || f.sizes.Y <= 0 {
		return importerror.NewFormat("container missing image height attribute")
	}

	f.sizes.C = f.metaIntOr("ImageAttributesLV|SLxImageAttributes|uiComp", 1)
	f.sizes.T = f.metaIntOr("ImageMetadataLV|SLxExperiment|uiLoopCountT", 1)
	f.sizes.Z = f.metaIntOr("ImageMetadataLV|SLxExperiment|uiLoopCountZ", 1)
	f.sizes.P = f.metaIntOr("ImageMetadataLV|SLxExperiment|uiLoopCountXY", 1)

	if f.sizes.C <= 0 || f.sizes.T <= 0 || f.sizes.Z <= 0 || f.sizes.P <= 0 {
		return importerror.NewFormat("container has non-positive axis size: %+v", f.sizes)
	}

	// If the writer recorded a sequence count, it must agree with the loops
	if seqCount, ok := f.MetaInt("ImageAttributesLV|SLxImageAttributes|uiSequenceCount"); ok {
		if seqCount != f.sizes.FrameCount() {
			return importerror.NewFormat("sequence count %v does not match loop sizes %+v", seqCount, f.sizes)
		}
	}

	return nil
}

func (f *File) metaIntOr(key string, def int) int {
	v, ok := f.MetaInt(key)
	if !ok {
		return def
	}
	return v
}

// FrameIndex - maps (position, timepoint, z) to the sequence index of the
// frame chunk. 2D acquisitions number frames position-major within each
// timepoint, 3D ones interleave the z-stack per position.
func (f *File) FrameIndex(pos int, t int, z int) int {
	if f.sizes.Is2D() {
		return pos + t*f.sizes.P
	}
	return z + pos*f.sizes.Z + t*f.sizes.P*f.sizes.Z
}

// Frame - reads one frame chunk and deinterleaves it into per-channel planes.
// Restartable: every call re-reads from disk, so a second export pass over
// the same file works.
func (f *File) Frame(seqIndex int) (*Frame, error) {
	if seqIndex < 0 || seqIndex >= f.sizes.FrameCount() {
		return nil, importerror.NewFormat("frame index %v out of range, container has %v frames", seqIndex, f.sizes.FrameCount())
	}

	data, err := f.readChunk(frameChunkName(seqIndex))
	if err != nil {
		return nil, err
	}

	expectedLen := 8 + f.sizes.X*f.sizes.Y*f.sizes.C*2
	if len(data) != expectedLen {
		return nil, importerror.NewFormat("frame %v has %v bytes, expected %v", seqIndex, len(data), expectedLen)
	}

	result := &Frame{
		TimestampMs: float64FromLE(data[0:8]),
		Planes:      make([][]uint16, f.sizes.C),
	}

	pixels := f.sizes.X * f.sizes.Y
	samples := data[8:]
	for c := 0; c < f.sizes.C; c++ {
		result.Planes[c] = make([]uint16, pixels)
	}

	// Frame data is interleaved by component: x fastest, then component
	for i := 0; i < pixels; i++ {
		base := i * f.sizes.C * 2
		for c := 0; c < f.sizes.C; c++ {
			result.Planes[c][i] = uint16(samples[base+c*2]) | uint16(samples[base+c*2+1])<<8
		}
	}

	return result, nil
}

func (f *File) readChunk(name string) ([]byte, error) {
	ref, ok := f.chunks[name]
	if !ok {
		return nil, importerror.NewFormat("container has no \"%v\" chunk", name)
	}

	foundName, data, err := readChunkAt(f.f, ref.offset)
	if err != nil {
		return nil, err
	}
	if foundName != name {
		return nil, importerror.NewFormat("chunk map names \"%v\" at offset %v but found \"%v\"", name, ref.offset, foundName)
	}

	return data, nil
}

func frameChunkName(seqIndex int) string {
	return fmt.Sprintf("ImageDataSeq|%d!", seqIndex)
}

func float64FromLE(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

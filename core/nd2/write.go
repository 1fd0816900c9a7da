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

package nd2

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
)

// Minimal container writer. Real acquisitions come off the microscope, this
// exists to synthesise small containers for unit tests and importer fixtures.

// FrameSpec - one frame of a synthesised container, samples interleaved by
// component (x fastest, then component)
type FrameSpec struct {
	TimestampMs float64
	Samples     []uint16
}

// FileSpec - everything needed to synthesise a container. Each metadata map
// becomes the correspondingly named top level variant in its chunk.
type FileSpec struct {
	Version     string // defaults to "Ver3.0"
	Attributes  map[string]interface{}
	Calibration map[string]interface{}
	Experiment  map[string]interface{}
	TextInfo    map[string]interface{}
	PictureMeta map[string]interface{}
	Frames      []FrameSpec
}

// WriteFile - synthesises a container at the given path
func WriteFile(path string, spec FileSpec) error {
	var buf bytes.Buffer
	err := Write(&buf, spec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0666)
}

// Write - synthesises a container into a buffer
func Write(buf *bytes.Buffer, spec FileSpec) error {
	version := spec.Version
	if len(version) == 0 {
		version = "Ver3.0"
	}

	type mapEntry struct {
		name   string
		offset uint64
		size   uint64
	}
	chunkMap := []mapEntry{}

	writeChunk := func(name string, data []byte) {
		offset := uint64(buf.Len())

		header := make([]byte, chunkHeaderSize)
		binary.LittleEndian.PutUint32(header[0:4], chunkMagic)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(name)))
		binary.LittleEndian.PutUint64(header[8:16], uint64(len(data)))

		buf.Write(header)
		buf.WriteString(name)
		buf.Write(data)

		if name != signatureChunkName {
			chunkMap = append(chunkMap, mapEntry{name: name, offset: offset, size: uint64(len(data))})
		}
	}

	writeChunk(signatureChunkName, []byte(version))

	writeMetaChunk := func(chunkName string, topName string, level map[string]interface{}) {
		if level == nil {
			return
		}
		writeChunk(chunkName, encodeVariantEntry(topName, level))
	}

	writeMetaChunk(attributesChunk, "SLxImageAttributes", spec.Attributes)
	writeMetaChunk(calibrationChunk, "SLxCalibration", spec.Calibration)
	writeMetaChunk(experimentChunk, "SLxExperiment", spec.Experiment)
	writeMetaChunk(textInfoChunk, "SLxImageTextInfo", spec.TextInfo)
	writeMetaChunk(pictureMetaChunk, "SLxPictureMetadata", spec.PictureMeta)

	for i, frame := range spec.Frames {
		data := make([]byte, 8+len(frame.Samples)*2)
		binary.LittleEndian.PutUint64(data[0:8], math.Float64bits(frame.TimestampMs))
		for s, sample := range frame.Samples {
			binary.LittleEndian.PutUint16(data[8+s*2:], sample)
		}
		writeChunk(frameChunkName(i), data)
	}

	// Chunk map: entries for every chunk, then the self-referencing
	// terminator, then the trailing offset pointing back at the map
	mapOffset := uint64(buf.Len())

	var mapData bytes.Buffer
	writeMapEntry := func(name string, offset uint64, size uint64) {
		var entry [4]byte
		binary.LittleEndian.PutUint32(entry[:], uint32(len(name)))
		mapData.Write(entry[:])
		mapData.WriteString(name)

		var loc [16]byte
		binary.LittleEndian.PutUint64(loc[0:8], offset)
		binary.LittleEndian.PutUint64(loc[8:16], size)
		mapData.Write(loc[:])
	}

	for _, entry := range chunkMap {
		writeMapEntry(entry.name, entry.offset, entry.size)
	}
	writeMapEntry(chunkMapName, mapOffset, 0)

	writeChunk(chunkMapName, mapData.Bytes())

	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], mapOffset)
	buf.Write(tail[:])

	return nil
}

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
	"encoding/binary"
	"os"

	"github.com/nd2openbis/core/core/importerror"
)

// Low level chunk container access. An ND2 file is a sequence of named
// chunks: a signature chunk first, data and metadata chunks after it, and a
// chunk map near the tail listing every chunk's offset and size. The final 8
// bytes of the file are the offset of the chunk map chunk.

const chunkMagic = uint32(0x0ABECEDA)

const signatureChunkName = "ND2 FILE SIGNATURE CHUNK NAME01!"
const chunkMapName = "ND2 CHUNK MAP SIGNATURE 0000001!"

const chunkHeaderSize = 16 // magic + name length + data length

type chunkRef struct {
	offset uint64
	size   uint64
}

// readChunkAt - reads one complete chunk at the given offset, returning its
// name and data
func readChunkAt(f *os.File, offset uint64) (string, []byte, error) {
	header := make([]byte, chunkHeaderSize)
	_, err := f.ReadAt(header, int64(offset))
	if err != nil {
		return "", nil, importerror.Wrap(importerror.KindFormat, err, "failed to read chunk header at offset %v", offset)
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != chunkMagic {
		return "", nil, importerror.NewFormat("bad chunk magic 0x%08X at offset %v", magic, offset)
	}

	nameLen := binary.LittleEndian.Uint32(header[4:8])
	dataLen := binary.LittleEndian.Uint64(header[8:16])

	// Chunk names are fixed 32 char strings, anything else means we're
	// reading garbage
	if nameLen == 0 || nameLen > 1024 {
		return "", nil, importerror.NewFormat("bad chunk name length %v at offset %v", nameLen, offset)
	}

	// The declared lengths must fit inside the container before anything is
	// allocated, a truncated or corrupt header can claim any size
	fi, err := f.Stat()
	if err != nil {
		return "", nil, importerror.Wrap(importerror.KindFormat, err, "failed to stat container")
	}
	fileSize := uint64(fi.Size())
	if dataLen > fileSize || offset+chunkHeaderSize+uint64(nameLen)+dataLen > fileSize {
		return "", nil, importerror.NewFormat("chunk at offset %v declares %v data bytes, container is only %v bytes", offset, dataLen, fileSize)
	}

	body := make([]byte, uint64(nameLen)+dataLen)
	_, err = f.ReadAt(body, int64(offset)+chunkHeaderSize)
	if err != nil {
		return "", nil, importerror.Wrap(importerror.KindFormat, err, "failed to read chunk body at offset %v", offset)
	}

	return string(body[0:nameLen]), body[nameLen:], nil
}

// readChunkMap - locates the chunk map via the trailing offset and parses it
// into a name->location index
func readChunkMap(f *os.File) (map[string]chunkRef, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, importerror.Wrap(importerror.KindFormat, err, "failed to stat container")
	}
	if fi.Size() < 8 {
		return nil, importerror.NewFormat("container too small: %v bytes", fi.Size())
	}

	tail := make([]byte, 8)
	_, err = f.ReadAt(tail, fi.Size()-8)
	if err != nil {
		return nil, importerror.Wrap(importerror.KindFormat, err, "failed to read chunk map offset")
	}

	mapOffset := binary.LittleEndian.Uint64(tail)
	if mapOffset >= uint64(fi.Size()) {
		return nil, importerror.NewFormat("chunk map offset %v beyond end of container (%v bytes)", mapOffset, fi.Size())
	}

	name, data, err := readChunkAt(f, mapOffset)
	if err != nil {
		return nil, err
	}
	if name != chunkMapName {
		return nil, importerror.NewFormat("expected chunk map at offset %v, found chunk \"%v\"", mapOffset, name)
	}

	return parseChunkMap(data)
}

// parseChunkMap - chunk map data is repeated [name length][name][offset][size]
// entries, terminated by an entry naming the chunk map itself
func parseChunkMap(data []byte) (map[string]chunkRef, error) {
	result := map[string]chunkRef{}

	for len(data) > 0 {
		if len(data) < 4 {
			return nil, importerror.NewFormat("truncated chunk map entry")
		}
		nameLen := binary.LittleEndian.Uint32(data[0:4])
		data = data[4:]

		if uint64(len(data)) < uint64(nameLen)+16 {
			return nil, importerror.NewFormat("truncated chunk map entry")
		}

		name := string(data[0:nameLen])
		offset := binary.LittleEndian.Uint64(data[nameLen : nameLen+8])
		size := binary.LittleEndian.Uint64(data[nameLen+8 : nameLen+16])
		data = data[uint64(nameLen)+16:]

		if name == chunkMapName {
			// Terminator, self-reference
			return result, nil
		}

		result[name] = chunkRef{offset: offset, size: size}
	}

	return nil, importerror.NewFormat("chunk map missing terminator entry")
}

// verifySignature - the first chunk of every ND2 container is the signature
// chunk, its data holds the format version string
func verifySignature(f *os.File) (string, error) {
	name, data, err := readChunkAt(f, 0)
	if err != nil {
		return "", err
	}
	if name != signatureChunkName {
		return "", importerror.NewFormat("not an ND2 container, first chunk is \"%v\"", name)
	}

	version := string(data)
	if len(version) < 3 || version[0:3] != "Ver" {
		return "", importerror.NewFormat("unrecognised ND2 version \"%v\"", version)
	}

	return version, nil
}

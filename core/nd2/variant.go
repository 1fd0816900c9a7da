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
	"math"
	"sort"
	"unicode/utf16"

	"github.com/nd2openbis/core/core/importerror"
)

// Metadata chunks hold a tagged variant encoding: each entry is a type tag,
// a UTF-16 name and a payload. Compound "level" entries nest further entries,
// giving the tree that we flatten into "|" separated keys, eg
// ImageAttributesLV|SLxImageAttributes|uiWidth

const (
	tagBool   = uint8(1)
	tagInt32  = uint8(2)
	tagUInt32 = uint8(3)
	tagInt64  = uint8(4)
	tagUInt64 = uint8(5)
	tagDouble = uint8(6)
	tagString = uint8(8)
	tagLevel  = uint8(11)
)

// parseVariantEntry - decodes one entry, returning its name, decoded value
// and the remaining bytes
func parseVariantEntry(data []byte) (string, interface{}, []byte, error) {
	if len(data) < 2 {
		return "", nil, nil, importerror.NewFormat("truncated variant entry")
	}

	tag := data[0]
	nameChars := int(data[1])
	data = data[2:]

	if len(data) < nameChars*2 {
		return "", nil, nil, importerror.NewFormat("truncated variant name")
	}

	name := decodeUTF16(data[0 : nameChars*2])
	data = data[nameChars*2:]

	switch tag {
	case tagBool:
		if len(data) < 1 {
			return "", nil, nil, importerror.NewFormat("truncated bool value for \"%v\"", name)
		}
		return name, data[0] != 0, data[1:], nil
	case tagInt32:
		if len(data) < 4 {
			return "", nil, nil, importerror.NewFormat("truncated int32 value for \"%v\"", name)
		}
		return name, int32(binary.LittleEndian.Uint32(data)), data[4:], nil
	case tagUInt32:
		if len(data) < 4 {
			return "", nil, nil, importerror.NewFormat("truncated uint32 value for \"%v\"", name)
		}
		return name, binary.LittleEndian.Uint32(data), data[4:], nil
	case tagInt64:
		if len(data) < 8 {
			return "", nil, nil, importerror.NewFormat("truncated int64 value for \"%v\"", name)
		}
		return name, int64(binary.LittleEndian.Uint64(data)), data[8:], nil
	case tagUInt64:
		if len(data) < 8 {
			return "", nil, nil, importerror.NewFormat("truncated uint64 value for \"%v\"", name)
		}
		return name, binary.LittleEndian.Uint64(data), data[8:], nil
	case tagDouble:
		if len(data) < 8 {
			return "", nil, nil, importerror.NewFormat("truncated double value for \"%v\"", name)
		}
		return name, math.Float64frombits(binary.LittleEndian.Uint64(data)), data[8:], nil
	case tagString:
		// UTF-16LE, zero terminated
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				return name, decodeUTF16(data[0:i]), data[i+2:], nil
			}
		}
		return "", nil, nil, importerror.NewFormat("unterminated string value for \"%v\"", name)
	case tagLevel:
		if len(data) < 4 {
			return "", nil, nil, importerror.NewFormat("truncated level header for \"%v\"", name)
		}
		count := int(binary.LittleEndian.Uint32(data))
		data = data[4:]

		level := map[string]interface{}{}
		for i := 0; i < count; i++ {
			childName, childValue, rest, err := parseVariantEntry(data)
			if err != nil {
				return "", nil, nil, err
			}
			level[childName] = childValue
			data = rest
		}
		return name, level, data, nil
	}

	return "", nil, nil, importerror.NewFormat("unknown variant tag %v for \"%v\"", tag, name)
}

// flattenVariant - recursively flattens a decoded variant tree into
// "|" separated keys, matching the layout tools built on the vendor SDK use
func flattenVariant(prefix string, value interface{}, out map[string]interface{}) {
	level, isLevel := value.(map[string]interface{})
	if !isLevel {
		out[prefix] = value
		return
	}

	for k, v := range level {
		key := k
		if len(prefix) > 0 {
			key = prefix + "|" + k
		}
		flattenVariant(key, v, out)
	}
}

// encodeVariantEntry - inverse of parseVariantEntry, used when synthesising
// containers for tests and fixtures. Level children are written in sorted key
// order so output is deterministic.
func encodeVariantEntry(name string, value interface{}) []byte {
	nameBytes := encodeUTF16(name)

	var out []byte
	appendHeader := func(tag uint8) {
		out = append(out, tag, uint8(len(nameBytes)/2))
		out = append(out, nameBytes...)
	}

	switch v := value.(type) {
	case bool:
		appendHeader(tagBool)
		b := uint8(0)
		if v {
			b = 1
		}
		out = append(out, b)
	case int:
		appendHeader(tagInt32)
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(v)))
	case int32:
		appendHeader(tagInt32)
		out = binary.LittleEndian.AppendUint32(out, uint32(v))
	case uint32:
		appendHeader(tagUInt32)
		out = binary.LittleEndian.AppendUint32(out, v)
	case int64:
		appendHeader(tagInt64)
		out = binary.LittleEndian.AppendUint64(out, uint64(v))
	case uint64:
		appendHeader(tagUInt64)
		out = binary.LittleEndian.AppendUint64(out, v)
	case float64:
		appendHeader(tagDouble)
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
	case string:
		appendHeader(tagString)
		out = append(out, encodeUTF16(v)...)
		out = append(out, 0, 0)
	case map[string]interface{}:
		appendHeader(tagLevel)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(v)))

		keys := []string{}
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, encodeVariantEntry(k, v[k])...)
		}
	default:
		// Writer is only fed by our own code, so an unknown type is a bug
		panic("nd2: cannot encode variant value")
	}

	return out
}

func decodeUTF16(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u))
}

func encodeUTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2)
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[i*2:], c)
	}
	return b
}

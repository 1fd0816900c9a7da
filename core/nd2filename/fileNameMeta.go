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

// File name parser for the lab's acquisition naming convention, allowing us
// to extract metadata from file names like 250301AK35_WNTbiosensors_esc001.nd2
package nd2filename

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/nd2openbis/core/core/importerror"
)

// FileNameMeta - fields encoded in an acquisition file name:
// YYMMDD = acquisition date, II = operator initials, SS = microscope setup
// number, then underscore separated free-form description and sequence parts
type FileNameMeta struct {
	DateCode    string // "250301"
	Initials    string // "AK"
	SetupNumber string // "35"
	Description string // "WNTbiosensors"
	Sequence    string // "esc001"
}

// Prefix - the date+initials+setup block, used for output folder and
// TATexp file naming
func (m FileNameMeta) Prefix() string {
	return m.DateCode + m.Initials + m.SetupNumber
}

// AcquisitionDate - decoded acquisition date
func (m FileNameMeta) AcquisitionDate() (time.Time, error) {
	return time.Parse("060102", m.DateCode)
}

// ParseFileName - parses an acquisition file name. Names that don't follow
// the convention are not fatal for conversion (the operator may have renamed
// the file), so callers can fall back to MakeFallbackMeta, but upload naming
// works best with conforming names.
func ParseFileName(name string) (FileNameMeta, error) {
	result := FileNameMeta{}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if len(base) < 10 {
		return result, importerror.NewFormat("file name \"%v\" too short for naming convention", name)
	}

	dateCode := base[0:6]
	for _, c := range dateCode {
		if !unicode.IsDigit(c) {
			return result, importerror.NewFormat("file name \"%v\" has no leading date code", name)
		}
	}
	if _, err := time.Parse("060102", dateCode); err != nil {
		return result, importerror.NewFormat("file name \"%v\" date code \"%v\" is not a valid date", name, dateCode)
	}

	initials := base[6:8]
	for _, c := range initials {
		if !unicode.IsLetter(c) {
			return result, importerror.NewFormat("file name \"%v\" has no operator initials", name)
		}
	}

	setup := base[8:10]
	for _, c := range setup {
		if !unicode.IsDigit(c) {
			return result, importerror.NewFormat("file name \"%v\" has no setup number", name)
		}
	}

	result.DateCode = dateCode
	result.Initials = strings.ToUpper(initials)
	result.SetupNumber = setup

	// Remainder: _description_sequence, both optional
	rest := strings.TrimPrefix(base[10:], "_")
	parts := strings.Split(rest, "_")
	if len(parts) > 0 {
		result.Description = parts[0]
	}
	if len(parts) > 1 {
		result.Sequence = parts[len(parts)-1]
	}

	return result, nil
}

// MakeFallbackMeta - meta for files that don't follow the convention: the
// whole base name becomes the description, the date comes from the clock
func MakeFallbackMeta(name string, nowUnixSec int64) FileNameMeta {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return FileNameMeta{
		DateCode:    time.Unix(nowUnixSec, 0).UTC().Format("060102"),
		Initials:    "XX",
		SetupNumber: "00",
		Description: base,
	}
}

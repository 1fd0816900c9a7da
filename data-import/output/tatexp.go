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
	"encoding/xml"
	"fmt"
	"regexp"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/nd2filename"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

// TATexp.xml: experiment settings file consumed by the downstream tracking
// tools. Format predates this pipeline, so the element names are fixed.

type tatCountAttr struct {
	Count string `xml:"count,attr"`
}

type tatValueAttr struct {
	Value string `xml:"value,attr"`
}

type tatPosInfoDimension struct {
	Index    string `xml:"index,attr"`
	PosX     string `xml:"posX,attr"`
	PosY     string `xml:"posY,attr"`
	Comments string `xml:"comments,attr"`
}

type tatPositionInformation struct {
	PosInfoDimension tatPosInfoDimension `xml:"PosInfoDimension"`
}

type tatWLInfo struct {
	ImageType string `xml:"ImageType,attr"`
	Name      string `xml:"Name,attr"`
	Height    string `xml:"height,attr"`
	Width     string `xml:"width,attr"`
}

type tatWavelengthInformation struct {
	WLInfo tatWLInfo `xml:"WLInfo"`
}

type tatCellType struct {
	PrimaryCell  tatValueAttr `xml:"PrimaryCell"`
	Name         tatValueAttr `xml:"Name"`
	Species      tatValueAttr `xml:"Species"`
	Sex          tatValueAttr `xml:"Sex"`
	Organ        tatValueAttr `xml:"Organ"`
	Age          tatValueAttr `xml:"Age"`
	Purification tatValueAttr `xml:"Purification"`
	Comment      tatValueAttr `xml:"Comment"`
}

type tatCellsAndConditions struct {
	NumberOfCellTypes tatValueAttr `xml:"NumberOfCellTypes"`
	CellTypes         struct {
		CellType tatCellType `xml:"CNC_CTs_CellType"`
	} `xml:"CellsAndConditions_CellTypes"`
}

type tatSettings struct {
	XMLName xml.Name `xml:"TATSettings"`

	ConvertExperimentVersion string `xml:"TTTConvertExperimentVersion"`

	PositionCount tatCountAttr `xml:"PositionCount"`
	PositionData  struct {
		Positions []tatPositionInformation `xml:"PositionInformation"`
	} `xml:"PositionData"`

	WavelengthCount tatCountAttr `xml:"WavelengthCount"`
	WavelengthData  struct {
		Wavelengths []tatWavelengthInformation `xml:"WavelengthInformation"`
	} `xml:"WavelengthData"`

	CurrentObjectiveMagnification tatValueAttr `xml:"CurrentObjectiveMagnification"`
	CurrentTVAdapterMagnification tatValueAttr `xml:"CurrentTVAdapterMagnification"`

	CellsAndConditions tatCellsAndConditions `xml:"CellsAndConditions"`
}

var objectiveMagnificationRE = regexp.MustCompile(`(\d+)`)

func stagePositionKey(posIdx int, axis string) string {
	return fmt.Sprintf("ImageMetadataLV|SLxExperiment|ppNextLevelEx|i0000000000|uLoopPars|Points|i%010d|dPos%v", posIdx, axis)
}

func makeTATexpXML(meta convertModels.AcquisitionMetadata, fileMeta nd2filename.FileNameMeta) ([]byte, error) {
	settings := tatSettings{
		ConvertExperimentVersion:      "160304",
		PositionCount:                 tatCountAttr{Count: fmt.Sprintf("%v", meta.PositionCount)},
		WavelengthCount:               tatCountAttr{Count: fmt.Sprintf("%v", meta.ChannelCount)},
		CurrentTVAdapterMagnification: tatValueAttr{Value: "1.0"},
	}

	// Objective magnification: first number in the objective name, eg
	// "Plan Apo 20x" -> 20
	magnification := "4"
	if match := objectiveMagnificationRE.FindString(meta.Objective); len(match) > 0 {
		magnification = match
	}
	settings.CurrentObjectiveMagnification = tatValueAttr{Value: magnification}

	for i := 0; i < meta.PositionCount; i++ {
		posX, ok := meta.Extra[stagePositionKey(i, "X")]
		if !ok {
			posX = "0"
		}
		posY, ok := meta.Extra[stagePositionKey(i, "Y")]
		if !ok {
			posY = "0"
		}
		settings.PositionData.Positions = append(settings.PositionData.Positions, tatPositionInformation{
			PosInfoDimension: tatPosInfoDimension{
				Index: fmt.Sprintf("%04d", i+1),
				PosX:  posX,
				PosY:  posY,
			},
		})
	}

	for c := 0; c < meta.ChannelCount; c++ {
		settings.WavelengthData.Wavelengths = append(settings.WavelengthData.Wavelengths, tatWavelengthInformation{
			WLInfo: tatWLInfo{
				ImageType: "png",
				Name:      fmt.Sprintf("%02d", c),
				Height:    fmt.Sprintf("%v", meta.Height),
				Width:     fmt.Sprintf("%v", meta.Width),
			},
		})
	}

	settings.CellsAndConditions.NumberOfCellTypes = tatValueAttr{Value: "1"}

	content, err := xml.Marshal(settings)
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIO, err, "failed to build TATexp settings for %v", fileMeta.Prefix())
	}

	return append([]byte(xml.Header), content...), nil
}

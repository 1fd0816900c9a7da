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
	"fmt"
	"html"
	"strings"

	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

const macroCommandKey = "ImageMetadataLV|SLxExperiment|ppNextLevelEx|i0000000000|wsCommandBeforeCapture"

// InfoRow - one key/value row of the general metadata table
type InfoRow struct {
	Key   string
	Value string
}

// GeneralInfoRows - the headline metadata shown on the experimental step
func GeneralInfoRows(meta convertModels.AcquisitionMetadata) []InfoRow {
	channelNames := []string{}
	for _, ch := range meta.Channels {
		channelNames = append(channelNames, ch.Name)
	}

	macroCommand, hasMacro := meta.Extra[macroCommandKey]
	macroActive := "No"
	if hasMacro {
		macroActive = "Yes"
	} else {
		macroCommand = "N/A"
	}

	return []InfoRow{
		{"File Dimensions", fmt.Sprintf("T=%v, P=%v, Z=%v, C=%v", meta.TimeCount, meta.PositionCount, meta.ZCount, meta.ChannelCount)},
		{"Resolution", fmt.Sprintf("%vx%v", meta.Width, meta.Height)},
		{"Objective", meta.Objective},
		{"Pixel Size (um)", fmt.Sprintf("%v", meta.PixelSizeUm)},
		{"Channels", strings.Join(channelNames, ", ")},
		{"Macro Active", macroActive},
		{"Macro Command", macroCommand},
		{"Number of Positions", fmt.Sprintf("%v", meta.PositionCount)},
	}
}

// DescriptionHTML - the experimental description property: general metadata
// table followed by the laser configuration table
func DescriptionHTML(meta convertModels.AcquisitionMetadata) string {
	generalRows := [][]string{}
	for _, row := range GeneralInfoRows(meta) {
		generalRows = append(generalRows, []string{row.Key, row.Value})
	}
	generalTable := htmlTable([]string{"Key", "Value"}, generalRows)

	laserRows := [][]string{}
	for _, laser := range ParseLaserInfo(meta.Extra[laserInfoKey]) {
		laserRows = append(laserRows, []string{
			laser.Wavelength, laser.Detector, laser.Scanner, laser.EmissionRange,
			laser.Gain, laser.Power, laser.Zoom, laser.LineAveraging,
		})
	}
	laserTable := htmlTable(
		[]string{"Laser Wavelength", "Detector", "Scanner", "Emission Range", "Gain", "Laser Power", "Zoom", "Line Averaging"},
		laserRows,
	)

	return generalTable + "<br><br>" + laserTable + "<br><br>"
}

func htmlTable(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("<table border='1'>")

	sb.WriteString("<tr>")
	for _, header := range headers {
		sb.WriteString("<th>" + html.EscapeString(header) + "</th>")
	}
	sb.WriteString("</tr>")

	for _, row := range rows {
		sb.WriteString("<tr>")
		for _, cell := range row {
			sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		sb.WriteString("</tr>")
	}

	sb.WriteString("</table>")
	return sb.String()
}

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

import "strings"

// LaserSetting - one laser line's configuration as recorded in the free-text
// capture info block
type LaserSetting struct {
	Wavelength    string // eg "Laser 488 nm"
	Detector      string
	Scanner       string
	EmissionRange string
	Gain          string
	Power         string
	Zoom          string
	LineAveraging string
}

// ParseLaserInfo - parses the acquisition software's free-text capture info
// into per-laser rows. The block lists settings line by line, a "Zoom:" line
// closes out the laser that's currently open.
func ParseLaserInfo(raw string) []LaserSetting {
	settings := []LaserSetting{}

	current := newLaserSetting()
	haveLaser := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "Scanner"):
			current.Scanner = afterColon(line)
		case strings.HasPrefix(line, "Detector"):
			current.Detector = afterColon(line)
		case strings.HasPrefix(line, "Gain"):
			current.Gain = afterColon(line)
		case strings.HasPrefix(line, "Line Averaging"):
			current.LineAveraging = afterColon(line)
		case strings.HasPrefix(line, "Emission Range"):
			current.EmissionRange = afterColon(line)
		case strings.HasPrefix(line, "Laser") && strings.Contains(line, "nm"):
			current.Wavelength = strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
			haveLaser = true
		case haveLaser && strings.Contains(line, "Power:"):
			current.Power = afterColon(line)
		case strings.HasPrefix(line, "Zoom:"):
			current.Zoom = afterColon(line)
			if haveLaser {
				settings = append(settings, current)
				current = newLaserSetting()
				haveLaser = false
			}
		}
	}

	return settings
}

func newLaserSetting() LaserSetting {
	return LaserSetting{
		Detector:      "Unknown",
		Scanner:       "Unknown",
		Gain:          "Unknown",
		Power:         "Unknown",
		EmissionRange: "Unknown",
		Zoom:          "Unknown",
		LineAveraging: "N/A",
	}
}

func afterColon(line string) string {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

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

package nd2filename

import "fmt"

func Example_parseFileName() {
	meta, err := ParseFileName("/data/scope35/250301AK35_WNTbiosensors_esc001.nd2")
	fmt.Printf("%v|%+v\n", err, meta)

	// Output:
	// <nil>|{DateCode:250301 Initials:AK SetupNumber:35 Description:WNTbiosensors Sequence:esc001}
}

func Example_parseFileName_noDescription() {
	meta, err := ParseFileName("250301AK35.nd2")
	fmt.Printf("%v|%v|%v\n", err, meta.Prefix(), meta.Description)

	// Output:
	// <nil>|250301AK35|
}

func Example_parseFileName_lowerCaseInitials() {
	meta, err := ParseFileName("250301ak35_test_001.nd2")
	fmt.Printf("%v|%v\n", err, meta.Initials)

	// Output:
	// <nil>|AK
}

func Example_parseFileName_badDate() {
	_, err := ParseFileName("259999AK35_test_001.nd2")
	fmt.Printf("%v\n", err)

	// Output:
	// format error: file name "259999AK35_test_001.nd2" date code "259999" is not a valid date
}

func Example_parseFileName_nonConforming() {
	_, err := ParseFileName("my experiment.nd2")
	fmt.Printf("%v\n", err)

	// Output:
	// format error: file name "my experiment.nd2" has no leading date code
}

func Example_makeFallbackMeta() {
	// 2022-06-01 00:00:00 UTC
	meta := MakeFallbackMeta("my experiment.nd2", 1654041600)
	fmt.Printf("%+v\n", meta)

	// Output:
	// {DateCode:220601 Initials:XX SetupNumber:00 Description:my experiment Sequence:}
}

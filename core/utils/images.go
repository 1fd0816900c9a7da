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

package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
)

// EncodePNG - returns PNG bytes for an image. PNG is lossless so an 8-bit
// render written and re-read gives identical pixel values.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImagesEqual - compares 2 image files pixel by pixel
func ImagesEqual(aPath, bPath string) error {
	imgbytes, err := os.ReadFile(aPath)
	if err != nil {
		return err
	}

	a, _, err := image.Decode(bytes.NewReader(imgbytes))
	if err != nil {
		return err
	}

	imgbytes, err = os.ReadFile(bPath)
	if err != nil {
		return err
	}

	b, _, err := image.Decode(bytes.NewReader(imgbytes))
	if err != nil {
		return err
	}

	return imagesEqual(a, b)
}

// ImageBytesEqual - compares 2 encoded images pixel by pixel
func ImageBytesEqual(aBytes, bBytes []byte) error {
	a, _, err := image.Decode(bytes.NewReader(aBytes))
	if err != nil {
		return err
	}

	b, _, err := image.Decode(bytes.NewReader(bBytes))
	if err != nil {
		return err
	}

	return imagesEqual(a, b)
}

func imagesEqual(a, b image.Image) error {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return fmt.Errorf("image bounds not equal: %+v, %+v", a.Bounds(), b.Bounds())
	}

	errs := ""
	for x := a.Bounds().Min.X; x < a.Bounds().Max.X; x++ {
		for y := a.Bounds().Min.Y; y < a.Bounds().Max.Y; y++ {
			aR, aG, aB, aA := a.At(x, y).RGBA()
			bR, bG, bB, bA := b.At(x, y).RGBA()
			if aR != bR || aG != bG || aB != bB || aA != bA {
				errs += fmt.Sprintf("image pixels at %v,%v not equal: %+v, %+v\n", x, y, a.At(x, y), b.At(x, y))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}

	return nil
}

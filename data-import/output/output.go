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

// Writes the rendered image products and metadata files to the destination
// (local directory or S3 bucket, behind FileAccess)
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"image"
	"path"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/nd2openbis/core/core/fileaccess"
	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
	"github.com/nd2openbis/core/core/utils"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
)

// ImageSaver - module to save the internal representation of a converted
// acquisition
type ImageSaver struct {
	fs        fileaccess.FileAccess
	destRoot  string
	overwrite bool
}

func MakeImageSaver(fs fileaccess.FileAccess, destRoot string, overwrite bool) *ImageSaver {
	return &ImageSaver{fs: fs, destRoot: destRoot, overwrite: overwrite}
}

// WrittenFiles - everything Save wrote, as paths relative to the destination
// root. The upload stage reads the attachment set back through the same
// FileAccess.
type WrittenFiles struct {
	DatasetDir  string
	PlanePNGs   []string
	Composites  []string
	Montages    []string
	TIFFs       []string
	MetadataCSV string
	TATexpXML   string
	Summary     string
}

// AttachmentPaths - the subset of written files that gets attached to the
// OpenBIS experimental step: metadata CSV plus the channel montages
func (w WrittenFiles) AttachmentPaths() []string {
	result := []string{w.MetadataCSV}
	result = append(result, w.Montages...)
	return result
}

// Save - writes all image products and metadata files for one acquisition.
// Every path collision fails with an IO error unless overwrite was allowed,
// so two imports of differently named files that map to the same prefix
// can't silently shred each other's output.
func (s *ImageSaver) Save(data convertModels.OutputData, creationUnixTimeSec int64, jobLog logger.ILogger) (*WrittenFiles, error) {
	prefix := data.FileMeta.Prefix()
	written := &WrittenFiles{DatasetDir: prefix}

	jobLog.Infof("Writing image products for %v to %v...", data.Meta.SourceFile, path.Join(s.destRoot, prefix))

	for _, plane := range data.Planes {
		posDir := positionDir(prefix, plane.Position)

		planePath := path.Join(posDir, planeFileName(prefix, plane))
		err := s.writeImage(planePath, plane.Gray)
		if err != nil {
			return nil, err
		}
		written.PlanePNGs = append(written.PlanePNGs, planePath)

		if plane.Raw16 != nil {
			tiffPath := path.Join(posDir, tiffFileName(plane))
			err = s.writeTIFF(tiffPath, plane.Raw16)
			if err != nil {
				return nil, err
			}
			written.TIFFs = append(written.TIFFs, tiffPath)
		}
	}

	for _, composite := range data.Composites {
		compositePath := path.Join(positionDir(prefix, composite.Position), compositeFileName(prefix, composite))
		err := s.writeImage(compositePath, composite.RGBA)
		if err != nil {
			return nil, err
		}
		written.Composites = append(written.Composites, compositePath)
	}

	for _, montage := range data.Montages {
		montagePath := path.Join(prefix, fileaccess.MakeValidObjectName(montage.ChannelName)+".png")
		err := s.writeImage(montagePath, montage.Gray16)
		if err != nil {
			return nil, err
		}
		written.Montages = append(written.Montages, montagePath)
	}

	csvPath := path.Join(prefix, metadataCSVName(data.Meta.SourceFile))
	err := s.writeBytes(csvPath, makeMetadataCSV(data.Meta))
	if err != nil {
		return nil, err
	}
	written.MetadataCSV = csvPath

	xmlContent, err := makeTATexpXML(data.Meta, data.FileMeta)
	if err != nil {
		return nil, err
	}
	xmlPath := path.Join(prefix, prefix+"_TATexp.xml")
	err = s.writeBytes(xmlPath, xmlContent)
	if err != nil {
		return nil, err
	}
	written.TATexpXML = xmlPath

	summaryPath := path.Join(prefix, prefix+"_summary.json")
	err = s.checkCollision(summaryPath)
	if err != nil {
		return nil, err
	}
	err = s.fs.WriteJSON(s.destRoot, summaryPath, makeSummaryFileContent(data, written, creationUnixTimeSec))
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIO, err, "failed to write %v", summaryPath)
	}
	written.Summary = summaryPath

	jobLog.Infof("Wrote %v plane images, %v composites, %v montages, %v intermediates",
		len(written.PlanePNGs), len(written.Composites), len(written.Montages), len(written.TIFFs))

	return written, nil
}

func positionDir(prefix string, pos int) string {
	return path.Join(prefix, fmt.Sprintf("%v_p%04d", prefix, pos+1))
}

// File names carry 1-based position/time/z to match what operators see in
// the acquisition software. Channel stays 0-based, also matching it.
func planeFileName(prefix string, plane convertModels.RenderedPlane) string {
	if plane.Projected {
		return fmt.Sprintf("%v_p%04d_t%05d_max_w%02d.png", prefix, plane.Position+1, plane.Time+1, plane.Channel)
	}
	return fmt.Sprintf("%v_p%04d_t%05d_z%03d_w%02d.png", prefix, plane.Position+1, plane.Time+1, plane.Z+1, plane.Channel)
}

func tiffFileName(plane convertModels.RenderedPlane) string {
	if plane.Projected {
		return fmt.Sprintf("channel_%d_time_%d_max.tiff", plane.Channel, plane.Time)
	}
	return fmt.Sprintf("channel_%d_time_%d_z_%d.tiff", plane.Channel, plane.Time, plane.Z)
}

func compositeFileName(prefix string, composite convertModels.CompositeImage) string {
	if composite.Projected {
		return fmt.Sprintf("%v_p%04d_t%05d_max_composite.png", prefix, composite.Position+1, composite.Time+1)
	}
	return fmt.Sprintf("%v_p%04d_t%05d_z%03d_composite.png", prefix, composite.Position+1, composite.Time+1, composite.Z+1)
}

func metadataCSVName(sourceFile string) string {
	return strings.TrimSuffix(sourceFile, path.Ext(sourceFile)) + "_metadata.csv"
}

func (s *ImageSaver) checkCollision(relPath string) error {
	if s.overwrite {
		return nil
	}
	exists, err := s.fs.ObjectExists(s.destRoot, relPath)
	if err != nil {
		return importerror.Wrap(importerror.KindIO, err, "failed to check for %v", relPath)
	}
	if exists {
		return importerror.NewIO("output %v already exists, use overwrite to replace it", relPath)
	}
	return nil
}

func (s *ImageSaver) writeBytes(relPath string, content []byte) error {
	err := s.checkCollision(relPath)
	if err != nil {
		return err
	}
	err = s.fs.WriteObject(s.destRoot, relPath, content)
	if err != nil {
		return importerror.Wrap(importerror.KindIO, err, "failed to write %v", relPath)
	}
	return nil
}

func (s *ImageSaver) writeImage(relPath string, img image.Image) error {
	content, err := utils.EncodePNG(img)
	if err != nil {
		return importerror.Wrap(importerror.KindIO, err, "failed to encode %v", relPath)
	}
	return s.writeBytes(relPath, content)
}

func (s *ImageSaver) writeTIFF(relPath string, img image.Image) error {
	var buf bytes.Buffer
	err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	if err != nil {
		return importerror.Wrap(importerror.KindIO, err, "failed to encode %v", relPath)
	}
	return s.writeBytes(relPath, buf.Bytes())
}

// makeMetadataCSV - the full flattened metadata as Key,Value rows, sorted
// for deterministic output
func makeMetadataCSV(meta convertModels.AcquisitionMetadata) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"Key", "Value"})
	for _, key := range meta.SortedExtraKeys() {
		w.Write([]string{key, meta.Extra[key]})
	}
	w.Flush()

	return buf.Bytes()
}

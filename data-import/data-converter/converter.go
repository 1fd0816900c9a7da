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

// All acquisition conversions are started through here: one source file in,
// rendered products out, registered in OpenBIS and remembered in the ledger
package dataConverter

import (
	"fmt"
	"html"
	"path"
	"path/filepath"
	"strings"

	"github.com/nd2openbis/core/api/config"
	"github.com/nd2openbis/core/core/fileaccess"
	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
	"github.com/nd2openbis/core/core/nd2"
	"github.com/nd2openbis/core/core/nd2filename"
	"github.com/nd2openbis/core/core/openbis"
	"github.com/nd2openbis/core/core/registration"
	"github.com/nd2openbis/core/core/timestamper"
	"github.com/nd2openbis/core/core/utils"
	"github.com/nd2openbis/core/data-import/internal/convertModels"
	"github.com/nd2openbis/core/data-import/internal/nd2convert"
	"github.com/nd2openbis/core/data-import/output"
)

// ImportContext - shared services for a batch of conversions. Bis and Ledger
// may be nil for render-only runs.
type ImportContext struct {
	Config config.APIConfig

	// Destination the rendered products are written to
	DestFS   fileaccess.FileAccess
	DestRoot string

	Bis             *openbis.Client
	ExperimentIdent string

	Ledger *registration.Ledger

	TimeStamper timestamper.ITimeStamper
}

// ImportResult - what one conversion produced
type ImportResult struct {
	SourceFile string
	SourceHash string
	FileMeta   nd2filename.FileNameMeta
	Written    *output.WrittenFiles

	// Empty for render-only runs
	StepPermId  string
	DatasetCode string
}

// ConvertAndImport - the full pipeline for one source file: parse the file
// name, hash, check the ledger, extract, render, write output, register in
// OpenBIS and record the registration
func ConvertAndImport(ctx *ImportContext, sourcePath string, jobLog logger.ILogger) (*ImportResult, error) {
	sourceFile := filepath.Base(sourcePath)
	jobLog.Infof("Importing %v...", sourceFile)

	fileMeta, err := nd2filename.ParseFileName(sourcePath)
	if err != nil {
		// Not fatal, the operator may have renamed the file
		jobLog.Infof("File name doesn't follow naming convention (%v), using fallback naming", err)
		fileMeta = nd2filename.MakeFallbackMeta(sourcePath, ctx.TimeStamper.GetTimeNowSec())
	}

	sourceHash, err := utils.FileSHA256(sourcePath)
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIO, err, "failed to hash %v", sourceFile)
	}

	if ctx.Ledger != nil {
		err = ctx.Ledger.CheckNotRegistered(sourceHash, sourceFile, ctx.Config.AllowReimport)
		if err != nil {
			return nil, err
		}
	}

	f, err := nd2.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta, err := nd2convert.ExtractMetadata(f)
	if err != nil {
		return nil, err
	}

	settings := makeRenderSettings(ctx.Config, f.Sizes())
	data, err := nd2convert.Render(f, &meta, settings, jobLog)
	if err != nil {
		return nil, err
	}
	data.FileMeta = fileMeta
	data.SourceHash = sourceHash

	saver := output.MakeImageSaver(ctx.DestFS, ctx.DestRoot, ctx.Config.Overwrite)
	written, err := saver.Save(data, ctx.TimeStamper.GetTimeNowSec(), jobLog)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		SourceFile: sourceFile,
		SourceHash: sourceHash,
		FileMeta:   fileMeta,
		Written:    written,
	}

	if ctx.Bis == nil {
		jobLog.Infof("Render-only run, skipping OpenBIS registration for %v", sourceFile)
		return result, nil
	}

	stepName := utils.FileNameNoExt(sourceFile)
	stepPermId, err := ctx.Bis.CreateExperimentalStep(
		ctx.ExperimentIdent,
		makeStepCode(stepName),
		stepName,
		nd2convert.DescriptionHTML(data.Meta),
		makeResultsHTML(data.Meta, data.Settings, written),
	)
	if err != nil {
		return nil, err
	}
	result.StepPermId = stepPermId

	uploads, err := readAttachments(ctx, written)
	if err != nil {
		return nil, err
	}

	datasetCode, err := ctx.Bis.RegisterDataset(stepPermId, "Metadata and Composite Images", uploads)
	if err != nil {
		return nil, err
	}
	result.DatasetCode = datasetCode

	if ctx.Ledger != nil {
		err = ctx.Ledger.RecordRegistration(registration.Registration{
			SourceHash:            sourceHash,
			SourceFile:            sourceFile,
			ExperimentIdent:       ctx.ExperimentIdent,
			StepPermId:            stepPermId,
			DatasetCode:           datasetCode,
			RegisteredUnixTimeSec: ctx.TimeStamper.GetTimeNowSec(),
		})
		if err != nil {
			return nil, err
		}
	}

	jobLog.Infof("Imported %v as dataset %v", sourceFile, datasetCode)
	return result, nil
}

// makeRenderSettings - resolves the configured render options against the
// file's dimensions. Auto mode goes 3D when the file has a z-stack.
func makeRenderSettings(cfg config.APIConfig, sizes nd2.Sizes) convertModels.RenderSettings {
	settings := convertModels.RenderSettings{
		Composite: cfg.Composite,
		ZStack:    cfg.ZStack,
	}

	switch cfg.Mode {
	case config.Mode2D:
		settings.ThreeD = false
	case config.Mode3D:
		settings.ThreeD = true
	default:
		settings.ThreeD = sizes.Z > 1
	}

	for c := 0; c < sizes.C; c++ {
		r := cfg.RangeForChannel(c)
		settings.Ranges = append(settings.Ranges, convertModels.DisplayRange{Black: r.Black, White: r.White})
	}

	return settings
}

// makeStepCode - OpenBIS sample codes allow upper case alphanumerics plus a
// few separators, so normalise the file name into that shape
func makeStepCode(stepName string) string {
	return strings.ToUpper(fileaccess.MakeValidObjectName(stepName))
}

// makeResultsHTML - the experimental results property: where the output went,
// what was rendered with which black/white points, and which overview images
// to look at
func makeResultsHTML(meta convertModels.AcquisitionMetadata, settings convertModels.RenderSettings, written *output.WrittenFiles) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<p>Output folder: %v</p>", written.DatasetDir))
	sb.WriteString(fmt.Sprintf("<p>Rendered %v plane images and %v composites from %v positions, %v timepoints, %v channels.</p>",
		len(written.PlanePNGs), len(written.Composites), meta.PositionCount, meta.TimeCount, meta.ChannelCount))

	sb.WriteString("<table border='1'><tr><th>Channel</th><th>Black point</th><th>White point</th></tr>")
	for c := 0; c < meta.ChannelCount; c++ {
		r := settings.RangeForChannel(c)
		sb.WriteString(fmt.Sprintf("<tr><td>%v</td><td>%v</td><td>%v</td></tr>", html.EscapeString(meta.ChannelName(c)), r.Black, r.White))
	}
	sb.WriteString("</table>")

	sb.WriteString("<ul>")
	for _, montagePath := range written.Montages {
		sb.WriteString("<li>" + path.Base(montagePath) + "</li>")
	}
	sb.WriteString("</ul>")

	return sb.String()
}

// readAttachments - reads the attachment set back from the destination so it
// can be pushed into the OpenBIS session workspace
func readAttachments(ctx *ImportContext, written *output.WrittenFiles) ([]openbis.UploadFile, error) {
	uploads := []openbis.UploadFile{}

	attachmentPaths := append(written.AttachmentPaths(), written.Summary)
	for _, attachmentPath := range attachmentPaths {
		content, err := ctx.DestFS.ReadObject(ctx.DestRoot, attachmentPath)
		if err != nil {
			return nil, importerror.Wrap(importerror.KindIO, err, "failed to read attachment %v", attachmentPath)
		}
		uploads = append(uploads, openbis.UploadFile{Name: path.Base(attachmentPath), Data: content})
	}

	return uploads, nil
}

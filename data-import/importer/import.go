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

// Runs a batch of acquisition imports through a worker pool against one
// OpenBIS session
package importer

import (
	"fmt"
	"sync"

	"github.com/nd2openbis/core/core/logger"
	dataConverter "github.com/nd2openbis/core/data-import/data-converter"
)

// FileResult - outcome for one source file of the batch
type FileResult struct {
	SourceFile string
	Result     *dataConverter.ImportResult
	Err        error
}

// BatchSummary - outcomes for the whole batch. One file failing doesn't stop
// the others, the summary says which were which.
type BatchSummary struct {
	Succeeded []FileResult
	Failed    []FileResult
}

// ImportFiles - converts and imports the given source files, WorkerCount at a
// time. The context's OpenBIS session and ledger are shared across workers,
// both are safe for concurrent use.
func ImportFiles(ctx *dataConverter.ImportContext, sourcePaths []string, log logger.ILogger) BatchSummary {
	workerCount := int(ctx.Config.WorkerCount)
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(sourcePaths) {
		workerCount = len(sourcePaths)
	}

	log.Infof("Importing %v files with %v workers...", len(sourcePaths), workerCount)

	jobs := make(chan string, len(sourcePaths))
	for _, sourcePath := range sourcePaths {
		jobs <- sourcePath
	}
	close(jobs)

	var mu sync.Mutex
	summary := BatchSummary{}

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sourcePath := range jobs {
				result, err := convertOne(ctx, sourcePath, log)

				mu.Lock()
				if err != nil {
					log.Errorf("Import of %v failed: %v", sourcePath, err)
					summary.Failed = append(summary.Failed, FileResult{SourceFile: sourcePath, Err: err})
				} else {
					summary.Succeeded = append(summary.Succeeded, FileResult{SourceFile: sourcePath, Result: result})
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	log.Infof("Batch done: %v succeeded, %v failed", len(summary.Succeeded), len(summary.Failed))
	return summary
}

// convertOne - a panic converting one file becomes that file's failure, it
// must not take the rest of the batch down with it
func convertOne(ctx *dataConverter.ImportContext, sourcePath string, log logger.ILogger) (result *dataConverter.ImportResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion panic: %v", r)
		}
	}()
	return dataConverter.ConvertAndImport(ctx, sourcePath, log)
}

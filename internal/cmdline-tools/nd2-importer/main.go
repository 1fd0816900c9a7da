// Copyright (c) 2018-2022 California Institute of Technology (“Caltech”). U.S.
// Government sponsorship acknowledged.
// All rights reserved.
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
// * Neither the name of Caltech nor its operating division, the Jet Propulsion
//   Laboratory, nor the names of its contributors may be used to endorse or
//   promote products derived from this software without specific prior written
//   permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT OWNER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/nd2openbis/core/api/config"
	"github.com/nd2openbis/core/core/awsutil"
	"github.com/nd2openbis/core/core/fileaccess"
	"github.com/nd2openbis/core/core/logger"
	"github.com/nd2openbis/core/core/openbis"
	"github.com/nd2openbis/core/core/registration"
	"github.com/nd2openbis/core/core/timestamper"
	dataConverter "github.com/nd2openbis/core/data-import/data-converter"
	"github.com/nd2openbis/core/data-import/importer"
)

const toolVersion = "1.0.0"

func main() {
	fmt.Println("==============================")
	fmt.Println("=    ND2 OpenBIS importer    =")
	fmt.Println("==============================")

	var argConfigPath = flag.String("config", "", "Path to the importer config JSON")
	var argSkipUpload = flag.Bool("skipupload", false, "Render only, don't register anything in OpenBIS")
	var argOverwrite = flag.Bool("overwrite", false, "Overwrite existing output files")
	var argUseCloudWatch = flag.Bool("cloudwatchlog", false, "Log to CloudWatch instead of stdout")
	flag.Parse()

	if len(*argConfigPath) == 0 || flag.NArg() == 0 {
		fmt.Println("Usage: nd2-importer -config <config.json> [-skipupload] [-overwrite] <file.nd2> [file.nd2...]")
		os.Exit(1)
	}

	cfg, err := config.NewConfigFromFile(*argConfigPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *argSkipUpload {
		cfg.SkipUpload = true
	}
	if *argOverwrite {
		cfg.Overwrite = true
	}

	// AWS session is only needed for S3 destinations, CloudWatch logging or
	// a remote ledger, so a failure here is survivable for local runs
	sess, sessErr := awsutil.GetSession()

	var jobLog logger.ILogger
	if *argUseCloudWatch && sessErr == nil {
		jobLog, err = logger.InitCloudWatchLogger(sess, cfg.EnvironmentName, "nd2-importer", cfg.LogLevel)
		if err != nil {
			fmt.Printf("WARNING: Failed to create log group stream. Logging to stdout. Error was: \"%v\"\n", err)
			jobLog = &logger.StdOutLogger{}
		}
	} else {
		stdLog := &logger.StdOutLogger{}
		stdLog.SetLogLevel(cfg.LogLevel)
		jobLog = stdLog
	}
	defer logger.HandlePanicWithLog(jobLog)

	if len(cfg.SentryEndpoint) > 0 {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryEndpoint,
			Environment: cfg.EnvironmentName,
			Release:     toolVersion,
		}); err != nil {
			jobLog.Errorf("Sentry initialization failed: %v", err)
		}
	}

	ctx := &dataConverter.ImportContext{
		Config:      cfg,
		TimeStamper: &timestamper.UnixTimeNowStamper{},
	}

	// Destination: S3 bucket if configured, local directory otherwise
	if len(cfg.DestinationBucket) > 0 {
		if sessErr != nil {
			jobLog.Errorf("S3 destination configured but no AWS session: %v", sessErr)
			os.Exit(1)
		}
		s3svc, err := awsutil.GetS3(sess)
		if err != nil {
			jobLog.Errorf("Failed to create S3 access: %v", err)
			os.Exit(1)
		}
		ctx.DestFS = fileaccess.MakeS3Access(s3svc)
		ctx.DestRoot = cfg.DestinationBucket
	} else {
		ctx.DestFS = &fileaccess.FSAccess{}
		ctx.DestRoot = cfg.DestinationPath
	}

	if !cfg.SkipUpload {
		bis := openbis.NewClient(cfg.OpenBISHost, jobLog)
		err = bis.Login(cfg.OpenBISUser, cfg.OpenBISPassword)
		if err != nil {
			jobLog.Errorf("%v", err)
			os.Exit(1)
		}
		defer bis.Logout()

		projectIdent, err := bis.EnsureProject(cfg.TargetSpace, cfg.TargetProject)
		if err != nil {
			jobLog.Errorf("%v", err)
			os.Exit(1)
		}
		experimentIdent, err := bis.EnsureExperiment(projectIdent, cfg.TargetExperiment)
		if err != nil {
			jobLog.Errorf("%v", err)
			os.Exit(1)
		}

		ctx.Bis = bis
		ctx.ExperimentIdent = experimentIdent

		// The registration ledger rides along with uploads: remote via the
		// configured secret, local mongo otherwise
		mongoClient, err := registration.Connect(sess, cfg.MongoSecret, jobLog)
		if err != nil {
			jobLog.Errorf("Failed to connect to registration ledger: %v", err)
			os.Exit(1)
		}
		ctx.Ledger = registration.MakeLedger(mongoClient, cfg.EnvironmentName, jobLog)
	}

	summary := importer.ImportFiles(ctx, flag.Args(), jobLog)

	for _, failed := range summary.Failed {
		jobLog.Errorf("FAILED %v: %v", failed.SourceFile, failed.Err)
	}
	for _, ok := range summary.Succeeded {
		line := fmt.Sprintf("OK %v -> %v", ok.SourceFile, ok.Result.Written.DatasetDir)
		if len(ok.Result.DatasetCode) > 0 {
			line += " (dataset " + ok.Result.DatasetCode + ")"
		}
		jobLog.Infof("%v", line)
	}

	jobLog.Infof("Import finished: %v succeeded, %v failed of %v files",
		len(summary.Succeeded), len(summary.Failed), len(flag.Args()))

	jobLog.Close()

	if len(summary.Failed) > 0 {
		fmt.Printf("FAILED: %v\n", strings.Join(failedNames(summary), ", "))
		os.Exit(1)
	}
}

func failedNames(summary importer.BatchSummary) []string {
	names := []string{}
	for _, failed := range summary.Failed {
		names = append(names, failed.SourceFile)
	}
	return names
}

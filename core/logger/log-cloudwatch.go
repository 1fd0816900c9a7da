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

package logger

import (
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/jcxplorer/cwlogger"
)

// CloudWatchLogger - ships job logs to a CloudWatch log group while echoing
// to local stdout. Used for unattended import runs, eg triggered off a
// microscope PC sync.
type CloudWatchLogger struct {
	logger   *cwlogger.Logger
	logLevel LogLevel
}

// InitCloudWatchLogger - initialises the logger, given settings and AWS session
func InitCloudWatchLogger(sess *session.Session, environmentName string, logGroupName string, logLevel LogLevel) (ILogger, error) {
	// The actual log group name is prefixed by env so we never confuse them...
	theLogGroup := fmt.Sprintf("/nd2import/%v-%v", environmentName, logGroupName)

	cwl, err := cwlogger.New(&cwlogger.Config{
		LogGroupName: theLogGroup,
		Client:       cloudwatchlogs.New(sess),
	})
	if err != nil {
		return nil, err
	}

	return &CloudWatchLogger{logger: cwl, logLevel: logLevel}, nil
}

// Printf - Print to log, with format string and log level
func (l *CloudWatchLogger) Printf(level LogLevel, format string, a ...interface{}) {
	// If we're not on this log level, skip
	if l.logLevel > level {
		return
	}

	txt := logLevelPrefix[level] + ": " + fmt.Sprintf(format, a...)

	// Write to the cloudwatch logger
	l.logger.Log(time.Now(), txt)

	// Also write to local stdout
	log.Println(txt)
}

// Debugf - Print debug to log, with format string
func (l *CloudWatchLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}

// Infof - Print info to log, with format string
func (l *CloudWatchLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}

// Errorf - Print error to log, with format string
func (l *CloudWatchLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *CloudWatchLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}

// Close - flushes anything buffered. Call before process exit or logs are lost.
func (l *CloudWatchLogger) Close() {
	l.logger.Close()
}

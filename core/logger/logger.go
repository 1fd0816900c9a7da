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

import "fmt"

// LogLevel - log level type
type LogLevel int

const (
	// LogDebug - DEBUG log level
	LogDebug LogLevel = iota

	// LogInfo - INFO log level
	LogInfo LogLevel = iota

	// LogError - ERROR log level (does not call os.Exit!)
	LogError LogLevel = iota
)

var logLevelPrefix = map[LogLevel]string{
	LogDebug: "DEBUG",
	LogInfo:  "INFO",
	LogError: "ERROR",
}

// ILogger - Generic logger interface. All pipeline code takes one of these,
// so a conversion job can log to stdout when run by hand and to CloudWatch
// when run unattended.
type ILogger interface {
	Printf(level LogLevel, format string, a ...interface{})
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Errorf(format string, a ...interface{})
	SetLogLevel(level LogLevel)
	Close()
}

// GetLogLevelName - returns the name for a given log level
func GetLogLevelName(level LogLevel) (string, error) {
	name, ok := logLevelPrefix[level]
	if !ok {
		return "", fmt.Errorf("invalid log level: %v", int(level))
	}
	return name, nil
}

// GetLogLevel - parses a log level by name
func GetLogLevel(name string) (LogLevel, error) {
	for level, levelName := range logLevelPrefix {
		if levelName == name {
			return level, nil
		}
	}
	return LogDebug, fmt.Errorf("invalid log level name: %v", name)
}

// HandlePanicWithLog - deferred at the top of long-running jobs so a panic
// still ends up in the log (and the log gets flushed) before we die
func HandlePanicWithLog(log ILogger) {
	if r := recover(); r != nil {
		if log != nil {
			log.Errorf("PANIC: %v", r)
			log.Close()
		}
		panic(r)
	}
}

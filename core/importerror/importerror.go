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

// Error taxonomy for the import pipeline. Every stage surfaces its own error
// kind to the caller, there is no retry or recovery below the operator level.
package importerror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindFormat - unreadable or invalid ND2 container
	KindFormat Kind = iota

	// KindMissingField - a required metadata field is absent from the source
	KindMissingField

	// KindRender - invalid render settings (eg black >= white)
	KindRender

	// KindIO - local write failure (permissions, disk full, collision)
	KindIO

	// KindIntegration - OpenBIS authentication/permission/network/API failure
	KindIntegration
)

var kindName = map[Kind]string{
	KindFormat:       "format",
	KindMissingField: "missing-field",
	KindRender:       "render",
	KindIO:           "io",
	KindIntegration:  "integration",
}

// Error - a pipeline error tagged with which stage taxonomy it belongs to.
// Wraps an underlying cause where one exists so errors.Is/As keep working.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v error: %v: %v", kindName[e.Kind], e.Message, e.Cause)
	}
	return fmt.Sprintf("%v error: %v", kindName[e.Kind], e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

func Wrap(kind Kind, cause error, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), Cause: cause}
}

// IsKind - true if err (or anything it wraps) is a pipeline error of the given kind
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

func NewFormat(format string, a ...interface{}) *Error { return New(KindFormat, format, a...) }
func NewMissingField(field string) *Error {
	return New(KindMissingField, "required metadata field \"%v\" not present in source", field)
}
func NewRender(format string, a ...interface{}) *Error { return New(KindRender, format, a...) }
func NewIO(format string, a ...interface{}) *Error     { return New(KindIO, format, a...) }
func NewIntegration(format string, a ...interface{}) *Error {
	return New(KindIntegration, format, a...)
}

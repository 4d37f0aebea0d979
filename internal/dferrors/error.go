/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dferrors

import (
	"errors"
	"fmt"

	"d7y.io/xray/internal/dfcodes"
)

// common and framework errors
var (
	ErrInvalidArgument          = New(dfcodes.InvalidArgument, "invalid argument")
	ErrMissingDatasetsDirectory = New(dfcodes.MissingDatasetsDirectory, "datasets directory not found")
	ErrNoUsableDatasets         = New(dfcodes.NoUsableDatasets, "no datasets found")
	ErrDatasetEmptyClass        = New(dfcodes.DatasetEmptyClass, "dataset class is empty")
	ErrInsufficientImages       = New(dfcodes.InsufficientImages, "insufficient images")
	ErrInvalidImage             = New(dfcodes.InvalidImage, "invalid image")
	ErrFilesystem               = New(dfcodes.FilesystemError, "filesystem error")
)

type DfError struct {
	Code    dfcodes.Code
	Message string
	cause   error
}

func (s *DfError) Error() string {
	if s.cause != nil {
		return fmt.Sprintf("[%d]%s: %s", s.Code, s.Message, s.cause.Error())
	}

	return fmt.Sprintf("[%d]%s", s.Code, s.Message)
}

// Unwrap returns the underlying cause.
func (s *DfError) Unwrap() error {
	return s.cause
}

// Is matches any DfError carrying the same code, so the
// package level sentinels work with errors.Is.
func (s *DfError) Is(target error) bool {
	t, ok := target.(*DfError)
	if !ok {
		return false
	}

	return t.Code == s.Code
}

func New(code dfcodes.Code, msg string) *DfError {
	return &DfError{
		Code:    code,
		Message: msg,
	}
}

func Newf(code dfcodes.Code, format string, a ...any) *DfError {
	return &DfError{
		Code:    code,
		Message: fmt.Sprintf(format, a...),
	}
}

// Wrap returns a DfError with code whose cause is err.
func Wrap(code dfcodes.Code, err error, format string, a ...any) *DfError {
	return &DfError{
		Code:    code,
		Message: fmt.Sprintf(format, a...),
		cause:   err,
	}
}

// CheckError reports whether err, or any error it wraps, is a DfError with code.
func CheckError(err error, code dfcodes.Code) bool {
	if err == nil {
		return false
	}

	var e *DfError
	return errors.As(err, &e) && e.Code == code
}

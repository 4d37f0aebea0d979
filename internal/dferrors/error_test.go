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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"d7y.io/xray/internal/dfcodes"
)

func TestDfError_Error(t *testing.T) {
	tests := []struct {
		name   string
		err    *DfError
		expect func(t *testing.T, err *DfError)
	}{
		{
			name: "error without cause",
			err:  New(dfcodes.InsufficientImages, "class COVID has 3 images"),
			expect: func(t *testing.T, err *DfError) {
				assert := assert.New(t)
				assert.EqualError(err, "[3002]class COVID has 3 images")
				assert.Nil(errors.Unwrap(err))
			},
		},
		{
			name: "error with cause",
			err:  Wrap(dfcodes.FilesystemError, os.ErrNotExist, "remove %s", "foo"),
			expect: func(t *testing.T, err *DfError) {
				assert := assert.New(t)
				assert.EqualError(err, "[4000]remove foo: file does not exist")
				assert.ErrorIs(err, os.ErrNotExist)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.expect(t, tc.err)
		})
	}
}

func TestDfError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		expect bool
	}{
		{
			name:   "same code matches sentinel",
			err:    Newf(dfcodes.DatasetEmptyClass, "class %s has no images", "Normal"),
			target: ErrDatasetEmptyClass,
			expect: true,
		},
		{
			name:   "wrapped error matches sentinel",
			err:    fmt.Errorf("build split: %w", Newf(dfcodes.InsufficientImages, "foo")),
			target: ErrInsufficientImages,
			expect: true,
		},
		{
			name:   "different code does not match",
			err:    New(dfcodes.FilesystemError, "foo"),
			target: ErrNoUsableDatasets,
			expect: false,
		},
		{
			name:   "plain error does not match",
			err:    errors.New("foo"),
			target: ErrFilesystem,
			expect: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tc.expect, errors.Is(tc.err, tc.target))
		})
	}
}

func TestCheckError(t *testing.T) {
	assert := assert.New(t)
	assert.False(CheckError(nil, dfcodes.FilesystemError))
	assert.False(CheckError(errors.New("foo"), dfcodes.FilesystemError))
	assert.True(CheckError(fmt.Errorf("foo: %w", ErrFilesystem), dfcodes.FilesystemError))
	assert.False(CheckError(ErrFilesystem, dfcodes.InsufficientImages))
	assert.Equal("InsufficientImages", dfcodes.InsufficientImages.String())
	assert.Equal("InvalidImage", dfcodes.InvalidImage.String())
	assert.Equal("Unknown", dfcodes.Code(1).String())
}

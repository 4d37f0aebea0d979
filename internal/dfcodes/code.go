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

package dfcodes

// Code is the error code of trainer errors.
type Code int32

// trainer codes
const (
	// success code 200-299
	Success Code = 200

	// common error 1000-1999
	InvalidArgument Code = 1400
	UnknownError    Code = 1500

	// ingestion error 2000-2999
	MissingDatasetsDirectory Code = 2404 // datasets root does not exist
	NoUsableDatasets         Code = 2405 // datasets root holds no institution

	// dataset error 3000-3999
	DatasetEmptyClass  Code = 3001 // balanced access drew a class without images
	InsufficientImages Code = 3002 // class directory holds fewer images than the quota
	InvalidImage       Code = 3003 // image file cannot be decoded

	// filesystem error 4000-4999
	FilesystemError Code = 4000
)

var codeNames = map[Code]string{
	Success:                  "Success",
	InvalidArgument:          "InvalidArgument",
	UnknownError:             "UnknownError",
	MissingDatasetsDirectory: "MissingDatasetsDirectory",
	NoUsableDatasets:         "NoUsableDatasets",
	DatasetEmptyClass:        "DatasetEmptyClass",
	InsufficientImages:       "InsufficientImages",
	InvalidImage:             "InvalidImage",
	FilesystemError:          "FilesystemError",
}

// String returns the name of code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}

	return "Unknown"
}

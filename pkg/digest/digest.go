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

package digest

import (
	"io"
	"os"

	"github.com/opencontainers/go-digest"
)

// HashFile returns the sha256 digest of the file content, in the form sha256:<hex>.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return HashReader(f)
}

// HashReader returns the sha256 digest of everything read from r.
func HashReader(r io.Reader) (string, error) {
	d, err := digest.SHA256.FromReader(r)
	if err != nil {
		return "", err
	}

	return d.String(), nil
}

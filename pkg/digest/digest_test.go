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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashFile(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "foo")
	assert.NoError(os.WriteFile(path, []byte("foo"), 0600))

	d, err := HashFile(path)
	assert.NoError(err)
	assert.Equal("sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", d)

	_, err = HashFile(filepath.Join(t.TempDir(), "bar"))
	assert.Error(err)
}

func TestHashReader(t *testing.T) {
	d, err := HashReader(strings.NewReader("foo"))
	assert.NoError(t, err)
	assert.Equal(t, "sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", d)
}

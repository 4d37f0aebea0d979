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


package limitreader

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestReader_Read(t *testing.T) {
	content := strings.Repeat("foobar", 100)
	tests := []struct {
		name    string
		limiter *rate.Limiter
	}{
		{
			name:    "unlimited",
			limiter: rate.NewLimiter(rate.Inf, 0),
		},
		{
			name:    "burst smaller than buffer",
			limiter: rate.NewLimiter(rate.Limit(1<<20), 16),
		},
		{
			name:    "limiter of one second",
			limiter: NewLimiter(1 << 20),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := io.Copy(&buf, NewReader(context.Background(), strings.NewReader(content), tc.limiter))
			assert := assert.New(t)
			assert.NoError(err)
			assert.Equal(int64(len(content)), n)
			assert.Equal(content, buf.String())
		})
	}
}

func TestReader_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(ctx, strings.NewReader("foobar"), rate.NewLimiter(1, 1))
	_, err := io.ReadAll(r)
	assert.Error(t, err)
}

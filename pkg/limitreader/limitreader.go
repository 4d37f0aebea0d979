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
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Reader throttles an io.Reader by a token bucket of bytes.
type Reader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *rate.Limiter
}

// NewReader returns a reader that waits for len(p) tokens after each read.
func NewReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *Reader {
	return &Reader{
		ctx:     ctx,
		reader:  r,
		limiter: limiter,
	}
}

// NewLimiter returns a limiter of bytesPerSecond with a burst of one second.
func NewLimiter(bytesPerSecond int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
}

func (r *Reader) Read(p []byte) (int, error) {
	// WaitN fails when n exceeds the burst.
	if burst := r.limiter.Burst(); r.limiter.Limit() != rate.Inf && burst > 0 && len(p) > burst {
		p = p[:burst]
	}

	n, err := r.reader.Read(p)
	if n <= 0 || r.limiter.Limit() == rate.Inf {
		return n, err
	}

	if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
		return n, werr
	}

	return n, err
}

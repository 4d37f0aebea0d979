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

package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Run calls f until it succeeds, it asks to cancel, maxAttempts calls are
// made or ctx is done. Attempts are spaced by Backoff.
func Run[T any](ctx context.Context,
	initBackoff float64,
	maxBackoff float64,
	maxAttempts int,
	f func() (data T, cancel bool, err error)) (T, bool, error) {
	var (
		res    T
		cancel bool
		cause  error
	)
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			timer := time.NewTimer(Backoff(initBackoff, maxBackoff, i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return res, cancel, ctx.Err()
			case <-timer.C:
			}
		}

		res, cancel, cause = f()
		if cause == nil || cancel {
			break
		}
	}

	return res, cancel, cause
}

// Backoff returns the delay before the given attempt, doubling from
// initBackoff seconds up to maxBackoff seconds with up to half of jitter.
func Backoff(initBackoff, maxBackoff float64, attempt int) time.Duration {
	backoff := math.Min(initBackoff*math.Pow(2, float64(attempt-1)), maxBackoff)
	backoff -= backoff * rand.Float64() / 2
	return time.Duration(backoff * float64(time.Second))
}

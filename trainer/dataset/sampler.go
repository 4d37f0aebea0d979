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

package dataset

// Sampler returns image records one at a time.
type Sampler interface {
	Next() (ImageRecord, error)
}

type balancedSampler struct {
	dataset *Dataset
}

// NewBalancedSampler returns a sampler that draws a class uniformly at
// random and then an image of the class uniformly at random.
func NewBalancedSampler(d *Dataset) Sampler {
	return &balancedSampler{dataset: d}
}

// Next returns the next sampled image record.
func (s *balancedSampler) Next() (ImageRecord, error) {
	if err := s.dataset.checkEmpty(); err != nil {
		return ImageRecord{}, err
	}

	records := s.dataset.records[s.dataset.drawClass()]
	return records[s.dataset.intn(len(records))], nil
}

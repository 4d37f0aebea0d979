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

package dependency

import (
	"reflect"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"

	"d7y.io/xray/pkg/types"
)

func TestDecodeWithYAML(t *testing.T) {
	type training struct {
		ValidationLossMode types.ValidationLossMode `mapstructure:"validationLossMode"`
		Epochs             int                      `mapstructure:"epochs"`
	}

	tests := []struct {
		name   string
		input  map[string]any
		expect func(t *testing.T, out training, err error)
	}{
		{
			name:  "decode known mode",
			input: map[string]any{"validationLossMode": "mean", "epochs": 2},
			expect: func(t *testing.T, out training, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(types.ValidationLossModeMean, out.ValidationLossMode)
				assert.Equal(2, out.Epochs)
			},
		},
		{
			name:  "decode unknown mode",
			input: map[string]any{"validationLossMode": "median"},
			expect: func(t *testing.T, out training, err error) {
				assert := assert.New(t)
				assert.Error(err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out training
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				DecodeHook: decodeWithYAML(reflect.TypeOf(types.ValidationLossModeRenormalized)),
				Result:     &out,
			})
			if err != nil {
				t.Fatal(err)
			}

			tc.expect(t, out, decoder.Decode(tc.input))
		})
	}
}

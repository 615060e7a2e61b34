// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"math"

	"github.com/juju/errors"
)

// Dilate spreads each observed rating forward over window samples of the
// item axis, treating items as ordered time samples. Overlapping dilated
// ratings are averaged: the output is the truncated convolution of the
// zero-filled data with a ones(window) kernel divided by the same
// convolution of the observed indicator, NaN where nothing covers a sample.
// A window of one or less returns an identity copy.
func Dilate(m *Matrix, window int) (*Matrix, error) {
	rows, cols := m.Rows(), m.Cols()
	if window > cols {
		return nil, errors.NotValidf("dilation window %d for %d items", window, cols)
	}
	if window <= 1 {
		return m.Clone(), nil
	}
	out := m.Clone()
	values := make([]float64, cols)
	coverage := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := range values {
			values[j], coverage[j] = 0, 0
		}
		for j := 0; j < cols; j++ {
			if v := m.Get(i, j); !math.IsNaN(v) {
				for t := j; t < min(j+window, cols); t++ {
					values[t] += v
					coverage[t]++
				}
			}
		}
		for j := 0; j < cols; j++ {
			if coverage[j] >= 1 {
				out.Set(i, j, values[j]/coverage[j])
			} else {
				out.Set(i, j, math.NaN())
			}
		}
	}
	return out, nil
}

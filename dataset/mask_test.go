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
	"fmt"
	"math"
	"testing"

	"github.com/gorse-io/ratemat/base"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

// denseMatrix builds a fully observed rows by cols matrix for mask tests.
func denseMatrix(t *testing.T, rows, cols int) *Matrix {
	subjects := make([]string, rows)
	for i := range subjects {
		subjects[i] = fmt.Sprintf("s%d", i)
	}
	items := make([]string, cols)
	for j := range items {
		items[j] = fmt.Sprintf("i%d", j)
	}
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = float64(i % 5)
	}
	m, err := NewMatrix(subjects, items, values)
	assert.NoError(t, err)
	return m
}

func TestMask(t *testing.T) {
	mask := NewMask(2, 3)
	assert.Equal(t, 2, mask.Rows())
	assert.Equal(t, 3, mask.Cols())
	assert.Equal(t, 0, mask.Count())
	mask.Set(0, 1)
	mask.Set(1, 2)
	assert.True(t, mask.Test(0, 1))
	assert.False(t, mask.Test(0, 2))
	assert.Equal(t, 1, mask.CountRow(0))
	assert.Equal(t, 2, mask.Count())
	assert.Panics(t, func() { mask.Set(0, 3) })
	assert.Panics(t, func() { mask.Test(0, -1) })
}

func TestMask_Clone(t *testing.T) {
	mask := NewMask(1, 2)
	mask.Set(0, 0)
	clone := mask.Clone()
	clone.Set(0, 1)
	assert.Equal(t, 1, mask.Count())
	assert.Equal(t, 2, clone.Count())
}

func TestMask_Flip(t *testing.T) {
	mask := NewMask(2, 3)
	mask.Set(0, 0)
	mask.Set(1, 1)
	flipped := mask.Flip()
	assert.Equal(t, 4, flipped.Count())
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, !mask.Test(i, j), flipped.Test(i, j))
		}
	}
	// The original is untouched.
	assert.Equal(t, 2, mask.Count())
}

func TestMaskFromMatrix(t *testing.T) {
	b, err := NewMatrix([]string{"s1", "s2"}, []string{"i1", "i2"},
		[]float64{1, 0, 0, 1})
	assert.NoError(t, err)
	mask, err := MaskFromMatrix(b)
	assert.NoError(t, err)
	assert.True(t, mask.Test(0, 0))
	assert.False(t, mask.Test(0, 1))
	assert.True(t, mask.Test(1, 1))

	b.Set(0, 1, 0.5)
	_, err = MaskFromMatrix(b)
	assert.True(t, errors.IsNotValid(err))
	b.Set(0, 1, nan)
	_, err = MaskFromMatrix(b)
	assert.True(t, errors.IsNotValid(err))
}

func TestObservedMask(t *testing.T) {
	m, err := NewMatrix([]string{"s1", "s2"}, []string{"i1", "i2"},
		[]float64{1, nan, nan, 4})
	assert.NoError(t, err)
	mask := ObservedMask(m)
	assert.True(t, mask.Test(0, 0))
	assert.False(t, mask.Test(0, 1))
	assert.False(t, mask.Test(1, 0))
	assert.True(t, mask.Test(1, 1))
}

func TestTrainMask(t *testing.T) {
	m := denseMatrix(t, 3, 10)
	mask, err := TrainMask(m, 8, base.NewRandomGenerator(42))
	assert.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 8, mask.CountRow(i))
	}

	// Rows are masked independently: with 3 rows of 10 choose 8, identical
	// picks across all rows are vanishingly unlikely.
	same := true
	for j := 0; j < 10; j++ {
		if mask.Test(0, j) != mask.Test(1, j) || mask.Test(1, j) != mask.Test(2, j) {
			same = false
		}
	}
	assert.False(t, same)

	// Boundary counts.
	mask, err = TrainMask(m, 0, base.NewRandomGenerator(0))
	assert.NoError(t, err)
	assert.Equal(t, 0, mask.Count())
	mask, err = TrainMask(m, 10, base.NewRandomGenerator(0))
	assert.NoError(t, err)
	assert.Equal(t, 30, mask.Count())

	_, err = TrainMask(m, 11, base.NewRandomGenerator(0))
	assert.True(t, errors.IsNotValid(err))
	_, err = TrainMask(m, -1, base.NewRandomGenerator(0))
	assert.True(t, errors.IsNotValid(err))

	// Masking sparse data is ambiguous.
	m.Set(0, 0, nan)
	_, err = TrainMask(m, 8, base.NewRandomGenerator(0))
	assert.ErrorIs(t, err, ErrMaskAmbiguous)
}

func TestTrainMaskRatio(t *testing.T) {
	m := denseMatrix(t, 2, 10)
	mask, err := TrainMaskRatio(m, 0.8, base.NewRandomGenerator(1))
	assert.NoError(t, err)
	assert.Equal(t, 8, mask.CountRow(0))

	// Half-to-even rounding: 10 * 0.25 = 2.5 rounds to 2.
	mask, err = TrainMaskRatio(m, 0.25, base.NewRandomGenerator(1))
	assert.NoError(t, err)
	assert.Equal(t, 2, mask.CountRow(0))

	mask, err = TrainMaskRatio(m, 1, base.NewRandomGenerator(1))
	assert.NoError(t, err)
	assert.Equal(t, 10, mask.CountRow(0))

	_, err = TrainMaskRatio(m, 0, base.NewRandomGenerator(1))
	assert.True(t, errors.IsNotValid(err))
	_, err = TrainMaskRatio(m, 1.5, base.NewRandomGenerator(1))
	assert.True(t, errors.IsNotValid(err))
	_, err = TrainMaskRatio(m, nan, base.NewRandomGenerator(1))
	assert.True(t, errors.IsNotValid(err))
}

func TestMatrix_MaskedBy(t *testing.T) {
	m, err := NewMatrix([]string{"s1", "s2"}, []string{"i1", "i2"},
		[]float64{1, 2, 3, 4})
	assert.NoError(t, err)
	mask := NewMask(2, 2)
	mask.Set(0, 0)
	mask.Set(1, 1)
	masked, err := m.MaskedBy(mask)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, masked.Get(0, 0))
	assert.True(t, math.IsNaN(masked.Get(0, 1)))
	assert.True(t, math.IsNaN(masked.Get(1, 0)))
	assert.Equal(t, 4.0, masked.Get(1, 1))
	// The source is untouched.
	assert.Equal(t, 2.0, m.Get(0, 1))

	_, err = m.MaskedBy(NewMask(1, 2))
	assert.True(t, errors.IsNotValid(err))
}

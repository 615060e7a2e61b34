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

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/ratemat/base"
	"github.com/juju/errors"
)

// ErrMaskAmbiguous reports an attempt to derive a train mask from a matrix
// that already contains missing values.
var ErrMaskAmbiguous = errors.New("data already contains missing values and further masking is ambiguous")

// Mask marks the training cells of a rating matrix. Bit (i, j) set means
// cell (i, j) belongs to the train split.
type Mask struct {
	rows []*bitset.BitSet
	cols int
}

func NewMask(rows, cols int) *Mask {
	m := &Mask{rows: make([]*bitset.BitSet, rows), cols: cols}
	for i := range m.rows {
		m.rows[i] = bitset.New(uint(cols))
	}
	return m
}

func (m *Mask) Rows() int {
	return len(m.rows)
}

func (m *Mask) Cols() int {
	return m.cols
}

func (m *Mask) Set(i, j int) {
	if j < 0 || j >= m.cols {
		panic("dataset: mask column out of range")
	}
	m.rows[i].Set(uint(j))
}

func (m *Mask) Test(i, j int) bool {
	if j < 0 || j >= m.cols {
		panic("dataset: mask column out of range")
	}
	return m.rows[i].Test(uint(j))
}

// CountRow returns the number of train cells in row i.
func (m *Mask) CountRow(i int) int {
	return int(m.rows[i].Count())
}

// Count returns the total number of train cells.
func (m *Mask) Count() int {
	count := 0
	for _, row := range m.rows {
		count += int(row.Count())
	}
	return count
}

func (m *Mask) Clone() *Mask {
	clone := &Mask{rows: make([]*bitset.BitSet, len(m.rows)), cols: m.cols}
	for i, row := range m.rows {
		clone.rows[i] = row.Clone()
	}
	return clone
}

// Flip returns the complement mask (the test cells).
func (m *Mask) Flip() *Mask {
	flipped := m.Clone()
	for _, row := range flipped.rows {
		row.FlipRange(0, uint(m.cols))
	}
	return flipped
}

// MaskFromMatrix interprets a boolean-ish matrix as a mask. Cells must be
// exactly 0 or 1; 1 marks a train cell.
func MaskFromMatrix(b *Matrix) (*Mask, error) {
	mask := NewMask(b.Rows(), b.Cols())
	for i := 0; i < b.Rows(); i++ {
		for j := 0; j < b.Cols(); j++ {
			switch v := b.Get(i, j); v {
			case 0:
			case 1:
				mask.Set(i, j)
			default:
				return nil, errors.NotValidf("mask cell (%d, %d) = %v", i, j, v)
			}
		}
	}
	return mask, nil
}

// ObservedMask marks every observed (non-NaN) cell of m.
func ObservedMask(m *Matrix) *Mask {
	mask := NewMask(m.Rows(), m.Cols())
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if !math.IsNaN(m.Get(i, j)) {
				mask.Set(i, j)
			}
		}
	}
	return mask
}

// TrainMask samples a mask with exactly nItems train cells per subject,
// chosen uniformly without replacement and independently across subjects.
// The matrix must be fully observed: masking data that already has missing
// values is ambiguous.
func TrainMask(m *Matrix, nItems int, rng base.RandomGenerator) (*Mask, error) {
	if nItems < 0 || nItems > m.Cols() {
		return nil, errors.NotValidf("%d train items for %d items", nItems, m.Cols())
	}
	if m.Missing() > 0 {
		return nil, errors.Trace(ErrMaskAmbiguous)
	}
	mask := NewMask(m.Rows(), m.Cols())
	for i := 0; i < m.Rows(); i++ {
		for _, j := range rng.Sample(0, m.Cols(), nItems) {
			mask.Set(i, j)
		}
	}
	return mask, nil
}

// TrainMaskRatio samples a train mask covering round(cols*ratio) items per
// subject. Rounding is half-to-even.
func TrainMaskRatio(m *Matrix, ratio float64, rng base.RandomGenerator) (*Mask, error) {
	if !(ratio > 0 && ratio <= 1) {
		return nil, errors.NotValidf("train ratio %v", ratio)
	}
	return TrainMask(m, int(math.RoundToEven(float64(m.Cols())*ratio)), rng)
}

// MaskedBy returns a copy of m with every non-train cell set to NaN.
func (m *Matrix) MaskedBy(mask *Mask) (*Matrix, error) {
	if mask.Rows() != m.Rows() || mask.Cols() != m.Cols() {
		return nil, errors.NotValidf("%d by %d mask for %d by %d matrix",
			mask.Rows(), mask.Cols(), m.Rows(), m.Cols())
	}
	masked := m.Clone()
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if !mask.Test(i, j) {
				masked.Set(i, j, math.NaN())
			}
		}
	}
	return masked, nil
}

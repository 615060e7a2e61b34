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
	"gonum.org/v1/gonum/mat"
)

// Triple is a single rating in long form.
type Triple struct {
	Subject string
	Item    string
	Rating  float64
}

// Matrix is a dense subject by item rating matrix. Missing ratings are NaN.
// Axis labels are kept in insertion order.
type Matrix struct {
	data     *mat.Dense
	subjects *Dict
	items    *Dict
}

// NewMatrix creates a matrix from row-major values. The values are copied.
func NewMatrix(subjects, items []string, values []float64) (*Matrix, error) {
	if len(subjects) == 0 || len(items) == 0 {
		return nil, errors.NotValidf("matrix with empty axis")
	}
	if len(values) != len(subjects)*len(items) {
		return nil, errors.NotValidf("%d values for %d by %d matrix",
			len(values), len(subjects), len(items))
	}
	subjectDict, err := newAxisDict("subject", subjects)
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemDict, err := newAxisDict("item", items)
	if err != nil {
		return nil, errors.Trace(err)
	}
	data := make([]float64, len(values))
	copy(data, values)
	return &Matrix{
		data:     mat.NewDense(len(subjects), len(items), data),
		subjects: subjectDict,
		items:    itemDict,
	}, nil
}

// NewMatrixFromRows creates a matrix from per-subject rows.
func NewMatrixFromRows(subjects, items []string, rows [][]float64) (*Matrix, error) {
	if len(rows) != len(subjects) {
		return nil, errors.NotValidf("%d rows for %d subjects", len(rows), len(subjects))
	}
	values := make([]float64, 0, len(subjects)*len(items))
	for i, row := range rows {
		if len(row) != len(items) {
			return nil, errors.NotValidf("row %d has %d values for %d items",
				i, len(row), len(items))
		}
		values = append(values, row...)
	}
	return NewMatrix(subjects, items, values)
}

// FromTriples pivots long-form ratings into a subject by item matrix. Axes
// are ordered by first appearance. Cells never rated stay NaN.
func FromTriples(triples []Triple) (*Matrix, error) {
	if len(triples) == 0 {
		return nil, errors.NotValidf("empty triples")
	}
	subjects, items := NewDict(), NewDict()
	for _, t := range triples {
		subjects.Add(t.Subject)
		items.Add(t.Item)
	}
	m := newNaNMatrix(subjects, items)
	seen := NewMask(subjects.Count(), items.Count())
	for _, t := range triples {
		i, _ := subjects.Index(t.Subject)
		j, _ := items.Index(t.Item)
		if seen.Test(i, j) {
			return nil, errors.NotValidf("duplicate rating for (%s, %s)", t.Subject, t.Item)
		}
		seen.Set(i, j)
		if math.IsInf(t.Rating, 0) {
			return nil, errors.NotValidf("infinite rating for (%s, %s)", t.Subject, t.Item)
		}
		m.data.Set(i, j, t.Rating)
	}
	return m, nil
}

func newAxisDict(axis string, labels []string) (*Dict, error) {
	d := NewDict()
	for _, label := range labels {
		if _, exist := d.Index(label); exist {
			return nil, errors.NotValidf("duplicate %s %q", axis, label)
		}
		d.Add(label)
	}
	return d, nil
}

func newNaNMatrix(subjects, items *Dict) *Matrix {
	values := make([]float64, subjects.Count()*items.Count())
	for i := range values {
		values[i] = math.NaN()
	}
	return &Matrix{
		data:     mat.NewDense(subjects.Count(), items.Count(), values),
		subjects: subjects,
		items:    items,
	}
}

func (m *Matrix) Rows() int {
	rows, _ := m.data.Dims()
	return rows
}

func (m *Matrix) Cols() int {
	_, cols := m.data.Dims()
	return cols
}

func (m *Matrix) Subjects() []string {
	return m.subjects.Strings()
}

func (m *Matrix) Items() []string {
	return m.items.Strings()
}

func (m *Matrix) SubjectIndex(id string) (int, bool) {
	return m.subjects.Index(id)
}

func (m *Matrix) ItemIndex(id string) (int, bool) {
	return m.items.Index(id)
}

func (m *Matrix) Get(i, j int) float64 {
	return m.data.At(i, j)
}

func (m *Matrix) Set(i, j int, v float64) {
	m.data.Set(i, j, v)
}

// Row returns a copy of the i-th subject's ratings.
func (m *Matrix) Row(i int) []float64 {
	return mat.Row(nil, i, m.data)
}

// Dense returns the backing matrix. The caller shares storage with m.
func (m *Matrix) Dense() *mat.Dense {
	return m.data
}

func (m *Matrix) Clone() *Matrix {
	return &Matrix{
		data:     mat.DenseCopyOf(m.data),
		subjects: m.subjects.Clone(),
		items:    m.items.Clone(),
	}
}

// Observed counts non-NaN cells.
func (m *Matrix) Observed() int {
	rows, cols := m.data.Dims()
	count := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !math.IsNaN(m.data.At(i, j)) {
				count++
			}
		}
	}
	return count
}

// Missing counts NaN cells.
func (m *Matrix) Missing() int {
	rows, cols := m.data.Dims()
	return rows*cols - m.Observed()
}

// Sparsity returns the fraction of missing cells in [0, 1].
func (m *Matrix) Sparsity() float64 {
	rows, cols := m.data.Dims()
	return float64(m.Missing()) / float64(rows*cols)
}

// Flatten exports every cell, NaN included, in row-major order. The
// roundtrip through Unflatten is bit-exact.
func (m *Matrix) Flatten() []Triple {
	rows, cols := m.data.Dims()
	triples := make([]Triple, 0, rows*cols)
	for i := 0; i < rows; i++ {
		subject, _ := m.subjects.String(i)
		for j := 0; j < cols; j++ {
			item, _ := m.items.String(j)
			triples = append(triples, Triple{
				Subject: subject,
				Item:    item,
				Rating:  m.data.At(i, j),
			})
		}
	}
	return triples
}

// Unflatten rebuilds a matrix with the given axes from flattened triples.
// Cells absent from triples stay NaN; unknown labels are rejected.
func Unflatten(triples []Triple, subjects, items []string) (*Matrix, error) {
	if len(subjects) == 0 || len(items) == 0 {
		return nil, errors.NotValidf("matrix with empty axis")
	}
	subjectDict, err := newAxisDict("subject", subjects)
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemDict, err := newAxisDict("item", items)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := newNaNMatrix(subjectDict, itemDict)
	for _, t := range triples {
		i, ok := subjectDict.Index(t.Subject)
		if !ok {
			return nil, errors.NotValidf("unknown subject %q", t.Subject)
		}
		j, ok := itemDict.Index(t.Item)
		if !ok {
			return nil, errors.NotValidf("unknown item %q", t.Item)
		}
		m.data.Set(i, j, t.Rating)
	}
	return m, nil
}

// ToTriples exports observed cells only, in row-major order.
func (m *Matrix) ToTriples() []Triple {
	rows, cols := m.data.Dims()
	triples := make([]Triple, 0, m.Observed())
	for i := 0; i < rows; i++ {
		subject, _ := m.subjects.String(i)
		for j := 0; j < cols; j++ {
			if v := m.data.At(i, j); !math.IsNaN(v) {
				item, _ := m.items.String(j)
				triples = append(triples, Triple{Subject: subject, Item: item, Rating: v})
			}
		}
	}
	return triples
}

// Downsample averages adjacent item columns in blocks of factor. A trailing
// remainder forms a shorter block. Blocks with no observed cell become NaN.
// Each block keeps the label of its first column.
func (m *Matrix) Downsample(factor int) (*Matrix, error) {
	rows, cols := m.data.Dims()
	if factor < 1 || factor > cols {
		return nil, errors.NotValidf("downsample factor %d for %d items", factor, cols)
	}
	if factor == 1 {
		return m.Clone(), nil
	}
	nBlocks := (cols + factor - 1) / factor
	items := NewDict()
	for b := 0; b < nBlocks; b++ {
		label, _ := m.items.String(b * factor)
		items.Add(label)
	}
	out := newNaNMatrix(m.subjects.Clone(), items)
	for i := 0; i < rows; i++ {
		for b := 0; b < nBlocks; b++ {
			sum, count := 0.0, 0
			for j := b * factor; j < min((b+1)*factor, cols); j++ {
				if v := m.data.At(i, j); !math.IsNaN(v) {
					sum += v
					count++
				}
			}
			if count > 0 {
				out.data.Set(i, b, sum/float64(count))
			}
		}
	}
	return out, nil
}

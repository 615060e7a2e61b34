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
	"context"
	"math"

	"github.com/gorse-io/ratemat/common/parallel"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Distance metrics supported by PairwiseDistance.
const (
	Euclidean   = "euclidean"
	Correlation = "correlation"
	Cosine      = "cosine"
)

// PairwiseDistance computes subject by subject distances with listwise
// deletion: each pair is compared over mutually observed items only. Pairs
// with fewer than two overlapping items get NaN.
func PairwiseDistance(ctx context.Context, m *Matrix, metric string, nJobs int) (*mat.SymDense, error) {
	switch metric {
	case Euclidean, Correlation, Cosine:
	default:
		return nil, errors.NotValidf("distance metric %q", metric)
	}
	rows := m.Rows()
	dist := mat.NewSymDense(rows, nil)
	// Workers write disjoint rows of the upper triangle.
	if err := parallel.For(ctx, rows, nJobs, func(i int) {
		x := m.Row(i)
		for j := i; j < rows; j++ {
			dist.SetSym(i, j, pairDistance(x, m.Row(j), metric))
		}
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return dist, nil
}

func pairDistance(x, y []float64, metric string) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for k := range x {
		if !math.IsNaN(x[k]) && !math.IsNaN(y[k]) {
			xs = append(xs, x[k])
			ys = append(ys, y[k])
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	switch metric {
	case Euclidean:
		return floats.Distance(xs, ys, 2)
	case Correlation:
		return 1 - stat.Correlation(xs, ys, nil)
	default: // Cosine
		norm := floats.Norm(xs, 2) * floats.Norm(ys, 2)
		if norm == 0 {
			return math.NaN()
		}
		return 1 - floats.Dot(xs, ys)/norm
	}
}

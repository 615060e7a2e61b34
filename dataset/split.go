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

	"github.com/gorse-io/ratemat/base"
	"github.com/juju/errors"
)

// Fold is one train/test pair produced by KFold. Train and Test have the
// same shape as the source matrix; their observed patterns are disjoint and
// together reconstruct the source exactly.
type Fold struct {
	Train *Matrix
	Test  *Matrix
}

// KFold deals each subject's observed items into k random groups. Fold i
// holds group i as test and the remaining groups as train, so across folds
// every observed cell appears in a test set exactly once. Requires every
// subject to have at least k observed items.
func KFold(m *Matrix, k int, rng base.RandomGenerator) ([]Fold, error) {
	if k < 2 {
		return nil, errors.NotValidf("%d folds", k)
	}
	rows, cols := m.Rows(), m.Cols()
	observed := make([][]int, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !math.IsNaN(m.Get(i, j)) {
				observed[i] = append(observed[i], j)
			}
		}
		if len(observed[i]) < k {
			return nil, errors.NotValidf(
				"%d folds for subject %d with %d observed items", k, i, len(observed[i]))
		}
	}
	folds := make([]Fold, k)
	for f := range folds {
		folds[f] = Fold{
			Train: m.Clone(),
			Test:  newNaNMatrix(m.subjects.Clone(), m.items.Clone()),
		}
	}
	for i := 0; i < rows; i++ {
		perm := rng.Perm(len(observed[i]))
		begin, end := 0, 0
		for f := 0; f < k; f++ {
			end += len(observed[i]) / k
			if f < len(observed[i])%k {
				end++
			}
			for _, p := range perm[begin:end] {
				j := observed[i][p]
				folds[f].Test.Set(i, j, m.Get(i, j))
				folds[f].Train.Set(i, j, math.NaN())
			}
			begin = end
		}
	}
	return folds, nil
}

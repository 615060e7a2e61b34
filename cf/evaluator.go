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

package cf

import (
	"math"

	"github.com/gorse-io/ratemat/dataset"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/stat"
)

// Partition selects which cells an evaluation compares against the
// predictions.
type Partition string

const (
	// All compares every observed rating, blending cells the fit saw with
	// withheld ones.
	All Partition = "all"
	// Train compares the cells the fit saw: the train mask against the
	// masked ratings, or the dilated frame when the fit was dilated.
	Train Partition = "train"
	// Test compares the withheld cells against the original ratings. The
	// test partition is never dilated.
	Test Partition = "test"
)

// Score bundles the prediction quality measures of one evaluation.
type Score struct {
	MSE  float64
	RMSE float64
	MAE  float64
	Corr float64
}

// partitionFrame resolves a partition to the matrix holding the true
// ratings and the cells to compare.
func (b *BaseModel) partitionFrame(part Partition) (*dataset.Matrix, *dataset.Mask, error) {
	if b.state < Predicted {
		return nil, nil, errors.Trace(ErrNotPredicted)
	}
	switch part {
	case All:
		return b.data, dataset.ObservedMask(b.data), nil
	case Train:
		if b.trainMask == nil {
			return nil, nil, errors.Trace(ErrNotMasked)
		}
		if b.dilatedData != nil {
			return b.dilatedData, b.dilatedMask, nil
		}
		return b.maskedData, b.trainMask, nil
	case Test:
		if b.trainMask == nil {
			return nil, nil, errors.Trace(ErrNotMasked)
		}
		return b.data, b.trainMask.Flip(), nil
	default:
		return nil, nil, errors.NotValidf("partition %v", part)
	}
}

// Evaluate compares the predictions against a partition of the ratings.
// Cells where either side is missing are dropped pairwise.
func (b *BaseModel) Evaluate(part Partition) (Score, error) {
	truth, cells, err := b.partitionFrame(part)
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	if part == Test && countObserved(truth, cells) == 0 {
		return Score{}, errors.Trace(ErrNoTestData)
	}
	actual := make([]float64, 0, truth.Rows()*truth.Cols())
	predicted := make([]float64, 0, truth.Rows()*truth.Cols())
	for i := 0; i < truth.Rows(); i++ {
		actual, predicted = b.appendPairs(truth, cells, i, actual, predicted)
	}
	return newScore(actual, predicted), nil
}

// EvaluateSubjects compares the predictions against a partition of the
// ratings, one score per subject. A subject with no comparable cell gets a
// NaN score instead of an error.
func (b *BaseModel) EvaluateSubjects(part Partition) ([]Score, error) {
	truth, cells, err := b.partitionFrame(part)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make([]Score, truth.Rows())
	for i := 0; i < truth.Rows(); i++ {
		actual, predicted := b.appendPairs(truth, cells, i, nil, nil)
		scores[i] = newScore(actual, predicted)
	}
	return scores, nil
}

// appendPairs collects the comparable (actual, predicted) pairs of one
// subject: cells the partition selects where both sides are observed.
func (b *BaseModel) appendPairs(truth *dataset.Matrix, cells *dataset.Mask, row int, actual, predicted []float64) ([]float64, []float64) {
	for j := 0; j < truth.Cols(); j++ {
		if !cells.Test(row, j) {
			continue
		}
		x := truth.Get(row, j)
		y := b.predictions.Get(row, j)
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		actual = append(actual, x)
		predicted = append(predicted, y)
	}
	return actual, predicted
}

// countObserved counts the selected cells holding an observed rating.
func countObserved(m *dataset.Matrix, cells *dataset.Mask) int {
	count := 0
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if cells.Test(i, j) && !math.IsNaN(m.Get(i, j)) {
				count++
			}
		}
	}
	return count
}

// newScore computes the quality measures over paired samples. No pairs give
// all NaN, a single pair gives a NaN correlation.
func newScore(actual, predicted []float64) Score {
	if len(actual) == 0 {
		return Score{
			MSE:  math.NaN(),
			RMSE: math.NaN(),
			MAE:  math.NaN(),
			Corr: math.NaN(),
		}
	}
	var se, ae float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		se += diff * diff
		ae += math.Abs(diff)
	}
	n := float64(len(actual))
	score := Score{
		MSE:  se / n,
		RMSE: math.Sqrt(se / n),
		MAE:  ae / n,
		Corr: math.NaN(),
	}
	if len(actual) > 1 {
		score.Corr = stat.Correlation(actual, predicted, nil)
	}
	return score
}

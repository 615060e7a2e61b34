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
	"context"
	"math"
	"testing"

	"github.com/gorse-io/ratemat/dataset"
	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

// fittedMean binds, masks, fits and predicts an item-mean model, giving
// deterministic predictions for partition checks.
func fittedMean(t *testing.T, data *dataset.Matrix, mask *dataset.Mask) *Mean {
	m := NewMean(model.Params{})
	assert.NoError(t, m.Bind(data))
	if mask != nil {
		assert.NoError(t, m.SetMask(mask))
	}
	assert.NoError(t, m.Fit(context.Background(), NewFitConfig().SetVerbose(0)))
	assert.NoError(t, m.Predict())
	return m
}

func TestEvaluatePartitions(t *testing.T) {
	data := testMatrix(t, 2, 4, func(i, j int) float64 {
		return float64(2*i + j + 1)
	})
	// Train cells: subject 0 keeps items 0..2, subject 1 keeps 0, 1, 3.
	mask := dataset.NewMask(2, 4)
	mask.Set(0, 0)
	mask.Set(0, 1)
	mask.Set(0, 2)
	mask.Set(1, 0)
	mask.Set(1, 1)
	mask.Set(1, 3)
	m := fittedMean(t, data, mask)
	// Item means over the masked frame: [2, 3, 3, 6].
	assert.InDeltaSlice(t, []float64{2, 3, 3, 6}, m.ItemMeans(), 1e-12)

	train, err := m.Evaluate(Train)
	assert.NoError(t, err)
	assert.InDelta(t, 4.0/6, train.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(4.0/6), train.RMSE, 1e-12)
	assert.InDelta(t, 4.0/6, train.MAE, 1e-12)

	test, err := m.Evaluate(Test)
	assert.NoError(t, err)
	assert.InDelta(t, 4.0, test.MSE, 1e-12)
	assert.InDelta(t, 2.0, test.MAE, 1e-12)
	// A two-cell partition still correlates, one cell per subject does not.
	subjects, err := m.EvaluateSubjects(Test)
	assert.NoError(t, err)
	assert.Len(t, subjects, 2)
	assert.InDelta(t, 4.0, subjects[0].MSE, 1e-12)
	assert.InDelta(t, 4.0, subjects[1].MSE, 1e-12)
	assert.True(t, math.IsNaN(subjects[0].Corr))

	all, err := m.Evaluate(All)
	assert.NoError(t, err)
	assert.InDelta(t, 1.5, all.MSE, 1e-12)
	assert.False(t, math.IsNaN(all.Corr))

	_, err = m.Evaluate(Partition("half"))
	assert.True(t, errors.IsNotValid(err))
}

func TestEvaluateNoTestData(t *testing.T) {
	data := testMatrix(t, 2, 3, func(i, j int) float64 { return float64(i + j) })
	// Every observed cell is a train cell, so nothing is withheld.
	m := fittedMean(t, data, dataset.ObservedMask(data))
	_, err := m.Evaluate(Test)
	assert.ErrorIs(t, err, ErrNoTestData)
	// Per-subject evaluation reports NaN scores instead.
	subjects, err := m.EvaluateSubjects(Test)
	assert.NoError(t, err)
	assert.Len(t, subjects, 2)
	for _, score := range subjects {
		assert.True(t, math.IsNaN(score.MSE))
		assert.True(t, math.IsNaN(score.Corr))
	}
}

func TestEvaluatePerfectPrediction(t *testing.T) {
	data := testMatrix(t, 3, 2, func(i, j int) float64 {
		// Constant columns make the item means reproduce the data.
		return float64(j + 1)
	})
	m := fittedMean(t, data, nil)
	all, err := m.Evaluate(All)
	assert.NoError(t, err)
	assert.Zero(t, all.MSE)
	assert.Zero(t, all.RMSE)
	assert.Zero(t, all.MAE)
}

func TestEvaluateDropsMissingPairs(t *testing.T) {
	data := testMatrix(t, 2, 2, func(i, j int) float64 {
		if i == 1 && j == 1 {
			return nan
		}
		return float64(i + j + 1)
	})
	m := fittedMean(t, data, nil)
	// Only the three observed cells are compared.
	all, err := m.Evaluate(All)
	assert.NoError(t, err)
	assert.False(t, math.IsNaN(all.MSE))
	subjects, err := m.EvaluateSubjects(All)
	assert.NoError(t, err)
	assert.Len(t, subjects, 2)
	assert.False(t, math.IsNaN(subjects[1].MSE))
	// Subject 1 has a single comparable cell, so no correlation.
	assert.True(t, math.IsNaN(subjects[1].Corr))
}

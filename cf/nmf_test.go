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

	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestNNMFMultNonNegative(t *testing.T) {
	data := testMatrix(t, 4, 6, func(i, j int) float64 {
		return float64(i + j + 2)
	})
	m := NewNNMFMult(model.Params{
		model.RandomState: 42,
		model.NFactors:    3,
		model.NEpochs:     30,
		model.Tol:         0.0,
	})
	assert.NoError(t, m.Bind(data))
	assert.NoError(t, m.Fit(context.Background(), NewFitConfig().SetVerbose(0)))
	w, h := m.Factors()
	wr, wc := w.Dims()
	hr, hc := h.Dims()
	assert.Equal(t, 4, wr)
	assert.Equal(t, 3, wc)
	assert.Equal(t, 3, hr)
	assert.Equal(t, 6, hc)
	// Every factor entry stays at or above the epsilon floor.
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			assert.GreaterOrEqual(t, w.At(i, j), nnmfEpsilon)
		}
	}
	for i := 0; i < hr; i++ {
		for j := 0; j < hc; j++ {
			assert.GreaterOrEqual(t, h.At(i, j), nnmfEpsilon)
		}
	}
	// Disabled tolerance runs the full epoch budget.
	info := m.FitInfo()
	assert.False(t, info.Converged)
	assert.Equal(t, 30, info.Epochs)
	assert.Len(t, info.History, 30)

	assert.NoError(t, m.Predict())
	predictions, err := m.Predictions()
	assert.NoError(t, err)
	for i := 0; i < 4; i++ {
		for j := 0; j < 6; j++ {
			assert.False(t, math.IsNaN(predictions.Get(i, j)))
		}
	}
}

func TestNNMFMultDefaultFactors(t *testing.T) {
	data := testMatrix(t, 3, 5, func(i, j int) float64 {
		return float64((i + 1) * (j + 1))
	})
	m := NewNNMFMult(model.Params{model.NEpochs: 5, model.Tol: 0.0})
	assert.NoError(t, m.Bind(data))
	assert.NoError(t, m.Fit(context.Background(), NewFitConfig().SetVerbose(0)))
	w, h := m.Factors()
	_, wc := w.Dims()
	hr, _ := h.Dims()
	assert.Equal(t, 5, wc)
	assert.Equal(t, 5, hr)
}

func TestNNMFMultErrorDecreases(t *testing.T) {
	data := testMatrix(t, 4, 6, func(i, j int) float64 {
		return float64((i + 1) * (j + 1))
	})
	m := NewNNMFMult(model.Params{
		model.RandomState: 7,
		model.NFactors:    2,
		model.NEpochs:     50,
		model.Tol:         0.0,
	})
	assert.NoError(t, m.Bind(data))
	assert.NoError(t, m.Fit(context.Background(), NewFitConfig().SetVerbose(0)))
	history := m.FitInfo().History
	assert.Len(t, history, 50)
	assert.Less(t, history[len(history)-1], history[0])
}

func TestNNMFMultConverges(t *testing.T) {
	data := testMatrix(t, 4, 6, func(i, j int) float64 {
		return float64((i + 1) * (j + 1))
	})
	// A rank-one matrix with loose tolerances stops well before the
	// budget, and only when both residuals clear their tolerances.
	m := NewNNMFMult(model.Params{
		model.RandomState: 7,
		model.NFactors:    2,
		model.NEpochs:     200,
		model.Tol:         0.2,
		model.FitTol:      5.0,
	})
	assert.NoError(t, m.Bind(data))
	assert.NoError(t, m.Fit(context.Background(), NewFitConfig().SetVerbose(0)))
	info := m.FitInfo()
	assert.True(t, info.Converged)
	assert.Less(t, info.Epochs, 200)
	assert.Less(t, info.Error, 0.2)
	assert.Less(t, info.Delta, 5.0)
}

func TestNNMFMultMasked(t *testing.T) {
	data := testMatrix(t, 4, 6, func(i, j int) float64 {
		return float64((i + 1) * (j + 1))
	})
	m := NewNNMFMult(model.Params{
		model.RandomState: 42,
		model.NFactors:    2,
		model.NEpochs:     50,
	})
	assert.NoError(t, m.Bind(data))
	assert.NoError(t, m.SplitTrainTest(4))
	assert.NoError(t, m.Fit(context.Background(), NewFitConfig().SetVerbose(0)))
	assert.NoError(t, m.Predict())
	test, err := m.Evaluate(Test)
	assert.NoError(t, err)
	assert.False(t, math.IsNaN(test.MSE))
	train, err := m.Evaluate(Train)
	assert.NoError(t, err)
	assert.False(t, math.IsNaN(train.MSE))
}

func TestNNMFMultNegativeRatings(t *testing.T) {
	data := testMatrix(t, 2, 3, func(i, j int) float64 { return -1 })
	m := NewNNMFMult(model.Params{})
	assert.NoError(t, m.Bind(data))
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), nil)))
}

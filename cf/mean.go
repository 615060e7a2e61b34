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

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/ratemat/base/log"
	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Mean predicts every subject's rating of an item as the item's mean
// observed rating. It carries no signal about subjects and serves as the
// baseline any personalized model should beat.
//
// Hyper-parameters:
//
//	NDilateSamples - Forward dilation window applied to the fitting frame.
//	                 Default is 0 (disabled).
type Mean struct {
	BaseModel
	nDilateSamples int
	itemMeans      []float64
}

// NewMean builds the item-mean baseline from hyper-parameters.
func NewMean(params model.Params) *Mean {
	mean := new(Mean)
	mean.SetParams(params)
	return mean
}

// SetParams sets hyper-parameters for the Mean model.
func (mean *Mean) SetParams(params model.Params) {
	mean.BaseModel.SetParams(params)
	mean.nDilateSamples = mean.Params.GetInt(model.NDilateSamples, 0)
}

// GetParamsGrid returns an empty grid: the baseline has nothing to tune.
func (mean *Mean) GetParamsGrid() model.ParamsGrid {
	return model.ParamsGrid{}
}

// SuggestParams suggests nothing: the baseline has nothing to tune.
func (mean *Mean) SuggestParams(_ goptuna.Trial) model.Params {
	return model.Params{}
}

// Clear resets the learned means.
func (mean *Mean) Clear() {
	mean.itemMeans = nil
	mean.clearFit()
}

// ItemMeans returns the per-item mean ratings of the last fit.
func (mean *Mean) ItemMeans() []float64 {
	return mean.itemMeans
}

// Fit computes the mean observed rating of every item of the fitting
// frame. An item without any observation keeps a NaN mean.
func (mean *Mean) Fit(_ context.Context, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	frame, _, err := mean.fitFrame(mean.nDilateSamples)
	if err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit mean",
		zap.Int("n_subjects", frame.Rows()),
		zap.Int("n_items", frame.Cols()),
		zap.Any("params", mean.GetParams()),
		zap.Any("config", config))
	mean.itemMeans = make([]float64, frame.Cols())
	for j := 0; j < frame.Cols(); j++ {
		sum, count := 0.0, 0
		for i := 0; i < frame.Rows(); i++ {
			if v := frame.Get(i, j); !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		if count > 0 {
			mean.itemMeans[j] = sum / float64(count)
		} else {
			mean.itemMeans[j] = math.NaN()
		}
	}
	mean.setFitted()
	return nil
}

// Predict broadcasts the item means to every subject.
func (mean *Mean) Predict() error {
	if mean.state < Fitted {
		return errors.Trace(ErrNotFitted)
	}
	predictions := mean.data.Clone()
	for i := 0; i < predictions.Rows(); i++ {
		for j := 0; j < predictions.Cols(); j++ {
			predictions.Set(i, j, mean.itemMeans[j])
		}
	}
	mean.setPredictions(predictions)
	return nil
}

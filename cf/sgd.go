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
	"fmt"
	"math"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/ratemat/base/log"
	"github.com/gorse-io/ratemat/base/progress"
	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// NNMFSGD factorizes the ratings into biased subject and item factors by
// stochastic gradient descent over the observed cells. Unlike NNMFMult the
// factors may go negative and a rating decomposes into global bias, subject
// bias, item bias and the factor product.
//
// Hyper-parameters:
//
//	NFactors       - Number of latent factors. Values <= 0 use the item
//	                 count. Default is 0.
//	NEpochs        - Maximum number of epochs. Default is 5000.
//	Lr             - Learning rate. Default is 0.001.
//	Tol            - Tolerance on the epoch-over-epoch change of the
//	                 normalized error. Values <= 0 disable early stopping.
//	                 Default is 0.001.
//	Reg            - Regularization strength, the fallback for the four
//	                 per-term regularizations below. Default is 0.
//	SubjectReg     - Subject factor regularization.
//	ItemReg        - Item factor regularization.
//	SubjectBiasReg - Subject bias regularization.
//	ItemBiasReg    - Item bias regularization.
//	ErrorHistory   - Record the normalized error of every epoch. Default
//	                 is true.
//	NDilateSamples - Forward dilation window applied to the fitting frame.
//	                 Default is 0 (disabled).
type NNMFSGD struct {
	BaseModel
	nFactors       int
	nEpochs        int
	lr             float64
	tol            float64
	subjectReg     float64
	itemReg        float64
	subjectBiasReg float64
	itemBiasReg    float64
	errorHistory   bool
	nDilateSamples int
	globalBias     float64
	subjectBias    []float64
	itemBias       []float64
	subjectFactor  [][]float64
	itemFactor     [][]float64
	fitInfo        FitInfo
}

// NewNNMFSGD builds a stochastic gradient descent factorization model from
// hyper-parameters.
func NewNNMFSGD(params model.Params) *NNMFSGD {
	sgd := new(NNMFSGD)
	sgd.SetParams(params)
	return sgd
}

// SetParams sets hyper-parameters for the NNMFSGD model. Reg fills any of
// the four per-term regularizations left unset.
func (sgd *NNMFSGD) SetParams(params model.Params) {
	sgd.BaseModel.SetParams(params)
	reg := sgd.Params.GetFloat64(model.Reg, 0)
	sgd.nFactors = sgd.Params.GetInt(model.NFactors, 0)
	sgd.nEpochs = sgd.Params.GetInt(model.NEpochs, 5000)
	sgd.lr = sgd.Params.GetFloat64(model.Lr, 0.001)
	sgd.tol = sgd.Params.GetFloat64(model.Tol, 0.001)
	sgd.subjectReg = sgd.Params.GetFloat64(model.SubjectReg, reg)
	sgd.itemReg = sgd.Params.GetFloat64(model.ItemReg, reg)
	sgd.subjectBiasReg = sgd.Params.GetFloat64(model.SubjectBiasReg, reg)
	sgd.itemBiasReg = sgd.Params.GetFloat64(model.ItemBiasReg, reg)
	sgd.errorHistory = sgd.Params.GetBool(model.ErrorHistory, true)
	sgd.nDilateSamples = sgd.Params.GetInt(model.NDilateSamples, 0)
}

// GetParamsGrid returns the default hyper-parameter grid.
func (sgd *NNMFSGD) GetParamsGrid() model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors: []interface{}{0, 2, 4, 8},
		model.Lr:       []interface{}{0.0001, 0.001, 0.01},
		model.Reg:      []interface{}{0.0, 0.001, 0.01},
	}
}

// SuggestParams suggests hyper-parameters for a goptuna trial.
func (sgd *NNMFSGD) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors: int(lo.Must(trial.SuggestDiscreteFloat(string(model.NFactors), 2, 16, 2))),
		model.Lr:       lo.Must(trial.SuggestLogFloat(string(model.Lr), 1e-4, 1e-1)),
		model.Reg:      lo.Must(trial.SuggestLogFloat(string(model.Reg), 1e-4, 1e-1)),
	}
}

// Clear resets the learned biases and factors.
func (sgd *NNMFSGD) Clear() {
	sgd.globalBias = 0
	sgd.subjectBias = nil
	sgd.itemBias = nil
	sgd.subjectFactor = nil
	sgd.itemFactor = nil
	sgd.fitInfo = FitInfo{}
	sgd.clearFit()
}

// FitInfo reports the convergence diagnostics of the last fit.
func (sgd *NNMFSGD) FitInfo() FitInfo {
	return sgd.fitInfo
}

// GlobalBias returns the mean observed rating of the last fitting frame.
func (sgd *NNMFSGD) GlobalBias() float64 {
	return sgd.globalBias
}

// Fit runs stochastic gradient descent over the observed cells, reshuffled
// every epoch, until the epoch-over-epoch change of the normalized error
// drops below Tol or the epoch budget runs out.
func (sgd *NNMFSGD) Fit(ctx context.Context, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	frame, mask, err := sgd.fitFrame(sgd.nDilateSamples)
	if err != nil {
		return errors.Trace(err)
	}
	nSubjects, nItems := frame.Rows(), frame.Cols()
	nFactors := sgd.nFactors
	if nFactors <= 0 {
		nFactors = nItems
	}
	log.Logger().Info("fit nnmf_sgd",
		zap.Int("n_subjects", nSubjects),
		zap.Int("n_items", nItems),
		zap.Int("n_factors", nFactors),
		zap.Any("params", sgd.GetParams()),
		zap.Any("config", config))

	// The observed cells are the training samples. The largest magnitude
	// normalizes the per-epoch error.
	samples := make([][2]int, 0, mask.Count())
	sum, maxAbs := 0.0, 0.0
	for i := 0; i < nSubjects; i++ {
		for j := 0; j < nItems; j++ {
			if mask.Test(i, j) {
				samples = append(samples, [2]int{i, j})
				v := frame.Get(i, j)
				sum += v
				if a := math.Abs(v); a > maxAbs {
					maxAbs = a
				}
			}
		}
	}
	if len(samples) == 0 {
		return errors.NotValidf("no observed ratings to fit")
	}
	sgd.globalBias = sum / float64(len(samples))

	rng := sgd.GetRandomGenerator()
	sgd.subjectFactor = rng.NormalMatrix(nSubjects, nFactors, 0, 1/float64(nFactors))
	sgd.itemFactor = rng.NormalMatrix(nItems, nFactors, 0, 1/float64(nFactors))
	sgd.subjectBias = make([]float64, nSubjects)
	sgd.itemBias = make([]float64, nItems)

	info := FitInfo{Delta: math.Inf(1), Error: math.Inf(1)}
	lastNormError := math.NaN()
	_, span := progress.Start(ctx, "NNMFSGD.Fit", sgd.nEpochs)
	for epoch := 1; epoch <= sgd.nEpochs; epoch++ {
		var e float64
		for _, t := range rng.Perm(len(samples)) {
			u, i := samples[t][0], samples[t][1]
			e = frame.Get(u, i) - sgd.predictCell(u, i)
			sgd.subjectBias[u] += sgd.lr * (e - sgd.subjectBiasReg*sgd.subjectBias[u])
			sgd.itemBias[i] += sgd.lr * (e - sgd.itemBiasReg*sgd.itemBias[i])
			// The item factor update sees the already updated subject
			// factor.
			pu, qi := sgd.subjectFactor[u], sgd.itemFactor[i]
			for f := 0; f < nFactors; f++ {
				qif := qi[f]
				pu[f] += sgd.lr * (e*qif - sgd.subjectReg*pu[f])
				qi[f] += sgd.lr * (e*pu[f] - sgd.itemReg*qif)
			}
		}
		// The error of the last sample of the epoch stands in for the
		// epoch's error.
		normError := math.Abs(e) / maxAbs
		delta := math.Abs(normError - lastNormError)
		lastNormError = normError
		if sgd.errorHistory {
			info.History = append(info.History, normError)
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == sgd.nEpochs) {
			log.Logger().Info(fmt.Sprintf("fit nnmf_sgd %v/%v", epoch, sgd.nEpochs),
				zap.Float64("norm_error", normError),
				zap.Float64("delta", delta))
		}
		span.Add(1)
		info.Epochs = epoch
		info.Error = normError
		// The first epoch has nothing to compare against.
		if !math.IsNaN(delta) {
			info.Delta = delta
			if sgd.tol > 0 && delta < sgd.tol {
				info.Converged = true
				break
			}
		}
	}
	span.End()
	sgd.fitInfo = info
	sgd.setFitted()
	log.Logger().Info("fit nnmf_sgd complete",
		zap.Bool("converged", info.Converged),
		zap.Int("epochs", info.Epochs),
		zap.Float64("delta", info.Delta),
		zap.Float64("norm_error", info.Error))
	return nil
}

// Predict scores every cell from the learned biases and factors. Values
// are not clipped to the observed rating range.
func (sgd *NNMFSGD) Predict() error {
	if sgd.state < Fitted {
		return errors.Trace(ErrNotFitted)
	}
	predictions := sgd.data.Clone()
	for i := 0; i < predictions.Rows(); i++ {
		for j := 0; j < predictions.Cols(); j++ {
			predictions.Set(i, j, sgd.predictCell(i, j))
		}
	}
	sgd.setPredictions(predictions)
	return nil
}

// predictCell scores one cell: global bias plus subject and item biases
// plus the factor product.
func (sgd *NNMFSGD) predictCell(u, i int) float64 {
	return sgd.globalBias + sgd.subjectBias[u] + sgd.itemBias[i] +
		floats.Dot(sgd.subjectFactor[u], sgd.itemFactor[i])
}

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
	"gonum.org/v1/gonum/mat"
)

// nnmfEpsilon is the floor keeping factor entries strictly positive across
// multiplicative updates.
const nnmfEpsilon = 1e-5

// NNMFMult factorizes the ratings into non-negative factors W·H with
// multiplicative updates. Missing and withheld cells carry zero weight in
// the update rules, so they never pull on the factors.
//
// Hyper-parameters:
//
//	NFactors       - Number of latent factors. Values <= 0 use the item
//	                 count. Default is 0.
//	NEpochs        - Maximum number of iterations. Default is 100.
//	Tol            - Tolerance on the normalized reconstruction residual.
//	                 Values <= 0 disable early stopping. Default is 1e-6.
//	FitTol         - Tolerance on the iteration-over-iteration change of
//	                 the reconstruction. Values <= 0 disable early
//	                 stopping. Default is 1e-6.
//	ErrorHistory   - Record the residual of every iteration. Default is
//	                 true.
//	NDilateSamples - Forward dilation window applied to the fitting frame.
//	                 Default is 0 (disabled).
type NNMFMult struct {
	BaseModel
	nFactors       int
	nEpochs        int
	tol            float64
	fitTol         float64
	errorHistory   bool
	nDilateSamples int
	w              *mat.Dense
	h              *mat.Dense
	fitInfo        FitInfo
}

// NewNNMFMult builds a multiplicative-update factorization model from
// hyper-parameters.
func NewNNMFMult(params model.Params) *NNMFMult {
	nmf := new(NNMFMult)
	nmf.SetParams(params)
	return nmf
}

// SetParams sets hyper-parameters for the NNMFMult model.
func (nmf *NNMFMult) SetParams(params model.Params) {
	nmf.BaseModel.SetParams(params)
	nmf.nFactors = nmf.Params.GetInt(model.NFactors, 0)
	nmf.nEpochs = nmf.Params.GetInt(model.NEpochs, 100)
	nmf.tol = nmf.Params.GetFloat64(model.Tol, 1e-6)
	nmf.fitTol = nmf.Params.GetFloat64(model.FitTol, 1e-6)
	nmf.errorHistory = nmf.Params.GetBool(model.ErrorHistory, true)
	nmf.nDilateSamples = nmf.Params.GetInt(model.NDilateSamples, 0)
}

// GetParamsGrid returns the default hyper-parameter grid.
func (nmf *NNMFMult) GetParamsGrid() model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors: []interface{}{0, 2, 4, 8, 16},
	}
}

// SuggestParams suggests hyper-parameters for a goptuna trial.
func (nmf *NNMFMult) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors: int(lo.Must(trial.SuggestDiscreteFloat(string(model.NFactors), 2, 16, 2))),
	}
}

// Clear resets the learned factors.
func (nmf *NNMFMult) Clear() {
	nmf.w = nil
	nmf.h = nil
	nmf.fitInfo = FitInfo{}
	nmf.clearFit()
}

// FitInfo reports the convergence diagnostics of the last fit.
func (nmf *NNMFMult) FitInfo() FitInfo {
	return nmf.fitInfo
}

// Factors returns the subject factors W and the item factors H of the last
// fit.
func (nmf *NNMFMult) Factors() (w, h *mat.Dense) {
	return nmf.w, nmf.h
}

// Fit runs multiplicative updates until both the reconstruction residual
// and its change drop below their tolerances, or the epoch budget runs
// out.
func (nmf *NNMFMult) Fit(ctx context.Context, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	frame, mask, err := nmf.fitFrame(nmf.nDilateSamples)
	if err != nil {
		return errors.Trace(err)
	}
	nSubjects, nItems := frame.Rows(), frame.Cols()
	nFactors := nmf.nFactors
	if nFactors <= 0 {
		nFactors = nItems
	}
	log.Logger().Info("fit nnmf_mult",
		zap.Int("n_subjects", nSubjects),
		zap.Int("n_items", nItems),
		zap.Int("n_factors", nFactors),
		zap.Any("params", nmf.GetParams()),
		zap.Any("config", config))

	// Zero-filled observed ratings and their 0/1 weights.
	maskedX := mat.NewDense(nSubjects, nItems, nil)
	weights := mat.NewDense(nSubjects, nItems, nil)
	sum, count, maxRating := 0.0, 0, 0.0
	for i := 0; i < nSubjects; i++ {
		for j := 0; j < nItems; j++ {
			if mask.Test(i, j) {
				v := frame.Get(i, j)
				maskedX.Set(i, j, v)
				weights.Set(i, j, 1)
				sum += v
				count++
				if v > maxRating {
					maxRating = v
				}
			}
		}
	}
	if count == 0 {
		return errors.NotValidf("no observed ratings to fit")
	}
	mean := sum / float64(count)
	if mean < 0 {
		return errors.NotValidf("mean rating %v, non-negative factorization needs non-negative ratings", mean)
	}

	avg := math.Sqrt(mean / float64(nFactors))
	rng := nmf.GetRandomGenerator()
	w := mat.NewDense(nSubjects, nFactors, rng.UniformVector(nSubjects*nFactors, 0, avg))
	h := mat.NewDense(nFactors, nItems, rng.UniformVector(nFactors*nItems, 0, avg))

	var (
		est        = mat.NewDense(nSubjects, nItems, nil)
		prevEst    = mat.NewDense(nSubjects, nItems, nil)
		maskedEst  = mat.NewDense(nSubjects, nItems, nil)
		diff       = mat.NewDense(nSubjects, nItems, nil)
		maskedDiff = mat.NewDense(nSubjects, nItems, nil)
		numerW     = mat.NewDense(nSubjects, nFactors, nil)
		denomW     = mat.NewDense(nSubjects, nFactors, nil)
		numerH     = mat.NewDense(nFactors, nItems, nil)
		denomH     = mat.NewDense(nFactors, nItems, nil)
	)
	prevEst.Mul(w, h)
	info := FitInfo{Delta: math.Inf(1), Error: math.Inf(1)}
	_, span := progress.Start(ctx, "NNMFMult.Fit", nmf.nEpochs)
	for epoch := 1; epoch <= nmf.nEpochs; epoch++ {
		// W <- W ∘ (maskedX·Hᵀ) ⊘ ((weights∘(W·H))·Hᵀ)
		est.Mul(w, h)
		maskedEst.MulElem(weights, est)
		numerW.Mul(maskedX, h.T())
		denomW.Mul(maskedEst, h.T())
		updateFactor(w, numerW, denomW)
		// H <- H ∘ (Wᵀ·maskedX) ⊘ (Wᵀ·(weights∘(W·H))) with the updated W.
		est.Mul(w, h)
		maskedEst.MulElem(weights, est)
		numerH.Mul(w.T(), maskedX)
		denomH.Mul(w.T(), maskedEst)
		updateFactor(h, numerH, denomH)

		est.Mul(w, h)
		diff.Sub(prevEst, est)
		maskedDiff.MulElem(weights, diff)
		fitResidual := mat.Norm(maskedDiff, 2)
		prevEst.Copy(est)
		maskedEst.MulElem(weights, est)
		diff.Sub(maskedX, maskedEst)
		residual := mat.Norm(diff, 2) / maxRating

		if nmf.errorHistory {
			info.History = append(info.History, residual)
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == nmf.nEpochs) {
			log.Logger().Info(fmt.Sprintf("fit nnmf_mult %v/%v", epoch, nmf.nEpochs),
				zap.Float64("fit_residual", fitResidual),
				zap.Float64("residual", residual))
		}
		span.Add(1)
		info.Epochs = epoch
		info.Delta = fitResidual
		info.Error = residual
		// Both residuals must clear their tolerances to stop early.
		if nmf.tol > 0 && nmf.fitTol > 0 && residual < nmf.tol && fitResidual < nmf.fitTol {
			info.Converged = true
			break
		}
	}
	span.End()
	nmf.w = w
	nmf.h = h
	nmf.fitInfo = info
	nmf.setFitted()
	log.Logger().Info("fit nnmf_mult complete",
		zap.Bool("converged", info.Converged),
		zap.Int("epochs", info.Epochs),
		zap.Float64("fit_residual", info.Delta),
		zap.Float64("residual", info.Error))
	return nil
}

// Predict reconstructs every cell as W·H. Values are not clipped to the
// observed rating range.
func (nmf *NNMFMult) Predict() error {
	if nmf.state < Fitted {
		return errors.Trace(ErrNotFitted)
	}
	var est mat.Dense
	est.Mul(nmf.w, nmf.h)
	predictions := nmf.data.Clone()
	for i := 0; i < predictions.Rows(); i++ {
		for j := 0; j < predictions.Cols(); j++ {
			predictions.Set(i, j, est.At(i, j))
		}
	}
	nmf.setPredictions(predictions)
	return nil
}

// updateFactor applies one multiplicative update in place: f ∘= numer ⊘
// denom, flooring every entry at nnmfEpsilon. A 0/0 cell yields NaN and
// floors to the epsilon as well.
func updateFactor(f, numer, denom *mat.Dense) {
	rows, cols := f.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := f.At(i, j) * numer.At(i, j) / denom.At(i, j)
			if math.IsNaN(v) || v < nnmfEpsilon {
				v = nnmfEpsilon
			}
			f.Set(i, j, v)
		}
	}
}

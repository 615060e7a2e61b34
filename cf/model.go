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
	"reflect"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/ratemat/base/copier"
	"github.com/gorse-io/ratemat/dataset"
	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
)

// State tracks the model lifecycle. States are ordered: each stage requires
// the previous ones.
type State uint8

const (
	// Created means a rating matrix is bound but nothing is derived yet.
	Created State = iota
	// Masked means a train mask withholds part of the observed ratings.
	Masked
	// Fitted means the model learned from the fitting frame.
	Fitted
	// Predicted means a full prediction matrix is available.
	Predicted
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Masked:
		return "masked"
	case Fitted:
		return "fitted"
	case Predicted:
		return "predicted"
	default:
		return "unknown"
	}
}

// FitConfig controls a fit run.
type FitConfig struct {
	Jobs    int
	Verbose int
}

// NewFitConfig returns the default fit configuration.
func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

// SetVerbose sets the verbosity: epoch progress is logged every verbose
// epochs, or never when verbose <= 0.
func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// SetJobs sets the number of concurrent jobs.
func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

// LoadDefaultIfNil returns the default configuration when config is nil.
func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// FitInfo reports the convergence diagnostics of an iterative fit. Running
// out of epochs before the tolerance is met is not an error: Converged
// stays false and the caller decides what to do with the model.
type FitInfo struct {
	// Converged reports whether the stop criterion was met within the
	// epoch budget.
	Converged bool
	// Epochs is the number of epochs actually run.
	Epochs int
	// Delta is the last change of the convergence measure.
	Delta float64
	// Error is the last value of the convergence measure.
	Error float64
	// History holds the convergence measure of every epoch when the
	// ErrorHistory hyper-parameter is set.
	History []float64
}

// Model is a collaborative filtering model over a subject-item rating
// matrix. The lifecycle is Bind, optionally SetMask or SplitTrainTest,
// Fit, Predict, Evaluate. Operations out of order fail with the lifecycle
// sentinel errors.
type Model interface {
	model.Model
	// SuggestParams suggests hyper-parameters for a goptuna trial.
	SuggestParams(trial goptuna.Trial) model.Params
	// Bind attaches a copy of a rating matrix, resetting derived state.
	Bind(data *dataset.Matrix) error
	// SetMask declares the observed cells a fit may see.
	SetMask(mask *dataset.Mask) error
	// SplitTrainTest masks nItems observed items per subject for training.
	SplitTrainTest(nItems int) error
	// SplitTrainTestRatio masks a fraction of observed items per subject.
	SplitTrainTestRatio(ratio float64) error
	// Fit learns the model from the fitting frame.
	Fit(ctx context.Context, config *FitConfig) error
	// Predict scores every subject-item cell.
	Predict() error
	// Evaluate scores predictions against a partition of the ratings.
	Evaluate(part Partition) (Score, error)
	// EvaluateSubjects scores each subject separately.
	EvaluateSubjects(part Partition) ([]Score, error)
	// State returns the lifecycle state.
	State() State
	// Masked reports whether a train mask is set.
	Masked() bool
	// Dilated reports whether the last fit used a dilated frame.
	Dilated() bool
	// Data returns the bound rating matrix.
	Data() *dataset.Matrix
	// TrainMask returns the train mask, nil when unmasked.
	TrainMask() *dataset.Mask
	// MaskedData returns the ratings with withheld cells erased.
	MaskedData() *dataset.Matrix
	// DilatedData returns the dilated fitting frame of the last fit.
	DilatedData() (*dataset.Matrix, error)
	// Predictions returns the full prediction matrix.
	Predictions() (*dataset.Matrix, error)
}

// BaseModel implements the lifecycle shared by collaborative filtering
// models: binding ratings, masking, dilation and evaluation. Concrete
// models embed it and add Fit and Predict.
type BaseModel struct {
	model.BaseModel
	data        *dataset.Matrix
	maskedData  *dataset.Matrix
	dilatedData *dataset.Matrix
	predictions *dataset.Matrix
	trainMask   *dataset.Mask
	dilatedMask *dataset.Mask
	state       State
}

// State returns the lifecycle state.
func (b *BaseModel) State() State {
	return b.state
}

// Bind attaches a copy of a rating matrix and resets everything derived
// from a previous one: train mask, dilation, fit and predictions.
func (b *BaseModel) Bind(data *dataset.Matrix) error {
	if data == nil {
		return errors.NotValidf("nil rating matrix")
	}
	b.data = data.Clone()
	b.maskedData = nil
	b.dilatedData = nil
	b.predictions = nil
	b.trainMask = nil
	b.dilatedMask = nil
	b.state = Created
	return nil
}

// SetMask declares which cells a fit may see. Cells outside the mask are
// withheld for testing. The mask must match the matrix shape and cover
// observed cells only.
func (b *BaseModel) SetMask(mask *dataset.Mask) error {
	if b.data == nil {
		return errors.Trace(ErrNoData)
	}
	if mask == nil {
		return errors.NotValidf("nil mask")
	}
	masked, err := b.data.MaskedBy(mask)
	if err != nil {
		return errors.Trace(err)
	}
	b.trainMask = mask.Clone()
	b.maskedData = masked
	b.dilatedData = nil
	b.dilatedMask = nil
	b.predictions = nil
	b.state = Masked
	return nil
}

// SplitTrainTest masks nItems randomly chosen observed items per subject
// for training, withholding the rest for testing.
func (b *BaseModel) SplitTrainTest(nItems int) error {
	if b.data == nil {
		return errors.Trace(ErrNoData)
	}
	mask, err := dataset.TrainMask(b.data, nItems, b.GetRandomGenerator())
	if err != nil {
		return errors.Trace(err)
	}
	return b.SetMask(mask)
}

// SplitTrainTestRatio masks a fraction of each subject's observed items for
// training.
func (b *BaseModel) SplitTrainTestRatio(ratio float64) error {
	if b.data == nil {
		return errors.Trace(ErrNoData)
	}
	mask, err := dataset.TrainMaskRatio(b.data, ratio, b.GetRandomGenerator())
	if err != nil {
		return errors.Trace(err)
	}
	return b.SetMask(mask)
}

// Masked reports whether a train mask is set.
func (b *BaseModel) Masked() bool {
	return b.trainMask != nil
}

// Dilated reports whether the last fit used a dilated frame.
func (b *BaseModel) Dilated() bool {
	return b.dilatedData != nil
}

// Data returns the bound rating matrix.
func (b *BaseModel) Data() *dataset.Matrix {
	return b.data
}

// TrainMask returns the train mask, nil when unmasked.
func (b *BaseModel) TrainMask() *dataset.Mask {
	return b.trainMask
}

// MaskedData returns the ratings with withheld cells erased, nil when
// unmasked.
func (b *BaseModel) MaskedData() *dataset.Matrix {
	return b.maskedData
}

// DilatedData returns the dilated fitting frame of the last fit.
func (b *BaseModel) DilatedData() (*dataset.Matrix, error) {
	if b.state < Fitted {
		return nil, errors.Trace(ErrNotFitted)
	}
	if b.dilatedData == nil {
		return nil, errors.NotValidf("model was fitted without dilation")
	}
	return b.dilatedData, nil
}

// Predictions returns the full prediction matrix.
func (b *BaseModel) Predictions() (*dataset.Matrix, error) {
	if b.state < Predicted {
		return nil, errors.Trace(ErrNotPredicted)
	}
	return b.predictions, nil
}

// fitFrame picks the matrix a fit runs on: the masked ratings when a train
// mask is set, the raw ratings otherwise, forward dilated by window
// observations when window > 0. The returned mask is the frame's observed
// pattern.
func (b *BaseModel) fitFrame(window int) (*dataset.Matrix, *dataset.Mask, error) {
	if b.data == nil {
		return nil, nil, errors.Trace(ErrNoData)
	}
	b.dilatedData = nil
	b.dilatedMask = nil
	frame := b.data
	if b.trainMask != nil {
		frame = b.maskedData
	}
	if window > 0 {
		// Dilating raw ratings would smear test cells into training.
		if b.trainMask == nil {
			return nil, nil, errors.Trace(ErrNotMasked)
		}
		dilated, err := dataset.Dilate(frame, window)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		b.dilatedData = dilated
		b.dilatedMask = dataset.ObservedMask(dilated)
		return b.dilatedData, b.dilatedMask, nil
	}
	return frame, dataset.ObservedMask(frame), nil
}

// setFitted marks the fit stage done, dropping stale predictions.
func (b *BaseModel) setFitted() {
	b.predictions = nil
	b.state = Fitted
}

// setPredictions stores the prediction matrix and marks the model scored.
func (b *BaseModel) setPredictions(predictions *dataset.Matrix) {
	b.predictions = predictions
	b.state = Predicted
}

// clearFit drops everything the last fit derived, keeping the bound data
// and the train mask.
func (b *BaseModel) clearFit() {
	b.dilatedData = nil
	b.dilatedMask = nil
	b.predictions = nil
	if b.trainMask != nil {
		b.state = Masked
	} else {
		b.state = Created
	}
}

// Clone a model with deep copy of its hyper-parameters. Bound data and
// learned state are not carried over: the clone starts a new lifecycle.
func Clone(m Model) Model {
	var copied Model
	if err := copier.Copy(&copied, m); err != nil {
		panic(err)
	} else {
		copied.SetParams(copied.GetParams())
		return copied
	}
}

// GetModelName returns the short name of a model type.
func GetModelName(m Model) string {
	switch m.(type) {
	case *Mean:
		return "mean"
	case *KNN:
		return "knn"
	case *NNMFMult:
		return "nnmf_mult"
	case *NNMFSGD:
		return "nnmf_sgd"
	default:
		return reflect.TypeOf(m).String()
	}
}

// NewModel builds a model from its short name.
func NewModel(name string, params model.Params) (Model, error) {
	switch name {
	case "mean":
		return NewMean(params), nil
	case "knn":
		return NewKNN(params), nil
	case "nnmf_mult":
		return NewNNMFMult(params), nil
	case "nnmf_sgd":
		return NewNNMFSGD(params), nil
	}
	return nil, errors.NotValidf("model %v", name)
}

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
	"github.com/gorse-io/ratemat/base"
	"github.com/gorse-io/ratemat/base/log"
	"github.com/gorse-io/ratemat/base/progress"
	"github.com/gorse-io/ratemat/dataset"
	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// CrossValidate evaluates test performance across k folds of the observed
// ratings. Each fold becomes the train partition once: the model is bound
// to the full matrix, masked by the fold's observed pattern, fitted,
// scored on the withheld cells. The model is refit in place and ends up
// holding the last fold's fit.
func CrossValidate(ctx context.Context, m Model, data *dataset.Matrix, nFolds int, config *FitConfig) ([]Score, error) {
	if data == nil {
		return nil, errors.Trace(ErrNoData)
	}
	rng := base.NewRandomGenerator(m.GetParams().GetInt64(model.RandomState, 0))
	folds, err := dataset.KFold(data, nFolds, rng)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make([]Score, len(folds))
	newCtx, span := progress.Start(ctx, "CrossValidate", len(folds))
	for f, fold := range folds {
		m.Clear()
		if err := m.Bind(data); err != nil {
			return nil, errors.Trace(err)
		}
		if err := m.SetMask(dataset.ObservedMask(fold.Train)); err != nil {
			return nil, errors.Trace(err)
		}
		if err := m.Fit(newCtx, config); err != nil {
			return nil, errors.Trace(err)
		}
		if err := m.Predict(); err != nil {
			return nil, errors.Trace(err)
		}
		score, err := m.Evaluate(Test)
		if err != nil {
			return nil, errors.Trace(err)
		}
		scores[f] = score
		log.Logger().Info(fmt.Sprintf("cross validate %v/%v", f+1, len(folds)),
			zap.Float64("mse", score.MSE),
			zap.Float64("rmse", score.RMSE),
			zap.Float64("mae", score.MAE),
			zap.Float64("corr", score.Corr))
		span.Add(1)
	}
	span.End()
	return scores, nil
}

// MeanScore averages fold scores.
func MeanScore(scores []Score) Score {
	var mean Score
	for _, score := range scores {
		mean.MSE += score.MSE
		mean.RMSE += score.RMSE
		mean.MAE += score.MAE
		mean.Corr += score.Corr
	}
	n := float64(len(scores))
	mean.MSE /= n
	mean.RMSE /= n
	mean.MAE /= n
	mean.Corr /= n
	return mean
}

// ParamsSearchResult contains the return of a hyper-parameter search.
// BestModel carries the winning hyper-parameters in a fresh unfitted
// instance.
type ParamsSearchResult struct {
	BestModel  Model
	BestScore  Score
	BestParams model.Params
	BestIndex  int
	Scores     []Score
	Params     []model.Params
}

// AddScore records one candidate. The lowest test MSE wins.
func (r *ParamsSearchResult) AddScore(params model.Params, score Score, m Model) {
	first := len(r.Scores) == 0
	r.Scores = append(r.Scores, score)
	r.Params = append(r.Params, params.Copy())
	if first || score.MSE < r.BestScore.MSE {
		r.BestModel = Clone(m)
		r.BestScore = score
		r.BestParams = params.Copy()
		r.BestIndex = len(r.Params) - 1
	}
}

// GridSearchCV searches the best hyper-parameters exhaustively, scoring
// every combination of the grid with k-fold cross validation. The
// estimator is refit in place for every candidate.
func GridSearchCV(ctx context.Context, estimator Model, data *dataset.Matrix, paramGrid model.ParamsGrid, nFolds int, fitConfig *FitConfig) (ParamsSearchResult, error) {
	paramNames := make([]model.ParamName, 0, len(paramGrid))
	total := 1
	for paramName, values := range paramGrid {
		paramNames = append(paramNames, paramName)
		total *= len(values)
	}
	results := ParamsSearchResult{
		Scores: make([]Score, 0, total),
		Params: make([]model.Params, 0, total),
	}

	var searchErr error
	count := 0
	var dfs func(deep int, params model.Params)
	newCtx, span := progress.Start(ctx, "GridSearchCV", total)
	dfs = func(deep int, params model.Params) {
		if searchErr != nil {
			return
		}
		if deep == len(paramNames) {
			count++
			log.Logger().Info(fmt.Sprintf("grid search %v/%v", count, total),
				zap.Any("params", params))
			estimator.Clear()
			estimator.SetParams(estimator.GetParams().Overwrite(params))
			scores, err := CrossValidate(newCtx, estimator, data, nFolds, fitConfig)
			if err != nil {
				searchErr = errors.Trace(err)
				return
			}
			results.AddScore(params, MeanScore(scores), estimator)
			span.Add(1)
		} else {
			paramName := paramNames[deep]
			for _, paramValue := range paramGrid[paramName] {
				params[paramName] = paramValue
				dfs(deep+1, params)
			}
		}
	}
	dfs(0, model.Params{})
	span.End()
	if searchErr != nil {
		return ParamsSearchResult{}, searchErr
	}
	return results, nil
}

// RandomSearchCV searches hyper-parameters by random sampling from the
// grid. When the grid holds fewer combinations than numTrials the search
// degrades to GridSearchCV.
func RandomSearchCV(ctx context.Context, estimator Model, data *dataset.Matrix, paramGrid model.ParamsGrid, numTrials, nFolds int, seed int64, fitConfig *FitConfig) (ParamsSearchResult, error) {
	if paramGrid.NumCombinations() < numTrials {
		return GridSearchCV(ctx, estimator, data, paramGrid, nFolds, fitConfig)
	}
	rng := base.NewRandomGenerator(seed)
	results := ParamsSearchResult{
		Scores: make([]Score, 0, numTrials),
		Params: make([]model.Params, 0, numTrials),
	}
	newCtx, span := progress.Start(ctx, "RandomSearchCV", numTrials)
	for trial := 1; trial <= numTrials; trial++ {
		params := model.Params{}
		for paramName, values := range paramGrid {
			params[paramName] = values[rng.Intn(len(values))]
		}
		log.Logger().Info(fmt.Sprintf("random search %v/%v", trial, numTrials),
			zap.Any("params", params))
		estimator.Clear()
		estimator.SetParams(estimator.GetParams().Overwrite(params))
		scores, err := CrossValidate(newCtx, estimator, data, nFolds, fitConfig)
		if err != nil {
			return ParamsSearchResult{}, errors.Trace(err)
		}
		results.AddScore(params, MeanScore(scores), estimator)
		span.Add(1)
	}
	span.End()
	return results, nil
}

// ModelCreator builds a fresh model for one search trial.
type ModelCreator func() Model

// ModelSearchResult records the winner of a model search study.
type ModelSearchResult struct {
	Type   string
	Params model.Params
	Score  Score
}

// ModelSearch is a goptuna objective searching model types and their
// hyper-parameters at once. The study direction is minimize: the lowest
// cross validated test MSE wins.
type ModelSearch struct {
	modelCreators map[string]ModelCreator
	modelTypes    []string
	data          *dataset.Matrix
	nFolds        int
	config        *FitConfig
	result        ModelSearchResult
}

// NewModelSearch creates a model search objective over named model
// creators.
func NewModelSearch(models map[string]ModelCreator, data *dataset.Matrix, nFolds int, config *FitConfig) *ModelSearch {
	return &ModelSearch{
		modelCreators: models,
		modelTypes:    maps.Keys(models),
		data:          data,
		nFolds:        nFolds,
		config:        config,
		result:        ModelSearchResult{Score: Score{MSE: math.Inf(1)}},
	}
}

// Objective runs one trial: build the suggested model type with suggested
// hyper-parameters and cross validate it.
func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	if len(ms.modelCreators) == 0 {
		return 0, errors.New("no model to search")
	}
	modelType, err := trial.SuggestCategorical("Model", ms.modelTypes)
	if err != nil {
		return 0, errors.Trace(err)
	}
	m := ms.modelCreators[modelType]()
	m.SetParams(m.GetParams().Overwrite(m.SuggestParams(trial)))
	scores, err := CrossValidate(context.Background(), m, ms.data, ms.nFolds, ms.config)
	if err != nil {
		return 0, errors.Trace(err)
	}
	score := MeanScore(scores)
	if score.MSE < ms.result.Score.MSE {
		ms.result = ModelSearchResult{
			Type:   modelType,
			Params: m.GetParams(),
			Score:  score,
		}
	}
	return score.MSE, nil
}

// Result returns the best model type found so far.
func (ms *ModelSearch) Result() ModelSearchResult {
	return ms.result
}

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
	"sort"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/ratemat/base/log"
	"github.com/gorse-io/ratemat/common/heap"
	"github.com/gorse-io/ratemat/common/parallel"
	"github.com/gorse-io/ratemat/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// KNN predicts a subject's ratings from the ratings of the most similar
// subjects. Similarity is computed pairwise over mutually observed items
// only, so arbitrary missing-data patterns need no imputation.
//
// Hyper-parameters:
//
//	Similarity     - Similarity metric, one of "pearson", "spearman" and
//	                 "cosine". Default is "pearson".
//	K              - Number of neighbors. Values <= 0 use every subject.
//	                 Default is 0.
//	NDilateSamples - Forward dilation window applied to the fitting frame.
//	                 Default is 0 (disabled).
type KNN struct {
	BaseModel
	k                 int
	similarity        string
	nDilateSamples    int
	jobs              int
	subjectSimilarity *mat.SymDense
}

// NewKNN builds a neighborhood model from hyper-parameters.
func NewKNN(params model.Params) *KNN {
	knn := new(KNN)
	knn.SetParams(params)
	return knn
}

// SetParams sets hyper-parameters for the KNN model.
func (knn *KNN) SetParams(params model.Params) {
	knn.BaseModel.SetParams(params)
	knn.k = knn.Params.GetInt(model.K, 0)
	knn.similarity = knn.Params.GetString(model.Similarity, model.SimilarityPearson)
	knn.nDilateSamples = knn.Params.GetInt(model.NDilateSamples, 0)
}

// GetParamsGrid returns the default hyper-parameter grid.
func (knn *KNN) GetParamsGrid() model.ParamsGrid {
	return model.ParamsGrid{
		model.Similarity: []interface{}{model.SimilarityPearson, model.SimilaritySpearman, model.SimilarityCosine},
		model.K:          []interface{}{0, 5, 10, 20},
	}
}

// SuggestParams suggests hyper-parameters for a goptuna trial.
func (knn *KNN) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.Similarity: lo.Must(trial.SuggestCategorical(string(model.Similarity),
			[]string{model.SimilarityPearson, model.SimilaritySpearman, model.SimilarityCosine})),
		model.K: int(lo.Must(trial.SuggestDiscreteFloat(string(model.K), 0, 50, 5))),
	}
}

// Clear resets the learned similarity matrix.
func (knn *KNN) Clear() {
	knn.subjectSimilarity = nil
	knn.clearFit()
}

// SubjectSimilarity returns the pairwise subject similarity matrix of the
// last fit. Pairs sharing fewer than two observed items hold NaN.
func (knn *KNN) SubjectSimilarity() *mat.SymDense {
	return knn.subjectSimilarity
}

// Fit computes the pairwise subject similarity over the fitting frame.
func (knn *KNN) Fit(ctx context.Context, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	if knn.similarity != model.SimilarityPearson &&
		knn.similarity != model.SimilaritySpearman &&
		knn.similarity != model.SimilarityCosine {
		return errors.NotValidf("similarity %v", knn.similarity)
	}
	frame, _, err := knn.fitFrame(knn.nDilateSamples)
	if err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit knn",
		zap.Int("n_subjects", frame.Rows()),
		zap.Int("n_items", frame.Cols()),
		zap.Any("params", knn.GetParams()),
		zap.Any("config", config))
	rows := make([][]float64, frame.Rows())
	for i := range rows {
		rows[i] = frame.Row(i)
	}
	// Worker i fills the upper triangle row i, so no cell is written twice.
	similarity := mat.NewSymDense(frame.Rows(), nil)
	if err := parallel.Parallel(ctx, frame.Rows(), config.Jobs, func(_, i int) error {
		similarity.SetSym(i, i, 1)
		for j := i + 1; j < frame.Rows(); j++ {
			similarity.SetSym(i, j, pairSimilarity(rows[i], rows[j], knn.similarity))
		}
		return nil
	}); err != nil {
		return errors.Trace(err)
	}
	knn.subjectSimilarity = similarity
	knn.jobs = config.Jobs
	knn.setFitted()
	log.Logger().Info("fit knn complete")
	return nil
}

// Predict fills every cell with the similarity-weighted sum of the top k
// neighbors' raw ratings divided by the neighbor count. A missing neighbor
// rating leaves the cell NaN and evaluation drops it pairwise. A subject
// without a single defined similarity fails with ErrNoNeighbors.
func (knn *KNN) Predict() error {
	if knn.state < Fitted {
		return errors.Trace(ErrNotFitted)
	}
	predictions := knn.data.Clone()
	var nanCells atomic.Int64
	if err := parallel.Parallel(context.Background(), knn.data.Rows(), knn.jobs, func(_, u int) error {
		neighbors, weights, err := knn.neighbors(u)
		if err != nil {
			return errors.Trace(err)
		}
		count := float64(len(neighbors))
		for j := 0; j < knn.data.Cols(); j++ {
			sum := 0.0
			for t, v := range neighbors {
				sum += weights[t] * knn.data.Get(v, j)
			}
			value := sum / count
			if math.IsNaN(value) {
				nanCells.Inc()
			}
			predictions.Set(u, j, value)
		}
		return nil
	}); err != nil {
		return errors.Trace(err)
	}
	knn.setPredictions(predictions)
	if n := nanCells.Load(); n > 0 {
		log.Logger().Warn("predict knn left cells undefined",
			zap.Int64("nan_cells", n))
	}
	return nil
}

// neighbors returns the top k subjects most similar to u with their
// similarities, excluding u itself and undefined pairs. Negative
// similarities are legitimate neighbors.
func (knn *KNN) neighbors(u int) ([]int, []float64, error) {
	n := knn.data.Rows()
	k := knn.k
	if k <= 0 || k > n-1 {
		k = n - 1
	}
	filter := heap.NewTopKFilter[int, float64](k)
	for v := 0; v < n; v++ {
		if v == u {
			continue
		}
		if s := knn.subjectSimilarity.At(u, v); !math.IsNaN(s) {
			filter.Push(v, s)
		}
	}
	elems := filter.PopAll()
	if len(elems) == 0 {
		log.Logger().Error("no viable neighbors", zap.Int("subject", u))
		return nil, nil, errors.Trace(ErrNoNeighbors)
	}
	neighbors := make([]int, len(elems))
	weights := make([]float64, len(elems))
	for t, elem := range elems {
		neighbors[t] = elem.Value
		weights[t] = elem.Weight
	}
	return neighbors, weights, nil
}

// pairSimilarity computes the similarity of two subjects over their
// mutually observed items. Fewer than two shared items give NaN.
func pairSimilarity(x, y []float64, metric string) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for t := range x {
		if !math.IsNaN(x[t]) && !math.IsNaN(y[t]) {
			xs = append(xs, x[t])
			ys = append(ys, y[t])
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	switch metric {
	case model.SimilaritySpearman:
		xs, ys = ranks(xs), ranks(ys)
		fallthrough
	case model.SimilarityPearson:
		return stat.Correlation(xs, ys, nil)
	default:
		dot := floats.Dot(xs, ys)
		norm := math.Sqrt(floats.Dot(xs, xs) * floats.Dot(ys, ys))
		if norm == 0 {
			return math.NaN()
		}
		return dot / norm
	}
}

// ranks replaces values with their 1-based average ranks, the Spearman
// transform. Ties share the mean of the ranks they span.
func ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	ranked := make([]float64, len(xs))
	for begin := 0; begin < len(idx); {
		end := begin + 1
		for end < len(idx) && xs[idx[end]] == xs[idx[begin]] {
			end++
		}
		rank := float64(begin+end+1) / 2
		for t := begin; t < end; t++ {
			ranked[idx[t]] = rank
		}
		begin = end
	}
	return ranked
}

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

package model

import (
	"reflect"

	"github.com/gorse-io/ratemat/base/log"
	"go.uber.org/zap"
)

/* ParamName */

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	Lr             ParamName = "Lr"             // learning rate
	Reg            ParamName = "Reg"            // regularization strength, fallback for the per-term regularizations
	SubjectReg     ParamName = "SubjectReg"     // subject factor regularization
	ItemReg        ParamName = "ItemReg"        // item factor regularization
	SubjectBiasReg ParamName = "SubjectBiasReg" // subject bias regularization
	ItemBiasReg    ParamName = "ItemBiasReg"    // item bias regularization
	NEpochs        ParamName = "NEpochs"        // number of epochs or iterations
	NFactors       ParamName = "NFactors"       // number of factors
	RandomState    ParamName = "RandomState"    // random state (seed)
	K              ParamName = "K"              // number of neighbors
	Similarity     ParamName = "Similarity"     // similarity metric name
	Tol            ParamName = "Tol"            // convergence tolerance
	FitTol         ParamName = "FitTol"         // reconstruction-change tolerance
	NDilateSamples ParamName = "NDilateSamples" // forward dilation window for time-series ratings
	ErrorHistory   ParamName = "ErrorHistory"   // record per-epoch error history
)

// Predefined values for the Similarity hyper-parameter.
const (
	SimilarityPearson  = "pearson"
	SimilaritySpearman = "spearman"
	SimilarityCosine   = "cosine"
)

// Params stores hyper-parameters for a model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for the
// SGD factorization model are given by:
//
//	model.Params{
//		model.Lr:       0.001,
//		model.NEpochs:  5000,
//		model.NFactors: 10,
//		model.Tol:      0.001,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets an integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int64"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetBool gets a bool parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "bool"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetFloat64 gets a float parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given float32 or int.
func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "float64"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetString gets a string parameter. Returns _default if not exists or type doesn't match.
func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "string"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// Overwrite returns a new Params with params merged over the receiver.
func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// ParamsGrid contains candidates for grid search.
type ParamsGrid map[ParamName][]interface{}

func (grid ParamsGrid) Len() int {
	return len(grid)
}

// NumCombinations returns the number of combinations in the grid.
func (grid ParamsGrid) NumCombinations() int {
	count := 1
	for _, values := range grid {
		count *= len(values)
	}
	return count
}

// Fill adds defaults for params absent from the grid.
func (grid ParamsGrid) Fill(_default ParamsGrid) {
	for param, values := range _default {
		if _, exist := grid[param]; !exist {
			grid[param] = values
		}
	}
}

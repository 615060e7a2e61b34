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

import "github.com/juju/errors"

// Lifecycle errors. Operations that run out of order fail with one of these
// sentinels so callers can match them with errors.Is. Invalid arguments and
// hyper-parameters fail with errors.NotValidf instead.
var (
	// ErrNoData reports an operation that needs a rating matrix before Bind
	// was called.
	ErrNoData = errors.New("no rating matrix bound, call Bind first")
	// ErrNotMasked reports a train/test operation on a model without a train
	// mask.
	ErrNotMasked = errors.New("model has no train mask, call SetMask or SplitTrainTest first")
	// ErrNotFitted reports Predict or a fit accessor called before Fit.
	ErrNotFitted = errors.New("model has not been fitted, call Fit first")
	// ErrNotPredicted reports an evaluation called before Predict.
	ErrNotPredicted = errors.New("model has no predictions, call Predict first")
	// ErrNoTestData reports a test evaluation with zero observed withheld
	// cells.
	ErrNoTestData = errors.New("no observed ratings in the test partition")
	// ErrNoNeighbors reports a subject whose similarity to every other
	// subject is undefined, leaving nothing to average.
	ErrNoNeighbors = errors.New("no viable neighbors")
)

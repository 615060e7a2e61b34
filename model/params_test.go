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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Copy(t *testing.T) {
	// Create parameters
	a := Params{
		NFactors:    1,
		Lr:          0.1,
		RandomState: 0,
	}
	// Create copy
	b := a.Copy()
	b[NFactors] = 2
	b[Lr] = 0.2
	b[RandomState] = 1
	// Check original parameters
	assert.Equal(t, 1, a.GetInt(NFactors, -1))
	assert.Equal(t, 0.1, a.GetFloat64(Lr, -0.1))
	assert.Equal(t, int64(0), a.GetInt64(RandomState, -1))
	// Check copy parameters
	assert.Equal(t, 2, b.GetInt(NFactors, -1))
	assert.Equal(t, 0.2, b.GetFloat64(Lr, -0.1))
	assert.Equal(t, int64(1), b.GetInt64(RandomState, -1))
}

func TestParams_GetFloat64(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, 0.1, p.GetFloat64(Lr, 0.1))
	// Normal case
	p[Lr] = 1.0
	assert.Equal(t, 1.0, p.GetFloat64(Lr, 0.1))
	// Convertible cases
	p[Lr] = 1
	assert.Equal(t, 1.0, p.GetFloat64(Lr, 0.1))
	p[Lr] = float32(1.0)
	assert.Equal(t, 1.0, p.GetFloat64(Lr, 0.1))
	// Wrong type case
	p[Lr] = "hello"
	assert.Equal(t, 0.1, p.GetFloat64(Lr, 0.1))
}

func TestParams_GetInt(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, -1, p.GetInt(NFactors, -1))
	// Normal case
	p[NFactors] = 0
	assert.Equal(t, 0, p.GetInt(NFactors, -1))
	// Wrong type case
	p[NFactors] = "hello"
	assert.Equal(t, -1, p.GetInt(NFactors, -1))
}

func TestParams_GetInt64(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, int64(-1), p.GetInt64(RandomState, -1))
	// Normal case
	p[RandomState] = int64(0)
	assert.Equal(t, int64(0), p.GetInt64(RandomState, -1))
	// Convertible case
	p[RandomState] = 0
	assert.Equal(t, int64(0), p.GetInt64(RandomState, -1))
	// Wrong type case
	p[RandomState] = "hello"
	assert.Equal(t, int64(-1), p.GetInt64(RandomState, -1))
}

func TestParams_GetBool(t *testing.T) {
	p := Params{}
	// Empty case
	assert.False(t, p.GetBool(ErrorHistory, false))
	// Normal case
	p[ErrorHistory] = true
	assert.True(t, p.GetBool(ErrorHistory, false))
	// Wrong type case
	p[ErrorHistory] = 1
	assert.False(t, p.GetBool(ErrorHistory, false))
}

func TestParams_GetString(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, "pearson", p.GetString(Similarity, "pearson"))
	// Normal case
	p[Similarity] = "cosine"
	assert.Equal(t, "cosine", p.GetString(Similarity, "pearson"))
	// Wrong type case
	p[Similarity] = 1
	assert.Equal(t, "pearson", p.GetString(Similarity, "pearson"))
}

func TestParams_Overwrite(t *testing.T) {
	a := Params{
		NFactors: 10,
		Lr:       0.5,
	}
	b := a.Overwrite(Params{
		Lr:      0.1,
		NEpochs: 100,
	})
	assert.Equal(t, 10, b.GetInt(NFactors, -1))
	assert.Equal(t, 0.1, b.GetFloat64(Lr, -1))
	assert.Equal(t, 100, b.GetInt(NEpochs, -1))
	// The original parameters stay untouched.
	assert.Equal(t, 0.5, a.GetFloat64(Lr, -1))
	assert.Equal(t, -1, a.GetInt(NEpochs, -1))
}

func TestParamsGrid(t *testing.T) {
	grid := ParamsGrid{
		NFactors: []interface{}{10, 20, 30},
		Lr:       []interface{}{0.01, 0.1},
	}
	assert.Equal(t, 2, grid.Len())
	assert.Equal(t, 6, grid.NumCombinations())
	grid.Fill(ParamsGrid{
		NFactors: []interface{}{5},
		NEpochs:  []interface{}{100, 200},
	})
	// Existing entries are kept, missing entries are filled.
	assert.Equal(t, []interface{}{10, 20, 30}, grid[NFactors])
	assert.Equal(t, []interface{}{100, 200}, grid[NEpochs])
	assert.Equal(t, 12, grid.NumCombinations())
}

func TestBaseModel_SetParams(t *testing.T) {
	m := &BaseModel{}
	m.SetParams(Params{RandomState: 42})
	assert.Equal(t, Params{RandomState: 42}, m.GetParams())
	// The same seed yields the same sequence.
	n := &BaseModel{}
	n.SetParams(Params{RandomState: 42})
	assert.Equal(t, m.GetRandomGenerator().Float64(), n.GetRandomGenerator().Float64())
}

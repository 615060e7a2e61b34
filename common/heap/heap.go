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

package heap

import (
	"golang.org/x/exp/constraints"
)

// Elem is an element with a weight.
type Elem[T any, W constraints.Ordered] struct {
	Value  T
	Weight W
}

// _heap is a min-heap on weights implementing container/heap.Interface.
type _heap[T any, W constraints.Ordered] []Elem[T, W]

func (h _heap[T, W]) Len() int {
	return len(h)
}

func (h _heap[T, W]) Less(i, j int) bool {
	return h[i].Weight < h[j].Weight
}

func (h _heap[T, W]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *_heap[T, W]) Push(x any) {
	*h = append(*h, x.(Elem[T, W]))
}

func (h *_heap[T, W]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

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

package dataset

// Dict maps axis labels to dense indices in insertion order.
type Dict struct {
	si map[string]int
	is []string
}

func NewDict() *Dict {
	return &Dict{si: map[string]int{}, is: []string{}}
}

func (d *Dict) Count() int {
	return len(d.is)
}

// Add returns the index of s, inserting it if absent.
func (d *Dict) Add(s string) (y int) {
	if y, ok := d.si[s]; ok {
		return y
	}

	y = len(d.is)
	d.si[s] = y
	d.is = append(d.is, s)
	return
}

// Index returns the index of s without inserting.
func (d *Dict) Index(s string) (y int, ok bool) {
	y, ok = d.si[s]
	return
}

func (d *Dict) String(id int) (s string, ok bool) {
	if id < 0 || id >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

// Strings returns a copy of all labels in insertion order.
func (d *Dict) Strings() []string {
	s := make([]string, len(d.is))
	copy(s, d.is)
	return s
}

func (d *Dict) Clone() *Dict {
	clone := &Dict{
		si: make(map[string]int, len(d.si)),
		is: make([]string, len(d.is)),
	}
	for k, v := range d.si {
		clone.si[k] = v
	}
	copy(clone.is, d.is)
	return clone
}

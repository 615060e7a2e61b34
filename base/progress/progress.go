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

package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

type Status string

const (
	StatusPending  Status = "Pending"
	StatusComplete Status = "Complete"
	StatusRunning  Status = "Running"
	StatusFailed   Status = "Failed"
)

// Tracer collects root spans so long running fits and searches can be
// inspected while they run.
type Tracer struct {
	name  string
	spans sync.Map
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name}
}

// Start creates a root span.
func (t *Tracer) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	span := &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
	t.spans.Store(name, span)
	return context.WithValue(ctx, spanKeyName, span), span
}

// List returns the progress of all root spans, recursively scaled by any
// running child span.
func (t *Tracer) List() []Progress {
	var progress []Progress
	t.spans.Range(func(_, value interface{}) bool {
		span := value.(*Span)
		p := span.Progress()
		p.Tracer = t.name
		progress = append(progress, p)
		return true
	})
	return progress
}

type Span struct {
	name     string
	status   Status
	total    int
	count    int
	err      error
	start    time.Time
	finish   time.Time
	children sync.Map
	mu       sync.Mutex
}

// Add advances the span by n steps. Safe to call from parallel workers.
func (s *Span) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += n
}

// End completes the span.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusComplete
	s.count = s.total
	s.finish = time.Now()
}

// Fail marks the span as failed. A failed descendant surfaces through the
// root span's progress.
func (s *Span) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.err = err
	s.finish = time.Now()
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Progress reports the span's progress. While a child span runs, counts are
// rescaled so that each parent step spans the child's total.
func (s *Span) Progress() Progress {
	s.mu.Lock()
	p := Progress{
		Name:       s.name,
		Status:     s.status,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}
	if s.err != nil {
		p.Status = StatusFailed
		p.Error = s.err.Error()
	}
	s.mu.Unlock()
	s.children.Range(func(_, value interface{}) bool {
		child := value.(*Span).Progress()
		switch child.Status {
		case StatusFailed:
			p.Status = StatusFailed
			p.Error = child.Error
		case StatusRunning:
			p.Count = p.Count*child.Total + child.Count
			p.Total = p.Total * child.Total
		}
		return true
	})
	return p
}

// Start creates a span nested under the span carried by ctx. Without a
// parent span the returned span is standalone and ctx passes through
// unchanged.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	childSpan := &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
	if ctx == nil {
		return context.Background(), childSpan
	}
	span, ok := ctx.Value(spanKeyName).(*Span)
	if !ok {
		return ctx, childSpan
	}
	span.children.Store(name, childSpan)
	return context.WithValue(ctx, spanKeyName, childSpan), childSpan
}

// Fail marks the span carried by ctx as failed.
func Fail(ctx context.Context, err error) {
	if ctx == nil {
		return
	}
	if span, ok := ctx.Value(spanKeyName).(*Span); ok {
		span.Fail(err)
	}
}

type Progress struct {
	Tracer     string
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
}

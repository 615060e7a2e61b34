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

package parallel

import (
	"context"
	"sync"

	"github.com/gorse-io/ratemat/common/util"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const chanSize = 1024

/* Parallel Schedulers */

// Parallel schedules and runs jobs in parallel. nJobs is the number of jobs,
// nWorkers the number of executors. worker receives the worker id and the
// job id. The ctx argument allows callers to cancel outstanding work.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := worker(0, i); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	c := make(chan int, chanSize)
	// producer
	go func() {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-ctx.Done():
				return
			case c <- i:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	errs := make([]error, nJobs)
	for j := 0; j < nWorkers; j++ {
		// start workers
		workerId := j
		wg.Go(func() {
			defer util.CheckPanic()
			for {
				select {
				case <-ctx.Done():
					return
				case jobId, ok := <-c:
					if !ok {
						return
					}
					if err := ctx.Err(); err != nil {
						errs[jobId] = err
						return
					}
					// run job
					if err := worker(workerId, jobId); err != nil {
						errs[jobId] = err
						return
					}
				}
			}
		})
	}
	wg.Wait()
	// check errors
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(ctx.Err())
}

// For runs jobs in parallel without collecting worker errors. The returned
// error is non-nil only when ctx is canceled before all jobs complete.
func For(ctx context.Context, nJobs, nWorkers int, worker func(jobId int)) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			worker(i)
		}
		return nil
	}
	c := make(chan int, chanSize)
	// producer
	go func() {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-ctx.Done():
				return
			case c <- i:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	for j := 0; j < nWorkers; j++ {
		wg.Go(func() {
			defer util.CheckPanic()
			for {
				select {
				case <-ctx.Done():
					return
				case jobId, ok := <-c:
					if !ok {
						return
					}
					worker(jobId)
				}
			}
		})
	}
	wg.Wait()
	return errors.Trace(ctx.Err())
}

// ForEach runs a job for every element of a slice in parallel.
func ForEach[T any](ctx context.Context, a []T, nWorkers int, worker func(int, T)) error {
	if nWorkers <= 1 {
		for i, v := range a {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			worker(i, v)
		}
		return nil
	}
	c := make(chan lo.Tuple2[int, T], chanSize)
	// producer
	go func() {
		defer close(c)
		for i, v := range a {
			select {
			case <-ctx.Done():
				return
			case c <- lo.Tuple2[int, T]{A: i, B: v}:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	for j := 0; j < nWorkers; j++ {
		wg.Go(func() {
			defer util.CheckPanic()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-c:
					if !ok {
						return
					}
					worker(job.A, job.B)
				}
			}
		})
	}
	wg.Wait()
	return errors.Trace(ctx.Err())
}

// Split a slice into n slices and keep the order of elements.
func Split[T any](a []T, n int) [][]T {
	if len(a) == 0 {
		return nil
	}
	if n > len(a) {
		n = len(a)
	}
	minChunkSize := len(a) / n
	maxChunkNum := len(a) % n
	chunks := make([][]T, n)
	for i, j := 0, 0; i < n; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		chunks[i] = a[j : j+chunkSize]
		j += chunkSize
	}
	return chunks
}

// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatcher

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned once the dispatcher has been closed
var ErrClosed = errors.New("dispatcher closed")

type job struct {
	run  func()
	done chan struct{}
}

// pool runs blocking device work off the request goroutines
type pool struct {
	jobs   chan job
	wg     sync.WaitGroup
	mutex  sync.RWMutex
	closed bool
}

func newPool(workers, queueSize int) *pool {
	p := &pool{jobs: make(chan job, queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.run()
		close(j.done)
	}
}

// submit queues fn and waits for it. A cancelled ctx stops the wait, not
// the job.
func (p *pool) submit(ctx context.Context, fn func()) error {
	j := job{run: fn, done: make(chan struct{})}

	p.mutex.RLock()
	if p.closed {
		p.mutex.RUnlock()
		return ErrClosed
	}
	select {
	case p.jobs <- j:
		p.mutex.RUnlock()
	case <-ctx.Done():
		p.mutex.RUnlock()
		return ctx.Err()
	}

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close lets queued jobs finish and stops the workers
func (p *pool) close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mutex.Unlock()

	p.wg.Wait()
}

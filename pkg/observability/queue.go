// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
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

package observability

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of finished spans. It implements Recorder so a
// Tracer can hand spans to it directly. Any number of goroutines may record
// spans; a single consumer pops them and marks each one done.
//
// Record never blocks and never drops: a consumer that cannot keep up results
// in memory growth, observable through Len.
type Queue struct {
	mtx     sync.Mutex
	items   []SpanData
	pending int
	drained chan struct{}
	ready   chan struct{}
}

var _ Recorder = (*Queue)(nil)

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	drained := make(chan struct{})
	close(drained)
	return &Queue{
		drained: drained,
		ready:   make(chan struct{}, 1),
	}
}

// Record implements Recorder by enqueueing span.
func (q *Queue) Record(span SpanData) {
	q.mtx.Lock()
	q.items = append(q.items, span)
	if q.pending == 0 {
		q.drained = make(chan struct{})
	}
	q.pending++
	q.mtx.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest span, waiting for one to arrive if the
// Queue is empty. It returns ctx.Err() if ctx is done first.
func (q *Queue) Pop(ctx context.Context) (SpanData, error) {
	for {
		q.mtx.Lock()
		if len(q.items) > 0 {
			span := q.items[0]
			q.items[0] = SpanData{}
			q.items = q.items[1:]
			q.mtx.Unlock()
			return span, nil
		}
		q.mtx.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return SpanData{}, ctx.Err()
		}
	}
}

// Done marks one popped span as processed.
func (q *Queue) Done() {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.pending == 0 {
		panic("observability: Queue.Done called more times than Record")
	}
	q.pending--
	if q.pending == 0 {
		close(q.drained)
	}
}

// Join blocks until every recorded span has been marked done or ctx is done.
func (q *Queue) Join(ctx context.Context) error {
	q.mtx.Lock()
	drained := q.drained
	q.mtx.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of spans waiting to be popped.
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.items)
}

// Pending returns the number of spans recorded but not yet marked done.
func (q *Queue) Pending() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.pending
}

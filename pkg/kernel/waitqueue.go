// Copyright 2024 The gVisor Authors.
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

package kernel

import "github.com/arthurwinck/epos-kernel/pkg/kernel/rq"

// WaitQueue is the Wait Queue of spec.md §3: an ordered collection of
// blocked threads, owned by an external synchronization primitive (mutex,
// semaphore) and passed to Thread.Sleep/Wakeup/WakeupAll/Prioritize/
// Deprioritize. It borrows threads; it never owns them; see DESIGN.md for
// why it is ranked the same way the ready queues are (rq.Queue) rather
// than being a plain FIFO list.
type WaitQueue struct {
	q *rq.Queue
}

// NewWaitQueue returns an empty wait queue for use by an external
// synchronization primitive.
func NewWaitQueue() *WaitQueue {
	return &WaitQueue{q: rq.New()}
}

// Len reports how many threads are currently blocked on q.
func (q *WaitQueue) Len() int { return q.q.Len() }

// Empty reports whether no thread is blocked on q.
func (q *WaitQueue) Empty() bool { return q.q.Len() == 0 }

// Threads returns the queue's current members without removing them, most
// urgent first. Intended for tests and diagnostics, not hot paths.
func (q *WaitQueue) Threads() []*Thread {
	// Min/Contains/Reinsert don't give us iteration without draining, so
	// drain and reinsert to observe membership non-destructively.
	items := q.q.DrainFIFO()
	out := make([]*Thread, 0, len(items))
	for _, it := range items {
		t := it.(*Thread)
		out = append(out, t)
		q.q.Insert(t)
	}
	return out
}

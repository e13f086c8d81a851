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

// Package rq is the priority-ordered queue structure backing both the
// Scheduler's ready queues and every wait queue (spec.md §2.3, §3). It is
// built on github.com/google/btree so Insert/Remove/Min are all O(log n)
// regardless of how many threads are enqueued, the way a real ready-queue
// implementation would want.
package rq

import (
	"sync"

	"github.com/google/btree"

	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

// Item is anything a Queue can order by scheduling rank.
type Item interface {
	Rank() sched.Criterion
}

type entry struct {
	rank sched.Criterion
	seq  uint64
	item Item
}

func (e *entry) Less(than btree.Item) bool {
	o := than.(*entry)
	if e.rank.Value != o.rank.Value {
		return e.rank.Value < o.rank.Value
	}
	if e.rank.Gen != o.rank.Gen {
		return e.rank.Gen < o.rank.Gen
	}
	return e.seq < o.seq
}

// Queue is a priority-ordered collection of Items. It is not safe for
// concurrent use by itself — every Queue in this repository is only ever
// touched while the kernel's global lock is held (spec.md §5).
type Queue struct {
	mu     sync.Mutex // defends against accidental lock-free use from tests; not relied on by the kernel
	t      *btree.BTree
	byItem map[Item]*entry
	seq    uint64
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{t: btree.New(32), byItem: make(map[Item]*entry)}
}

// Insert adds it, ranked by its current Rank().
func (q *Queue) Insert(it Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e := &entry{rank: it.Rank(), seq: q.seq, item: it}
	q.byItem[it] = e
	q.t.ReplaceOrInsert(e)
}

// Remove detaches it, if present.
func (q *Queue) Remove(it Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byItem[it]
	if !ok {
		return
	}
	q.t.Delete(e)
	delete(q.byItem, it)
}

// Reinsert re-ranks it by removing and inserting it again, reading its
// current Rank(). Used by prioritize/deprioritize (spec.md §4.5) after a
// thread's Criterion has been mutated in place.
func (q *Queue) Reinsert(it Item) {
	q.Remove(it)
	q.Insert(it)
}

// Min returns the highest-ranked (most urgent) Item without removing it,
// or nil if the queue is empty.
func (q *Queue) Min() Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := q.t.Min()
	if m == nil {
		return nil
	}
	return m.(*entry).item
}

// Contains reports whether it is currently enqueued.
func (q *Queue) Contains(it Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byItem[it]
	return ok
}

// Len reports the number of enqueued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.t.Len()
}

// DrainFIFO removes and returns every item in the queue in rank order.
// Used by wakeup_all (spec.md §4.4).
func (q *Queue) DrainFIFO() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Item, 0, q.t.Len())
	for q.t.Len() > 0 {
		m := q.t.DeleteMin()
		e := m.(*entry)
		delete(q.byItem, e.item)
		items = append(items, e.item)
	}
	return items
}
